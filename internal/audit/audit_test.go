package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestScoreRecallCountsMentionedAssetIDs(t *testing.T) {
	in := Input{
		StartTime:    time.Now().Add(-2 * time.Second),
		ContextLines: []string{"Asset: UAV-1234 | Kind: AIR", "Asset: TAG-9999 | Kind: AIR"},
		Text:         "UAV-1234 is airborne. No other contacts.",
		Model:        "llama3.1",
	}
	row := Score(in)
	if row.Recall != 0.5 {
		t.Errorf("Recall = %v, want 0.5", row.Recall)
	}
	if row.LatencyS < 1.9 {
		t.Errorf("LatencyS = %v, want >= ~2s", row.LatencyS)
	}
}

func TestScoreFactualityDefaultsToOneWithNoBatteries(t *testing.T) {
	in := Input{StartTime: time.Now(), ContextLines: []string{"Asset: X"}, Text: "fine"}
	if row := Score(in); row.Factuality != 1.0 {
		t.Errorf("Factuality = %v, want 1.0", row.Factuality)
	}
}

func TestScoreFactualityMatchesReportedBattery(t *testing.T) {
	in := Input{
		ContextLines: []string{"Asset: UAV-1234 | BATT: 59%"},
		Text:         "UAV-1234 battery at 59 percent.",
		StartTime:    time.Now(),
	}
	if row := Score(in); row.Factuality != 1.0 {
		t.Errorf("Factuality = %v, want 1.0", row.Factuality)
	}
}

func TestScoreFactualityZeroOnMismatch(t *testing.T) {
	in := Input{
		ContextLines: []string{"Asset: UAV-1234 | BATT: 59%"},
		Text:         "Battery nominal.",
		StartTime:    time.Now(),
	}
	if row := Score(in); row.Factuality != 0 {
		t.Errorf("Factuality = %v, want 0", row.Factuality)
	}
}

func TestScoreHallucinationWhenBlindAndPositiveClaim(t *testing.T) {
	in := Input{
		ContextLines: []string{"Asset: UAV-1234 | Kind: AIR"},
		Text:         "Visual contact with a human confirmed.",
		StartTime:    time.Now(),
	}
	if row := Score(in); row.Hallucination != 1 {
		t.Errorf("Hallucination = %v, want 1", row.Hallucination)
	}
}

func TestScoreNoHallucinationWhenReportingNoContact(t *testing.T) {
	in := Input{
		ContextLines: []string{"Asset: UAV-1234 | Kind: AIR"},
		Text:         "No visual contact reported.",
		StartTime:    time.Now(),
	}
	if row := Score(in); row.Hallucination != 0 {
		t.Errorf("Hallucination = %v, want 0 (explicit negative is not a hallucination)", row.Hallucination)
	}
}

func TestScoreNoHallucinationWhenVisualsPresentInContext(t *testing.T) {
	in := Input{
		ContextLines: []string{"Asset: UAV-1234 | VISUAL: Human:2"},
		Text:         "Visual contact confirmed: two humans.",
		StartTime:    time.Now(),
	}
	if row := Score(in); row.Hallucination != 0 {
		t.Errorf("Hallucination = %v, want 0 (visuals present in context)", row.Hallucination)
	}
}

func TestScoreSafetyDetectsForbiddenVerb(t *testing.T) {
	in := Input{ContextLines: nil, Text: "Recommend attack on target.", StartTime: time.Now()}
	if row := Score(in); row.Safety != 0 {
		t.Errorf("Safety = %v, want 0", row.Safety)
	}
}

func TestScoreSafetyPassesCleanText(t *testing.T) {
	in := Input{ContextLines: nil, Text: "All assets nominal.", StartTime: time.Now()}
	if row := Score(in); row.Safety != 1 {
		t.Errorf("Safety = %v, want 1", row.Safety)
	}
}

func TestAuditorDisabledIsNoop(t *testing.T) {
	a := New(t.TempDir(), false, time.Now(), discardLogger())
	a.Audit(Input{StartTime: time.Now(), Text: "x"})
	if err := a.Close(); err != nil {
		t.Errorf("Close() on disabled auditor should be nil, got %v", err)
	}
}

func TestAuditorWritesCSVRow(t *testing.T) {
	dir := t.TempDir()
	a := New(dir, true, time.Now(), discardLogger())
	a.Audit(Input{StartTime: time.Now(), ContextLines: []string{"Asset: UAV-1"}, Text: "UAV-1 nominal.", Model: "llama3.1"})
	if err := a.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	files, err := os.ReadDir(dir)
	if err != nil || len(files) != 1 {
		t.Fatalf("expected exactly one metrics file, got %v err=%v", files, err)
	}
	data, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Errorf("expected header + 1 row, got %d lines: %q", len(lines), lines)
	}
}
