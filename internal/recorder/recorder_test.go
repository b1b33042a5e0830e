package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewCreatesSessionFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	r := New(dir, true, now, discardLogger())
	defer r.Close()

	if !r.Enabled() {
		t.Fatal("expected recorder to be enabled")
	}

	want := filepath.Join(dir, "mission_20260730_120000.jsonl")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected file %s to exist: %v", want, err)
	}
}

func TestDisabledRecorderIsNoop(t *testing.T) {
	r := New(t.TempDir(), false, time.Now(), discardLogger())
	if r.Enabled() {
		t.Fatal("expected recorder to be disabled")
	}
	// Must not panic.
	r.Log(context.Background(), "topic", 1.0, json.RawMessage(`{}`))
	if err := r.Close(); err != nil {
		t.Fatalf("Close() on disabled recorder: %v", err)
	}
}

func TestLogAppendsOneLinePerCall(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, true, time.Now(), discardLogger())
	defer r.Close()

	r.Log(context.Background(), "owntracks/phone", 100.5, json.RawMessage(`{"a":1}`))
	r.Log(context.Background(), "dronetag/x", 100.6, json.RawMessage(`{"b":2}`))

	entries := os.ReadDir
	files, err := entries(dir)
	if err != nil || len(files) != 1 {
		t.Fatalf("expected exactly one session file, got %v err=%v", files, err)
	}

	f, err := os.Open(filepath.Join(dir, files[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []Record
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line not valid JSON: %v", err)
		}
		lines = append(lines, rec)
	}

	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Topic != "owntracks/phone" || lines[1].Topic != "dronetag/x" {
		t.Errorf("unexpected topics: %+v", lines)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	r := New(t.TempDir(), true, time.Now(), discardLogger())
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}
