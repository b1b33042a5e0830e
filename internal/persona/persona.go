// Package persona implements the C6 prompt loader (spec §4.5): selects a
// static default system prompt per persona, optionally enriches it with
// trained few-shot exemplars from an `optimized_<persona>.json` file, and
// always appends a fixed guardrail trailer.
//
// Grounded on original_source/securingskies/outputs/officer.py's persona
// selection and guardrail string, and on the teacher
// (billglover-go-adsb-console)'s config-loading style of "read file, fall
// back to a baked-in default on any error" rather than treating a missing
// optional file as fatal.
package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Name is a recognized persona (spec §6: persona ∈ {pilot, commander, analyst}).
type Name string

const (
	Pilot     Name = "pilot"
	Commander Name = "commander"
	Analyst   Name = "analyst"
)

// Valid reports whether n is one of the three recognized personas.
func (n Name) Valid() bool {
	switch n {
	case Pilot, Commander, Analyst:
		return true
	}
	return false
}

// defaultPrompts are the static fallback system prompts, used when no
// optimized prompt file is present or it fails to parse (spec §4.5).
var defaultPrompts = map[Name]string{
	Pilot:     "You are the PILOT. Report UAV status tersely, flight-deck style: altitude, speed, battery, nav grade.",
	Commander: "You are the COMMANDER. Summarize the tactical picture for a decision-maker: assets, risk, staleness.",
	Analyst:   "You are the ANALYST. Describe the fleet's telemetry precisely, favoring measured values over judgment.",
}

// guardrail is appended verbatim to every persona prompt regardless of
// source (spec §4.5).
const guardrail = "\n\nRules: assets typed GROUND_OPERATOR or GROUND_CONTROLLER are referred to as OPERATOR or GCS and never as drones. " +
	"Assets typed AIR are referred to as UAV or DRONE. " +
	"RTK may be asserted only when nav is RTK_FIX, RTK_FLOAT, or RTK. " +
	"If no AIR asset is present, the report must state \"No UAVs active.\""

// Exemplar is one trained few-shot example (spec §6: {raw_telemetry, report}).
type Exemplar struct {
	RawTelemetry string `json:"raw_telemetry"`
	Report       string `json:"report"`
}

// optimizedFile is the on-disk shape of an optimized_<persona>.json file:
// a DSPy-style predictor dump with exemplars at predict.demos (spec §6).
type optimizedFile struct {
	Predict struct {
		Demos []Exemplar `json:"demos"`
	} `json:"predict"`
}

// Prompt is the fully assembled system prompt for one persona, ready to
// use as-is for every SITREP tick (spec §9: "loaded once at init; treat
// as effectively immutable thereafter").
type Prompt struct {
	Persona Name
	Text    string
}

// Load reads optimized_<persona>.json from dir if present and well-formed,
// building a few-shot prompt from its exemplars; otherwise it falls back
// to the static default for persona. The guardrail trailer is always
// appended. A malformed or unreadable file is not an error: it degrades
// to the default prompt (spec §4.5 "If the file is absent or malformed,
// a static default prompt per persona is used").
func Load(dir string, persona Name) Prompt {
	if !persona.Valid() {
		persona = Analyst
	}

	base, ok := loadOptimized(dir, persona)
	if !ok {
		base = defaultPrompts[persona]
	}

	return Prompt{Persona: persona, Text: base + guardrail}
}

func loadOptimized(dir string, persona Name) (string, bool) {
	path := fmt.Sprintf("%s/optimized_%s.json", strings.TrimSuffix(dir, "/"), persona)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}

	var parsed optimizedFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false
	}
	if len(parsed.Predict.Demos) == 0 {
		return "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s. Follow these trained examples:\n", strings.ToUpper(string(persona)))
	for _, ex := range parsed.Predict.Demos {
		fmt.Fprintf(&b, "DATA: %s\nREPORT: %s\n---\n", ex.RawTelemetry, ex.Report)
	}
	b.WriteString("Now generate the REPORT for the current DATA.")

	return b.String(), true
}
