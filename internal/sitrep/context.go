// Package sitrep implements the C7 SITREP engine (spec §4.6): a periodic
// ticker that snapshots the fleet, assembles a context string per asset,
// calls an LLM under a strict token/timeout/temperature contract, and
// hands the (context, response) pair to the auditor.
package sitrep

import (
	"fmt"
	"sort"
	"strings"

	"github.com/securingskies/agcs/internal/asset"
	"github.com/securingskies/agcs/internal/fleet"
	"github.com/securingskies/agcs/internal/geo"
)

// LatLon is a bare coordinate, used for home-base and pilot-position
// distance computation (spec §4.6, original_source officer.py's
// HOME_BASE/pilot_pos handling).
type LatLon struct {
	Lat float64
	Lon float64
}

// gpsGrade classifies accuracy_m into the three-tier rating of spec §4.6,
// forcing GOOD (RTK) whenever nav is RTK-family regardless of the numeric
// value (spec §4.6, P10).
func gpsGrade(nav asset.Nav, accuracyM float64) string {
	if nav.IsRTK() {
		return "GOOD (RTK)"
	}
	switch {
	case accuracyM < 5:
		return "GOOD"
	case accuracyM < 10:
		return "FAIR"
	default:
		return "POOR"
	}
}

// findPilotPosition returns the position of the first non-stale
// GROUND_OPERATOR record with a fix, in the order of entries, falling back
// to homeBase when there is none (spec §4.6). The original officer.py only
// looked for the operator tagged "RW".
func findPilotPosition(entries []fleet.Entry, homeBase LatLon) LatLon {
	for _, e := range entries {
		if e.Record.Kind == asset.KindGroundOperator && !e.Stale && e.Record.Lat != nil && e.Record.Lon != nil {
			return LatLon{Lat: *e.Record.Lat, Lon: *e.Record.Lon}
		}
	}
	return homeBase
}

// BuildContextLines renders one line per fleet entry in the format
// consumed by the LLM prompt (spec §4.6 step 2). Lines are sorted by tid
// for deterministic prompts across ticks.
func BuildContextLines(entries []fleet.Entry, homeBase LatLon) []string {
	sorted := make([]fleet.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Record.TID < sorted[j].Record.TID })

	pilot := findPilotPosition(sorted, homeBase)

	lines := make([]string, 0, len(sorted))
	for _, e := range sorted {
		lines = append(lines, buildLine(e, homeBase, pilot))
	}
	return lines
}

func buildLine(e fleet.Entry, homeBase, pilot LatLon) string {
	rec := e.Record

	if e.Stale {
		return fmt.Sprintf("Asset: %s | Status: SIGNAL_LOST (%ds ago)", rec.TID, int(e.AgeS))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Asset: %s | Kind: %s | Mode: %s", rec.TID, rec.Kind, modeOrDefault(rec.Mode))

	if rec.BatteryPct == asset.BatteryUnknown {
		b.WriteString(" | BATT: Unknown")
	} else {
		fmt.Fprintf(&b, " | BATT: %d%%", rec.BatteryPct)
	}

	fmt.Fprintf(&b, " | GPS: %s (%.1fm) | NAV: %s", gpsGrade(rec.Nav, rec.AccuracyM), rec.AccuracyM, rec.Nav)

	if rec.Alt != nil {
		fmt.Fprintf(&b, " | ALT: %.0fm", *rec.Alt)
	}

	if rec.HSpeedMps != nil {
		if rec.Kind.IsAir() {
			fmt.Fprintf(&b, " | SPEED: %.1fkm/h", *rec.HSpeedMps*3.6)
		} else {
			fmt.Fprintf(&b, " | SPEED: %.1fm/s", *rec.HSpeedMps)
		}
	}

	if rec.Lat != nil && rec.Lon != nil {
		distHome := geo.Distance2D(rec.Lat, rec.Lon, &homeBase.Lat, &homeBase.Lon)
		distPilot := geo.Distance2D(rec.Lat, rec.Lon, &pilot.Lat, &pilot.Lon)
		fmt.Fprintf(&b, " | Dist: %dm (Home), %dm (Pilot)", int(distHome), int(distPilot))
	}

	if len(rec.AISighting) > 0 {
		fmt.Fprintf(&b, " | VISUAL: %s", formatSightings(rec.AISighting))
	}

	return b.String()
}

func modeOrDefault(mode string) string {
	if mode == "" {
		return "Active"
	}
	return mode
}

func formatSightings(sightings map[string]int) string {
	keys := make([]string, 0, len(sightings))
	for k := range sightings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%d", k, sightings[k]))
	}
	return strings.Join(parts, ", ")
}
