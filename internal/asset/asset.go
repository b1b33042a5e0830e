// Package asset defines the normalized tactical unit of state shared across
// the decoders, the fleet table, the SITREP engine, and the live feed
// bridge.
package asset

import "time"

// Kind classifies an asset record by owner/role.
type Kind string

const (
	KindAirVendorA       Kind = "AIR_UAV_VENDOR_A"
	KindAirRemoteID      Kind = "AIR_REMOTE_ID"
	KindGroundOperator   Kind = "GROUND_OPERATOR"
	KindGroundController Kind = "GROUND_CONTROLLER"
)

// IsAir reports whether the kind belongs to the airborne family used for
// visual-event attachment (spec §4.4) and SITREP speed-unit selection
// (spec §4.6).
func (k Kind) IsAir() bool {
	return k == KindAirVendorA || k == KindAirRemoteID
}

// Nav is the navigation/fix quality enumeration.
type Nav string

const (
	NavGPS      Nav = "GPS"
	NavGPS3D    Nav = "GPS_3D"
	NavRTKFloat Nav = "RTK_FLOAT"
	NavRTKFix   Nav = "RTK_FIX"
	NavRemoteID Nav = "REMOTE_ID"
	NavUnknown  Nav = "UNKNOWN"

	// NavRTK is the generic "RTK engaged, fix quality not FIX/FLOAT"
	// value named by spec §4.2's decoder rule and by P10's testable
	// nav set {RTK_FIX, RTK_FLOAT, RTK} — present alongside, not instead
	// of, the §3 enum.
	NavRTK Nav = "RTK"
)

// IsRTK reports whether nav is one of the RTK-family values, used by the
// GPS-grade rule (spec §4.6/P10).
func (n Nav) IsRTK() bool {
	return n == NavRTKFix || n == NavRTKFloat || n == NavRTK
}

// BatteryUnknown is the sentinel value for "no battery telemetry reported".
const BatteryUnknown = -1

// Record is the normalized asset record, the unit of state in the fleet
// table (spec §3).
type Record struct {
	TID  string
	Kind Kind

	Lat *float64
	Lon *float64
	Alt *float64 // meters

	HSpeedMps  *float64
	VSpeedMps  *float64
	HeadingDeg *float64

	// BatteryPct is 0..100, or BatteryUnknown (-1) when not reported.
	BatteryPct int

	Nav        Nav
	AccuracyM  float64
	Mode       string
	AISighting map[string]int

	// LinkLatencyS is server_ts - device_ts when device_ts was parseable.
	LinkLatencyS *float64

	LastSeenTS  time.Time
	FirstSeenTS time.Time
}

// Clone returns a deep-enough copy for safe use in a read-only snapshot:
// the AISighting map is copied so a snapshot reader can't mutate live state.
func (r Record) Clone() Record {
	out := r
	if r.AISighting != nil {
		out.AISighting = make(map[string]int, len(r.AISighting))
		for k, v := range r.AISighting {
			out.AISighting[k] = v
		}
	}
	return out
}

// Update is a decoded, partial asset record produced by a decoder (spec
// §4.2). Nil/zero-value pointer fields mean "not present in this packet"
// and must not overwrite prior state on merge (spec §4.4 P2).
type Update struct {
	TID  string
	Kind Kind

	Lat *float64
	Lon *float64
	Alt *float64

	HSpeedMps  *float64
	VSpeedMps  *float64
	HeadingDeg *float64

	// BatteryPct is nil when the packet carried no battery information at
	// all (distinct from an explicit -1/unknown report).
	BatteryPct *int

	Nav          Nav
	AccuracyM    *float64
	Mode         *string
	LinkLatencyS *float64
}

// VisualEvent is a transient AI-sighting update that attaches to the most
// recently updated AIR record (spec §3, §4.2, §4.4, P4).
type VisualEvent struct {
	Sightings map[string]int
}
