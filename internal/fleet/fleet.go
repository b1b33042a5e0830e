// Package fleet implements the in-memory tactical picture (spec §3, §4.4):
// a keyed table of the latest asset record per tid, with merge-preserves
// semantics, sentinel-zero-position rejection, staleness tagging, and
// visual-event attachment.
//
// Generalized from the teacher (billglover-go-adsb-console)'s
// aircraft.go: Store{lock *sync.Mutex, aircraft map[string]AircraftPos},
// updateAircraft (merge-by-key with a moved check), and purgeAircraft
// (age-based removal). Spec §3 never deletes a record during a session —
// purgeAircraft's delete-on-stale behavior is replaced here with
// SIGNAL_LOST tagging at snapshot time instead (State.Snapshot), keeping
// the teacher's single-mutex, single-map shape.
package fleet

import (
	"sync"
	"time"

	"github.com/securingskies/agcs/internal/asset"
)

// sentinelLatDeg is the |lat| threshold below which a reported position is
// treated as a "null island" / uninitialized GPS sentinel rather than a
// real fix (spec §4.4, §4.9).
const sentinelLatDeg = 1.0

// State is the fleet table. Mutated only by Merge/AttachVisual, called
// exclusively from the ingest dispatcher (spec §5, §9); every other
// component reads an immutable Snapshot.
type State struct {
	mu      sync.Mutex
	records map[string]asset.Record
}

// New returns an empty fleet table.
func New() *State {
	return &State{records: make(map[string]asset.Record)}
}

// Merge applies a decoded update to the record keyed by u.TID, creating it
// on first sight. Fields absent from u (nil pointers, empty Nav/Mode)
// preserve the prior value (P2). A sentinel position (|lat|<1°) carried in
// u is never applied, so a prior valid position is kept (P3) and a record
// without a prior fix stays without one. LastSeenTS is set to now and is
// monotonic per key by construction, since Merge is the fleet table's only
// writer and ingest is sequential per spec §5 (P1).
func (s *State) Merge(u asset.Update, now time.Time) asset.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, existed := s.records[u.TID]
	if !existed {
		rec = asset.Record{
			TID:         u.TID,
			Kind:        u.Kind,
			BatteryPct:  asset.BatteryUnknown,
			Nav:         asset.NavUnknown,
			FirstSeenTS: now,
		}
	}

	if u.Kind != "" {
		rec.Kind = u.Kind
	}

	if isSentinelPosition(u.Lat) {
		// Reject: keep prior position untouched (P3).
	} else if u.Lat != nil && u.Lon != nil {
		rec.Lat = u.Lat
		rec.Lon = u.Lon
	}

	if u.Alt != nil {
		rec.Alt = u.Alt
	}
	if u.HSpeedMps != nil {
		rec.HSpeedMps = u.HSpeedMps
	}
	if u.VSpeedMps != nil {
		rec.VSpeedMps = u.VSpeedMps
	}
	if u.HeadingDeg != nil {
		rec.HeadingDeg = u.HeadingDeg
	}
	if u.BatteryPct != nil {
		rec.BatteryPct = *u.BatteryPct
	}
	if u.Nav != "" {
		rec.Nav = u.Nav
	}
	if u.AccuracyM != nil {
		rec.AccuracyM = *u.AccuracyM
	}
	if u.Mode != nil {
		rec.Mode = *u.Mode
	}
	if u.LinkLatencyS != nil {
		rec.LinkLatencyS = u.LinkLatencyS
	}

	rec.LastSeenTS = now
	s.records[u.TID] = rec
	return rec
}

// isSentinelPosition reports whether lat is the "null island" sentinel
// (|lat| < 1 degree) used by controller heartbeats with an uninitialized
// fix (spec §4.4).
func isSentinelPosition(lat *float64) bool {
	if lat == nil {
		return false
	}
	v := *lat
	return v > -sentinelLatDeg && v < sentinelLatDeg
}

// AttachVisual locates the AIR record with the maximum LastSeenTS at the
// time of processing and overwrites its AISighting map (spec §4.4, P4). It
// is a no-op if no AIR record exists yet.
func (s *State) AttachVisual(ev asset.VisualEvent, processedAt time.Time) (tid string, attached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var bestTID string
	var bestSeen time.Time
	found := false

	for tid, rec := range s.records {
		if !rec.Kind.IsAir() {
			continue
		}
		if rec.LastSeenTS.After(processedAt) {
			continue
		}
		if !found || rec.LastSeenTS.After(bestSeen) {
			bestTID = tid
			bestSeen = rec.LastSeenTS
			found = true
		}
	}

	if !found {
		return "", false
	}

	rec := s.records[bestTID]
	rec.AISighting = ev.Sightings
	s.records[bestTID] = rec
	return bestTID, true
}

// Get returns a defensive copy of the record for tid, if any.
func (s *State) Get(tid string) (asset.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[tid]
	if !ok {
		return asset.Record{}, false
	}
	return rec.Clone(), true
}

// Entry is one row of a fleet Snapshot: the record plus its derived
// staleness at snapshot time (spec §4.4).
type Entry struct {
	Record asset.Record
	Stale  bool
	AgeS   float64
}

// Snapshot returns a consistent, independent copy of every record in the
// table (spec §4.6 step 1), tagging entries older than staleThreshold as
// stale without removing them (spec §3, §4.4).
func (s *State) Snapshot(now time.Time, staleThreshold time.Duration) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.records))
	for _, rec := range s.records {
		age := now.Sub(rec.LastSeenTS)
		out = append(out, Entry{
			Record: rec.Clone(),
			Stale:  age > staleThreshold,
			AgeS:   age.Seconds(),
		})
	}
	return out
}

// Len reports the number of tracked tids. The Prometheus fleet size gauge
// (internal/metrics) is not updated from it.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
