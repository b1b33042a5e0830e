// Package decode implements the per-vendor packet decoders (spec §4.2).
// Each decoder is a pure function: topic + raw payload in, a Result out.
// Decoders never touch the fleet table and are total — malformed input
// yields a zero Result rather than an error or a panic.
package decode

import "github.com/securingskies/agcs/internal/asset"

// Result is the sum type a decoder returns: zero or more asset updates,
// or a visual event, or neither (spec §3, §4.2, design notes §9).
type Result struct {
	Updates []asset.Update
	Visual  *asset.VisualEvent
}

// Empty reports whether the result carries no updates and no visual event.
func (r Result) Empty() bool {
	return len(r.Updates) == 0 && r.Visual == nil
}

// Options configures decoder behavior that depends on runtime
// configuration rather than packet content (spec §4.2, §6 traffic_classes).
type Options struct {
	// TrafficClasses expands the enterprise-UAV vision decoder's allowed
	// class set with {Car, Cyclist, Truck} when true (spec §4.2).
	TrafficClasses bool
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func strPtr(v string) *string     { return &v }

// lastN returns the last n runes of s, or s itself if shorter.
func lastN(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// asFloat best-effort converts a decoded JSON scalar to float64.
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// asInt best-effort converts a decoded JSON scalar to int.
func asInt(v interface{}) (int, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// asString best-effort converts a decoded JSON scalar to string.
func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// asMap best-effort asserts a nested JSON object.
func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

// asSlice best-effort asserts a nested JSON array.
func asSlice(v interface{}) ([]interface{}, bool) {
	s, ok := v.([]interface{})
	return s, ok
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
