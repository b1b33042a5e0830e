package decode

import (
	"encoding/json"
	"math"
	"time"

	"github.com/securingskies/agcs/internal/asset"
)

// RemoteID decodes ASTM F3411-style Remote-ID broadcasts (spec §4.2).
// Grounded on original_source/securingskies/drivers/dronetag.py, with the
// operational-state AIRBORNE-forcing rule and link-latency computation
// added per spec §4.2 (not present in the Python).
type RemoteID struct {
	// Now returns the server's current wall-clock time, used to compute
	// link_latency_s. Defaults to time.Now when nil.
	Now func() time.Time
}

func (d RemoteID) Decode(topic string, payload []byte) Result {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Result{}
	}

	rawID, ok := asString(raw["sensor_id"])
	if !ok || rawID == "" {
		rawID, ok = asString(raw["uas_id"])
		if !ok || rawID == "" {
			return Result{}
		}
	}

	u := asset.Update{
		TID:  "TAG-" + lastN(rawID, 4),
		Kind: asset.KindAirRemoteID,
		Nav:  asset.NavRemoteID,
	}

	if loc, ok := asMap(raw["location"]); ok {
		if lat, ok := asFloat(loc["latitude"]); ok {
			u.Lat = floatPtr(lat)
		}
		if lon, ok := asFloat(loc["longitude"]); ok {
			u.Lon = floatPtr(lon)
		}
		if acc, ok := asFloat(loc["accuracy"]); ok {
			u.AccuracyM = floatPtr(acc)
		} else {
			u.AccuracyM = floatPtr(0)
		}
	} else {
		u.AccuracyM = floatPtr(0)
	}

	alt := decodeRemoteIDAltitude(raw)
	u.Alt = floatPtr(alt)

	if speed, ok := decodeRemoteIDSpeed(raw); ok {
		u.HSpeedMps = floatPtr(speed)
	}

	batteryUnknown := asset.BatteryUnknown
	u.BatteryPct = &batteryUnknown

	if state, ok := asString(raw["operational_state"]); ok {
		upper := upperASCII(state)
		if upper == "UNKNOWN" && alt > 5 {
			upper = "AIRBORNE"
		}
		u.Mode = strPtr(upper)
	}

	if tsStr, ok := asString(raw["device_ts"]); ok {
		if ts, err := time.Parse(time.RFC3339, tsStr); err == nil {
			now := time.Now
			if d.Now != nil {
				now = d.Now
			}
			latency := now().Sub(ts).Seconds()
			u.LinkLatencyS = floatPtr(latency)
		}
	}

	return Result{Updates: []asset.Update{u}}
}

// decodeRemoteIDAltitude implements spec §4.2's altitude preference:
// first altitudes[type=="MSL"], else first element, else scalar altitude.
func decodeRemoteIDAltitude(raw map[string]interface{}) float64 {
	if list, ok := asSlice(raw["altitudes"]); ok && len(list) > 0 {
		for _, item := range list {
			entry, ok := asMap(item)
			if !ok {
				continue
			}
			if t, ok := asString(entry["type"]); ok && t == "MSL" {
				if v, ok := asFloat(entry["value"]); ok {
					return v
				}
			}
		}
		if entry, ok := asMap(list[0]); ok {
			if v, ok := asFloat(entry["value"]); ok {
				return v
			}
		}
		return 0
	}

	if v, ok := asFloat(raw["altitude"]); ok {
		return v
	}
	return 0
}

// decodeRemoteIDSpeed prefers velocity.horizontal_speed, else derives the
// magnitude from vx/vy vector components.
func decodeRemoteIDSpeed(raw map[string]interface{}) (float64, bool) {
	vel, ok := asMap(raw["velocity"])
	if !ok {
		return 0, false
	}

	if hs, ok := asFloat(vel["horizontal_speed"]); ok {
		return hs, true
	}

	vx, vxOK := asFloat(vel["vx"])
	vy, vyOK := asFloat(vel["vy"])
	if vxOK && vyOK {
		return math.Sqrt(vx*vx + vy*vy), true
	}

	return 0, false
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
