package decode

import (
	"encoding/json"
	"time"

	"github.com/securingskies/agcs/internal/asset"
)

// Operator decodes mobile-operator location reports (OwnTracks-style
// `_type: "location"` JSON), spec §4.2. Grounded on
// original_source/securingskies/drivers/owntracks.py's field names; the
// speed-unit resolution (spec: "the normalized record stores m/s") is
// applied here by treating the source `vel` field as km/h — OwnTracks'
// own convention, confirmed by the Python driver's comment — and
// converting, since the Python left it unconverted and spec.md overrides
// that for the normalized record.
type Operator struct {
	Now func() time.Time
}

func (d Operator) Decode(topic string, payload []byte) Result {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Result{}
	}

	if t, ok := asString(raw["_type"]); !ok || t != "location" {
		return Result{}
	}

	tid := "PHONE"
	if t, ok := asString(raw["tid"]); ok && t != "" {
		tid = t
	}

	u := asset.Update{
		TID:  tid,
		Kind: asset.KindGroundOperator,
		Nav:  asset.NavGPS,
	}

	if lat, ok := asFloat(raw["lat"]); ok {
		u.Lat = floatPtr(lat)
	}
	if lon, ok := asFloat(raw["lon"]); ok {
		u.Lon = floatPtr(lon)
	}
	if alt, ok := asFloat(raw["alt"]); ok {
		u.Alt = floatPtr(alt)
	}

	if batt, ok := asInt(raw["batt"]); ok {
		u.BatteryPct = intPtr(batt)
	} else {
		unknown := asset.BatteryUnknown
		u.BatteryPct = &unknown
	}

	if acc, ok := asFloat(raw["acc"]); ok {
		u.AccuracyM = floatPtr(acc)
	}

	if velKmh, ok := asFloat(raw["vel"]); ok {
		mps := velKmh / 3.6
		u.HSpeedMps = floatPtr(mps)
	}

	if cog, ok := asFloat(raw["cog"]); ok {
		u.HeadingDeg = floatPtr(cog)
	}

	mode := "Active"
	u.Mode = &mode

	if tst, ok := asFloat(raw["tst"]); ok {
		now := time.Now
		if d.Now != nil {
			now = d.Now
		}
		deviceTS := time.Unix(int64(tst), 0)
		latency := now().Sub(deviceTS).Seconds()
		u.LinkLatencyS = floatPtr(latency)
	}

	return Result{Updates: []asset.Update{u}}
}
