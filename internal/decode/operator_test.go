package decode

import (
	"strconv"
	"testing"
	"time"

	"github.com/securingskies/agcs/internal/asset"
)

func TestOperatorDecodeLocation(t *testing.T) {
	payload := []byte(`{
		"_type": "location", "tid": "RW",
		"lat": 60.31, "lon": 24.82, "alt": 15,
		"batt": 72, "acc": 5, "vel": 36, "cog": 90
	}`)

	res := Operator{}.Decode("owntracks/rw", payload)
	if len(res.Updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(res.Updates))
	}
	u := res.Updates[0]

	if u.TID != "RW" {
		t.Errorf("TID = %q, want RW", u.TID)
	}
	if u.Kind != asset.KindGroundOperator {
		t.Errorf("Kind = %q, want GROUND_OPERATOR", u.Kind)
	}
	if u.BatteryPct == nil || *u.BatteryPct != 72 {
		t.Errorf("BatteryPct = %v, want 72", u.BatteryPct)
	}
	if u.HSpeedMps == nil || *u.HSpeedMps != 10 {
		t.Errorf("HSpeedMps = %v, want 10 (36 km/h -> m/s)", u.HSpeedMps)
	}
}

func TestOperatorDefaultsToPhoneTID(t *testing.T) {
	payload := []byte(`{"_type": "location", "lat": 1, "lon": 2}`)
	res := Operator{}.Decode("owntracks/anon", payload)
	if res.Updates[0].TID != "PHONE" {
		t.Errorf("TID = %q, want PHONE", res.Updates[0].TID)
	}
	if res.Updates[0].BatteryPct == nil || *res.Updates[0].BatteryPct != asset.BatteryUnknown {
		t.Errorf("BatteryPct = %v, want -1 when absent", res.Updates[0].BatteryPct)
	}
}

func TestOperatorIgnoresNonLocationTypes(t *testing.T) {
	res := Operator{}.Decode("owntracks/rw", []byte(`{"_type": "lwt"}`))
	if !res.Empty() {
		t.Errorf("expected empty result for non-location _type, got %+v", res)
	}
}

func TestOperatorLinkLatency(t *testing.T) {
	fixedNow := time.Date(2026, 7, 30, 0, 0, 30, 0, time.UTC)
	deviceTS := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC).Unix()

	payload := []byte(`{"_type": "location", "lat": 1, "lon": 2, "tst": ` +
		strconv.FormatInt(deviceTS, 10) + `}`)

	res := Operator{Now: func() time.Time { return fixedNow }}.Decode("owntracks/rw", payload)
	u := res.Updates[0]
	if u.LinkLatencyS == nil || *u.LinkLatencyS != 30 {
		t.Errorf("LinkLatencyS = %v, want 30", u.LinkLatencyS)
	}
}
