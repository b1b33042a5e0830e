package decode

import (
	"testing"

	"github.com/securingskies/agcs/internal/asset"
)

func TestVendorADecodeRTKFixedDrone(t *testing.T) {
	// Spec §8 scenario 1.
	payload := []byte(`{
		"drone_list": [{
			"latitude": 60.3195, "longitude": 24.8310, "height": 100,
			"battery": {"capacity_percent": 59},
			"position_state": {"rtk_used": 1, "is_fixed": 3, "rtk_number": 18}
		}]
	}`)

	res := VendorA{}.Decode("thing/product/AAAA1234/osd", payload)
	if len(res.Updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(res.Updates))
	}

	u := res.Updates[0]
	if u.TID != "UAV-1234" {
		t.Errorf("TID = %q, want UAV-1234", u.TID)
	}
	if u.Nav != asset.NavRTKFix {
		t.Errorf("Nav = %q, want RTK_FIX", u.Nav)
	}
	if u.AccuracyM == nil || *u.AccuracyM != 0.1 {
		t.Errorf("AccuracyM = %v, want 0.1", u.AccuracyM)
	}
	if u.BatteryPct == nil || *u.BatteryPct != 59 {
		t.Errorf("BatteryPct = %v, want 59", u.BatteryPct)
	}
	if u.Alt == nil || *u.Alt != 100 {
		t.Errorf("Alt = %v, want 100", u.Alt)
	}
}

func TestVendorAControllerHeartbeatDoesNotReplaceItsOwnDrone(t *testing.T) {
	// Controller position/battery and the drone record are both emitted;
	// the sentinel-zero rejection of a 0/0 controller fix happens at
	// merge time in internal/fleet, not in the decoder (spec §4.4).
	payload := []byte(`{
		"latitude": 0, "longitude": 0, "capacity_percent": 80,
		"drone_list": [{"sn": "ZZZZ0001", "latitude": 60.0, "longitude": 24.0, "height": 50}]
	}`)

	res := VendorA{}.Decode("thing/product/BBBB5678/osd", payload)
	if len(res.Updates) != 2 {
		t.Fatalf("expected controller + drone updates, got %d", len(res.Updates))
	}

	ctrl, drone := res.Updates[0], res.Updates[1]
	if ctrl.TID != "CTRL-5678" || ctrl.Kind != asset.KindGroundController {
		t.Errorf("unexpected controller update: %+v", ctrl)
	}
	if drone.TID != "UAV-0001" || drone.Kind != asset.KindAirVendorA {
		t.Errorf("unexpected drone update: %+v", drone)
	}
	if drone.Lat == nil || *drone.Lat != 60.0 {
		t.Errorf("drone Lat = %v, want 60.0", drone.Lat)
	}
}

func TestVendorABatteryFromVoltage3S(t *testing.T) {
	// 3S pack: 12600mV total = 4200mV/cell = 4.2V -> (4.2-3.5)/0.8*100 = 87.5 -> 88
	pct := batteryFromVoltageMV(12600)
	if pct != 88 {
		t.Errorf("batteryFromVoltageMV(12600) = %d, want 88", pct)
	}
}

func TestVendorABatteryFromVoltage4S(t *testing.T) {
	// 4S pack: 16000mV total = 4000mV/cell = 4.0V -> (4.0-3.5)/0.8*100 = 62.5 -> 63
	pct := batteryFromVoltageMV(16000)
	if pct != 63 {
		t.Errorf("batteryFromVoltageMV(16000) = %d, want 63", pct)
	}
}

func TestVendorAModeReclassification(t *testing.T) {
	testCases := []struct {
		name     string
		height   float64
		modeCode int
		want     string
	}{
		{"ground idle overrides regardless of code", 0.05, 15, "Ground_Idle"},
		{"airborne hover becomes hovering", 1.0, 15, "Hovering"},
		{"airborne manual stays manual", 5.0, 1, "Manual"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw := map[string]interface{}{
				"height":    tc.height,
				"mode_code": tc.modeCode,
			}
			u, ok := VendorA{}.normalizeUAV(raw, "SER0000")
			if !ok {
				t.Fatal("expected ok")
			}
			if u.Mode == nil || *u.Mode != tc.want {
				t.Errorf("Mode = %v, want %s", u.Mode, tc.want)
			}
		})
	}
}

func TestVendorAVisionDefaultClasses(t *testing.T) {
	// Spec §8 scenario 5: two cls_id:30 -> Human:2.
	payload := []byte(`{
		"method": "target_detect_result_report",
		"data": {"objs": [{"cls_id": 30}, {"cls_id": 30}]}
	}`)

	res := VendorA{}.Decode("thing/product/AAAA1234/state", payload)
	if res.Visual == nil {
		t.Fatal("expected a visual event")
	}
	if res.Visual.Sightings["Human"] != 2 {
		t.Errorf("Sightings[Human] = %d, want 2", res.Visual.Sightings["Human"])
	}
}

func TestVendorAVisionDropsDisallowedClassWithoutTraffic(t *testing.T) {
	payload := []byte(`{
		"method": "target_detect_result_report",
		"data": {"objs": [{"cls_id": 3}]}
	}`)

	res := VendorA{Opts: Options{TrafficClasses: false}}.Decode("thing/product/AAAA1234/state", payload)
	if !res.Empty() {
		t.Fatalf("expected no result when traffic classes disabled, got %+v", res)
	}
}

func TestVendorAVisionAllowsCarWithTrafficEnabled(t *testing.T) {
	payload := []byte(`{
		"method": "target_detect_result_report",
		"data": {"objs": [{"cls_id": 3}]}
	}`)

	res := VendorA{Opts: Options{TrafficClasses: true}}.Decode("thing/product/AAAA1234/state", payload)
	if res.Visual == nil || res.Visual.Sightings["Car"] != 1 {
		t.Fatalf("expected Car:1, got %+v", res.Visual)
	}
}

func TestVendorAMalformedPayloadReturnsEmpty(t *testing.T) {
	res := VendorA{}.Decode("thing/product/AAAA1234/osd", []byte(`not json`))
	if !res.Empty() {
		t.Errorf("expected empty result for malformed JSON, got %+v", res)
	}
}

func TestVendorAHeartbeatTopicIsNoop(t *testing.T) {
	res := VendorA{}.Decode("thing/product/sn", []byte(`{"sn":"AAAA1234"}`))
	if !res.Empty() {
		t.Errorf("expected empty result for /sn topic, got %+v", res)
	}
}
