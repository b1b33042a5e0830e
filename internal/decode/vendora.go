package decode

import (
	"encoding/json"
	"strings"

	"github.com/securingskies/agcs/internal/asset"
)

// VendorA decodes the proprietary enterprise UAV family's three topic
// shapes: .../osd, .../state (vision events), and .../sn (heartbeat,
// carries no asset update). Grounded on
// original_source/securingskies/drivers/autel.py, with the battery,
// RTK/nav, mode-code, and vision-class rules taken verbatim from spec
// §4.2 where the Python and the spec disagree (spec is authoritative —
// see DESIGN.md's Open Question decisions).
type VendorA struct {
	Opts Options
}

// modeTable maps the vendor's integer flight-mode code to its name.
var modeTable = map[int]string{
	1:  "Manual",
	2:  "ATTI",
	3:  "GPS",
	10: "RTH",
	11: "Landing",
	12: "Mission",
	13: "Precision_Landing",
	14: "Takeoff",
	15: "Hover",
}

// defaultVisionClasses is the default allowed AI-sighting class set
// (spec §4.2): {Human(4), Human(30), Drone(34), Fire(36)}.
var defaultVisionClasses = map[int]string{
	4:  "Human",
	30: "Human",
	34: "Drone",
	36: "Fire",
}

// trafficVisionClasses extends defaultVisionClasses with {Car(3),
// Cyclist(5), Truck(6)} when traffic_classes is enabled.
var trafficVisionClasses = map[int]string{
	3: "Car",
	5: "Cyclist",
	6: "Truck",
}

// Decode implements the decoder contract for the enterprise UAV family.
func (d VendorA) Decode(topic string, payload []byte) Result {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Result{}
	}

	switch {
	case strings.HasSuffix(topic, "/osd"):
		return d.decodeOSD(topic, raw)
	case strings.Contains(topic, "/state"):
		if method, ok := asString(raw["method"]); ok && method == "target_detect_result_report" {
			return d.decodeVision(raw)
		}
		return Result{}
	case strings.HasSuffix(topic, "/sn"):
		// Heartbeat/announcement packet: recognized topic shape, no asset
		// update (matches original_source's _parse_heartbeat, which
		// always returns None).
		return Result{}
	}
	return Result{}
}

// serialFromTopic extracts the device serial from a topic path of the
// form thing/product/<SN>/<suffix>.
func serialFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) > 2 {
		return parts[2]
	}
	return "UNK"
}

func (d VendorA) decodeOSD(topic string, raw map[string]interface{}) Result {
	serial := serialFromTopic(topic)

	if list, ok := asSlice(raw["drone_list"]); ok {
		var updates []asset.Update

		if ctrl, ok := d.normalizeController(raw, serial); ok {
			updates = append(updates, ctrl)
		}

		for _, item := range list {
			droneRaw, ok := asMap(item)
			if !ok {
				continue
			}
			if u, ok := d.normalizeUAV(droneRaw, serial); ok {
				updates = append(updates, u)
			}
		}
		if len(updates) == 0 {
			return Result{}
		}
		return Result{Updates: updates}
	}

	// Direct drone OSD: no drone_list, but height/battery present at root.
	_, hasHeight := raw["height"]
	_, hasBattery := raw["battery"]
	if hasHeight || hasBattery {
		if u, ok := d.normalizeUAV(raw, serial); ok {
			return Result{Updates: []asset.Update{u}}
		}
	}

	return Result{}
}

// normalizeController builds the ground-controller record from an OSD
// root that also carries a drone_list (spec §4.2: "controller reporting
// one or more drones plus its own position/battery"). It reports false
// when the root carries no position and no battery fields.
func (d VendorA) normalizeController(raw map[string]interface{}, serial string) (asset.Update, bool) {
	lat, latOK := asFloat(raw["latitude"])
	lon, lonOK := asFloat(raw["longitude"])
	pct, battOK := batteryPercent(raw)
	if !latOK && !lonOK && !battOK {
		return asset.Update{}, false
	}

	u := asset.Update{
		TID:  "CTRL-" + lastN(serial, 4),
		Kind: asset.KindGroundController,
	}
	if latOK {
		u.Lat = floatPtr(lat)
	}
	if lonOK {
		u.Lon = floatPtr(lon)
	}

	if battOK {
		u.BatteryPct = intPtr(pct)
	}

	return u, true
}

// normalizeUAV converts a single drone's raw fields into an asset.Update,
// applying the battery, RTK/nav, mode, speed and heading rules of spec
// §4.2.
func (d VendorA) normalizeUAV(raw map[string]interface{}, topicSerial string) (asset.Update, bool) {
	serial := topicSerial
	if sn, ok := asString(raw["sn"]); ok && sn != "" {
		serial = sn
	}

	u := asset.Update{
		TID:  "UAV-" + lastN(serial, 4),
		Kind: asset.KindAirVendorA,
	}

	if lat, ok := asFloat(raw["latitude"]); ok {
		u.Lat = floatPtr(lat)
	}
	if lon, ok := asFloat(raw["longitude"]); ok {
		u.Lon = floatPtr(lon)
	}

	var height float64
	if h, ok := asFloat(raw["height"]); ok {
		height = h
		u.Alt = floatPtr(h)
	}

	if pct, ok := batteryPercent(raw); ok {
		u.BatteryPct = intPtr(pct)
	}

	nav, accuracy := rtkStatus(raw)
	u.Nav = nav
	u.AccuracyM = floatPtr(accuracy)

	if code, ok := asInt(raw["mode_code"]); ok {
		mode := modeTable[code]
		if mode == "" {
			mode = "Unknown"
		}
		if height <= 0.1 {
			mode = "Ground_Idle"
		} else if mode == "Hover" {
			mode = "Hovering"
		}
		u.Mode = strPtr(mode)
	}

	// Stored in m/s like every other decoder; the SITREP context line
	// renders AIR speeds in km/h.
	if hs, ok := asFloat(raw["horizontal_speed"]); ok {
		u.HSpeedMps = floatPtr(hs)
	}
	if vs, ok := asFloat(raw["vertical_speed"]); ok {
		u.VSpeedMps = floatPtr(vs)
	}
	if hd, ok := asFloat(raw["attitude_head"]); ok {
		u.HeadingDeg = floatPtr(hd)
	}

	return u, true
}

// batteryPercent implements spec §4.2's battery rule: capacity_percent
// when present, else derived from total cell voltage.
func batteryPercent(raw map[string]interface{}) (int, bool) {
	battery, hasBatteryObj := asMap(raw["battery"])

	if hasBatteryObj {
		if pct, ok := asInt(battery["capacity_percent"]); ok {
			return pct, true
		}
		if mv, ok := asFloat(battery["voltage"]); ok {
			return batteryFromVoltageMV(mv), true
		}
	}

	if pct, ok := asInt(raw["capacity_percent"]); ok {
		return pct, true
	}
	if mv, ok := asFloat(raw["voltage"]); ok {
		return batteryFromVoltageMV(mv), true
	}

	return 0, false
}

// batteryFromVoltageMV infers cell count (3S below/at 14000mV total, else
// 4S), clamps the per-cell voltage to [3.5V, 4.3V], and linearly scales
// that to a 0-100 percentage. Authoritative formula per spec §4.2 and the
// Open Question decision recorded in DESIGN.md.
func batteryFromVoltageMV(totalMV float64) int {
	cells := 3.0
	if totalMV > 14000 {
		cells = 4.0
	}
	perCellV := (totalMV / cells) / 1000.0
	perCellV = clamp(perCellV, 3.5, 4.3)
	pct := (perCellV - 3.5) / (4.3 - 3.5) * 100
	return int(pct + 0.5)
}

// rtkStatus implements spec §4.2's RTK/GPS nav and accuracy rule from a
// drone's position_state object.
func rtkStatus(raw map[string]interface{}) (asset.Nav, float64) {
	posState, ok := asMap(raw["position_state"])
	if !ok {
		return asset.NavGPS, 10.0
	}

	rtkUsed, _ := asInt(posState["rtk_used"])
	gpsSats, _ := asInt(posState["gps_number"])

	if rtkUsed == 1 {
		isFixed, _ := asInt(posState["is_fixed"])
		switch isFixed {
		case 3:
			return asset.NavRTKFix, 0.1
		case 2:
			return asset.NavRTKFloat, 0.1
		default:
			return asset.NavRTK, 0.1
		}
	}

	if gpsSats > 10 {
		return asset.NavGPS3D, 3.0
	}
	return asset.NavGPS, 10.0
}

// decodeVision handles .../state vision packets, producing a visual event
// filtered to the allowed class set (spec §4.2).
func (d VendorA) decodeVision(raw map[string]interface{}) Result {
	data, ok := asMap(raw["data"])
	if !ok {
		return Result{}
	}
	objs, ok := asSlice(data["objs"])
	if !ok {
		return Result{}
	}

	allowed := defaultVisionClasses
	if d.Opts.TrafficClasses {
		allowed = make(map[int]string, len(defaultVisionClasses)+len(trafficVisionClasses))
		for k, v := range defaultVisionClasses {
			allowed[k] = v
		}
		for k, v := range trafficVisionClasses {
			allowed[k] = v
		}
	}

	sightings := map[string]int{}
	for _, o := range objs {
		obj, ok := asMap(o)
		if !ok {
			continue
		}
		clsID, ok := asInt(obj["cls_id"])
		if !ok {
			continue
		}
		name, ok := allowed[clsID]
		if !ok {
			continue
		}
		sightings[name]++
	}

	if len(sightings) == 0 {
		return Result{}
	}
	return Result{Visual: &asset.VisualEvent{Sightings: sightings}}
}
