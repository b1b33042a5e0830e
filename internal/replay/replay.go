// Package replay implements the C9 replay engine (spec §4.8): it reads a
// forensic log written by internal/recorder and republishes each record
// to a broker, preserving relative ordering and scaling inter-arrival
// times by a speed factor, with drift-correcting sleeps so a slow
// publisher catches up rather than drifting forever (spec §5 P5/P6, §8
// scenario 6).
//
// Grounded on internal/recorder's JSON-lines schema (the producer side
// of this log) and on the teacher (billglover-go-adsb-console)'s
// monitor.go loop-over-channel-with-sleep shape, generalized from a
// fixed poll interval to the scaled, drift-corrected sleep spec §4.8
// requires.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"
)

// preRoll is the fixed look-back applied by jump-to-action (spec §4.8
// step 1, §9 Open Question: "heuristic; fall back to file start if no
// vendor-UAV packet is found").
const preRoll = 5 * time.Second

// vendorTopicMarker identifies the enterprise UAV family used to locate
// the jump-to-action point (spec §4.8, §6 thing/product/... topics).
const vendorTopicMarker = "thing/product/"

// record mirrors internal/recorder.Record's on-disk shape.
type record struct {
	TS    float64         `json:"ts"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// Publisher is the subset of broker.Client the replay engine needs,
// letting tests substitute a fake without a real broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Clock abstracts wall-clock reads and sleeps so tests can run a replay
// without waiting in real time.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Engine replays one forensic log file against a Publisher at a scaled
// rate (spec §4.8).
type Engine struct {
	Publisher   Publisher
	Speed       float64 // s > 0
	JumpToAction bool
	Clock       Clock
	Log         *slog.Logger
}

// New builds an Engine with the real wall clock. Speed must be > 0.
func New(pub Publisher, speed float64, jumpToAction bool, log *slog.Logger) *Engine {
	return &Engine{Publisher: pub, Speed: speed, JumpToAction: jumpToAction, Clock: realClock{}, Log: log}
}

// Run replays every record in r, in order, until EOF or ctx
// cancellation. Malformed lines are skipped silently (spec §4.8 step 4).
func (e *Engine) Run(ctx context.Context, r io.Reader) error {
	records, err := decodeAll(r)
	if err != nil {
		return err
	}

	start := 0
	if e.JumpToAction {
		start = jumpIndex(records)
	}
	records = records[start:]

	if len(records) == 0 {
		return nil
	}

	clk := e.Clock
	if clk == nil {
		clk = realClock{}
	}

	logT0 := records[0].TS
	wallT0 := clk.Now()

	for i, rec := range records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if i > 0 {
			e.waitForSlot(clk, rec.TS, logT0, wallT0)
		}

		if err := e.Publisher.Publish(ctx, rec.Topic, rec.Data); err != nil {
			if e.Log != nil {
				e.Log.Warn("replay: publish failed, continuing", "topic", rec.Topic, "error", err)
			}
		}
	}

	return nil
}

// waitForSlot implements spec §4.8 step 3's drift-correcting sleep: the
// amount slept shrinks (down to zero, never negative) whenever the
// publisher has fallen behind the scaled schedule, so a slow tick is
// absorbed rather than compounding into permanent drift (P5/P6).
func (e *Engine) waitForSlot(clk Clock, recordTS, logT0 float64, wallT0 time.Time) {
	logElapsed := recordTS - logT0
	wallElapsed := clk.Now().Sub(wallT0).Seconds() * e.Speed

	sleepS := (logElapsed - wallElapsed) / e.Speed
	if sleepS > 0 {
		clk.Sleep(time.Duration(sleepS * float64(time.Second)))
	}
}

// jumpIndex finds the first record on a vendor-UAV topic and returns the
// index of the first record at or after (that record's ts - preRoll).
// If no such record exists, it returns 0 (replay from file start).
func jumpIndex(records []record) int {
	var targetTS float64
	found := false
	for _, rec := range records {
		if len(rec.Topic) >= len(vendorTopicMarker) && containsVendorMarker(rec.Topic) {
			targetTS = rec.TS - preRoll.Seconds()
			found = true
			break
		}
	}
	if !found {
		return 0
	}
	for i, rec := range records {
		if rec.TS >= targetTS {
			return i
		}
	}
	return 0
}

func containsVendorMarker(topic string) bool {
	for i := 0; i+len(vendorTopicMarker) <= len(topic); i++ {
		if topic[i:i+len(vendorTopicMarker)] == vendorTopicMarker {
			return true
		}
	}
	return false
}

func decodeAll(r io.Reader) ([]record, error) {
	var out []record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			// Malformed line: skipped silently (spec §4.8 step 4).
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
