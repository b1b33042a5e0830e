// Package recorder implements the forensic "black box" log (spec §4.3):
// every inbound (topic, payload) pair is appended as one JSON line, flushed
// immediately, independent of whether the packet could be decoded.
//
// Grounded on original_source/securingskies/outputs/recorder.py's
// open-once/append/flush/fail-silent shape, adapted to Go's os.File plus a
// mutex the way the teacher (billglover-go-adsb-console) guards its Store
// with sync.Mutex.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is one line of the forensic log (spec §3, §6).
type Record struct {
	TS    float64         `json:"ts"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// Recorder appends forensic records to a per-session JSON-lines file.
// A Recorder with enabled=false (or one that failed to open its file) is
// a safe no-op: every method becomes a cheap early return, matching spec
// §4.3's "failures to open the file disable the recorder silently."
type Recorder struct {
	mu      sync.Mutex
	file    *os.File
	enabled bool
	log     *slog.Logger
}

// New creates a new session file named mission_<YYYYMMDD_HHMMSS>.jsonl
// under dir. If enabled is false, or the file cannot be opened, the
// returned Recorder is disabled and every Log call is a no-op.
func New(dir string, enabled bool, now time.Time, log *slog.Logger) *Recorder {
	r := &Recorder{enabled: enabled, log: log}
	if !enabled {
		return r
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn("recorder: failed to create log directory, disabling", "error", err)
		r.enabled = false
		return r
	}

	name := fmt.Sprintf("mission_%s.jsonl", now.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warn("recorder: failed to open forensic log, disabling", "error", err, "path", path)
		r.enabled = false
		return r
	}

	r.file = f
	log.Info("recorder: session started", "path", path)
	return r
}

// Log appends one forensic record. topic/data are the raw (pre-decode)
// values as received; malformed data is still written verbatim via
// json.RawMessage. Failures writing a single line are swallowed — the
// mission continues (spec §4.3, §7).
func (r *Recorder) Log(ctx context.Context, topic string, wallSeconds float64, data json.RawMessage) {
	if r == nil || !r.enabled || r.file == nil {
		return
	}

	line, err := json.Marshal(Record{TS: wallSeconds, Topic: topic, Data: data})
	if err != nil {
		return
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.file.Write(line); err != nil {
		return
	}
	_ = r.file.Sync()
}

// Close flushes and closes the underlying file. Idempotent and safe on a
// disabled/nil Recorder.
func (r *Recorder) Close() error {
	if r == nil || !r.enabled || r.file == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.file.Close()
	r.file = nil
	r.enabled = false
	return err
}

// Enabled reports whether the recorder is actively writing.
func (r *Recorder) Enabled() bool {
	return r != nil && r.enabled
}
