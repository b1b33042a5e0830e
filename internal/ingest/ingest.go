// Package ingest implements the C5 dispatcher (spec §4.4): it owns the
// broker subscription, routes each inbound message to the decoder
// selected by topic prefix, records the raw packet before decoding, and
// merges every decoded update into the fleet table.
//
// Grounded on the teacher (billglover-go-adsb-console)'s monitor.go
// message-handling loop — one callback per inbound item, fanned out to a
// processing function — generalized here from a single ADS-B decoder to
// the five-family routing table required by spec §6.
package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/securingskies/agcs/internal/broker"
	"github.com/securingskies/agcs/internal/decode"
	"github.com/securingskies/agcs/internal/fleet"
	"github.com/securingskies/agcs/internal/recorder"
)

// Decoder is the common shape of every per-vendor decoder in internal/decode.
type Decoder interface {
	Decode(topic string, payload []byte) decode.Result
}

// Dispatcher wires a broker subscription to the fleet table, recording
// every raw packet first (spec §4.4 step 1) regardless of whether it
// decodes successfully.
type Dispatcher struct {
	fleet    *fleet.State
	rec      *recorder.Recorder
	log      *slog.Logger
	now      func() time.Time
	vendorA  Decoder
	remoteID Decoder
	operator Decoder
}

// New builds a Dispatcher. now defaults to time.Now when nil, letting
// tests and replay pin a deterministic clock.
func New(fl *fleet.State, rec *recorder.Recorder, log *slog.Logger, now func() time.Time, opts decode.Options) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		fleet:    fl,
		rec:      rec,
		log:      log,
		now:      now,
		vendorA:  decode.VendorA{Opts: opts},
		remoteID: decode.RemoteID{Now: now},
		operator: decode.Operator{Now: now},
	}
}

// Start subscribes to the five topic families on client, handling every
// inbound message via Handle. It returns once subscription is
// established; the handler itself runs on the broker library's own
// callback goroutines, matching spec §5's "callback is non-blocking and
// the LLM call is never made on the receive path."
func (d *Dispatcher) Start(client broker.Client) error {
	return client.Subscribe(broker.SubscriptionFilters, func(m broker.Message) {
		d.Handle(context.Background(), m.Topic, m.Payload)
	})
}

// Handle processes one inbound (topic, payload) pair: record raw, decode,
// merge. It never panics outward — a malformed payload simply yields an
// empty decode.Result (spec §4.2, §7).
func (d *Dispatcher) Handle(ctx context.Context, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("ingest: recovered from panic in handler", "topic", topic, "panic", r)
		}
	}()

	now := d.now()

	if d.rec != nil && d.rec.Enabled() {
		d.rec.Log(ctx, topic, float64(now.Unix()), rawJSON(payload))
	}

	dec := d.selectDecoder(topic)
	if dec == nil {
		return
	}

	result := dec.Decode(topic, payload)
	if result.Empty() {
		return
	}

	for _, u := range result.Updates {
		if u.TID == "" {
			continue
		}
		d.fleet.Merge(u, now)
	}

	if result.Visual != nil {
		tid, attached := d.fleet.AttachVisual(*result.Visual, now)
		if attached {
			d.log.Debug("ingest: visual event attached", "tid", tid, "sightings", result.Visual.Sightings)
		} else {
			d.log.Debug("ingest: visual event dropped, no AIR record", "topic", topic)
		}
	}
}

// selectDecoder implements the topic-prefix routing table of spec §6.
func (d *Dispatcher) selectDecoder(topic string) Decoder {
	switch {
	case strings.HasPrefix(topic, "owntracks/"):
		return d.operator
	case strings.HasPrefix(topic, "dronetag/"):
		return d.remoteID
	case strings.HasPrefix(topic, "thing/product/"):
		return d.vendorA
	}
	return nil
}

// rawJSON wraps payload as a recorder data value without re-decoding it,
// tolerating non-JSON bytes by falling back to a quoted string so the
// forensic log never loses a malformed packet (spec §4.3, §7).
func rawJSON(payload []byte) []byte {
	if isJSONValue(payload) {
		return payload
	}
	return quoteAsJSONString(payload)
}

func isJSONValue(b []byte) bool {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[', '"', '-', 't', 'f', 'n':
			return true
		default:
			return c >= '0' && c <= '9'
		}
	}
	return false
}

func quoteAsJSONString(b []byte) []byte {
	out := make([]byte, 0, len(b)+2)
	out = append(out, '"')
	for _, c := range b {
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	out = append(out, '"')
	return out
}
