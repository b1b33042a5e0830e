package sitrep

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/securingskies/agcs/internal/fleet"
	"github.com/securingskies/agcs/internal/persona"
)

// errorText is the fixed string emitted on any non-timeout LLM error
// (spec §4.6 step 3, §7).
const errorText = "SITREP: SYSTEM ERROR. AI UNAVAILABLE."

// AuditInput is the payload handed to the auditor after each tick (spec
// §4.6 step 5): start time, the rendered context lines, the produced
// text, and the model name.
type AuditInput struct {
	StartTime    time.Time
	ContextLines []string
	Text         string
	Model        string
}

// Auditor receives one AuditInput per completed tick, including error
// ticks (spec §7: "metrics row still written with empty text").
type Auditor interface {
	Audit(in AuditInput)
}

// AuxSink is an optional best-effort downstream consumer of SITREP text
// (e.g. ambient lighting, speech synthesis). Failures are never fatal to
// the tick (spec §7 "Auxiliary sink down... silently skipped").
type AuxSink interface {
	Send(ctx context.Context, text string) error
}

// NullSink is the default AuxSink: it does nothing. Real lighting/voice
// integrations are external collaborators out of scope for this
// repository (spec §1); only the circuit-breaker contract they must
// satisfy is modeled here.
type NullSink struct{}

func (NullSink) Send(context.Context, string) error { return nil }

// BreakerSink wraps an AuxSink with a circuit breaker: after a failed
// Send, further sends are skipped until cooldown has elapsed (spec §7,
// grounded on original_source/securingskies/outputs/hue.py's
// _last_failure_time / RETRY_COOLDOWN pattern).
type BreakerSink struct {
	inner        AuxSink
	cooldown     time.Duration
	now          func() time.Time
	lastFailure  atomic.Int64 // unix nanos; 0 == never failed
}

// NewBreakerSink wraps inner with the spec-mandated minimum 30s cooldown
// (spec §7).
func NewBreakerSink(inner AuxSink, cooldown time.Duration) *BreakerSink {
	if cooldown < 30*time.Second {
		cooldown = 30 * time.Second
	}
	return &BreakerSink{inner: inner, cooldown: cooldown, now: time.Now}
}

func (b *BreakerSink) Send(ctx context.Context, text string) error {
	last := b.lastFailure.Load()
	if last != 0 && b.now().Sub(time.Unix(0, last)) < b.cooldown {
		return nil
	}
	if err := b.inner.Send(ctx, text); err != nil {
		b.lastFailure.Store(b.now().UnixNano())
		return nil
	}
	return nil
}

// Config holds the per-run SITREP parameters sourced from the
// configuration surface (spec §6).
type Config struct {
	Interval     time.Duration
	StaleAfter   time.Duration
	HomeBase     LatLon
	CallTimeout  time.Duration
}

// Engine runs the periodic SITREP tick (spec §4.6). Only one tick may be
// in flight at a time; a tick whose predecessor hasn't returned by the
// next timer edge is dropped (spec §5 single-flight, P7).
type Engine struct {
	fleet   *fleet.State
	prompt  persona.Prompt
	client  Client
	auditor Auditor
	sink    AuxSink
	cfg     Config
	log     *slog.Logger
	now     func() time.Time

	inFlight atomic.Bool
}

// New builds a SITREP Engine. sink may be nil, in which case NullSink is
// used.
func New(fl *fleet.State, prompt persona.Prompt, client Client, auditor Auditor, sink AuxSink, cfg Config, log *slog.Logger) *Engine {
	if sink == nil {
		sink = NullSink{}
	}
	return &Engine{
		fleet:   fl,
		prompt:  prompt,
		client:  client,
		auditor: auditor,
		sink:    sink,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// Run blocks, firing Tick on cfg.Interval until ctx is cancelled (spec
// §5 "one SITREP ticker task").
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.fireTick(ctx)
		}
	}
}

// fireTick drops the tick if a prior one is still outstanding (P7), else
// runs Tick in the background so the ticker loop itself never blocks.
func (e *Engine) fireTick(ctx context.Context) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.log.Warn("sitrep: tick dropped, previous call still in flight")
		return
	}
	go func() {
		defer e.inFlight.Store(false)
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("sitrep: recovered from panic in tick", "panic", r)
			}
		}()
		e.Tick(ctx)
	}()
}

// Tick runs one SITREP cycle: snapshot, build, call, audit (spec §4.6
// state machine IDLE->SNAPSHOT->BUILD->CALL->(OK|TIMEOUT|ERROR)->AUDIT).
// A successful report is logged at Info level. Tick also returns the
// produced text (empty on timeout); the ticker loop in Run discards that
// return value.
func (e *Engine) Tick(ctx context.Context) string {
	start := e.now()

	entries := e.fleet.Snapshot(start, e.cfg.StaleAfter)
	lines := BuildContextLines(entries, e.cfg.HomeBase)

	userMessage := joinLines(lines)

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	text, err := e.client.Complete(callCtx, e.prompt.Text, userMessage)
	auditText := text

	switch {
	case err == nil:
		e.log.Info("sitrep: report", "text", text)
	case callCtx.Err() == context.DeadlineExceeded:
		e.log.Warn("sitrep: LLM call timed out, skipping tick")
		return ""
	default:
		e.log.Error("sitrep: LLM call failed", "error", err)
		text = errorText
		auditText = ""
	}

	if e.auditor != nil {
		e.auditor.Audit(AuditInput{
			StartTime:    start,
			ContextLines: lines,
			Text:         auditText,
			Model:        modelNameOf(e.client),
		})
	}

	if text != "" && text != errorText {
		_ = e.sink.Send(ctx, sanitizeForSpeech(text))
	}

	return text
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func modelNameOf(c Client) string {
	switch v := c.(type) {
	case *LocalClient:
		return v.Model
	case *CloudClient:
		return v.Model
	default:
		return "unknown"
	}
}

// sanitizeForSpeech strips prompt-style markup and expands in-domain
// abbreviations for a text-to-speech sink (spec §4.6 step 4).
func sanitizeForSpeech(text string) string {
	replacer := strings.NewReplacer(
		"RTK", "are tee kay",
		"GPS", "gee pee ess",
		"UAV", "you ay vee",
		"*", "",
		"#", "",
	)
	return replacer.Replace(text)
}
