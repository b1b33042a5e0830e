package replay

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePublisher struct {
	mu     sync.Mutex
	topics []string

	// delayClock/delayOnCall, when set, advance delayClock's virtual time
	// by the given amount the first time Publish is called at that index
	// (0-based), simulating a slow publish before the next slot is timed.
	delayClock  *fakeClock
	delayOnCall int
	delayBy     time.Duration
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	idx := len(p.topics)
	p.topics = append(p.topics, topic)
	p.mu.Unlock()

	if p.delayClock != nil && idx == p.delayOnCall {
		p.delayClock.mu.Lock()
		p.delayClock.t = p.delayClock.t.Add(p.delayBy)
		p.delayClock.mu.Unlock()
	}
	return nil
}

// fakeClock lets a test drive wall time deterministically: Now() returns
// a virtual clock that Sleep() advances. fakePublisher's delay fields
// advance the same clock to simulate the publisher falling behind.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{t: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
}

func TestRunPreservesOrderingAndAppliesSpeedFactor(t *testing.T) {
	// Spec §8 scenario 6: two records at log t=0 and t=10s, speed=2.0 ->
	// second emission occurs ~5s after the first.
	log := `{"ts":0,"topic":"thing/product/AAAA/osd","data":{}}
{"ts":10,"topic":"thing/product/AAAA/osd","data":{}}
`
	pub := &fakePublisher{}
	clk := newFakeClock(time.Unix(0, 0))
	e := &Engine{Publisher: pub, Speed: 2.0, Clock: clk, Log: discardLogger()}

	if err := e.Run(context.Background(), strings.NewReader(log)); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(pub.topics) != 2 {
		t.Fatalf("expected 2 published records, got %d", len(pub.topics))
	}
	if len(clk.sleeps) != 1 {
		t.Fatalf("expected exactly 1 sleep between 2 records, got %d", len(clk.sleeps))
	}
	got := clk.sleeps[0]
	want := 5 * time.Second
	if diff := got - want; diff > 100*time.Millisecond || diff < -100*time.Millisecond {
		t.Errorf("sleep = %v, want ~%v", got, want)
	}
}

func TestRunDriftCorrectsWhenPublisherFallsBehind(t *testing.T) {
	// Spec §8 scenario 6: if the publisher is slowed by 2s on the first
	// emission, the second must still occur at <=5s after it (catches up,
	// never overshoots).
	logText := `{"ts":0,"topic":"thing/product/AAAA/osd","data":{}}
{"ts":10,"topic":"thing/product/AAAA/osd","data":{}}
`
	clk := newFakeClock(time.Unix(0, 0))
	pub := &fakePublisher{delayClock: clk, delayOnCall: 0, delayBy: 2 * time.Second}

	e := &Engine{Publisher: pub, Speed: 2.0, Clock: clk, Log: discardLogger()}
	if err := e.Run(context.Background(), strings.NewReader(logText)); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(clk.sleeps) != 1 {
		t.Fatalf("expected 1 sleep, got %d", len(clk.sleeps))
	}
	if clk.sleeps[0] > 5*time.Second {
		t.Errorf("sleep = %v, want <= 5s (drift correction must not overshoot)", clk.sleeps[0])
	}
}

func TestRunSkipsMalformedLines(t *testing.T) {
	logText := "not json\n" + `{"ts":0,"topic":"owntracks/rw","data":{}}` + "\n"
	pub := &fakePublisher{}
	clk := newFakeClock(time.Unix(0, 0))
	e := &Engine{Publisher: pub, Speed: 1.0, Clock: clk, Log: discardLogger()}

	if err := e.Run(context.Background(), strings.NewReader(logText)); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(pub.topics) != 1 {
		t.Fatalf("expected 1 valid record published, got %d", len(pub.topics))
	}
}

func TestJumpToActionSkipsToPreRollBeforeVendorTopic(t *testing.T) {
	logText := `{"ts":0,"topic":"owntracks/rw","data":{}}
{"ts":50,"topic":"owntracks/rw","data":{}}
{"ts":100,"topic":"thing/product/AAAA/osd","data":{}}
{"ts":102,"topic":"thing/product/AAAA/osd","data":{}}
`
	pub := &fakePublisher{}
	clk := newFakeClock(time.Unix(0, 0))
	e := &Engine{Publisher: pub, Speed: 1.0, JumpToAction: true, Clock: clk, Log: discardLogger()}

	if err := e.Run(context.Background(), strings.NewReader(logText)); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	// ts=100 - 5s preroll = 95; the first record at ts>=95 is the one at ts=100.
	if len(pub.topics) != 2 {
		t.Fatalf("expected jump to skip the two owntracks records, got %d published", len(pub.topics))
	}
}

func TestJumpToActionFallsBackToFileStartWhenNoVendorTopic(t *testing.T) {
	logText := `{"ts":0,"topic":"owntracks/rw","data":{}}
{"ts":10,"topic":"dronetag/x","data":{}}
`
	pub := &fakePublisher{}
	clk := newFakeClock(time.Unix(0, 0))
	e := &Engine{Publisher: pub, Speed: 1.0, JumpToAction: true, Clock: clk, Log: discardLogger()}

	if err := e.Run(context.Background(), strings.NewReader(logText)); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(pub.topics) != 2 {
		t.Fatalf("expected replay from file start, got %d published", len(pub.topics))
	}
}
