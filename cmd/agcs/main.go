// Command agcs is the Autonomous Ground Control Station process: it
// subscribes to vendor/operator/remote-ID telemetry over MQTT, maintains
// the in-memory fleet table, runs the periodic SITREP engine against a
// local or cloud LLM, records a forensic log, audits every SITREP that
// returns a report or fails (timed-out ticks are not audited), and
// optionally serves a live tactical map over websockets — or, given
// --replay_path, republishes a forensic log instead of listening live.
//
// Generalized from the teacher (billglover-go-adsb-console)'s main.go:
// flag parsing, a signal-driven cancellable context, and one goroutine
// per subsystem. golang.org/x/sync/errgroup (mmp-vice's dependency)
// replaces the teacher's bare `go func(){...}()` fan-out so a fatal
// subsystem error unwinds the whole process instead of leaking a
// goroutine silently.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/securingskies/agcs/internal/audit"
	"github.com/securingskies/agcs/internal/bridge"
	"github.com/securingskies/agcs/internal/broker"
	"github.com/securingskies/agcs/internal/config"
	"github.com/securingskies/agcs/internal/decode"
	"github.com/securingskies/agcs/internal/fleet"
	"github.com/securingskies/agcs/internal/ingest"
	"github.com/securingskies/agcs/internal/metrics"
	"github.com/securingskies/agcs/internal/persona"
	"github.com/securingskies/agcs/internal/recorder"
	"github.com/securingskies/agcs/internal/replay"
	"github.com/securingskies/agcs/internal/sitrep"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	flagSet := pflag.NewFlagSet("agcs", pflag.ContinueOnError)
	flagSet.String("replay_path", "", "path to a forensic log to replay instead of listening live")
	flagSet.Float64("replay_speed", 1.0, "replay speed factor")
	flagSet.Bool("jump_to_action", false, "skip replay to shortly before the first vendor-UAV packet")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, err := config.Load(flagSet)
	if err != nil {
		log.Error("configuration error", "error", err)
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		select {
		case <-sigCh:
			log.Info("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	defer cancel()

	if err := runServer(ctx, cfg, log); err != nil {
		log.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func runServer(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	fl := fleet.New()

	rec := recorder.New(".", cfg.RecordEnabled, time.Now(), log)
	defer rec.Close()

	aud := audit.New(".", cfg.MetricsEnabled, time.Now(), log)
	defer aud.Close()

	reg := prometheus.NewRegistry()
	coll := metrics.New(reg)

	eg, egCtx := errgroup.WithContext(ctx)

	if cfg.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: ":9090", Handler: mux}
		eg.Go(func() error { return serveUntilDone(egCtx, srv, log, "metrics") })
	}

	var hub *bridge.Hub
	if cfg.BridgeEnabled {
		hub = bridge.NewHub(log)
		mux := http.NewServeMux()
		mux.Handle("/live", hub)
		srv := &http.Server{Addr: ":9091", Handler: mux}
		eg.Go(func() error { return serveUntilDone(egCtx, srv, log, "bridge") })
	}

	prompt := persona.Load(".", persona.Name(cfg.Persona))

	client, err := buildLLMClient(cfg)
	if err != nil {
		return fmt.Errorf("agcs: building LLM client: %w", err)
	}

	auditAdapter := &sitrepAuditAdapter{inner: aud, metrics: coll}

	callTimeout := sitrep.LocalTimeout
	if cfg.LLMProvider == "cloud" {
		callTimeout = sitrep.CloudTimeout
	}

	engine := sitrep.New(fl, prompt, client, auditAdapter, sitrep.NullSink{}, sitrep.Config{
		Interval:    time.Duration(cfg.SitrepIntervalS) * time.Second,
		StaleAfter:  time.Duration(cfg.StaleThresholdS) * time.Second,
		HomeBase:    sitrep.LatLon{Lat: cfg.HomeBase.Lat, Lon: cfg.HomeBase.Lon},
		CallTimeout: callTimeout,
	}, log)
	eg.Go(func() error {
		engine.Run(egCtx)
		return nil
	})

	if cfg.ReplayPath != "" {
		eg.Go(func() error { return runReplay(egCtx, cfg, log) })
	} else {
		eg.Go(func() error { return runLive(egCtx, cfg, fl, rec, hub, log) })
	}

	return eg.Wait()
}

// runLive connects to the broker and dispatches inbound telemetry to the
// fleet table and (if enabled) the live feed bridge, until ctx is
// cancelled.
func runLive(ctx context.Context, cfg config.Config, fl *fleet.State, rec *recorder.Recorder, hub *bridge.Hub, log *slog.Logger) error {
	client, err := broker.Connect(broker.Config{
		Host:     cfg.BrokerHost,
		Port:     cfg.BrokerPort,
		TLS:      cfg.TLS,
		Username: cfg.Username,
		Password: cfg.Password,
		ClientID: "agcs-ingest",
	}, log)
	if err != nil {
		return fmt.Errorf("agcs: connecting to broker: %w", err)
	}
	defer client.Disconnect(5 * time.Second)

	dispatcher := ingest.New(fl, rec, log, time.Now, decode.Options{TrafficClasses: cfg.TrafficClasses})
	if err := dispatcher.Start(client); err != nil {
		return fmt.Errorf("agcs: subscribing: %w", err)
	}

	if hub != nil {
		go pushLiveFeed(ctx, fl, hub, cfg)
	}

	<-ctx.Done()
	return nil
}

// pushLiveFeed polls the fleet snapshot at a fixed cadence and forwards
// each record to the live feed bridge (spec §4.9's bridge is a secondary
// consumer, not a fleet-table writer).
func pushLiveFeed(ctx context.Context, fl *fleet.State, hub *bridge.Hub, cfg config.Config) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	staleAfter := time.Duration(cfg.StaleThresholdS) * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, entry := range fl.Snapshot(time.Now(), staleAfter) {
				hub.Push(entry.Record)
			}
		}
	}
}

// runReplay republishes a forensic log against the configured broker
// instead of listening live (spec §4.8), as selected by --replay_path and
// paced by --replay_speed and --jump_to_action.
func runReplay(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	client, err := broker.Connect(broker.Config{
		Host:     cfg.BrokerHost,
		Port:     cfg.BrokerPort,
		TLS:      cfg.TLS,
		Username: cfg.Username,
		Password: cfg.Password,
		ClientID: "agcs-replay",
	}, log)
	if err != nil {
		return fmt.Errorf("agcs: connecting to broker for replay: %w", err)
	}
	defer client.Disconnect(5 * time.Second)

	f, err := os.Open(cfg.ReplayPath)
	if err != nil {
		return fmt.Errorf("agcs: opening replay log: %w", err)
	}
	defer f.Close()

	engine := replay.New(client, cfg.ReplaySpeed, cfg.JumpToAction, log)
	return engine.Run(ctx, f)
}

func buildLLMClient(cfg config.Config) (sitrep.Client, error) {
	switch cfg.LLMProvider {
	case "cloud":
		return sitrep.NewCloudClient(cfg.LLMEndpoint, cfg.LLMModel, cfg.APIKey), nil
	case "local":
		return sitrep.NewLocalClient(cfg.LLMEndpoint, cfg.LLMModel), nil
	default:
		return nil, fmt.Errorf("agcs: unknown llm_provider %q", cfg.LLMProvider)
	}
}

// serveUntilDone runs srv until ctx is cancelled, then shuts it down
// gracefully. A bind failure is fatal (spec §7 "cannot bind... exit 1");
// a clean shutdown returns nil.
func serveUntilDone(ctx context.Context, srv *http.Server, log *slog.Logger, name string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("agcs: %s server: %w", name, err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// sitrepAuditAdapter forwards a sitrep.AuditInput to audit.Auditor
// (which accepts the structurally-identical but separately-defined
// audit.Input, to avoid an import cycle between sitrep and audit) and
// mirrors the resulting scores onto the Prometheus gauges.
type sitrepAuditAdapter struct {
	inner   *audit.Auditor
	metrics *metrics.Collectors
}

func (a *sitrepAuditAdapter) Audit(in sitrep.AuditInput) {
	auditInput := audit.Input{
		StartTime:    in.StartTime,
		ContextLines: in.ContextLines,
		Text:         in.Text,
		Model:        in.Model,
	}
	row := audit.Score(auditInput)
	a.inner.Audit(auditInput)
	a.metrics.ObserveAuditRow(row.Recall, row.Factuality, row.Hallucination, row.Safety)
}
