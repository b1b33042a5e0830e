// Package broker wraps github.com/eclipse/paho.mqtt.golang behind a small
// interface so the ingest dispatcher (C5) and the replay engine (C9) can
// share one transport and so tests can substitute an in-memory fake.
//
// Grounded on other_examples/manifests/LumenPrima-tr-engine's use of
// paho.mqtt.golang for MQTT ingest, and the teacher
// (billglover-go-adsb-console)'s updater.go pattern of an owned
// connection with a reconnect-on-close goroutine — reproduced here via
// paho's own auto-reconnect plus an OnConnectionLost handler that logs a
// single warning per transition (spec §7 "Transient network... Log once
// per transition").
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Message is one inbound packet handed to a Handler.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler processes one inbound message. It must not block on the LLM or
// any other slow suspension point (spec §9): "the callback is
// non-blocking and the LLM call is never made on the receive path."
type Handler func(Message)

// Client is the subset of broker behavior the rest of this repository
// depends on, letting tests substitute a fake without a real broker.
type Client interface {
	// Subscribe registers handler for every topic filter, QoS 0 (spec §6).
	Subscribe(filters []string, handler Handler) error
	// Publish sends one message at QoS 0.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Disconnect closes the connection, waiting up to the given grace
	// period for in-flight work to finish.
	Disconnect(grace time.Duration)
}

// Config holds the connection parameters from spec §6.
type Config struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	// ClientID distinguishes the ingest connection from the replay
	// connection when both run against the same broker (spec §5
	// "at most one replay session is active per broker").
	ClientID string
}

type pahoClient struct {
	inner mqtt.Client
	log   *slog.Logger
}

// Connect dials the broker with a 60s connect timeout and a 60s keep-alive
// (spec §5), matching the teacher's updater.go NotifyClose reconnection
// loop via paho's native auto-reconnect.
func Connect(cfg Config, log *slog.Logger) (Client, error) {
	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetConnectTimeout(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("broker: connected", "host", cfg.Host)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("broker: connection lost, reconnecting", "error", err)
	})

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(60 * time.Second) {
		return nil, fmt.Errorf("broker: connect timed out after 60s")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("broker: connect failed: %w", err)
	}

	return &pahoClient{inner: c, log: log}, nil
}

func (c *pahoClient) Subscribe(filters []string, handler Handler) error {
	for _, filter := range filters {
		token := c.inner.Subscribe(filter, 0, func(_ mqtt.Client, m mqtt.Message) {
			handler(Message{Topic: m.Topic(), Payload: m.Payload()})
		})
		if !token.WaitTimeout(60 * time.Second) {
			return fmt.Errorf("broker: subscribe to %q timed out", filter)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("broker: subscribe to %q failed: %w", filter, err)
		}
	}
	return nil
}

func (c *pahoClient) Publish(ctx context.Context, topic string, payload []byte) error {
	token := c.inner.Publish(topic, 0, false, payload)
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return token.Error()
	}
}

func (c *pahoClient) Disconnect(grace time.Duration) {
	c.inner.Disconnect(uint(grace.Milliseconds()))
}

// SubscriptionFilters is the fixed set of five wildcard topic families
// from spec §6.
var SubscriptionFilters = []string{
	"owntracks/#",
	"dronetag/#",
	"thing/product/+/osd",
	"thing/product/+/events",
	"thing/product/+/state",
	"thing/product/sn",
}
