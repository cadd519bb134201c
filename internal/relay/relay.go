package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/jpalmer/wsbridge/internal/connection"
	"github.com/jpalmer/wsbridge/internal/metrics"
	"github.com/jpalmer/wsbridge/internal/stream"
)

// ErrNotConnected is returned when publishing without a NATS connection.
var ErrNotConnected = errors.New("relay: nats client not connected")

// Config contains relay settings.
type Config struct {
	// InstanceID is used as the NATS client name and carried in every message.
	InstanceID string

	// URL is the NATS server address.
	URL string

	// SubjectPrefix is prepended to every published subject.
	SubjectPrefix string

	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SubjectPrefix:  "ws",
		ConnectTimeout: 5 * time.Second,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
	}
}

// message is the JSON envelope published for each event.
type message struct {
	Instance  string    `json:"instance"`
	SessionID string    `json:"session_id,omitempty"`
	Kind      string    `json:"kind"`
	Protocol  string    `json:"protocol,omitempty"`
	Code      int       `json:"code,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	FrameKind string    `json:"frame_kind,omitempty"`
	Payload   []byte    `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

// Metrics contains relay counters.
type Metrics struct {
	Published int64
	Errors    int64
}

// Publisher republishes stream events to NATS subjects.
type Publisher struct {
	cfg    Config
	logger *slog.Logger

	// Input from the manager's event stream
	input *stream.Subscription[connection.Event]

	nc *nats.Conn

	mu        sync.Mutex
	connected bool
	metrics   Metrics

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPublisher creates a relay consuming the given subscription. Call
// Connect before Start.
func NewPublisher(cfg Config, input *stream.Subscription[connection.Event], logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:    cfg,
		input:  input,
		logger: logger,
	}
}

// Connect establishes the NATS connection.
func (p *Publisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.nc != nil && p.nc.IsConnected() {
		return nil
	}

	opts := []nats.Option{
		nats.Name(p.cfg.InstanceID),
		nats.Timeout(p.cfg.ConnectTimeout),
		nats.ReconnectWait(p.cfg.ReconnectWait),
		nats.MaxReconnects(p.cfg.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.ClosedHandler(func(nc *nats.Conn) {
			p.logger.Error("nats connection closed")
			p.setConnected(false)
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			p.logger.Warn("nats disconnected, reconnecting", "error", err)
			p.setConnected(false)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			p.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			p.setConnected(true)
		}),
	}

	nc, err := nats.Connect(p.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}

	p.nc = nc
	p.connected = true
	p.logger.Info("connected to nats", "url", nc.ConnectedUrl())
	return nil
}

// Start begins consuming events and publishing them.
func (p *Publisher) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.consumeLoop()

	p.logger.Info("relay started", "subject_prefix", p.cfg.SubjectPrefix)
	return nil
}

// Stop gracefully shuts down the relay.
func (p *Publisher) Stop(ctx context.Context) error {
	p.logger.Info("stopping relay")

	if p.cancel != nil {
		p.cancel()
	}
	p.input.Cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("relay stop timed out")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nc != nil {
		p.nc.Flush()
		p.nc.Close()
		p.nc = nil
		p.connected = false
	}

	p.logger.Info("relay stopped")
	return nil
}

// Stats returns current counters.
func (p *Publisher) Stats() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// IsConnected reports whether the NATS connection is up.
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// consumeLoop reads events and publishes them.
func (p *Publisher) consumeLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case ev, ok := <-p.input.C():
			if !ok {
				return
			}
			if err := p.PublishEvent(ev); err != nil {
				p.logger.Error("relay publish failed",
					"error", err,
					"kind", ev.Kind,
				)
			}
		}
	}
}

// PublishEvent encodes an event and publishes it to its subject.
func (p *Publisher) PublishEvent(ev connection.Event) error {
	data, err := json.Marshal(p.transform(ev))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.Publish(SubjectFor(p.cfg.SubjectPrefix, ev.Kind), data)
}

// Publish sends raw data to a NATS core subject. Fire-and-forget.
func (p *Publisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	nc, connected := p.nc, p.connected
	p.mu.Unlock()

	if nc == nil || !connected {
		p.countError()
		return ErrNotConnected
	}
	if err := nc.Publish(subject, data); err != nil {
		p.countError()
		return err
	}

	p.mu.Lock()
	p.metrics.Published++
	p.mu.Unlock()

	metrics.RelayPublishedTotal.Inc()
	return nil
}

func (p *Publisher) countError() {
	p.mu.Lock()
	p.metrics.Errors++
	p.mu.Unlock()
}

// transform converts an Event to the published envelope.
func (p *Publisher) transform(ev connection.Event) message {
	msg := message{
		Instance: p.cfg.InstanceID,
		Kind:     ev.Kind.String(),
		At:       ev.At,
	}
	if ev.Session != (uuid.UUID{}) {
		msg.SessionID = ev.Session.String()
	}

	switch ev.Kind {
	case connection.KindConnected:
		msg.Protocol = ev.Protocol
	case connection.KindDisconnected:
		msg.Code = ev.Code
		msg.Reason = ev.Reason
	case connection.KindFrame:
		msg.FrameKind = ev.Frame.Kind.String()
		msg.Payload = ev.Frame.Data
	}

	return msg
}

// SubjectFor derives the NATS subject for an event kind,
// e.g. "ws.frame" or "ws.disconnected".
func SubjectFor(prefix string, kind connection.EventKind) string {
	if prefix == "" {
		return kind.String()
	}
	return prefix + "." + kind.String()
}
