package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmer/wsbridge/internal/stream"
	"github.com/jpalmer/wsbridge/internal/transport"
)

// Manager owns at most one transport session at a time and republishes its
// lifecycle and frames on a current-value event stream. Send and Ping run
// concurrently with the receive loop; Connect and Disconnect transitions
// are serialized against each other.
type Manager struct {
	cfg    ManagerConfig
	dialer transport.Dialer
	logger *slog.Logger
	events *stream.Stream[Event]

	// opMu serializes Connect/Disconnect transitions.
	opMu sync.Mutex

	// mu guards the connection fields below.
	mu         sync.RWMutex
	sess       transport.Session
	req        *transport.Request
	sessionID  uuid.UUID
	phase      Phase
	recvCancel context.CancelFunc
	recvDone   chan struct{}
}

// NewManager creates a Manager. A nil logger falls back to slog.Default().
func NewManager(cfg ManagerConfig, dialer transport.Dialer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		dialer: dialer,
		logger: logger,
		events: stream.New(Event{Kind: KindCreated, At: time.Now()}),
	}
}

// Connect opens a new session to the target. Fails with ErrAlreadyConnected
// while a session is held; callers must Disconnect first. On success the
// receive loop is running and a Connected event has been published.
func (m *Manager) Connect(ctx context.Context, req transport.Request) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	held := m.sess != nil
	m.mu.RUnlock()
	if held {
		return ErrAlreadyConnected
	}

	sessionID := uuid.New()
	m.setPhase(PhaseConnecting)

	cb := transport.Callbacks{
		OnOpen: func(protocol string) {
			m.setPhase(PhaseOpen)
			m.events.Publish(Event{
				Kind:     KindConnected,
				Session:  sessionID,
				Protocol: protocol,
				At:       time.Now(),
			})
		},
		OnClose: func(code int, reason string) {
			m.handleRemoteClose(sessionID, code, reason)
		},
	}

	sess, err := m.dialer.OpenSession(ctx, req, cb)
	if err != nil {
		m.setPhase(PhaseClosed)
		return err
	}

	recvCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	m.sess = sess
	m.req = &req
	m.sessionID = sessionID
	m.recvCancel = cancel
	m.recvDone = done
	m.mu.Unlock()

	go m.receiveLoop(recvCtx, sess, sessionID, done)

	m.logger.Debug("connected", "url", req.URL, "session", sessionID)

	return nil
}

// Disconnect requests graceful closure. Zero values select the defaults
// (code 1000, reason "Closing connection"). The session handle is cleared
// synchronously, so IsConnected reports false as soon as this returns, and
// no further events from the old receive loop are delivered after return.
// No-op when not connected.
func (m *Manager) Disconnect(code int, reason string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if code == 0 {
		code = DefaultCloseCode
	}
	if reason == "" {
		reason = DefaultCloseReason
	}

	m.mu.Lock()
	sess := m.sess
	if sess == nil {
		m.mu.Unlock()
		return nil
	}
	sessionID := m.sessionID
	cancel := m.recvCancel
	done := m.recvDone
	m.sess = nil
	m.req = nil
	m.recvCancel = nil
	m.recvDone = nil
	m.phase = PhaseClosing
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	// Closing the session unblocks the receive loop; the close handshake
	// itself may still complete in the background.
	err := sess.Close(code, reason)

	if done != nil {
		<-done
	}

	m.setPhase(PhaseClosed)
	m.events.Publish(Event{
		Kind:    KindDisconnected,
		Session: sessionID,
		Code:    code,
		Reason:  reason,
		At:      time.Now(),
	})

	m.logger.Debug("disconnected", "session", sessionID, "code", code, "reason", reason)

	return err
}

// IsConnected reports whether a session handle is currently held. It does
// not guarantee the socket is writable.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess != nil
}

// Phase returns the current lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// CurrentSession returns the ID of the held session, if any.
func (m *Manager) CurrentSession() (uuid.UUID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID, m.sess != nil
}

// Events subscribes to the event stream. The subscription immediately
// yields the most recent event (initially Created), then every subsequent
// event in order.
func (m *Manager) Events() *stream.Subscription[Event] {
	return m.events.Subscribe()
}

// Send submits a frame on the held session. Fails synchronously with
// ErrNoActiveConnection when no session is held. The returned Pending
// resolves with the transport's result after SendResolveDelay.
func (m *Manager) Send(frame transport.Frame) (*Pending, error) {
	m.mu.RLock()
	sess := m.sess
	m.mu.RUnlock()
	if sess == nil {
		return nil, ErrNoActiveConnection
	}

	p := newPending()
	go func() {
		err := sess.Submit(context.Background(), frame)
		if d := m.cfg.SendResolveDelay; d > 0 {
			time.Sleep(d)
		}
		p.resolve(err)
	}()

	return p, nil
}

// SendText submits a text frame.
func (m *Manager) SendText(s string) (*Pending, error) {
	return m.Send(transport.Text(s))
}

// SendBinary submits a binary frame.
func (m *Manager) SendBinary(b []byte) (*Pending, error) {
	return m.Send(transport.Binary(b))
}

// Ping sends a keepalive probe. Same connection gate as Send; resolves as
// soon as the transport acknowledges, with no artificial delay.
func (m *Manager) Ping() (*Pending, error) {
	m.mu.RLock()
	sess := m.sess
	m.mu.RUnlock()
	if sess == nil {
		return nil, ErrNoActiveConnection
	}

	p := newPending()
	go func() {
		p.resolve(sess.Probe(context.Background()))
	}()

	return p, nil
}

// Close disconnects if connected and terminates the event stream. The
// manager is unusable afterwards.
func (m *Manager) Close() error {
	err := m.Disconnect(0, "")
	m.events.Close()
	return err
}

// receiveLoop issues one receive at a time and publishes a Frame event per
// completion, in receipt order. It stops silently on receive error; a
// remote close is surfaced separately through the OnClose callback.
func (m *Manager) receiveLoop(ctx context.Context, sess transport.Session, sessionID uuid.UUID, done chan struct{}) {
	defer close(done)

	for {
		frame, err := sess.ReceiveOnce(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, transport.ErrSessionClosed) {
				m.logger.Warn("receive failed, stopping loop",
					"session", sessionID,
					"error", err,
				)
			}
			return
		}

		// Disconnect may have cancelled while the receive was in flight;
		// nothing may be published past that point.
		if ctx.Err() != nil {
			return
		}

		m.events.Publish(classify(sessionID, frame))
	}
}

// classify maps a received frame to its event variant.
func classify(sessionID uuid.UUID, frame transport.Frame) Event {
	ev := Event{
		Session: sessionID,
		At:      time.Now(),
	}
	switch frame.Kind {
	case transport.FrameText, transport.FrameBinary:
		ev.Kind = KindFrame
		ev.Frame = frame
	default:
		ev.Kind = KindUnrecognized
	}
	return ev
}

// handleRemoteClose reacts to the transport's close callback: clears the
// connection state if the session is still current and publishes
// Disconnected with the peer's code and reason.
func (m *Manager) handleRemoteClose(sessionID uuid.UUID, code int, reason string) {
	m.mu.Lock()
	if m.sess == nil || m.sessionID != sessionID {
		m.mu.Unlock()
		return
	}
	cancel := m.recvCancel
	m.sess = nil
	m.req = nil
	m.recvCancel = nil
	m.recvDone = nil
	m.phase = PhaseClosed
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	m.events.Publish(Event{
		Kind:    KindDisconnected,
		Session: sessionID,
		Code:    code,
		Reason:  reason,
		At:      time.Now(),
	})

	m.logger.Debug("remote close", "session", sessionID, "code", code, "reason", reason)
}

func (m *Manager) setPhase(p Phase) {
	m.mu.Lock()
	m.phase = p
	m.mu.Unlock()
}
