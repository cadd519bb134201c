package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DialConfig configures the gorilla-backed dialer.
type DialConfig struct {
	HandshakeTimeout time.Duration // Timeout for the HTTP upgrade
	WriteTimeout     time.Duration // Write deadline for submits and control frames
	ProbeTimeout     time.Duration // Default wait for a pong when the caller's context has no deadline
}

// DefaultDialConfig returns sensible defaults.
func DefaultDialConfig() DialConfig {
	return DialConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ProbeTimeout:     10 * time.Second,
	}
}

// WSDialer opens sessions over gorilla/websocket.
type WSDialer struct {
	cfg    DialConfig
	logger *slog.Logger
}

// NewWSDialer creates a dialer. A nil logger falls back to slog.Default().
func NewWSDialer(cfg DialConfig, logger *slog.Logger) *WSDialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultDialConfig().HandshakeTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultDialConfig().WriteTimeout
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = DefaultDialConfig().ProbeTimeout
	}
	return &WSDialer{cfg: cfg, logger: logger}
}

// OpenSession performs the upgrade and returns a live session.
// OnOpen has fired with the negotiated subprotocol by the time this returns.
func (d *WSDialer) OpenSession(ctx context.Context, req Request, cb Callbacks) (Session, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, req.URL, req.Header)
	if err != nil {
		return nil, err
	}

	s := &wsSession{
		cfg:    d.cfg,
		logger: d.logger,
		conn:   conn,
		cb:     cb,
		done:   make(chan struct{}),
	}

	// Reply to server pings and wake any probe waiting on a pong.
	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(d.cfg.WriteTimeout),
		)
	})
	conn.SetPongHandler(func(string) error {
		s.notifyPong()
		return nil
	})
	conn.SetCloseHandler(func(code int, text string) error {
		s.fireClose(code, text)
		// Echo the close frame per the default handler contract.
		msg := websocket.FormatCloseMessage(code, "")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(d.cfg.WriteTimeout))
		return nil
	})

	if cb.OnOpen != nil {
		cb.OnOpen(conn.Subprotocol())
	}

	d.logger.Debug("session opened", "url", req.URL, "protocol", conn.Subprotocol())

	return s, nil
}

// wsSession implements Session over a gorilla connection.
type wsSession struct {
	cfg    DialConfig
	logger *slog.Logger
	conn   *websocket.Conn
	cb     Callbacks

	// Write serialization
	writeMu sync.Mutex

	// Probe coordination
	pongMu      sync.Mutex
	pongWaiters []chan struct{}

	closeOnce sync.Once // guards OnClose
	mu        sync.Mutex
	closed    bool
	done      chan struct{}
}

// Submit writes one frame to the connection.
func (s *wsSession) Submit(ctx context.Context, frame Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrSessionClosed
	}

	msgType := websocket.TextMessage
	if frame.Kind == FrameBinary {
		msgType = websocket.BinaryMessage
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.conn.WriteMessage(msgType, frame.Data)
}

// Probe sends a ping and blocks until the peer answers with a pong.
func (s *wsSession) Probe(ctx context.Context) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	waiter := s.addPongWaiter()
	defer s.removePongWaiter(waiter)

	s.writeMu.Lock()
	err := s.conn.WriteControl(
		websocket.PingMessage,
		[]byte("keepalive"),
		time.Now().Add(s.cfg.WriteTimeout),
	)
	s.writeMu.Unlock()
	if err != nil {
		return err
	}

	timeout := time.NewTimer(s.cfg.ProbeTimeout)
	defer timeout.Stop()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	case <-timeout.C:
		return ErrPongTimeout
	}
}

// ReceiveOnce blocks for the next data frame. A remote close, clean or
// abrupt, fires OnClose exactly once; a clean close surfaces
// ErrSessionClosed.
func (s *wsSession) ReceiveOnce(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	msgType, data, err := s.conn.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			// Covers both a received close frame and an abrupt teardown,
			// which gorilla reports as CloseError 1006 without invoking
			// the close handler. fireClose dedupes against the handler.
			s.fireClose(ce.Code, ce.Text)
			return Frame{}, ErrSessionClosed
		}
		select {
		case <-s.done:
			return Frame{}, ErrSessionClosed
		default:
			// Read failure on a live session: the connection is gone even
			// though no close frame arrived.
			s.fireClose(websocket.CloseAbnormalClosure, err.Error())
			return Frame{}, err
		}
	}

	switch msgType {
	case websocket.TextMessage:
		return Frame{Kind: FrameText, Data: data}, nil
	case websocket.BinaryMessage:
		return Frame{Kind: FrameBinary, Data: data}, nil
	default:
		return Frame{Kind: 0, Data: data}, nil
	}
}

// Close sends a close message and drops the connection. Idempotent.
// Locally initiated closes do not fire OnClose; the caller owns that
// lifecycle transition.
func (s *wsSession) Close(code int, reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.closeOnce.Do(func() {}) // suppress a late OnClose from the read side

	s.writeMu.Lock()
	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(s.cfg.WriteTimeout),
	)
	s.writeMu.Unlock()

	return s.conn.Close()
}

func (s *wsSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *wsSession) fireClose(code int, reason string) {
	s.closeOnce.Do(func() {
		if s.cb.OnClose != nil {
			s.cb.OnClose(code, reason)
		}
	})
}

func (s *wsSession) addPongWaiter() chan struct{} {
	ch := make(chan struct{}, 1)
	s.pongMu.Lock()
	s.pongWaiters = append(s.pongWaiters, ch)
	s.pongMu.Unlock()
	return ch
}

func (s *wsSession) removePongWaiter(ch chan struct{}) {
	s.pongMu.Lock()
	defer s.pongMu.Unlock()
	for i, w := range s.pongWaiters {
		if w == ch {
			s.pongWaiters = append(s.pongWaiters[:i], s.pongWaiters[i+1:]...)
			return
		}
	}
}

func (s *wsSession) notifyPong() {
	s.pongMu.Lock()
	defer s.pongMu.Unlock()
	for _, w := range s.pongWaiters {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}
