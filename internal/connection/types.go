package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmer/wsbridge/internal/transport"
)

// Errors
var (
	ErrNoActiveConnection = errors.New("no active connection")
	ErrAlreadyConnected   = errors.New("already connected")
)

// Close defaults used when Disconnect is called with zero values.
const (
	DefaultCloseCode   = 1000 // normal closure
	DefaultCloseReason = "Closing connection"
)

// Phase is the lifecycle phase of a Connection.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseConnecting
	PhaseOpen
	PhaseClosing
	PhaseClosed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseConnecting:
		return "connecting"
	case PhaseOpen:
		return "open"
	case PhaseClosing:
		return "closing"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind tags an Event variant.
type EventKind int

const (
	KindCreated EventKind = iota + 1
	KindConnected
	KindDisconnected
	KindFrame
	KindUnrecognized
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindConnected:
		return "connected"
	case KindDisconnected:
		return "disconnected"
	case KindFrame:
		return "frame"
	case KindUnrecognized:
		return "unrecognized"
	default:
		return "unknown"
	}
}

// Event is one entry on the manager's event stream. Fields beyond Kind are
// populated per variant: Protocol for Connected, Code/Reason for
// Disconnected, Frame for Frame events. Session identifies which logical
// connection produced the event (zero for the initial Created).
type Event struct {
	Kind     EventKind
	Session  uuid.UUID
	Protocol string
	Code     int
	Reason   string
	Frame    transport.Frame
	At       time.Time
}

// Text returns the frame payload as a string. Only meaningful for text
// frame events.
func (e Event) Text() string {
	return string(e.Frame.Data)
}

// Pending is a one-shot result for an in-flight send or ping. It resolves
// exactly once; read Err only after Done is closed.
type Pending struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// resolve completes the operation. Later calls are ignored.
func (p *Pending) resolve(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done returns a channel closed when the operation has resolved.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Err returns the operation result. Valid only after Done is closed.
func (p *Pending) Err() error {
	return p.err
}

// Wait blocks until the operation resolves or the context expires.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// SendResolveDelay is the fixed delay applied between the underlying
	// submit completing and the Pending resolving. Decouples caller-observed
	// completion from wire completion; set to zero to resolve immediately.
	SendResolveDelay time.Duration
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SendResolveDelay: time.Second,
	}
}
