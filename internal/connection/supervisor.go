package connection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jpalmer/wsbridge/internal/transport"
)

// SupervisorConfig controls redial backoff.
type SupervisorConfig struct {
	BaseDelay time.Duration // first redial wait
	MaxDelay  time.Duration // backoff ceiling

	// OnRedial, if set, is called before every dial attempt after the
	// first. Used for instrumentation.
	OnRedial func()
}

// DefaultSupervisorConfig returns sensible defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		BaseDelay: time.Second,
		MaxDelay:  60 * time.Second,
	}
}

// Supervisor keeps a Manager connected to one target: it dials, watches the
// event stream for the session's Disconnected event, and redials with
// exponential backoff. The Manager itself never reconnects on its own.
type Supervisor struct {
	cfg    SupervisorConfig
	mgr    *Manager
	logger *slog.Logger
}

// NewSupervisor creates a Supervisor. A nil logger falls back to
// slog.Default().
func NewSupervisor(cfg SupervisorConfig, mgr *Manager, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = DefaultSupervisorConfig().BaseDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = DefaultSupervisorConfig().MaxDelay
	}
	return &Supervisor{cfg: cfg, mgr: mgr, logger: logger}
}

// Run blocks until the context is cancelled, disconnecting the manager on
// the way out. Returns the context error, or ErrAlreadyConnected if the
// manager was connected by someone else.
func (s *Supervisor) Run(ctx context.Context, req transport.Request) error {
	sub := s.mgr.Events()
	defer sub.Cancel()

	delay := s.cfg.BaseDelay

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt > 0 && s.cfg.OnRedial != nil {
			s.cfg.OnRedial()
		}

		if err := s.mgr.Connect(ctx, req); err != nil {
			if errors.Is(err, ErrAlreadyConnected) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			s.logger.Warn("dial failed, backing off",
				"url", req.URL,
				"wait", delay,
				"error", err,
			)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}

			delay *= 2
			if delay > s.cfg.MaxDelay {
				delay = s.cfg.MaxDelay
			}
			continue
		}

		delay = s.cfg.BaseDelay
		sessionID, _ := s.mgr.CurrentSession()

		// Wait for this session to end. Events replayed from earlier
		// sessions are skipped by ID.
		for ended := false; !ended; {
			select {
			case <-ctx.Done():
				s.mgr.Disconnect(0, "")
				return ctx.Err()
			case ev, ok := <-sub.C():
				if !ok {
					return nil
				}
				if ev.Kind == KindDisconnected && ev.Session == sessionID {
					s.logger.Info("session ended, redialing",
						"session", sessionID,
						"code", ev.Code,
						"reason", ev.Reason,
					)
					ended = true
				}
			}
		}
	}
}
