package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"text-assistant/internal/domain"
)

type Commander interface {
	SendCommand(ctx context.Context, text string) (domain.AssistResult, error)
}

// SessionFactory builds a session once every artifact is present. The closer
// releases the transport.
type SessionFactory func(ctx context.Context) (Commander, io.Closer, error)

type Resetter interface {
	Reset() error
}

// Assistant is the surface front ends consume: readiness, setup, commands and
// reset.
type Assistant struct {
	setup  *Setup
	store  Resetter
	open   SessionFactory
	logger *slog.Logger

	mu      sync.Mutex
	session Commander
	closer  io.Closer
}

func NewAssistant(setup *Setup, store Resetter, open SessionFactory, logger *slog.Logger) *Assistant {
	return &Assistant{
		setup:  setup,
		store:  store,
		open:   open,
		logger: logger,
	}
}

func (a *Assistant) CheckReadiness() domain.ReadinessStatus {
	return a.setup.CheckReadiness()
}

func (a *Assistant) SetupState() SetupOutcome {
	return a.setup.State()
}

func (a *Assistant) RunSetup(ctx context.Context, progress func(SetupProgress)) SetupOutcome {
	return a.setup.Run(ctx, progress)
}

func (a *Assistant) SendCommand(ctx context.Context, text string) (domain.AssistResult, error) {
	session, err := a.ensureSession(ctx)
	if err != nil {
		return domain.AssistResult{}, err
	}
	return session.SendCommand(ctx, text)
}

func (a *Assistant) ensureSession(ctx context.Context) (Commander, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil {
		return a.session, nil
	}

	if status := a.setup.CheckReadiness(); !status.Ready() {
		return nil, domain.NewError(domain.KindNotReady, "run setup first", nil)
	}

	session, closer, err := a.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}

	a.logger.Info("assistant session initialized")
	a.session = session
	a.closer = closer
	return session, nil
}

// ResetRegistration drops the session and deletes the token and device
// identity. The next readiness check reports the device as missing.
func (a *Assistant) ResetRegistration() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closeSessionLocked()

	if err := a.store.Reset(); err != nil {
		return fmt.Errorf("resetting registration: %w", err)
	}

	a.logger.Info("device registration reset")
	return nil
}

func (a *Assistant) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closeSessionLocked()
	return nil
}

func (a *Assistant) closeSessionLocked() {
	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			a.logger.Warn("closing session", "error", err)
		}
	}
	a.session = nil
	a.closer = nil
}
