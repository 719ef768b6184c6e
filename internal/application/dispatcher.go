package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"text-assistant/internal/domain"
)

var (
	ErrBusy   = errors.New("operation already in progress")
	ErrClosed = errors.New("dispatcher closed")
)

type Op string

const (
	OpSetup   Op = "setup"
	OpCommand Op = "command"
)

// Event reports progress or the final result of a submitted operation.
// Exactly one final event (Progress == nil) is emitted per submission.
type Event struct {
	Op       Op
	Progress *SetupProgress
	Setup    *SetupOutcome
	Result   *domain.AssistResult
	Err      error
}

func (e Event) Final() bool {
	return e.Progress == nil
}

type Core interface {
	RunSetup(ctx context.Context, progress func(SetupProgress)) SetupOutcome
	SendCommand(ctx context.Context, text string) (domain.AssistResult, error)
}

// Dispatcher runs setup and commands off the caller's goroutine. Each
// operation class admits one submission at a time; results come back on
// Events.
type Dispatcher struct {
	core   Core
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	guards map[Op]*semaphore.Weighted

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(core Core, logger *slog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		core:   core,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, 16),
		guards: map[Op]*semaphore.Weighted{
			OpSetup:   semaphore.NewWeighted(1),
			OpCommand: semaphore.NewWeighted(1),
		},
	}
}

func (d *Dispatcher) Events() <-chan Event {
	return d.events
}

func (d *Dispatcher) Setup() error {
	return d.submit(OpSetup, func(ctx context.Context) {
		outcome := d.core.RunSetup(ctx, func(p SetupProgress) {
			d.emit(Event{Op: OpSetup, Progress: &p})
		})
		d.emit(Event{Op: OpSetup, Setup: &outcome, Err: outcome.Err})
	})
}

func (d *Dispatcher) Send(text string) error {
	return d.submit(OpCommand, func(ctx context.Context) {
		result, err := d.core.SendCommand(ctx, text)
		d.emit(Event{Op: OpCommand, Result: &result, Err: err})
	})
}

func (d *Dispatcher) submit(op Op, fn func(ctx context.Context)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	guard := d.guards[op]
	if !guard.TryAcquire(1) {
		d.logger.Warn("rejecting submission", "op", string(op), "error", ErrBusy)
		return ErrBusy
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer guard.Release(1)
		fn(d.ctx)
	}()

	return nil
}

func (d *Dispatcher) emit(e Event) {
	select {
	case d.events <- e:
	case <-d.ctx.Done():
	}
}

// Close cancels in-flight work, waits for it to return and closes Events.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	close(d.events)
}
