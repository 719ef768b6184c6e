package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"text-assistant/internal/application"
	"text-assistant/internal/domain"
)

const Prompt = "Enter your command (or 'exit' to quit): "

type Dispatch interface {
	Setup() error
	Send(text string) error
	Events() <-chan application.Event
}

// REPL reads one command per line and waits for its result before prompting
// again.
type REPL struct {
	in       io.Reader
	out      io.Writer
	dispatch Dispatch
	logger   *slog.Logger
}

func NewREPL(in io.Reader, out io.Writer, dispatch Dispatch, logger *slog.Logger) *REPL {
	return &REPL{
		in:       in,
		out:      out,
		dispatch: dispatch,
		logger:   logger,
	}
}

// Run returns nil on "exit", end of input or cancellation.
func (r *REPL) Run(ctx context.Context) error {
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			r.logger.Warn("reading input", "error", err)
		}
	}()

	for {
		fmt.Fprint(r.out, "\n"+Prompt)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
			line = l
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if strings.EqualFold(text, "exit") {
			fmt.Fprintln(r.out, "Exiting...")
			return nil
		}

		if err := r.dispatch.Send(text); err != nil {
			fmt.Fprintln(r.out, RenderError(err))
			continue
		}
		fmt.Fprintln(r.out, "Sending command to Assistant...")

		if _, ok := awaitFinal(ctx, r.dispatch, application.OpCommand, r.out); !ok {
			return nil
		}
	}
}

// awaitFinal prints events until the final one for op, which it returns. ok is
// false when ctx ends or the event stream closes first.
func awaitFinal(ctx context.Context, dispatch Dispatch, op application.Op, out io.Writer) (final application.Event, ok bool) {
	for {
		select {
		case <-ctx.Done():
			return application.Event{}, false
		case e, open := <-dispatch.Events():
			if !open {
				return application.Event{}, false
			}
			if e.Op != op {
				continue
			}
			if !e.Final() {
				fmt.Fprintln(out, RenderProgress(*e.Progress))
				continue
			}
			printFinal(out, e)
			return e, true
		}
	}
}

func printFinal(out io.Writer, e application.Event) {
	switch {
	case e.Setup != nil:
		fmt.Fprintln(out, RenderOutcome(*e.Setup))
	case e.Err != nil:
		fmt.Fprintln(out, RenderError(e.Err))
	case e.Result != nil:
		fmt.Fprintln(out, RenderResult(*e.Result))
	}
}

// RunSetup submits setup and prints its progress until the outcome arrives.
func RunSetup(ctx context.Context, dispatch Dispatch, out io.Writer) (application.SetupOutcome, error) {
	if err := dispatch.Setup(); err != nil {
		return application.SetupOutcome{}, err
	}

	e, ok := awaitFinal(ctx, dispatch, application.OpSetup, out)
	if !ok {
		return application.SetupOutcome{}, interrupted(ctx)
	}
	return *e.Setup, nil
}

// Ask sends one command, prints the result and returns the command error. A
// reply without audio is informational and returns nil once printed.
func Ask(ctx context.Context, dispatch Dispatch, out io.Writer, text string) error {
	if err := dispatch.Send(text); err != nil {
		return err
	}

	e, ok := awaitFinal(ctx, dispatch, application.OpCommand, out)
	if !ok {
		return interrupted(ctx)
	}
	if errors.Is(e.Err, domain.ErrNoAudioResponse) {
		return nil
	}
	return e.Err
}

func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return application.ErrClosed
}
