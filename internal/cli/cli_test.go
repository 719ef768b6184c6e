package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text-assistant/internal/application"
	"text-assistant/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedDispatch answers each Send with the next scripted error, or a
// result echoing the text.
type scriptedDispatch struct {
	events  chan application.Event
	sendErr error
	errs    []error

	mu   sync.Mutex
	sent []string
}

func newScriptedDispatch() *scriptedDispatch {
	return &scriptedDispatch{events: make(chan application.Event, 8)}
}

func (d *scriptedDispatch) Events() <-chan application.Event { return d.events }

func (d *scriptedDispatch) Send(text string) error {
	if d.sendErr != nil {
		return d.sendErr
	}
	d.mu.Lock()
	d.sent = append(d.sent, text)
	var err error
	if len(d.errs) > 0 {
		err, d.errs = d.errs[0], d.errs[1:]
	}
	d.mu.Unlock()

	result := domain.AssistResult{DisplayText: "echo " + text, Audio: []byte{1, 2}}
	d.events <- application.Event{Op: application.OpCommand, Result: &result, Err: err}
	return nil
}

func (d *scriptedDispatch) Setup() error {
	d.events <- application.Event{
		Op:       application.OpSetup,
		Progress: &application.SetupProgress{Phase: application.PhaseSchemaMissing, Message: "generating protocol schema"},
	}
	d.events <- application.Event{Op: application.OpSetup, Setup: &application.SetupOutcome{Phase: application.PhaseComplete}}
	return nil
}

func (d *scriptedDispatch) Sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

func TestREPL_SendsCommandsUntilExit(t *testing.T) {
	d := newScriptedDispatch()
	var out bytes.Buffer
	in := strings.NewReader("what time is it\n\n   \nEXIT\nnever sent\n")

	require.NoError(t, NewREPL(in, &out, d, discardLogger()).Run(context.Background()))

	assert.Equal(t, []string{"what time is it"}, d.Sent())
	assert.Contains(t, out.String(), Prompt)
	assert.Contains(t, out.String(), "Assistant: echo what time is it")
	assert.Contains(t, out.String(), "Exiting...")
}

func TestREPL_EndOfInput(t *testing.T) {
	d := newScriptedDispatch()
	var out bytes.Buffer

	require.NoError(t, NewREPL(strings.NewReader("hello"), &out, d, discardLogger()).Run(context.Background()))

	assert.Equal(t, []string{"hello"}, d.Sent())
}

func TestREPL_ErrorsDoNotEndTheLoop(t *testing.T) {
	d := newScriptedDispatch()
	d.errs = []error{
		domain.NewError(domain.KindNoAudioResponse, "no audio response received", nil),
		domain.NewError(domain.KindTransport, "", errors.New("connection reset")),
	}
	var out bytes.Buffer

	require.NoError(t, NewREPL(strings.NewReader("one\ntwo\nthree\nexit\n"), &out, d, discardLogger()).Run(context.Background()))

	assert.Equal(t, []string{"one", "two", "three"}, d.Sent())
	assert.Contains(t, out.String(), "No audio response received.")
	assert.Contains(t, out.String(), "connection reset")
	assert.Contains(t, out.String(), "Assistant: echo three")
}

func TestREPL_StopsOnCancel(t *testing.T) {
	d := newScriptedDispatch()
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewREPL(pr, io.Discard, d, discardLogger()).Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("REPL did not stop")
	}
}

func TestAsk_ReturnsCommandError(t *testing.T) {
	d := newScriptedDispatch()
	d.errs = []error{domain.NewError(domain.KindRemote, "device not registered", nil)}
	var out bytes.Buffer

	err := Ask(context.Background(), d, &out, "hello")

	assert.ErrorIs(t, err, domain.ErrRemote)
	assert.Contains(t, out.String(), "device not registered")
}

func TestAsk_NoAudioIsNotAFailure(t *testing.T) {
	d := newScriptedDispatch()
	d.errs = []error{domain.NewError(domain.KindNoAudioResponse, "no audio response received", nil)}
	var out bytes.Buffer

	err := Ask(context.Background(), d, &out, "hello")

	assert.NoError(t, err)
	assert.Contains(t, out.String(), "No audio response received.")
}

func TestAsk_Busy(t *testing.T) {
	d := newScriptedDispatch()
	d.sendErr = application.ErrBusy

	err := Ask(context.Background(), d, io.Discard, "hello")
	assert.ErrorIs(t, err, application.ErrBusy)
}

func TestRunSetup_PrintsProgress(t *testing.T) {
	d := newScriptedDispatch()
	var out bytes.Buffer

	outcome, err := RunSetup(context.Background(), d, &out)
	require.NoError(t, err)

	assert.True(t, outcome.Complete())
	assert.Contains(t, out.String(), "[schema_missing] generating protocol schema")
	assert.Contains(t, out.String(), "Setup complete.")
}

func TestRenderReadiness(t *testing.T) {
	partial := RenderReadiness(domain.ReadinessStatus{ClientSecret: true, SchemaSource: true, SchemaDescriptor: true})
	assert.Contains(t, partial, "✓ credentials.json")
	assert.Contains(t, partial, "✗ device_config.json")
	assert.Contains(t, partial, "✗ token.json")
	assert.Contains(t, partial, "Run setup to finish.")

	ready := RenderReadiness(domain.ReadinessStatus{
		ClientSecret: true, Device: true, Token: true, SchemaSource: true, SchemaDescriptor: true,
	})
	assert.NotContains(t, ready, "✗")
	assert.Contains(t, ready, "Ready to accept commands.")

	empty := RenderReadiness(domain.ReadinessStatus{})
	assert.Contains(t, empty, "Download the OAuth client file")
}

func TestRenderError(t *testing.T) {
	assert.Contains(t, RenderError(domain.NewError(domain.KindNoAudioResponse, "", nil)), "No audio response received.")
	assert.Contains(t, RenderError(domain.NewError(domain.KindRefreshFailed, "", errors.New("boom"))), "you can try again")
	assert.NotContains(t, RenderError(domain.IOError("/tmp/x", errors.New("denied"))), "try again")
	assert.Contains(t, RenderError(domain.NewError(domain.KindNotReady, "run setup first", nil)), "Run setup first")
}
