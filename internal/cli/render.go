// Package cli is the terminal front end: readiness rendering, setup progress
// and the interactive command loop.
package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"text-assistant/internal/application"
	"text-assistant/internal/domain"
)

const (
	colorGreen   = "#50FA7B"
	colorRed     = "#FF5555"
	colorYellow  = "#F1FA8C"
	colorCyan    = "#8BE9FD"
	colorComment = "#6272A4"
)

type styles struct {
	heading, ok, missing, info, warning, error, hint lipgloss.Style
}

func newStyles() styles {
	return styles{
		heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorCyan)),
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)),
		missing: lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		info:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorCyan)),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorRed)),
		hint:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color(colorComment)),
	}
}

// RenderReadiness lists every artifact with a check or cross mark.
func RenderReadiness(status domain.ReadinessStatus) string {
	s := newStyles()
	var b strings.Builder

	b.WriteString(s.heading.Render("Setup status"))
	b.WriteByte('\n')
	for _, e := range status.Entries() {
		if e.Present {
			b.WriteString(s.ok.Render("  ✓ " + e.Name))
		} else {
			b.WriteString(s.missing.Render("  ✗ " + e.Name))
		}
		b.WriteByte('\n')
	}

	switch {
	case status.Ready():
		b.WriteString(s.ok.Render("Ready to accept commands."))
	case !status.ClientSecret:
		b.WriteString(s.hint.Render("Download the OAuth client file to " + domain.ClientSecretFile + ", then run setup."))
	default:
		b.WriteString(s.hint.Render("Run setup to finish."))
	}
	b.WriteByte('\n')

	return b.String()
}

func RenderProgress(p application.SetupProgress) string {
	s := newStyles()
	line := fmt.Sprintf("[%s] %s", p.Phase, p.Message)
	if p.Phase == application.PhaseFailed {
		return s.error.Render(line)
	}
	return s.info.Render(line)
}

func RenderOutcome(o application.SetupOutcome) string {
	s := newStyles()
	if o.Complete() {
		return s.ok.Render("Setup complete.")
	}
	if o.Err == nil {
		return s.warning.Render(fmt.Sprintf("Setup stopped at %s.", o.Phase))
	}
	return s.error.Render(fmt.Sprintf("Setup failed at %s: %v", o.FailedStep, o.Err))
}

func RenderResult(r domain.AssistResult) string {
	s := newStyles()
	if r.DisplayText != "" {
		return s.ok.Render("Assistant: " + r.DisplayText)
	}
	return s.info.Render(fmt.Sprintf("Played %d bytes of audio.", len(r.Audio)))
}

// RenderError distinguishes the informational no-audio outcome, errors a
// retry may fix, and errors that need user action.
func RenderError(err error) string {
	s := newStyles()
	switch {
	case errors.Is(err, domain.ErrNoAudioResponse):
		return s.info.Render("No audio response received.")
	case errors.Is(err, application.ErrBusy):
		return s.warning.Render("Still working on the previous request.")
	case errors.Is(err, domain.ErrNotReady):
		return s.warning.Render("Setup is incomplete. Run setup first.")
	}

	kind := domain.KindOf(err)
	if kind != "" && kind.Recoverable() {
		return s.warning.Render(fmt.Sprintf("Error: %v (you can try again)", err))
	}
	return s.error.Render(fmt.Sprintf("Error: %v", err))
}
