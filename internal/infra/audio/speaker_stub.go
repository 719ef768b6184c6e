//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
)

// SpeakerSink stub when portaudio is not available
type SpeakerSink struct {
	logger *slog.Logger
}

func NewSpeakerSink(sampleRate int, logger *slog.Logger) *SpeakerSink {
	return &SpeakerSink{logger: logger}
}

func (s *SpeakerSink) Name() string {
	return "speaker"
}

func (s *SpeakerSink) Play(_ context.Context, _ []byte) error {
	return fmt.Errorf("speaker output not available: rebuild with -tags portaudio or use the wav sink")
}
