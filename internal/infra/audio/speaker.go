//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// SpeakerSink plays responses on the default output device. The device is
// opened for each response and released afterwards.
type SpeakerSink struct {
	sampleRate int
	logger     *slog.Logger

	mu sync.Mutex
}

func NewSpeakerSink(sampleRate int, logger *slog.Logger) *SpeakerSink {
	return &SpeakerSink{
		sampleRate: sampleRate,
		logger:     logger,
	}
}

func (s *SpeakerSink) Name() string {
	return "speaker"
}

func (s *SpeakerSink) Play(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := pcmToSamples(pcm)

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}
	defer portaudio.Terminate()

	inputChannels := 0
	outputChannels := 1
	buffer := make([]int16, framesPerBuffer)

	stream, err := portaudio.OpenDefaultStream(
		inputChannels,
		outputChannels,
		float64(s.sampleRate),
		len(buffer),
		buffer,
	)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}
	defer stream.Stop()

	s.logger.Debug("playing response", "samples", len(samples), "sampleRate", s.sampleRate)

	for off := 0; off < len(samples); off += len(buffer) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buffer, samples[off:])
		clear(buffer[n:])
		if err := stream.Write(); err != nil {
			return fmt.Errorf("writing to stream: %w", err)
		}
	}

	return nil
}
