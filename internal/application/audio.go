package application

import "context"

// AudioSink plays one complete response. Implementations acquire the output
// device for the duration of Play and release it before returning.
type AudioSink interface {
	Play(ctx context.Context, pcm []byte) error
	Name() string
}

// DiscardSink drops audio. Used when no output device is wanted.
type DiscardSink struct{}

func (DiscardSink) Play(_ context.Context, _ []byte) error { return nil }
func (DiscardSink) Name() string                           { return "discard" }
