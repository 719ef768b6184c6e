package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/moby/sys/atomicwriter"
)

// WAVSink writes each response to its own 16-bit mono WAV file. It suits
// hosts without an audio device.
type WAVSink struct {
	dir        string
	sampleRate int
	logger     *slog.Logger
	now        func() time.Time
}

func NewWAVSink(dir string, sampleRate int, logger *slog.Logger) *WAVSink {
	return &WAVSink{
		dir:        dir,
		sampleRate: sampleRate,
		logger:     logger,
		now:        time.Now,
	}
}

func (w *WAVSink) Name() string {
	return "wav"
}

func (w *WAVSink) Play(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating wav dir: %w", err)
	}

	name := fmt.Sprintf("response-%s-%s.wav", w.now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
	path := filepath.Join(w.dir, name)

	if err := atomicwriter.WriteFile(path, encodeWAV(pcm, w.sampleRate), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	w.logger.Info("response written", "path", path, "bytes", len(pcm))
	return nil
}

// encodeWAV wraps little-endian 16-bit mono PCM in a RIFF header. A trailing
// odd byte is dropped.
func encodeWAV(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer

	dataSize := len(pcm) &^ 1
	fileSize := 36 + dataSize

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, int32(fileSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, int32(16))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, int16(2))
	binary.Write(&buf, binary.LittleEndian, int16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, int32(dataSize))
	buf.Write(pcm[:dataSize])

	return buf.Bytes()
}

// pcmToSamples decodes little-endian 16-bit PCM.
func pcmToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return samples
}
