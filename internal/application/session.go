package application

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"text-assistant/internal/domain"
)

type SessionConfig struct {
	LanguageCode string
	AudioOut     domain.AudioOutConfig
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		LanguageCode: "en-US",
		AudioOut:     domain.DefaultAudioOutConfig(),
	}
}

// Session sends one text command per call and plays the spoken answer. No
// conversation state is carried between calls.
type Session struct {
	creds     CredentialProvider
	transport AssistTransport
	sink      AudioSink
	device    domain.DeviceIdentity
	cfg       SessionConfig
	logger    *slog.Logger
}

func NewSession(
	creds CredentialProvider,
	transport AssistTransport,
	sink AudioSink,
	device domain.DeviceIdentity,
	cfg SessionConfig,
	logger *slog.Logger,
) *Session {
	return &Session{
		creds:     creds,
		transport: transport,
		sink:      sink,
		device:    device,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *Session) SendCommand(ctx context.Context, text string) (domain.AssistResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.AssistResult{}, domain.NewError(domain.KindInvalidCommand, "empty command", nil)
	}

	result := domain.AssistResult{ExchangeID: uuid.NewString()}
	logger := s.logger.With("exchange_id", result.ExchangeID)

	cred, err := s.creds.GetValidCredential(ctx)
	if err != nil {
		return result, fmt.Errorf("obtaining credential: %w", err)
	}

	req := domain.AssistRequest{
		CommandText:       text,
		LanguageCode:      s.cfg.LanguageCode,
		AudioOut:          s.cfg.AudioOut,
		Device:            s.device,
		IsNewConversation: true,
	}

	logger.Info("sending command", "chars", len(text))

	var audio bytes.Buffer
	for resp, err := range s.transport.Assist(ctx, cred, req) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			return result, asKind(domain.KindTransport, err)
		}
		if resp.ErrorMessage != "" {
			return result, domain.NewError(domain.KindRemote, resp.ErrorMessage, nil)
		}
		if len(resp.AudioOut) > 0 {
			audio.Write(resp.AudioOut)
			result.Chunks++
		}
		if ds := resp.DialogState; ds != nil {
			if ds.SupplementalDisplayText != "" {
				result.DisplayText = ds.SupplementalDisplayText
			}
			if len(ds.ConversationState) > 0 {
				result.ConversationState = ds.ConversationState
			}
		}
	}

	result.Audio = audio.Bytes()
	logger.Info("response received", "chunks", result.Chunks, "bytes", len(result.Audio))

	if len(result.Audio) == 0 {
		return result, domain.NewError(domain.KindNoAudioResponse, "no audio response received", nil)
	}

	// A cancelled exchange never reaches the speaker.
	if err := ctx.Err(); err != nil {
		return result, err
	}

	if err := s.sink.Play(ctx, result.Audio); err != nil {
		return result, fmt.Errorf("playing response on %s: %w", s.sink.Name(), err)
	}

	return result, nil
}
