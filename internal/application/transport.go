package application

import (
	"context"
	"iter"

	"text-assistant/internal/domain"
)

// AssistTransport runs one Assist exchange. The sequence ends when the server
// closes the stream; a non-nil error is always the last element.
type AssistTransport interface {
	Assist(ctx context.Context, cred domain.Credential, req domain.AssistRequest) iter.Seq2[domain.AssistResponse, error]
}
