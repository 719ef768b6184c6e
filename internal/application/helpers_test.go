package application_test

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"text-assistant/internal/domain"
)

const clientSecretJSON = `{"installed":{"client_id":"cid","client_secret":"shh","project_id":"demo-project","token_uri":"https://oauth2.example.test/token"}}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeClientSecret(t *testing.T, paths domain.Artifacts) {
	t.Helper()
	require.NoError(t, os.WriteFile(paths.ClientSecret, []byte(clientSecretJSON), 0o600))
}

type fakeCreds struct {
	mu    sync.Mutex
	calls int
	cred  domain.Credential
	err   error
	// onCall runs before returning, e.g. to persist a token file.
	onCall func() error
}

func (f *fakeCreds) GetValidCredential(_ context.Context) (domain.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onCall != nil {
		if err := f.onCall(); err != nil {
			return domain.Credential{}, err
		}
	}
	if f.err != nil {
		return domain.Credential{}, f.err
	}
	return f.cred, nil
}

func (f *fakeCreds) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTransport struct {
	responses []domain.AssistResponse
	err       error
	// block waits for ctx cancellation before yielding anything.
	block bool

	gotCred domain.Credential
	gotReq  domain.AssistRequest
}

func (f *fakeTransport) Assist(ctx context.Context, cred domain.Credential, req domain.AssistRequest) iter.Seq2[domain.AssistResponse, error] {
	f.gotCred = cred
	f.gotReq = req
	return func(yield func(domain.AssistResponse, error) bool) {
		if f.block {
			<-ctx.Done()
			yield(domain.AssistResponse{}, ctx.Err())
			return
		}
		for _, r := range f.responses {
			if !yield(r, nil) {
				return
			}
		}
		if f.err != nil {
			yield(domain.AssistResponse{}, f.err)
		}
	}
}

type recordingSink struct {
	mu     sync.Mutex
	played [][]byte
	err    error
}

func (r *recordingSink) Play(_ context.Context, pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.played = append(r.played, append([]byte(nil), pcm...))
	return r.err
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Played() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.played
}

func validCredential() domain.Credential {
	return domain.Credential{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}
}
