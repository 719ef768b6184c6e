package oauth_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text-assistant/internal/domain"
	"text-assistant/internal/infra"
	"text-assistant/internal/infra/filestore"
	"text-assistant/internal/infra/oauth"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tokenServer answers refresh requests with a scripted sequence of status
// codes; the last entry repeats.
type tokenServer struct {
	*httptest.Server
	hits     atomic.Int32
	statuses []int
	access   string

	mu       sync.Mutex
	lastForm map[string]string
}

func newTokenServer(t *testing.T, statuses ...int) *tokenServer {
	t.Helper()
	ts := &tokenServer{statuses: statuses, access: "fresh-access"}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(ts.hits.Add(1))
		_ = r.ParseForm()
		ts.mu.Lock()
		ts.lastForm = map[string]string{}
		for k := range r.PostForm {
			ts.lastForm[k] = r.PostForm.Get(k)
		}
		ts.mu.Unlock()

		status := http.StatusOK
		if len(ts.statuses) > 0 {
			status = ts.statuses[min(n, len(ts.statuses))-1]
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`)
			return
		}
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"Bearer","expires_in":3600}`, ts.access)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) form(key string) string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.lastForm[key]
}

type fakeConsent struct {
	calls int
	pair  domain.TokenPair
	err   error
}

func (f *fakeConsent) Authorize(_ context.Context, secret domain.ClientSecret, scopes []string) (domain.TokenPair, error) {
	f.calls++
	if secret.ClientID == "" || len(scopes) == 0 {
		return domain.TokenPair{}, errors.New("bad consent input")
	}
	return f.pair, f.err
}

func newStore(t *testing.T, tokenURI string) *filestore.Store {
	t.Helper()
	paths := domain.DefaultArtifacts(t.TempDir())
	doc := map[string]any{
		"installed": map[string]any{
			"client_id":     "cid",
			"client_secret": "shh",
			"project_id":    "demo-project",
			"token_uri":     tokenURI,
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths.ClientSecret, data, 0o600))
	return filestore.New(paths)
}

func fastRetry() oauth.Option {
	return oauth.WithRetryConfig(infra.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	})
}

func newManager(store *filestore.Store, consent *fakeConsent) *oauth.Manager {
	return oauth.NewManager(store, consent, nil, discardLogger(), fastRetry())
}

func TestManager_ValidTokenNeedsNoNetwork(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ts := newTokenServer(t)
	store := newStore(t, ts.URL)
	require.NoError(t, store.SaveToken(domain.TokenPair{
		AccessToken:  "still-good",
		RefreshToken: "refresh",
		Expiry:       now.Add(time.Hour),
	}))
	consent := &fakeConsent{}

	m := oauth.NewManager(store, consent, nil, discardLogger(), fastRetry(), oauth.WithClock(func() time.Time { return now }))
	cred, err := m.GetValidCredential(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "still-good", cred.AccessToken)
	assert.Equal(t, "cid", cred.ClientID)
	assert.Equal(t, []string{domain.AssistantScope}, cred.Scopes)
	assert.Zero(t, ts.hits.Load())
	assert.Zero(t, consent.calls)
}

func TestManager_TokenWithinSkewIsRefreshed(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ts := newTokenServer(t)
	store := newStore(t, ts.URL)
	require.NoError(t, store.SaveToken(domain.TokenPair{
		AccessToken:  "about-to-expire",
		RefreshToken: "refresh",
		Expiry:       now.Add(domain.ExpirySkew / 2),
	}))

	m := oauth.NewManager(store, &fakeConsent{}, nil, discardLogger(), fastRetry(), oauth.WithClock(func() time.Time { return now }))
	cred, err := m.GetValidCredential(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "fresh-access", cred.AccessToken)
	assert.EqualValues(t, 1, ts.hits.Load())
}

func TestManager_RefreshRoundTrip(t *testing.T) {
	ts := newTokenServer(t)
	store := newStore(t, ts.URL)
	require.NoError(t, store.SaveToken(domain.TokenPair{
		AccessToken:  "stale",
		RefreshToken: "long-lived",
		Expiry:       time.Now().Add(-time.Minute),
	}))
	consent := &fakeConsent{}

	cred, err := newManager(store, consent).GetValidCredential(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "fresh-access", cred.AccessToken)
	assert.Equal(t, "long-lived", cred.RefreshToken)
	assert.True(t, cred.Valid(time.Now()))
	assert.Zero(t, consent.calls)
	assert.Equal(t, "refresh_token", ts.form("grant_type"))
	assert.Equal(t, "long-lived", ts.form("refresh_token"))
	assert.Equal(t, "cid", ts.form("client_id"))

	persisted, ok, err := store.LoadToken()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh-access", persisted.AccessToken)
	assert.Equal(t, "long-lived", persisted.RefreshToken)
}

func TestManager_TokenWithoutExpiryIsRefreshed(t *testing.T) {
	ts := newTokenServer(t)
	store := newStore(t, ts.URL)
	require.NoError(t, store.SaveToken(domain.TokenPair{AccessToken: "unknown-age", RefreshToken: "r"}))

	cred, err := newManager(store, &fakeConsent{}).GetValidCredential(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "fresh-access", cred.AccessToken)
	assert.EqualValues(t, 1, ts.hits.Load())
}

func TestManager_TransientRefreshFailureIsRetried(t *testing.T) {
	ts := newTokenServer(t, http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusOK)
	store := newStore(t, ts.URL)
	require.NoError(t, store.SaveToken(domain.TokenPair{AccessToken: "stale", RefreshToken: "r"}))
	consent := &fakeConsent{}

	cred, err := newManager(store, consent).GetValidCredential(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "fresh-access", cred.AccessToken)
	assert.EqualValues(t, 3, ts.hits.Load())
	assert.Zero(t, consent.calls)
}

func TestManager_RejectedRefreshFallsBackToConsent(t *testing.T) {
	ts := newTokenServer(t, http.StatusBadRequest)
	store := newStore(t, ts.URL)
	require.NoError(t, store.SaveToken(domain.TokenPair{AccessToken: "stale", RefreshToken: "revoked"}))
	consent := &fakeConsent{pair: domain.TokenPair{
		AccessToken:  "consented",
		RefreshToken: "new-refresh",
		Expiry:       time.Now().Add(time.Hour),
	}}

	cred, err := newManager(store, consent).GetValidCredential(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "consented", cred.AccessToken)
	assert.Equal(t, 1, consent.calls)
	assert.EqualValues(t, 1, ts.hits.Load())

	persisted, _, err := store.LoadToken()
	require.NoError(t, err)
	assert.Equal(t, "new-refresh", persisted.RefreshToken)
}

func TestManager_NoTokenRunsConsent(t *testing.T) {
	ts := newTokenServer(t)
	store := newStore(t, ts.URL)
	consent := &fakeConsent{pair: domain.TokenPair{AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}}

	_, err := newManager(store, consent).GetValidCredential(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, consent.calls)
	assert.FileExists(t, store.Paths().Token)
}

func TestManager_CorruptTokenRunsConsent(t *testing.T) {
	ts := newTokenServer(t)
	store := newStore(t, ts.URL)
	require.NoError(t, os.WriteFile(store.Paths().Token, []byte("{not json"), 0o600))
	consent := &fakeConsent{pair: domain.TokenPair{AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}}

	cred, err := newManager(store, consent).GetValidCredential(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "a", cred.AccessToken)
	assert.Equal(t, 1, consent.calls)
}

func TestManager_ConsentFailure(t *testing.T) {
	ts := newTokenServer(t)
	store := newStore(t, ts.URL)
	consent := &fakeConsent{err: errors.New("user closed the browser")}

	_, err := newManager(store, consent).GetValidCredential(context.Background())

	assert.ErrorIs(t, err, domain.ErrConsentFailed)
	assert.NoFileExists(t, store.Paths().Token)
}

func TestManager_ConsentWithoutRefreshTokenKeepsPrevious(t *testing.T) {
	ts := newTokenServer(t, http.StatusUnauthorized)
	store := newStore(t, ts.URL)
	require.NoError(t, store.SaveToken(domain.TokenPair{AccessToken: "stale", RefreshToken: "keep-me"}))
	consent := &fakeConsent{pair: domain.TokenPair{AccessToken: "a", Expiry: time.Now().Add(time.Hour)}}

	cred, err := newManager(store, consent).GetValidCredential(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "keep-me", cred.RefreshToken)
}

func TestManager_ConsentWithoutAnyRefreshTokenFails(t *testing.T) {
	ts := newTokenServer(t)
	store := newStore(t, ts.URL)
	consent := &fakeConsent{pair: domain.TokenPair{AccessToken: "a", Expiry: time.Now().Add(time.Hour)}}

	_, err := newManager(store, consent).GetValidCredential(context.Background())

	assert.ErrorIs(t, err, domain.ErrConsentFailed)
	assert.ErrorContains(t, err, "no refresh token")
	assert.NoFileExists(t, store.Paths().Token)
}

func TestManager_MissingClientSecret(t *testing.T) {
	store := filestore.New(domain.DefaultArtifacts(t.TempDir()))
	consent := &fakeConsent{}

	_, err := newManager(store, consent).GetValidCredential(context.Background())

	assert.ErrorIs(t, err, domain.ErrMissingClientSecret)
	assert.Zero(t, consent.calls)
}

func TestManager_UsesInjectedHTTPClient(t *testing.T) {
	ts := newTokenServer(t)
	store := newStore(t, ts.URL)
	require.NoError(t, store.SaveToken(domain.TokenPair{AccessToken: "stale", RefreshToken: "r"}))

	var used atomic.Bool
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		used.Store(true)
		return http.DefaultTransport.RoundTrip(r)
	})}

	m := oauth.NewManager(store, &fakeConsent{}, nil, discardLogger(), fastRetry(), oauth.WithHTTPClient(client))
	_, err := m.GetValidCredential(context.Background())
	require.NoError(t, err)

	assert.True(t, used.Load())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
