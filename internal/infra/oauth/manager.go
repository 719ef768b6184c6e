// Package oauth keeps an access token for the assistant API valid. It loads
// the persisted token pair, refreshes it against the token endpoint and falls
// back to interactive consent when refresh is impossible or rejected.
package oauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"text-assistant/internal/application"
	"text-assistant/internal/domain"
	"text-assistant/internal/infra"
	"text-assistant/internal/infra/filestore"
)

type TokenStore interface {
	LoadClientSecret() (domain.ClientSecret, error)
	LoadToken() (domain.TokenPair, bool, error)
	SaveToken(pair domain.TokenPair) error
}

type Option func(*Manager)

// WithHTTPClient routes token endpoint calls through c.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithRetryConfig(cfg infra.RetryConfig) Option {
	return func(m *Manager) { m.retry = cfg }
}

// Manager implements application.CredentialProvider. Calls are serialized so
// concurrent callers never write the token file at the same time.
type Manager struct {
	store   TokenStore
	consent application.ConsentFlow
	scopes  []string
	logger  *slog.Logger

	httpClient *http.Client
	now        func() time.Time
	retry      infra.RetryConfig

	mu sync.Mutex
}

func NewManager(store TokenStore, consent application.ConsentFlow, scopes []string, logger *slog.Logger, opts ...Option) *Manager {
	if len(scopes) == 0 {
		scopes = []string{domain.AssistantScope}
	}
	m := &Manager{
		store:   store,
		consent: consent,
		scopes:  scopes,
		logger:  logger,
		now:     time.Now,
		retry:   infra.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) GetValidCredential(ctx context.Context) (domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	secret, err := m.store.LoadClientSecret()
	if err != nil {
		return domain.Credential{}, err
	}
	secret = withEndpointDefaults(secret)

	pair, ok, err := m.store.LoadToken()
	switch {
	case errors.Is(err, filestore.ErrCorruptToken):
		m.logger.Warn("ignoring unreadable token file", "error", err)
		ok = false
	case err != nil:
		return domain.Credential{}, err
	}

	if ok {
		cred := domain.NewCredential(secret, pair, m.scopes)
		if cred.Valid(m.now()) {
			return cred, nil
		}
		if cred.CanRefresh() {
			refreshed, err := m.refresh(ctx, secret, pair)
			if err == nil {
				return m.persist(secret, refreshed)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.Credential{}, ctxErr
			}
			m.logger.Warn("token refresh failed, requesting consent", "error", err)
		}
	}

	return m.reissue(ctx, secret, pair)
}

func (m *Manager) refresh(ctx context.Context, secret domain.ClientSecret, pair domain.TokenPair) (domain.TokenPair, error) {
	cfg := oauthConfig(secret, m.scopes, "")
	ctx = m.clientContext(ctx)

	var tok *oauth2.Token
	err := infra.WithRetry(ctx, m.retry, func() error {
		// An empty access token forces the source to hit the token endpoint.
		t, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: pair.RefreshToken}).Token()
		if err != nil {
			return classifyRefreshError(err)
		}
		tok = t
		return nil
	})
	if err != nil {
		return domain.TokenPair{}, domain.NewError(domain.KindRefreshFailed, "", err)
	}

	refreshed := tokenPair(tok)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = pair.RefreshToken
	}
	m.logger.Info("access token refreshed", "expiry", refreshed.Expiry)
	return refreshed, nil
}

// classifyRefreshError marks answers from the token endpoint that will not
// change on retry, such as invalid_grant.
func classifyRefreshError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil && !infra.IsRetryableHTTPStatus(re.Response.StatusCode) {
		return infra.Permanent(err)
	}
	return err
}

func (m *Manager) reissue(ctx context.Context, secret domain.ClientSecret, previous domain.TokenPair) (domain.Credential, error) {
	if m.consent == nil {
		return domain.Credential{}, domain.NewError(domain.KindConsentFailed, "no consent flow configured", nil)
	}

	m.logger.Info("requesting user consent", "scopes", m.scopes)
	pair, err := m.consent.Authorize(m.clientContext(ctx), secret, m.scopes)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Credential{}, ctxErr
		}
		if domain.KindOf(err) == "" {
			err = domain.NewError(domain.KindConsentFailed, "", err)
		}
		return domain.Credential{}, err
	}
	if pair.AccessToken == "" {
		return domain.Credential{}, domain.NewError(domain.KindConsentFailed, "consent returned no access token", nil)
	}
	if pair.RefreshToken == "" {
		// A persisted token pair always carries a refresh token.
		if previous.RefreshToken == "" {
			return domain.Credential{}, domain.NewError(domain.KindConsentFailed, "consent returned no refresh token", nil)
		}
		m.logger.Warn("consent returned no refresh token, keeping the previous one")
		pair.RefreshToken = previous.RefreshToken
	}

	return m.persist(secret, pair)
}

func (m *Manager) persist(secret domain.ClientSecret, pair domain.TokenPair) (domain.Credential, error) {
	if err := m.store.SaveToken(pair); err != nil {
		return domain.Credential{}, err
	}
	return domain.NewCredential(secret, pair, m.scopes), nil
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

func withEndpointDefaults(secret domain.ClientSecret) domain.ClientSecret {
	if secret.AuthURI == "" {
		secret.AuthURI = google.Endpoint.AuthURL
	}
	if secret.TokenURI == "" {
		secret.TokenURI = google.Endpoint.TokenURL
	}
	return secret
}

func oauthConfig(secret domain.ClientSecret, scopes []string, redirectURL string) *oauth2.Config {
	secret = withEndpointDefaults(secret)
	return &oauth2.Config{
		ClientID:     secret.ClientID,
		ClientSecret: secret.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   secret.AuthURI,
			TokenURL:  secret.TokenURI,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURL,
		Scopes:      scopes,
	}
}

func tokenPair(tok *oauth2.Token) domain.TokenPair {
	return domain.TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}
