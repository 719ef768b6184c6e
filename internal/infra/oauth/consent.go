package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"text-assistant/internal/domain"
)

const DefaultConsentTimeout = 5 * time.Minute

type callbackResult struct {
	code string
	err  error
}

// LoopbackConsent runs the installed-app authorization code flow. It listens
// on a loopback address, asks the user to open the authorization URL and
// exchanges the returned code using PKCE.
type LoopbackConsent struct {
	host    string
	port    int
	timeout time.Duration
	logger  *slog.Logger

	// Prompt shows the authorization URL to the user.
	Prompt func(authURL string) error
}

func NewLoopbackConsent(host string, port int, timeout time.Duration, logger *slog.Logger) *LoopbackConsent {
	if host == "" {
		host = "127.0.0.1"
	}
	if timeout <= 0 {
		timeout = DefaultConsentTimeout
	}
	return &LoopbackConsent{
		host:    host,
		port:    port,
		timeout: timeout,
		logger:  logger,
		Prompt:  printPrompt,
	}
}

func printPrompt(authURL string) error {
	_, err := fmt.Fprintf(os.Stderr, "\nOpen this URL in a browser to authorize the assistant:\n\n  %s\n\n", authURL)
	return err
}

func (l *LoopbackConsent) Authorize(ctx context.Context, secret domain.ClientSecret, scopes []string) (domain.TokenPair, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(l.host, strconv.Itoa(l.port)))
	if err != nil {
		return domain.TokenPair{}, domain.NewError(domain.KindConsentFailed, "starting redirect listener", err)
	}

	redirectURL := "http://" + ln.Addr().String() + "/"
	cfg := oauthConfig(secret, scopes, redirectURL)
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	results := make(chan callbackResult, 1)
	server := &http.Server{
		Handler:           callbackHandler(state, results),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("redirect listener error", "error", err)
		}
	}()
	defer l.shutdown(server)

	l.logger.Info("waiting for authorization", "redirect_url", redirectURL)

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	if err := l.Prompt(authURL); err != nil {
		return domain.TokenPair{}, domain.NewError(domain.KindConsentFailed, "showing authorization url", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var res callbackResult
	select {
	case res = <-results:
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			return domain.TokenPair{}, err
		}
		return domain.TokenPair{}, domain.NewError(domain.KindConsentFailed, "timed out waiting for authorization", waitCtx.Err())
	}
	if res.err != nil {
		return domain.TokenPair{}, domain.NewError(domain.KindConsentFailed, "", res.err)
	}

	tok, err := cfg.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return domain.TokenPair{}, domain.NewError(domain.KindConsentFailed, "exchanging authorization code", err)
	}

	l.logger.Info("authorization granted", "expiry", tok.Expiry)
	return tokenPair(tok), nil
}

func (l *LoopbackConsent) shutdown(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		l.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		_ = server.Close()
	}
}

func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	deliver := func(r callbackResult) {
		select {
		case results <- r:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "authorization denied: "+e, http.StatusForbidden)
			deliver(callbackResult{err: fmt.Errorf("authorization denied: %s", e)})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			deliver(callbackResult{err: errors.New("redirect carried no authorization code")})
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "Authorization complete. You may close this window.")
		deliver(callbackResult{code: code})
	})
	return mux
}
