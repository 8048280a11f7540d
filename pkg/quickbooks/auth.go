// Package quickbooks provides the QuickBooks Online accounting client, the
// OAuth authorization handshake, and invoice number allocation.
package quickbooks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"ledger_bridge/pkg/config"
	"ledger_bridge/pkg/store"
	"ledger_bridge/pkg/token"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// OAuthConfig builds the OAuth2 client configuration for the accounting API.
func OAuthConfig(cfg config.QuickBooksConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// CredentialSaver persists the credential produced by a handshake.
type CredentialSaver interface {
	Save(ctx context.Context, cred *store.AccessCredential) error
}

// Authorizer runs the authorization-code handshake that creates a realm's first credential.
type Authorizer struct {
	oauth      *oauth2.Config
	creds      CredentialSaver
	httpClient *http.Client
	log        *zap.Logger
}

func NewAuthorizer(oauth *oauth2.Config, creds CredentialSaver, httpClient *http.Client, log *zap.Logger) *Authorizer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Authorizer{oauth: oauth, creds: creds, httpClient: httpClient, log: log}
}

func (a *Authorizer) AuthorizationURL(state string) string {
	return a.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens and stores them for realmID.
func (a *Authorizer) Exchange(ctx context.Context, code, realmID string) (*store.AccessCredential, error) {
	if code == "" || realmID == "" {
		return nil, errors.New("authorization callback is missing code or realmId")
	}

	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	tok, err := a.oauth.Exchange(tokenCtx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	cred := token.FromOAuthToken(realmID, tok, time.Now())
	if err := a.creds.Save(ctx, cred); err != nil {
		return nil, err
	}
	a.log.Info("stored credential from authorization handshake", zap.String("realm_id", realmID))
	return cred, nil
}

// CallbackRouter handles the OAuth redirect at path. The outcome of the first
// callback carrying the expected state is sent on done.
func (a *Authorizer) CallbackRouter(path, state string, done chan<- error) http.Handler {
	r := chi.NewRouter()
	r.Get(path, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("state") != state {
			http.Error(w, "state does not match", http.StatusBadRequest)
			return
		}
		if errParam := query.Get("error"); errParam != "" {
			http.Error(w, "authorization denied: "+errParam, http.StatusBadRequest)
			notify(done, fmt.Errorf("authorization denied: %s", errParam))
			return
		}

		cred, err := a.Exchange(r.Context(), query.Get("code"), query.Get("realmId"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			notify(done, err)
			return
		}

		fmt.Fprintf(w, "Authorization successful for realm %s! You can close this window.", cred.RealmID)
		notify(done, nil)
	})
	return r
}

func notify(done chan<- error, err error) {
	select {
	case done <- err:
	default:
	}
}

// ServeCallback listens on the redirect URI's host until one handshake
// completes or ctx is cancelled.
func (a *Authorizer) ServeCallback(ctx context.Context, state string) error {
	redirect, err := url.Parse(a.oauth.RedirectURL)
	if err != nil {
		return fmt.Errorf("invalid redirect URI: %w", err)
	}

	done := make(chan error, 1)
	server := &http.Server{
		Addr:              redirect.Host,
		Handler:           a.CallbackRouter(redirect.Path, state, done),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", redirect.Host, err)
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			notify(done, err)
		}
	}()
	a.log.Info("waiting for authorization callback", zap.String("redirect_uri", a.oauth.RedirectURL))

	var result error
	select {
	case result = <-done:
	case <-ctx.Done():
		result = ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return result
}
