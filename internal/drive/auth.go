package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/drivestash/drivestash/internal/credstore"
)

// defaultIntrospectURL is Google's token introspection endpoint. The
// expires_in field of its response is the access token's remaining lifetime.
const defaultIntrospectURL = "https://www.googleapis.com/oauth2/v3/tokeninfo"

// redirectOOB is the out-of-band redirect placeholder for the manual
// authorization-code exchange: the provider displays the one-time code to
// the operator instead of redirecting.
const redirectOOB = "urn:ietf:wg:oauth:2.0:oob"

var defaultScopes = []string{
	"https://www.googleapis.com/auth/drive",
}

// minTokenLifetime is the renewal boundary: a cached access token with less
// remaining lifetime than this is discarded and renewed. Strictly-less-than
// comparison, so exactly 60 seconds remaining is still reused.
const minTokenLifetime = 60 * time.Second

// Credentials is the resolved credential set handed to every component after
// EnsureAccessToken succeeds. A valid set always carries a non-empty
// TokenKind, used to build the authorization header.
type Credentials struct {
	ClientID     string
	ClientSecret string
	APIKey       string
	RefreshToken string
	AccessToken  string
	TokenKind    string
}

// AuthorizationHeader builds the header value sent with every API call.
func (c *Credentials) AuthorizationHeader() string {
	return c.TokenKind + " " + c.AccessToken
}

// PromptFunc presents the authorization URL to the operator and returns the
// one-time code they obtained, or an error if the exchange was abandoned.
type PromptFunc func(authURL string) (code string, err error)

// Authenticator resolves the credential set once per run. It is the only
// component that talks to the token endpoints; everything downstream
// receives an immutable Credentials and must not attempt renewal.
type Authenticator struct {
	store         *credstore.Store
	prompt        PromptFunc
	logger        *slog.Logger
	httpClient    *http.Client
	introspectURL string
	endpoint      oauth2.Endpoint
	scopes        []string
}

// NewAuthenticator builds an Authenticator against the production endpoints.
func NewAuthenticator(store *credstore.Store, prompt PromptFunc, httpClient *http.Client, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Authenticator{
		store:         store,
		prompt:        prompt,
		logger:        logger,
		httpClient:    httpClient,
		introspectURL: defaultIntrospectURL,
		endpoint:      google.Endpoint,
		scopes:        defaultScopes,
	}
}

// EnsureAccessToken resolves the credential set for this run:
//
//  1. A cached access token is introspected; without a remaining-lifetime
//     field, or with less than a minute left, it is discarded.
//  2. Without a refresh token, the interactive authorization-code exchange
//     runs and the obtained refresh token is persisted.
//  3. With a refresh token but no usable access token, the refresh token is
//     exchanged for a fresh access token, which is persisted for reuse.
//  4. If either the access token or its kind is still empty, the run aborts
//     with ErrCredentialUnresolved. There is no retry.
//
// This is a hard barrier: no other network operation starts before it
// returns successfully.
func (a *Authenticator) EnsureAccessToken(ctx context.Context) (*Credentials, error) {
	entries, err := a.store.Load()
	if err != nil {
		return nil, &AuthError{Op: "resolve", Err: err}
	}

	creds := &Credentials{
		ClientID:     entries[credstore.KeyClientID],
		ClientSecret: entries[credstore.KeyClientSecret],
		APIKey:       entries[credstore.KeyAPIKey],
		RefreshToken: entries[credstore.KeyRefreshToken],
		AccessToken:  entries[credstore.KeyAccessToken],
		TokenKind:    entries[credstore.KeyTokenKind],
	}

	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, &AuthError{Op: "resolve", Err: fmt.Errorf("client identity missing from %s", a.store.Path())}
	}

	// Step 1: validate the cached access token.
	if creds.AccessToken != "" {
		remaining, ok := a.introspect(ctx, creds.AccessToken)
		if !ok || remaining < minTokenLifetime {
			a.logger.Info("discarding cached access token",
				slog.Bool("lifetime_known", ok),
				slog.Duration("remaining", remaining),
			)

			creds.AccessToken = ""
			creds.TokenKind = ""
		} else {
			a.logger.Debug("reusing cached access token",
				slog.Duration("remaining", remaining),
			)
		}
	}

	cfg := a.oauthConfig(creds)

	// Step 2: no refresh token means first run — interactive exchange.
	if creds.RefreshToken == "" {
		if err := a.interactiveExchange(ctx, cfg, creds); err != nil {
			return nil, err
		}
	}

	// Step 3: refresh token exists but the access token was discarded or
	// never obtained.
	if creds.AccessToken == "" {
		if err := a.refreshExchange(ctx, cfg, creds); err != nil {
			return nil, err
		}
	}

	// Step 4: anything still missing is fatal.
	if creds.AccessToken == "" || creds.TokenKind == "" {
		return nil, &AuthError{Op: "resolve", Err: ErrCredentialUnresolved}
	}

	return creds, nil
}

// introspect queries the provider for the access token's remaining lifetime.
// The second return is false when the token is rejected, the response is
// undecodable, or the remaining-lifetime field is absent — all of which
// force renewal rather than failing the run.
func (a *Authenticator) introspect(ctx context.Context, accessToken string) (time.Duration, bool) {
	q := url.Values{}
	q.Set("access_token", accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.introspectURL+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return 0, false
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Warn("token introspection failed",
			slog.String("error", err.Error()),
		)

		return 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false
	}

	// expires_in arrives as a JSON string on the v3 endpoint and as a number
	// on older ones; json.Number accepts both.
	var body struct {
		ExpiresIn json.Number `json:"expires_in"`
	}

	if decErr := json.NewDecoder(resp.Body).Decode(&body); decErr != nil {
		a.logger.Warn("undecodable introspection response",
			slog.String("error", decErr.Error()),
		)

		return 0, false
	}

	if body.ExpiresIn == "" {
		return 0, false
	}

	seconds, parseErr := body.ExpiresIn.Int64()
	if parseErr != nil {
		return 0, false
	}

	return time.Duration(seconds) * time.Second, true
}

// interactiveExchange runs the authorization-code flow: present the auth URL,
// collect the one-time code, exchange it, and persist the refresh token.
func (a *Authenticator) interactiveExchange(ctx context.Context, cfg *oauth2.Config, creds *Credentials) error {
	a.logger.Info("no refresh token, starting interactive authorization")

	authURL := cfg.AuthCodeURL("state", oauth2.AccessTypeOffline)

	code, err := a.prompt(authURL)
	if err != nil {
		return &AuthError{Op: "exchange", Err: err}
	}

	tok, err := cfg.Exchange(a.clientContext(ctx), code)
	if err != nil {
		return &AuthError{Op: "exchange", Err: err}
	}

	creds.RefreshToken = tok.RefreshToken
	creds.AccessToken = tok.AccessToken
	creds.TokenKind = tok.Type()

	a.logger.Info("authorization code exchanged",
		slog.Time("expiry", tok.Expiry),
	)

	if saveErr := a.store.SetAll(map[string]string{
		credstore.KeyRefreshToken: creds.RefreshToken,
		credstore.KeyAccessToken:  creds.AccessToken,
		credstore.KeyTokenKind:    creds.TokenKind,
	}); saveErr != nil {
		return &AuthError{Op: "exchange", Err: fmt.Errorf("persisting tokens: %w", saveErr)}
	}

	return nil
}

// refreshExchange trades the refresh token for a new access token and
// persists the result. A rotated refresh token is persisted too.
func (a *Authenticator) refreshExchange(ctx context.Context, cfg *oauth2.Config, creds *Credentials) error {
	a.logger.Info("refreshing access token")

	src := cfg.TokenSource(a.clientContext(ctx), &oauth2.Token{RefreshToken: creds.RefreshToken})

	tok, err := src.Token()
	if err != nil {
		return &AuthError{Op: "refresh", Err: err}
	}

	creds.AccessToken = tok.AccessToken
	creds.TokenKind = tok.Type()

	updates := map[string]string{
		credstore.KeyAccessToken: creds.AccessToken,
		credstore.KeyTokenKind:   creds.TokenKind,
	}

	if tok.RefreshToken != "" && tok.RefreshToken != creds.RefreshToken {
		creds.RefreshToken = tok.RefreshToken
		updates[credstore.KeyRefreshToken] = creds.RefreshToken
	}

	a.logger.Info("access token refreshed",
		slog.Time("expiry", tok.Expiry),
	)

	if saveErr := a.store.SetAll(updates); saveErr != nil {
		return &AuthError{Op: "refresh", Err: fmt.Errorf("persisting tokens: %w", saveErr)}
	}

	return nil
}

// oauthConfig builds the oauth2.Config for both exchange flows.
func (a *Authenticator) oauthConfig(creds *Credentials) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectOOB,
		Scopes:       a.scopes,
		Endpoint:     a.endpoint,
	}
}

// clientContext binds the Authenticator's HTTP client to the oauth2
// library's transport selection.
func (a *Authenticator) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}
