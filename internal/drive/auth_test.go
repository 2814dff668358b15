package drive

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/drivestash/drivestash/internal/credstore"
)

// authFixture is a stub provider covering introspection and token exchange.
type authFixture struct {
	srv *httptest.Server

	// expiresIn is returned by the introspection endpoint; empty means the
	// field is omitted entirely.
	expiresIn string

	tokenCalls      atomic.Int32
	introspectCalls atomic.Int32

	// accessToken is handed out by the token endpoint.
	accessToken string
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	f := &authFixture{accessToken: "fresh-access"}

	mux := http.NewServeMux()
	mux.HandleFunc("/tokeninfo", func(w http.ResponseWriter, _ *http.Request) {
		f.introspectCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")

		if f.expiresIn == "" {
			fmt.Fprint(w, `{}`)
			return
		}

		fmt.Fprintf(w, `{"expires_in": %q}`, f.expiresIn)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"Bearer","refresh_token":"new-refresh","expires_in":3600}`,
			f.accessToken)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	return f
}

// newTestAuthenticator points an Authenticator at the fixture's endpoints.
func newTestAuthenticator(t *testing.T, f *authFixture, prompt PromptFunc) (*Authenticator, *credstore.Store) {
	t.Helper()

	store := credstore.New(filepath.Join(t.TempDir(), "credentials"))
	require.NoError(t, store.SetAll(map[string]string{
		credstore.KeyClientID:     "client-id",
		credstore.KeyClientSecret: "client-secret",
	}))

	return &Authenticator{
		store:         store,
		prompt:        prompt,
		logger:        testLogger(),
		httpClient:    f.srv.Client(),
		introspectURL: f.srv.URL + "/tokeninfo",
		endpoint: oauth2.Endpoint{
			AuthURL:  f.srv.URL + "/auth",
			TokenURL: f.srv.URL + "/token",
		},
		scopes: defaultScopes,
	}, store
}

func failingPrompt(t *testing.T) PromptFunc {
	return func(string) (string, error) {
		t.Fatal("interactive prompt must not run")
		return "", nil
	}
}

func TestEnsureAccessTokenReusesTokenAboveBoundary(t *testing.T) {
	f := newAuthFixture(t)
	f.expiresIn = "61"

	auth, store := newTestAuthenticator(t, f, failingPrompt(t))
	require.NoError(t, store.SetAll(map[string]string{
		credstore.KeyRefreshToken: "refresh",
		credstore.KeyAccessToken:  "cached-access",
		credstore.KeyTokenKind:    "Bearer",
	}))

	creds, err := auth.EnsureAccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "cached-access", creds.AccessToken)
	assert.Equal(t, "Bearer", creds.TokenKind)
	assert.Equal(t, int32(1), f.introspectCalls.Load())
	assert.Equal(t, int32(0), f.tokenCalls.Load(), "token endpoint must not be called")
}

func TestEnsureAccessTokenRenewsTokenBelowBoundary(t *testing.T) {
	f := newAuthFixture(t)
	f.expiresIn = "59"

	auth, store := newTestAuthenticator(t, f, failingPrompt(t))
	require.NoError(t, store.SetAll(map[string]string{
		credstore.KeyRefreshToken: "refresh",
		credstore.KeyAccessToken:  "cached-access",
		credstore.KeyTokenKind:    "Bearer",
	}))

	creds, err := auth.EnsureAccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "fresh-access", creds.AccessToken)
	assert.Equal(t, int32(1), f.tokenCalls.Load())

	// The renewed token is persisted for the next run.
	persisted, err := store.Get(credstore.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", persisted)
}

func TestEnsureAccessTokenRenewsWhenLifetimeUnknown(t *testing.T) {
	f := newAuthFixture(t)
	// Introspection response omits the remaining-lifetime field.
	f.expiresIn = ""

	auth, store := newTestAuthenticator(t, f, failingPrompt(t))
	require.NoError(t, store.SetAll(map[string]string{
		credstore.KeyRefreshToken: "refresh",
		credstore.KeyAccessToken:  "cached-access",
		credstore.KeyTokenKind:    "Bearer",
	}))

	creds, err := auth.EnsureAccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "fresh-access", creds.AccessToken)
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestEnsureAccessTokenInteractiveFirstRun(t *testing.T) {
	f := newAuthFixture(t)

	var promptedURL string

	prompt := func(authURL string) (string, error) {
		promptedURL = authURL
		return "one-time-code", nil
	}

	auth, store := newTestAuthenticator(t, f, prompt)

	creds, err := auth.EnsureAccessToken(context.Background())
	require.NoError(t, err)

	assert.Contains(t, promptedURL, f.srv.URL+"/auth")
	assert.Contains(t, promptedURL, "access_type=offline")
	assert.Equal(t, "fresh-access", creds.AccessToken)
	assert.Equal(t, "Bearer", creds.TokenKind)
	assert.Equal(t, "new-refresh", creds.RefreshToken)

	// The refresh token is persisted after the exchange.
	persisted, err := store.Get(credstore.KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "new-refresh", persisted)
}

func TestEnsureAccessTokenFailsWithoutClientIdentity(t *testing.T) {
	f := newAuthFixture(t)

	store := credstore.New(filepath.Join(t.TempDir(), "credentials"))
	auth := &Authenticator{
		store:         store,
		prompt:        failingPrompt(t),
		logger:        testLogger(),
		httpClient:    f.srv.Client(),
		introspectURL: f.srv.URL + "/tokeninfo",
		endpoint:      oauth2.Endpoint{TokenURL: f.srv.URL + "/token"},
		scopes:        defaultScopes,
	}

	_, err := auth.EnsureAccessToken(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestEnsureAccessTokenUnresolvedIsFatal(t *testing.T) {
	f := newAuthFixture(t)
	// Token endpoint hands out an empty access token; resolution must fail.
	f.accessToken = ""

	auth, store := newTestAuthenticator(t, f, failingPrompt(t))
	require.NoError(t, store.Set(credstore.KeyRefreshToken, "refresh"))

	_, err := auth.EnsureAccessToken(context.Background())
	require.Error(t, err)
}

func TestEnsureAccessTokenIsSingleBarrier(t *testing.T) {
	// A run with a valid cached token performs introspection and nothing
	// else: credential refresh happens at most once, at startup.
	f := newAuthFixture(t)
	f.expiresIn = "3599"

	auth, store := newTestAuthenticator(t, f, failingPrompt(t))
	require.NoError(t, store.SetAll(map[string]string{
		credstore.KeyRefreshToken: "refresh",
		credstore.KeyAccessToken:  "cached-access",
		credstore.KeyTokenKind:    "Bearer",
	}))

	_, err := auth.EnsureAccessToken(context.Background())
	require.NoError(t, err)

	_, err = auth.EnsureAccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(0), f.tokenCalls.Load())
}
