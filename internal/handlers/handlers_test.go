package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-askgate/askgate/internal/askapi"
	"github.com/go-askgate/askgate/internal/config"
	"github.com/go-askgate/askgate/internal/handlers"
	"github.com/go-askgate/askgate/internal/oauthclient"
	"github.com/go-askgate/askgate/internal/router"
	"github.com/go-askgate/askgate/internal/services"
	"github.com/go-askgate/askgate/internal/store"
	"github.com/go-askgate/askgate/internal/token"
)

type plainDoer struct{ c *http.Client }

func (d *plainDoer) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	return d.c.Do(req.WithContext(ctx))
}

// recordingStore captures the session's user key so tests can inspect the
// stored record without knowing the session cookie's contents.
type recordingStore struct {
	store.Store
	userKey string
}

func (s *recordingStore) SaveVerifier(ctx context.Context, key, verifier string) error {
	s.userKey = key
	return s.Store.SaveVerifier(ctx, key, verifier)
}

// fixture wires a full gateway against fake token and question endpoints,
// with a cookie jar so consecutive requests share one browser session.
type fixture struct {
	t      *testing.T
	router *gin.Engine
	store  *recordingStore

	cookies []*http.Cookie

	// Programmable upstream behavior.
	tokenHandler http.HandlerFunc
	askHandler   http.HandlerFunc

	// Observed upstream traffic.
	lastExchange map[string]any
	lastAuth     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{t: t, store: &recordingStore{Store: store.NewMemoryStore()}}

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastExchange = body
		f.tokenHandler(w, r)
	}))
	t.Cleanup(tokenSrv.Close)

	askSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		f.askHandler(w, r)
	}))
	t.Cleanup(askSrv.Close)

	// Defaults; tests override per scenario.
	f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok1","refresh_token":"ref1","expires_in":3600}`))
	}
	f.askHandler = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"region":"EMEA","revenue":1200}]`))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	doer := &plainDoer{c: http.DefaultClient}

	oauthClient := oauthclient.New(oauthclient.Config{
		AuthURL:     "https://auth.example.com/auth",
		TokenURL:    tokenSrv.URL,
		ClientID:    "client-123",
		RedirectURI: "http://localhost:8080" + config.CallbackPath,
		Scope:       "analytics.ask",
	}, doer)

	tokenService := services.NewTokenService(f.store, oauthClient, logger)
	authService := services.NewAuthService(f.store, oauthClient, logger)
	askClient := askapi.New(askSrv.URL+"/ask", doer, tokenService, logger)

	cfg := &config.Config{SessionSecret: "test-secret"}
	f.router = router.New(router.Deps{
		Config: cfg,
		Auth:   handlers.NewAuthHandler(authService, logger),
		Ask:    handlers.NewAskHandler(askClient, authService, logger),
	})

	return f
}

// do performs a request within the fixture's browser session.
func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	f.t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range f.cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if cookies := w.Result().Cookies(); len(cookies) > 0 {
		f.cookies = cookies
	}
	return w
}

// tokenRecord returns the session user's stored record, or nil.
func (f *fixture) tokenRecord() *token.Record {
	f.t.Helper()

	rec, err := f.store.Token(context.Background(), f.store.userKey)
	if err != nil {
		require.ErrorIs(f.t, err, store.ErrNotFound)
		return nil
	}
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestLogin_ReturnsAuthorizationURL(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/auth/login", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AuthorizationURL string `json:"authorization_url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	u, err := url.Parse(resp.AuthorizationURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
}

func TestAuthorizationFlow_EndToEnd(t *testing.T) {
	f := newFixture(t)
	begin := time.Now()

	// 1. Begin the flow.
	w := f.do(http.MethodGet, "/auth/login", "")
	require.Equal(t, http.StatusOK, w.Code)

	// 2. The authorization server redirects back with a code.
	w = f.do(http.MethodGet, config.CallbackPath+"?code=abc123", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Authorization complete")
	assert.Contains(t, w.Body.String(), "close this tab")

	// The exchange carried the code and the stored verifier.
	assert.Equal(t, "authorization_code", f.lastExchange["grant_type"])
	assert.Equal(t, "abc123", f.lastExchange["code"])
	assert.NotEmpty(t, f.lastExchange["code_verifier"])

	// 3. A question now goes straight through with the new bearer token.
	w = f.do(http.MethodPost, "/ask", `{"question":"revenue by region"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bearer tok1", f.lastAuth)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "EMEA", rows[0]["region"])

	// The stored expiry tracks the reported lifetime.
	rec := f.tokenRecord()
	require.NotNil(t, rec)
	assert.Equal(t, "tok1", rec.AccessToken)
	assert.Equal(t, "ref1", rec.RefreshToken)
	assert.WithinDuration(t, begin.Add(time.Hour), rec.ExpiresAt, 5*time.Second)
}

func TestCallback_CodeMissing(t *testing.T) {
	f := newFixture(t)

	// Begin a flow so a verifier exists; the denial redirect has no code.
	f.do(http.MethodGet, "/auth/login", "")
	w := f.do(http.MethodGet, config.CallbackPath, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Authorization failed")
	assert.Contains(t, w.Body.String(), "did not return a code")
}

func TestCallback_WithoutPriorLogin(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, config.CallbackPath+"?code=abc123", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no authorization is in progress")
}

func TestCallback_Replay(t *testing.T) {
	f := newFixture(t)

	f.do(http.MethodGet, "/auth/login", "")
	w := f.do(http.MethodGet, config.CallbackPath+"?code=abc123", "")
	require.Equal(t, http.StatusOK, w.Code)

	// The verifier was consumed; replaying the same callback must fail.
	w = f.do(http.MethodGet, config.CallbackPath+"?code=abc123", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no authorization is in progress")
}

func TestCallback_ExchangeRejected(t *testing.T) {
	f := newFixture(t)
	f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}

	f.do(http.MethodGet, "/auth/login", "")
	w := f.do(http.MethodGet, config.CallbackPath+"?code=abc123", "")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_grant: code expired")
	assert.Contains(t, w.Body.String(), "start the authorization again")
}

func TestAsk_WithoutAuthorization(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/ask", `{"question":"anything"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var resp struct {
		Error            string `json:"error"`
		AuthorizationURL string `json:"authorization_url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "authorization_required", resp.Error)
	assert.Contains(t, resp.AuthorizationURL, "code_challenge=")
}

func TestAsk_UpstreamRejectsToken(t *testing.T) {
	f := newFixture(t)
	f.askHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"token revoked"}`))
	}

	// Authorize first so a locally-valid record exists.
	f.do(http.MethodGet, "/auth/login", "")
	f.do(http.MethodGet, config.CallbackPath+"?code=abc123", "")

	w := f.do(http.MethodPost, "/ask", `{"question":"anything"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "authorization_required")

	// The record was deleted despite its unexpired local expiry.
	assert.Nil(t, f.tokenRecord())
}

func TestAsk_UpstreamError(t *testing.T) {
	f := newFixture(t)
	f.askHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"question must not be empty"}`))
	}

	f.do(http.MethodGet, "/auth/login", "")
	f.do(http.MethodGet, config.CallbackPath+"?code=abc123", "")

	w := f.do(http.MethodPost, "/ask", `{"question":"anything"}`)
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "upstream_error", resp.Error)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
	assert.Equal(t, "question must not be empty", resp.Detail)

	// Token state is untouched by non-401 upstream failures.
	rec := f.tokenRecord()
	require.NotNil(t, rec)
	assert.Equal(t, "tok1", rec.AccessToken)
}

func TestAsk_MissingQuestion(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{``, `{}`, `{"question":""}`} {
		w := f.do(http.MethodPost, "/ask", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
}

func TestReset_ClearsAuthorization(t *testing.T) {
	f := newFixture(t)

	f.do(http.MethodGet, "/auth/login", "")
	f.do(http.MethodGet, config.CallbackPath+"?code=abc123", "")

	w := f.do(http.MethodPost, "/ask", `{"question":"anything"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/auth/reset", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/ask", `{"question":"anything"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
