package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorobuild/rpc-gateway/internal/api"
	"github.com/sorobuild/rpc-gateway/internal/blacklist"
	"github.com/sorobuild/rpc-gateway/internal/config"
	"github.com/sorobuild/rpc-gateway/internal/keycodec"
	"github.com/sorobuild/rpc-gateway/internal/ratelimit"
	"github.com/sorobuild/rpc-gateway/internal/store"
)

type testServer struct {
	srv      *Server
	db       *store.DB
	upstream *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"status":"healthy"}}`))
	}))
	t.Cleanup(upstream.Close)

	storeCfg := store.DefaultConfig()
	storeCfg.Path = ":memory:"
	db, err := store.New(storeCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	encKey, err := keycodec.GenerateKeyBase64()
	require.NoError(t, err)

	cfg := &config.Config{
		ListenAddr:      ":0",
		UpstreamTimeout: 5 * time.Second,
		MaxRequestSize:  1 << 20,
		DevMode:         false,
		JWTSecret:       "test-secret",
		IDTokenTTL:      time.Hour,
		EncryptionKey:   encKey,
		APIID:           "gateway",
		APISecret:       "s2s-key",
		Upstreams: config.UpstreamURLs{
			RPCTestnet:     upstream.URL,
			RPCPublic:      upstream.URL,
			HorizonTestnet: upstream.URL,
			HorizonPublic:  upstream.URL,
		},
		LogLevel:        "error",
		LogFormat:       "json",
		FreePlanLimit:   1500,
		ProPlanLimit:    2000,
		AuthRateLimit:   100,
		RateLimitWindow: time.Minute,
		CallCost:        2,
		EnableMetrics:   true,
		MetricsPath:     "/metrics",
	}

	srv, err := New(cfg, db, blacklist.New(client))
	require.NoError(t, err)

	return &testServer{srv: srv, db: db, upstream: upstream}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) signup(t *testing.T, email string) api.SessionResponse {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/auth/signup", "", api.SignupRequest{
		Email:    email,
		Name:     "Test User",
		Password: "hunter22",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var session api.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	return session
}

func (ts *testServer) appToken(t *testing.T) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/auth/token", "", api.AppTokenRequest{APIID: "gateway", APIKey: "s2s-key"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp api.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, Version, health.Version)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodGet, "/health", "", nil)
	w := ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Contains(t, m, "uptime_seconds")
	assert.GreaterOrEqual(t, m["request_count"].(float64), float64(1))
}

func TestErrorEnvelopeShape(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/rpc/mainnet", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var env map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, float64(http.StatusBadRequest), env["statusCode"])
	assert.Equal(t, "BadRequestError", env["name"])
	assert.Contains(t, env["message"], "unknown network")
}

func TestSignupSigninSignout(t *testing.T) {
	ts := newTestServer(t)

	session := ts.signup(t, "alice@example.com")
	assert.Equal(t, "free", session.Account.Plan)
	assert.Equal(t, int64(store.DefaultRPCCredits), session.Account.RPCCredits)
	assert.NotEmpty(t, session.Token)

	// Duplicate signup is rejected with the envelope.
	w := ts.do(t, http.MethodPost, "/auth/signup", "", api.SignupRequest{
		Email: "alice@example.com", Name: "Alice", Password: "other",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/auth/signin", "", api.SigninRequest{
		Email: "alice@example.com", Password: "hunter22",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var signin api.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &signin))

	// The token works on management routes until signout.
	w = ts.do(t, http.MethodGet, "/projects/"+signin.Account.ID, signin.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/auth/signout", signin.Token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/projects/"+signin.Account.ID, signin.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSigninWrongPassword(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "alice@example.com")

	w := ts.do(t, http.MethodPost, "/auth/signin", "", api.SigninRequest{
		Email: "alice@example.com", Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSignupRejectsWeakInput(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/auth/signup", "", api.SignupRequest{
		Email: "not-an-email", Name: "Mallory", Password: "hunter22",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/auth/signup", "", api.SignupRequest{
		Email: "mallory@example.com", Name: "Mallory", Password: "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthEndpointsThrottledPerClient(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "alice@example.com")

	ts.srv.authLimiter = ratelimit.New(map[string]ratelimit.Limit{
		authPlan: {Points: 3, Window: time.Minute},
	})

	creds := api.SigninRequest{Email: "alice@example.com", Password: "wrong-pass"}
	for i := 0; i < 3; i++ {
		w := ts.do(t, http.MethodPost, "/auth/signin", "", creds)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := ts.do(t, http.MethodPost, "/auth/signin", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "TooManyRequestsError")

	// Other routes stay reachable.
	w = ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAppTokenRequiresConfiguredCredentials(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/auth/token", "", api.AppTokenRequest{APIID: "gateway", APIKey: "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := ts.appToken(t)
	assert.NotEmpty(t, token)
}

func TestProjectCRUD(t *testing.T) {
	ts := newTestServer(t)
	session := ts.signup(t, "alice@example.com")
	base := "/projects/" + session.Account.ID

	// Signup provisioned the default project.
	w := ts.do(t, http.MethodGet, base, session.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var projects []api.ProjectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, "default", projects[0].Name)

	w = ts.do(t, http.MethodPost, base, session.Token, api.ProjectCreateRequest{
		Name:              "web",
		WhitelistedDomain: "https://app.example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created api.ProjectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Key)
	assert.Equal(t, "https://app.example.com", created.WhitelistedDomain)

	// GET returns the key too.
	w = ts.do(t, http.MethodGet, base+"/"+created.ID, session.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched api.ProjectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, created.Key, fetched.Key)

	name := "renamed"
	devMode := true
	w = ts.do(t, http.MethodPut, base+"/"+created.ID, session.Token, api.ProjectUpdateRequest{
		Name:    &name,
		DevMode: &devMode,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated api.ProjectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "renamed", updated.Name)
	assert.True(t, updated.DevMode)
	assert.Equal(t, "https://app.example.com", updated.WhitelistedDomain)

	w = ts.do(t, http.MethodDelete, base+"/"+created.ID, session.Token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, base+"/"+created.ID, session.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProjectAccessControl(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice@example.com")
	mallory := ts.signup(t, "mallory@example.com")

	// An identity token only reaches its own account.
	w := ts.do(t, http.MethodGet, "/projects/"+alice.Account.ID, mallory.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// No token at all.
	w = ts.do(t, http.MethodGet, "/projects/"+alice.Account.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// An app token reaches any account.
	w = ts.do(t, http.MethodGet, "/projects/"+alice.Account.ID, ts.appToken(t), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreditsEndpoints(t *testing.T) {
	ts := newTestServer(t)
	session := ts.signup(t, "alice@example.com")
	path := "/rpc-credits/" + session.Account.ID

	w := ts.do(t, http.MethodGet, path, session.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var credits api.CreditsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &credits))
	assert.Equal(t, int64(store.DefaultRPCCredits), credits.RPCCredits)

	// Top-ups are server-to-server only.
	w = ts.do(t, http.MethodPut, path, session.Token, api.CreditTopUpRequest{Amount: 50})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPut, path, ts.appToken(t), api.CreditTopUpRequest{Amount: 50})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &credits))
	assert.Equal(t, int64(store.DefaultRPCCredits+50), credits.RPCCredits)

	w = ts.do(t, http.MethodPut, path, ts.appToken(t), api.CreditTopUpRequest{Amount: -5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
