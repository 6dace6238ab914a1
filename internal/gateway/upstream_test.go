package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sorobuild/rpc-gateway/internal/apierror"
	"github.com/sorobuild/rpc-gateway/internal/config"
)

func TestParseNetwork(t *testing.T) {
	tests := []struct {
		input string
		want  Network
		ok    bool
	}{
		{input: "testnet", want: NetworkTestnet, ok: true},
		{input: "public", want: NetworkPublic, ok: true},
		{input: "mainnet", ok: false},
		{input: "Testnet", ok: false},
		{input: "", ok: false},
	}
	for _, tt := range tests {
		t.Run("input "+tt.input, func(t *testing.T) {
			network, err := ParseNetwork(tt.input)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.want, network)
			} else {
				assert.True(t, apierror.IsKind(err, apierror.KindBadRequest))
			}
		})
	}
}

func TestNewResourcePath(t *testing.T) {
	tests := []struct {
		name     string
		segments []string
		want     string
	}{
		{name: "empty", segments: nil, want: ""},
		{name: "single", segments: []string{"accounts"}, want: "/accounts"},
		{name: "nested", segments: []string{"accounts", "GABC", "payments"}, want: "/accounts/GABC/payments"},
		{name: "unsubstituted placeholder dropped", segments: []string{"accounts", "{account_id}", "payments"}, want: "/accounts/payments"},
		{name: "trailing placeholder dropped", segments: []string{"transactions", "{hash}"}, want: "/transactions"},
		{name: "empty segments dropped", segments: []string{"", "accounts", ""}, want: "/accounts"},
		{name: "only placeholders", segments: []string{"{a}", "{b}"}, want: ""},
		{name: "braces inside segment kept", segments: []string{"ab{c}d"}, want: "/ab{c}d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewResourcePath(tt.segments...).String())
		})
	}
}

func upstreamURLs(url string) config.UpstreamURLs {
	return config.UpstreamURLs{
		RPCTestnet:     url,
		RPCPublic:      url,
		HorizonTestnet: url,
		HorizonPublic:  url,
	}
}

func TestUpstreamProxyForwardsRPC(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"status":"healthy"}}`))
	}))
	defer server.Close()

	proxy := NewUpstreamProxy(upstreamURLs(server.URL), time.Second, zap.NewNop())

	resp, err := proxy.Forward(context.Background(), APIRPC, NetworkTestnet, nil, []byte(`{"jsonrpc":"2.0","id":1,"method":"getHealth"}`))
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/", gotPath)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"getHealth"}`, gotBody)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.Contains(t, string(resp.Body), "healthy")
}

func TestUpstreamProxyForwardsHorizonResource(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"_embedded":{"records":[]}}`))
	}))
	defer server.Close()

	proxy := NewUpstreamProxy(upstreamURLs(server.URL+"/"), time.Second, zap.NewNop())

	resource := NewResourcePath("accounts", "GABC", "payments")
	resp, err := proxy.Forward(context.Background(), APIHorizon, NetworkPublic, resource, nil)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "/accounts/GABC/payments", gotPath)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestUpstreamProxyMapsErrorResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"upstream maintenance"}`))
	}))
	defer server.Close()

	proxy := NewUpstreamProxy(upstreamURLs(server.URL), time.Second, zap.NewNop())

	_, err := proxy.Forward(context.Background(), APIRPC, NetworkPublic, nil, []byte(`{}`))
	require.Error(t, err)
	assert.True(t, apierror.IsKind(err, apierror.KindUpstream))

	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode())
}

func TestUpstreamProxyUnreachableUpstream(t *testing.T) {
	// A closed server gives a connection refused without waiting.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	proxy := NewUpstreamProxy(upstreamURLs(server.URL), time.Second, zap.NewNop())

	_, err := proxy.Forward(context.Background(), APIRPC, NetworkTestnet, nil, []byte(`{}`))
	require.Error(t, err)
	assert.True(t, apierror.IsKind(err, apierror.KindUpstream))

	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode())
	assert.NotContains(t, apiErr.Error(), "refused")
}

func TestUpstreamProxyMissingURLIsConfigurationError(t *testing.T) {
	proxy := NewUpstreamProxy(config.UpstreamURLs{RPCTestnet: "http://127.0.0.1:1"}, time.Second, zap.NewNop())

	_, err := proxy.Forward(context.Background(), APIHorizon, NetworkPublic, nil, nil)
	assert.True(t, apierror.IsKind(err, apierror.KindConfiguration))
}
