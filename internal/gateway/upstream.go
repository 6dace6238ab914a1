package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sorobuild/rpc-gateway/internal/apierror"
	"github.com/sorobuild/rpc-gateway/internal/config"
	"github.com/sorobuild/rpc-gateway/internal/logging"
)

// API selects which upstream family a request is forwarded to.
type API string

const (
	// APIRPC is the JSON-RPC upstream (Soroban RPC).
	APIRPC API = "rpc"
	// APIHorizon is the REST-style Horizon upstream.
	APIHorizon API = "horizon"
)

// Network selects the chain a request targets.
type Network string

const (
	// NetworkTestnet targets the test network.
	NetworkTestnet Network = "testnet"
	// NetworkPublic targets the public network.
	NetworkPublic Network = "public"
)

// ParseNetwork validates a network path parameter.
func ParseNetwork(s string) (Network, error) {
	switch Network(s) {
	case NetworkTestnet:
		return NetworkTestnet, nil
	case NetworkPublic:
		return NetworkPublic, nil
	default:
		return "", apierror.BadRequest(fmt.Sprintf("unknown network %q, expected testnet or public", s))
	}
}

// ResourcePath is the optional resource path appended to a Horizon base
// URL. Segments are concrete: construction drops anything a client left
// as an unsubstituted template placeholder, so the proxy itself never
// pattern-matches strings.
type ResourcePath []string

// NewResourcePath builds a ResourcePath from raw path segments. Empty
// segments and literal `{placeholder}` segments are treated as not
// provided and omitted.
func NewResourcePath(segments ...string) ResourcePath {
	var path ResourcePath
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			continue
		}
		path = append(path, seg)
	}
	return path
}

// String renders the path with a leading slash, or "" when empty.
func (p ResourcePath) String() string {
	if len(p) == 0 {
		return ""
	}
	return "/" + strings.Join(p, "/")
}

// UpstreamResponse carries the upstream's answer back through the pipeline.
type UpstreamResponse struct {
	Status      int
	Body        []byte
	ContentType string
}

// UpstreamProxy forwards admitted requests to the configured Stellar APIs.
type UpstreamProxy struct {
	urls   config.UpstreamURLs
	client *http.Client
	logger *zap.Logger
}

// NewUpstreamProxy creates a proxy with a bounded-timeout HTTP client.
func NewUpstreamProxy(urls config.UpstreamURLs, timeout time.Duration, logger *zap.Logger) *UpstreamProxy {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &UpstreamProxy{
		urls: urls,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   20,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: timeout,
			},
		},
		logger: logger,
	}
}

// Forward executes the upstream call for (api, network, resource).
// RPC calls are POSTs carrying the JSON-RPC body; Horizon calls are GETs.
// A 2xx answer is returned verbatim; a non-2xx answer becomes an upstream
// error carrying the upstream status and body; a transport failure maps
// to a generic 500 without leaking dial internals to the caller.
func (p *UpstreamProxy) Forward(ctx context.Context, api API, network Network, resource ResourcePath, body []byte) (*UpstreamResponse, error) {
	base, err := p.baseURL(api, network)
	if err != nil {
		return nil, err
	}
	url := base + resource.String()

	var req *http.Request
	switch api {
	case APIRPC:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	case APIHorizon:
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	default:
		return nil, apierror.BadRequest(fmt.Sprintf("unknown api %q", api))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		logging.For(ctx, p.logger).Error("upstream unreachable",
			zap.String("url", url),
			zap.Error(err),
		)
		return nil, apierror.Upstream(http.StatusInternalServerError, "upstream request failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierror.Upstream(http.StatusInternalServerError, "failed to read upstream response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.For(ctx, p.logger).Warn("upstream error response",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
		return nil, apierror.Upstream(resp.StatusCode, upstreamMessage(respBody))
	}

	return &UpstreamResponse{
		Status:      resp.StatusCode,
		Body:        respBody,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func (p *UpstreamProxy) baseURL(api API, network Network) (string, error) {
	var url string
	switch api {
	case APIRPC:
		if network == NetworkTestnet {
			url = p.urls.RPCTestnet
		} else {
			url = p.urls.RPCPublic
		}
	case APIHorizon:
		if network == NetworkTestnet {
			url = p.urls.HorizonTestnet
		} else {
			url = p.urls.HorizonPublic
		}
	}
	if url == "" {
		return "", apierror.Configuration(fmt.Sprintf("no upstream URL configured for %s/%s", api, network))
	}
	return strings.TrimRight(url, "/"), nil
}

// upstreamMessage preserves structured upstream error bodies in the
// envelope; non-JSON bodies pass through as strings.
func upstreamMessage(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "upstream returned an error"
	}
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err == nil {
		return decoded
	}
	return string(trimmed)
}
