package gateway

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sorobuild/rpc-gateway/internal/apierror"
	"github.com/sorobuild/rpc-gateway/internal/logging"
	"github.com/sorobuild/rpc-gateway/internal/ratelimit"
)

// Request is a single proxy request after routing.
type Request struct {
	API      API
	Network  Network
	Resource ResourcePath
	// Key is the raw project key from the query string. Ignored for
	// open requests.
	Key string
	// Gated selects the metered path. Open requests skip resolution,
	// rate limiting, CORS and credit checks entirely.
	Gated bool
	Body  []byte
}

// Pipeline runs a proxy request through the admission gates in order:
// resolve, rate limit, CORS, credit check, forward, debit. The first
// gate that rejects stops the request.
type Pipeline struct {
	resolver  *Resolver
	limiter   *ratelimit.Limiter
	cors      *CORSGuard
	meter     *CreditMeter
	proxy     *UpstreamProxy
	logger    *zap.Logger
	encrypted bool
}

// NewPipeline wires the admission gates together. encrypted selects
// whether project keys arrive as codec output or as plaintext composite
// keys, which is only sensible in local development.
func NewPipeline(resolver *Resolver, limiter *ratelimit.Limiter, cors *CORSGuard, meter *CreditMeter, proxy *UpstreamProxy, logger *zap.Logger, encrypted bool) *Pipeline {
	return &Pipeline{
		resolver:  resolver,
		limiter:   limiter,
		cors:      cors,
		meter:     meter,
		proxy:     proxy,
		logger:    logger,
		encrypted: encrypted,
	}
}

// Handle executes req for the given gin context. It returns the upstream
// response to mirror, or nil when the request was already answered (a
// preflight) or rejected. Rejections come back as typed errors for the
// error middleware to render.
func (p *Pipeline) Handle(c *gin.Context, req Request) (*UpstreamResponse, error) {
	ctx := c.Request.Context()

	if !req.Gated {
		return p.proxy.Forward(ctx, req.API, req.Network, req.Resource, req.Body)
	}

	if req.Key == "" {
		return nil, apierror.BadRequest("project key missing")
	}

	account, project, err := p.resolver.Resolve(ctx, req.Key, p.encrypted)
	if err != nil {
		return nil, err
	}

	// Limit on the resolved project, not the raw key. Encoding is
	// nonce-randomized, so the same project can present many distinct
	// ciphertexts and each must land in the same bucket.
	if err := p.limiter.Admit(account.Plan, project.ID); err != nil {
		return nil, err
	}

	handled, err := p.cors.Authorize(c, project)
	if err != nil {
		return nil, err
	}
	if handled {
		return nil, nil
	}

	if err := p.meter.Check(account); err != nil {
		return nil, err
	}

	resp, err := p.proxy.Forward(ctx, req.API, req.Network, req.Resource, req.Body)
	if err != nil {
		return nil, err
	}

	// The call already went upstream. A debit failure here is logged
	// and the response still mirrored, so the client is never charged
	// for an answer it did not receive.
	if err := p.meter.Debit(ctx, account.ID); err != nil {
		logging.For(ctx, p.logger).Error("failed to debit credits after upstream call",
			zap.String("account_id", account.ID),
			zap.Error(err),
		)
	}

	return resp, nil
}
