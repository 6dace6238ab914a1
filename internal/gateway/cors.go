package gateway

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/sorobuild/rpc-gateway/internal/apierror"
	"github.com/sorobuild/rpc-gateway/internal/store"
)

// APISecretHeader is required on browser-less, server-to-server calls.
const APISecretHeader = "X-Api-Secret"

var loopbackOrigin = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1)(:\d+)?$`)

const (
	allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
	allowedHeaders = "Content-Type, Authorization, X-Api-Secret"
)

// CORSGuard decides per project whether an inbound origin may proceed.
type CORSGuard struct{}

// NewCORSGuard creates a CORSGuard.
func NewCORSGuard() *CORSGuard {
	return &CORSGuard{}
}

// Authorize applies the per-project CORS state machine. On an allowed
// browser origin it sets the CORS response headers; an allowed OPTIONS
// preflight is answered immediately, reported via the handled return.
//
//   - No Origin header: a server-to-server call. The API-secret header
//     must be present; its value is vetted elsewhere.
//   - Origin present, project in dev mode, loopback origin: allowed.
//   - Origin equal to the project's whitelisted domain (scheme-sensitive,
//     exact string match): allowed.
//   - Anything else: forbidden.
func (g *CORSGuard) Authorize(c *gin.Context, project store.Project) (handled bool, err error) {
	origin := c.GetHeader("Origin")

	if origin == "" {
		if c.GetHeader(APISecretHeader) == "" {
			return false, apierror.BadRequest("API secret missing")
		}
		return false, nil
	}

	if project.DevMode && loopbackOrigin.MatchString(origin) {
		return g.allow(c, origin), nil
	}

	if project.WhitelistedDomain != "" && origin == project.WhitelistedDomain {
		return g.allow(c, origin), nil
	}

	return false, apierror.Forbidden("forbidden domain, update whitelisted domain")
}

func (g *CORSGuard) allow(c *gin.Context, origin string) (handled bool) {
	c.Header("Access-Control-Allow-Origin", origin)
	c.Header("Access-Control-Allow-Methods", allowedMethods)
	c.Header("Access-Control-Allow-Headers", allowedHeaders)

	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusOK)
		return true
	}
	return false
}
