package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sorobuild/rpc-gateway/internal/apierror"
	"github.com/sorobuild/rpc-gateway/internal/auth"
	"github.com/sorobuild/rpc-gateway/internal/logging"
)

const identityKey = "gateway.identity"

// authPlan is the single bucket name of the auth endpoint limiter.
const authPlan = "auth"

// authThrottle limits the credential endpoints per client IP.
func (s *Server) authThrottle() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authLimiter.Admit(authPlan, c.ClientIP()); err != nil {
			fail(c, err)
			return
		}
		c.Next()
	}
}

// requestID tags every request with an id, propagated through the request
// context and echoed in the X-Request-Id response header.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// requestLogger logs request start and completion with timing, and feeds
// the runtime metrics counters.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		logger := logging.For(c.Request.Context(), s.logger)

		logger.Debug("request started",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("remote_addr", c.ClientIP()),
		)

		c.Next()

		s.metrics.RequestCount.Add(1)
		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			s.metrics.ErrorCount.Add(1)
		}

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status_code", status),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// renderErrors converts errors attached by handlers into the uniform JSON
// envelope. Handlers abort with c.Error and leave the response unwritten.
func (s *Server) renderErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		env := apierror.ToEnvelope(err)
		if env.StatusCode >= http.StatusInternalServerError {
			logging.For(c.Request.Context(), s.logger).Error("request failed",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
		}
		c.JSON(env.StatusCode, env)
	}
}

// fail aborts the request with err; renderErrors produces the body.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func bearerToken(c *gin.Context) string {
	const prefix = "Bearer "
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, prefix) || len(header) == len(prefix) {
		return ""
	}
	return header[len(prefix):]
}

// requireBearer authenticates the Authorization header as either an app
// token or an identity token and stores the identity on the context.
func (s *Server) requireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			fail(c, apierror.Unauthorized("missing or invalid Authorization header"))
			return
		}

		ctx := c.Request.Context()
		identity, err := s.auth.Authenticate(ctx, auth.StrategyBearerApp, auth.Credentials{Token: token})
		if err != nil {
			identity, err = s.auth.Authenticate(ctx, auth.StrategyBearerID, auth.Credentials{Token: token})
		}
		if err != nil {
			fail(c, err)
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// requireAccountAccess lets an app token act on any account, and an
// identity token only on its own.
func (s *Server) requireAccountAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := currentIdentity(c)
		if identity.TokenType == auth.TokenTypeApp {
			c.Next()
			return
		}
		if identity.Account.ID != c.Param("accountId") {
			fail(c, apierror.Forbidden("account mismatch"))
			return
		}
		c.Next()
	}
}

// requireAppToken restricts a route to server-to-server callers.
func (s *Server) requireAppToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentIdentity(c).TokenType != auth.TokenTypeApp {
			fail(c, apierror.Forbidden("app token required"))
			return
		}
		c.Next()
	}
}

func currentIdentity(c *gin.Context) auth.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}
	}
	identity, _ := v.(auth.Identity)
	return identity
}
