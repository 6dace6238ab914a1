package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sorobuild/rpc-gateway/internal/apierror"
	"github.com/sorobuild/rpc-gateway/internal/gateway"
)

// maxResourceSegments bounds the Horizon resource path depth; no
// Horizon route nests deeper than collection/id/subcollection.
const maxResourceSegments = 3

// handleRPC forwards a JSON-RPC body to the RPC upstream for :network.
// The gated variant runs the full admission pipeline; the open variant
// only validates the network.
func (s *Server) handleRPC(gated bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		network, err := gateway.ParseNetwork(c.Param("network"))
		if err != nil {
			fail(c, err)
			return
		}

		body, err := s.readBody(c)
		if err != nil {
			fail(c, err)
			return
		}

		s.proxyRequest(c, gateway.Request{
			API:     gateway.APIRPC,
			Network: network,
			Key:     c.Query("key"),
			Gated:   gated,
			Body:    body,
		})
	}
}

// handleHorizon forwards a GET to the Horizon upstream. The wildcard
// resource may start with an "open" segment selecting the ungated
// variant; the remaining segments form the upstream resource path.
func (s *Server) handleHorizon(c *gin.Context) {
	network, err := gateway.ParseNetwork(c.Param("network"))
	if err != nil {
		fail(c, err)
		return
	}

	segments := splitResource(c.Param("resource"))
	gated := true
	if len(segments) > 0 && segments[0] == "open" {
		gated = false
		segments = segments[1:]
	}
	if len(segments) > maxResourceSegments {
		fail(c, apierror.BadRequest("resource path supports at most three segments"))
		return
	}

	s.proxyRequest(c, gateway.Request{
		API:      gateway.APIHorizon,
		Network:  network,
		Resource: gateway.NewResourcePath(segments...),
		Key:      c.Query("key"),
		Gated:    gated,
	})
}

func (s *Server) proxyRequest(c *gin.Context, req gateway.Request) {
	resp, err := s.pipeline.Handle(c, req)
	if err != nil {
		fail(c, err)
		return
	}
	if resp == nil {
		// Answered preflight.
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.Status, contentType, resp.Body)
}

func (s *Server) readBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	reader := http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxRequestSize)
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, apierror.BadRequest("request body too large")
	}
	return body, nil
}

func splitResource(raw string) []string {
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "/")
}
