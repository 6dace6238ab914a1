package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sorobuild/rpc-gateway/internal/api"
	"github.com/sorobuild/rpc-gateway/internal/apierror"
	"github.com/sorobuild/rpc-gateway/internal/auth"
	"github.com/sorobuild/rpc-gateway/internal/store"
)

func accountResponse(account store.Account) api.AccountResponse {
	return api.AccountResponse{
		ID:            account.ID,
		Email:         account.Email,
		Name:          account.Name,
		AuthProviders: account.AuthProviders,
		Plan:          account.Plan,
		RPCCredits:    account.RPCCredits,
		ProjectLimit:  account.ProjectLimit,
		Verified:      account.Verified,
		CreatedAt:     account.CreatedAt,
		UpdatedAt:     account.UpdatedAt,
	}
}

// POST /auth/token
func (s *Server) handleAppToken(c *gin.Context) {
	var req api.AppTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierror.BadRequest("invalid request body"))
		return
	}

	token, err := s.auth.AppToken(req.APIID, req.APIKey)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, api.TokenResponse{Token: token, TokenType: auth.TokenTypeApp})
}

// POST /auth/signup
func (s *Server) handleSignup(c *gin.Context) {
	var req api.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierror.BadRequest("invalid request body"))
		return
	}

	account, token, err := s.auth.Signup(c.Request.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, api.SessionResponse{Account: accountResponse(account), Token: token})
}

// POST /auth/signin
func (s *Server) handleSignin(c *gin.Context) {
	var req api.SigninRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierror.BadRequest("invalid request body"))
		return
	}

	account, token, err := s.auth.Signin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, api.SessionResponse{Account: accountResponse(account), Token: token})
}

// POST /auth/signout
func (s *Server) handleSignout(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		fail(c, apierror.Unauthorized("missing or invalid Authorization header"))
		return
	}

	if err := s.auth.Signout(c.Request.Context(), token); err != nil {
		fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// POST /auth/google
//
// The profile arrives already verified; token exchange with the provider
// happens at the edge, before this endpoint is reached.
func (s *Server) handleGoogleSignin(c *gin.Context) {
	var req api.GoogleSigninRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierror.BadRequest("invalid request body"))
		return
	}

	account, token, err := s.auth.GoogleSignin(c.Request.Context(), auth.GoogleProfile{
		Email: req.Email,
		Name:  req.Name,
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, api.SessionResponse{Account: accountResponse(account), Token: token})
}
