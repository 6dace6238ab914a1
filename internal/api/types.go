// Package api provides types for API requests and responses shared between
// the server and clients.
package api

import "time"

// SignupRequest is the request body for creating an account.
type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required,min=6"`
}

// SigninRequest is the request body for password sign-in.
type SigninRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// GoogleSigninRequest carries an externally verified Google profile.
type GoogleSigninRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AppTokenRequest is the request body for the server-to-server token endpoint.
type AppTokenRequest struct {
	APIID  string `json:"api_id"`
	APIKey string `json:"api_key"`
}

// TokenResponse is the response body for issued tokens.
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
}

// AccountResponse is the account shape returned by management endpoints.
// Password material is never included.
type AccountResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	AuthProviders string    `json:"authProviders"`
	Plan          string    `json:"plan"`
	RPCCredits    int64     `json:"rpcCredits"`
	ProjectLimit  int       `json:"projectLimit"`
	Verified      bool      `json:"verified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SessionResponse is the response body for signup and signin.
type SessionResponse struct {
	Account AccountResponse `json:"account"`
	Token   string          `json:"token"`
}

// ProjectCreateRequest is the request body for creating a project.
type ProjectCreateRequest struct {
	Name              string `json:"name"`
	WhitelistedDomain string `json:"whitelistedDomain"`
	DevMode           bool   `json:"devMode"`
}

// ProjectUpdateRequest is the request body for updating a project.
// Nil fields are left unchanged.
type ProjectUpdateRequest struct {
	Name              *string `json:"name"`
	WhitelistedDomain *string `json:"whitelistedDomain"`
	DevMode           *bool   `json:"devMode"`
}

// ProjectResponse is the project shape returned by management endpoints.
// Key is the project's API key, present only where the endpoint issues it.
type ProjectResponse struct {
	ID                string    `json:"id"`
	AccountID         string    `json:"accountId"`
	Name              string    `json:"name"`
	WhitelistedDomain string    `json:"whitelistedDomain"`
	DevMode           bool      `json:"devMode"`
	Key               string    `json:"key,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// CreditsResponse is the response body for the credit endpoints.
type CreditsResponse struct {
	AccountID  string `json:"accountId"`
	RPCCredits int64  `json:"rpcCredits"`
}

// CreditTopUpRequest is the request body for adding credits.
type CreditTopUpRequest struct {
	Amount int64 `json:"amount"`
}
