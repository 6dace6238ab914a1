package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "rpc-gateway"

// Token types carried in the `type` claim. App tokens authenticate
// server-to-server callers; id tokens authenticate a signed-in account.
const (
	TokenTypeApp = "app_user"
	TokenTypeID  = "id_user"
)

// AppClaims are the claims of a server-to-server app token.
type AppClaims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
}

// IDClaims are the claims of an account identity token.
type IDClaims struct {
	jwt.RegisteredClaims
	Type      string `json:"type"`
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
}

// issueAppToken signs a new app token valid for ttl.
func issueAppToken(secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: TokenTypeApp,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign app token: %w", err)
	}
	return signed, nil
}

// issueIDToken signs a new identity token for the account, valid for ttl.
func issueIDToken(secret []byte, accountID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := IDClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type:      TokenTypeID,
		AccountID: accountID,
		Email:     email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign id token: %w", err)
	}
	return signed, nil
}

// parseAppToken verifies signature, expiry, and the app token type.
func parseAppToken(secret []byte, tokenString string) (*AppClaims, error) {
	claims := &AppClaims{}
	if err := parseInto(secret, tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeApp {
		return nil, fmt.Errorf("unexpected token type %q", claims.Type)
	}
	return claims, nil
}

// parseIDToken verifies signature, expiry, and the id token type.
func parseIDToken(secret []byte, tokenString string) (*IDClaims, error) {
	claims := &IDClaims{}
	if err := parseInto(secret, tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeID {
		return nil, fmt.Errorf("unexpected token type %q", claims.Type)
	}
	return claims, nil
}

func parseInto(secret []byte, tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}
