// Package auth implements account authentication for the gateway: local
// password sign-in, server-to-server app tokens, identity bearer tokens
// with blacklist-backed sign-out, and Google profile sign-in.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sorobuild/rpc-gateway/internal/apierror"
	"github.com/sorobuild/rpc-gateway/internal/store"
)

// MinPasswordLength is the shortest password accepted at signup.
const MinPasswordLength = 6

// Strategy selects how a caller proves who they are.
type Strategy int

const (
	// StrategyPassword authenticates with email and password.
	StrategyPassword Strategy = iota
	// StrategyBearerApp authenticates a server-to-server app token.
	StrategyBearerApp
	// StrategyBearerID authenticates an account identity token.
	StrategyBearerID
	// StrategyOAuthGoogle authenticates a verified Google profile.
	StrategyOAuthGoogle
)

// String returns the strategy's wire name.
func (s Strategy) String() string {
	switch s {
	case StrategyPassword:
		return "password"
	case StrategyBearerApp:
		return "bearer-app"
	case StrategyBearerID:
		return "bearer-id"
	case StrategyOAuthGoogle:
		return "oauth-google"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Credentials carries the inputs of all strategies; each strategy reads
// only the fields it needs.
type Credentials struct {
	Email    string
	Password string
	Token    string
	Profile  GoogleProfile
}

// GoogleProfile is the externally verified profile handed to the
// oauth-google strategy. Token exchange with the provider happens
// outside this package.
type GoogleProfile struct {
	Email string
	Name  string
}

// Identity is the result of a successful authentication. Account is zero
// for app tokens, which identify a trusted backend rather than a person.
type Identity struct {
	Account   store.Account
	TokenType string
}

// AccountStore is the persistence surface the auth service needs.
type AccountStore interface {
	CreateAccount(ctx context.Context, account store.Account) (store.Account, error)
	GetAccountByID(ctx context.Context, id string) (store.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (store.Account, error)
	UpdateAccount(ctx context.Context, account store.Account) error
	CreateProject(ctx context.Context, project store.Project) (store.Project, error)
}

// Blacklist is the revocation surface consulted for bearer-id tokens.
type Blacklist interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// Config configures a Service.
type Config struct {
	JWTSecret  string
	IDTokenTTL time.Duration
	// APIID and APIKey guard the app-token endpoint.
	APIID  string
	APIKey string
}

// Service authenticates callers and issues tokens.
type Service struct {
	store     AccountStore
	blacklist Blacklist
	mailer    Mailer
	secret    []byte
	idTTL     time.Duration
	apiID     string
	apiKey    string
}

// NewService creates an auth service. mailer may be nil, in which case
// onboarding mail is skipped.
func NewService(cfg Config, accounts AccountStore, bl Blacklist, mailer Mailer) *Service {
	ttl := cfg.IDTokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		store:     accounts,
		blacklist: bl,
		mailer:    mailer,
		secret:    []byte(cfg.JWTSecret),
		idTTL:     ttl,
		apiID:     cfg.APIID,
		apiKey:    cfg.APIKey,
	}
}

// Authenticate runs the selected strategy against the credentials.
func (s *Service) Authenticate(ctx context.Context, strategy Strategy, creds Credentials) (Identity, error) {
	switch strategy {
	case StrategyPassword:
		return s.authenticatePassword(ctx, creds)
	case StrategyBearerApp:
		return s.authenticateBearerApp(creds)
	case StrategyBearerID:
		return s.authenticateBearerID(ctx, creds)
	case StrategyOAuthGoogle:
		return s.authenticateGoogle(ctx, creds)
	default:
		return Identity{}, apierror.Unauthorized(fmt.Sprintf("unknown auth strategy %s", strategy))
	}
}

func (s *Service) authenticatePassword(ctx context.Context, creds Credentials) (Identity, error) {
	account, err := s.store.GetAccountByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return Identity{}, apierror.Unauthorized("invalid email or password")
		}
		return Identity{}, err
	}

	if account.PasswordHash == "" {
		// Social-only account: no local password to check against.
		return Identity{}, apierror.Unauthorized("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(creds.Password)); err != nil {
		return Identity{}, apierror.Unauthorized("invalid email or password")
	}

	return Identity{Account: account, TokenType: TokenTypeID}, nil
}

func (s *Service) authenticateBearerApp(creds Credentials) (Identity, error) {
	if _, err := parseAppToken(s.secret, creds.Token); err != nil {
		return Identity{}, apierror.Unauthorized("invalid app token")
	}
	return Identity{TokenType: TokenTypeApp}, nil
}

func (s *Service) authenticateBearerID(ctx context.Context, creds Credentials) (Identity, error) {
	revoked, err := s.blacklist.IsRevoked(ctx, creds.Token)
	if err != nil {
		return Identity{}, err
	}
	if revoked {
		return Identity{}, apierror.Unauthorized("token has been revoked")
	}

	claims, err := parseIDToken(s.secret, creds.Token)
	if err != nil {
		return Identity{}, apierror.Unauthorized("invalid id token")
	}

	account, err := s.store.GetAccountByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return Identity{}, apierror.Unauthorized("account no longer exists")
		}
		return Identity{}, err
	}

	return Identity{Account: account, TokenType: TokenTypeID}, nil
}

func (s *Service) authenticateGoogle(ctx context.Context, creds Credentials) (Identity, error) {
	if creds.Profile.Email == "" {
		return Identity{}, apierror.Unauthorized("google profile has no email")
	}

	account, err := s.store.GetAccountByEmail(ctx, creds.Profile.Email)
	if errors.Is(err, store.ErrAccountNotFound) {
		return s.createGoogleAccount(ctx, creds.Profile)
	}
	if err != nil {
		return Identity{}, err
	}

	if !hasProvider(account.AuthProviders, "google") {
		account.AuthProviders = account.AuthProviders + ",google"
		if err := s.store.UpdateAccount(ctx, account); err != nil {
			return Identity{}, err
		}
	}

	return Identity{Account: account, TokenType: TokenTypeID}, nil
}

func (s *Service) createGoogleAccount(ctx context.Context, profile GoogleProfile) (Identity, error) {
	account, err := s.store.CreateAccount(ctx, store.Account{
		ID:            uuid.NewString(),
		Email:         profile.Email,
		Name:          profile.Name,
		AuthProviders: "google",
		Verified:      true, // the provider vouches for the address
	})
	if err != nil {
		return Identity{}, err
	}

	if _, err := s.store.CreateProject(ctx, store.Project{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Name:      "default",
	}); err != nil {
		return Identity{}, err
	}

	s.sendWelcome(ctx, account)
	return Identity{Account: account, TokenType: TokenTypeID}, nil
}

// Signup registers a local account, provisions its default project, and
// returns the account with a fresh identity token.
func (s *Service) Signup(ctx context.Context, email, name, password string) (store.Account, string, error) {
	if email == "" || password == "" {
		return store.Account{}, "", apierror.BadRequest("email and password are required")
	}
	if !strings.Contains(email, "@") {
		return store.Account{}, "", apierror.BadRequest("invalid email address")
	}
	if len(password) < MinPasswordLength {
		return store.Account{}, "", apierror.BadRequest(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.Account{}, "", fmt.Errorf("failed to hash password: %w", err)
	}

	account, err := s.store.CreateAccount(ctx, store.Account{
		ID:            uuid.NewString(),
		Email:         email,
		Name:          name,
		AuthProviders: "password",
		PasswordHash:  string(hash),
		Verified:      true,
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return store.Account{}, "", apierror.BadRequest("email already registered")
		}
		return store.Account{}, "", err
	}

	if _, err := s.store.CreateProject(ctx, store.Project{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Name:      "default",
	}); err != nil {
		return store.Account{}, "", err
	}

	s.sendWelcome(ctx, account)

	token, err := issueIDToken(s.secret, account.ID, account.Email, s.idTTL)
	if err != nil {
		return store.Account{}, "", err
	}
	return account, token, nil
}

// Signin authenticates with the password strategy and returns an identity token.
func (s *Service) Signin(ctx context.Context, email, password string) (store.Account, string, error) {
	identity, err := s.Authenticate(ctx, StrategyPassword, Credentials{Email: email, Password: password})
	if err != nil {
		return store.Account{}, "", err
	}

	token, err := issueIDToken(s.secret, identity.Account.ID, identity.Account.Email, s.idTTL)
	if err != nil {
		return store.Account{}, "", err
	}
	return identity.Account, token, nil
}

// Signout blacklists the identity token for its remaining lifetime.
func (s *Service) Signout(ctx context.Context, token string) error {
	claims, err := parseIDToken(s.secret, token)
	if err != nil {
		return apierror.Unauthorized("invalid id token")
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	return s.blacklist.Revoke(ctx, token, ttl)
}

// AppToken issues a server-to-server app token after checking the
// configured api credentials.
func (s *Service) AppToken(apiID, apiKey string) (string, error) {
	if apiID != s.apiID || apiKey != s.apiKey {
		return "", apierror.Unauthorized("invalid api credentials")
	}
	return issueAppToken(s.secret, 24*time.Hour)
}

// GoogleSignin resolves (or creates) the account for the profile and
// returns an identity token.
func (s *Service) GoogleSignin(ctx context.Context, profile GoogleProfile) (store.Account, string, error) {
	identity, err := s.Authenticate(ctx, StrategyOAuthGoogle, Credentials{Profile: profile})
	if err != nil {
		return store.Account{}, "", err
	}

	token, err := issueIDToken(s.secret, identity.Account.ID, identity.Account.Email, s.idTTL)
	if err != nil {
		return store.Account{}, "", err
	}
	return identity.Account, token, nil
}

func (s *Service) sendWelcome(ctx context.Context, account store.Account) {
	if s.mailer == nil {
		return
	}
	// Mail delivery is best effort; a failed welcome mail must not fail signup.
	_ = s.mailer.SendWelcome(ctx, account.Email, account.Name)
}

func hasProvider(providers, name string) bool {
	for _, p := range strings.Split(providers, ",") {
		if strings.TrimSpace(p) == name {
			return true
		}
	}
	return false
}
