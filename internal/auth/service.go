package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultMaxFailedLogins is the number of consecutive bad passwords that locks an account.
const DefaultMaxFailedLogins = 5

// Service runs the authentication pipeline: credential login, refresh, bearer
// authentication and logout.
type Service struct {
	users           UserStore
	tokens          *TokenService
	revocations     *RevocationService
	maxFailedLogins int
	loginHashCost   int
	dummyHash       func() string
	now             func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithMaxFailedLogins sets the lockout threshold; n <= 0 disables lockout.
func WithMaxFailedLogins(n int) ServiceOption {
	return func(s *Service) { s.maxFailedLogins = n }
}

// WithLoginHashCost sets the bcrypt cost of the placeholder hash compared
// against when the username is unknown. It should match the cost of stored
// hashes; 0 selects bcrypt's default.
func WithLoginHashCost(cost int) ServiceOption {
	return func(s *Service) { s.loginHashCost = cost }
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs Service.
func NewService(users UserStore, tokens *TokenService, revocations *RevocationService, opts ...ServiceOption) (*Service, error) {
	if users == nil || tokens == nil || revocations == nil {
		return nil, errors.New("auth service: users, tokens and revocations are required")
	}
	svc := &Service{
		users:           users,
		tokens:          tokens,
		revocations:     revocations,
		maxFailedLogins: DefaultMaxFailedLogins,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.dummyHash = sync.OnceValue(func() string {
		hash, _ := HashPassword("unknown-account-placeholder", svc.loginHashCost)
		return hash
	})
	return svc, nil
}

// Tokens exposes the token service used by the pipeline.
func (s *Service) Tokens() *TokenService { return s.tokens }

// Revocations exposes the blacklist service used by the pipeline.
func (s *Service) Revocations() *RevocationService { return s.revocations }

// TokenPair represents access and refresh tokens along with their expirations.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Login authenticates credentials and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, *User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// spend a bcrypt comparison so unknown names cost the same as bad passwords
			matchesHash(s.dummyHash(), password)
			return TokenPair{}, nil, ErrInvalidCredentials
		}
		return TokenPair{}, nil, err
	}
	now := s.now()
	if err := accountStatus(user, now); err != nil {
		return TokenPair{}, nil, err
	}
	if !matchesHash(user.PasswordHash, password) {
		if s.maxFailedLogins > 0 {
			_, locked, ferr := s.users.RecordLoginFailure(ctx, user.ID, s.maxFailedLogins)
			if ferr != nil {
				return TokenPair{}, nil, fmt.Errorf("record login failure: %w", ferr)
			}
			if locked {
				return TokenPair{}, nil, ErrAccountLocked
			}
		}
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if err := s.users.RecordLoginSuccess(ctx, user.ID, now.UTC()); err != nil {
		return TokenPair{}, nil, fmt.Errorf("record login: %w", err)
	}
	pair, err := s.mint(user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Refresh exchanges a refresh token for a new access token. A token of any
// other type yields ErrWrongTokenType.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.tokens.Parse(refreshToken)
	if err != nil {
		return "", time.Time{}, ErrInvalidToken
	}
	if claims.TokenType != TokenTypeRefresh {
		return "", time.Time{}, ErrWrongTokenType
	}
	user, err := s.verifyHolder(ctx, claims)
	if err != nil {
		return "", time.Time{}, err
	}
	access, err := s.tokens.GenerateToken(user)
	if err != nil {
		return "", time.Time{}, err
	}
	return access, s.now().UTC().Add(s.tokens.AccessTTL()), nil
}

// Authenticate resolves the principal for a bearer access token: signature and
// expiry, token type, revocation, then account status.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	if claims.TokenType != TokenTypeAccess {
		return Principal{}, ErrWrongTokenType
	}
	user, err := s.verifyHolder(ctx, claims)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(user, claims), nil
}

// Logout revokes the presented access token and, when given, the refresh
// token. It reports false if the access token was already revoked.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) (bool, error) {
	ok, err := s.revocations.Revoke(ctx, accessToken, ReasonLogout)
	if err != nil || !ok {
		return ok, err
	}
	if strings.TrimSpace(refreshToken) != "" {
		if _, err := s.revocations.Revoke(ctx, refreshToken, ReasonLogout); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (s *Service) verifyHolder(ctx context.Context, claims *Claims) (*User, error) {
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("revocation lookup: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	user, err := s.users.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if err := accountStatus(user, s.now()); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) mint(user *User) (TokenPair, error) {
	now := s.now().UTC()
	access, err := s.tokens.GenerateToken(user)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.tokens.GenerateRefreshToken(user)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(s.tokens.AccessTTL()),
		RefreshExpiresAt: now.Add(s.tokens.RefreshTTL()),
	}, nil
}

func accountStatus(user *User, now time.Time) error {
	switch {
	case !user.Enabled:
		return ErrAccountDisabled
	case user.AccountLocked:
		return ErrAccountLocked
	case user.Expired(now):
		return ErrAccountExpired
	}
	return nil
}

// IsAuthenticationFailure reports whether err must surface as 401.
func IsAuthenticationFailure(err error) bool {
	for _, target := range []error{
		ErrInvalidToken, ErrWrongTokenType, ErrTokenRevoked, ErrInvalidCredentials,
		ErrAccountDisabled, ErrAccountLocked, ErrAccountExpired, ErrUnauthenticated,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
