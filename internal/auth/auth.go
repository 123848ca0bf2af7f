package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour

	// 256 bits for HS256.
	minSecretBytes = 32
)

var (
	ErrMissingSecret  = errors.New("auth: signing secret is not configured")
	ErrInsecureSecret = errors.New("auth: signing secret is a known insecure default")
	ErrWeakSecret     = fmt.Errorf("auth: signing secret must be at least %d bits", minSecretBytes*8)

	// ErrInvalidToken indicates the token failed signature, format or expiry checks.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Values shipped in sample configs and tutorials. A deployment still using one
// of them must not start.
var insecureSecrets = []string{
	"secret",
	"changeme",
	"change-me",
	"changeme-super-secret-key",
	"your-secret-key",
	"your-256-bit-secret",
	"mysecretkey",
	"default-secret",
	"default-secret-key-change-in-production",
	"activitytracking-default-jwt-secret-change-me",
}

// Claims is the schema of every issued token.
type Claims struct {
	Roles     []string  `json:"roles,omitempty"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// ValidateSecret enforces the signing-secret startup contract.
func ValidateSecret(secret string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ErrMissingSecret
	}
	for _, known := range insecureSecrets {
		if strings.EqualFold(secret, known) {
			return ErrInsecureSecret
		}
	}
	if len(secret) < minSecretBytes {
		return ErrWeakSecret
	}
	return nil
}

// TokenService issues and parses HS256 access and refresh tokens.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenOption configures TokenService.
type TokenOption func(*TokenService)

// WithIssuer sets the iss claim; parsing then requires the same issuer.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		s.issuer = strings.TrimSpace(issuer)
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService validates the secret and constructs the service. Callers
// must treat an error as fatal.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if err := ValidateSecret(secret); err != nil {
		return nil, err
	}
	s := &TokenService{
		secret:     []byte(strings.TrimSpace(secret)),
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// GenerateToken signs an access token for user.
func (s *TokenService) GenerateToken(user *User) (string, error) {
	return s.issue(user, TokenTypeAccess, s.accessTTL)
}

// GenerateRefreshToken signs a refresh token for user.
func (s *TokenService) GenerateRefreshToken(user *User) (string, error) {
	return s.issue(user, TokenTypeRefresh, s.refreshTTL)
}

func (s *TokenService) issue(user *User, typ TokenType, ttl time.Duration) (string, error) {
	if user == nil || strings.TrimSpace(user.Username) == "" {
		return "", fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	claims := Claims{
		Roles:     user.RoleNames(),
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature and expiry and returns the token claims. Any
// failure is reported as ErrInvalidToken.
func (s *TokenService) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExtractUsername returns the token subject.
func (s *TokenService) ExtractUsername(token string) (string, error) {
	claims, err := s.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ExtractExpiration returns the token exp claim.
func (s *TokenService) ExtractExpiration(token string) (time.Time, error) {
	claims, err := s.Parse(token)
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt.Time, nil
}

// ExtractTokenType returns the token_type claim.
func (s *TokenService) ExtractTokenType(token string) (TokenType, error) {
	claims, err := s.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.TokenType, nil
}

// ExtractJTI returns the unique token identifier, empty when absent.
func (s *TokenService) ExtractJTI(token string) (string, error) {
	claims, err := s.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.ID, nil
}

// IsRefreshToken reports whether token is a valid refresh token.
func (s *TokenService) IsRefreshToken(token string) bool {
	typ, err := s.ExtractTokenType(token)
	return err == nil && typ == TokenTypeRefresh
}

// ValidateToken checks subject match and non-expiry only. Revocation and
// account status are checked by the request pipeline.
func (s *TokenService) ValidateToken(token, expectedSubject string) bool {
	claims, err := s.Parse(token)
	if err != nil {
		return false
	}
	return claims.Subject == expectedSubject && s.now().Before(claims.ExpiresAt.Time)
}
