package auth

import "time"

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID    string
	Username  string
	Roles     []string
	TokenID   string
	ExpiresAt time.Time
}

// NewPrincipal builds the principal for a user authenticated by the given claims.
func NewPrincipal(user *User, claims *Claims) Principal {
	p := Principal{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    user.RoleNames(),
	}
	if claims != nil {
		p.TokenID = claims.ID
		if claims.ExpiresAt != nil {
			p.ExpiresAt = claims.ExpiresAt.Time
		}
	}
	return p
}

// HasRole reports whether the principal was granted role at authentication time.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
