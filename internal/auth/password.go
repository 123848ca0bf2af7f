package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultMinPasswordLength  = 10
	DefaultPasswordHistoryLen = 5

	// MaxPasswordBytes is the longest input bcrypt will hash.
	MaxPasswordBytes = 72

	// SpecialCharacters is the set a password must draw at least one character from.
	SpecialCharacters = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

// PasswordPolicy holds the complexity and reuse rules applied on every
// password set or change.
type PasswordPolicy struct {
	MinLength      int
	HistoryEnabled bool
	HistorySize    int
}

// DefaultPasswordPolicy returns the policy used when nothing is configured.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:      DefaultMinPasswordLength,
		HistoryEnabled: true,
		HistorySize:    DefaultPasswordHistoryLen,
	}
}

// Retained is the number of history rows kept per user, 0 when disabled.
func (p PasswordPolicy) Retained() int {
	if !p.HistoryEnabled || p.HistorySize <= 0 {
		return 0
	}
	return p.HistorySize
}

// PolicyError aggregates every rule a candidate password failed.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return "Password does not meet requirements: " + strings.Join(e.Violations, "; ")
}

// IsPolicyViolation reports whether err carries a PolicyError.
func IsPolicyViolation(err error) bool {
	var pe *PolicyError
	return errors.As(err, &pe)
}

// CheckComplexity validates the structural rules and returns the failed ones.
func (p PasswordPolicy) CheckComplexity(username, candidate string) []string {
	minLen := p.MinLength
	if minLen <= 0 {
		minLen = DefaultMinPasswordLength
	}
	var violations []string
	if len([]rune(candidate)) < minLen {
		violations = append(violations, fmt.Sprintf("must be at least %d characters long", minLen))
	}
	if len(candidate) > MaxPasswordBytes {
		violations = append(violations, fmt.Sprintf("must be at most %d bytes long", MaxPasswordBytes))
	}
	var hasUpper, hasDigit, hasSpecial bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(SpecialCharacters, r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		violations = append(violations, "must contain at least one uppercase letter")
	}
	if !hasDigit {
		violations = append(violations, "must contain at least one digit")
	}
	if !hasSpecial {
		violations = append(violations, "must contain at least one special character ("+SpecialCharacters+")")
	}
	if hasRepeatRun(candidate, 3) {
		violations = append(violations, "must not contain more than two identical consecutive characters")
	}
	if u := strings.TrimSpace(username); u != "" && strings.Contains(strings.ToLower(candidate), strings.ToLower(u)) {
		violations = append(violations, "must not contain the username")
	}
	return violations
}

// hasRepeatRun reports whether s contains n identical consecutive runes.
func hasRepeatRun(s string, n int) bool {
	run := 0
	var prev rune
	for i, r := range []rune(s) {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
		prev = r
	}
	return false
}

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string, cost int) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares plaintext password with stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func matchesHash(hash, password string) bool {
	return hash != "" && VerifyPassword(hash, password) == nil
}
