package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// PasswordService applies PasswordPolicy to account creation and password changes.
type PasswordService struct {
	users   UserStore
	roles   RoleStore
	history PasswordHistoryStore
	policy  PasswordPolicy
	cost    int
	now     func() time.Time
}

// PasswordOption configures PasswordService.
type PasswordOption func(*PasswordService)

// WithPolicy overrides the default password policy.
func WithPolicy(p PasswordPolicy) PasswordOption {
	return func(s *PasswordService) { s.policy = p }
}

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) PasswordOption {
	return func(s *PasswordService) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

// WithPasswordClock overrides the time source.
func WithPasswordClock(fn func() time.Time) PasswordOption {
	return func(s *PasswordService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewPasswordService wires the stores the policy needs.
func NewPasswordService(users UserStore, roles RoleStore, history PasswordHistoryStore, opts ...PasswordOption) (*PasswordService, error) {
	if users == nil || roles == nil || history == nil {
		return nil, errors.New("password service: user, role and history stores are required")
	}
	s := &PasswordService{
		users:   users,
		roles:   roles,
		history: history,
		policy:  DefaultPasswordPolicy(),
		cost:    bcrypt.DefaultCost,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Policy returns the active policy.
func (s *PasswordService) Policy() PasswordPolicy { return s.policy }

// NewUser carries the fields needed to create an account.
type NewUser struct {
	Username            string     `json:"username"`
	Password            string     `json:"password"`
	Role                string     `json:"role"`
	Email               string     `json:"email"`
	ExpirationDate      *time.Time `json:"expirationDate"`
	ForcePasswordUpdate bool       `json:"forcePasswordUpdate"`
}

// CreateUser validates the initial password and stores the account. The store
// seeds the password history with exactly one entry.
func (s *PasswordService) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	roleName := strings.ToUpper(strings.TrimSpace(in.Role))
	if roleName == "" {
		return nil, fmt.Errorf("%w: role is required", ErrInvalidInput)
	}
	if violations := s.policy.CheckComplexity(username, in.Password); len(violations) > 0 {
		return nil, &PolicyError{Violations: violations}
	}
	role, err := s.roles.FindRoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown role %s", ErrInvalidInput, roleName)
		}
		return nil, err
	}
	hash, err := HashPassword(in.Password, s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &User{
		Username:            username,
		PasswordHash:        hash,
		Role:                role,
		Enabled:             true,
		Email:               strings.TrimSpace(in.Email),
		ExpirationDate:      in.ExpirationDate,
		ForcePasswordUpdate: in.ForcePasswordUpdate,
		CreatedAt:           s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user, s.policy.Retained()); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword replaces the password of username after verifying the current one.
func (s *PasswordService) ChangePassword(ctx context.Context, username, currentPassword, newPassword string) error {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if !matchesHash(user.PasswordHash, currentPassword) {
		return ErrInvalidCredentials
	}
	return s.apply(ctx, user, newPassword)
}

// ResetPassword sets a new password without knowledge of the current one.
// All policy rules still apply.
func (s *PasswordService) ResetPassword(ctx context.Context, username, newPassword string) error {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return err
	}
	return s.apply(ctx, user, newPassword)
}

func (s *PasswordService) apply(ctx context.Context, user *User, candidate string) error {
	violations := s.policy.CheckComplexity(user.Username, candidate)
	reused, err := s.reused(ctx, user, candidate)
	if err != nil {
		return err
	}
	if reused {
		violations = append(violations, fmt.Sprintf("must differ from the current password and the last %d passwords", s.policy.Retained()))
	}
	if len(violations) > 0 {
		return &PolicyError{Violations: violations}
	}
	hash, err := HashPassword(candidate, s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.history.ChangePassword(ctx, user.ID, hash, s.now().UTC(), s.policy.Retained())
}

func (s *PasswordService) reused(ctx context.Context, user *User, candidate string) (bool, error) {
	if matchesHash(user.PasswordHash, candidate) {
		return true, nil
	}
	keep := s.policy.Retained()
	if keep == 0 {
		return false, nil
	}
	hashes, err := s.history.RecentPasswordHashes(ctx, user.ID, keep)
	if err != nil {
		return false, fmt.Errorf("load password history: %w", err)
	}
	for _, h := range hashes {
		if matchesHash(h, candidate) {
			return true, nil
		}
	}
	return false, nil
}
