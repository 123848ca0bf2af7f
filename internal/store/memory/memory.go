// Package memory keeps accounts, roles, password history and the token
// blacklist in process memory. It backs local development when no database
// is configured and the HTTP tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ammonsd/activitytracking/internal/auth"
	"github.com/ammonsd/activitytracking/internal/ids"
)

var (
	_ auth.UserStore            = (*Store)(nil)
	_ auth.RoleStore            = (*Store)(nil)
	_ auth.PasswordHistoryStore = (*Store)(nil)
	_ auth.RevokedTokenStore    = (*Store)(nil)
)

// Store implements every auth store with in-process concurrency safety.
type Store struct {
	mu      sync.RWMutex
	users   map[string]*auth.User // username -> user
	roles   map[string]*auth.Role // name -> role
	history map[string][]auth.PasswordHistory
	revoked map[string]auth.RevokedToken // jti -> entry
}

// New creates an empty store with no roles.
func New() *Store {
	return &Store{
		users:   make(map[string]*auth.User),
		roles:   make(map[string]*auth.Role),
		history: make(map[string][]auth.PasswordHistory),
		revoked: make(map[string]auth.RevokedToken),
	}
}

// NewSeeded creates a store holding the built-in roles with the same grants
// the database seed migration installs.
func NewSeeded() *Store {
	s := New()
	basic := [][2]string{
		{auth.ResourceTaskActivity, auth.ActionCreate}, {auth.ResourceTaskActivity, auth.ActionRead},
		{auth.ResourceTaskActivity, auth.ActionUpdate}, {auth.ResourceTaskActivity, auth.ActionDelete},
		{auth.ResourceExpense, auth.ActionCreate}, {auth.ResourceExpense, auth.ActionRead},
		{auth.ResourceExpense, auth.ActionUpdate}, {auth.ResourceExpense, auth.ActionDelete},
		{auth.ResourceDropdown, auth.ActionRead}, {auth.ResourceReport, auth.ActionRead},
	}
	all := make([][2]string, 0, len(auth.BuiltinPermissions))
	for _, p := range auth.BuiltinPermissions {
		all = append(all, [2]string{p.Resource, p.Action})
	}
	s.PutRole(auth.RoleAdmin, all...)
	s.PutRole(auth.RoleUser, basic...)
	s.PutRole(auth.RoleExpenseAdmin, append(basic,
		[2]string{auth.ResourceExpense, auth.ActionReadAll},
		[2]string{auth.ResourceExpense, auth.ActionApprove},
		[2]string{auth.ResourceTaskActivity, auth.ActionReadAll},
	)...)
	s.PutRole(auth.RoleGuest,
		[2]string{auth.ResourceTaskActivity, auth.ActionRead},
		[2]string{auth.ResourceDropdown, auth.ActionRead},
		[2]string{auth.ResourceReport, auth.ActionRead},
	)
	return s
}

// PutRole creates or replaces the role name with the given resource/action grants.
func (s *Store) PutRole(name string, grants ...[2]string) *auth.Role {
	role := &auth.Role{ID: ids.New(), Name: strings.ToUpper(strings.TrimSpace(name))}
	for _, g := range grants {
		role.Permissions = append(role.Permissions, auth.Permission{
			ID:       ids.New(),
			Resource: strings.ToUpper(g[0]),
			Action:   strings.ToUpper(g[1]),
		})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role.Name] = role
	// users reference roles by pointer, so re-point existing holders
	for _, u := range s.users {
		if u.Role != nil && u.Role.Name == role.Name {
			u.Role = role
		}
	}
	return copyRole(role)
}

// UpdateUser applies fn to the stored account under the write lock.
func (s *Store) UpdateUser(username string, fn func(*auth.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return auth.ErrNotFound
	}
	fn(u)
	return nil
}

func (s *Store) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := *u
	out.Role = copyRole(u.Role)
	return &out, nil
}

func (s *Store) CreateUser(_ context.Context, u *auth.User, historyLimit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; ok {
		return auth.ErrAlreadyExists
	}
	var role *auth.Role
	if u.Role != nil {
		var ok bool
		if role, ok = s.roles[u.Role.Name]; !ok {
			return auth.ErrInvalidInput
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	stored := *u
	stored.Role = role
	s.users[u.Username] = &stored
	if historyLimit > 0 {
		s.history[u.ID] = []auth.PasswordHistory{{
			ID:           ids.NewAt(u.CreatedAt),
			UserID:       u.ID,
			PasswordHash: u.PasswordHash,
			ChangedAt:    u.CreatedAt,
		}}
	}
	return nil
}

func (s *Store) RecordLoginSuccess(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byID(userID)
	if u == nil {
		return auth.ErrNotFound
	}
	u.FailedLoginAttempts = 0
	u.LastLogin = &at
	return nil
}

func (s *Store) RecordLoginFailure(_ context.Context, userID string, lockThreshold int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byID(userID)
	if u == nil {
		return 0, false, auth.ErrNotFound
	}
	u.FailedLoginAttempts++
	if lockThreshold > 0 && u.FailedLoginAttempts >= lockThreshold {
		u.AccountLocked = true
	}
	return u.FailedLoginAttempts, u.AccountLocked, nil
}

func (s *Store) FindRoleByName(_ context.Context, name string) (*auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return copyRole(r), nil
}

func (s *Store) RecentPasswordHashes(_ context.Context, userID string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.history[userID]
	out := make([]string, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i].PasswordHash)
	}
	return out, nil
}

func (s *Store) ChangePassword(_ context.Context, userID, passwordHash string, changedAt time.Time, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byID(userID)
	if u == nil {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ForcePasswordUpdate = false
	if keep <= 0 {
		return nil
	}
	entries := append(s.history[userID], auth.PasswordHistory{
		ID:           ids.NewAt(changedAt),
		UserID:       userID,
		PasswordHash: passwordHash,
		ChangedAt:    changedAt,
	})
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ChangedAt.Before(entries[j].ChangedAt) })
	if len(entries) > keep {
		entries = entries[len(entries)-keep:]
	}
	s.history[userID] = entries
	return nil
}

func (s *Store) Insert(_ context.Context, tok *auth.RevokedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revoked[tok.JTI]; ok {
		return auth.ErrAlreadyRevoked
	}
	entry := *tok
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	s.revoked[tok.JTI] = entry
	return nil
}

func (s *Store) Exists(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[jti]
	return ok, nil
}

// Revoked returns the blacklist entry recorded for jti.
func (s *Store) Revoked(jti string) (auth.RevokedToken, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.revoked[jti]
	return tok, ok
}

func (s *Store) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for jti, tok := range s.revoked {
		if !tok.ExpirationTime.After(now) {
			delete(s.revoked, jti)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds; it lets the store stand in as a readiness probe.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) byID(id string) *auth.User {
	for _, u := range s.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func copyRole(r *auth.Role) *auth.Role {
	if r == nil {
		return nil
	}
	out := *r
	out.Permissions = append([]auth.Permission(nil), r.Permissions...)
	return &out
}
