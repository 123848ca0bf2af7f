package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RevocationService maintains the server-side token blacklist.
type RevocationService struct {
	tokens *TokenService
	store  RevokedTokenStore
	now    func() time.Time
}

// NewRevocationService constructs the blacklist service.
func NewRevocationService(tokens *TokenService, store RevokedTokenStore) (*RevocationService, error) {
	if tokens == nil || store == nil {
		return nil, errors.New("revocation: token service and store are required")
	}
	return &RevocationService{tokens: tokens, store: store, now: time.Now}, nil
}

// Revoke blacklists token. It returns false when the token carries no jti or
// was already revoked; a concurrent duplicate insert is reported the same way.
func (s *RevocationService) Revoke(ctx context.Context, token string, reason RevocationReason) (bool, error) {
	if !reason.Valid() {
		return false, fmt.Errorf("%w: unknown revocation reason %q", ErrInvalidInput, reason)
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return false, nil
	}
	jti := strings.TrimSpace(claims.ID)
	if jti == "" {
		return false, nil
	}
	entry := &RevokedToken{
		JTI:            jti,
		Username:       claims.Subject,
		TokenType:      claims.TokenType,
		ExpirationTime: claims.ExpiresAt.Time,
		RevokedAt:      s.now().UTC(),
		Reason:         reason,
	}
	if err := s.store.Insert(ctx, entry); err != nil {
		if errors.Is(err, ErrAlreadyRevoked) {
			return false, nil
		}
		return false, fmt.Errorf("insert revoked token: %w", err)
	}
	return true, nil
}

// IsRevoked reports whether jti is blacklisted.
func (s *RevocationService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return false, nil
	}
	return s.store.Exists(ctx, jti)
}

// CleanupExpired removes blacklist entries whose token expired at or before now.
func (s *RevocationService) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.store.DeleteExpired(ctx, now)
}

// RevocationSweeper periodically purges expired blacklist entries.
type RevocationSweeper struct {
	svc      *RevocationService
	interval time.Duration
	logger   *zap.Logger
	onSweep  func(deleted int64)
}

// NewRevocationSweeper builds a sweeper; interval <= 0 defaults to one hour.
func NewRevocationSweeper(svc *RevocationService, interval time.Duration, logger *zap.Logger, onSweep func(int64)) *RevocationSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevocationSweeper{svc: svc, interval: interval, logger: logger, onSweep: onSweep}
}

// Run sweeps once per interval until ctx is cancelled.
func (w *RevocationSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep performs a single cleanup pass.
func (w *RevocationSweeper) Sweep(ctx context.Context) {
	start := time.Now()
	deleted, err := w.svc.CleanupExpired(ctx, w.svc.now().UTC())
	if err != nil {
		w.logger.Error("revoked token cleanup failed", zap.Error(err))
		return
	}
	if w.onSweep != nil {
		w.onSweep(deleted)
	}
	w.logger.Info("revoked token cleanup complete",
		zap.Int64("deleted_count", deleted),
		zap.Duration("duration", time.Since(start)),
	)
}
