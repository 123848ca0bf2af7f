package auth_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ammonsd/activitytracking/internal/auth"
	"github.com/ammonsd/activitytracking/internal/store/memory"
)

func newTestRevocations(t *testing.T, store *memory.Store, opts ...auth.TokenOption) (*auth.RevocationService, *auth.TokenService) {
	t.Helper()
	tokens := newTokens(t, opts...)
	svc, err := auth.NewRevocationService(tokens, store)
	if err != nil {
		t.Fatalf("NewRevocationService: %v", err)
	}
	return svc, tokens
}

func TestRevokeOnceThenFalse(t *testing.T) {
	store := memory.New()
	svc, tokens := newTestRevocations(t, store)
	ctx := context.Background()

	token, err := tokens.GenerateToken(holder("alice", auth.RoleUser))
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	jti, _ := tokens.ExtractJTI(token)

	ok, err := svc.Revoke(ctx, token, auth.ReasonLogout)
	if err != nil || !ok {
		t.Fatalf("first revoke: ok=%v err=%v", ok, err)
	}
	revoked, err := svc.IsRevoked(ctx, jti)
	if err != nil || !revoked {
		t.Fatalf("expected jti to be blacklisted: %v %v", revoked, err)
	}
	ok, err = svc.Revoke(ctx, token, auth.ReasonLogout)
	if err != nil || ok {
		t.Fatalf("second revoke must report false without error: ok=%v err=%v", ok, err)
	}
	entry, _ := store.Revoked(jti)
	if entry.Username != "alice" || entry.TokenType != auth.TokenTypeAccess || entry.Reason != auth.ReasonLogout {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestRevokeTokenWithoutJTI(t *testing.T) {
	svc, _ := newTestRevocations(t, memory.New())
	now := time.Now()
	claims := auth.Claims{
		TokenType: auth.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := svc.Revoke(context.Background(), signed, auth.ReasonManual)
	if err != nil || ok {
		t.Fatalf("token without jti must not be revocable: ok=%v err=%v", ok, err)
	}
}

func TestRevokeRejectsGarbageAndUnknownReason(t *testing.T) {
	svc, tokens := newTestRevocations(t, memory.New())
	ctx := context.Background()
	if ok, err := svc.Revoke(ctx, "not-a-token", auth.ReasonLogout); ok || err != nil {
		t.Fatalf("garbage token: ok=%v err=%v", ok, err)
	}
	token, _ := tokens.GenerateToken(holder("alice", auth.RoleUser))
	if _, err := svc.Revoke(ctx, token, auth.RevocationReason("bored")); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if revoked, _ := svc.IsRevoked(ctx, ""); revoked {
		t.Fatalf("empty jti is never revoked")
	}
}

func TestConcurrentRevokeSingleWinner(t *testing.T) {
	svc, tokens := newTestRevocations(t, memory.New())
	token, _ := tokens.GenerateToken(holder("alice", auth.RoleUser))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.Revoke(context.Background(), token, auth.ReasonSecurityIncident)
			if err != nil {
				t.Errorf("revoke: %v", err)
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one successful revoke, got %d", wins.Load())
	}
}

func TestCleanupExpiredRemovesOnlyPastEntries(t *testing.T) {
	store := memory.New()
	svc, _ := newTestRevocations(t, store)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for jti, exp := range map[string]time.Time{
		"past":   now.Add(-time.Hour),
		"edge":   now,
		"future": now.Add(time.Hour),
	} {
		if err := store.Insert(ctx, &auth.RevokedToken{JTI: jti, ExpirationTime: exp, Reason: auth.ReasonManual}); err != nil {
			t.Fatalf("insert %s: %v", jti, err)
		}
	}
	deleted, err := svc.CleanupExpired(ctx, now)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}
	if ok, _ := svc.IsRevoked(ctx, "future"); !ok {
		t.Fatalf("unexpired entry must survive cleanup")
	}
}

func TestSweeperReportsDeletedCount(t *testing.T) {
	store := memory.New()
	svc, _ := newTestRevocations(t, store)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	auth.SetRevocationClock(svc, func() time.Time { return now })
	ctx := context.Background()
	_ = store.Insert(ctx, &auth.RevokedToken{JTI: "old", ExpirationTime: now.Add(-time.Minute)})
	_ = store.Insert(ctx, &auth.RevokedToken{JTI: "new", ExpirationTime: now.Add(time.Minute)})

	var got int64 = -1
	sweeper := auth.NewRevocationSweeper(svc, 0, zap.NewNop(), func(n int64) { got = n })
	sweeper.Sweep(ctx)
	if got != 1 {
		t.Fatalf("expected sweep to delete 1 entry, got %d", got)
	}
	if iv := auth.SweeperInterval(sweeper); iv != time.Hour {
		t.Fatalf("expected default interval of one hour, got %s", iv)
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	svc, _ := newTestRevocations(t, memory.New())
	var sweeps atomic.Int32
	sweeper := auth.NewRevocationSweeper(svc, 5*time.Millisecond, nil, func(int64) { sweeps.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()
	deadline := time.After(2 * time.Second)
	for sweeps.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("sweeper never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
