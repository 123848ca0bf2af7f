package auth

import "time"

// Internals reached by the external auth_test package.

func SetRevocationClock(s *RevocationService, now func() time.Time) { s.now = now }

func SweeperInterval(w *RevocationSweeper) time.Duration { return w.interval }

func LoginPlaceholderHash(s *Service) string { return s.dummyHash() }
