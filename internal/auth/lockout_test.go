package auth

import (
	"testing"
	"time"
)

func TestLockoutStatusOpen(t *testing.T) {
	var policy LockoutPolicy
	now := time.Now().UTC()

	account := &Account{FailedLoginAttempts: 3}
	status := policy.Status(account, now)
	if status.IsLocked {
		t.Fatalf("three failures must not lock")
	}
	if status.FailedAttempts != 3 || status.UnlockIn != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestLockoutStatusLocked(t *testing.T) {
	var policy LockoutPolicy
	now := time.Now().UTC()

	until := now.Add(90*time.Second + 500*time.Millisecond)
	account := &Account{FailedLoginAttempts: MaxLoginAttempts, LockedUntil: &until}

	status := policy.Status(account, now)
	if !status.IsLocked {
		t.Fatalf("expected locked status")
	}
	// Millisecond remainders round up, never down.
	if status.UnlockIn != 91 {
		t.Fatalf("expected ceiling-rounded 91s, got %d", status.UnlockIn)
	}
}

func TestLockoutStatusExpiredLockResets(t *testing.T) {
	var policy LockoutPolicy
	now := time.Now().UTC()

	until := now.Add(-time.Second)
	account := &Account{FailedLoginAttempts: MaxLoginAttempts, LockedUntil: &until}

	status := policy.Status(account, now)
	if status.IsLocked {
		t.Fatalf("lapsed lock must read as open")
	}
	if account.FailedLoginAttempts != 0 || account.LockedUntil != nil {
		t.Fatalf("lapsed lock must eagerly reset the counters")
	}
}

func TestLockoutRecordFailureArmsAtMax(t *testing.T) {
	var policy LockoutPolicy
	now := time.Now().UTC()
	account := &Account{}

	for i := 1; i < MaxLoginAttempts; i++ {
		policy.RecordFailure(account, now)
		if account.LockedUntil != nil {
			t.Fatalf("lock armed too early at attempt %d", i)
		}
	}

	policy.RecordFailure(account, now)
	if account.FailedLoginAttempts != MaxLoginAttempts {
		t.Fatalf("unexpected attempt count: %d", account.FailedLoginAttempts)
	}
	if account.LockedUntil == nil {
		t.Fatalf("lock not armed at %d failures", MaxLoginAttempts)
	}
	if got := account.LockedUntil.Sub(now); got != LockoutDuration {
		t.Fatalf("unexpected lock duration: %v", got)
	}
}

func TestLockoutReset(t *testing.T) {
	var policy LockoutPolicy
	until := time.Now().UTC().Add(time.Hour)
	account := &Account{FailedLoginAttempts: 4, LockedUntil: &until}

	policy.Reset(account)
	if account.FailedLoginAttempts != 0 || account.LockedUntil != nil {
		t.Fatalf("reset did not clear state: %+v", account)
	}
}
