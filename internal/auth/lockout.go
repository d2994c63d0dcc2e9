package auth

import "time"

const (
	// MaxLoginAttempts is the failed-attempt count that arms the lock.
	MaxLoginAttempts = 5
	// LockoutDuration is the timed suspension applied at the fifth failure.
	LockoutDuration = 30 * time.Minute
)

// LockoutStatus is the answer to "may this account attempt a login".
type LockoutStatus struct {
	IsLocked       bool
	FailedAttempts int
	UnlockIn       int64 // seconds, ceiling-rounded, zero when open
}

// LockoutPolicy is pure state-transition logic over the counters carried on
// the account record. It never touches storage; the caller persists the
// mutated account.
type LockoutPolicy struct{}

// Status reports the lock state at `now`. Observing a lapsed lock eagerly
// resets the counters on the account (the caller must persist), so no sweep
// job is needed.
func (LockoutPolicy) Status(account *Account, now time.Time) LockoutStatus {
	if account.FailedLoginAttempts >= MaxLoginAttempts && account.LockedUntil != nil {
		until := *account.LockedUntil
		if until.After(now) {
			remainder := until.Sub(now)
			unlockIn := int64(remainder / time.Second)
			if remainder%time.Second > 0 {
				unlockIn++
			}
			return LockoutStatus{
				IsLocked:       true,
				FailedAttempts: account.FailedLoginAttempts,
				UnlockIn:       unlockIn,
			}
		}
		// Lock lapsed; reclaim it on observation.
		LockoutPolicy{}.Reset(account)
	}

	return LockoutStatus{FailedAttempts: account.FailedLoginAttempts}
}

// RecordFailure counts a failed credential check and arms the lock when the
// counter reaches MaxLoginAttempts.
func (LockoutPolicy) RecordFailure(account *Account, now time.Time) {
	account.FailedLoginAttempts++
	if account.FailedLoginAttempts >= MaxLoginAttempts {
		until := now.Add(LockoutDuration)
		account.LockedUntil = &until
	}
}

// Reset clears the counters after a successful credential check or a lapsed
// lock.
func (LockoutPolicy) Reset(account *Account) {
	account.FailedLoginAttempts = 0
	account.LockedUntil = nil
}
