package model

import "time"

// LockoutPolicy configures brute-force protection for password logins.
type LockoutPolicy struct {
	Threshold int           // failed attempts that trigger a lock
	Window    time.Duration // how long the lock lasts
}

// ApplyLoginFailure records one failed password check on a and reports
// whether this failure opened a lockout window.  Failures that land while
// a window is open leave it untouched; a lock that has already elapsed
// starts a fresh count.  Stores call this while holding the row.
func ApplyLoginFailure(a *Account, p LockoutPolicy, now time.Time) bool {
	if a.LockedUntil != nil {
		if now.Before(*a.LockedUntil) {
			return false
		}
		a.FailedLogins = 0
		a.LockedUntil = nil
	}
	a.FailedLogins++
	if p.Threshold > 0 && a.FailedLogins >= p.Threshold {
		until := now.Add(p.Window)
		a.LockedUntil = &until
		return true
	}
	return false
}

// ClearLoginFailures resets the failure counter and any lockout.
func ClearLoginFailures(a *Account) {
	a.FailedLogins = 0
	a.LockedUntil = nil
}
