package api

import (
	"strconv"
	"sync"
	"time"
)

// loginRateLimiter tracks failed login attempts per username and
// enforces exponential backoff. Only credential rejections count;
// directory transport failures do not penalize the caller.
type loginRateLimiter struct {
	mu       sync.Mutex
	disabled bool
	max      int
	base     time.Duration
	expiry   time.Duration
	attempts map[string]*attemptRecord
}

type attemptRecord struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

const (
	defaultMaxFailures = 10
	defaultWindow      = time.Minute
	// maxLockout caps the exponential backoff.
	maxLockout = 15 * time.Minute
)

func newLoginRateLimiter(maxFailures int, base time.Duration) *loginRateLimiter {
	return &loginRateLimiter{
		disabled: maxFailures <= 0,
		max:      maxFailures,
		base:     base,
		expiry:   time.Hour,
		attempts: make(map[string]*attemptRecord),
	}
}

// check reports whether the username is currently locked out and for
// how much longer. A zero duration means the request may proceed.
func (rl *loginRateLimiter) check(username string) (blocked bool, retryAfter time.Duration) {
	if rl.disabled {
		return false, 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.attempts[username]
	if !ok {
		return false, 0
	}
	// Expire stale records.
	if time.Since(rec.lastFailure) > rl.expiry {
		delete(rl.attempts, username)
		return false, 0
	}
	if time.Now().Before(rec.lockedUntil) {
		return true, time.Until(rec.lockedUntil)
	}
	return false, 0
}

// recordFailure increments the failure counter and applies exponential
// backoff once the threshold is exceeded.
func (rl *loginRateLimiter) recordFailure(username string) {
	if rl.disabled {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.attempts[username]
	if !ok {
		rec = &attemptRecord{}
		rl.attempts[username] = rec
	}
	rec.failures++
	rec.lastFailure = time.Now()

	if rec.failures >= rl.max {
		// base * 2^(failures - max), capped.
		shift := rec.failures - rl.max
		lockout := rl.base
		for i := 0; i < shift; i++ {
			lockout *= 2
			if lockout > maxLockout {
				lockout = maxLockout
				break
			}
		}
		rec.lockedUntil = time.Now().Add(lockout)
	}
}

// recordSuccess resets the failure counter on a successful login.
func (rl *loginRateLimiter) recordSuccess(username string) {
	if rl.disabled {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, username)
}

func retryAfterString(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
