// Package lock provides an optional Redis-backed lock serializing concurrent
// AcceptOffer calls on the same request across processes.
//
// The database's conditional UPDATE remains the source of truth for the
// single-acceptance invariant; this lock only narrows the race window so the
// losing caller fails fast with a conflict instead of burning a transaction.
// A nil client disables locking entirely, which is the correct single-process
// configuration.
package lock

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaReleaseIfMatch deletes the lock only when its value still matches the
// caller's token, so a slow caller cannot release a successor's lock.
const luaReleaseIfMatch = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// AcceptLock guards offer acceptance per request ID.
type AcceptLock struct {
	Client *rd.Client
	// TTL bounds how long a crashed holder can block siblings. Defaults to
	// 10s when <= 0.
	TTL time.Duration
}

// acceptLockKey namespaces lock keys per request.
func acceptLockKey(requestID string) string { return "parts:accept_lock:" + requestID }

// Acquire tries to take the per-request accept lock with the given holder
// token. Returns true when the lock was taken. With a nil client it always
// returns true: the DB guard alone decides the winner.
func (l *AcceptLock) Acquire(ctx context.Context, requestID, token string) (bool, error) {
	if l == nil || l.Client == nil {
		return true, nil
	}
	ttl := l.TTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return l.Client.SetNX(ctx, acceptLockKey(requestID), token, ttl).Result()
}

// Release drops the lock if this holder still owns it. Safe to call on any
// path, including after TTL expiry.
func (l *AcceptLock) Release(ctx context.Context, requestID, token string) error {
	if l == nil || l.Client == nil {
		return nil
	}
	return l.Client.Eval(ctx, luaReleaseIfMatch, []string{acceptLockKey(requestID)}, token).Err()
}
