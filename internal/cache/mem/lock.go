// Package mem provides in-process implementations of the cache interfaces
// for tests and redis-less single-instance runs.
package mem

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

type lockEntry struct {
	token  string
	expiry time.Time
}

// LockManager implements domain.LockManager with a process-local map. It
// serializes attempts within one process only; deployments running more
// than one instance need the Redis lock manager instead. Like the Redis
// variant, each acquisition carries a token so a stale unlock from an
// expired holder cannot release a newer holder's lock.
type LockManager struct {
	mu   sync.Mutex
	held map[string]lockEntry
}

// NewLockManager creates an empty in-process LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]lockEntry)}
}

// Acquire takes the lock for key if it is free or expired. It returns
// domain.ErrLockHeld when another holder owns it.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := time.Now()
	if entry, ok := lm.held[key]; ok && now.Before(entry.expiry) {
		return nil, domain.ErrLockHeld
	}

	token := uuid.New().String()
	lm.held[key] = lockEntry{token: token, expiry: now.Add(ttl)}

	unlock := func() {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		// Only the acquiring holder may release; the entry may since have
		// expired and been taken over.
		if entry, ok := lm.held[key]; ok && entry.token == token {
			delete(lm.held, key)
		}
	}
	return unlock, nil
}

var _ domain.LockManager = (*LockManager)(nil)
