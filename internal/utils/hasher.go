package utils

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Hasher runs bcrypt work through a bounded pool so a burst of logins cannot
// occupy every CPU the server has.
type Hasher struct {
	cost int
	sem  *semaphore.Weighted
}

// NewHasher returns a Hasher with the given bcrypt cost.  workers <= 0 means
// one slot per CPU.
func NewHasher(cost, workers int) *Hasher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Hasher{cost: cost, sem: semaphore.NewWeighted(int64(workers))}
}

// Hash hashes plain once a slot is free or returns ctx's error.
func (h *Hasher) Hash(ctx context.Context, plain string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)
	return HashPassword(plain, h.cost)
}

// Verify compares plain against hash once a slot is free.  A cancelled
// context counts as a mismatch.
func (h *Hasher) Verify(ctx context.Context, hash, plain string) bool {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.sem.Release(1)
	return VerifyPassword(hash, plain)
}
