package services

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// RunKey identifies one reconciliation/rule-engine unit of work. Runs for
// different keys may execute fully in parallel; two runs for the same key must
// not both reach completed.
type RunKey struct {
	PropertyID   uuid.UUID
	PeriodID     uuid.UUID
	DocumentType string
}

func (k RunKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.PropertyID, k.PeriodID, k.DocumentType)
}

// RunReservations is the advisory single-writer guarantee for the job
// dispatcher: at most one reservation token per key is outstanding. The engine
// itself stays safe to call concurrently; this only lets a well-behaved caller
// serialize attempts for the same key.
type RunReservations interface {
	// Acquire reserves the key. Returns a release token, or ErrRunConflict
	// semantics via ok=false when the key is already reserved.
	Acquire(key RunKey) (release func(), ok bool)

	// Held reports whether the key is currently reserved.
	Held(key RunKey) bool
}

type runReservations struct {
	mu   sync.Mutex
	held map[RunKey]bool
}

// NewRunReservations creates an empty in-memory reservation table.
func NewRunReservations() RunReservations {
	return &runReservations{held: make(map[RunKey]bool)}
}

var _ RunReservations = (*runReservations)(nil)

func (r *runReservations) Acquire(key RunKey) (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.held[key] {
		return nil, false
	}
	r.held[key] = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.held, key)
			r.mu.Unlock()
		})
	}
	return release, true
}

func (r *runReservations) Held(key RunKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.held[key]
}
