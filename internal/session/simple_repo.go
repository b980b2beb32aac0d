package session

import (
	"context"
	"sync"
	"time"

	"github.com/fotofoto/filmreturn/internal/metrics"

	"github.com/juju/clock"
)

const sweepInterval = time.Minute

// SimpleSessionRepo keeps sessions in a mutex-guarded map. Expired entries
// are dropped when touched, and swept at most once a minute on writes.
type SimpleSessionRepo struct {
	mutex     sync.Mutex
	clock     clock.Clock
	lockTTL   time.Duration
	dict      map[string]Session
	locks     map[string]time.Time
	lastSweep time.Time
}

func MakeSimpleSessionRepo(clk clock.Clock, lockTTL time.Duration) *SimpleSessionRepo {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &SimpleSessionRepo{
		clock:     clk,
		lockTTL:   lockTTL,
		dict:      make(map[string]Session),
		locks:     make(map[string]time.Time),
		lastSweep: clk.Now(),
	}
}

func (r *SimpleSessionRepo) WriteSession(ctx context.Context, s Session) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.sweepLocked(r.clock.Now())
	r.dict[s.ID] = s
	return nil
}

func (r *SimpleSessionRepo) sweepLocked(now time.Time) {
	if now.Sub(r.lastSweep) < sweepInterval {
		return
	}
	var swept int64
	for id, s := range r.dict {
		if !now.Before(s.ExpiresAt) {
			delete(r.dict, id)
			swept++
		}
	}
	metrics.Count("session.swept", swept, nil)
	for id, until := range r.locks {
		if !now.Before(until) {
			delete(r.locks, id)
		}
	}
	r.lastSweep = now
}

func (r *SimpleSessionRepo) FetchSessionByID(ctx context.Context, id string) (Session, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	s, ok := r.dict[id]
	if !ok {
		return Session{}, notFound(id)
	}
	if !r.clock.Now().Before(s.ExpiresAt) {
		delete(r.dict, id)
		return Session{}, notFound(id)
	}
	return s, nil
}

func (r *SimpleSessionRepo) DeleteSession(ctx context.Context, id string) error {
	r.mutex.Lock()
	delete(r.dict, id)
	delete(r.locks, id)
	r.mutex.Unlock()
	return nil
}

func (r *SimpleSessionRepo) Lock(ctx context.Context, id string) (func(), error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	now := r.clock.Now()
	if until, held := r.locks[id]; held && now.Before(until) {
		return nil, inFlight()
	}
	until := now.Add(r.lockTTL)
	r.locks[id] = until
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mutex.Lock()
			if r.locks[id].Equal(until) {
				delete(r.locks, id)
			}
			r.mutex.Unlock()
		})
	}, nil
}

// Len counts stored sessions, expired or not.
func (r *SimpleSessionRepo) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.dict)
}
