package memory

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"ctgov-compliance-be/pkg/store"
)

// SessionRepository keeps conversation sessions in process memory. Sessions
// expire after an hour of inactivity; an expired session simply starts over.
//
// Each session ID also owns a mutex so the service can serialize turns on the
// same conversation while leaving other sessions untouched. Lost-update
// protection across the unlocked extraction window is the caller's job, via
// the session Version field.
type SessionRepository struct {
	cache *cache.Cache
	locks sync.Map // session ID -> *sync.Mutex
}

func NewSessionRepository() *SessionRepository {
	// Default expiration of 1 hour, purge sweep every 10 minutes.
	return newSessionRepository(1*time.Hour, 10*time.Minute)
}

func newSessionRepository(ttl, sweep time.Duration) *SessionRepository {
	r := &SessionRepository{
		cache: cache.New(ttl, sweep),
	}
	// Expired sessions must release their mutex entry too, or the lock map
	// grows for every session ID ever seen.
	r.cache.OnEvicted(func(sessionID string, _ interface{}) {
		r.locks.Delete(sessionID)
	})
	return r
}

func (r *SessionRepository) Save(session *store.Session) {
	r.cache.Set(session.ID, session, cache.DefaultExpiration)
}

func (r *SessionRepository) Get(sessionID string) (*store.Session, bool) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(*store.Session), true
	}
	return nil, false
}

func (r *SessionRepository) Delete(sessionID string) {
	r.cache.Delete(sessionID)
	r.locks.Delete(sessionID)
}

// Lock returns the mutex guarding one session's turns. The mutex survives as
// long as the session does; callers must not hold it across slow work.
func (r *SessionRepository) Lock(sessionID string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
