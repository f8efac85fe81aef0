package lock

import (
	"context"
	"sync"
	"time"

	"SecAssist/pkg/redis"

	"github.com/google/uuid"
)

// SessionLocker serialises writes within one session so message order
// matches persistence order. Different sessions never contend.
type SessionLocker interface {
	// Lock blocks until the session lock is held or ctx is done.
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
}

// Local in-process keyed mutex; entries are dropped once nobody holds or waits.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

func (l *Local) Lock(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[sessionID]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[sessionID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(sessionID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(sessionID, e)
		})
	}, nil
}

func (l *Local) release(sessionID string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, sessionID)
	}
}

// size number of tracked sessions
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Redis lock shared by every replica. TTL bounds how long a crashed holder
// can block a session.
type Redis struct {
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

func NewRedis(ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{prefix: "secassist:session_lock:", ttl: ttl, poll: 20 * time.Millisecond}
}

func (r *Redis) Lock(ctx context.Context, sessionID string) (func(), error) {
	if !redis.IsConnected() {
		return nil, redis.ErrNotConnected
	}
	key := r.prefix + sessionID
	token := uuid.NewString()
	for {
		ok, err := redis.Lock(ctx, key, token, r.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		t := time.NewTimer(r.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			// release with a fresh context: the request context may already be done
			uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = redis.Unlock(uctx, key, token)
		})
	}, nil
}

// New picks the redis lock when a client is installed.
func New(ttl time.Duration) SessionLocker {
	if redis.IsConnected() {
		return NewRedis(ttl)
	}
	return NewLocal()
}
