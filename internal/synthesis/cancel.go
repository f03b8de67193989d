package synthesis

import (
	"sync"
	"time"
)

const tombstoneTTL = time.Hour

// CancelToken is flipped once when a job should stop.
type CancelToken struct {
	once sync.Once
	done chan struct{}
}

func newCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

func (t *CancelToken) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Done is closed after Cancel.
func (t *CancelToken) Done() <-chan struct{} { return t.done }

func (t *CancelToken) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// CancelRegistry maps in-flight job ids to their tokens. A cancel for a job
// this worker has not started yet leaves a tombstone, so the job is
// cancelled as soon as it is registered.
type CancelRegistry struct {
	mu         sync.Mutex
	active     map[string]*CancelToken
	tombstones map[string]time.Time
	now        func() time.Time
}

func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{
		active:     make(map[string]*CancelToken),
		tombstones: make(map[string]time.Time),
		now:        time.Now,
	}
}

// Register returns the token for a job about to run.
func (r *CancelRegistry) Register(jobID string) *CancelToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok := newCancelToken()
	if _, ok := r.tombstones[jobID]; ok {
		delete(r.tombstones, jobID)
		tok.Cancel()
	}
	r.active[jobID] = tok
	return tok
}

// Release forgets a finished job.
func (r *CancelRegistry) Release(jobID string) {
	r.mu.Lock()
	delete(r.active, jobID)
	r.mu.Unlock()
}

// Cancel flips the job's token and reports whether it was in flight here.
func (r *CancelRegistry) Cancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tok, ok := r.active[jobID]; ok {
		tok.Cancel()
		return true
	}
	now := r.now()
	for id, at := range r.tombstones {
		if now.Sub(at) > tombstoneTTL {
			delete(r.tombstones, id)
		}
	}
	r.tombstones[jobID] = now
	return false
}
