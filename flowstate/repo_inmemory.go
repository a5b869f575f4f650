package flowstate

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/pkg/errors"
)

type entry struct {
	state     FlowState
	expiresAt time.Time
}

// InMemoryRepo is a thread-safe in-memory implementation of Repo for a single
// instance deployment.
type InMemoryRepo struct {
	mu      sync.Mutex
	states  map[string]entry
	nowFunc func() time.Time
}

var _ Repo = (*InMemoryRepo)(nil)

type InMemoryOption func(*InMemoryRepo)

func WithNowFunc(now func() time.Time) InMemoryOption {
	return func(r *InMemoryRepo) {
		r.nowFunc = now
	}
}

func NewInMemoryRepo(opts ...InMemoryOption) *InMemoryRepo {
	r := &InMemoryRepo{
		states:  make(map[string]entry),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *InMemoryRepo) Save(_ context.Context, id string, state *FlowState, ttl time.Duration) error {
	if id == "" {
		return errors.New("[flowstate Save] id cannot be empty")
	}
	if state == nil {
		return errors.New("[flowstate Save] state cannot be nil")
	}
	if ttl <= 0 {
		return errors.Errorf("[flowstate Save] invalid ttl %s", ttl)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	for key, e := range r.states {
		if !now.Before(e.expiresAt) {
			delete(r.states, key)
		}
	}
	r.states[id] = entry{state: *state, expiresAt: now.Add(ttl)}
	return nil
}

func (r *InMemoryRepo) Take(_ context.Context, id string) (*FlowState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.states[id]
	if !ok {
		return nil, errors.Wrapf(apperrors.ErrFlowStateNotFound, "[flowstate Take] %q", id)
	}
	delete(r.states, id)
	if !r.nowFunc().Before(e.expiresAt) {
		return nil, errors.Wrapf(apperrors.ErrFlowStateNotFound, "[flowstate Take] %q expired", id)
	}
	state := e.state
	return &state, nil
}
