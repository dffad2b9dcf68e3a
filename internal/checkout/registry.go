package checkout

import (
	"context"
	"sync"
	"time"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/internal/appstate"
	"github.com/fjod/helmet-storefront/pkg/logger"
	"golang.org/x/sync/singleflight"
)

type session struct {
	checkout *Checkout
	state    *appstate.State
	userID   string
}

// Registry keeps one checkout controller per browser session.
type Registry struct {
	carts *appstate.CartStore
	deps  Deps
	now   func() time.Time

	sfg      singleflight.Group
	mu       sync.Mutex
	sessions map[string]*session
}

func NewRegistry(carts *appstate.CartStore, deps Deps) *Registry {
	return &Registry{
		carts:    carts,
		deps:     deps,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Get returns the session's checkout, signing the user in and hydrating their cart on first use.
func (r *Registry) Get(ctx context.Context, key string, user d.User) (*Checkout, error) {
	r.mu.Lock()
	s, ok := r.sessions[key]
	r.mu.Unlock()
	if ok && s.userID == user.ID {
		return s.checkout, nil
	}

	v, err, _ := r.sfg.Do(key, func() (interface{}, error) {
		r.mu.Lock()
		if s, ok := r.sessions[key]; ok && s.userID == user.ID {
			r.mu.Unlock()
			return s.checkout, nil
		}
		r.mu.Unlock()

		state := appstate.New(r.carts)
		if err := state.Login(ctx, user); err != nil {
			return nil, err
		}
		s := &session{
			checkout: New(key, state, r.deps),
			state:    state,
			userID:   user.ID,
		}

		r.mu.Lock()
		prev := r.sessions[key]
		r.sessions[key] = s
		r.mu.Unlock()
		if prev != nil {
			// same browser session, different account
			_ = prev.checkout.Leave(ctx)
			prev.state.Logout(ctx)
		}
		logger.Ctx(ctx).Debug().Str("checkout", key).Str("user_id", user.ID).Msg("checkout session created")
		return s.checkout, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Checkout), nil
}

// Lookup returns an existing checkout without creating one.
func (r *Registry) Lookup(key string) (*Checkout, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if !ok {
		return nil, false
	}
	return s.checkout, true
}

// Remove drops the session on logout.
func (r *Registry) Remove(ctx context.Context, key string) {
	r.mu.Lock()
	s, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()
	if !ok {
		return
	}
	_ = s.checkout.Leave(ctx)
	s.state.Logout(ctx)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops sessions untouched for longer than maxIdle. Sessions with a submission, payment or
// verification in flight are kept.
func (r *Registry) Sweep(ctx context.Context, maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var stale []*session
	for key, s := range r.sessions {
		if s.checkout.LastSeen().Before(cutoff) && s.checkout.Idle() {
			stale = append(stale, s)
			delete(r.sessions, key)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		_ = s.checkout.Leave(ctx)
		s.state.Logout(ctx)
	}
	if len(stale) > 0 {
		logger.Ctx(ctx).Info().Int("count", len(stale)).Msg("swept idle checkout sessions")
	}
	return len(stale)
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Ctx(ctx).Info().Dur("interval", interval).Dur("max_idle", maxIdle).Msg("checkout sweeper started")
	for {
		select {
		case <-ctx.Done():
			logger.L().Info().Msg("checkout sweeper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx, maxIdle)
		}
	}
}
