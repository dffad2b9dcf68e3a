// Package appstate holds the per-session application state handed to the checkout controller:
// who is signed in and what their cart looked like when last fetched.
package appstate

import (
	"context"
	"errors"
	"sync"

	d "github.com/fjod/helmet-storefront/domain"
)

var ErrNotAuthenticated = errors.New("no authenticated user")

type State struct {
	carts *CartStore

	mu   sync.RWMutex
	user *d.User
	cart *d.Cart
}

func New(carts *CartStore) *State {
	return &State{carts: carts}
}

// Login sets the session user and hydrates their cart.
func (s *State) Login(ctx context.Context, user d.User) error {
	s.mu.Lock()
	s.user = &user
	s.cart = nil
	s.mu.Unlock()

	cart, err := s.carts.Hydrate(ctx, user.ID)
	if err != nil {
		return err
	}
	s.setCart(cart)
	return nil
}

func (s *State) Logout(ctx context.Context) {
	s.mu.Lock()
	user := s.user
	s.user = nil
	s.cart = nil
	s.mu.Unlock()

	if user != nil {
		s.carts.Forget(ctx, user.ID)
	}
}

func (s *State) User() (d.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return d.User{}, false
	}
	return *s.user, true
}

// Cart is the last fetched cart; nil before the first fetch.
func (s *State) Cart() *d.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart
}

// RefreshCart refetches the cart from the backend.
func (s *State) RefreshCart(ctx context.Context) (*d.Cart, error) {
	user, ok := s.User()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	cart, err := s.carts.Refresh(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.setCart(cart)
	return cart, nil
}

func (s *State) setCart(cart *d.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = cart
}
