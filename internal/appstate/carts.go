package appstate

import (
	"context"
	"errors"
	"fmt"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/internal/backend"
	"github.com/fjod/helmet-storefront/pkg/logger"
	"golang.org/x/sync/singleflight"
)

type CartAPI interface {
	GetCart(ctx context.Context) (*d.Cart, error)
	AddCartItem(ctx context.Context, req backend.AddCartItemRequest) (*d.Cart, error)
	RemoveCartItem(ctx context.Context, productID string) (*d.Cart, error)
}

// CartStore reads carts from the backend and keeps the last copy in a cache for hydrating new
// sessions. It never clears a cart itself; the backend does that on order finalisation.
type CartStore struct {
	api   CartAPI
	cache CartCache
	sfg   singleflight.Group
}

func NewCartStore(api CartAPI, cache CartCache) *CartStore {
	if cache == nil {
		cache = NopCache{}
	}
	return &CartStore{api: api, cache: cache}
}

// Hydrate returns the cached cart when present, otherwise fetches it.
func (s *CartStore) Hydrate(ctx context.Context, userID string) (*d.Cart, error) {
	cart, err := s.cache.Get(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		logger.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("cart cache read failed")
	}
	return s.Refresh(ctx, userID)
}

// Refresh always goes to the backend. Concurrent refreshes for one user share a single call.
func (s *CartStore) Refresh(ctx context.Context, userID string) (*d.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.api.GetCart(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get cart: %w", err)
		}
		cart.UserID = userID
		s.store(ctx, userID, cart)
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*d.Cart), nil
}

func (s *CartStore) AddItem(ctx context.Context, userID string, req backend.AddCartItemRequest) (*d.Cart, error) {
	cart, err := s.api.AddCartItem(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}
	cart.UserID = userID
	s.store(ctx, userID, cart)
	return cart, nil
}

func (s *CartStore) RemoveItem(ctx context.Context, userID, productID string) (*d.Cart, error) {
	cart, err := s.api.RemoveCartItem(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove cart item: %w", err)
	}
	cart.UserID = userID
	s.store(ctx, userID, cart)
	return cart, nil
}

// Forget drops the cached copy, e.g. on logout.
func (s *CartStore) Forget(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, userID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("cart cache delete failed")
	}
}

func (s *CartStore) store(ctx context.Context, userID string, cart *d.Cart) {
	if err := s.cache.Set(ctx, userID, cart); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("cart cache write failed")
	}
}
