package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
	"github.com/armorylabs/armory-backend/pkg/redis"
)

// Store persists session carts.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Cart, error)
	Save(ctx context.Context, cart *Cart) error
	Delete(ctx context.Context, sessionID string) error
}

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore builds a cart store that keeps each cart as a JSON blob
// under arm:cart:session:<sid>. The TTL slides forward on every save.
func NewRedisStore(client *redis.Client, ttl time.Duration) (Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cart ttl must be positive")
	}
	return &redisStore{client: client, ttl: ttl}, nil
}

// Load returns the stored cart, or a fresh empty one when the session has none.
func (s *redisStore) Load(ctx context.Context, sessionID string) (*Cart, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}

	blob, err := s.client.Get(ctx, s.client.CartKey(sessionID))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return New(sessionID), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	var cart Cart
	if err := json.Unmarshal([]byte(blob), &cart); err != nil {
		// Corrupt blobs are unrecoverable; start the session over.
		return New(sessionID), nil
	}
	if cart.Items == nil {
		cart.Items = []Item{}
	}
	cart.SessionID = sessionID
	return &cart, nil
}

// Save writes the cart back and refreshes its TTL.
func (s *redisStore) Save(ctx context.Context, cart *Cart) error {
	if cart == nil || cart.SessionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart with session id is required")
	}

	cart.UpdatedAt = time.Now().UTC()
	blob, err := json.Marshal(cart)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart")
	}
	if err := s.client.Set(ctx, s.client.CartKey(cart.SessionID), string(blob), s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return nil
}

// Delete removes the session's cart entirely.
func (s *redisStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if err := s.client.Del(ctx, s.client.CartKey(sessionID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart")
	}
	return nil
}
