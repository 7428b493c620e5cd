package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// TokenSource yields the offline Admin API access token of a shop.
// Session storage lives outside this package.
type TokenSource interface {
	AccessToken(ctx context.Context, shop string) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context, shop string) (string, error)

func (f TokenSourceFunc) AccessToken(ctx context.Context, shop string) (string, error) {
	return f(ctx, shop)
}

// StaticTokens is an in-memory TokenSource for tests and single-shop development.
type StaticTokens struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewStaticTokens returns a TokenSource seeded with shop -> token pairs.
func NewStaticTokens(tokens map[string]string) *StaticTokens {
	m := make(map[string]string, len(tokens))
	for k, v := range tokens {
		m[k] = v
	}
	return &StaticTokens{tokens: m}
}

// Set stores the token for shop.
func (s *StaticTokens) Set(shop, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[shop] = token
}

func (s *StaticTokens) AccessToken(_ context.Context, shop string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[shop]
	if !ok || t == "" {
		return "", ErrMissingAccessToken
	}
	return t, nil
}

const sessionKeyPrefix = "biypod:session:"

// RedisTokens reads offline tokens that the session layer stores under
// "biypod:session:<shop>".
type RedisTokens struct {
	rdb redis.UniversalClient
}

func NewRedisTokens(rdb redis.UniversalClient) *RedisTokens {
	if rdb == nil {
		panic("billing: redis client is required")
	}
	return &RedisTokens{rdb: rdb}
}

func (t *RedisTokens) AccessToken(ctx context.Context, shop string) (string, error) {
	tok, err := t.rdb.Get(ctx, sessionKeyPrefix+shop).Result()
	switch {
	case errors.Is(err, redis.Nil), err == nil && tok == "":
		return "", ErrMissingAccessToken
	case err != nil:
		return "", fmt.Errorf("billing: read access token: %w", err)
	}
	return tok, nil
}

// ChainTokens asks each source in order and returns the first token found.
// Errors other than ErrMissingAccessToken stop the chain.
func ChainTokens(sources ...TokenSource) TokenSource {
	return TokenSourceFunc(func(ctx context.Context, shop string) (string, error) {
		for _, src := range sources {
			if src == nil {
				continue
			}
			tok, err := src.AccessToken(ctx, shop)
			if errors.Is(err, ErrMissingAccessToken) {
				continue
			}
			return tok, err
		}
		return "", ErrMissingAccessToken
	})
}
