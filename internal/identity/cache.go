package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mintExchange/internal/model"
)

const redisKeyPrefix = "marketsync:identity:"

// Resolver maps an address to zero or more off-chain profiles.
type Resolver interface {
	Resolve(ctx context.Context, address string) ([]model.Identity, error)
}

// CachedResolver serves lookups from an in-process LRU, then an optional shared
// Redis cache, before falling through to the directory. Empty results are cached too.
type CachedResolver struct {
	next   Resolver
	local  *lru.Cache[string, []model.Identity]
	shared redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedResolver(next Resolver, size int, shared redis.UniversalClient, ttl time.Duration, logger *zap.Logger) (*CachedResolver, error) {
	if next == nil {
		return nil, fmt.Errorf("identity resolver is nil")
	}
	if size <= 0 {
		size = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	local, err := lru.New[string, []model.Identity](size)
	if err != nil {
		return nil, err
	}
	return &CachedResolver{next: next, local: local, shared: shared, ttl: ttl, logger: logger}, nil
}

func (r *CachedResolver) Resolve(ctx context.Context, address string) ([]model.Identity, error) {
	address = strings.ToLower(address)
	if cached, ok := r.local.Get(address); ok {
		return cached, nil
	}

	if cached, ok := r.readShared(ctx, address); ok {
		r.local.Add(address, cached)
		return cached, nil
	}

	identities, err := r.next.Resolve(ctx, address)
	if err != nil {
		return nil, err
	}
	if identities == nil {
		identities = []model.Identity{}
	}
	r.local.Add(address, identities)
	r.writeShared(ctx, address, identities)
	return identities, nil
}

func (r *CachedResolver) readShared(ctx context.Context, address string) ([]model.Identity, bool) {
	if r.shared == nil {
		return nil, false
	}
	raw, err := r.shared.Get(ctx, redisKeyPrefix+address).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("identity cache read failed", zap.String("address", address), zap.Error(err))
		}
		return nil, false
	}
	var identities []model.Identity
	if err := json.Unmarshal(raw, &identities); err != nil {
		r.logger.Warn("identity cache entry corrupt", zap.String("address", address), zap.Error(err))
		return nil, false
	}
	return identities, true
}

func (r *CachedResolver) writeShared(ctx context.Context, address string, identities []model.Identity) {
	if r.shared == nil {
		return
	}
	raw, err := json.Marshal(identities)
	if err != nil {
		return
	}
	if err := r.shared.Set(ctx, redisKeyPrefix+address, raw, r.ttl).Err(); err != nil {
		r.logger.Warn("identity cache write failed", zap.String("address", address), zap.Error(err))
	}
}

// First returns the primary identity reference, or nil when there is none.
func First(identities []model.Identity) *model.IdentityRef {
	if len(identities) == 0 {
		return nil
	}
	return identities[0].Ref()
}
