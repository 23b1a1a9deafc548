package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dnft/swap-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) UpsertPoolSnapshot(ctx context.Context, pool *model.LiquidityPool) error {
	if err := s.primary.UpsertPoolSnapshot(ctx, pool); err != nil {
		return err
	}
	s.cachePool(ctx, pool)
	return nil
}

func (s *CachedStore) InsertSwapRecord(ctx context.Context, order *model.AmmOrder) error {
	if err := s.primary.InsertSwapRecord(ctx, order); err != nil {
		return err
	}
	// Invalidate the pool's swap list; next read re-populates.
	s.rdb.Del(ctx, poolSwapsKey(order.PoolID))
	return nil
}

func (s *CachedStore) InsertTrade(ctx context.Context, trade *model.Trade) error {
	if err := s.primary.InsertTrade(ctx, trade); err != nil {
		return err
	}
	s.rdb.Del(ctx, pairTradesKey(trade.PairID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPoolSnapshot(ctx context.Context, poolID model.DID) (*model.LiquidityPool, error) {
	data, err := s.rdb.Get(ctx, poolKey(poolID)).Bytes()
	if err == nil {
		var p model.LiquidityPool
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	// Cache miss: read from primary.
	p, err := s.primary.GetPoolSnapshot(ctx, poolID)
	if err != nil {
		return nil, err
	}

	s.cachePool(ctx, p)
	return p, nil
}

func (s *CachedStore) SwapRecordsByPool(ctx context.Context, poolID model.DID) ([]model.AmmOrder, error) {
	data, err := s.rdb.Get(ctx, poolSwapsKey(poolID)).Bytes()
	if err == nil {
		var orders []model.AmmOrder
		if json.Unmarshal(data, &orders) == nil {
			return orders, nil
		}
	}

	orders, err := s.primary.SwapRecordsByPool(ctx, poolID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(orders); err == nil {
		s.rdb.Set(ctx, poolSwapsKey(poolID), data, s.ttl)
	}
	return orders, nil
}

func (s *CachedStore) TradesByPair(ctx context.Context, pairID model.DID) ([]model.Trade, error) {
	data, err := s.rdb.Get(ctx, pairTradesKey(pairID)).Bytes()
	if err == nil {
		var trades []model.Trade
		if json.Unmarshal(data, &trades) == nil {
			return trades, nil
		}
	}

	trades, err := s.primary.TradesByPair(ctx, pairID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(trades); err == nil {
		s.rdb.Set(ctx, pairTradesKey(pairID), data, s.ttl)
	}
	return trades, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) AppendEvent(ctx context.Context, event *model.Event) error {
	return s.primary.AppendEvent(ctx, event)
}

func (s *CachedStore) EventsByEntity(ctx context.Context, entity model.DID) ([]model.Event, error) {
	return s.primary.EventsByEntity(ctx, entity)
}

func (s *CachedStore) SwapRecordsByOwner(ctx context.Context, owner model.AccountID) ([]model.AmmOrder, error) {
	return s.primary.SwapRecordsByOwner(ctx, owner)
}

func (s *CachedStore) ListPoolSnapshots(ctx context.Context) ([]model.LiquidityPool, error) {
	return s.primary.ListPoolSnapshots(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cachePool(ctx context.Context, p *model.LiquidityPool) {
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, poolKey(p.ID), data, s.ttl)
	}
}

func poolKey(id model.DID) string        { return fmt.Sprintf("pool:%s", id) }
func poolSwapsKey(id model.DID) string   { return fmt.Sprintf("pool-swaps:%s", id) }
func pairTradesKey(id model.DID) string  { return fmt.Sprintf("pair-trades:%s", id) }
