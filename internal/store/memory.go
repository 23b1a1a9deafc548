package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/dnft/swap-engine/internal/model"
)

// MemoryStore implements Store with in-memory slices and maps. Used for
// testing and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	events []model.Event
	swaps  []model.AmmOrder
	trades []model.Trade
	pools  map[model.DID]*model.LiquidityPool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools: make(map[model.DID]*model.LiquidityPool),
	}
}

func (s *MemoryStore) AppendEvent(_ context.Context, event *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *event)
	return nil
}

func (s *MemoryStore) EventsByEntity(_ context.Context, entity model.DID) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Event
	for _, e := range s.events {
		if e.Entity == entity {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) InsertSwapRecord(_ context.Context, order *model.AmmOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.swaps = append(s.swaps, *order)
	return nil
}

func (s *MemoryStore) SwapRecordsByPool(_ context.Context, poolID model.DID) ([]model.AmmOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.AmmOrder
	for _, o := range s.swaps {
		if o.PoolID == poolID {
			result = append(result, o)
		}
	}
	return result, nil
}

func (s *MemoryStore) SwapRecordsByOwner(_ context.Context, owner model.AccountID) ([]model.AmmOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.AmmOrder
	for _, o := range s.swaps {
		if o.Owner == owner {
			result = append(result, o)
		}
	}
	return result, nil
}

func (s *MemoryStore) InsertTrade(_ context.Context, trade *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *trade)
	return nil
}

func (s *MemoryStore) TradesByPair(_ context.Context, pairID model.DID) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.PairID == pairID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) UpsertPoolSnapshot(_ context.Context, pool *model.LiquidityPool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	copy := *pool
	s.pools[pool.ID] = &copy
	return nil
}

func (s *MemoryStore) GetPoolSnapshot(_ context.Context, poolID model.DID) (*model.LiquidityPool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("pool snapshot %s not found", poolID)
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) ListPoolSnapshots(_ context.Context) ([]model.LiquidityPool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pools := make([]model.LiquidityPool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, *p)
	}
	return pools, nil
}
