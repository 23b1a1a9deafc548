// Package store defines the persistence interface for the swap engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"

	"github.com/dnft/swap-engine/internal/model"
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. The engine state itself lives
// in memory; the store holds the append-only logs and pool snapshots that
// queries and restarts read from.
type Store interface {
	// --- Event log ---

	// AppendEvent appends one entry to the immutable event log.
	AppendEvent(ctx context.Context, event *model.Event) error

	// EventsByEntity returns all events touching one entity, oldest first.
	EventsByEntity(ctx context.Context, entity model.DID) ([]model.Event, error)

	// --- Swap records ---

	// InsertSwapRecord appends an immutable executed-swap record.
	InsertSwapRecord(ctx context.Context, order *model.AmmOrder) error

	// SwapRecordsByPool returns all swaps against a pool.
	SwapRecordsByPool(ctx context.Context, poolID model.DID) ([]model.AmmOrder, error)

	// SwapRecordsByOwner returns all swaps executed by an account.
	SwapRecordsByOwner(ctx context.Context, owner model.AccountID) ([]model.AmmOrder, error)

	// --- Matched trades ---

	// InsertTrade appends one matched fill.
	InsertTrade(ctx context.Context, trade *model.Trade) error

	// TradesByPair returns all fills for a trade pair.
	TradesByPair(ctx context.Context, pairID model.DID) ([]model.Trade, error)

	// --- Pool snapshots ---

	// UpsertPoolSnapshot writes the pool state after an operation.
	UpsertPoolSnapshot(ctx context.Context, pool *model.LiquidityPool) error

	// GetPoolSnapshot retrieves one pool snapshot by pool ID.
	GetPoolSnapshot(ctx context.Context, poolID model.DID) (*model.LiquidityPool, error)

	// ListPoolSnapshots returns all pool snapshots.
	ListPoolSnapshots(ctx context.Context) ([]model.LiquidityPool, error)
}
