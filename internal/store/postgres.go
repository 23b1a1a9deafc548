package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dnft/swap-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// uint64 amounts and prices are stored as NUMERIC and round-tripped as text
// so values above the BIGINT range survive. Pool snapshots additionally
// carry the exact decimal spot price for display queries.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *model.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, kind, caller, entity, payload, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Kind, e.Caller, e.Entity.String(), []byte(e.Payload), e.Timestamp,
	)
	return err
}

func (s *PostgresStore) EventsByEntity(ctx context.Context, entity model.DID) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, caller, entity, payload, timestamp
		 FROM events WHERE entity = $1 ORDER BY timestamp`, entity.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var entityS string
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Kind, &e.Caller, &entityS, &payload, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Entity, _ = model.ParseDID(entityS)
		e.Payload = payload
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) InsertSwapRecord(ctx context.Context, o *model.AmmOrder) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO swap_records (id, pool_id, owner, token_have, token_have_amount, token_want, token_want_amount, swap_price, idx, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10)`,
		o.ID.String(), o.PoolID.String(), o.Owner,
		o.TokenHave.String(), u64str(o.TokenHaveAmount),
		o.TokenWant.String(), u64str(o.TokenWantAmount),
		u64str(o.SwapPrice), u64str(o.Index), o.Timestamp,
	)
	return err
}

func (s *PostgresStore) SwapRecordsByPool(ctx context.Context, poolID model.DID) ([]model.AmmOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pool_id, owner, token_have, token_have_amount::TEXT,
		        token_want, token_want_amount::TEXT, swap_price::TEXT, idx::TEXT, timestamp
		 FROM swap_records WHERE pool_id = $1 ORDER BY idx`, poolID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSwapRecords(rows)
}

func (s *PostgresStore) SwapRecordsByOwner(ctx context.Context, owner model.AccountID) ([]model.AmmOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pool_id, owner, token_have, token_have_amount::TEXT,
		        token_want, token_want_amount::TEXT, swap_price::TEXT, idx::TEXT, timestamp
		 FROM swap_records WHERE owner = $1 ORDER BY timestamp`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSwapRecords(rows)
}

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (id, pair_id, buyer, seller, taker_side, price, base_amount, quote_amount, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
		t.ID, t.PairID.String(), t.Buyer, t.Seller, t.TakerSide.String(),
		u64str(t.Price), u64str(t.BaseAmount), u64str(t.QuoteAmount), t.Timestamp,
	)
	return err
}

func (s *PostgresStore) TradesByPair(ctx context.Context, pairID model.DID) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pair_id, buyer, seller, taker_side,
		        price::TEXT, base_amount::TEXT, quote_amount::TEXT, timestamp
		 FROM trades WHERE pair_id = $1 ORDER BY timestamp`, pairID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var pairS, sideS, priceS, baseS, quoteS string
		if err := rows.Scan(&t.ID, &pairS, &t.Buyer, &t.Seller, &sideS,
			&priceS, &baseS, &quoteS, &t.Timestamp); err != nil {
			return nil, err
		}
		t.PairID, _ = model.ParseDID(pairS)
		t.TakerSide, _ = model.ParseOrderSide(sideS)
		t.Price = stru64(priceS)
		t.BaseAmount = stru64(baseS)
		t.QuoteAmount = stru64(quoteS)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) UpsertPoolSnapshot(ctx context.Context, p *model.LiquidityPool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pool_snapshots (id, pair_id, token0, token1,
		     token0_amount, token1_amount, k_last,
		     swap_price_last, swap_price_highest, swap_price_lowest,
		     token0_volume_total, token1_volume_total, spot_price)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC,
		         $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12::NUMERIC, $13::NUMERIC)
		 ON CONFLICT (id) DO UPDATE SET
		     token0_amount = EXCLUDED.token0_amount,
		     token1_amount = EXCLUDED.token1_amount,
		     k_last = EXCLUDED.k_last,
		     swap_price_last = EXCLUDED.swap_price_last,
		     swap_price_highest = EXCLUDED.swap_price_highest,
		     swap_price_lowest = EXCLUDED.swap_price_lowest,
		     token0_volume_total = EXCLUDED.token0_volume_total,
		     token1_volume_total = EXCLUDED.token1_volume_total,
		     spot_price = EXCLUDED.spot_price`,
		p.ID.String(), p.PairID.String(), p.Token0.String(), p.Token1.String(),
		u64str(p.Token0Amount), u64str(p.Token1Amount), u64str(p.KLast),
		u64str(p.SwapPriceLast), u64str(p.SwapPriceHighest), u64str(p.SwapPriceLowest),
		u64str(p.Token0VolumeTotal), u64str(p.Token1VolumeTotal),
		p.SpotPrice().String(),
	)
	return err
}

func (s *PostgresStore) GetPoolSnapshot(ctx context.Context, poolID model.DID) (*model.LiquidityPool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, pair_id, token0, token1,
		        token0_amount::TEXT, token1_amount::TEXT, k_last::TEXT,
		        swap_price_last::TEXT, swap_price_highest::TEXT, swap_price_lowest::TEXT,
		        token0_volume_total::TEXT, token1_volume_total::TEXT
		 FROM pool_snapshots WHERE id = $1`, poolID.String())

	p, err := scanPoolSnapshot(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("get pool snapshot %s: %w", poolID, err)
	}
	return p, nil
}

func (s *PostgresStore) ListPoolSnapshots(ctx context.Context) ([]model.LiquidityPool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pair_id, token0, token1,
		        token0_amount::TEXT, token1_amount::TEXT, k_last::TEXT,
		        swap_price_last::TEXT, swap_price_highest::TEXT, swap_price_lowest::TEXT,
		        token0_volume_total::TEXT, token1_volume_total::TEXT
		 FROM pool_snapshots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []model.LiquidityPool
	for rows.Next() {
		p, err := scanPoolSnapshot(rows.Scan)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanSwapRecords(rows pgxRows) ([]model.AmmOrder, error) {
	var orders []model.AmmOrder
	for rows.Next() {
		var o model.AmmOrder
		var idS, poolS, haveS, wantS string
		var haveAmtS, wantAmtS, priceS, idxS string

		if err := rows.Scan(&idS, &poolS, &o.Owner, &haveS, &haveAmtS,
			&wantS, &wantAmtS, &priceS, &idxS, &o.Timestamp); err != nil {
			return nil, err
		}

		o.ID, _ = model.ParseDID(idS)
		o.PoolID, _ = model.ParseDID(poolS)
		o.TokenHave, _ = model.ParseDID(haveS)
		o.TokenWant, _ = model.ParseDID(wantS)
		o.TokenHaveAmount = stru64(haveAmtS)
		o.TokenWantAmount = stru64(wantAmtS)
		o.SwapPrice = stru64(priceS)
		o.Index = stru64(idxS)

		orders = append(orders, o)
	}
	return orders, nil
}

func scanPoolSnapshot(scan func(dest ...interface{}) error) (*model.LiquidityPool, error) {
	var p model.LiquidityPool
	var idS, pairS, t0S, t1S string
	var a0S, a1S, kS, lastS, highS, lowS, v0S, v1S string

	if err := scan(&idS, &pairS, &t0S, &t1S,
		&a0S, &a1S, &kS, &lastS, &highS, &lowS, &v0S, &v1S); err != nil {
		return nil, err
	}

	p.ID, _ = model.ParseDID(idS)
	p.PairID, _ = model.ParseDID(pairS)
	p.Token0, _ = model.ParseDID(t0S)
	p.Token1, _ = model.ParseDID(t1S)
	p.Token0Amount = stru64(a0S)
	p.Token1Amount = stru64(a1S)
	p.KLast = stru64(kS)
	p.SwapPriceLast = stru64(lastS)
	p.SwapPriceHighest = stru64(highS)
	p.SwapPriceLowest = stru64(lowS)
	p.Token0VolumeTotal = stru64(v0S)
	p.Token1VolumeTotal = stru64(v1S)

	return &p, nil
}

func u64str(v uint64) string { return strconv.FormatUint(v, 10) }

func stru64(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}
