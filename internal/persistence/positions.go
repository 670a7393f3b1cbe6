package persistence

import (
	"context"
	"database/sql"
	"errors"

	"arbitrage/internal/models"
)

// ErrPositionNotFound is returned when a position id has no row and is
// not present in the write-through cache either.
var ErrPositionNotFound = errors.New("position not found")

// ErrVersionConflict is returned when SavePosition is called with a
// version that no longer matches the stored row (optimistic concurrency).
var ErrVersionConflict = errors.New("position version conflict")

// SavePosition upserts a position row, bumping version = old_version + 1
// on every write. The in-process cache is updated write-through.
func (s *Store) SavePosition(ctx context.Context, p *models.Position) error {
	query := `
		INSERT INTO portfolio_positions (
			id, instrument, label, status, entry_timestamp, entry_price,
			lots, lot_size, quantity, initial_stop, current_stop, highest_close,
			unrealized_pnl, realized_pnl, rollover_status, rollover_count,
			is_two_leg, put_symbol, call_symbol, put_price, call_price,
			strike, expiry, is_base_position, version
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,1
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			entry_price = EXCLUDED.entry_price,
			lots = EXCLUDED.lots,
			quantity = EXCLUDED.quantity,
			initial_stop = EXCLUDED.initial_stop,
			current_stop = EXCLUDED.current_stop,
			highest_close = EXCLUDED.highest_close,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			realized_pnl = EXCLUDED.realized_pnl,
			rollover_status = EXCLUDED.rollover_status,
			rollover_count = EXCLUDED.rollover_count,
			put_symbol = EXCLUDED.put_symbol,
			call_symbol = EXCLUDED.call_symbol,
			put_price = EXCLUDED.put_price,
			call_price = EXCLUDED.call_price,
			strike = EXCLUDED.strike,
			expiry = EXCLUDED.expiry,
			is_base_position = EXCLUDED.is_base_position,
			version = portfolio_positions.version + 1
		WHERE portfolio_positions.version = $25
		RETURNING version`

	var newVersion int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, query,
			p.ID, p.Instrument, p.Label, p.Status, p.EntryTimestamp, p.EntryPrice,
			p.Lots, p.LotSize, p.Quantity, p.InitialStop, p.CurrentStop, p.HighestClose,
			p.UnrealizedPnL, p.RealizedPnL, p.RolloverStatus, p.RolloverCount,
			p.IsTwoLeg, p.PutSymbol, p.CallSymbol, p.PutPrice, p.CallPrice,
			p.Strike, p.Expiry, p.IsBasePosition, p.Version,
		).Scan(&newVersion)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrVersionConflict
		}
		return err
	}
	p.Version = newVersion

	s.cacheMu.Lock()
	s.cache[p.ID] = p
	s.cacheMu.Unlock()
	return nil
}

// GetOpenPositions returns every position whose status is not "closed",
// always queried from the relational store; each returned row replaces
// the process-local cache entry for its id.
func (s *Store) GetOpenPositions(ctx context.Context) ([]*models.Position, error) {
	query := `
		SELECT id, instrument, label, status, entry_timestamp, entry_price,
			lots, lot_size, quantity, initial_stop, current_stop, highest_close,
			unrealized_pnl, realized_pnl, rollover_status, rollover_count,
			is_two_leg, put_symbol, call_symbol, put_price, call_price,
			strike, expiry, is_base_position, version
		FROM portfolio_positions
		WHERE status != 'closed'
		ORDER BY entry_timestamp ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Position
	for rows.Next() {
		p := &models.Position{}
		if err := scanPosition(rows, p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	for _, p := range out {
		s.cache[p.ID] = p
	}
	s.cacheMu.Unlock()

	return out, nil
}

// GetPosition reads a single position, consulting the cache first.
func (s *Store) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	s.cacheMu.RLock()
	if cached, ok := s.cache[id]; ok {
		s.cacheMu.RUnlock()
		return cached, nil
	}
	s.cacheMu.RUnlock()

	query := `
		SELECT id, instrument, label, status, entry_timestamp, entry_price,
			lots, lot_size, quantity, initial_stop, current_stop, highest_close,
			unrealized_pnl, realized_pnl, rollover_status, rollover_count,
			is_two_leg, put_symbol, call_symbol, put_price, call_price,
			strike, expiry, is_base_position, version
		FROM portfolio_positions
		WHERE id = $1`

	p := &models.Position{}
	row := s.db.QueryRowContext(ctx, query, id)
	if err := scanPosition(row, p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}

	s.cacheMu.Lock()
	s.cache[id] = p
	s.cacheMu.Unlock()
	return p, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner, p *models.Position) error {
	var expiry sql.NullTime
	var strike sql.NullFloat64
	err := row.Scan(
		&p.ID, &p.Instrument, &p.Label, &p.Status, &p.EntryTimestamp, &p.EntryPrice,
		&p.Lots, &p.LotSize, &p.Quantity, &p.InitialStop, &p.CurrentStop, &p.HighestClose,
		&p.UnrealizedPnL, &p.RealizedPnL, &p.RolloverStatus, &p.RolloverCount,
		&p.IsTwoLeg, &p.PutSymbol, &p.CallSymbol, &p.PutPrice, &p.CallPrice,
		&strike, &expiry, &p.IsBasePosition, &p.Version,
	)
	if err != nil {
		return err
	}
	if strike.Valid {
		p.Strike = strike.Float64
	}
	if expiry.Valid {
		p.Expiry = expiry.Time
	}
	return nil
}

// InvalidateCache drops id from the process-local position cache,
// forcing the next GetPosition to re-read the authoritative row.
func (s *Store) InvalidateCache(id string) {
	s.cacheMu.Lock()
	delete(s.cache, id)
	s.cacheMu.Unlock()
}
