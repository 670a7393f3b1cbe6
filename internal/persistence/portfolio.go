package persistence

import (
	"context"
	"database/sql"

	"arbitrage/internal/models"
)

const portfolioStateID = 1

// SavePortfolioState upserts the single-row portfolio_state table.
func (s *Store) SavePortfolioState(ctx context.Context, p *models.PortfolioState) error {
	query := `
		INSERT INTO portfolio_state (id, closed_equity, equity_high_water, total_risk, total_volatility, margin_used, initial_capital)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			closed_equity = EXCLUDED.closed_equity,
			equity_high_water = EXCLUDED.equity_high_water,
			total_risk = EXCLUDED.total_risk,
			total_volatility = EXCLUDED.total_volatility,
			margin_used = EXCLUDED.margin_used,
			initial_capital = EXCLUDED.initial_capital`

	_, err := s.db.ExecContext(ctx, query, portfolioStateID,
		p.ClosedEquity, p.EquityHighWater, p.TotalRisk, p.TotalVolatility, p.MarginUsed, p.InitialCapital)
	return err
}

// GetPortfolioState reads the single portfolio_state row, returning a
// zero-value state if none has been written yet.
func (s *Store) GetPortfolioState(ctx context.Context) (*models.PortfolioState, error) {
	query := `
		SELECT closed_equity, equity_high_water, total_risk, total_volatility, margin_used, initial_capital
		FROM portfolio_state WHERE id = $1`

	p := &models.PortfolioState{}
	err := s.db.QueryRowContext(ctx, query, portfolioStateID).Scan(
		&p.ClosedEquity, &p.EquityHighWater, &p.TotalRisk, &p.TotalVolatility, &p.MarginUsed, &p.InitialCapital,
	)
	if err == sql.ErrNoRows {
		return &models.PortfolioState{}, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SavePyramidingState upserts the per-instrument pyramid bookkeeping row.
func (s *Store) SavePyramidingState(ctx context.Context, p *models.PyramidState) error {
	query := `
		INSERT INTO pyramiding_state (instrument, last_entry_price, base_position_id, pyramid_level)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (instrument) DO UPDATE SET
			last_entry_price = EXCLUDED.last_entry_price,
			base_position_id = EXCLUDED.base_position_id,
			pyramid_level = EXCLUDED.pyramid_level`

	var basePos sql.NullString
	if p.BasePositionID != "" {
		basePos = sql.NullString{String: p.BasePositionID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query, p.Instrument, p.LastEntryPrice, basePos, p.PyramidLevel)
	return err
}

// GetPyramidingState reads the per-instrument pyramid row, returning a
// zero-value (no base) state if the instrument has never pyramided.
func (s *Store) GetPyramidingState(ctx context.Context, instrument string) (*models.PyramidState, error) {
	query := `
		SELECT instrument, last_entry_price, base_position_id, pyramid_level
		FROM pyramiding_state WHERE instrument = $1`

	p := &models.PyramidState{}
	var basePos sql.NullString
	err := s.db.QueryRowContext(ctx, query, instrument).Scan(&p.Instrument, &p.LastEntryPrice, &basePos, &p.PyramidLevel)
	if err == sql.ErrNoRows {
		return &models.PyramidState{Instrument: instrument}, nil
	}
	if err != nil {
		return nil, err
	}
	if basePos.Valid {
		p.BasePositionID = basePos.String
	}
	return p, nil
}
