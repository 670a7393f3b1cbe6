package persistence

import (
	"context"
	"database/sql"
	"testing"

	"arbitrage/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPortfolioState_ReturnsZeroValueWhenNoRowExists(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT .+ FROM portfolio_state`).
		WithArgs(portfolioStateID).
		WillReturnError(sql.ErrNoRows)

	state, err := s.GetPortfolioState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &models.PortfolioState{}, state)
}

func TestGetPortfolioState_ReturnsStoredRow(t *testing.T) {
	s, mock := newTestStore(t)
	rows := sqlmock.NewRows([]string{"closed_equity", "equity_high_water", "total_risk", "total_volatility", "margin_used", "initial_capital"}).
		AddRow(1000.0, 1200.0, 2.0, 3.0, 50000.0, 1000000.0)
	mock.ExpectQuery(`SELECT .+ FROM portfolio_state`).WillReturnRows(rows)

	state, err := s.GetPortfolioState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, state.ClosedEquity)
	assert.Equal(t, 1200.0, state.EquityHighWater)
}

func TestSavePortfolioState_ExecutesUpsert(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`INSERT INTO portfolio_state`).WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.SavePortfolioState(context.Background(), &models.PortfolioState{ClosedEquity: 500})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPyramidingState_ReturnsZeroValueForUnknownInstrument(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT .+ FROM pyramiding_state`).
		WithArgs("BANK_NIFTY").
		WillReturnError(sql.ErrNoRows)

	state, err := s.GetPyramidingState(context.Background(), "BANK_NIFTY")
	require.NoError(t, err)
	assert.Equal(t, "BANK_NIFTY", state.Instrument)
	assert.Empty(t, state.BasePositionID)
}

func TestSavePyramidingState_ExecutesUpsert(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`INSERT INTO pyramiding_state`).WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.SavePyramidingState(context.Background(), &models.PyramidState{Instrument: "BANK_NIFTY", PyramidLevel: 2})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
