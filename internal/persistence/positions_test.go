package persistence

import (
	"database/sql"
	"context"
	"testing"
	"time"

	"arbitrage/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPosition_ReturnsCachedEntryWithoutQuery(t *testing.T) {
	s, mock := newTestStore(t)
	cached := &models.Position{ID: "p1", Instrument: "BANK_NIFTY"}
	s.cache["p1"] = cached

	got, err := s.GetPosition(context.Background(), "p1")
	require.NoError(t, err)
	assert.Same(t, cached, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPosition_NotFoundReturnsTypedError(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT .+ FROM portfolio_positions`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetPosition(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPositionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePosition_VersionConflictReturnsTypedError(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO portfolio_positions`).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	pos := &models.Position{ID: "p1", Instrument: "BANK_NIFTY", EntryTimestamp: time.Now(), Version: 3}
	err := s.SavePosition(context.Background(), pos)

	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePosition_UpdatesCacheAndVersionOnSuccess(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO portfolio_positions`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(4)))
	mock.ExpectCommit()

	pos := &models.Position{ID: "p1", Instrument: "BANK_NIFTY", EntryTimestamp: time.Now(), Version: 3}
	err := s.SavePosition(context.Background(), pos)

	require.NoError(t, err)
	assert.Equal(t, int64(4), pos.Version)
	assert.Same(t, pos, s.cache["p1"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidateCache_RemovesEntry(t *testing.T) {
	s, _ := newTestStore(t)
	s.cache["p1"] = &models.Position{ID: "p1"}

	s.InvalidateCache("p1")

	_, ok := s.cache["p1"]
	assert.False(t, ok)
}
