package persistence

import (
	"context"
	"testing"
	"time"

	"arbitrage/internal/models"
	"arbitrage/pkg/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{db: db, cache: make(map[string]*models.Position)}, mock
}

func TestCheckDuplicateSignal_ReturnsTrueWhenRowExists(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT EXISTS\(`).
		WithArgs("fp-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	dup, err := s.CheckDuplicateSignal(context.Background(), "fp-1")
	require.NoError(t, err)
	assert.True(t, dup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogSignal_ExecutesInsertWithArgs(t *testing.T) {
	s, mock := newTestStore(t)
	now := time.Now()
	mock.ExpectExec(`INSERT INTO signal_log`).
		WithArgs("fp-1", "BANK_NIFTY", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.LogSignal(context.Background(), "fp-1", "BANK_NIFTY", now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogAudit_ExecutesInsertWithSerializedSubRecords(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`INSERT INTO signal_audit`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	audit := &models.SignalAudit{
		Fingerprint: "fp-1", Instrument: "BANK_NIFTY", Kind: models.KindBaseEntry,
		Position: "Long_1", Outcome: models.OutcomeProcessed,
		Validation: &models.ValidationResult{Stage: "condition", Passed: true},
	}

	err := s.LogAudit(context.Background(), audit)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditSummary_GroupsByOutcomeWithinWindow(t *testing.T) {
	s, mock := newTestStore(t)
	window := utils.GetDayRange()
	mock.ExpectQuery(`SELECT outcome, COUNT\(\*\) FROM signal_audit`).
		WithArgs(window.Start, window.End).
		WillReturnRows(sqlmock.NewRows([]string{"outcome", "count"}).
			AddRow("processed", int64(3)).
			AddRow("rejected_validation", int64(1)))

	rows, err := s.AuditSummary(context.Background(), "", window)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "processed", rows[0].Outcome)
	assert.EqualValues(t, 3, rows[0].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditSummary_ScopesToInstrumentWhenGiven(t *testing.T) {
	s, mock := newTestStore(t)
	window := utils.GetDayRange()
	mock.ExpectQuery(`SELECT outcome, COUNT\(\*\) FROM signal_audit`).
		WithArgs(window.Start, window.End, "BANK_NIFTY").
		WillReturnRows(sqlmock.NewRows([]string{"outcome", "count"}).AddRow("processed", int64(1)))

	rows, err := s.AuditSummary(context.Background(), "BANK_NIFTY", window)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarshalNullable_ProducesValidJSONString(t *testing.T) {
	ns, err := marshalNullable(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.True(t, ns.Valid)
	assert.Equal(t, `{"a":1}`, ns.String)
}
