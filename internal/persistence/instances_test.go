package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"arbitrage/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertInstanceMetadata_ExecutesUpsert(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`INSERT INTO instance_metadata`).WillReturnResult(sqlmock.NewResult(1, 1))

	m := &models.InstanceMetadata{InstanceID: "abc-1", StartedAt: time.Now(), LastHeartbeat: time.Now(), Status: "running"}
	err := s.UpsertInstanceMetadata(context.Background(), m)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStaleInstances_ReturnsScannedRows(t *testing.T) {
	s, mock := newTestStore(t)
	rows := sqlmock.NewRows([]string{"instance_id", "started_at", "last_heartbeat", "is_leader", "leader_acquired_at", "status", "hostname"}).
		AddRow("abc-1", time.Now(), time.Now().Add(-time.Hour), false, nil, "running", "host-1")
	mock.ExpectQuery(`SELECT .+ FROM instance_metadata`).WillReturnRows(rows)

	stale, err := s.GetStaleInstances(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "abc-1", stale[0].InstanceID)
}

func TestGetCurrentLeader_ReturnsEmptyWhenNoLeaderRow(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT instance_id FROM instance_metadata`).WillReturnError(sql.ErrNoRows)

	id, err := s.GetCurrentLeader(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestGetCurrentLeader_ForceFreshExecutesSyncPointFirst(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`SELECT 1`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT instance_id FROM instance_metadata`).
		WillReturnRows(sqlmock.NewRows([]string{"instance_id"}).AddRow("abc-1"))

	id, err := s.GetCurrentLeader(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "abc-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordLeadershipTransition_InsertsOnBecomingLeader(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`INSERT INTO leadership_history`).WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.RecordLeadershipTransition(context.Background(), "abc-1", true, "host-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordLeadershipTransition_UpdatesOnRelease(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`UPDATE leadership_history`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.RecordLeadershipTransition(context.Background(), "abc-1", false, "host-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
