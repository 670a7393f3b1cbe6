package persistence

import (
	"context"
	"database/sql"
	"time"

	"arbitrage/internal/models"
)

// UpsertInstanceMetadata writes or refreshes this process's row in
// instance_metadata. Each process writes only its own row.
func (s *Store) UpsertInstanceMetadata(ctx context.Context, m *models.InstanceMetadata) error {
	query := `
		INSERT INTO instance_metadata (instance_id, started_at, last_heartbeat, is_leader, leader_acquired_at, status, hostname)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (instance_id) DO UPDATE SET
			last_heartbeat = EXCLUDED.last_heartbeat,
			is_leader = EXCLUDED.is_leader,
			leader_acquired_at = EXCLUDED.leader_acquired_at,
			status = EXCLUDED.status`

	_, err := s.db.ExecContext(ctx, query,
		m.InstanceID, m.StartedAt, m.LastHeartbeat, m.IsLeader, m.LeaderAcquiredAt, m.Status, m.Hostname)
	return err
}

// GetStaleInstances returns instances whose last heartbeat is older than
// timeoutSeconds, used to detect crashed followers/leaders.
func (s *Store) GetStaleInstances(ctx context.Context, timeoutSeconds int) ([]*models.InstanceMetadata, error) {
	query := `
		SELECT instance_id, started_at, last_heartbeat, is_leader, leader_acquired_at, status, hostname
		FROM instance_metadata
		WHERE last_heartbeat < $1 AND status != 'stopped'`

	cutoff := time.Now().Add(-time.Duration(timeoutSeconds) * time.Second)
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.InstanceMetadata
	for rows.Next() {
		m := &models.InstanceMetadata{}
		var leaderAcquiredAt sql.NullTime
		if err := rows.Scan(&m.InstanceID, &m.StartedAt, &m.LastHeartbeat, &m.IsLeader, &leaderAcquiredAt, &m.Status, &m.Hostname); err != nil {
			return nil, err
		}
		if leaderAcquiredAt.Valid {
			m.LeaderAcquiredAt = leaderAcquiredAt.Time
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetCurrentLeader returns the instance_id currently marked is_leader in
// the relational store, restricted to heartbeats fresher than 30s. When
// forceFresh is true, a no-op sync-point read precedes the actual select
// to defeat connection-pool read-isolation staleness.
func (s *Store) GetCurrentLeader(ctx context.Context, forceFresh bool) (string, error) {
	if forceFresh {
		if _, err := s.db.ExecContext(ctx, `SELECT 1`); err != nil {
			return "", err
		}
	}

	query := `
		SELECT instance_id FROM instance_metadata
		WHERE is_leader = true AND last_heartbeat >= $1
		ORDER BY leader_acquired_at DESC
		LIMIT 1`

	var id string
	err := s.db.QueryRowContext(ctx, query, time.Now().Add(-30*time.Second)).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecordLeadershipTransition appends a row to leadership_history.
// becameLeader=true opens a transition; the matching release later
// updates released_leader_at/duration on the most recent open row for
// this instance.
func (s *Store) RecordLeadershipTransition(ctx context.Context, instanceID string, becameLeader bool, hostname string) error {
	if becameLeader {
		query := `
			INSERT INTO leadership_history (instance_id, became_leader_at, hostname)
			VALUES ($1, $2, $3)`
		_, err := s.db.ExecContext(ctx, query, instanceID, time.Now(), hostname)
		return err
	}

	query := `
		UPDATE leadership_history
		SET released_leader_at = $2, duration_seconds = EXTRACT(EPOCH FROM ($2 - became_leader_at))
		WHERE ctid = (
			SELECT ctid FROM leadership_history
			WHERE instance_id = $1 AND released_leader_at IS NULL
			ORDER BY became_leader_at DESC
			LIMIT 1
		)`
	_, err := s.db.ExecContext(ctx, query, instanceID, time.Now())
	return err
}
