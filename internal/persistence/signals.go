package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"arbitrage/internal/models"
	"arbitrage/pkg/utils"
)

// dedupWindow is the duration within which a repeated fingerprint is
// considered a duplicate signal.
const dedupWindow = 60 * time.Second

// CheckDuplicateSignal reports whether fingerprint was logged within the
// last 60 seconds, consulted by the dedup cache as a durability fallback
// across restarts.
func (s *Store) CheckDuplicateSignal(ctx context.Context, fingerprint string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM signal_log
			WHERE fingerprint = $1 AND received_at >= $2
		)`

	var exists bool
	err := s.db.QueryRowContext(ctx, query, fingerprint, time.Now().Add(-dedupWindow)).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// LogSignal inserts the fingerprint/received-at row that backs
// CheckDuplicateSignal. A unique-violation on fingerprint is treated as
// already-logged, not an error.
func (s *Store) LogSignal(ctx context.Context, fingerprint, instrument string, receivedAt time.Time) error {
	query := `
		INSERT INTO signal_log (fingerprint, instrument, received_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (fingerprint) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query, fingerprint, instrument, receivedAt)
	return err
}

// LogAudit inserts a signal_audit row with the embedded sub-records
// serialized as JSON.
func (s *Store) LogAudit(ctx context.Context, a *models.SignalAudit) error {
	query := `
		INSERT INTO signal_audit (
			fingerprint, instrument, kind, position, signal_timestamp, received_at,
			outcome, outcome_reason, validation, sizing, risk, execution, processing_duration_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	var validation, sizing, risk, execution sql.NullString
	var err error
	if a.Validation != nil {
		if validation, err = marshalNullable(a.Validation); err != nil {
			return err
		}
	}
	if a.Sizing != nil {
		if sizing, err = marshalNullable(a.Sizing); err != nil {
			return err
		}
	}
	if a.Risk != nil {
		if risk, err = marshalNullable(a.Risk); err != nil {
			return err
		}
	}
	if a.Execution != nil {
		if execution, err = marshalNullable(a.Execution); err != nil {
			return err
		}
	}

	_, err = s.db.ExecContext(ctx, query,
		a.Fingerprint, a.Instrument, a.Kind, a.Position, a.SignalTimestamp, a.ReceivedAt,
		a.Outcome, a.OutcomeReason, validation, sizing, risk, execution, a.ProcessingTimeMS,
	)
	return err
}

// AuditOutcomeCount is the number of signal_audit rows logged with one
// outcome within a reporting window.
type AuditOutcomeCount struct {
	Outcome string
	Count   int64
}

// AuditSummary aggregates signal_audit rows received within window,
// grouped by outcome, optionally scoped to one instrument. Backs the
// webhook reporting endpoint's day/week/month/year rollups.
func (s *Store) AuditSummary(ctx context.Context, instrument string, window utils.TimeRange) ([]AuditOutcomeCount, error) {
	query := `
		SELECT outcome, COUNT(*) FROM signal_audit
		WHERE received_at >= $1 AND received_at <= $2`
	args := []interface{}{window.Start, window.End}
	if instrument != "" {
		query += ` AND instrument = $3`
		args = append(args, instrument)
	}
	query += ` GROUP BY outcome ORDER BY outcome`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditOutcomeCount
	for rows.Next() {
		var row AuditOutcomeCount
		if err := rows.Scan(&row.Outcome, &row.Count); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func marshalNullable(v interface{}) (sql.NullString, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
