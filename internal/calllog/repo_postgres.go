package calllog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresRepo persists call records via database/sql with the pgx stdlib
// driver. Schema is documented on CallRecord.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) CreateCall(ctx context.Context, rec CallRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO call_records (id, room_name, participant_identity, started_at, outcome)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.RoomName, rec.ParticipantIdentity, rec.StartedAt, string(rec.Outcome),
	)
	if err != nil {
		return fmt.Errorf("calllog: insert call: %w", err)
	}
	return nil
}

func (r *PostgresRepo) FinishCall(ctx context.Context, callID string, endedAt time.Time, outcome Outcome) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE call_records SET ended_at = $2, outcome = $3 WHERE id = $1 AND ended_at IS NULL`,
		callID, endedAt, string(outcome),
	)
	if err != nil {
		return fmt.Errorf("calllog: finish call: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("calllog: call %q not open", callID)
	}
	return nil
}

func (r *PostgresRepo) AppendAttempt(ctx context.Context, a TransferAttempt) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transfer_attempts (id, call_id, signal, label, destination, succeeded, error_kind, attempted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.CallID, a.Signal, a.Label, a.Destination, a.Succeeded, a.ErrorKind, a.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("calllog: insert attempt: %w", err)
	}
	return nil
}

func (r *PostgresRepo) RecentCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, room_name, participant_identity, started_at, ended_at, outcome
		 FROM call_records ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("calllog: query calls: %w", err)
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		var rec CallRecord
		var ended sql.NullTime
		var outcome string
		if err := rows.Scan(&rec.ID, &rec.RoomName, &rec.ParticipantIdentity, &rec.StartedAt, &ended, &outcome); err != nil {
			return nil, fmt.Errorf("calllog: scan call: %w", err)
		}
		if ended.Valid {
			t := ended.Time
			rec.EndedAt = &t
		}
		rec.Outcome = Outcome(outcome)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) AttemptsForCall(ctx context.Context, callID string) ([]TransferAttempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, call_id, signal, label, destination, succeeded, error_kind, attempted_at
		 FROM transfer_attempts WHERE call_id = $1 ORDER BY attempted_at`, callID)
	if err != nil {
		return nil, fmt.Errorf("calllog: query attempts: %w", err)
	}
	defer rows.Close()

	var out []TransferAttempt
	for rows.Next() {
		var a TransferAttempt
		if err := rows.Scan(&a.ID, &a.CallID, &a.Signal, &a.Label, &a.Destination, &a.Succeeded, &a.ErrorKind, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("calllog: scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
