package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/labrig/internal/data"
	"github.com/nerrad567/labrig/internal/infrastructure/database"
)

// RunRecord is one archived session row.
type RunRecord struct {
	ID               string
	ExperimentID     string
	Experimenter     string
	State            string
	StartedAt        time.Time
	StoppedAt        time.Time
	RecordsDelivered uint64
	RecordsDropped   uint64
	FaultCount       int
}

// DeviceResult is one device's delivery outcome, archived per run.
type DeviceResult struct {
	data.DeviceStats
	FinalState string
}

// Repository archives completed runs in SQLite.
type Repository struct {
	db *database.DB
}

// NewRepository creates a repository over an open, migrated database.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// SaveRun writes the run row, its per-device results and its notes in
// one transaction. Called exactly once, at teardown.
func (r *Repository) SaveRun(ctx context.Context, run RunRecord, results []DeviceResult, notes []Note) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning archive transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, experiment_id, experimenter, state, started_at, stopped_at,
		                      records_delivered, records_dropped, fault_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ExperimentID, run.Experimenter, run.State,
		nullableTime(run.StartedAt), nullableTime(run.StoppedAt),
		int64(run.RecordsDelivered), int64(run.RecordsDropped), run.FaultCount, // #nosec G115 -- counters fit int64
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", run.ID, err)
	}

	for _, res := range results {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_devices (session_id, device_id, device_type, final_state,
			                             delivered, dropped, last_seq, gaps)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, res.DeviceID, res.DeviceType, res.FinalState,
			int64(res.Delivered), int64(res.Dropped), int64(res.LastSeq), int64(res.Gaps)) // #nosec G115 -- counters fit int64
		if err != nil {
			return fmt.Errorf("inserting device result %s: %w", res.DeviceID, err)
		}
	}

	for _, note := range notes {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO session_notes (session_id, noted_at, note) VALUES (?, ?, ?)`,
			run.ID, note.At.UTC().Format(time.RFC3339Nano), note.Text)
		if err != nil {
			return fmt.Errorf("inserting note: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing archive for %s: %w", run.ID, err)
	}
	return nil
}

// GetRun reads one archived run row back.
func (r *Repository) GetRun(ctx context.Context, id string) (RunRecord, error) {
	var (
		run                  RunRecord
		startedAt, stoppedAt sql.NullString
		delivered, dropped   int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, experiment_id, experimenter, state, started_at, stopped_at,
		       records_delivered, records_dropped, fault_count
		FROM sessions WHERE id = ?`, id).Scan(
		&run.ID, &run.ExperimentID, &run.Experimenter, &run.State,
		&startedAt, &stoppedAt, &delivered, &dropped, &run.FaultCount)
	if err == sql.ErrNoRows {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("reading session %s: %w", id, err)
	}

	run.StartedAt = parseArchiveTime(startedAt)
	run.StoppedAt = parseArchiveTime(stoppedAt)
	run.RecordsDelivered = uint64(delivered) // #nosec G115 -- written from uint64
	run.RecordsDropped = uint64(dropped)     // #nosec G115 -- written from uint64
	return run, nil
}

// DeviceResults reads the per-device rows for one run, in insertion order.
func (r *Repository) DeviceResults(ctx context.Context, sessionID string) ([]DeviceResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, device_type, final_state, delivered, dropped, last_seq, gaps
		FROM session_devices WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reading device results for %s: %w", sessionID, err)
	}
	defer rows.Close() //nolint:errcheck

	var out []DeviceResult
	for rows.Next() {
		var (
			res                               DeviceResult
			delivered, dropped, lastSeq, gaps int64
		)
		if err := rows.Scan(&res.DeviceID, &res.DeviceType, &res.FinalState,
			&delivered, &dropped, &lastSeq, &gaps); err != nil {
			return nil, fmt.Errorf("scanning device result: %w", err)
		}
		res.Delivered = uint64(delivered) // #nosec G115 -- written from uint64
		res.Dropped = uint64(dropped)     // #nosec G115 -- written from uint64
		res.LastSeq = uint64(lastSeq)     // #nosec G115 -- written from uint64
		res.Gaps = uint64(gaps)           // #nosec G115 -- written from uint64
		out = append(out, res)
	}
	return out, rows.Err()
}

// Notes reads the annotations for one run, oldest first.
func (r *Repository) Notes(ctx context.Context, sessionID string) ([]Note, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT noted_at, note FROM session_notes
		WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reading notes for %s: %w", sessionID, err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Note
	for rows.Next() {
		var (
			n  Note
			at string
		)
		if err := rows.Scan(&at, &n.Text); err != nil {
			return nil, fmt.Errorf("scanning note: %w", err)
		}
		n.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, n)
	}
	return out, rows.Err()
}

// nullableTime maps the zero time to NULL so never-started runs archive
// cleanly. Times are stored as RFC3339 text.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseArchiveTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s.String)
	return t
}
