package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
)

// Run is one processed video.
type Run struct {
	ID         string     `json:"id"`
	Input      string     `json:"input"`
	Output     string     `json:"output"`
	Status     Status     `json:"status"`
	Success    int        `json:"success_frames"`
	Failed     int        `json:"failed_frames"`
	Total      int        `json:"total_frames"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Outcome is the final state written by Finish.
type Outcome struct {
	Status  Status
	Success int
	Failed  int
	Total   int
	Error   string
}

// FrameFailure records one frame that was written without annotation.
type FrameFailure struct {
	Frame     int       `json:"frame"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// RunRepository provides access to run history.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

// Start inserts a new running run and returns it.
func (r *RunRepository) Start(input, output string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Input:     input,
		Output:    output,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := r.db.Exec(
		`INSERT INTO runs (id, input, output, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Input, run.Output, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, err
	}

	return run, nil
}

// RecordFailure stores one failed frame for a run.
func (r *RunRepository) RecordFailure(runID string, frame int, reason string) error {
	_, err := r.db.Exec(
		`INSERT INTO frame_failures (run_id, frame, reason, created_at) VALUES (?, ?, ?, ?)`,
		runID, frame, reason, time.Now().UTC(),
	)
	return err
}

// Finish writes the final counts and status of a run.
func (r *RunRepository) Finish(runID string, o Outcome) error {
	if o.Status == StatusRunning {
		return fmt.Errorf("cannot finish run with status %q", o.Status)
	}

	result, err := r.db.Exec(
		`UPDATE runs SET status = ?, success_frames = ?, failed_frames = ?, total_frames = ?,
		 error = ?, finished_at = ? WHERE id = ?`,
		string(o.Status), o.Success, o.Failed, o.Total, o.Error, time.Now().UTC(), runID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

const runColumns = `id, input, output, status, success_frames, failed_frames, total_frames,
	error, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var status string
	var finished sql.NullTime

	err := row.Scan(&run.ID, &run.Input, &run.Output, &status, &run.Success, &run.Failed,
		&run.Total, &run.Error, &run.StartedAt, &finished)
	if err != nil {
		return nil, err
	}

	run.Status = Status(status)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}

// Get retrieves a run by its ID.
func (r *RunRepository) Get(id string) (*Run, error) {
	run, err := scanRun(r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List returns the most recent runs first. A limit <= 0 returns all runs.
func (r *RunRepository) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// Failures returns the failed frames of a run in frame order.
func (r *RunRepository) Failures(runID string) ([]FrameFailure, error) {
	if _, err := r.Get(runID); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(
		`SELECT frame, reason, created_at FROM frame_failures WHERE run_id = ? ORDER BY frame`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []FrameFailure
	for rows.Next() {
		var f FrameFailure
		if err := rows.Scan(&f.Frame, &f.Reason, &f.CreatedAt); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}

	return failures, rows.Err()
}

// Delete removes a run and its failures.
func (r *RunRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
