package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const runColumns = `id, uuid, name, blur_level, input_locator, state, output_locator,
	error_message, created_at, updated_at, finished_at`

const stageColumns = `run_id, stage_index, kind, tags, state, output_payload,
	error_kind, error_message, started_at, finished_at, updated_at`

// CreateRun records a run and all of its stages in the enqueued state.
func (s *Store) CreateRun(ctx context.Context, spec NewRun) (*Run, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(spec.UUID) == "" {
		return nil, errors.New("run uuid is required")
	}
	if strings.TrimSpace(spec.Name) == "" {
		return nil, errors.New("run name is required")
	}
	if len(spec.Stages) == 0 {
		return nil, errors.New("run requires at least one stage")
	}

	now := time.Now().UTC()
	stamp := formatTime(now)
	var id int64
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`INSERT INTO runs (uuid, name, blur_level, input_locator, state, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			spec.UUID, spec.Name, spec.BlurLevel, nullableString(spec.InputLocator), StateEnqueued, stamp, stamp,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		for i, st := range spec.Stages {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO stages (run_id, stage_index, kind, tags, state, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				id, i, st.Kind, nullableString(strings.Join(st.Tags, ",")), StateEnqueued, stamp,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	run := &Run{
		ID:           id,
		UUID:         spec.UUID,
		Name:         spec.Name,
		BlurLevel:    spec.BlurLevel,
		InputLocator: spec.InputLocator,
		State:        StateEnqueued,
		CreatedAt:    now,
		UpdatedAt:    now,
		Stages:       make([]Stage, 0, len(spec.Stages)),
	}
	for i, st := range spec.Stages {
		run.Stages = append(run.Stages, Stage{
			RunID:     id,
			Index:     i,
			Kind:      st.Kind,
			Tags:      append([]string(nil), st.Tags...),
			State:     StateEnqueued,
			UpdatedAt: now,
		})
	}
	return run, nil
}

// UpdateStage applies a state transition to one stage.
func (s *Store) UpdateStage(ctx context.Context, runID int64, index int, upd StageUpdate) error {
	if strings.TrimSpace(upd.State) == "" {
		return errors.New("stage state is required")
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE stages SET
			state = ?,
			output_payload = COALESCE(?, output_payload),
			error_kind = COALESCE(?, error_kind),
			error_message = COALESCE(?, error_message),
			started_at = COALESCE(started_at, ?),
			finished_at = COALESCE(?, finished_at),
			updated_at = ?
		 WHERE run_id = ? AND stage_index = ?`,
		upd.State,
		nullableString(upd.OutputPayload),
		nullableString(upd.ErrorKind),
		nullableString(upd.ErrorMessage),
		nullableTime(upd.StartedAt),
		nullableTime(upd.FinishedAt),
		formatTime(time.Now()),
		runID, index,
	)
	if err != nil {
		return fmt.Errorf("update stage %d of run %d: %w", index, runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update stage %d of run %d: %w", index, runID, sql.ErrNoRows)
	}
	return nil
}

// SetRunState records a non-terminal run state.
func (s *Store) SetRunState(ctx context.Context, runID int64, state string) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE runs SET state = ?, updated_at = ? WHERE id = ?`,
		state, formatTime(time.Now()), runID,
	); err != nil {
		return fmt.Errorf("update run %d: %w", runID, err)
	}
	return nil
}

// FinishRun records the terminal state of a run.
func (s *Store) FinishRun(ctx context.Context, runID int64, state, outputLocator, errorMessage string) error {
	now := formatTime(time.Now())
	if _, err := s.execWithRetry(ctx,
		`UPDATE runs SET state = ?, output_locator = COALESCE(?, output_locator),
			error_message = COALESCE(?, error_message), updated_at = ?, finished_at = ?
		 WHERE id = ?`,
		state, nullableString(outputLocator), nullableString(errorMessage), now, now, runID,
	); err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}
	return nil
}

// GetRun returns the run with id, or nil when it does not exist.
func (s *Store) GetRun(ctx context.Context, id int64) (*Run, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %d: %w", id, err)
	}
	if err := s.loadStages(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, run := range runs {
		if err := s.loadStages(ctx, run); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// CancelInterrupted marks runs and stages left enqueued or running by a
// previous process as cancelled. It returns the number of runs affected.
func (s *Store) CancelInterrupted(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	now := formatTime(time.Now())
	var affected int64
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`UPDATE stages SET state = ?, finished_at = COALESCE(finished_at, ?), updated_at = ?
			 WHERE state IN (?, ?)`,
			StateCancelled, now, now, StateEnqueued, StateRunning,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE runs SET state = ?, finished_at = COALESCE(finished_at, ?), updated_at = ?
			 WHERE state IN (?, ?)`,
			StateCancelled, now, now, StateEnqueued, StateRunning,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("cancel interrupted runs: %w", err)
	}
	return affected, nil
}

func (s *Store) loadStages(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stageColumns+` FROM stages WHERE run_id = ? ORDER BY stage_index`, run.ID)
	if err != nil {
		return fmt.Errorf("load stages for run %d: %w", run.ID, err)
	}
	defer rows.Close()

	run.Stages = run.Stages[:0]
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return fmt.Errorf("scan stage: %w", err)
		}
		run.Stages = append(run.Stages, st)
	}
	return rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanRun(row scanner) (*Run, error) {
	var (
		run                             Run
		input, output, errMsg, finished sql.NullString
		createdRaw, updatedRaw          string
	)
	if err := row.Scan(
		&run.ID, &run.UUID, &run.Name, &run.BlurLevel, &input, &run.State, &output,
		&errMsg, &createdRaw, &updatedRaw, &finished,
	); err != nil {
		return nil, err
	}
	run.InputLocator = input.String
	run.OutputLocator = output.String
	run.ErrorMessage = errMsg.String
	if t, err := parseTimeString(createdRaw); err == nil {
		run.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		run.UpdatedAt = t
	}
	run.FinishedAt = parseNullTime(finished)
	return &run, nil
}

func scanStage(row scanner) (Stage, error) {
	var (
		st                            Stage
		tags, output, errKind, errMsg sql.NullString
		started, finished             sql.NullString
		updatedRaw                    string
	)
	if err := row.Scan(
		&st.RunID, &st.Index, &st.Kind, &tags, &st.State, &output,
		&errKind, &errMsg, &started, &finished, &updatedRaw,
	); err != nil {
		return Stage{}, err
	}
	if tags.Valid && tags.String != "" {
		st.Tags = strings.Split(tags.String, ",")
	}
	st.OutputPayload = output.String
	st.ErrorKind = errKind.String
	st.ErrorMessage = errMsg.String
	st.StartedAt = parseNullTime(started)
	st.FinishedAt = parseNullTime(finished)
	if t, err := parseTimeString(updatedRaw); err == nil {
		st.UpdatedAt = t
	}
	return st, nil
}
