// Package store handles SQLite persistence of runs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/otgbench/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = errors.New("run not found")

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps SQLite access for run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY,
			created_at TEXT NOT NULL,
			backend TEXT NOT NULL,
			delta_time REAL NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL,
			duration REAL NOT NULL,
			first_calculation_ns INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			dof INTEGER NOT NULL,
			minimum_duration REAL
		);`,
		`CREATE TABLE IF NOT EXISTS run_axes (
			run_id INTEGER NOT NULL,
			axis INTEGER NOT NULL,
			p0 REAL NOT NULL,
			v0 REAL NOT NULL,
			a0 REAL NOT NULL,
			pf REAL NOT NULL,
			vf REAL NOT NULL,
			af REAL NOT NULL,
			max_velocity REAL NOT NULL,
			max_acceleration REAL NOT NULL,
			max_jerk REAL NOT NULL,
			PRIMARY KEY (run_id, axis)
		);`,
		`CREATE TABLE IF NOT EXISTS run_steps (
			run_id INTEGER NOT NULL,
			step INTEGER NOT NULL,
			time REAL NOT NULL,
			duration REAL NOT NULL,
			calculation_ns INTEGER NOT NULL,
			profile_time REAL NOT NULL,
			new_calculation INTEGER NOT NULL,
			PRIMARY KEY (run_id, step)
		);`,
		`CREATE TABLE IF NOT EXISTS run_samples (
			run_id INTEGER NOT NULL,
			step INTEGER NOT NULL,
			axis INTEGER NOT NULL,
			position REAL NOT NULL,
			velocity REAL NOT NULL,
			acceleration REAL NOT NULL,
			PRIMARY KEY (run_id, step, axis)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_backend ON runs(backend);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun stores a run with its initial input and recorded samples.
func (s *Store) InsertRun(ctx context.Context, run model.RunRecord, series model.TimeSeries) (id int64, err error) {
	in := run.Input
	if len(in.Current) != in.DegreesOfFreedom || len(in.Target) != in.DegreesOfFreedom || len(in.Limits) != in.DegreesOfFreedom {
		return 0, fmt.Errorf("%w: run input has inconsistent axes", model.ErrInvalidInput)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	var minDuration any
	if in.MinimumDuration != nil {
		minDuration = *in.MinimumDuration
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (created_at, backend, delta_time, status, error, duration, first_calculation_ns, steps, dof, minimum_duration)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.CreatedAt.UTC().Format(timeLayout),
		run.Backend,
		run.DeltaTime,
		run.Status.String(),
		run.Error,
		run.Duration,
		run.FirstCalculation.Nanoseconds(),
		len(series),
		in.DegreesOfFreedom,
		minDuration,
	)
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}

	axisStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_axes (run_id, axis, p0, v0, a0, pf, vf, af, max_velocity, max_acceleration, max_jerk)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer closeStmt(axisStmt)
	for i := 0; i < in.DegreesOfFreedom; i++ {
		c, t, l := in.Current[i], in.Target[i], in.Limits[i]
		if _, err = axisStmt.ExecContext(ctx, id, i,
			c.Position, c.Velocity, c.Acceleration,
			t.Position, t.Velocity, t.Acceleration,
			l.MaxVelocity, l.MaxAcceleration, l.MaxJerk); err != nil {
			return 0, err
		}
	}

	if len(series) > 0 {
		stepStmt, err := tx.PrepareContext(ctx,
			`INSERT INTO run_steps (run_id, step, time, duration, calculation_ns, profile_time, new_calculation)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, err
		}
		defer closeStmt(stepStmt)
		sampleStmt, err := tx.PrepareContext(ctx,
			`INSERT INTO run_samples (run_id, step, axis, position, velocity, acceleration)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, err
		}
		defer closeStmt(sampleStmt)
		for step, sample := range series {
			out := sample.Output
			if _, err := stepStmt.ExecContext(ctx, id, step, sample.Time, out.Duration,
				out.Calculation.Nanoseconds(), out.Time, boolToInt(out.NewCalculation)); err != nil {
				return 0, err
			}
			for axis, st := range out.State {
				if _, err := sampleStmt.ExecContext(ctx, id, step, axis, st.Position, st.Velocity, st.Acceleration); err != nil {
					return 0, err
				}
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// ListRuns returns stored runs, oldest first, without their samples.
func (s *Store) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.RunRecord, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Backend != "" {
		clauses = append(clauses, "backend = ?")
		args = append(args, filter.Backend)
	}
	if filter.Since != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}
	query := fmt.Sprintf(`SELECT id, created_at, backend, delta_time, status, error, duration, first_calculation_ns, steps, dof, minimum_duration
		FROM runs
		WHERE %s
		ORDER BY created_at ASC, id ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var runs []model.RunRecord
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
	if filter.Last > 0 && len(runs) > filter.Last {
		runs = runs[len(runs)-filter.Last:]
	}
	return runs, nil
}

// LoadRun returns a run with its full input and time series.
func (s *Store) LoadRun(ctx context.Context, id int64) (model.RunRecord, model.TimeSeries, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, backend, delta_time, status, error, duration, first_calculation_ns, steps, dof, minimum_duration
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RunRecord{}, nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return model.RunRecord{}, nil, err
	}
	if err := s.loadAxes(ctx, &run); err != nil {
		return model.RunRecord{}, nil, err
	}
	series, err := s.loadSeries(ctx, id, run.Steps, run.Input.DegreesOfFreedom)
	if err != nil {
		return model.RunRecord{}, nil, err
	}
	return run, series, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (model.RunRecord, error) {
	var run model.RunRecord
	var createdAt, status string
	var firstCalc int64
	var minDuration sql.NullFloat64
	if err := row.Scan(&run.ID, &createdAt, &run.Backend, &run.DeltaTime, &status, &run.Error,
		&run.Duration, &firstCalc, &run.Steps, &run.Input.DegreesOfFreedom, &minDuration); err != nil {
		return model.RunRecord{}, err
	}
	parsed, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return model.RunRecord{}, err
	}
	run.CreatedAt = parsed
	run.Status, err = model.ParseStatus(status)
	if err != nil {
		return model.RunRecord{}, err
	}
	run.FirstCalculation = time.Duration(firstCalc)
	if minDuration.Valid {
		d := minDuration.Float64
		run.Input.MinimumDuration = &d
	}
	return run, nil
}

func (s *Store) loadAxes(ctx context.Context, run *model.RunRecord) error {
	dof := run.Input.DegreesOfFreedom
	run.Input.Current = model.NewKinematicState(dof)
	run.Input.Target = model.NewKinematicState(dof)
	run.Input.Limits = make([]model.Limits, dof)
	rows, err := s.db.QueryContext(ctx,
		`SELECT axis, p0, v0, a0, pf, vf, af, max_velocity, max_acceleration, max_jerk
		 FROM run_axes WHERE run_id = ? ORDER BY axis`, run.ID)
	if err != nil {
		return err
	}
	defer closeRows(rows)
	for rows.Next() {
		var axis int
		var c, t model.AxisState
		var l model.Limits
		if err := rows.Scan(&axis, &c.Position, &c.Velocity, &c.Acceleration,
			&t.Position, &t.Velocity, &t.Acceleration,
			&l.MaxVelocity, &l.MaxAcceleration, &l.MaxJerk); err != nil {
			return err
		}
		if axis < 0 || axis >= dof {
			return fmt.Errorf("run %d: axis %d out of range", run.ID, axis)
		}
		run.Input.Current[axis] = c
		run.Input.Target[axis] = t
		run.Input.Limits[axis] = l
	}
	return rows.Err()
}

func (s *Store) loadSeries(ctx context.Context, id int64, steps, dof int) (model.TimeSeries, error) {
	series := make(model.TimeSeries, steps)
	for i := range series {
		series[i].Output.State = model.NewKinematicState(dof)
	}
	stepRows, err := s.db.QueryContext(ctx,
		`SELECT step, time, duration, calculation_ns, profile_time, new_calculation
		 FROM run_steps WHERE run_id = ? ORDER BY step`, id)
	if err != nil {
		return nil, err
	}
	defer closeRows(stepRows)
	for stepRows.Next() {
		var step int
		var calc int64
		var newCalc int
		var sample model.Sample
		if err := stepRows.Scan(&step, &sample.Time, &sample.Output.Duration, &calc, &sample.Output.Time, &newCalc); err != nil {
			return nil, err
		}
		if step < 0 || step >= steps {
			return nil, fmt.Errorf("run %d: step %d out of range", id, step)
		}
		sample.Output.State = series[step].Output.State
		sample.Output.Calculation = time.Duration(calc)
		sample.Output.NewCalculation = newCalc != 0
		series[step] = sample
	}
	if err := stepRows.Err(); err != nil {
		return nil, err
	}

	sampleRows, err := s.db.QueryContext(ctx,
		`SELECT step, axis, position, velocity, acceleration
		 FROM run_samples WHERE run_id = ? ORDER BY step, axis`, id)
	if err != nil {
		return nil, err
	}
	defer closeRows(sampleRows)
	for sampleRows.Next() {
		var step, axis int
		var st model.AxisState
		if err := sampleRows.Scan(&step, &axis, &st.Position, &st.Velocity, &st.Acceleration); err != nil {
			return nil, err
		}
		if step < 0 || step >= steps || axis < 0 || axis >= dof {
			return nil, fmt.Errorf("run %d: sample (%d, %d) out of range", id, step, axis)
		}
		series[step].Output.State[axis] = st
	}
	if err := sampleRows.Err(); err != nil {
		return nil, err
	}
	return series, nil
}

func closeRows(rows *sql.Rows) {
	if cerr := rows.Close(); cerr != nil {
		// Best-effort rows close.
		_ = cerr
	}
}

func closeStmt(stmt *sql.Stmt) {
	if cerr := stmt.Close(); cerr != nil {
		// Best-effort statement close.
		_ = cerr
	}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
