package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/ocr-watcher/constants"
)

const runsTable = "ocr_runs"

// timeLayout sorts lexically in time order (fixed width, always UTC).
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// RunRecord is one row of the processing journal.
type RunRecord struct {
	ID          uuid.UUID
	Source      string
	OCROutput   string
	Destination string
	Codes       []string
	Status      constants.RunStatus
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// ListOptions filters List. Zero values mean no filter.
type ListOptions struct {
	Limit  int
	Status constants.RunStatus
}

type RunRepository interface {
	Migrate(ctx context.Context) error
	Record(ctx context.Context, rec RunRecord) error
	List(ctx context.Context, opts ListOptions) ([]RunRecord, error)
	CountByStatus(ctx context.Context) (map[constants.RunStatus]int, error)
}

type runRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewRunRepository(db *DB, logger *slog.Logger) RunRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &runRepo{db: db, logger: logger}
}

var runColumns = []string{
	"id", "source", "ocr_output", "destination", "codes", "status", "error", "started_at", "finished_at",
}

// Column types common to sqlite and postgres.
const createRunsTable = `CREATE TABLE IF NOT EXISTS ocr_runs (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	ocr_output  TEXT NOT NULL DEFAULT '',
	destination TEXT NOT NULL DEFAULT '',
	codes       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL
)`

func (r *runRepo) Migrate(ctx context.Context) error {
	stmts := []string{
		createRunsTable,
		`CREATE INDEX IF NOT EXISTS ocr_runs_started_at ON ocr_runs (started_at)`,
		`CREATE INDEX IF NOT EXISTS ocr_runs_status ON ocr_runs (status)`,
	}
	for _, s := range stmts {
		if err := r.db.Driver.Exec(ctx, s, []any{}, nil); err != nil {
			r.logger.Error("failed to migrate journal", "error", err)
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (r *runRepo) Record(ctx context.Context, rec RunRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	q, args := entsql.Dialect(r.db.Dialect).
		Insert(runsTable).
		Columns(runColumns...).
		Values(
			rec.ID.String(),
			rec.Source,
			rec.OCROutput,
			rec.Destination,
			strings.Join(rec.Codes, ","),
			string(rec.Status),
			rec.Error,
			formatTime(rec.StartedAt),
			formatTime(rec.FinishedAt),
		).Query()
	if err := r.db.Driver.Exec(ctx, q, args, nil); err != nil {
		r.logger.Error("failed to record run", "run_id", rec.ID, "source", rec.Source, "error", err)
		return err
	}
	return nil
}

// List returns runs newest first.
func (r *runRepo) List(ctx context.Context, opts ListOptions) ([]RunRecord, error) {
	b := entsql.Dialect(r.db.Dialect)
	sel := b.Select(runColumns...).
		From(b.Table(runsTable)).
		OrderBy(entsql.Desc("started_at"), entsql.Desc("id"))
	if opts.Status != "" {
		sel.Where(entsql.EQ("status", string(opts.Status)))
	}
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}
	q, args := sel.Query()

	rows := &entsql.Rows{}
	if err := r.db.Driver.Query(ctx, q, args, rows); err != nil {
		r.logger.Error("failed to list runs", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			id, codes, status, started, finished string
			rec                                  RunRecord
		)
		if err := rows.Scan(&id, &rec.Source, &rec.OCROutput, &rec.Destination, &codes, &status, &rec.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var err error
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		if codes != "" {
			rec.Codes = strings.Split(codes, ",")
		}
		rec.Status = constants.RunStatus(status)
		if rec.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("run %s started_at: %w", id, err)
		}
		if rec.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("run %s finished_at: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *runRepo) CountByStatus(ctx context.Context) (map[constants.RunStatus]int, error) {
	b := entsql.Dialect(r.db.Dialect)
	q, args := b.Select("status", entsql.Count("*")).
		From(b.Table(runsTable)).
		GroupBy("status").
		Query()

	rows := &entsql.Rows{}
	if err := r.db.Driver.Query(ctx, q, args, rows); err != nil {
		r.logger.Error("failed to count runs", "error", err)
		return nil, err
	}
	defer rows.Close()

	counts := map[constants.RunStatus]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[constants.RunStatus(status)] = n
	}
	return counts, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}
