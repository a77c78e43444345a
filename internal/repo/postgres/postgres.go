package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"uplite/internal/domain"
	"uplite/internal/repo"
)

// Store implements the target and history ports on postgres for installs
// that already run one.
type Store struct {
	pool      *pgxpool.Pool
	retention time.Duration
	log       *zap.Logger
}

func New(ctx context.Context, dsn string, retention time.Duration, log *zap.Logger) (*Store, error) {
	if retention <= 0 {
		retention = repo.DefaultRetention
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: pool, retention: retention, log: log}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS targets (
	id                 BIGSERIAL PRIMARY KEY,
	name               TEXT NOT NULL,
	kind               TEXT NOT NULL,
	address            TEXT NOT NULL,
	port               INT NOT NULL DEFAULT 0,
	timeout            INT NOT NULL DEFAULT 10,
	check_interval     INT NOT NULL DEFAULT 60,
	is_active          BOOLEAN NOT NULL DEFAULT TRUE,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL,
	last_check         TIMESTAMPTZ,
	last_status        TEXT,
	last_response_time DOUBLE PRECISION,
	last_error         TEXT
);

CREATE TABLE IF NOT EXISTS history (
	id            BIGSERIAL PRIMARY KEY,
	target_id     BIGINT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
	checked_at    TIMESTAMPTZ NOT NULL,
	status        TEXT NOT NULL,
	response_time DOUBLE PRECISION,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_history_target_checked ON history (target_id, checked_at DESC);
`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// ---- TargetStore ----

func (s *Store) Create(ctx context.Context, t *domain.Target) error {
	if t.Timeout <= 0 {
		t.Timeout = domain.DefaultTimeoutSeconds
	}
	if t.Interval <= 0 {
		t.Interval = domain.DefaultIntervalSeconds
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	err := s.pool.QueryRow(ctx,
		`INSERT INTO targets (name, kind, address, port, timeout, check_interval, is_active, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 RETURNING id`,
		t.Name, string(t.Kind), t.Address, t.Port, t.Timeout, t.Interval, t.Active, t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, t *domain.Target) error {
	t.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets
		    SET name = $1, kind = $2, address = $3, port = $4, timeout = $5, check_interval = $6, is_active = $7, updated_at = $8
		  WHERE id = $9`,
		t.Name, string(t.Kind), t.Address, t.Port, t.Timeout, t.Interval, t.Active, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM targets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

const targetColumns = `id, name, kind, address, port, timeout, check_interval, is_active,
	created_at, updated_at, last_check, last_status, last_response_time, last_error`

func (s *Store) Get(ctx context.Context, id int64) (*domain.Target, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = $1`, id)
	t, err := scanTarget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

func (s *Store) List(ctx context.Context) ([]domain.Target, error) {
	return s.listWhere(ctx, ``)
}

func (s *Store) ListActive(ctx context.Context) ([]domain.Target, error) {
	return s.listWhere(ctx, ` WHERE is_active`)
}

func (s *Store) listWhere(ctx context.Context, where string) ([]domain.Target, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+targetColumns+` FROM targets`+where+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()
	var out []domain.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateStatus(ctx context.Context, id int64, r domain.CheckResult) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets
		    SET last_check = $1, last_status = $2, last_response_time = $3, last_error = $4, updated_at = $5
		  WHERE id = $6`,
		r.CheckedAt, string(r.Status), r.ResponseTime, nullIfEmpty(r.Err), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update target status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- HistoryStore ----

func (s *Store) Append(ctx context.Context, targetID int64, r domain.CheckResult) (domain.HistoryRecord, error) {
	checked := r.CheckedAt
	if checked.IsZero() {
		checked = time.Now().UTC()
	}
	rec := domain.HistoryRecord{
		TargetID:     targetID,
		CheckedAt:    checked.UTC(),
		Status:       r.Status,
		ResponseTime: r.ResponseTime,
		Error:        r.Err,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return rec, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO history (target_id, checked_at, status, response_time, error_message)
		 VALUES ($1,$2,$3,$4,$5)
		 RETURNING id`,
		targetID, rec.CheckedAt, string(rec.Status), rec.ResponseTime, nullIfEmpty(rec.Error),
	).Scan(&rec.ID)
	if err != nil {
		return rec, fmt.Errorf("insert history: %w", err)
	}

	cutoff := time.Now().UTC().Add(-s.retention)
	if _, err := tx.Exec(ctx,
		`DELETE FROM history WHERE target_id = $1 AND checked_at < $2 AND id <> $3`,
		targetID, cutoff, rec.ID); err != nil {
		return rec, fmt.Errorf("evict history: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return rec, fmt.Errorf("commit append: %w", err)
	}
	return rec, nil
}

const historyColumns = `id, target_id, checked_at, status, response_time, error_message`

func (s *Store) RecentWindow(ctx context.Context, targetID int64, limit int) ([]domain.HistoryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+historyColumns+` FROM history
		  WHERE target_id = $1
		  ORDER BY checked_at DESC, id DESC
		  LIMIT $2`, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent window: %w", err)
	}
	return collectRecords(rows)
}

func (s *Store) Median(ctx context.Context, targetID int64, periods int) (*float64, error) {
	if periods <= 0 {
		periods = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT response_time FROM history
		  WHERE target_id = $1 AND status = $2 AND response_time IS NOT NULL
		  ORDER BY checked_at DESC, id DESC
		  LIMIT $3`, targetID, string(domain.StatusUp), periods)
	if err != nil {
		return nil, fmt.Errorf("median query: %w", err)
	}
	defer rows.Close()
	var lats []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan latency: %w", err)
		}
		lats = append(lats, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(lats) == 0 {
		return nil, nil
	}
	m := repo.MedianOf(lats)
	return &m, nil
}

func (s *Store) Range(ctx context.Context, targetID int64, since time.Time) ([]domain.HistoryRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+historyColumns+` FROM history
		  WHERE target_id = $1 AND checked_at >= $2
		  ORDER BY checked_at ASC, id ASC`, targetID, since)
	if err != nil {
		return nil, fmt.Errorf("range query: %w", err)
	}
	return collectRecords(rows)
}

func (s *Store) StatusCounts(ctx context.Context, targetID int64, since time.Time) (domain.StatusCounts, error) {
	var c domain.StatusCounts
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM history
		  WHERE target_id = $1 AND checked_at >= $2
		  GROUP BY status`, targetID, since)
	if err != nil {
		return c, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return c, fmt.Errorf("scan counts: %w", err)
		}
		switch domain.Status(status) {
		case domain.StatusUp:
			c.Up = n
		case domain.StatusDown:
			c.Down = n
		default:
			c.Unknown += n
		}
	}
	return c, rows.Err()
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM history WHERE checked_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ---- scanning helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(row rowScanner) (*domain.Target, error) {
	var (
		t          domain.Target
		kind       string
		lastCheck  *time.Time
		lastStatus *string
		lastRT     *float64
		lastErr    *string
	)
	err := row.Scan(&t.ID, &t.Name, &kind, &t.Address, &t.Port, &t.Timeout, &t.Interval, &t.Active,
		&t.CreatedAt, &t.UpdatedAt, &lastCheck, &lastStatus, &lastRT, &lastErr)
	if err != nil {
		return nil, err
	}
	t.Kind = domain.Kind(kind)
	t.LastCheck = lastCheck
	if lastStatus != nil {
		t.LastStatus = domain.Status(*lastStatus)
	}
	t.LastResponseTime = lastRT
	if lastErr != nil {
		t.LastError = *lastErr
	}
	return &t, nil
}

func collectRecords(rows pgx.Rows) ([]domain.HistoryRecord, error) {
	defer rows.Close()
	var out []domain.HistoryRecord
	for rows.Next() {
		var (
			r      domain.HistoryRecord
			status string
			errMsg *string
		)
		if err := rows.Scan(&r.ID, &r.TargetID, &r.CheckedAt, &status, &r.ResponseTime, &errMsg); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		r.Status = domain.Status(status)
		if errMsg != nil {
			r.Error = *errMsg
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var (
	_ repo.TargetStore  = (*Store)(nil)
	_ repo.HistoryStore = (*Store)(nil)
)
