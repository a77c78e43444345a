package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"uplite/internal/domain"
	"uplite/internal/repo"
)

// Store implements the target and history ports on a local SQLite file,
// the default backend for a self-hosted install.
type Store struct {
	db        *sql.DB
	retention time.Duration
}

func New(ctx context.Context, path string, retention time.Duration) (*Store, error) {
	if retention <= 0 {
		retention = repo.DefaultRetention
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	s := &Store{db: db, retention: retention}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS targets (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	name               TEXT NOT NULL,
	kind               TEXT NOT NULL,
	address            TEXT NOT NULL,
	port               INTEGER NOT NULL DEFAULT 0,
	timeout            INTEGER NOT NULL DEFAULT 10,
	check_interval     INTEGER NOT NULL DEFAULT 60,
	is_active          INTEGER NOT NULL DEFAULT 1,
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL,
	last_check         TEXT,
	last_status        TEXT,
	last_response_time REAL,
	last_error         TEXT
);

CREATE TABLE IF NOT EXISTS history (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	target_id     INTEGER NOT NULL,
	checked_at    TEXT NOT NULL,
	status        TEXT NOT NULL,
	response_time REAL,
	error_message TEXT,
	FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_history_target_checked ON history (target_id, checked_at DESC);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// timeLayout keeps every fractional digit so TEXT timestamps compare
// lexicographically in SQL. RFC3339Nano trims trailing zeros, which
// would sort "...00.5Z" before "...00Z".
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
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

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO targets (name, kind, address, port, timeout, check_interval, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, string(t.Kind), t.Address, t.Port, t.Timeout, t.Interval, boolToInt(t.Active),
		fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("target id: %w", err)
	}
	t.ID = id
	return nil
}

func (s *Store) Update(ctx context.Context, t *domain.Target) error {
	t.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE targets
		    SET name = ?, kind = ?, address = ?, port = ?, timeout = ?, check_interval = ?, is_active = ?, updated_at = ?
		  WHERE id = ?`,
		t.Name, string(t.Kind), t.Address, t.Port, t.Timeout, t.Interval, boolToInt(t.Active),
		fmtTime(t.UpdatedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update target: %w", err)
	}
	return requireRow(res)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE target_id = ?`, id); err != nil {
		return fmt.Errorf("delete target history: %w", err)
	}
	return requireRow(res)
}

const targetColumns = `id, name, kind, address, port, timeout, check_interval, is_active,
	created_at, updated_at, last_check, last_status, last_response_time, last_error`

func (s *Store) Get(ctx context.Context, id int64) (*domain.Target, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = ?`, id)
	t, err := scanTarget(row)
	if err == sql.ErrNoRows {
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
	return s.listWhere(ctx, ` WHERE is_active = 1`)
}

func (s *Store) listWhere(ctx context.Context, where string) ([]domain.Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+targetColumns+` FROM targets`+where+` ORDER BY id`)
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
	res, err := s.db.ExecContext(ctx,
		`UPDATE targets
		    SET last_check = ?, last_status = ?, last_response_time = ?, last_error = ?, updated_at = ?
		  WHERE id = ?`,
		fmtTime(r.CheckedAt), string(r.Status), r.ResponseTime, nullIfEmpty(r.Err),
		fmtTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("update target status: %w", err)
	}
	return requireRow(res)
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rec, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO history (target_id, checked_at, status, response_time, error_message)
		 VALUES (?, ?, ?, ?, ?)`,
		targetID, fmtTime(rec.CheckedAt), string(rec.Status), rec.ResponseTime, nullIfEmpty(rec.Error))
	if err != nil {
		return rec, fmt.Errorf("insert history: %w", err)
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return rec, fmt.Errorf("history id: %w", err)
	}

	// Evict in the same transaction; the id guard keeps the new row even
	// when its timestamp is behind the cutoff.
	cutoff := time.Now().UTC().Add(-s.retention)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM history WHERE target_id = ? AND checked_at < ? AND id <> ?`,
		targetID, fmtTime(cutoff), rec.ID); err != nil {
		return rec, fmt.Errorf("evict history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return rec, fmt.Errorf("commit append: %w", err)
	}
	return rec, nil
}

const historyColumns = `id, target_id, checked_at, status, response_time, error_message`

func (s *Store) RecentWindow(ctx context.Context, targetID int64, limit int) ([]domain.HistoryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM history
		  WHERE target_id = ?
		  ORDER BY checked_at DESC, id DESC
		  LIMIT ?`, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent window: %w", err)
	}
	return collectRecords(rows)
}

func (s *Store) Median(ctx context.Context, targetID int64, periods int) (*float64, error) {
	if periods <= 0 {
		periods = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT response_time FROM history
		  WHERE target_id = ? AND status = ? AND response_time IS NOT NULL
		  ORDER BY checked_at DESC, id DESC
		  LIMIT ?`, targetID, string(domain.StatusUp), periods)
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM history
		  WHERE target_id = ? AND checked_at >= ?
		  ORDER BY checked_at ASC, id ASC`, targetID, fmtTime(since))
	if err != nil {
		return nil, fmt.Errorf("range query: %w", err)
	}
	return collectRecords(rows)
}

func (s *Store) StatusCounts(ctx context.Context, targetID int64, since time.Time) (domain.StatusCounts, error) {
	var c domain.StatusCounts
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM history
		  WHERE target_id = ? AND checked_at >= ?
		  GROUP BY status`, targetID, fmtTime(since))
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE checked_at < ?`, fmtTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete old history: %w", err)
	}
	return res.RowsAffected()
}

// ---- scanning helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(row rowScanner) (*domain.Target, error) {
	var (
		t                            domain.Target
		kind, createdAt, updatedAt   string
		active                       int
		lastCheck, lastStatus, lastE sql.NullString
		lastRT                       sql.NullFloat64
	)
	err := row.Scan(&t.ID, &t.Name, &kind, &t.Address, &t.Port, &t.Timeout, &t.Interval, &active,
		&createdAt, &updatedAt, &lastCheck, &lastStatus, &lastRT, &lastE)
	if err != nil {
		return nil, err
	}
	t.Kind = domain.Kind(kind)
	t.Active = active != 0
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	if lastCheck.Valid {
		lc := parseTime(lastCheck.String)
		t.LastCheck = &lc
	}
	if lastStatus.Valid {
		t.LastStatus = domain.Status(lastStatus.String)
	}
	if lastRT.Valid {
		v := lastRT.Float64
		t.LastResponseTime = &v
	}
	if lastE.Valid {
		t.LastError = lastE.String
	}
	return &t, nil
}

func collectRecords(rows *sql.Rows) ([]domain.HistoryRecord, error) {
	defer rows.Close()
	var out []domain.HistoryRecord
	for rows.Next() {
		var (
			r         domain.HistoryRecord
			checkedAt string
			status    string
			rt        sql.NullFloat64
			errMsg    sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.TargetID, &checkedAt, &status, &rt, &errMsg); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		r.CheckedAt = parseTime(checkedAt)
		r.Status = domain.Status(status)
		if rt.Valid {
			v := rt.Float64
			r.ResponseTime = &v
		}
		if errMsg.Valid {
			r.Error = errMsg.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var (
	_ repo.TargetStore  = (*Store)(nil)
	_ repo.HistoryStore = (*Store)(nil)
)
