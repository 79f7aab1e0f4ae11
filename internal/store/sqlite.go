package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/cep-loader/internal/db"
	"github.com/sells-group/cep-loader/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db        *sql.DB
	upsertSQL string
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// Writes go through a single connection so concurrent upserts queue in the
// pool instead of failing with SQLITE_BUSY.
func NewSQLite(dsn string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)
	stmt, err := upsertSQL(db.SQLite, o.policy)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn, upsertSQL: stmt}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS records (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	age         INTEGER NOT NULL,
	postal_code TEXT NOT NULL,
	street      TEXT,
	state       TEXT,
	region      TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_records_state ON records(state);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertRecord(ctx context.Context, rec model.Record) error {
	_, err := s.db.ExecContext(ctx, s.upsertSQL, upsertArgs(rec, time.Now().UTC())...)
	return eris.Wrapf(err, "sqlite: upsert record %q", rec.Name)
}

const sqliteSelectRecord = `SELECT id, name, age, postal_code, street, state, region, created_at, updated_at FROM records`

func (s *SQLiteStore) GetRecord(ctx context.Context, name string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelectRecord+` WHERE name = ?`, name)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get record %q", name)
	}
	return rec, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.Record, error) {
	query := sqliteSelectRecord + ` WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, filter.State)
	}
	query += ` ORDER BY name LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close() //nolint:errcheck

	var records []model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.Record, error) {
	var r model.Record
	var street, state, region sql.NullString

	if err := row.Scan(&r.ID, &r.Name, &r.Age, &r.PostalCode, &street, &state, &region, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Street = nullableString(street)
	r.State = nullableString(state)
	r.Region = nullableString(region)
	return &r, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
