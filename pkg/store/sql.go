package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Dialect captures the statements that differ between SQL engines.
type Dialect struct {
	Name        string
	schema      string
	placeholder func(n int) string
}

// SQLite uses `?` parameters and BLOB values.
var SQLite = Dialect{
	Name: "sqlite",
	schema: `
CREATE TABLE IF NOT EXISTS ticket_kv (
	k TEXT PRIMARY KEY,
	v BLOB NOT NULL
);`,
	placeholder: func(int) string { return "?" },
}

// Postgres uses `$n` parameters, BYTEA values and byte-wise key ordering.
var Postgres = Dialect{
	Name: "postgres",
	schema: `
CREATE TABLE IF NOT EXISTS ticket_kv (
	k TEXT COLLATE "C" PRIMARY KEY,
	v BYTEA NOT NULL
);`,
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
}

// SQLStore implements KV using database/sql.
// It supports both Postgres and SQLite via standard drivers.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, d Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d}
}

func (s *SQLStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("failed to init %s kv schema: %w", s.dialect.Name, err)
	}
	return nil
}

func (s *SQLStore) p(n int) string { return s.dialect.placeholder(n) }

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT v FROM ticket_kv WHERE k = ` + s.p(1)
	var v []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return v, nil
}

func (s *SQLStore) Iterate(ctx context.Context, prefix string) ([]Pair, error) {
	var (
		rows *sql.Rows
		err  error
	)
	end := prefixEnd(prefix)
	switch {
	case prefix == "":
		rows, err = s.db.QueryContext(ctx, `SELECT k, v FROM ticket_kv ORDER BY k`)
	case end == "":
		rows, err = s.db.QueryContext(ctx,
			`SELECT k, v FROM ticket_kv WHERE k >= `+s.p(1)+` ORDER BY k`, prefix)
	default:
		rows, err = s.db.QueryContext(ctx,
			`SELECT k, v FROM ticket_kv WHERE k >= `+s.p(1)+` AND k < `+s.p(2)+` ORDER BY k`, prefix, end)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan prefix %q: %w", prefix, err)
	}
	defer func() { _ = rows.Close() }()

	//nolint:prealloc // result count unknown from SQL query
	var pairs []Pair
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.Key, &p.Value); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// Apply writes the batch inside one database transaction.
func (s *SQLStore) Apply(ctx context.Context, ops []Op) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin kv batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	upsert := `INSERT INTO ticket_kv (k, v) VALUES (` + s.p(1) + `, ` + s.p(2) + `)
		ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v`
	del := `DELETE FROM ticket_kv WHERE k = ` + s.p(1)

	for _, op := range ops {
		if op.Delete {
			if _, err = tx.ExecContext(ctx, del, op.Key); err != nil {
				return fmt.Errorf("failed to delete %s: %w", op.Key, err)
			}
			continue
		}
		if _, err = tx.ExecContext(ctx, upsert, op.Key, op.Value); err != nil {
			return fmt.Errorf("failed to write %s: %w", op.Key, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit kv batch: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error { return s.db.Close() }
