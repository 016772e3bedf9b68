// Package pg persists finished run snapshots for reporting. The engine itself
// stays memory-only; a run is written once, after its input stream is
// exhausted.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"payflux.org/internal/engine"
)

// ErrNotFound is returned for unknown run identifiers.
var ErrNotFound = errors.New("run not found")

type Store struct {
	db *sql.DB
}

// Open connects to Postgres with pooled defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, mainly for tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// SaveRun stores the final snapshot of one run atomically. Amounts travel as
// strings into numeric columns so no float ever touches the values.
func (s *Store) SaveRun(ctx context.Context, runID string, accounts []engine.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`insert into runs(id, created_at, account_count) values($1, now(), $2)`,
		runID, len(accounts),
	); err != nil {
		return err
	}
	for _, acc := range accounts {
		if _, err := tx.ExecContext(ctx, `
			insert into run_accounts(run_id, client, available, held, total, locked)
			values ($1,$2,$3,$4,$5,$6)
		`, runID, int64(acc.Client), acc.Available.String(), acc.Held.String(),
			acc.Total.String(), acc.Locked,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetRun loads the snapshot persisted under runID, ordered by client id.
func (s *Store) GetRun(ctx context.Context, runID string) ([]engine.Account, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`select account_count from runs where id=$1`, runID,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select client, available::text, held::text, total::text, locked
		from run_accounts where run_id=$1 order by client
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]engine.Account, 0, count)
	for rows.Next() {
		var (
			client                 int64
			available, held, total string
			locked                 bool
		)
		if err := rows.Scan(&client, &available, &held, &total, &locked); err != nil {
			return nil, err
		}
		acc := engine.Account{Client: uint16(client), Locked: locked}
		if acc.Available, err = decimal.NewFromString(available); err != nil {
			return nil, err
		}
		if acc.Held, err = decimal.NewFromString(held); err != nil {
			return nil, err
		}
		if acc.Total, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}
