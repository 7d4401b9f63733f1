package ledger

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const costRecordsSchema = `
CREATE TABLE IF NOT EXISTS cost_records (
	id            TEXT PRIMARY KEY,
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	schema_name   TEXT NOT NULL DEFAULT '',
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost          TEXT NOT NULL,
	price_known   INTEGER NOT NULL,
	succeeded     INTEGER NOT NULL,
	created_at    TEXT NOT NULL
);
`

// SQLiteStore persists ledger entries in a SQLite database. Cost is stored
// as its decimal string form to keep money math exact across round trips.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed initializes) a SQLite ledger database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	if _, err := db.Exec(costRecordsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize ledger database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts all records. Existing rows keep their original values, so
// flushing an accumulated ledger repeatedly is safe.
func (s *SQLiteStore) Save(records []CostRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		query, args, err := sq.Insert("cost_records").
			Columns("id", "provider", "model", "schema_name", "input_tokens",
				"output_tokens", "cost", "price_known", "succeeded", "created_at").
			Values(r.ID, r.Provider, r.Model, r.Schema, r.InputTokens,
				r.OutputTokens, r.Cost.String(), r.PriceKnown, r.Succeeded,
				r.CreatedAt.UTC().Format(time.RFC3339Nano)).
			Suffix("ON CONFLICT(id) DO NOTHING").
			ToSql()
		if err != nil {
			return fmt.Errorf("build ledger insert: %w", err)
		}
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("insert ledger record %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// Load reads all records in insertion order.
func (s *SQLiteStore) Load() ([]CostRecord, error) {
	query, args, err := sq.Select("id", "provider", "model", "schema_name",
		"input_tokens", "output_tokens", "cost", "price_known", "succeeded", "created_at").
		From("cost_records").
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ledger select: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var records []CostRecord
	for rows.Next() {
		var r CostRecord
		var cost, createdAt string
		if err := rows.Scan(&r.ID, &r.Provider, &r.Model, &r.Schema,
			&r.InputTokens, &r.OutputTokens, &cost, &r.PriceKnown,
			&r.Succeeded, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ledger record: %w", err)
		}
		r.Cost, err = decimal.NewFromString(cost)
		if err != nil {
			return nil, fmt.Errorf("decode ledger cost %q: %w", cost, err)
		}
		r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("decode ledger timestamp %q: %w", createdAt, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
