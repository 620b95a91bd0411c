// Package ledger provides durable backends for the gene ledger and refusal
// side-log: a database/sql store usable with SQLite and Postgres, and an
// append-only JSONL file store.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
)

// SQLStore persists records with their full JSON payload alongside the
// columns needed for ordering and uniqueness. Placeholders use the $n form,
// which both lib/pq and modernc.org/sqlite accept.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS gk_genes (
	sequence BIGINT PRIMARY KEY,
	gene_id TEXT NOT NULL UNIQUE,
	entry_hash TEXT NOT NULL UNIQUE,
	parent_hash TEXT NOT NULL,
	payload TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS gk_refusals (
	position BIGINT PRIMARY KEY,
	node_id TEXT NOT NULL UNIQUE,
	reason TEXT NOT NULL,
	hash TEXT NOT NULL UNIQUE,
	prev_hash TEXT NOT NULL,
	payload TEXT NOT NULL
);
`

func (s *SQLStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ledger store: init schema: %w", err)
	}
	return nil
}

func (s *SQLStore) AppendEntry(ctx context.Context, entry contracts.LedgerEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("ledger store: marshal entry: %w", err)
	}
	query := `
		INSERT INTO gk_genes (sequence, gene_id, entry_hash, parent_hash, payload)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = s.db.ExecContext(ctx, query,
		int64(entry.Gene.Sequence), entry.Gene.ID, entry.Hash, entry.Gene.ParentHash, string(payload),
	)
	if err != nil {
		return fmt.Errorf("ledger store: insert gene %d: %w", entry.Gene.Sequence, err)
	}
	return nil
}

func (s *SQLStore) AppendRefusal(ctx context.Context, rec contracts.RefusalRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger store: marshal refusal: %w", err)
	}
	query := `
		INSERT INTO gk_refusals (position, node_id, reason, hash, prev_hash, payload)
		VALUES ((SELECT COALESCE(MAX(position), 0) + 1 FROM gk_refusals), $1, $2, $3, $4, $5)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.NodeID, string(rec.ReasonCode), rec.Hash, rec.PrevHash, string(payload),
	)
	if err != nil {
		return fmt.Errorf("ledger store: insert refusal %s: %w", rec.NodeID, err)
	}
	return nil
}

func (s *SQLStore) LoadEntries(ctx context.Context) ([]contracts.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM gk_genes ORDER BY sequence ASC`)
	if err != nil {
		return nil, fmt.Errorf("ledger store: query genes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []contracts.LedgerEntry
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e contracts.LedgerEntry
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("ledger store: decode gene: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLStore) LoadRefusals(ctx context.Context) ([]contracts.RefusalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM gk_refusals ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("ledger store: query refusals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []contracts.RefusalRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r contracts.RefusalRecord
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("ledger store: decode refusal: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
