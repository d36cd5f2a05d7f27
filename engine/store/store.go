// Package store is the Postgres persistence layer: atoms with pgvector
// embeddings, the session metric tables, and schema migration.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MachinaAI/machina-core/engine/domain"
)

// DB is the subset of pgxpool.Pool the store needs; tests substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Connect opens a pgx pool with pgvector types registered on every
// connection.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return pool, nil
}

// Migrate applies the schema with the configured embedding dimension.
func Migrate(ctx context.Context, db DB, embedDim int) error {
	if _, err := db.Exec(ctx, fmt.Sprintf(schema, embedDim)); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// AtomStore persists atoms keyed by atom_id.
type AtomStore struct {
	db DB
}

// NewAtomStore creates an AtomStore.
func NewAtomStore(db DB) *AtomStore {
	return &AtomStore{db: db}
}

// Upsert writes an atom. On conflict the row content is replaced and the
// implicit version counter bumps. Idempotent per atom_id.
func (s *AtomStore) Upsert(ctx context.Context, a domain.Atom) error {
	citations, err := json.Marshal(a.Citations)
	if err != nil {
		return fmt.Errorf("store: marshal citations: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO atoms (
			atom_id, title, content, summary, keywords, type, vendor,
			equipment_type, fault_codes, citations, manual_quality_score,
			page_count, is_direct_pdf, manual_type, embedding, source_url,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (atom_id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			summary = EXCLUDED.summary,
			keywords = EXCLUDED.keywords,
			type = EXCLUDED.type,
			vendor = EXCLUDED.vendor,
			equipment_type = EXCLUDED.equipment_type,
			fault_codes = EXCLUDED.fault_codes,
			citations = EXCLUDED.citations,
			manual_quality_score = EXCLUDED.manual_quality_score,
			page_count = EXCLUDED.page_count,
			is_direct_pdf = EXCLUDED.is_direct_pdf,
			manual_type = EXCLUDED.manual_type,
			embedding = EXCLUDED.embedding,
			source_url = EXCLUDED.source_url,
			version = atoms.version + 1`,
		a.AtomID, a.Title, a.Content, a.Summary, a.Keywords, string(a.Type),
		a.Vendor, a.EquipmentType, a.FaultCodes, citations,
		a.ManualQualityScore, a.PageCount, a.IsDirectPDF, string(a.ManualType),
		pgvector.NewVector(a.Embedding), a.SourceURL, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert atom %s: %w", a.AtomID, err)
	}
	return nil
}

// Exists reports whether an atom with the id is already stored.
func (s *AtomStore) Exists(ctx context.Context, atomID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM atoms WHERE atom_id = $1)`, atomID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: exists %s: %w", atomID, err)
	}
	return exists, nil
}

// Lookup returns the stored content hash and source URL for an atom id,
// or empty strings when the atom does not exist. Used to detect id
// collisions with different content across sources.
func (s *AtomStore) Lookup(ctx context.Context, atomID string) (contentHash, sourceURL string, err error) {
	var content string
	err = s.db.QueryRow(ctx,
		`SELECT content, source_url FROM atoms WHERE atom_id = $1`, atomID).
		Scan(&content, &sourceURL)
	if err == pgx.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("store: lookup %s: %w", atomID, err)
	}
	return domain.ContentHash(content), sourceURL, nil
}
