// Package fingerprint is the content-addressed dedup index over source
// URLs. Deduplication is best-effort: a missing table degrades to
// claim-everything rather than blocking ingestion.
package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MachinaAI/machina-core/engine/domain"
)

// DB is the subset of pgxpool.Pool the index needs. Narrow on purpose so
// tests can substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Claim is the outcome of a TryClaim call.
type Claim struct {
	Claimed        bool
	ExistingStatus domain.FingerprintStatus
	// Degraded is set when the index was unavailable and the claim was
	// granted without dedup.
	Degraded bool
}

// Index provides atomic claim and status transitions over the
// fingerprints table.
type Index struct {
	db  DB
	log *slog.Logger
	now func() time.Time
}

// New creates an Index.
func New(db DB, log *slog.Logger) *Index {
	if log == nil {
		log = slog.Default()
	}
	return &Index{db: db, log: log, now: time.Now}
}

// TryClaim inserts a queued record for the URL if none exists. The first
// caller wins; later callers get the current status. An absent table
// grants the claim with Degraded set — dedup must never block ingestion.
func (ix *Index) TryClaim(ctx context.Context, url string, st domain.SourceType) (Claim, error) {
	hash := domain.URLHash(url)
	now := ix.now().UTC()
	tag, err := ix.db.Exec(ctx, `
		INSERT INTO fingerprints (url_hash, url, source_type, status, discovered_at, queued_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (url_hash) DO NOTHING`,
		hash, domain.CanonicalURL(url), string(st), string(domain.FingerprintQueued), now)
	if err != nil {
		if tableMissing(err) {
			ix.log.Warn("fingerprint: table missing, dedup disabled", "url", url)
			return Claim{Claimed: true, Degraded: true}, nil
		}
		return Claim{}, fmt.Errorf("fingerprint: claim %s: %w", url, err)
	}
	if tag.RowsAffected() == 1 {
		return Claim{Claimed: true}, nil
	}

	var status string
	err = ix.db.QueryRow(ctx, `SELECT status FROM fingerprints WHERE url_hash = $1`, hash).Scan(&status)
	if err != nil {
		return Claim{}, fmt.Errorf("fingerprint: read status %s: %w", url, err)
	}
	return Claim{Claimed: false, ExistingStatus: domain.FingerprintStatus(status)}, nil
}

// MarkRunning transitions the record to running and stamps the start time.
// Idempotent: re-marking an already running record keeps the first stamp.
func (ix *Index) MarkRunning(ctx context.Context, urlHash string) error {
	_, err := ix.db.Exec(ctx, `
		UPDATE fingerprints
		SET status = $2,
		    ingestion_started_at = COALESCE(ingestion_started_at, $3)
		WHERE url_hash = $1`,
		urlHash, string(domain.FingerprintRunning), ix.now().UTC())
	if err != nil {
		if tableMissing(err) {
			return nil
		}
		return fmt.Errorf("fingerprint: mark running: %w", err)
	}
	return nil
}

// MarkCompleted transitions the record to its terminal outcome. A partial
// session still counts as completed for dedup purposes.
func (ix *Index) MarkCompleted(ctx context.Context, urlHash string, status domain.SessionStatus) error {
	final := domain.FingerprintCompleted
	if status == domain.StatusFailed {
		final = domain.FingerprintFailed
	}
	_, err := ix.db.Exec(ctx, `
		UPDATE fingerprints
		SET status = $2,
		    ingestion_completed_at = COALESCE(ingestion_completed_at, $3)
		WHERE url_hash = $1`,
		urlHash, string(final), ix.now().UTC())
	if err != nil {
		if tableMissing(err) {
			return nil
		}
		return fmt.Errorf("fingerprint: mark completed: %w", err)
	}
	return nil
}

// Get loads a record by hash. Used by tests.
func (ix *Index) Get(ctx context.Context, urlHash string) (domain.FingerprintRecord, error) {
	var rec domain.FingerprintRecord
	var status, srcType string
	err := ix.db.QueryRow(ctx, `
		SELECT url_hash, url, source_type, status, discovered_at, queued_at,
		       ingestion_started_at, ingestion_completed_at
		FROM fingerprints WHERE url_hash = $1`, urlHash).
		Scan(&rec.URLHash, &rec.URL, &srcType, &status, &rec.DiscoveredAt,
			&rec.QueuedAt, &rec.StartedAt, &rec.CompletedAt)
	if err != nil {
		return domain.FingerprintRecord{}, fmt.Errorf("fingerprint: get: %w", err)
	}
	rec.SourceType = domain.SourceType(srcType)
	rec.Status = domain.FingerprintStatus(status)
	return rec, nil
}

// tableMissing reports Postgres undefined_table (42P01).
func tableMissing(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
