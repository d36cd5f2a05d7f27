package fingerprint

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MachinaAI/machina-core/engine/domain"
)

// fakeDB simulates the fingerprints table with conditional-insert
// semantics matching Postgres ON CONFLICT DO NOTHING.
type fakeDB struct {
	mu           sync.Mutex
	rows         map[string]*domain.FingerprintRecord
	missingTable bool
}

func newFakeDB() *fakeDB {
	return &fakeDB{rows: make(map[string]*domain.FingerprintRecord)}
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.missingTable {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "42P01"}
	}

	switch {
	case strings.Contains(sql, "INSERT INTO fingerprints"):
		hash := args[0].(string)
		if _, exists := db.rows[hash]; exists {
			return pgconn.NewCommandTag("INSERT 0 0"), nil
		}
		now := args[4].(time.Time)
		db.rows[hash] = &domain.FingerprintRecord{
			URLHash:      hash,
			URL:          args[1].(string),
			SourceType:   domain.SourceType(args[2].(string)),
			Status:       domain.FingerprintStatus(args[3].(string)),
			DiscoveredAt: now,
			QueuedAt:     now,
		}
		return pgconn.NewCommandTag("INSERT 0 1"), nil

	case strings.Contains(sql, "ingestion_started_at"):
		rec, ok := db.rows[args[0].(string)]
		if !ok {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		rec.Status = domain.FingerprintStatus(args[1].(string))
		if rec.StartedAt == nil {
			ts := args[2].(time.Time)
			rec.StartedAt = &ts
		}
		return pgconn.NewCommandTag("UPDATE 1"), nil

	case strings.Contains(sql, "ingestion_completed_at"):
		rec, ok := db.rows[args[0].(string)]
		if !ok {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		rec.Status = domain.FingerprintStatus(args[1].(string))
		if rec.CompletedAt == nil {
			ts := args[2].(time.Time)
			rec.CompletedAt = &ts
		}
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("fakeDB: unexpected sql: %s", sql)
}

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.missingTable {
		return fakeRow{scan: func(...any) error { return &pgconn.PgError{Code: "42P01"} }}
	}
	rec, ok := db.rows[args[0].(string)]
	if !ok {
		return fakeRow{scan: func(...any) error { return pgx.ErrNoRows }}
	}
	if strings.Contains(sql, "SELECT status FROM") {
		status := string(rec.Status)
		return fakeRow{scan: func(dest ...any) error {
			*dest[0].(*string) = status
			return nil
		}}
	}
	snapshot := *rec
	return fakeRow{scan: func(dest ...any) error {
		*dest[0].(*string) = snapshot.URLHash
		*dest[1].(*string) = snapshot.URL
		*dest[2].(*string) = string(snapshot.SourceType)
		*dest[3].(*string) = string(snapshot.Status)
		*dest[4].(*time.Time) = snapshot.DiscoveredAt
		*dest[5].(*time.Time) = snapshot.QueuedAt
		*dest[6].(**time.Time) = snapshot.StartedAt
		*dest[7].(**time.Time) = snapshot.CompletedAt
		return nil
	}}
}

const url = "https://vendor.example/manual.pdf"

func TestTryClaimFirstWins(t *testing.T) {
	ix := New(newFakeDB(), slog.Default())
	ctx := context.Background()

	claim, err := ix.TryClaim(ctx, url, domain.SourcePDF)
	if err != nil {
		t.Fatal(err)
	}
	if !claim.Claimed || claim.Degraded {
		t.Fatalf("first claim: %+v", claim)
	}

	again, err := ix.TryClaim(ctx, url, domain.SourcePDF)
	if err != nil {
		t.Fatal(err)
	}
	if again.Claimed {
		t.Fatal("second claim should lose")
	}
	if again.ExistingStatus != domain.FingerprintQueued {
		t.Fatalf("existing status: %s", again.ExistingStatus)
	}
}

func TestTryClaimExactlyOnceUnderConcurrency(t *testing.T) {
	ix := New(newFakeDB(), slog.Default())
	ctx := context.Background()

	const callers = 20
	var wg sync.WaitGroup
	wins := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claim, err := ix.TryClaim(ctx, url, domain.SourcePDF)
			if err == nil && claim.Claimed {
				wins <- true
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("claims won: %d", won)
	}
}

func TestTryClaimEquivalentURLsShareFingerprint(t *testing.T) {
	ix := New(newFakeDB(), slog.Default())
	ctx := context.Background()

	first, _ := ix.TryClaim(ctx, "https://Vendor.example/manual.pdf", domain.SourcePDF)
	second, _ := ix.TryClaim(ctx, "https://vendor.example/manual.pdf#page=2", domain.SourcePDF)
	if !first.Claimed || second.Claimed {
		t.Fatal("canonically equal URLs should dedup")
	}
}

func TestMissingTableDegradesToClaim(t *testing.T) {
	db := newFakeDB()
	db.missingTable = true
	ix := New(db, slog.Default())

	claim, err := ix.TryClaim(context.Background(), url, domain.SourcePDF)
	if err != nil {
		t.Fatal(err)
	}
	if !claim.Claimed || !claim.Degraded {
		t.Fatalf("degraded claim: %+v", claim)
	}
	if err := ix.MarkRunning(context.Background(), domain.URLHash(url)); err != nil {
		t.Fatal("mark running should swallow missing table")
	}
	if err := ix.MarkCompleted(context.Background(), domain.URLHash(url), domain.StatusSuccess); err != nil {
		t.Fatal("mark completed should swallow missing table")
	}
}

func TestLifecycleTimestampsMonotonic(t *testing.T) {
	db := newFakeDB()
	ix := New(db, slog.Default())
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	ix.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	if _, err := ix.TryClaim(ctx, url, domain.SourcePDF); err != nil {
		t.Fatal(err)
	}
	hash := domain.URLHash(url)
	if err := ix.MarkRunning(ctx, hash); err != nil {
		t.Fatal(err)
	}
	if err := ix.MarkCompleted(ctx, hash, domain.StatusSuccess); err != nil {
		t.Fatal(err)
	}

	rec, err := ix.Get(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.FingerprintCompleted {
		t.Fatalf("status: %s", rec.Status)
	}
	if rec.StartedAt == nil || rec.CompletedAt == nil {
		t.Fatal("timestamps missing")
	}
	if rec.CompletedAt.Before(*rec.StartedAt) {
		t.Fatal("completed_at before started_at")
	}
}

func TestMarkRunningIdempotent(t *testing.T) {
	db := newFakeDB()
	ix := New(db, slog.Default())
	ctx := context.Background()

	if _, err := ix.TryClaim(ctx, url, domain.SourcePDF); err != nil {
		t.Fatal(err)
	}
	hash := domain.URLHash(url)
	if err := ix.MarkRunning(ctx, hash); err != nil {
		t.Fatal(err)
	}
	rec1, _ := ix.Get(ctx, hash)
	if err := ix.MarkRunning(ctx, hash); err != nil {
		t.Fatal(err)
	}
	rec2, _ := ix.Get(ctx, hash)
	if !rec1.StartedAt.Equal(*rec2.StartedAt) {
		t.Fatal("re-marking running should keep the first start stamp")
	}
}

func TestFailedOutcomeRecorded(t *testing.T) {
	db := newFakeDB()
	ix := New(db, slog.Default())
	ctx := context.Background()

	ix.TryClaim(ctx, url, domain.SourcePDF)
	hash := domain.URLHash(url)
	ix.MarkRunning(ctx, hash)
	ix.MarkCompleted(ctx, hash, domain.StatusFailed)

	rec, _ := ix.Get(ctx, hash)
	if rec.Status != domain.FingerprintFailed {
		t.Fatalf("status: %s", rec.Status)
	}
}
