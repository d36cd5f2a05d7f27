package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MachinaAI/machina-core/engine/domain"
)

// fakeDB captures statements for assertion.
type fakeDB struct {
	execSQL  []string
	execArgs [][]any
	batches  []*pgx.Batch
	execErr  error
	batchErr error
	row      pgx.Row
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execSQL = append(db.execSQL, sql)
	db.execArgs = append(db.execArgs, args)
	if db.execErr != nil {
		return pgconn.CommandTag{}, db.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (db *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row { return db.row }

func (db *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	db.batches = append(db.batches, b)
	return &fakeBatchResults{n: b.Len(), err: db.batchErr}
}

type fakeBatchResults struct {
	n   int
	err error
}

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeBatchResults) Query() (pgx.Rows, error) { return nil, fmt.Errorf("not implemented") }
func (r *fakeBatchResults) QueryRow() pgx.Row        { return nil }
func (r *fakeBatchResults) Close() error             { return nil }

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		switch d := dest[i].(type) {
		case *string:
			*d = r.vals[i].(string)
		case *bool:
			*d = r.vals[i].(bool)
		}
	}
	return nil
}

func sampleAtom() domain.Atom {
	return domain.Atom{
		AtomID:    "acme:vfd:overcurrent",
		Title:     "Overcurrent faults",
		Content:   strings.Repeat("Reduce the ramp. ", 5),
		Type:      domain.AtomTroubleshooting,
		Vendor:    "acme",
		Keywords:  []string{"overcurrent", "f042"},
		Citations: []domain.Citation{{ID: 1, URL: "https://a.example/m.pdf"}},
		Embedding: []float32{0.1, 0.2},
		SourceURL: "https://a.example/m.pdf",
		CreatedAt: time.Now().UTC(),
	}
}

func TestUpsertUsesParameterizedStatement(t *testing.T) {
	db := &fakeDB{}
	s := NewAtomStore(db)
	if err := s.Upsert(context.Background(), sampleAtom()); err != nil {
		t.Fatal(err)
	}
	if len(db.execSQL) != 1 {
		t.Fatalf("exec calls: %d", len(db.execSQL))
	}
	sql := db.execSQL[0]
	if !strings.Contains(sql, "ON CONFLICT (atom_id) DO UPDATE") {
		t.Fatal("upsert clause missing")
	}
	if !strings.Contains(sql, "version = atoms.version + 1") {
		t.Fatal("version bump missing")
	}
	if strings.Contains(sql, "acme") {
		t.Fatal("values must be bound, not interpolated")
	}
	if len(db.execArgs[0]) != 17 {
		t.Fatalf("args: %d", len(db.execArgs[0]))
	}
}

func TestUpsertErrorWrapped(t *testing.T) {
	db := &fakeDB{execErr: fmt.Errorf("connection refused")}
	s := NewAtomStore(db)
	err := s.Upsert(context.Background(), sampleAtom())
	if err == nil || !strings.Contains(err.Error(), "acme:vfd:overcurrent") {
		t.Fatalf("error: %v", err)
	}
}

func TestExists(t *testing.T) {
	db := &fakeDB{row: fakeRow{vals: []any{true}}}
	s := NewAtomStore(db)
	ok, err := s.Exists(context.Background(), "acme:vfd:x")
	if err != nil || !ok {
		t.Fatalf("exists: %v %v", ok, err)
	}
}

func TestLookupMissingAtom(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	s := NewAtomStore(db)
	hash, source, err := s.Lookup(context.Background(), "none")
	if err != nil || hash != "" || source != "" {
		t.Fatalf("lookup: %q %q %v", hash, source, err)
	}
}

func TestLookupReturnsContentHash(t *testing.T) {
	db := &fakeDB{row: fakeRow{vals: []any{"stored content", "https://a.example/m.pdf"}}}
	s := NewAtomStore(db)
	hash, source, err := s.Lookup(context.Background(), "acme:vfd:x")
	if err != nil {
		t.Fatal(err)
	}
	if hash != domain.ContentHash("stored content") {
		t.Fatal("hash mismatch")
	}
	if source != "https://a.example/m.pdf" {
		t.Fatalf("source: %s", source)
	}
}

func sampleMetric(url string) domain.SessionMetric {
	return domain.SessionMetric{
		SourceURL:       url,
		SourceHash:      domain.URLHash(url),
		SourceType:      domain.SourcePDF,
		Status:          domain.StatusSuccess,
		AtomsCreated:    3,
		StageMS:         [domain.StageCount]int64{10, 20, 5, 400, 2, 90, 15},
		TotalDurationMS: 542,
		StartedAt:       time.Now().UTC(),
		CompletedAt:     time.Now().UTC(),
	}
}

func TestWriteBatchQueuesEveryRow(t *testing.T) {
	db := &fakeDB{}
	w := NewMetricWriter(db)
	rows := []domain.SessionMetric{
		sampleMetric("https://a.example/1"),
		sampleMetric("https://a.example/2"),
		sampleMetric("https://a.example/3"),
	}
	if err := w.WriteBatch(context.Background(), rows); err != nil {
		t.Fatal(err)
	}
	if len(db.batches) != 1 {
		t.Fatalf("batches: %d", len(db.batches))
	}
	if db.batches[0].Len() != 3 {
		t.Fatalf("queued: %d", db.batches[0].Len())
	}
}

func TestWriteBatchEmptyNoop(t *testing.T) {
	db := &fakeDB{}
	w := NewMetricWriter(db)
	if err := w.WriteBatch(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if len(db.batches) != 0 {
		t.Fatal("empty batch should not hit the db")
	}
}

func TestWriteBatchSurfacesInsertError(t *testing.T) {
	db := &fakeDB{batchErr: fmt.Errorf("relation does not exist")}
	w := NewMetricWriter(db)
	err := w.WriteBatch(context.Background(), []domain.SessionMetric{sampleMetric("https://a.example/1")})
	if err == nil {
		t.Fatal("insert error should surface to the monitor")
	}
}

func TestNullable(t *testing.T) {
	if nullable("") != nil {
		t.Fatal("empty maps to NULL")
	}
	if v := nullable("x"); v == nil || *v != "x" {
		t.Fatal("non-empty passes through")
	}
}

func TestSchemaInterpolatesDimension(t *testing.T) {
	db := &fakeDB{}
	if err := Migrate(context.Background(), db, 1536); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(db.execSQL[0], "VECTOR(1536)") {
		t.Fatal("embedding dimension not applied")
	}
	if !strings.Contains(db.execSQL[0], "session_metrics_realtime") ||
		!strings.Contains(db.execSQL[0], "session_metrics_hourly") ||
		!strings.Contains(db.execSQL[0], "session_metrics_daily") {
		t.Fatal("metric tables missing from schema")
	}
}
