package store

// schema is the full DDL for the core tables. The embedding column
// dimension is interpolated at migration time from the deployment-wide
// constant.
const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS fingerprints (
    url_hash                TEXT PRIMARY KEY,
    url                     TEXT NOT NULL,
    source_type             TEXT NOT NULL,
    status                  TEXT NOT NULL,
    discovered_at           TIMESTAMPTZ NOT NULL,
    queued_at               TIMESTAMPTZ NOT NULL,
    ingestion_started_at    TIMESTAMPTZ,
    ingestion_completed_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS atoms (
    atom_id              TEXT PRIMARY KEY,
    title                TEXT NOT NULL,
    content              TEXT NOT NULL,
    summary              TEXT,
    keywords             TEXT[],
    type                 TEXT NOT NULL,
    vendor               TEXT NOT NULL,
    equipment_type       TEXT,
    fault_codes          TEXT[],
    citations            JSONB NOT NULL,
    manual_quality_score INT NOT NULL DEFAULT 0,
    page_count           INT,
    is_direct_pdf        BOOLEAN NOT NULL DEFAULT FALSE,
    manual_type          TEXT NOT NULL DEFAULT 'unknown',
    embedding            VECTOR(%d),
    source_url           TEXT NOT NULL,
    created_at           TIMESTAMPTZ NOT NULL,
    version              INT NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS atoms_vendor_equipment_idx
    ON atoms (vendor, equipment_type);
CREATE INDEX IF NOT EXISTS atoms_quality_idx
    ON atoms (manual_quality_score DESC, page_count DESC);
CREATE INDEX IF NOT EXISTS atoms_embedding_idx
    ON atoms USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS session_metrics_realtime (
    id                SERIAL PRIMARY KEY,
    source_url        TEXT NOT NULL,
    source_hash       TEXT NOT NULL,
    source_type       TEXT NOT NULL,
    status            TEXT NOT NULL,
    atoms_created     INT NOT NULL,
    atoms_failed      INT NOT NULL,
    chunks_processed  INT NOT NULL,
    avg_quality_score DOUBLE PRECISION NOT NULL,
    quality_pass_rate DOUBLE PRECISION NOT NULL,
    stage_1_ms        BIGINT NOT NULL,
    stage_2_ms        BIGINT NOT NULL,
    stage_3_ms        BIGINT NOT NULL,
    stage_4_ms        BIGINT NOT NULL,
    stage_5_ms        BIGINT NOT NULL,
    stage_6_ms        BIGINT NOT NULL,
    stage_7_ms        BIGINT NOT NULL,
    total_duration_ms BIGINT NOT NULL,
    error_stage       TEXT,
    error_message     TEXT,
    vendor            TEXT,
    equipment_type    TEXT,
    started_at        TIMESTAMPTZ NOT NULL,
    completed_at      TIMESTAMPTZ NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS session_metrics_realtime_created_idx
    ON session_metrics_realtime (created_at DESC);

CREATE TABLE IF NOT EXISTS session_metrics_hourly (
    bucket            TIMESTAMPTZ PRIMARY KEY,
    sources           INT NOT NULL,
    success           INT NOT NULL,
    partial           INT NOT NULL,
    failed            INT NOT NULL,
    atoms_created     INT NOT NULL,
    atoms_failed      INT NOT NULL,
    avg_duration_ms   BIGINT NOT NULL,
    avg_quality_score DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS session_metrics_daily (
    bucket            DATE PRIMARY KEY,
    sources           INT NOT NULL,
    success           INT NOT NULL,
    partial           INT NOT NULL,
    failed            INT NOT NULL,
    atoms_created     INT NOT NULL,
    atoms_failed      INT NOT NULL,
    avg_duration_ms   BIGINT NOT NULL,
    avg_quality_score DOUBLE PRECISION NOT NULL
);
`
