package db

// schemaDDL creates the audit tables. The partial unique index on audit_runs is
// the authoritative one-live-run-per-product lock; admission control relies on
// the 23505 it raises to converge racing callers onto a single run.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS products (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	slug            TEXT NOT NULL UNIQUE,
	brand           TEXT NOT NULL,
	model           TEXT NOT NULL,
	category        TEXT NOT NULL DEFAULT '',
	technical_specs JSONB,
	source_urls     TEXT[] NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS audit_runs (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	product_id     UUID NOT NULL REFERENCES products(id),
	status         TEXT NOT NULL DEFAULT 'pending',
	driver         TEXT NOT NULL DEFAULT 'queue',
	progress       INT  NOT NULL DEFAULT 0,
	stage_state    JSONB NOT NULL DEFAULT '{"stages":{}}',
	last_heartbeat TIMESTAMPTZ,
	locked_at      TIMESTAMPTZ,
	attempt_count  INT NOT NULL DEFAULT 0,
	error          TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at     TIMESTAMPTZ,
	finished_at    TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS audit_runs_one_live_per_product
	ON audit_runs (product_id)
	WHERE status IN ('pending', 'running');

CREATE INDEX IF NOT EXISTS audit_runs_product_created
	ON audit_runs (product_id, created_at DESC);

CREATE TABLE IF NOT EXISTS shadow_specs (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	product_id    UUID NOT NULL UNIQUE REFERENCES products(id),
	claimed_specs JSONB,
	actual_specs  JSONB,
	red_flags     JSONB,
	truth_score   DOUBLE PRECISION,
	is_verified   BOOLEAN NOT NULL DEFAULT FALSE,
	stages        JSONB,
	source_urls   TEXT[] NOT NULL DEFAULT '{}',
	version       BIGINT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS audit_assessments (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	audit_run_id    UUID NOT NULL REFERENCES audit_runs(id),
	assessment_json JSONB NOT NULL,
	truth_index     DOUBLE PRECISION,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS audit_assessments_run
	ON audit_assessments (audit_run_id);
`
