package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// tenantTables carry per-tenant rows and get a row-level policy keyed on
// the app.tenant_id session variable.
var tenantTables = []string{
	"event_registry", "document", "esg_metric", "memory_doc", "memory_kv", "agent_run",
}

const ddl = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS contracts (
	contract_name TEXT NOT NULL,
	version INT NOT NULL,
	schema_json JSONB NOT NULL,
	registered_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (contract_name, version)
);

CREATE TABLE IF NOT EXISTS event_registry (
	tenant_id TEXT NOT NULL,
	event_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	topic TEXT NOT NULL,
	correlation_id TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	envelope JSONB NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, event_id)
);
CREATE INDEX IF NOT EXISTS idx_event_registry_type
	ON event_registry (tenant_id, event_type, occurred_at);

CREATE TABLE IF NOT EXISTS document (
	doc_id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	doc_type TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	source_uri TEXT NOT NULL DEFAULT '',
	extracted_text TEXT NOT NULL DEFAULT '',
	processing_status TEXT NOT NULL DEFAULT 'ingested'
		CHECK (processing_status IN ('ingested', 'extracted', 'failed')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_document_tenant ON document (tenant_id, created_at);

CREATE TABLE IF NOT EXISTS esg_metric (
	metric_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	doc_id TEXT NOT NULL,
	org_id TEXT NOT NULL,
	metric_type TEXT NOT NULL,
	metric_name TEXT NOT NULL,
	value NUMERIC NOT NULL,
	unit TEXT NOT NULL DEFAULT '',
	period_start TIMESTAMPTZ NOT NULL,
	period_end TIMESTAMPTZ NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0
		CHECK (confidence >= 0 AND confidence <= 1),
	method TEXT NOT NULL DEFAULT '',
	model_version TEXT NOT NULL DEFAULT '',
	CHECK (period_start <= period_end)
);
CREATE INDEX IF NOT EXISTS idx_esg_metric_doc ON esg_metric (tenant_id, doc_id);

CREATE TABLE IF NOT EXISTS memory_doc (
	doc_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	scope TEXT NOT NULL DEFAULT 'global',
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	embedding vector(%d),
	doc_type TEXT NOT NULL DEFAULT '',
	source_uri TEXT NOT NULL DEFAULT '',
	meta JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, doc_id),
	CHECK (updated_at >= created_at)
);
CREATE INDEX IF NOT EXISTS idx_memory_doc_scope ON memory_doc (tenant_id, scope);

CREATE TABLE IF NOT EXISTS memory_kv (
	tenant_id TEXT NOT NULL,
	key TEXT NOT NULL,
	scope TEXT NOT NULL DEFAULT 'global',
	value JSONB NOT NULL,
	value_type TEXT NOT NULL DEFAULT 'json',
	ttl_until TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, key)
);

CREATE TABLE IF NOT EXISTS agent_run (
	agent_run_id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	agent_name TEXT NOT NULL,
	agent_type TEXT NOT NULL DEFAULT '',
	project_tag TEXT NOT NULL DEFAULT '',
	parent_run_id TEXT,
	input JSONB,
	output JSONB,
	tools JSONB,
	model_config JSONB,
	tokens_used BIGINT NOT NULL DEFAULT 0,
	cost DOUBLE PRECISION NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'running'
		CHECK (status IN ('running', 'success', 'failed', 'cancelled')),
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	duration_ms BIGINT,
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (ended_at IS NULL OR ended_at >= started_at)
);
CREATE INDEX IF NOT EXISTS idx_agent_run_list
	ON agent_run (tenant_id, started_at DESC);

CREATE TABLE IF NOT EXISTS outbox (
	outbox_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	event_id TEXT NOT NULL UNIQUE,
	topic TEXT NOT NULL,
	partition_key TEXT NOT NULL,
	envelope JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// policyDDL attaches the tenant row policy to one table. Postgres has no
// CREATE POLICY IF NOT EXISTS, so the policy is dropped and recreated.
// FORCE applies the policy to the table owner too, so services running
// as the migration role do not bypass isolation.
const policyDDL = `
ALTER TABLE %[1]s ENABLE ROW LEVEL SECURITY;
ALTER TABLE %[1]s FORCE ROW LEVEL SECURITY;
DROP POLICY IF EXISTS tenant_isolation ON %[1]s;
CREATE POLICY tenant_isolation ON %[1]s
	USING (tenant_id = current_setting('app.tenant_id', true))
	WITH CHECK (tenant_id = current_setting('app.tenant_id', true));
`

// Migrate applies the full schema, including the pgvector extension and
// the row-level policies. embedDimension fixes the vector column width;
// changing it later requires a manual migration.
func Migrate(ctx context.Context, db *sql.DB, embedDimension int) error {
	if embedDimension <= 0 {
		return fmt.Errorf("embed dimension must be positive, got %d", embedDimension)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(ddl, embedDimension)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var policies strings.Builder
	for _, table := range tenantTables {
		fmt.Fprintf(&policies, policyDDL, table)
	}
	if _, err := db.ExecContext(ctx, policies.String()); err != nil {
		return fmt.Errorf("apply row policies: %w", err)
	}
	return nil
}
