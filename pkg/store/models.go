// Package store implements the Bridge's Postgres persistence: the
// append-only event registry, CSR documents, extracted metrics, the
// memory bank sub-stores, and the transactional outbox.
//
// Every operation takes a tenants.Scope; row-level policies on the
// database plus explicit tenant predicates in each statement enforce that
// no statement crosses a tenant boundary.
package store

import (
	"encoding/json"
	"time"
)

// Document is the canonical record of an ingested CSR report.
type Document struct {
	DocID            string    `json:"doc_id"`
	TenantID         string    `json:"tenant_id"`
	DocType          string    `json:"doc_type"`
	Title            string    `json:"title"`
	SourceURI        string    `json:"source_uri"`
	ExtractedText    string    `json:"extracted_text"`
	ProcessingStatus string    `json:"processing_status"` // ingested | extracted | failed
	CreatedAt        time.Time `json:"created_at"`
}

// Document processing statuses.
const (
	StatusIngested  = "ingested"
	StatusExtracted = "extracted"
	StatusFailed    = "failed"
)

// Metric is one ESG fact extracted from a document. MetricID is
// server-assigned on insert.
type Metric struct {
	MetricID     int64     `json:"metric_id"`
	TenantID     string    `json:"tenant_id"`
	DocID        string    `json:"doc_id"`
	OrgID        string    `json:"org_id"`
	MetricType   string    `json:"metric_type"`
	MetricName   string    `json:"metric_name"`
	Value        float64   `json:"value"`
	Unit         string    `json:"unit"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	Confidence   float64   `json:"confidence"`
	Method       string    `json:"method"`
	ModelVersion string    `json:"model_version"`
}

// MemoryDoc is a vector-searchable content chunk. The doc_id namespace is
// shared with CSR documents; ids may be synthetic
// ("{csr_doc_id}_metric_{n}").
type MemoryDoc struct {
	DocID     string          `json:"doc_id"`
	TenantID  string          `json:"tenant_id"`
	Scope     string          `json:"scope"` // global | project:<tag> | agent:<name>
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	Embedding []float32       `json:"-"`
	DocType   string          `json:"doc_type"`
	SourceURI string          `json:"source_uri,omitempty"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SearchHit is one vector search result. Similarity is 1 - cosine
// distance, in (0, 1] for non-degenerate vectors.
type SearchHit struct {
	Doc        MemoryDoc `json:"doc"`
	Similarity float64   `json:"similarity"`
}

// KVEntry is a tenant-scoped key-value row. Entries past their TTL are
// invisible to reads and eligible for reclamation.
type KVEntry struct {
	TenantID  string          `json:"tenant_id"`
	Key       string          `json:"key"`
	Scope     string          `json:"scope"`
	Value     json.RawMessage `json:"value"`
	ValueType string          `json:"value_type"`
	TTLUntil  *time.Time      `json:"ttl_until,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AgentRun records one invocation of an external agent. Identity fields
// are immutable after first write; progress fields are overwritten by
// upserts.
type AgentRun struct {
	AgentRunID  string          `json:"agent_run_id"`
	TenantID    string          `json:"tenant_id"`
	AgentName   string          `json:"agent_name"`
	AgentType   string          `json:"agent_type"`
	ProjectTag  string          `json:"project_tag"`
	ParentRunID *string         `json:"parent_run_id,omitempty"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Tools       []string        `json:"tools,omitempty"`
	ModelConfig json.RawMessage `json:"model_config,omitempty"`
	TokensUsed  int64           `json:"tokens_used"`
	Cost        float64         `json:"cost"`
	Status      string          `json:"status"` // running | success | failed | cancelled
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	DurationMS  *int64          `json:"duration_ms,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Agent run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusSuccess   = "success"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// RunFilter narrows RunStore.List.
type RunFilter struct {
	AgentName string
	Status    string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}
