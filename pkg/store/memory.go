package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/pgvector/pgvector-go"

	"github.com/gsg-platform/bridge/pkg/errdef"
	"github.com/gsg-platform/bridge/pkg/tenants"
)

// Embedder turns text into a fixed-dimension vector. Implemented by the
// embedding collaborator client; tests use a deterministic stub.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// MemoryDocStore persists vector-searchable memory documents. Embeddings
// are computed on upsert only when content changed; searches embed the
// query once and rank by cosine similarity within the tenant.
type MemoryDocStore struct {
	embedder Embedder
}

func NewMemoryDocStore(embedder Embedder) *MemoryDocStore {
	return &MemoryDocStore{embedder: embedder}
}

// Dimension returns the configured embedding dimension.
func (s *MemoryDocStore) Dimension() int {
	return s.embedder.Dimension()
}

// Upsert writes a memory document. On conflict the content, meta, and
// updated_at are overwritten and created_at is preserved. The embedding
// is recomputed only when the stored content differs.
func (s *MemoryDocStore) Upsert(ctx context.Context, scope *tenants.Scope, doc *MemoryDoc) error {
	return s.upsert(ctx, scope.Conn(), scope, doc)
}

// UpsertTx is Upsert inside a handler transaction.
func (s *MemoryDocStore) UpsertTx(ctx context.Context, tx *sql.Tx, scope *tenants.Scope, doc *MemoryDoc) error {
	return s.upsert(ctx, tx, scope, doc)
}

// querier is the common surface of *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *MemoryDocStore) upsert(ctx context.Context, q querier, scope *tenants.Scope, doc *MemoryDoc) error {
	if err := scope.Check(doc.TenantID); err != nil {
		return err
	}
	if doc.Scope == "" {
		doc.Scope = "global"
	}

	var existing string
	err := q.QueryRowContext(ctx,
		`SELECT content FROM memory_doc WHERE tenant_id = $1 AND doc_id = $2`,
		doc.TenantID, doc.DocID).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		existing = ""
	case err != nil:
		return errdef.Wrap(errdef.ErrTransientStorage, "read memory doc: %v", err)
	}

	embedding := doc.Embedding
	if existing != doc.Content || existing == "" {
		vec, err := s.embedder.Embed(ctx, doc.Content)
		if err != nil {
			return errdef.Wrap(errdef.ErrEmbeddingFailed, "embed %s: %v", doc.DocID, err)
		}
		embedding = vec
	}

	var vecArg any
	if embedding != nil {
		vecArg = pgvector.NewVector(embedding)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO memory_doc (doc_id, tenant_id, scope, title, content, embedding, doc_type, source_uri, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, doc_id) DO UPDATE SET
			content = EXCLUDED.content,
			meta = EXCLUDED.meta,
			scope = EXCLUDED.scope,
			title = EXCLUDED.title,
			embedding = COALESCE(EXCLUDED.embedding, memory_doc.embedding),
			updated_at = now()
	`, doc.DocID, doc.TenantID, doc.Scope, doc.Title, doc.Content, vecArg,
		doc.DocType, doc.SourceURI, nullableJSON(doc.Meta))
	if err != nil {
		return errdef.Wrap(errdef.ErrTransientStorage, "upsert memory doc: %v", err)
	}
	doc.Embedding = embedding
	return nil
}

// Search returns the k nearest documents of the scope's tenant by cosine
// similarity to the query, filtered by minConfidence; a negative
// minConfidence disables the filter. similarity is 1 - cosine distance;
// ties break on updated_at, newest first. A non-empty scopeFilter
// restricts results to one memory scope.
func (s *MemoryDocStore) Search(ctx context.Context, scope *tenants.Scope, query string, k int, scopeFilter string, minConfidence float64) ([]SearchHit, error) {
	if k <= 0 {
		k = 5
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrEmbeddingFailed, "embed query: %v", err)
	}

	sqlQuery := `
		SELECT doc_id, tenant_id, scope, title, content, doc_type, source_uri, meta,
			created_at, updated_at, 1 - (embedding <=> $1) AS similarity
		FROM memory_doc
		WHERE tenant_id = $2 AND embedding IS NOT NULL`
	args := []any{pgvector.NewVector(queryVec), scope.Tenant()}
	if scopeFilter != "" {
		sqlQuery += ` AND scope = $3`
		args = append(args, scopeFilter)
	}
	sqlQuery += ` ORDER BY embedding <=> $1 ASC, updated_at DESC LIMIT ` + strconv.Itoa(k)

	rows, err := scope.Conn().QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "vector search: %v", err)
	}
	defer func() { _ = rows.Close() }()

	//nolint:prealloc // result count unknown from SQL query
	var hits []SearchHit
	for rows.Next() {
		var hit SearchHit
		var meta []byte
		if err := rows.Scan(&hit.Doc.DocID, &hit.Doc.TenantID, &hit.Doc.Scope,
			&hit.Doc.Title, &hit.Doc.Content, &hit.Doc.DocType, &hit.Doc.SourceURI,
			&meta, &hit.Doc.CreatedAt, &hit.Doc.UpdatedAt, &hit.Similarity); err != nil {
			return nil, err
		}
		hit.Doc.Meta = meta
		if hit.Similarity >= minConfidence {
			hits = append(hits, hit)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "vector search: %v", err)
	}
	return hits, nil
}

// Get returns one memory document of the scope's tenant.
func (s *MemoryDocStore) Get(ctx context.Context, scope *tenants.Scope, docID string) (*MemoryDoc, error) {
	var doc MemoryDoc
	var meta []byte
	err := scope.Conn().QueryRowContext(ctx, `
		SELECT doc_id, tenant_id, scope, title, content, doc_type, source_uri, meta, created_at, updated_at
		FROM memory_doc WHERE tenant_id = $1 AND doc_id = $2
	`, scope.Tenant(), docID).Scan(&doc.DocID, &doc.TenantID, &doc.Scope, &doc.Title,
		&doc.Content, &doc.DocType, &doc.SourceURI, &meta, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdef.Wrap(errdef.ErrNotFound, "memory doc %s", docID)
	}
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "get memory doc: %v", err)
	}
	doc.Meta = meta
	return &doc, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
