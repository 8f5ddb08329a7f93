package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gsg-platform/bridge/pkg/errdef"
	"github.com/gsg-platform/bridge/pkg/tenants"
)

// DocumentStore persists canonical CSR document records.
type DocumentStore struct{}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{}
}

// Insert records an ingested document. Duplicate doc ids within the
// tenant are a no-op so ingestion replays stay idempotent; a doc id
// owned by another tenant fails loudly instead of being swallowed by
// the conflict clause.
func (s *DocumentStore) Insert(ctx context.Context, scope *tenants.Scope, doc *Document) error {
	if err := scope.Check(doc.TenantID); err != nil {
		return err
	}
	res, err := scope.Conn().ExecContext(ctx, `
		INSERT INTO document (doc_id, tenant_id, doc_type, title, source_uri, extracted_text, processing_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (doc_id) DO NOTHING
	`, doc.DocID, doc.TenantID, doc.DocType, doc.Title, doc.SourceURI, doc.ExtractedText, doc.ProcessingStatus)
	if err != nil {
		return errdef.Wrap(errdef.ErrTransientStorage, "insert document: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errdef.Wrap(errdef.ErrTransientStorage, "insert document: %v", err)
	}
	if n == 0 {
		// Conflict path. The existing row is only acceptable if it is
		// ours; an invisible row means the doc id belongs to another
		// tenant.
		var one int
		err := scope.Conn().QueryRowContext(ctx,
			`SELECT 1 FROM document WHERE doc_id = $1 AND tenant_id = $2`,
			doc.DocID, doc.TenantID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return errdef.Wrap(errdef.ErrTenantViolation,
				"document %s exists under another tenant", doc.DocID)
		}
		if err != nil {
			return errdef.Wrap(errdef.ErrTransientStorage, "insert document: %v", err)
		}
	}
	return nil
}

// SetStatusTx moves a document through its processing lifecycle within a
// handler transaction.
func (s *DocumentStore) SetStatusTx(ctx context.Context, tx *sql.Tx, scope *tenants.Scope, docID, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE document SET processing_status = $1 WHERE tenant_id = $2 AND doc_id = $3
	`, status, scope.Tenant(), docID)
	if err != nil {
		return errdef.Wrap(errdef.ErrTransientStorage, "update document status: %v", err)
	}
	return nil
}

// Get returns a document owned by the scope's tenant.
func (s *DocumentStore) Get(ctx context.Context, scope *tenants.Scope, docID string) (*Document, error) {
	var doc Document
	err := scope.Conn().QueryRowContext(ctx, `
		SELECT doc_id, tenant_id, doc_type, title, source_uri, extracted_text, processing_status, created_at
		FROM document WHERE tenant_id = $1 AND doc_id = $2
	`, scope.Tenant(), docID).Scan(
		&doc.DocID, &doc.TenantID, &doc.DocType, &doc.Title, &doc.SourceURI,
		&doc.ExtractedText, &doc.ProcessingStatus, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdef.Wrap(errdef.ErrNotFound, "document %s", docID)
	}
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "get document: %v", err)
	}
	return &doc, nil
}

// List returns the tenant's documents, newest first.
func (s *DocumentStore) List(ctx context.Context, scope *tenants.Scope, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := scope.Conn().QueryContext(ctx, `
		SELECT doc_id, tenant_id, doc_type, title, source_uri, extracted_text, processing_status, created_at
		FROM document WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, scope.Tenant(), limit)
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "list documents: %v", err)
	}
	defer func() { _ = rows.Close() }()

	//nolint:prealloc // result count unknown from SQL query
	var out []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.DocID, &doc.TenantID, &doc.DocType, &doc.Title,
			&doc.SourceURI, &doc.ExtractedText, &doc.ProcessingStatus, &doc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "list documents: %v", err)
	}
	return out, nil
}
