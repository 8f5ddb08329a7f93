package store

import (
	"context"
	"database/sql"

	"github.com/gsg-platform/bridge/pkg/errdef"
	"github.com/gsg-platform/bridge/pkg/tenants"
)

// MetricStore persists extracted ESG metrics.
type MetricStore struct{}

func NewMetricStore() *MetricStore {
	return &MetricStore{}
}

// InsertTx inserts one metric inside a handler transaction and fills in
// the server-assigned metric id. The period invariant is checked here as
// well as by the table constraint so a violation surfaces as a typed
// error rather than a raw constraint failure.
func (s *MetricStore) InsertTx(ctx context.Context, tx *sql.Tx, scope *tenants.Scope, m *Metric) error {
	if err := scope.Check(m.TenantID); err != nil {
		return err
	}
	if m.PeriodStart.After(m.PeriodEnd) {
		return errdef.Wrap(errdef.ErrConflict,
			"metric %s period_start after period_end", m.MetricName)
	}

	err := tx.QueryRowContext(ctx, `
		INSERT INTO esg_metric (tenant_id, doc_id, org_id, metric_type, metric_name, value, unit,
			period_start, period_end, confidence, method, model_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING metric_id
	`, m.TenantID, m.DocID, m.OrgID, m.MetricType, m.MetricName, m.Value, m.Unit,
		m.PeriodStart, m.PeriodEnd, m.Confidence, m.Method, m.ModelVersion).Scan(&m.MetricID)
	if err != nil {
		return errdef.Wrap(errdef.ErrTransientStorage, "insert metric: %v", err)
	}
	return nil
}

// ListByDoc returns the metrics extracted from one document.
func (s *MetricStore) ListByDoc(ctx context.Context, scope *tenants.Scope, docID string) ([]Metric, error) {
	rows, err := scope.Conn().QueryContext(ctx, `
		SELECT metric_id, tenant_id, doc_id, org_id, metric_type, metric_name, value, unit,
			period_start, period_end, confidence, method, model_version
		FROM esg_metric WHERE tenant_id = $1 AND doc_id = $2
		ORDER BY metric_id ASC
	`, scope.Tenant(), docID)
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "list metrics: %v", err)
	}
	defer func() { _ = rows.Close() }()

	//nolint:prealloc // result count unknown from SQL query
	var out []Metric
	for rows.Next() {
		var m Metric
		if err := rows.Scan(&m.MetricID, &m.TenantID, &m.DocID, &m.OrgID, &m.MetricType,
			&m.MetricName, &m.Value, &m.Unit, &m.PeriodStart, &m.PeriodEnd,
			&m.Confidence, &m.Method, &m.ModelVersion); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "list metrics: %v", err)
	}
	return out, nil
}

// DeleteByDocTx removes a document's metrics inside a transaction. Used
// when a re-extraction replaces previous results.
func (s *MetricStore) DeleteByDocTx(ctx context.Context, tx *sql.Tx, scope *tenants.Scope, docID string) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM esg_metric WHERE tenant_id = $1 AND doc_id = $2`, scope.Tenant(), docID)
	if err != nil {
		return errdef.Wrap(errdef.ErrTransientStorage, "delete metrics: %v", err)
	}
	return nil
}
