// Package writer implements the CSR_INGESTED handler: it calls the
// metric extractor, then commits metric rows, derived memory documents,
// and the outgoing ESG_METRIC_EXTRACTED outbox row in one transaction.
package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gsg-platform/bridge/pkg/envelope"
	"github.com/gsg-platform/bridge/pkg/errdef"
	"github.com/gsg-platform/bridge/pkg/extract"
	"github.com/gsg-platform/bridge/pkg/store"
	"github.com/gsg-platform/bridge/pkg/tenants"
)

// Writer consumes CSR_INGESTED envelopes. Deliveries are at-least-once;
// idempotency comes from a deterministic outgoing event id derived from
// (correlation_id, doc_id), which the event registry dedupes.
type Writer struct {
	scopes    *tenants.ScopeFactory
	extractor extract.Extractor
	docs      *store.DocumentStore
	metrics   *store.MetricStore
	memory    *store.MemoryDocStore
	events    *store.EventStore
	outbox    *store.OutboxStore
	outTopic  string
	log       *slog.Logger
}

func New(scopes *tenants.ScopeFactory, extractor extract.Extractor,
	docs *store.DocumentStore, metrics *store.MetricStore, memory *store.MemoryDocStore,
	events *store.EventStore, outbox *store.OutboxStore,
	outTopic string, log *slog.Logger) *Writer {
	return &Writer{
		scopes:    scopes,
		extractor: extractor,
		docs:      docs,
		metrics:   metrics,
		memory:    memory,
		events:    events,
		outbox:    outbox,
		outTopic:  outTopic,
		log:       log,
	}
}

type csrIngestedPayload struct {
	DocID         string `json:"doc_id"`
	OrgID         string `json:"org_id"`
	DocType       string `json:"doc_type"`
	Title         string `json:"title"`
	SourceURI     string `json:"source_uri"`
	ExtractedText string `json:"extracted_text"`
}

func (w *Writer) Handle(ctx context.Context, topic string, env *envelope.Envelope) error {
	var payload csrIngestedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return errdef.Wrap(errdef.ErrMalformedEnvelope, "csr_ingested payload: %v", err)
	}
	if payload.DocID == "" || payload.OrgID == "" {
		return errdef.Wrap(errdef.ErrMalformedEnvelope,
			"csr_ingested payload missing doc_id or org_id")
	}

	scope, err := w.scopes.Open(ctx, env.Headers.TenantID, "metric-writer")
	if err != nil {
		return err
	}
	defer func() { _ = scope.Close() }()

	outEventID, err := envelope.DeterministicEventID(envelope.TypeESGMetricExtracted, map[string]string{
		"correlation_id": env.Headers.CorrelationID,
		"doc_id":         payload.DocID,
	})
	if err != nil {
		return err
	}

	// Redelivery fast path: if the outgoing event is already registered,
	// the whole transaction committed on an earlier delivery.
	seen, err := w.events.Seen(ctx, scope, outEventID)
	if err != nil {
		return err
	}
	if seen {
		w.log.Debug("duplicate delivery skipped",
			"doc_id", payload.DocID, "event_id", outEventID)
		return nil
	}

	if err := w.docs.Insert(ctx, scope, &store.Document{
		DocID:            payload.DocID,
		TenantID:         env.Headers.TenantID,
		DocType:          payload.DocType,
		Title:            payload.Title,
		SourceURI:        payload.SourceURI,
		ExtractedText:    payload.ExtractedText,
		ProcessingStatus: store.StatusIngested,
	}); err != nil {
		return err
	}

	text := payload.ExtractedText
	if text == "" {
		doc, err := w.docs.Get(ctx, scope, payload.DocID)
		if err != nil {
			return err
		}
		text = doc.ExtractedText
	}

	metrics, err := w.extractor.Extract(ctx, extract.Request{
		DocID:         payload.DocID,
		OrgID:         payload.OrgID,
		ExtractedText: text,
	})
	if err != nil {
		return err
	}

	outEnv, err := w.buildOutgoing(env, outEventID, payload, len(metrics))
	if err != nil {
		return err
	}

	tx, err := scope.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Both sides of the exchange land in the event log: the ingress
	// envelope so the flow can be replayed from the registry, and the
	// outgoing one, whose deterministic id doubles as the race check.
	if _, err := w.events.AppendTx(ctx, tx, scope, env, topic); err != nil {
		return err
	}
	inserted, err := w.events.AppendTx(ctx, tx, scope, outEnv, w.outTopic)
	if err != nil {
		return err
	}
	if !inserted {
		// A concurrent delivery won the race.
		return nil
	}

	projectScope := "project:" + env.Headers.ProjectTag
	for i, m := range metrics {
		row := &store.Metric{
			TenantID:     env.Headers.TenantID,
			DocID:        payload.DocID,
			OrgID:        payload.OrgID,
			MetricType:   m.MetricType,
			MetricName:   m.MetricName,
			Value:        m.Value,
			Unit:         m.Unit,
			PeriodStart:  m.PeriodStart,
			PeriodEnd:    m.PeriodEnd,
			Confidence:   m.Confidence,
			Method:       m.Method,
			ModelVersion: m.ModelVersion,
		}
		if err := w.metrics.InsertTx(ctx, tx, scope, row); err != nil {
			return err
		}

		meta, err := json.Marshal(row)
		if err != nil {
			return err
		}
		memDoc := &store.MemoryDoc{
			DocID:    fmt.Sprintf("%s_metric_%d", payload.DocID, i+1),
			TenantID: env.Headers.TenantID,
			Scope:    projectScope,
			Title:    m.MetricName,
			Content:  metricContent(m),
			DocType:  "esg_metric",
			Meta:     meta,
		}
		if err := w.memory.UpsertTx(ctx, tx, scope, memDoc); err != nil {
			return err
		}
	}

	if err := w.outbox.AppendTx(ctx, tx, outEnv, w.outTopic); err != nil {
		return err
	}
	if err := w.docs.SetStatusTx(ctx, tx, scope, payload.DocID, store.StatusExtracted); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errdef.Wrap(errdef.ErrTransientStorage, "commit extraction: %v", err)
	}

	w.log.Info("document extracted",
		"tenant", env.Headers.TenantID, "doc_id", payload.DocID,
		"metrics", len(metrics), "event_id", outEventID)
	return nil
}

func (w *Writer) buildOutgoing(in *envelope.Envelope, eventID string,
	payload csrIngestedPayload, metricCount int) (*envelope.Envelope, error) {
	out, err := json.Marshal(map[string]any{
		"doc_id":       payload.DocID,
		"org_id":       payload.OrgID,
		"metric_count": metricCount,
	})
	if err != nil {
		return nil, err
	}
	return &envelope.Envelope{
		Headers: envelope.Headers{
			EventID:       eventID,
			EventType:     envelope.TypeESGMetricExtracted,
			TenantID:      in.Headers.TenantID,
			ProjectTag:    in.Headers.ProjectTag,
			AgentRunID:    in.Headers.AgentRunID,
			OccurredAt:    envelope.Now(),
			PayloadSchema: "esg_metric_extracted@1",
			CorrelationID: in.Headers.CorrelationID,
			CausationID:   in.Headers.EventID,
		},
		Payload: out,
	}, nil
}

// metricContent renders the searchable text for one metric, e.g.
// "Direct Emissions: 1234.56 tCO2e (scope1)".
func metricContent(m extract.Metric) string {
	return fmt.Sprintf("%s: %s %s (%s)",
		m.MetricName, strconv.FormatFloat(m.Value, 'f', -1, 64), m.Unit, m.MetricType)
}
