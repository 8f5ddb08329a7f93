package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsg-platform/bridge/pkg/envelope"
	"github.com/gsg-platform/bridge/pkg/errdef"
)

func testEnvelope(tenant string) *envelope.Envelope {
	return &envelope.Envelope{
		Headers: envelope.Headers{
			EventID:       "evt_123",
			EventType:     envelope.TypeCSRIngested,
			TenantID:      tenant,
			OccurredAt:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
			PayloadSchema: "csr_ingested@1",
			CorrelationID: "corr-1",
		},
		Payload: json.RawMessage(`{"doc_id":"test_doc_001","org_id":"O1"}`),
	}
}

func TestEventStoreAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewEventStore(testCodec(t))
	scope := newTestScope(t, db, mock, "GSG")
	ctx := context.Background()
	topic := "GSG.esg_ingestion--producer__csr@1.events"

	t.Run("First append writes a row", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO event_registry").
			WithArgs("GSG", "evt_123", envelope.TypeCSRIngested, topic, "corr-1",
				sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		inserted, err := store.Append(ctx, scope, testEnvelope("GSG"), topic)
		require.NoError(t, err)
		assert.True(t, inserted)
	})

	t.Run("Replay is a no-op", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO event_registry").
			WillReturnResult(sqlmock.NewResult(0, 0))

		inserted, err := store.Append(ctx, scope, testEnvelope("GSG"), topic)
		require.NoError(t, err)
		assert.False(t, inserted)
	})

	t.Run("Cross-tenant append fails", func(t *testing.T) {
		_, err := store.Append(ctx, scope, testEnvelope("DEMO"), topic)
		assert.ErrorIs(t, err, errdef.ErrTenantViolation)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStoreSeen(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewEventStore(testCodec(t))
	scope := newTestScope(t, db, mock, "GSG")
	ctx := context.Background()

	mock.ExpectQuery("SELECT 1 FROM event_registry").
		WithArgs("GSG", "evt_123").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	seen, err := store.Seen(ctx, scope, "evt_123")
	require.NoError(t, err)
	assert.True(t, seen)

	mock.ExpectQuery("SELECT 1 FROM event_registry").
		WithArgs("GSG", "evt_999").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	seen, err = store.Seen(ctx, scope, "evt_999")
	require.NoError(t, err)
	assert.False(t, seen)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStoreListByType(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	codec := testCodec(t)
	store := NewEventStore(codec)
	scope := newTestScope(t, db, mock, "GSG")

	wire, err := codec.Encode(testEnvelope("GSG"))
	require.NoError(t, err)

	mock.ExpectQuery("SELECT envelope FROM event_registry").
		WillReturnRows(sqlmock.NewRows([]string{"envelope"}).AddRow(wire))

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	events, err := store.ListByType(context.Background(), scope, envelope.TypeCSRIngested, from, to, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt_123", events[0].Headers.EventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
