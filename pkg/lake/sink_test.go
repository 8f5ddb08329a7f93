package lake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsg-platform/bridge/pkg/contracts"
	"github.com/gsg-platform/bridge/pkg/envelope"
)

const sinkTopic = "GSG.esg_ingestion--producer__csr@1.events"

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	return out
}

func testCodec(t *testing.T) *envelope.Codec {
	t.Helper()
	reg := contracts.NewRegistry(nil)
	require.NoError(t, reg.RegisterBuiltins(context.Background()))
	return envelope.NewCodec(reg)
}

func sinkEnvelope(id, tenant, project string) *envelope.Envelope {
	return &envelope.Envelope{
		Headers: envelope.Headers{
			EventID:       id,
			EventType:     envelope.TypeCSRIngested,
			TenantID:      tenant,
			ProjectTag:    project,
			OccurredAt:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
			PayloadSchema: "csr_ingested@1",
			CorrelationID: "corr-" + id,
		},
		Payload: json.RawMessage(`{"doc_id":"d1","org_id":"O1"}`),
	}
}

func TestSinkFlushesOnSizeThreshold(t *testing.T) {
	codec := testCodec(t)
	store := newMemStore()
	// A threshold the second envelope trips but the first does not.
	wire, err := codec.Encode(sinkEnvelope("evt_1", "GSG", "atlas"))
	require.NoError(t, err)
	sink := NewSink(codec, store, int64(len(wire))+10, time.Hour, slog.Default())

	ctx := context.Background()
	require.NoError(t, sink.Handle(ctx, sinkTopic, sinkEnvelope("evt_1", "GSG", "atlas")))
	require.NoError(t, sink.Handle(ctx, sinkTopic, sinkEnvelope("evt_2", "GSG", "atlas")))

	keys := store.keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0],
		"lake/"+sinkTopic+"/tenant=GSG/project=atlas/ds=2026-03-14/part-"))
	assert.True(t, strings.HasSuffix(keys[0], ".jsonl"))

	// Both envelopes landed as decodable lines.
	lines := bytes.Split(bytes.TrimSpace(store.objects[keys[0]]), []byte("\n"))
	require.Len(t, lines, 2)
	for _, line := range lines {
		_, err := codec.Decode(line)
		require.NoError(t, err)
	}
}

func TestSinkPartitionsByTenantProjectAndDay(t *testing.T) {
	codec := testCodec(t)
	store := newMemStore()
	sink := NewSink(codec, store, 64<<20, time.Hour, slog.Default())

	ctx := context.Background()
	require.NoError(t, sink.Handle(ctx, sinkTopic, sinkEnvelope("evt_1", "GSG", "atlas")))
	require.NoError(t, sink.Handle(ctx, sinkTopic, sinkEnvelope("evt_2", "DEMO", "atlas")))
	require.NoError(t, sink.Handle(ctx, sinkTopic, sinkEnvelope("evt_3", "GSG", "")))

	sink.FlushAll(ctx)

	keys := store.keys()
	require.Len(t, keys, 3)
	joined := strings.Join(keys, "\n")
	assert.Contains(t, joined, "tenant=GSG/project=atlas")
	assert.Contains(t, joined, "tenant=DEMO/project=atlas")
	assert.Contains(t, joined, "tenant=GSG/project=unassigned")
}

func TestSinkFlushesOnAge(t *testing.T) {
	codec := testCodec(t)
	store := newMemStore()
	sink := NewSink(codec, store, 64<<20, time.Minute, slog.Default())

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	sink.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, sink.Handle(ctx, sinkTopic, sinkEnvelope("evt_1", "GSG", "atlas")))

	// Not yet aged.
	sink.flushAged(ctx)
	assert.Empty(t, store.keys())

	now = now.Add(2 * time.Minute)
	sink.flushAged(ctx)
	assert.Len(t, store.keys(), 1)
}

func TestSinkRequeuesOnStoreFailure(t *testing.T) {
	codec := testCodec(t)
	store := newMemStore()
	store.err = errors.New("bucket unavailable")
	sink := NewSink(codec, store, 64<<20, time.Hour, slog.Default())

	ctx := context.Background()
	require.NoError(t, sink.Handle(ctx, sinkTopic, sinkEnvelope("evt_1", "GSG", "atlas")))
	sink.FlushAll(ctx)
	assert.Empty(t, store.keys())

	// Once the store recovers the buffered events drain.
	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()
	sink.FlushAll(ctx)
	keys := store.keys()
	require.Len(t, keys, 1)
	assert.Equal(t, 1, bytes.Count(store.objects[keys[0]], []byte("\n")))
}

func TestFileStorePut(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	key := "lake/t/tenant=GSG/project=atlas/ds=2026-03-14/part-1-00001.jsonl"
	require.NoError(t, fs.Put(context.Background(), key, []byte("{}\n")))

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))
}
