package contracts

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsg-platform/bridge/pkg/errdef"
)

func TestRegistryRegister(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil)

	schema := json.RawMessage(`{"type": "object", "required": ["doc_id"]}`)

	t.Run("Register and lookup", func(t *testing.T) {
		require.NoError(t, r.Register(ctx, "csr_ingested", 1, schema))
		assert.True(t, r.Has("csr_ingested", 1))
		assert.False(t, r.Has("csr_ingested", 2))
		assert.False(t, r.Has("other", 1))

		c, err := r.Get("csr_ingested", 1)
		require.NoError(t, err)
		assert.Equal(t, 1, c.Version)
	})

	t.Run("Idempotent re-register", func(t *testing.T) {
		// Equivalent schema with different formatting is the same contract.
		require.NoError(t, r.Register(ctx, "csr_ingested", 1,
			json.RawMessage(`{"required":["doc_id"],"type":"object"}`)))
	})

	t.Run("Conflict on different schema", func(t *testing.T) {
		err := r.Register(ctx, "csr_ingested", 1, json.RawMessage(`{"type": "array"}`))
		assert.ErrorIs(t, err, errdef.ErrContractConflict)
	})

	t.Run("Unknown contract", func(t *testing.T) {
		_, err := r.Get("missing", 1)
		assert.ErrorIs(t, err, errdef.ErrUnknownContract)
	})

	t.Run("Latest version", func(t *testing.T) {
		require.NoError(t, r.Register(ctx, "csr_ingested", 2, schema))
		assert.Equal(t, 2, r.Latest("csr_ingested"))
		assert.Equal(t, 0, r.Latest("missing"))
	})

	t.Run("Invalid key", func(t *testing.T) {
		assert.Error(t, r.Register(ctx, "", 1, schema))
		assert.Error(t, r.Register(ctx, "x", 0, schema))
	})
}

func TestRegistryValidatePayload(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil)
	require.NoError(t, r.RegisterBuiltins(ctx))

	t.Run("Valid payload", func(t *testing.T) {
		err := r.ValidatePayload("csr_ingested", 1,
			json.RawMessage(`{"doc_id": "test_doc_001", "org_id": "O1"}`))
		assert.NoError(t, err)
	})

	t.Run("Missing required field", func(t *testing.T) {
		err := r.ValidatePayload("csr_ingested", 1, json.RawMessage(`{"doc_id": "d"}`))
		assert.ErrorIs(t, err, errdef.ErrMalformedEnvelope)
	})

	t.Run("Unknown contract", func(t *testing.T) {
		err := r.ValidatePayload("nope", 9, json.RawMessage(`{}`))
		assert.ErrorIs(t, err, errdef.ErrUnknownContract)
	})
}

func TestRegisterBuiltinsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil)
	require.NoError(t, r.RegisterBuiltins(ctx))
	require.NoError(t, r.RegisterBuiltins(ctx))
	assert.True(t, r.Has("esg_metric_extracted", 1))
	assert.True(t, r.Has("delivery_failed", 1))
}
