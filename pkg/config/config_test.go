package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("BROKER_BOOTSTRAP", "localhost:6379")
	t.Setenv("DB_DSN", "postgres://bridge@localhost:5432/bridge?sslmode=disable")

	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load("bridge-query")
		require.NoError(t, err)
		assert.Equal(t, []string{"GSG", "DEMO", "SYSTEM"}, cfg.TenantRegistry)
		assert.Equal(t, "all-MiniLM-L6-v2", cfg.EmbedModel)
		assert.Equal(t, 384, cfg.EmbedDimension)
		assert.Equal(t, "bridge-query", cfg.ConsumerGroup)
		assert.Equal(t, 5, cfg.MaxRedeliveries)
		assert.Equal(t, ".dlq", cfg.DLQSuffix)
		assert.Equal(t, 100, cfg.OutboxBatch)
		assert.Equal(t, int64(64<<20), cfg.LakeFlushBytes)
		assert.Equal(t, 300, cfg.LakeFlushSeconds)
	})

	t.Run("Overrides", func(t *testing.T) {
		t.Setenv("TENANT_REGISTRY", "GSG, ACME")
		t.Setenv("MAX_REDELIVERIES", "2")
		t.Setenv("CONSUMER_GROUP", "custom-group")

		cfg, err := Load("bridge-consumer")
		require.NoError(t, err)
		assert.Equal(t, []string{"GSG", "ACME"}, cfg.TenantRegistry)
		assert.Equal(t, 2, cfg.MaxRedeliveries)
		assert.Equal(t, "custom-group", cfg.ConsumerGroup)
	})

	t.Run("Missing required", func(t *testing.T) {
		t.Setenv("BROKER_BOOTSTRAP", "")
		t.Setenv("DB_DSN", "")

		_, err := Load("bridge-query")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "BROKER_BOOTSTRAP")
		assert.Contains(t, err.Error(), "DB_DSN")
	})
}

func TestLoadTenantProfiles(t *testing.T) {
	dir := t.TempDir()

	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	t.Run("Valid", func(t *testing.T) {
		path := write("tenants.yaml", `
tenants:
  - id: GSG
    display_name: Green Steel Group
    projects: [eu-csrd]
  - id: DEMO
`)
		profiles, err := LoadTenantProfiles(path)
		require.NoError(t, err)
		require.Len(t, profiles, 2)
		assert.Equal(t, "GSG", profiles[0].ID)
		assert.Equal(t, []string{"eu-csrd"}, profiles[0].Projects)
	})

	t.Run("Duplicate tenant", func(t *testing.T) {
		path := write("dup.yaml", "tenants:\n  - id: GSG\n  - id: GSG\n")
		_, err := LoadTenantProfiles(path)
		assert.ErrorContains(t, err, "repeats tenant")
	})

	t.Run("Empty file", func(t *testing.T) {
		path := write("empty.yaml", "tenants: []\n")
		_, err := LoadTenantProfiles(path)
		assert.ErrorContains(t, err, "names no tenants")
	})
}
