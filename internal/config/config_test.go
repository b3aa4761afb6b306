package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tenders.yml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 25*time.Second, cfg.FetchTimeout())
	assert.Equal(t, 4, cfg.DocumentBatchSize)
	assert.Equal(t, 4, cfg.SourceParallelism)
	assert.True(t, cfg.BlockPrivateNetworks)
}

func TestLoadFileAndEnv(t *testing.T) {
	p := writeConfig(t, "listen_addr: \":9000\"\ndocument_batch_size: 2\nblock_private_networks: false\n")
	t.Setenv("TENDERS_LOG_LEVEL", "debug")

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 2, cfg.DocumentBatchSize)
	assert.False(t, cfg.BlockPrivateNetworks)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsBadValues(t *testing.T) {
	p := writeConfig(t, "source_parallelism: 0\n")

	_, err := Load(p)
	assert.ErrorIs(t, err, ErrConfigValue)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, ErrConfigRead)
}
