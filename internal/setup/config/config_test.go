package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fibgame/fibs/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".toml"), []byte(content), 0o600))
}

func TestLoadFrom(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, "common", `
version = 1

[postgresql]
host = "db"
port = 5432

[stream]
key = "events:test"

[identity]
provider = "static"

[identity.static_tokens.tok1]
user_id = "u1"
display_name = "Ada"
`)
	writeConfig(t, dir, "rest", `
version = 1
port = 9000

[rate_limit]
requests_per_second = 2.5
burst_size = 4
`)
	writeConfig(t, dir, "worker", `
version = 1

[reactor]
batch_size = 10
max_deliveries = 3
`)

	cfg, err := config.LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "db", cfg.Common.PostgreSQL.Host)
	assert.Equal(t, "events:test", cfg.Common.Stream.Key)
	assert.Equal(t, "static", cfg.Common.Identity.Provider)
	assert.Equal(t, config.StaticIdentity{UserID: "u1", DisplayName: "Ada"}, cfg.Common.Identity.StaticTokens["tok1"])
	assert.Equal(t, 9000, cfg.REST.Port)
	assert.InDelta(t, 2.5, cfg.REST.RateLimit.RequestsPerSecond, 0.001)
	assert.Equal(t, int64(10), cfg.Worker.Reactor.BatchSize)
	assert.Equal(t, 3, cfg.Worker.Reactor.MaxDeliveries)
}

func TestLoadFromErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		files   map[string]string
		wantErr error
	}{
		{
			name:    "missing file",
			files:   map[string]string{"common": "version = 1", "rest": "version = 1"},
			wantErr: config.ErrConfigFileNotFound,
		},
		{
			name:    "missing version",
			files:   map[string]string{"common": "", "rest": "version = 1", "worker": "version = 1"},
			wantErr: config.ErrConfigVersionMissing,
		},
		{
			name:    "version mismatch",
			files:   map[string]string{"common": "version = 1", "rest": "version = 1", "worker": "version = 7"},
			wantErr: config.ErrConfigVersionMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			for name, content := range tt.files {
				writeConfig(t, dir, name, content)
			}

			_, err := config.LoadFrom(dir)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSampleConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFrom("../../../config")
	require.NoError(t, err)
	assert.Equal(t, "events:fibs", cfg.Common.Stream.Key)
	assert.Equal(t, 5, cfg.Worker.Reactor.MaxDeliveries)
}
