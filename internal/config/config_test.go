package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, DefaultTxTimeout, cfg.TxTimeout)
	assert.Equal(t, DefaultIntegritySchedule, cfg.IntegritySchedule)
	assert.False(t, cfg.DeferRoundAdvance)
	assert.Error(t, cfg.Validate(), "jwt secret is required")
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "equb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /var/lib/equb/ledger.db
listen_addr: ":9090"
log_level: debug
jwt_secret: from-file
tx_timeout: 10s
integrity_schedule: "*/10 * * * *"
defer_round_advance: true
`), 0o600))

	t.Setenv("EQUB_JWT_SECRET", "from-env")
	t.Setenv("EQUB_TOKEN_TTL", "2h")
	t.Setenv("EQUB_INTEGRITY_SCHEDULE", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/equb/ledger.db", cfg.DBPath)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, 10*time.Second, cfg.TxTimeout)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Empty(t, cfg.IntegritySchedule, "an empty env value disables the sweep")
	assert.True(t, cfg.DeferRoundAdvance)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("EQUB_TX_TIMEOUT", "soon")
	_, err = Load("")
	assert.ErrorContains(t, err, "EQUB_TX_TIMEOUT")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.JWTSecret = "s"
	cfg.TxTimeout = 0
	cfg.DBPath = " "
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "db_path")
	assert.ErrorContains(t, err, "tx_timeout")
}
