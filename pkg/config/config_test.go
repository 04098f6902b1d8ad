package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/ticket-auction/pkg/config"
)

var envKeys = []string{
	"LOG_LEVEL", "TICKET_DENOM", "ADDRESS_PREFIX", "ADMIN_ADDRESS", "TREASURY_ADDRESS",
	"STORE_DRIVER", "DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "BADGER_PATH",
	"GATEWAY_RPS", "GATEWAY_BURST", "OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

// TestLoad_Defaults verifies the node boots on an in-memory store with
// no environment at all.
func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := config.Load()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "utkt", cfg.Denom)
	assert.Equal(t, "tkt", cfg.AddressPrefix)
	assert.Equal(t, "admin-wallet", cfg.AdminAddress)
	assert.Empty(t, cfg.TreasuryAddress)
	assert.Equal(t, config.DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, 0.0, cfg.GatewayRPS)
	assert.Equal(t, 10, cfg.GatewayBurst)
	assert.False(t, cfg.OTelEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://production:5432/db")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("GATEWAY_RPS", "2.5")
	t.Setenv("GATEWAY_BURST", "not-a-number")
	t.Setenv("OTEL_ENABLED", "true")

	cfg := config.Load()

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, config.DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "postgres://production:5432/db", cfg.DatabaseURL)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 2.5, cfg.GatewayRPS)
	assert.Equal(t, 10, cfg.GatewayBurst, "malformed numbers keep the default")
	assert.True(t, cfg.OTelEnabled)
}

func TestLoadFile_OverlaysEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_ADDR", "redis:6379")

	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: warn
admin_address: ops-wallet
treasury_address: treasury-wallet
store:
  driver: badger
  badger_path: /var/lib/ticket
gateway:
  rps: 5
  burst: 2
otel:
  enabled: true
`), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "ops-wallet", cfg.AdminAddress)
	assert.Equal(t, "treasury-wallet", cfg.TreasuryAddress)
	assert.Equal(t, config.DriverBadger, cfg.StoreDriver)
	assert.Equal(t, "/var/lib/ticket", cfg.BadgerPath)
	assert.Equal(t, "redis:6379", cfg.RedisAddr, "env value kept when the file is silent")
	assert.Equal(t, 5.0, cfg.GatewayRPS)
	assert.Equal(t, 2, cfg.GatewayBurst)
	assert.True(t, cfg.OTelEnabled)
}

func TestParse_SchemaViolations(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown driver", "store:\n  driver: mongo\n"},
		{"unknown key", "listen: :8080\n"},
		{"bad admin address", "admin_address: Admin\n"},
		{"negative burst", "gateway:\n  burst: -1\n"},
		{"wrong type", "otel:\n  enabled: sometimes\n"},
		{"fractional burst", "gateway:\n  burst: 1.5\n"},
		{"redis db out of range", "store:\n  redis_db: 16\n"},
		{"bad address prefix", "address_prefix: TKT\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestValidate_NumericAndBooleanFields(t *testing.T) {
	doc := []byte(`
address_prefix: auction
store:
  driver: redis
  redis_db: 15
gateway:
  rps: 0.5
  burst: 0
otel:
  enabled: false
`)
	require.NoError(t, config.Validate(doc))

	clearEnv(t)
	cfg, err := config.Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, "auction", cfg.AddressPrefix)
	assert.Equal(t, 15, cfg.RedisDB)
	assert.Equal(t, 0.5, cfg.GatewayRPS)
	assert.Equal(t, 0, cfg.GatewayBurst)
}

func TestParse_Empty(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, config.DriverMemory, cfg.StoreDriver)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := config.NewLogger(&buf, "warn")

	logger.Info("dropped")
	assert.Zero(t, buf.Len())
	logger.Warn("kept", "ticket", 1)
	assert.Contains(t, buf.String(), `"msg":"kept"`)
	assert.Contains(t, buf.String(), `"ticket":1`)
}
