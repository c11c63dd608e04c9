package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkpay/backend/services/parking-service/internal/tariff"
)

const sampleYAML = `
http:
  port: "9000"
database:
  dsn: postgres://parking@localhost/parking
auth:
  jwtSecret: secret
  adminKeyHash: $2a$10$abcdefghijklmnopqrstuu
tariff:
  tolerance: "0.25"
  rates:
    car:
      bands:
        - {name: first 9 min, range: "1-9", fee: "0.10"}
        - {name: rest of first hour, range: "10-59", fee: "0.25"}
        - {name: fraction, range: "1-59", fee: "0.25"}
        - {name: hour, range: "60", fee: "0.60"}
`

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parking.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("CONFIG_FILE", path)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	writeConfig(t, sampleYAML)
	t.Setenv("PARKING_REDIS_RATE_TTL", "90s")
	t.Setenv("PARKING_HTTP_PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.HTTPAddress())
	assert.Equal(t, 90*time.Second, cfg.Redis.RateTTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 256, cfg.Audit.Buffer)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	require.Contains(t, cfg.Tariff.Rates, "car")
	assert.Len(t, cfg.Tariff.Rates["car"].Bands, 4)

	tolerance, err := cfg.ToleranceAmount()
	require.NoError(t, err)
	assert.Equal(t, "0.25", tolerance.StringFixed(2))
}

func TestLoadRequiresDSN(t *testing.T) {
	writeConfig(t, "auth:\n  jwtSecret: s\n  adminKeyHash: h\n")

	_, err := Load()
	assert.ErrorContains(t, err, "database dsn required")
}

func TestValidateRejectsBrokenRateTable(t *testing.T) {
	cfg := Default()
	cfg.Database.DSN = "postgres://x"
	cfg.Auth.JWTSecret = "s"
	cfg.Auth.AdminKeyHash = "h"

	require.NoError(t, cfg.Validate())

	cfg.Tariff.Tolerance = "0"
	assert.ErrorContains(t, cfg.Validate(), "tolerance")

	cfg.Tariff.Tolerance = "0.50"
	cfg.Tariff.Rates = map[string]tariff.RateTableSpec{
		"car": {Bands: []tariff.BandSpec{{Range: "1-9", Fee: "0.10"}}},
	}
	assert.ErrorContains(t, cfg.Validate(), "tariff rates")
}
