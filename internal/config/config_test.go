package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
server:
  port: 8080
database:
  host: localhost
  user: rental
  database: rental
jwt:
  secret: "0123456789abcdef0123456789abcdef"
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout())
	assert.Equal(t, 3, cfg.Rental.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.RetryBackoff())
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL())
	assert.Equal(t, "@every 5m", cfg.Scheduler.BatteryTick)
	assert.Equal(t, "rental-events", cfg.Kafka.Topic)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.GetServerAddress())
	assert.Equal(t, "postgres://rental:@localhost:0/rental?sslmode=disable", cfg.GetDatabaseConnectionString())
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("BATTERY_TICK_SPEC", "@every 1m")

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "@every 1m", cfg.Scheduler.BatteryTick)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing port", "database: {host: h, user: u, database: d}\njwt: {secret: 0123456789abcdef0123456789abcdef}"},
		{"short secret", "server: {port: 1}\ndatabase: {host: h, user: u, database: d}\njwt: {secret: short}"},
		{"kafka without brokers", "server: {port: 1}\ndatabase: {host: h, user: u, database: d}\njwt: {secret: 0123456789abcdef0123456789abcdef}\nkafka: {enabled: true}"},
		{"malformed", "server: [port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetSecurityLevel(t *testing.T) {
	assert.Equal(t, SecurityPublic, GetSecurityLevel("GET /api/devices"))
	assert.Equal(t, SecurityAccess, GetSecurityLevel("POST /api/rentals"))
	assert.Equal(t, SecurityAdmin, GetSecurityLevel("POST /api/admin/rentals/{id}/close"))
	assert.Equal(t, SecurityAccess, GetSecurityLevel("GET /api/unknown"))
}
