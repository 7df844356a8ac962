package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadApiConfigDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("REALTIME_RELAY", "")
	t.Setenv("REALTIME_WINDOW", "")

	cfg, err := LoadApiConfig()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 10, cfg.Realtime.Window)
	assert.Equal(t, 16, cfg.Realtime.SendBuffer)
	assert.Equal(t, 25*time.Second, cfg.Realtime.PingInterval)
	assert.Equal(t, RelayLocal, cfg.Realtime.Relay)
	assert.Equal(t, time.UTC, cfg.LabelLocation())
}

func TestLoadApiConfigPostgresRequiresCredentials(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("POSTGRES_USER", "")
	t.Setenv("POSTGRES_PASSWORD", "")

	_, err := LoadApiConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_USER")
}

func TestLoadApiConfigPostgresDSN(t *testing.T) {
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("POSTGRES_USER", "eco")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_DB", "readings")

	cfg, err := LoadApiConfig()
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=eco password=secret dbname=readings sslmode=disable", cfg.GetDatabaseDSN())
}

func TestValidateRejectsBadRealtimeSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero window", func(c *Config) { c.Realtime.Window = 0 }, "REALTIME_WINDOW"},
		{"unknown relay", func(c *Config) { c.Realtime.Relay = "kafka" }, "REALTIME_RELAY"},
		{"bad tz", func(c *Config) { c.Realtime.LabelTZ = "Mars/Olympus" }, "REALTIME_LABEL_TZ"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "DB_DRIVER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Database: DatabaseConfig{Driver: DriverSQLite, SQLitePath: "x.db"},
				Realtime: RealtimeConfig{Window: 10, SendBuffer: 16, LabelTZ: "UTC", Relay: RelayLocal},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadIngestorConfigRequiresSecret(t *testing.T) {
	t.Setenv("INTERNAL_API_SECRET", "")
	_, err := LoadIngestorConfig()
	require.Error(t, err)

	t.Setenv("INTERNAL_API_SECRET", "s3cret")
	t.Setenv("BROKER_TLS", "true")
	t.Setenv("BROKER_HOST", "mqtt.local")
	cfg, err := LoadIngestorConfig()
	require.NoError(t, err)
	assert.Equal(t, "tcps://mqtt.local:1883", cfg.GetMQTTBrokerURL())
	assert.Equal(t, "ecotrack/readings/#", cfg.MQTT.Topic)
}

func TestGetStringSliceTrims(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " http://a.example , ,http://b.example")
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, getStringSlice("CORS_ALLOWED_ORIGINS", nil))
}

func TestApiServerHasNoWriteTimeout(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("WRITE_TIMEOUT", "10s")

	cfg, err := LoadApiConfig()
	require.NoError(t, err)
	assert.Zero(t, cfg.Server.WriteTimeout)
	assert.Equal(t, 5*time.Second, cfg.Realtime.WriteTimeout)
}
