package health

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	config "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Config"
)

// Pinger is anything whose liveness can be probed
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports the state of the service dependencies
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]Pinger
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]Pinger)}
}

// Register adds a named dependency check
func (h *HealthChecker) Register(name string, p Pinger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = p
}

// GetHealthStatus returns the current health status
func (h *HealthChecker) GetHealthStatus(ctx context.Context) map[string]interface{} {
	h.mu.RLock()
	pingers := make(map[string]Pinger, len(h.checks))
	for name, p := range h.checks {
		pingers[name] = p
	}
	h.mu.RUnlock()

	checks := make(map[string]interface{}, len(pingers))
	overall := "ok"

	for name, p := range pingers {
		if err := p.Ping(ctx); err != nil {
			overall = "degraded"
			checks[name] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
			continue
		}
		checks[name] = map[string]interface{}{"status": "ok"}
	}

	return map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"status":    overall,
		"checks":    checks,
	}
}

// DatabaseManager owns schema setup for the PostgreSQL store
type DatabaseManager struct {
	db *sql.DB
}

func NewDatabaseManager(db *sql.DB) *DatabaseManager {
	return &DatabaseManager{db: db}
}

// ConnectPostgresWithTimeout creates a PostgreSQL connection with a timeout context
func ConnectPostgresWithTimeout(cfg *config.Config, timeout time.Duration) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open PostgreSQL connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MinConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

const createReadingsTable = `
	CREATE TABLE IF NOT EXISTS readings (
		id                      BIGSERIAL PRIMARY KEY,
		hardware_sensor_id      TEXT NOT NULL DEFAULT 'unknown',
		hardware_timestamp      BIGINT NOT NULL DEFAULT 0,
		age_years               DOUBLE PRECISION NOT NULL DEFAULT 0,
		cpu_usage               DOUBLE PRECISION NOT NULL DEFAULT 0,
		ram_usage               DOUBLE PRECISION NOT NULL DEFAULT 0,
		battery_health          DOUBLE PRECISION NOT NULL DEFAULT 0,
		os                      TEXT NOT NULL DEFAULT 'unknown',
		win11_compat            BOOLEAN NOT NULL DEFAULT false,
		energy_sensor_id        TEXT NOT NULL DEFAULT 'unknown',
		energy_timestamp        BIGINT NOT NULL DEFAULT 0,
		power_watts             DOUBLE PRECISION NOT NULL DEFAULT 0,
		active_devices          DOUBLE PRECISION NOT NULL DEFAULT 0,
		overheating             DOUBLE PRECISION NOT NULL DEFAULT 0,
		co2_equiv_g             DOUBLE PRECISION NOT NULL DEFAULT 0,
		network_sensor_id       TEXT NOT NULL DEFAULT 'unknown',
		network_timestamp       BIGINT NOT NULL DEFAULT 0,
		network_load_mbps       DOUBLE PRECISION NOT NULL DEFAULT 0,
		requests_per_min        DOUBLE PRECISION NOT NULL DEFAULT 0,
		cloud_dependency_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
		eco_score               DOUBLE PRECISION NOT NULL DEFAULT 0,
		obsolescence_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
		bigtech_dependency      DOUBLE PRECISION NOT NULL DEFAULT 0,
		co2_savings_kg_year     DOUBLE PRECISION NOT NULL DEFAULT 0,
		recommendations         JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at              TIMESTAMPTZ NOT NULL
	);
`

const createReadingIndexes = `
	CREATE INDEX IF NOT EXISTS idx_readings_created_at_desc ON readings (created_at DESC, id DESC);
`

// CreateTables creates the readings table if it doesn't exist
func (dm *DatabaseManager) CreateTables(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, query := range []string{createReadingsTable, createReadingIndexes} {
		if _, err := dm.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

func (dm *DatabaseManager) Close() error {
	if dm.db != nil {
		return dm.db.Close()
	}
	return nil
}
