package implementation

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/lib/pq"
	ecomodels "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Models"
)

const readingColumns = `id,
	hardware_sensor_id, hardware_timestamp, age_years, cpu_usage, ram_usage, battery_health, os, win11_compat,
	energy_sensor_id, energy_timestamp, power_watts, active_devices, overheating, co2_equiv_g,
	network_sensor_id, network_timestamp, network_load_mbps, requests_per_min, cloud_dependency_score,
	eco_score, obsolescence_score, bigtech_dependency, co2_savings_kg_year, recommendations,
	created_at`

// PostgresReadingRepository stores readings in PostgreSQL through database/sql
type PostgresReadingRepository struct {
	db    *sql.DB
	clock *monotonicClock

	insertMu sync.Mutex
	seeded   bool
}

func NewPostgresReadingRepository(db *sql.DB) *PostgresReadingRepository {
	return &PostgresReadingRepository{db: db, clock: newMonotonicClock()}
}

func (r *PostgresReadingRepository) Insert(ctx context.Context, in ecomodels.ReadingInput) (ecomodels.Reading, error) {
	in, err := prepareInput(in)
	if err != nil {
		return ecomodels.Reading{}, err
	}

	r.insertMu.Lock()
	defer r.insertMu.Unlock()

	if !r.seeded {
		var last sql.NullTime
		if err := r.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM readings`).Scan(&last); err != nil {
			return ecomodels.Reading{}, storeErr("insert", err)
		}
		if last.Valid {
			r.clock.Observe(last.Time)
		}
		r.seeded = true
	}

	reading := ecomodels.Reading{ReadingInput: in, CreatedAt: r.clock.Next()}

	query := `
		INSERT INTO readings (
			hardware_sensor_id, hardware_timestamp, age_years, cpu_usage, ram_usage, battery_health, os, win11_compat,
			energy_sensor_id, energy_timestamp, power_watts, active_devices, overheating, co2_equiv_g,
			network_sensor_id, network_timestamp, network_load_mbps, requests_per_min, cloud_dependency_score,
			eco_score, obsolescence_score, bigtech_dependency, co2_savings_kg_year, recommendations,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
		RETURNING id
	`

	err = r.db.QueryRowContext(ctx, query,
		in.HardwareSensorID, in.HardwareTimestamp, in.AgeYears, in.CPUUsage, in.RAMUsage, in.BatteryHealth, in.OS, in.Win11Compat,
		in.EnergySensorID, in.EnergyTimestamp, in.PowerWatts, in.ActiveDevices, in.Overheating, in.CO2EquivG,
		in.NetworkSensorID, in.NetworkTimestamp, in.NetworkLoadMbps, in.RequestsPerMin, in.CloudDependencyScore,
		in.EcoScore, in.ObsolescenceScore, in.BigtechDependency, in.CO2SavingsKgYear, []byte(in.Recommendations),
		reading.CreatedAt,
	).Scan(&reading.ID)
	if err != nil {
		return ecomodels.Reading{}, storeErr("insert", err)
	}

	return reading, nil
}

func (r *PostgresReadingRepository) Latest(ctx context.Context, limit int) ([]ecomodels.Reading, error) {
	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	return r.query(ctx, "latest",
		`SELECT `+readingColumns+` FROM readings ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

func (r *PostgresReadingRepository) All(ctx context.Context) ([]ecomodels.Reading, error) {
	return r.query(ctx, "all", `SELECT `+readingColumns+` FROM readings ORDER BY id ASC`)
}

func (r *PostgresReadingRepository) Page(ctx context.Context, offset, limit int) ([]ecomodels.Reading, error) {
	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	return r.query(ctx, "page",
		`SELECT `+readingColumns+` FROM readings ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
}

func (r *PostgresReadingRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}

func (r *PostgresReadingRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return storeErr("ping", r.db.PingContext(ctx))
}

func (r *PostgresReadingRepository) query(ctx context.Context, op, query string, args ...interface{}) ([]ecomodels.Reading, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	readings, err := scanReadings(rows)
	if err != nil {
		return nil, storeErr(op, err)
	}
	return readings, nil
}

func scanReadings(rows *sql.Rows) ([]ecomodels.Reading, error) {
	readings := make([]ecomodels.Reading, 0)

	for rows.Next() {
		var rd ecomodels.Reading
		var recommendations []byte

		if err := rows.Scan(
			&rd.ID,
			&rd.HardwareSensorID, &rd.HardwareTimestamp, &rd.AgeYears, &rd.CPUUsage, &rd.RAMUsage, &rd.BatteryHealth, &rd.OS, &rd.Win11Compat,
			&rd.EnergySensorID, &rd.EnergyTimestamp, &rd.PowerWatts, &rd.ActiveDevices, &rd.Overheating, &rd.CO2EquivG,
			&rd.NetworkSensorID, &rd.NetworkTimestamp, &rd.NetworkLoadMbps, &rd.RequestsPerMin, &rd.CloudDependencyScore,
			&rd.EcoScore, &rd.ObsolescenceScore, &rd.BigtechDependency, &rd.CO2SavingsKgYear, &recommendations,
			&rd.CreatedAt,
		); err != nil {
			return nil, err
		}

		rd.Recommendations = ensureRecommendations(recommendations)
		rd.CreatedAt = rd.CreatedAt.UTC()
		readings = append(readings, rd)
	}

	return readings, rows.Err()
}
