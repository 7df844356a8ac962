package implementation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ecomodels "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Models"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// readingRecord is the gorm row for a reading
type readingRecord struct {
	ID int64 `gorm:"primaryKey;autoIncrement"`

	HardwareSensorID  string `gorm:"size:50;not null"`
	HardwareTimestamp int64
	AgeYears          float64
	CPUUsage          float64 `gorm:"column:cpu_usage"`
	RAMUsage          float64 `gorm:"column:ram_usage"`
	BatteryHealth     float64
	OS                string `gorm:"column:os;size:20"`
	Win11Compat       bool   `gorm:"column:win11_compat"`

	EnergySensorID  string `gorm:"size:50;not null"`
	EnergyTimestamp int64
	PowerWatts      float64
	ActiveDevices   float64
	Overheating     float64
	CO2EquivG       float64 `gorm:"column:co2_equiv_g"`

	NetworkSensorID      string `gorm:"size:50;not null"`
	NetworkTimestamp     int64
	NetworkLoadMbps      float64
	RequestsPerMin       float64
	CloudDependencyScore float64

	EcoScore          float64
	ObsolescenceScore float64
	BigtechDependency float64
	CO2SavingsKgYear  float64        `gorm:"column:co2_savings_kg_year"`
	Recommendations   datatypes.JSON `gorm:"type:json"`

	CreatedAt time.Time `gorm:"index:idx_readings_created_at;not null"`
}

func (readingRecord) TableName() string { return "readings" }

func toRecord(rd ecomodels.Reading) readingRecord {
	in := rd.ReadingInput
	return readingRecord{
		ID:                   rd.ID,
		HardwareSensorID:     in.HardwareSensorID,
		HardwareTimestamp:    in.HardwareTimestamp,
		AgeYears:             in.AgeYears,
		CPUUsage:             in.CPUUsage,
		RAMUsage:             in.RAMUsage,
		BatteryHealth:        in.BatteryHealth,
		OS:                   in.OS,
		Win11Compat:          in.Win11Compat,
		EnergySensorID:       in.EnergySensorID,
		EnergyTimestamp:      in.EnergyTimestamp,
		PowerWatts:           in.PowerWatts,
		ActiveDevices:        in.ActiveDevices,
		Overheating:          in.Overheating,
		CO2EquivG:            in.CO2EquivG,
		NetworkSensorID:      in.NetworkSensorID,
		NetworkTimestamp:     in.NetworkTimestamp,
		NetworkLoadMbps:      in.NetworkLoadMbps,
		RequestsPerMin:       in.RequestsPerMin,
		CloudDependencyScore: in.CloudDependencyScore,
		EcoScore:             in.EcoScore,
		ObsolescenceScore:    in.ObsolescenceScore,
		BigtechDependency:    in.BigtechDependency,
		CO2SavingsKgYear:     in.CO2SavingsKgYear,
		Recommendations:      datatypes.JSON(in.Recommendations),
		CreatedAt:            rd.CreatedAt,
	}
}

func (rec readingRecord) toReading() ecomodels.Reading {
	return ecomodels.Reading{
		ID: rec.ID,
		ReadingInput: ecomodels.ReadingInput{
			HardwareSensorID:     rec.HardwareSensorID,
			HardwareTimestamp:    rec.HardwareTimestamp,
			AgeYears:             rec.AgeYears,
			CPUUsage:             rec.CPUUsage,
			RAMUsage:             rec.RAMUsage,
			BatteryHealth:        rec.BatteryHealth,
			OS:                   rec.OS,
			Win11Compat:          rec.Win11Compat,
			EnergySensorID:       rec.EnergySensorID,
			EnergyTimestamp:      rec.EnergyTimestamp,
			PowerWatts:           rec.PowerWatts,
			ActiveDevices:        rec.ActiveDevices,
			Overheating:          rec.Overheating,
			CO2EquivG:            rec.CO2EquivG,
			NetworkSensorID:      rec.NetworkSensorID,
			NetworkTimestamp:     rec.NetworkTimestamp,
			NetworkLoadMbps:      rec.NetworkLoadMbps,
			RequestsPerMin:       rec.RequestsPerMin,
			CloudDependencyScore: rec.CloudDependencyScore,
			EcoScore:             rec.EcoScore,
			ObsolescenceScore:    rec.ObsolescenceScore,
			BigtechDependency:    rec.BigtechDependency,
			CO2SavingsKgYear:     rec.CO2SavingsKgYear,
			Recommendations:      ensureRecommendations(rec.Recommendations),
		},
		CreatedAt: rec.CreatedAt.UTC(),
	}
}

func toReadings(recs []readingRecord) []ecomodels.Reading {
	out := make([]ecomodels.Reading, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toReading())
	}
	return out
}

// GormReadingRepository stores readings through gorm. It backs the sqlite
// driver used for local runs and tests.
type GormReadingRepository struct {
	db    *gorm.DB
	clock *monotonicClock

	insertMu sync.Mutex
}

// OpenSQLite opens (or creates) a sqlite database file
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one connection: shared-cache table locks fail fast instead of waiting
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// NewGormReadingRepository migrates the readings table and seeds the clock
// from the newest stored row.
func NewGormReadingRepository(db *gorm.DB) (*GormReadingRepository, error) {
	if err := db.AutoMigrate(&readingRecord{}); err != nil {
		return nil, fmt.Errorf("migrate readings: %w", err)
	}

	repo := &GormReadingRepository{db: db, clock: newMonotonicClock()}

	var last readingRecord
	err := db.Order("created_at desc").Limit(1).Take(&last).Error
	switch {
	case err == nil:
		repo.clock.Observe(last.CreatedAt)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("seed clock: %w", err)
	}

	return repo, nil
}

func (r *GormReadingRepository) Insert(ctx context.Context, in ecomodels.ReadingInput) (ecomodels.Reading, error) {
	in, err := prepareInput(in)
	if err != nil {
		return ecomodels.Reading{}, err
	}

	r.insertMu.Lock()
	defer r.insertMu.Unlock()

	rec := toRecord(ecomodels.Reading{ReadingInput: in, CreatedAt: r.clock.Next()})
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return ecomodels.Reading{}, storeErr("insert", err)
	}
	return rec.toReading(), nil
}

func (r *GormReadingRepository) Latest(ctx context.Context, limit int) ([]ecomodels.Reading, error) {
	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	var recs []readingRecord
	if err := r.db.WithContext(ctx).Order("created_at desc").Order("id desc").Limit(limit).Find(&recs).Error; err != nil {
		return nil, storeErr("latest", err)
	}
	return toReadings(recs), nil
}

func (r *GormReadingRepository) All(ctx context.Context) ([]ecomodels.Reading, error) {
	var recs []readingRecord
	if err := r.db.WithContext(ctx).Order("id asc").Find(&recs).Error; err != nil {
		return nil, storeErr("all", err)
	}
	return toReadings(recs), nil
}

func (r *GormReadingRepository) Page(ctx context.Context, offset, limit int) ([]ecomodels.Reading, error) {
	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	var recs []readingRecord
	err := r.db.WithContext(ctx).
		Order("created_at desc").Order("id desc").
		Offset(offset).Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, storeErr("page", err)
	}
	return toReadings(recs), nil
}

func (r *GormReadingRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&readingRecord{}).Count(&n).Error; err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}

func (r *GormReadingRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return storeErr("ping", err)
	}
	return storeErr("ping", sqlDB.PingContext(ctx))
}
