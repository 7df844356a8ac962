package interfaces

import (
	"context"

	ecomodels "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Models"
)

// ReadingRepository is the append-only store of sensor readings.
// Inserts are serialized so ids and created_at grow together.
type ReadingRepository interface {
	// Insert assigns id and created_at and durably writes the reading
	Insert(ctx context.Context, in ecomodels.ReadingInput) (ecomodels.Reading, error)

	// Latest returns up to limit readings, newest first. limit must be positive.
	Latest(ctx context.Context, limit int) ([]ecomodels.Reading, error)

	// All returns every reading ordered by id
	All(ctx context.Context) ([]ecomodels.Reading, error)

	Count(ctx context.Context) (int64, error)

	// Page returns readings newest first, skipping offset rows
	Page(ctx context.Context, offset, limit int) ([]ecomodels.Reading, error)

	Ping(ctx context.Context) error
}
