package appointments

import (
	"context"
	"fmt"
)

// PostgresSequencer allocates reference counters from the reference_counters
// table in a single statement. The first allocation for a year is seeded from
// the count of Confirmed/Completed appointments created that year.
type PostgresSequencer struct {
	db DB
}

// NewPostgresSequencer creates a sequencer backed by Postgres.
func NewPostgresSequencer(db DB) *PostgresSequencer {
	if db == nil {
		panic("appointments: db required")
	}
	return &PostgresSequencer{db: db}
}

const nextSequenceSQL = `
	INSERT INTO reference_counters (year, value)
	VALUES ($1, (
		SELECT COUNT(*) FROM appointments
		WHERE created_at >= $2 AND created_at < $3 AND status IN ('Confirmed', 'Completed')
	) + 1)
	ON CONFLICT (year) DO UPDATE SET value = reference_counters.value + 1
	RETURNING value`

func (s *PostgresSequencer) Next(ctx context.Context, year int) (int64, error) {
	start, end := yearBounds(year)
	var n int64
	if err := s.db.QueryRow(ctx, nextSequenceSQL, year, start, end).Scan(&n); err != nil {
		return 0, fmt.Errorf("appointments: allocate reference sequence: %w", err)
	}
	return n, nil
}
