package appointments

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// DefaultReferencePrefix is used when no prefix is configured.
const DefaultReferencePrefix = "SOBER"

var referencePattern = regexp.MustCompile(`^[A-Z]+-\d{4}-\d{6}$`)

// Sequencer hands out the next per-year reference counter value. Values are
// 1-based and never repeat for a year; gaps are allowed.
type Sequencer interface {
	Next(ctx context.Context, year int) (int64, error)
}

// SeedFunc returns the count of appointments already holding a reference in year.
// A sequencer calls it the first time it sees a year so numbering continues from existing data.
type SeedFunc func(ctx context.Context, year int) (int64, error)

// FormatReferenceID renders <PREFIX>-<YEAR>-<SEQ> with a six digit sequence.
func FormatReferenceID(prefix string, year int, seq int64) string {
	if prefix == "" {
		prefix = DefaultReferencePrefix
	}
	return fmt.Sprintf("%s-%04d-%06d", prefix, year, seq)
}

// ValidReferenceID reports whether id has the reference ID shape.
func ValidReferenceID(id string) bool {
	return referencePattern.MatchString(id)
}

// ReferenceGenerator combines a Sequencer with the configured prefix.
type ReferenceGenerator struct {
	prefix string
	seq    Sequencer
}

// NewReferenceGenerator builds a generator; an empty prefix falls back to SOBER.
func NewReferenceGenerator(prefix string, seq Sequencer) *ReferenceGenerator {
	if prefix == "" {
		prefix = DefaultReferencePrefix
	}
	return &ReferenceGenerator{prefix: prefix, seq: seq}
}

// Generate allocates the next reference ID for the calendar year of at (UTC).
func (g *ReferenceGenerator) Generate(ctx context.Context, at time.Time) (string, error) {
	year := at.UTC().Year()
	n, err := g.seq.Next(ctx, year)
	if err != nil {
		return "", fmt.Errorf("appointments: next reference sequence: %w", err)
	}
	return FormatReferenceID(g.prefix, year, n), nil
}
