package appointments

import (
	"context"
	"sync"
)

// MemorySequencer keeps per-year counters in process memory.
type MemorySequencer struct {
	mu       sync.Mutex
	counters map[int]int64
	seed     SeedFunc
}

// NewMemorySequencer creates a sequencer; seed may be nil to start every year at zero.
func NewMemorySequencer(seed SeedFunc) *MemorySequencer {
	return &MemorySequencer{counters: make(map[int]int64), seed: seed}
}

func (s *MemorySequencer) Next(ctx context.Context, year int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.counters[year]
	if !ok && s.seed != nil {
		seeded, err := s.seed(ctx, year)
		if err != nil {
			return 0, err
		}
		current = seeded
	}
	current++
	s.counters[year] = current
	return current, nil
}
