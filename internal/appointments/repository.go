package appointments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines the interface for appointment storage
type Repository interface {
	Create(ctx context.Context, appt *Appointment) error
	GetByID(ctx context.Context, id string) (*Appointment, error)
	ListByUser(ctx context.Context, userID string) ([]*Appointment, error)
	ListAll(ctx context.Context) ([]*Appointment, error)
	// Update persists every mutable field of appt.
	Update(ctx context.Context, appt *Appointment) error
	// UpdateEmailStatus writes only the delivery outcome column.
	UpdateEmailStatus(ctx context.Context, id string, status EmailStatus) error
	Delete(ctx context.Context, id string) error
	// CountConfirmedInYear counts appointments created in year whose status is Confirmed or Completed.
	CountConfirmedInYear(ctx context.Context, year int) (int64, error)
}

// InMemoryRepository is a Repository backed by a map, used in dev and tests.
type InMemoryRepository struct {
	mu           sync.RWMutex
	appointments map[string]*Appointment
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		appointments: make(map[string]*Appointment),
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkReferenceLocked(appt); err != nil {
		return err
	}
	r.appointments[appt.ID] = appt.Clone()
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	appt, ok := r.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return appt.Clone(), nil
}

func (r *InMemoryRepository) ListByUser(ctx context.Context, userID string) ([]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Appointment
	for _, appt := range r.appointments {
		if appt.UserID == userID {
			out = append(out, appt.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *InMemoryRepository) ListAll(ctx context.Context) ([]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Appointment, 0, len(r.appointments))
	for _, appt := range r.appointments {
		out = append(out, appt.Clone())
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appointments[appt.ID]; !ok {
		return ErrNotFound
	}
	if err := r.checkReferenceLocked(appt); err != nil {
		return err
	}
	r.appointments[appt.ID] = appt.Clone()
	return nil
}

func (r *InMemoryRepository) UpdateEmailStatus(ctx context.Context, id string, status EmailStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.appointments[id]
	if !ok {
		return ErrNotFound
	}
	appt.EmailStatus = status
	appt.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appointments[id]; !ok {
		return ErrNotFound
	}
	delete(r.appointments, id)
	return nil
}

func (r *InMemoryRepository) CountConfirmedInYear(ctx context.Context, year int) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	start, end := yearBounds(year)
	var n int64
	for _, appt := range r.appointments {
		if appt.CreatedAt.Before(start) || !appt.CreatedAt.Before(end) {
			continue
		}
		if appt.Status == StatusConfirmed || appt.Status == StatusCompleted {
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) checkReferenceLocked(appt *Appointment) error {
	ref := appt.Reference()
	if ref == "" {
		return nil
	}
	for id, other := range r.appointments {
		if id != appt.ID && other.Reference() == ref {
			return ErrDuplicateReference
		}
	}
	return nil
}

func sortNewestFirst(list []*Appointment) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

// yearBounds returns the half-open UTC interval [year-01-01, year+1-01-01).
func yearBounds(year int) (time.Time, time.Time) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0)
}
