package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medbook/medbook/internal/platform/events"
)

// memRepo is a map-backed Repository used by the test suites and by
// `serve` when IN_MEMORY is set. It enforces the same uniqueness constraint
// as the Postgres store, under a mutex, so concurrent writes race against a
// real constraint rather than a pre-check.
type memRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Appointment
	seq   map[uuid.UUID]int // insertion order, tiebreak for ListAll
	next  int
	bus   *events.Bus
}

// NewMemRepo creates an empty in-memory Repository publishing on bus.
func NewMemRepo(bus *events.Bus) Repository {
	return &memRepo{
		items: make(map[uuid.UUID]*Appointment),
		seq:   make(map[uuid.UUID]int),
		bus:   bus,
	}
}

func (r *memRepo) Events() *events.Bus { return r.bus }

func (r *memRepo) ListAll(_ context.Context) ([]*Appointment, error) {
	r.mu.Lock()
	items := make([]*Appointment, 0, len(r.items))
	for _, a := range r.items {
		items = append(items, copyOf(a))
	}
	seq := make(map[uuid.UUID]int, len(r.seq))
	for id, n := range r.seq {
		seq[id] = n
	}
	r.mu.Unlock()

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.Before(items[j].Date)
		}
		if items[i].Time != items[j].Time {
			return items[i].Time < items[j].Time
		}
		return seq[items[i].ID] < seq[items[j].ID]
	})
	return items, nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return copyOf(a), nil
}

func (r *memRepo) FindConflict(_ context.Context, doctorName string, date time.Time, timeOfDay string, excludeID *uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyOf(r.findConflictLocked(doctorName, date, timeOfDay, excludeID)), nil
}

func (r *memRepo) findConflictLocked(doctorName string, date time.Time, timeOfDay string, excludeID *uuid.UUID) *Appointment {
	for _, a := range r.items {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.Status != StatusCancelled && a.DoctorName == doctorName &&
			a.Date.Equal(date) && a.Time == timeOfDay {
			return a
		}
	}
	return nil
}

func (r *memRepo) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	if existing := r.findConflictLocked(a.DoctorName, a.Date, a.Time, nil); existing != nil {
		r.mu.Unlock()
		return &ConflictError{
			DoctorName: a.DoctorName,
			Date:       a.Date,
			Time:       a.Time,
			ExistingID: existing.ID,
		}
	}
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	r.items[a.ID] = copyOf(a)
	r.seq[a.ID] = r.next
	r.next++
	r.mu.Unlock()

	r.bus.Publish(EventCreated, copyOf(a))
	return nil
}

func (r *memRepo) Update(_ context.Context, id uuid.UUID, updates UpdateInput) (*Appointment, error) {
	r.mu.Lock()
	a, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return nil, &NotFoundError{ID: id}
	}

	next := copyOf(a)
	if updates.PatientName != nil {
		next.PatientName = *updates.PatientName
	}
	if updates.DoctorName != nil {
		next.DoctorName = *updates.DoctorName
	}
	if updates.Date != nil {
		next.Date = *updates.Date
	}
	if updates.Time != nil {
		next.Time = *updates.Time
	}
	if updates.Status != nil {
		next.Status = *updates.Status
	}

	if next.Status != StatusCancelled {
		if existing := r.findConflictLocked(next.DoctorName, next.Date, next.Time, &id); existing != nil {
			r.mu.Unlock()
			return nil, &ConflictError{
				DoctorName: next.DoctorName,
				Date:       next.Date,
				Time:       next.Time,
				ExistingID: existing.ID,
			}
		}
	}

	next.UpdatedAt = time.Now().UTC()
	r.items[id] = next
	r.mu.Unlock()

	result := copyOf(next)
	r.bus.Publish(mutationEventKind(updates), result)
	return result, nil
}

func (r *memRepo) Delete(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	a, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return nil, &NotFoundError{ID: id}
	}
	delete(r.items, id)
	delete(r.seq, id)
	r.mu.Unlock()

	removed := copyOf(a)
	r.bus.Publish(EventDeleted, removed)
	return removed, nil
}

func copyOf(a *Appointment) *Appointment {
	if a == nil {
		return nil
	}
	dup := *a
	return &dup
}
