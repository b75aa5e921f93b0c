package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medbook/medbook/internal/platform/events"
)

// UpdateInput is a partial update; nil fields keep their stored value.
// Date must already be normalized to midnight UTC by the caller.
type UpdateInput struct {
	PatientName *string
	DoctorName  *string
	Date        *time.Time
	Time        *string
	Status      *Status
}

// Repository is the persistence contract for appointments. Implementations
// carry the physical half of the scheduling invariant: a uniqueness
// constraint on (doctor, date, time) over non-cancelled rows. A write that
// violates it fails with ConflictError, never a generic storage error.
//
// Every successful mutation publishes the corresponding event on the
// repository's bus after the mutation commits, never before.
type Repository interface {
	// ListAll returns all appointments ordered by (date, time) ascending,
	// insertion order as the tiebreak for equal keys.
	ListAll(ctx context.Context) ([]*Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// FindConflict returns a non-cancelled appointment occupying the given
	// slot, or (nil, nil) when the slot is free. excludeID, when non-nil,
	// removes that appointment from consideration.
	FindConflict(ctx context.Context, doctorName string, date time.Time, timeOfDay string, excludeID *uuid.UUID) (*Appointment, error)
	Create(ctx context.Context, a *Appointment) error
	Update(ctx context.Context, id uuid.UUID, updates UpdateInput) (*Appointment, error)
	// Delete hard-removes the appointment and returns the removed record.
	Delete(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Events is the bus the repository publishes mutation events on.
	Events() *events.Bus
}
