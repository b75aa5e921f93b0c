package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medbook/medbook/internal/platform/events"
)

// CreateInput is the payload for booking a new appointment.
type CreateInput struct {
	PatientName string `json:"patientName"`
	DoctorName  string `json:"doctorName"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

// UpdateRequest is a partial update; nil fields are left unchanged.
type UpdateRequest struct {
	PatientName *string `json:"patientName"`
	DoctorName  *string `json:"doctorName"`
	Date        *string `json:"date"`
	Time        *string `json:"time"`
	Status      *string `json:"status"`
}

// Service enforces the no-double-booking invariant over the store and
// re-publishes every store event on its own bus, so outer layers only need
// to attach here.
//
// The conflict pre-check is advisory: two concurrent writes can both pass it
// before either commits. The store's unique constraint settles that race and
// surfaces the same ConflictError the pre-check would have produced.
type Service struct {
	repo Repository
	bus  *events.Bus
	log  zerolog.Logger
}

// NewService wires a Service over repo. The service subscribes to the
// store's events at construction and forwards them unchanged.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	s := &Service{
		repo: repo,
		bus:  events.NewBus(logger),
		log:  logger,
	}
	if _, err := repo.Events().Subscribe(func(kind string, payload any) {
		s.bus.Publish(kind, payload)
	}); err != nil {
		// Only possible with a nil handler; treat as a wiring bug.
		panic(fmt.Sprintf("appointment: subscribe to store events: %v", err))
	}
	return s
}

// Subscribe attaches a handler to the service's event stream and returns
// the token that detaches it again.
func (s *Service) Subscribe(h events.Handler) (events.Subscription, error) { return s.bus.Subscribe(h) }

// Unsubscribe detaches the handler registered under sub.
func (s *Service) Unsubscribe(sub events.Subscription) { s.bus.Unsubscribe(sub) }

// Create books a new appointment with status scheduled.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Appointment, error) {
	var missing []string
	if in.PatientName == "" {
		missing = append(missing, "patientName")
	}
	if in.DoctorName == "" {
		missing = append(missing, "doctorName")
	}
	if in.Date == "" {
		missing = append(missing, "date")
	}
	if in.Time == "" {
		missing = append(missing, "time")
	}
	if len(missing) > 0 {
		err := missingFieldsError(missing)
		s.bus.Publish(EventValidationError, err)
		return nil, err
	}

	date, verr := s.validateSlot(in.Date, in.Time)
	if verr != nil {
		s.bus.Publish(EventValidationError, verr)
		return nil, verr
	}

	existing, err := s.repo.FindConflict(ctx, in.DoctorName, date, in.Time, nil)
	if err != nil {
		return nil, fmt.Errorf("conflict lookup: %w", err)
	}
	if existing != nil {
		s.bus.Publish(EventConflictDetected, &ConflictPair{
			DoctorName: in.DoctorName,
			Date:       date,
			Time:       in.Time,
			Existing:   existing,
		})
		return nil, &ConflictError{
			DoctorName: in.DoctorName,
			Date:       date,
			Time:       in.Time,
			ExistingID: existing.ID,
		}
	}

	a := &Appointment{
		PatientName: in.PatientName,
		DoctorName:  in.DoctorName,
		Date:        date,
		Time:        in.Time,
		Status:      StatusScheduled,
	}
	// A concurrent create may still win the slot between the pre-check and
	// this write; the store reports that as the same ConflictError kind.
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Update applies a partial update, re-checking the scheduling invariant
// against the effective (doctor, date, time) with the appointment itself
// excluded, so a no-op update never conflicts with its own slot.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := UpdateInput{
		PatientName: req.PatientName,
		DoctorName:  req.DoctorName,
	}
	if req.Time != nil {
		if !ValidTime(*req.Time) {
			verr := &ValidationError{Message: "time must be a 24-hour HH:MM value", Fields: []string{"time"}}
			s.bus.Publish(EventValidationError, verr)
			return nil, verr
		}
		updates.Time = req.Time
	}
	if req.Date != nil {
		date, perr := ParseDate(*req.Date)
		if perr != nil {
			verr := &ValidationError{Message: "date must be YYYY-MM-DD or RFC 3339", Fields: []string{"date"}}
			s.bus.Publish(EventValidationError, verr)
			return nil, verr
		}
		updates.Date = &date
	}
	if req.Status != nil {
		status := Status(*req.Status)
		if !status.Valid() {
			verr := &ValidationError{Message: "status must be scheduled, cancelled or completed", Fields: []string{"status"}}
			s.bus.Publish(EventValidationError, verr)
			return nil, verr
		}
		updates.Status = &status
	}

	doctor, date, timeOfDay := existing.DoctorName, existing.Date, existing.Time
	if updates.DoctorName != nil {
		doctor = *updates.DoctorName
	}
	if updates.Date != nil {
		date = *updates.Date
	}
	if updates.Time != nil {
		timeOfDay = *updates.Time
	}

	conflicting, err := s.repo.FindConflict(ctx, doctor, date, timeOfDay, &id)
	if err != nil {
		return nil, fmt.Errorf("conflict lookup: %w", err)
	}
	if conflicting != nil {
		s.bus.Publish(EventConflictDetected, &ConflictPair{
			DoctorName: doctor,
			Date:       date,
			Time:       timeOfDay,
			Existing:   conflicting,
		})
		return nil, &ConflictError{
			DoctorName: doctor,
			Date:       date,
			Time:       timeOfDay,
			ExistingID: conflicting.ID,
		}
	}

	return s.repo.Update(ctx, id, updates)
}

// Cancel marks the appointment cancelled, freeing its slot. A cancelled
// appointment no longer participates in the invariant, so no conflict check
// runs. The store publishes a Cancelled event for this mutation.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	status := StatusCancelled
	return s.repo.Update(ctx, id, UpdateInput{Status: &status})
}

// Delete hard-removes the appointment. Cancellation is preferred, since it
// preserves history; deletion bypasses all invariant checks.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.Delete(ctx, id)
}

// List returns all appointments ordered by (date, time).
func (s *Service) List(ctx context.Context) ([]*Appointment, error) {
	return s.repo.ListAll(ctx)
}

// Get returns the appointment with the given id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) validateSlot(dateStr, timeOfDay string) (date time.Time, verr *ValidationError) {
	if !ValidTime(timeOfDay) {
		return date, &ValidationError{Message: "time must be a 24-hour HH:MM value", Fields: []string{"time"}}
	}
	date, err := ParseDate(dateStr)
	if err != nil {
		return date, &ValidationError{Message: "date must be YYYY-MM-DD or RFC 3339", Fields: []string{"date"}}
	}
	return date, nil
}
