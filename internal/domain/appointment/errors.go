package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidationError reports malformed or missing input. It is raised before
// any write happens.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Fields, ", "))
	}
	return e.Message
}

func missingFieldsError(fields []string) *ValidationError {
	return &ValidationError{Message: "missing required fields", Fields: fields}
}

// ConflictError reports a violation of the scheduling invariant: the doctor
// already has a non-cancelled appointment at the same date and time. It is
// raised either by the service's advisory pre-check or by the store's unique
// constraint; callers see the same error kind in both cases.
type ConflictError struct {
	DoctorName string
	Date       time.Time
	Time       string
	ExistingID uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("schedule conflict: %s is already booked on %s at %s",
		e.DoctorName, e.Date.Format("2006-01-02"), e.Time)
}

// NotFoundError reports an operation targeting an unknown appointment id.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("appointment %s not found", e.ID)
}
