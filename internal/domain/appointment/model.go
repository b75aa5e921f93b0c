package appointment

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Status of an appointment. Cancelled appointments keep their row but no
// longer occupy the doctor's slot.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Event kinds published on the store and service buses.
const (
	EventCreated          = "appointment.created"
	EventUpdated          = "appointment.updated"
	EventCancelled        = "appointment.cancelled"
	EventDeleted          = "appointment.deleted"
	EventConflictDetected = "appointment.conflict_detected"
	EventValidationError  = "appointment.validation_error"
)

// Appointment maps to the appointment table.
type Appointment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientName string    `db:"patient_name" json:"patientName"`
	DoctorName  string    `db:"doctor_name" json:"doctorName"`
	Date        time.Time `db:"date" json:"date"`
	Time        string    `db:"time" json:"time"`
	Status      Status    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// ConflictPair is the payload of an EventConflictDetected event: the slot a
// caller asked for and the existing appointment already holding it.
type ConflictPair struct {
	DoctorName string       `json:"doctorName"`
	Date       time.Time    `json:"date"`
	Time       string       `json:"time"`
	Existing   *Appointment `json:"existing"`
}

var timePattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// ValidTime reports whether t is a zero-padded 24-hour HH:MM string.
func ValidTime(t string) bool {
	return timePattern.MatchString(t)
}

// dateLayouts accepted for inbound date values, tried in order.
var dateLayouts = []string{"2006-01-02", time.RFC3339}

// ParseDate parses an inbound date string and normalizes it to midnight UTC.
// Two submissions for the same calendar day always compare equal regardless
// of the time-of-day or zone noise in the input.
func ParseDate(s string) (time.Time, error) {
	var t time.Time
	var err error
	for _, layout := range dateLayouts {
		t, err = time.Parse(layout, s)
		if err == nil {
			return NormalizeDate(t), nil
		}
	}
	return time.Time{}, err
}

// NormalizeDate anchors t to midnight UTC of its calendar day.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
