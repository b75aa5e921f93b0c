package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/medbook/internal/platform/events"
)

// uniqueViolation is the SQLSTATE raised when the partial unique index on
// (doctor_name, date, time) rejects a write. The advisory pre-check in the
// service cannot close the race between two concurrent writes; this
// constraint is the authoritative enforcement point.
const uniqueViolation = "23505"

type repoPG struct {
	pool *pgxpool.Pool
	bus  *events.Bus
}

// NewRepoPG creates a Postgres-backed Repository publishing on bus.
func NewRepoPG(pool *pgxpool.Pool, bus *events.Bus) Repository {
	return &repoPG{pool: pool, bus: bus}
}

func (r *repoPG) Events() *events.Bus { return r.bus }

const apptCols = `id, patient_name, doctor_name, date, time, status, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientName, &a.DoctorName, &a.Date, &a.Time,
		&a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Date = NormalizeDate(a.Date)
	return &a, nil
}

func (r *repoPG) ListAll(ctx context.Context) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+apptCols+` FROM appointment ORDER BY date, time, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{ID: id}
	}
	return a, err
}

func (r *repoPG) FindConflict(ctx context.Context, doctorName string, date time.Time, timeOfDay string, excludeID *uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + apptCols + ` FROM appointment
		WHERE doctor_name = $1 AND date = $2 AND time = $3 AND status <> $4`
	args := []any{doctorName, date, timeOfDay, StatusCancelled}
	if excludeID != nil {
		query += ` AND id <> $5`
		args = append(args, *excludeID)
	}
	query += ` ORDER BY created_at LIMIT 1`

	a, err := scanAppointment(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointment (id, patient_name, doctor_name, date, time, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientName, a.DoctorName, a.Date, a.Time, a.Status)
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return r.conflictError(ctx, a.DoctorName, a.Date, a.Time, nil)
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	r.bus.Publish(EventCreated, a)
	return nil
}

func (r *repoPG) Update(ctx context.Context, id uuid.UUID, updates UpdateInput) (*Appointment, error) {
	var statusArg *string
	if updates.Status != nil {
		s := string(*updates.Status)
		statusArg = &s
	}
	a, err := scanAppointment(r.pool.QueryRow(ctx, `
		UPDATE appointment SET
			patient_name = COALESCE($2, patient_name),
			doctor_name  = COALESCE($3, doctor_name),
			date         = COALESCE($4, date),
			time         = COALESCE($5, time),
			status       = COALESCE($6, status),
			updated_at   = NOW()
		WHERE id = $1
		RETURNING `+apptCols,
		id, updates.PatientName, updates.DoctorName, updates.Date, updates.Time, statusArg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{ID: id}
		}
		if isUniqueViolation(err) {
			return nil, r.updateConflictError(ctx, id, updates)
		}
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	r.bus.Publish(mutationEventKind(updates), a)
	return a, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx,
		`DELETE FROM appointment WHERE id = $1 RETURNING `+apptCols, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("delete appointment: %w", err)
	}
	r.bus.Publish(EventDeleted, a)
	return a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// conflictError builds the domain ConflictError for a rejected slot,
// attaching the holder's id when it can still be read.
func (r *repoPG) conflictError(ctx context.Context, doctorName string, date time.Time, timeOfDay string, excludeID *uuid.UUID) error {
	cerr := &ConflictError{DoctorName: doctorName, Date: date, Time: timeOfDay}
	if existing, err := r.FindConflict(ctx, doctorName, date, timeOfDay, excludeID); err == nil && existing != nil {
		cerr.ExistingID = existing.ID
	}
	return cerr
}

// updateConflictError resolves the effective slot of a rejected update by
// merging the update with the stored row.
func (r *repoPG) updateConflictError(ctx context.Context, id uuid.UUID, updates UpdateInput) error {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		// The stored row is unreadable; the requested changes are still
		// the best description of the rejected slot.
		existing = nil
	}
	cerr := slotConflictError(existing, updates)
	return r.conflictError(ctx, cerr.DoctorName, cerr.Date, cerr.Time, &id)
}

// slotConflictError describes the slot a rejected update asked for: the
// stored values overlaid with the requested changes, or the changes alone
// when no stored row is available.
func slotConflictError(existing *Appointment, updates UpdateInput) *ConflictError {
	cerr := &ConflictError{}
	if existing != nil {
		cerr.DoctorName = existing.DoctorName
		cerr.Date = existing.Date
		cerr.Time = existing.Time
	}
	if updates.DoctorName != nil {
		cerr.DoctorName = *updates.DoctorName
	}
	if updates.Date != nil {
		cerr.Date = *updates.Date
	}
	if updates.Time != nil {
		cerr.Time = *updates.Time
	}
	return cerr
}

// mutationEventKind picks the event for a successful update. Setting the
// status to cancelled is a cancellation, not a generic update.
func mutationEventKind(updates UpdateInput) string {
	if updates.Status != nil && *updates.Status == StatusCancelled {
		return EventCancelled
	}
	return EventUpdated
}
