package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Appointment statuses
const (
	AppointmentScheduled = "scheduled"
	AppointmentDone      = "done"
	AppointmentCanceled  = "canceled"
)

// Appointment is a calendar entry: hearing, meeting, deadline and so on.
type Appointment struct {
	ID            string
	Title         string
	Description   string
	Kind          string
	StartsAt      time.Time
	EndsAt        time.Time
	Location      string
	ClientID      string
	OpportunityID string
	Status        string
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AppointmentPatch carries optional updates.
type AppointmentPatch struct {
	Title         *string
	Description   *string
	Kind          *string
	StartsAt      *time.Time
	EndsAt        *time.Time
	Location      *string
	ClientID      *string
	OpportunityID *string
	Status        *string
}

// AppointmentFilter selects appointments overlapping [From, To).
type AppointmentFilter struct {
	From          *time.Time
	To            *time.Time
	OpportunityID string
	ClientID      string
	Status        string
}

const appointmentColumns = `id, title, description, kind, starts_at, ends_at, location, client_id, opportunity_id, status, created_by, created_at, updated_at`

func scanAppointment(sc interface{ Scan(...any) error }) (*Appointment, error) {
	a := &Appointment{}
	err := sc.Scan(&a.ID, &a.Title, &a.Description, &a.Kind, &a.StartsAt, &a.EndsAt, &a.Location,
		&a.ClientID, &a.OpportunityID, &a.Status, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func validateAppointment(a *Appointment) error {
	if strings.TrimSpace(a.Title) == "" {
		return Invalidf("title is required")
	}
	if a.StartsAt.IsZero() {
		return Invalidf("starts_at is required")
	}
	if a.EndsAt.Before(a.StartsAt) {
		return Invalidf("ends_at must not be before starts_at")
	}
	switch a.Status {
	case AppointmentScheduled, AppointmentDone, AppointmentCanceled:
	default:
		return Invalidf("invalid status: %s", a.Status)
	}
	return nil
}

// CreateAppointment inserts an appointment. A zero EndsAt defaults to one hour after StartsAt.
func (s *Store) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	a.Title = strings.TrimSpace(a.Title)
	if a.Status == "" {
		a.Status = AppointmentScheduled
	}
	if a.EndsAt.IsZero() && !a.StartsAt.IsZero() {
		a.EndsAt = a.StartsAt.Add(time.Hour)
	}
	a.StartsAt, a.EndsAt = a.StartsAt.UTC(), a.EndsAt.UTC()
	if err := validateAppointment(&a); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	a.ID = mustID("a_")
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := s.ExecContext(ctx,
		`INSERT INTO appointments (id, title, description, kind, starts_at, ends_at, location, client_id, opportunity_id, status, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Description, a.Kind, a.StartsAt, a.EndsAt, a.Location, a.ClientID, a.OpportunityID, a.Status, a.CreatedBy, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return &a, nil
}

// GetAppointment returns an appointment by ID, or nil if not found.
func (s *Store) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	a, err := scanAppointment(s.queryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// ListAppointments returns appointments ordered by start time.
func (s *Store) ListAppointments(ctx context.Context, f AppointmentFilter) ([]*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE 1 = 1`
	var args []any
	if f.From != nil {
		query += ` AND ends_at >= ?`
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		query += ` AND starts_at < ?`
		args = append(args, f.To.UTC())
	}
	if f.OpportunityID != "" {
		query += ` AND opportunity_id = ?`
		args = append(args, f.OpportunityID)
	}
	if f.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, f.ClientID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY starts_at`

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list appointments: iterate: %w", err)
	}
	return out, nil
}

// UpdateAppointment applies a partial update.
func (s *Store) UpdateAppointment(ctx context.Context, id string, p AppointmentPatch) (*Appointment, error) {
	a, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}

	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&a.Title, p.Title)
	set(&a.Description, p.Description)
	set(&a.Kind, p.Kind)
	set(&a.Location, p.Location)
	set(&a.ClientID, p.ClientID)
	set(&a.OpportunityID, p.OpportunityID)
	set(&a.Status, p.Status)
	if p.StartsAt != nil {
		a.StartsAt = p.StartsAt.UTC()
	}
	if p.EndsAt != nil {
		a.EndsAt = p.EndsAt.UTC()
	}
	if err := validateAppointment(a); err != nil {
		return nil, err
	}

	a.UpdatedAt = time.Now().UTC()
	res, err := s.ExecContext(ctx,
		`UPDATE appointments SET title = ?, description = ?, kind = ?, starts_at = ?, ends_at = ?, location = ?, client_id = ?,
		 opportunity_id = ?, status = ?, updated_at = ? WHERE id = ?`,
		a.Title, a.Description, a.Kind, a.StartsAt, a.EndsAt, a.Location, a.ClientID, a.OpportunityID, a.Status, a.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	if err := affected(res, "appointment", id); err != nil {
		return nil, err
	}
	return a, nil
}

// DeleteAppointment removes an appointment.
func (s *Store) DeleteAppointment(ctx context.Context, id string) error {
	res, err := s.ExecContext(ctx, `DELETE FROM appointments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	return affected(res, "appointment", id)
}
