package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity statuses
const (
	OpportunityOpen = "open"
	OpportunityWon  = "won"
	OpportunityLost = "lost"
)

// DateLayout is the storage layout for calendar dates.
const DateLayout = "2006-01-02"

// Opportunity is a case being pursued or handled for a client.
type Opportunity struct {
	ID            string
	Title         string
	ClientID      string
	Area          string
	Stage         string
	ProcessNumber string
	ResponsibleID string
	Value         decimal.Decimal
	Installments  int
	FirstDueDate  string
	PaymentMethod string
	Status        string
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// OpportunityPatch carries optional updates; nil fields are left unchanged.
type OpportunityPatch struct {
	Title         *string
	ClientID      *string
	Area          *string
	Stage         *string
	ProcessNumber *string
	ResponsibleID *string
	Value         *decimal.Decimal
	Installments  *int
	FirstDueDate  *string
	PaymentMethod *string
	Status        *string
	Notes         *string
}

// OpportunityFilter narrows ListOpportunities.
type OpportunityFilter struct {
	ClientID      string
	Stage         string
	Status        string
	ResponsibleID string
	Search        string
	Limit         int
	Offset        int
}

const opportunityColumns = `id, title, client_id, area, stage, process_number, responsible_id, value, installments, first_due_date, payment_method, status, notes, created_at, updated_at, deleted_at`

func scanOpportunity(sc interface{ Scan(...any) error }) (*Opportunity, error) {
	o := &Opportunity{}
	err := sc.Scan(&o.ID, &o.Title, &o.ClientID, &o.Area, &o.Stage, &o.ProcessNumber, &o.ResponsibleID, &o.Value,
		&o.Installments, &o.FirstDueDate, &o.PaymentMethod, &o.Status, &o.Notes, &o.CreatedAt, &o.UpdatedAt, &o.DeletedAt)
	return o, err
}

func validateOpportunity(o *Opportunity) error {
	if strings.TrimSpace(o.Title) == "" {
		return Invalidf("title is required")
	}
	if o.ClientID == "" {
		return Invalidf("client_id is required")
	}
	switch o.Status {
	case OpportunityOpen, OpportunityWon, OpportunityLost:
	default:
		return Invalidf("invalid status: %s", o.Status)
	}
	if o.Value.IsNegative() {
		return Invalidf("value cannot be negative")
	}
	if o.Installments < 1 {
		return Invalidf("installments must be at least 1")
	}
	if o.FirstDueDate != "" {
		if _, err := time.Parse(DateLayout, o.FirstDueDate); err != nil {
			return Invalidf("first_due_date must be YYYY-MM-DD")
		}
	}
	return nil
}

// CreateOpportunity inserts an opportunity and, when it has a value and a
// first due date, its installment plan, in one transaction.
func (s *Store) CreateOpportunity(ctx context.Context, o Opportunity) (*Opportunity, error) {
	o.Title = strings.TrimSpace(o.Title)
	if o.Status == "" {
		o.Status = OpportunityOpen
	}
	if o.Installments == 0 {
		o.Installments = 1
	}
	if err := validateOpportunity(&o); err != nil {
		return nil, err
	}
	client, err := s.GetClient(ctx, o.ClientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("client %s: %w", o.ClientID, ErrNotFound)
	}

	now := time.Now().UTC()
	o.ID = mustID("o_")
	o.CreatedAt, o.UpdatedAt, o.DeletedAt = now, now, nil

	err = s.withTx(ctx, func(tx *txn) error {
		_, err := tx.exec(
			`INSERT INTO opportunities (id, title, client_id, area, stage, process_number, responsible_id, value, installments, first_due_date, payment_method, status, notes, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.Title, o.ClientID, o.Area, o.Stage, o.ProcessNumber, o.ResponsibleID, o.Value.StringFixed(2),
			o.Installments, o.FirstDueDate, o.PaymentMethod, o.Status, o.Notes, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert opportunity: %w", err)
		}
		return insertInstallments(tx, &o)
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetOpportunity returns a live opportunity by ID, or nil if not found.
func (s *Store) GetOpportunity(ctx context.Context, id string) (*Opportunity, error) {
	o, err := scanOpportunity(s.queryRow(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id = ? AND deleted_at IS NULL`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get opportunity: %w", err)
	}
	return o, nil
}

// ListOpportunities returns live opportunities, newest first.
func (s *Store) ListOpportunities(ctx context.Context, f OpportunityFilter) ([]*Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunities WHERE deleted_at IS NULL`
	var args []any
	if f.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, f.ClientID)
	}
	if f.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, f.Stage)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.ResponsibleID != "" {
		query += ` AND responsible_id = ?`
		args = append(args, f.ResponsibleID)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query += ` AND (LOWER(title) LIKE ? OR LOWER(process_number) LIKE ?)`
		args = append(args, like, like)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, normalizeLimit(f.Limit), max(f.Offset, 0))

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	var out []*Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list opportunities: iterate: %w", err)
	}
	return out, nil
}

// UpdateOpportunity applies a partial update. The installment plan is not
// touched; use RegenerateInstallments after changing value or schedule.
func (s *Store) UpdateOpportunity(ctx context.Context, id string, p OpportunityPatch) (*Opportunity, error) {
	o, err := s.GetOpportunity(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("opportunity %s: %w", id, ErrNotFound)
	}

	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&o.Title, p.Title)
	set(&o.Area, p.Area)
	set(&o.Stage, p.Stage)
	set(&o.ProcessNumber, p.ProcessNumber)
	set(&o.ResponsibleID, p.ResponsibleID)
	set(&o.FirstDueDate, p.FirstDueDate)
	set(&o.PaymentMethod, p.PaymentMethod)
	set(&o.Status, p.Status)
	set(&o.Notes, p.Notes)
	if p.ClientID != nil && *p.ClientID != o.ClientID {
		c, err := s.GetClient(ctx, *p.ClientID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("client %s: %w", *p.ClientID, ErrNotFound)
		}
		o.ClientID = c.ID
	}
	if p.Value != nil {
		o.Value = *p.Value
	}
	if p.Installments != nil {
		o.Installments = *p.Installments
	}
	if err := validateOpportunity(o); err != nil {
		return nil, err
	}

	o.UpdatedAt = time.Now().UTC()
	res, err := s.ExecContext(ctx,
		`UPDATE opportunities SET title = ?, client_id = ?, area = ?, stage = ?, process_number = ?, responsible_id = ?, value = ?,
		 installments = ?, first_due_date = ?, payment_method = ?, status = ?, notes = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		o.Title, o.ClientID, o.Area, o.Stage, o.ProcessNumber, o.ResponsibleID, o.Value.StringFixed(2),
		o.Installments, o.FirstDueDate, o.PaymentMethod, o.Status, o.Notes, o.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update opportunity: %w", err)
	}
	if err := affected(res, "opportunity", id); err != nil {
		return nil, err
	}
	return o, nil
}

// SoftDeleteOpportunity marks an opportunity as deleted.
func (s *Store) SoftDeleteOpportunity(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.ExecContext(ctx,
		`UPDATE opportunities SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("soft delete opportunity: %w", err)
	}
	return affected(res, "opportunity", id)
}
