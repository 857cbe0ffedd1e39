// Package financial lists, aggregates and edits the office's financial flows.
//
// The flow listing is assembled from whatever the connected database actually
// has: optional columns that are missing become NULLs, legacy Portuguese
// column names are accepted, opportunity installments are merged in when
// their tables exist, and client names are joined when the clients table is
// readable. When a query still fails because a column, table or privilege is
// missing, the blamed feature is turned off and the query is retried.
package financial

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/diegolsarmond/jus-connect/internal/store"
)

// ErrUnsupportedSchema is returned when the flows table lacks a required column.
var ErrUnsupportedSchema = errors.New("unsupported financial schema")

// ErrNotFound is returned when a flow or installment does not exist.
var ErrNotFound = store.ErrNotFound

// DB is the subset of the store the financial service needs.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	TableColumns(ctx context.Context, table string) (map[string]bool, error)
}

// Flow is one row of the financial listing: either a stored flow or an
// opportunity installment presented as income.
type Flow struct {
	ID                string          `json:"id"`
	Kind              string          `json:"kind"`
	Description       string          `json:"description"`
	Amount            decimal.Decimal `json:"amount"`
	DueDate           string          `json:"due_date"`
	PaidAt            *string         `json:"paid_at,omitempty"`
	Status            string          `json:"status"`
	ClientID          string          `json:"client_id,omitempty"`
	ClientName        string          `json:"client_name,omitempty"`
	OpportunityID     string          `json:"opportunity_id,omitempty"`
	Category          string          `json:"category,omitempty"`
	Origin            string          `json:"origin"`
	InstallmentNumber int             `json:"installment_number,omitempty"`
}

// Service runs financial queries against a DB.
type Service struct {
	db        DB
	now       func() time.Time
	schemaTTL time.Duration

	mu       sync.Mutex
	schema   *Schema
	schemaAt time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for the overdue status.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSchemaTTL sets how long an inspected schema is reused.
func WithSchemaTTL(d time.Duration) Option {
	return func(s *Service) { s.schemaTTL = d }
}

// NewService creates a Service.
func NewService(db DB, opts ...Option) *Service {
	s := &Service{db: db, now: time.Now, schemaTTL: 5 * time.Minute}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schema returns the cached schema, inspecting the database when stale.
func (s *Service) Schema(ctx context.Context) (*Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema != nil && time.Since(s.schemaAt) < s.schemaTTL {
		return s.schema, nil
	}
	sc, err := Inspect(ctx, s.db)
	if err != nil {
		return nil, err
	}
	s.schema, s.schemaAt = sc, time.Now()
	return sc, nil
}

// Invalidate drops the cached schema.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.schema = nil
	s.mu.Unlock()
}

func (s *Service) today() string {
	return s.now().Format(store.DateLayout)
}

// List returns the flows matching q, ordered by due date.
func (s *Service) List(ctx context.Context, q Query) ([]Flow, error) {
	return s.run(ctx, q, true)
}

// Get returns a single flow or installment row by ID, or nil if not found.
func (s *Service) Get(ctx context.Context, id string) (*Flow, error) {
	flows, err := s.run(ctx, Query{ID: id, Limit: 1}, true)
	if err != nil {
		return nil, err
	}
	if len(flows) == 0 {
		return nil, nil
	}
	return &flows[0], nil
}

func (s *Service) run(ctx context.Context, q Query, paginate bool) ([]Flow, error) {
	sc, err := s.Schema(ctx)
	if err != nil {
		return nil, err
	}
	p := newPlan(sc)
	today := s.today()
	degraded := false

	for {
		query, args := p.build(q, today, paginate)
		flows, err := s.fetch(ctx, query, args, today)
		if err == nil {
			if degraded {
				s.remember(p.schema())
			}
			return flows, nil
		}
		kind, object := store.ClassifySchemaError(err)
		if kind == store.SchemaErrorNone || !p.degrade(kind, object) {
			return nil, fmt.Errorf("list flows: %w", err)
		}
		slog.Warn("financial query degraded", "reason", kind.String(), "object", object, "err", err)
		degraded = true
	}
}

// remember caches a schema narrowed by a degraded query so later requests
// skip the failing parts until the TTL expires.
func (s *Service) remember(sc *Schema) {
	s.mu.Lock()
	s.schema, s.schemaAt = sc, time.Now()
	s.mu.Unlock()
}

func (s *Service) fetch(ctx context.Context, query string, args []any, today string) ([]Flow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flows := []Flow{}
	for rows.Next() {
		var (
			f                                             Flow
			amount                                        decimal.NullDecimal
			paidAt, clientID, oppID, category, clientName sql.NullString
			number                                        sql.NullInt64
		)
		if err := rows.Scan(&f.ID, &f.Kind, &f.Description, &amount, &f.DueDate, &paidAt, &f.Status,
			&clientID, &oppID, &category, &f.Origin, &number, &clientName); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		f.Amount = amount.Decimal
		f.DueDate = dateOnly(f.DueDate)
		if paidAt.Valid && paidAt.String != "" {
			d := dateOnly(paidAt.String)
			f.PaidAt = &d
		}
		f.ClientID = clientID.String
		f.OpportunityID = oppID.String
		f.Category = category.String
		f.ClientName = clientName.String
		f.InstallmentNumber = int(number.Int64)
		f.Status = effectiveStatus(f.Status, f.DueDate, today)
		flows = append(flows, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return flows, nil
}

// effectiveStatus reports pending rows past their due date as overdue.
func effectiveStatus(status, dueDate, today string) string {
	if status == StatusPending && dueDate != "" && dueDate < today {
		return StatusOverdue
	}
	return status
}

// dateOnly trims timestamps rendered by date-typed columns to YYYY-MM-DD.
func dateOnly(s string) string {
	if len(s) >= 10 {
		return s[:10]
	}
	return s
}

// NewFlow carries the fields accepted when recording a flow.
type NewFlow struct {
	Kind          string
	Description   string
	Amount        decimal.Decimal
	DueDate       string
	ClientID      string
	OpportunityID string
	Category      string
}

func validateFlow(kind, description string, amount decimal.Decimal, dueDate string) error {
	if kind != KindIncome && kind != KindExpense {
		return store.Invalidf("kind must be %s or %s", KindIncome, KindExpense)
	}
	if strings.TrimSpace(description) == "" {
		return store.Invalidf("description is required")
	}
	if !amount.IsPositive() {
		return store.Invalidf("amount must be positive")
	}
	if _, err := time.Parse(store.DateLayout, dueDate); err != nil {
		return store.Invalidf("due_date must be YYYY-MM-DD")
	}
	return nil
}

// Create records a flow, writing only the columns the database has.
func (s *Service) Create(ctx context.Context, in NewFlow) (*Flow, error) {
	if err := validateFlow(in.Kind, in.Description, in.Amount, in.DueDate); err != nil {
		return nil, err
	}
	sc, err := s.Schema(ctx)
	if err != nil {
		return nil, err
	}

	id, err := store.NewID("f_")
	if err != nil {
		return nil, err
	}
	values := map[field]any{
		fieldID:            id,
		fieldKind:          in.Kind,
		fieldDescription:   strings.TrimSpace(in.Description),
		fieldAmount:        in.Amount.StringFixed(2),
		fieldDueDate:       in.DueDate,
		fieldStatus:        StatusPending,
		fieldClientID:      nullable(in.ClientID),
		fieldOpportunityID: nullable(in.OpportunityID),
		fieldCategory:      in.Category,
		fieldUpdatedAt:     time.Now().UTC(),
	}

	var cols, marks []string
	var args []any
	for _, f := range append(append([]field{}, requiredFields...), optionalFields...) {
		v, ok := values[f]
		if !ok || !sc.Has(f) {
			continue
		}
		cols = append(cols, sc.Columns[f])
		marks = append(marks, "?")
		args = append(args, v)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", flowsTable, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert flow: %w", err)
	}

	flow, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, fmt.Errorf("flow %s vanished after insert", id)
	}
	return flow, nil
}

// FlowPatch carries optional flow updates.
type FlowPatch struct {
	Kind        *string
	Description *string
	Amount      *decimal.Decimal
	DueDate     *string
	Status      *string
	Category    *string
}

// Update edits a stored flow. Installment rows are edited through their opportunity.
func (s *Service) Update(ctx context.Context, id string, p FlowPatch) (*Flow, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil || cur.Origin != OriginFlow {
		return nil, fmt.Errorf("flow %s: %w", id, ErrNotFound)
	}

	kind, desc, amount, due := cur.Kind, cur.Description, cur.Amount, cur.DueDate
	if p.Kind != nil {
		kind = *p.Kind
	}
	if p.Description != nil {
		desc = *p.Description
	}
	if p.Amount != nil {
		amount = *p.Amount
	}
	if p.DueDate != nil {
		due = *p.DueDate
	}
	if err := validateFlow(kind, desc, amount, due); err != nil {
		return nil, err
	}

	sc, err := s.Schema(ctx)
	if err != nil {
		return nil, err
	}
	sets := []string{
		sc.Columns[fieldKind] + " = ?",
		sc.Columns[fieldDescription] + " = ?",
		sc.Columns[fieldAmount] + " = ?",
		sc.Columns[fieldDueDate] + " = ?",
	}
	args := []any{kind, strings.TrimSpace(desc), amount.StringFixed(2), due}
	if p.Status != nil {
		switch *p.Status {
		case StatusPending, StatusPaid, StatusCanceled:
		default:
			return nil, store.Invalidf("invalid status: %s", *p.Status)
		}
		sets = append(sets, sc.Columns[fieldStatus]+" = ?")
		args = append(args, *p.Status)
	}
	if p.Category != nil && sc.Has(fieldCategory) {
		sets = append(sets, sc.Columns[fieldCategory]+" = ?")
		args = append(args, *p.Category)
	}
	if sc.Has(fieldUpdatedAt) {
		sets = append(sets, sc.Columns[fieldUpdatedAt]+" = ?")
		args = append(args, time.Now().UTC())
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", flowsTable, strings.Join(sets, ", "), sc.Columns[fieldID])
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("update flow: %w", err)
	}
	return s.Get(ctx, id)
}

// Delete removes a stored flow.
func (s *Service) Delete(ctx context.Context, id string) error {
	sc, err := s.Schema(ctx)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", flowsTable, sc.Columns[fieldID]), id)
	if err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("flow %s: %w", id, ErrNotFound)
	}
	return nil
}

// Settle marks a flow, or an opportunity installment, as paid on paidAt.
func (s *Service) Settle(ctx context.Context, id, paidAt string) (*Flow, error) {
	if paidAt == "" {
		paidAt = s.today()
	}
	if _, err := time.Parse(store.DateLayout, paidAt); err != nil {
		return nil, store.Invalidf("paid_at must be YYYY-MM-DD")
	}

	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, fmt.Errorf("flow %s: %w", id, ErrNotFound)
	}
	if cur.Status == StatusCanceled {
		return nil, fmt.Errorf("flow %s is canceled: %w", id, store.ErrConflict)
	}

	if cur.Origin == OriginInstallment {
		_, err = s.db.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET status = ?, paid_at = ? WHERE id = ?", installmentsTable),
			store.InstallmentPaid, paidAt, id)
	} else {
		sc, serr := s.Schema(ctx)
		if serr != nil {
			return nil, serr
		}
		sets := []string{sc.Columns[fieldStatus] + " = ?"}
		args := []any{StatusPaid}
		if sc.Has(fieldPaidAt) {
			sets = append(sets, sc.Columns[fieldPaidAt]+" = ?")
			args = append(args, paidAt)
		}
		args = append(args, id)
		_, err = s.db.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", flowsTable, strings.Join(sets, ", "), sc.Columns[fieldID]),
			args...)
	}
	if err != nil {
		return nil, fmt.Errorf("settle flow: %w", err)
	}
	return s.Get(ctx, id)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
