package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Installment statuses
const (
	InstallmentPending  = "pending"
	InstallmentPaid     = "paid"
	InstallmentCanceled = "canceled"
)

// Installment is one scheduled payment of an opportunity's fee.
type Installment struct {
	ID            string
	OpportunityID string
	Number        int
	Amount        decimal.Decimal
	DueDate       string
	PaidAt        *string
	Status        string
	CreatedAt     time.Time
}

// PlanInstallments splits total into n amounts rounded to cents. The rounding
// remainder lands on the last installment so the amounts always add up to total.
func PlanInstallments(total decimal.Decimal, n int) []decimal.Decimal {
	if n < 1 {
		n = 1
	}
	total = total.Round(2)
	each := total.Div(decimal.NewFromInt(int64(n))).RoundDown(2)
	out := make([]decimal.Decimal, n)
	sum := decimal.Zero
	for i := 0; i < n-1; i++ {
		out[i] = each
		sum = sum.Add(each)
	}
	out[n-1] = total.Sub(sum)
	return out
}

// AddMonths adds months to a date, clamping the day to the end of the target
// month (Jan 31 + 1 month is Feb 28/29).
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}

func insertInstallments(tx *txn, o *Opportunity) error {
	if o.FirstDueDate == "" || !o.Value.IsPositive() {
		return nil
	}
	first, err := time.Parse(DateLayout, o.FirstDueDate)
	if err != nil {
		return fmt.Errorf("first_due_date: %w", err)
	}
	now := time.Now().UTC()
	for i, amount := range PlanInstallments(o.Value, o.Installments) {
		_, err := tx.exec(
			`INSERT INTO opportunity_installments (id, opportunity_id, number, amount, due_date, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			mustID("oi_"), o.ID, i+1, amount.StringFixed(2), AddMonths(first, i).Format(DateLayout), InstallmentPending, now,
		)
		if err != nil {
			return fmt.Errorf("insert installment %d: %w", i+1, err)
		}
	}
	return nil
}

// ListInstallments returns an opportunity's installments in order.
func (s *Store) ListInstallments(ctx context.Context, opportunityID string) ([]*Installment, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT id, opportunity_id, number, amount, due_date, paid_at, status, created_at
		 FROM opportunity_installments WHERE opportunity_id = ? ORDER BY number`,
		opportunityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	defer rows.Close()

	var out []*Installment
	for rows.Next() {
		in := &Installment{}
		if err := rows.Scan(&in.ID, &in.OpportunityID, &in.Number, &in.Amount, &in.DueDate, &in.PaidAt, &in.Status, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan installment: %w", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list installments: iterate: %w", err)
	}
	return out, nil
}

// RegenerateInstallments rebuilds the installment plan from the opportunity's
// current value and schedule. Plans with a paid installment are left alone.
func (s *Store) RegenerateInstallments(ctx context.Context, opportunityID string) ([]*Installment, error) {
	o, err := s.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("opportunity %s: %w", opportunityID, ErrNotFound)
	}

	var paid int
	if err := s.queryRow(ctx,
		`SELECT COUNT(*) FROM opportunity_installments WHERE opportunity_id = ? AND status = ?`,
		opportunityID, InstallmentPaid,
	).Scan(&paid); err != nil {
		return nil, fmt.Errorf("count paid installments: %w", err)
	}
	if paid > 0 {
		return nil, fmt.Errorf("opportunity %s has %d paid installments: %w", opportunityID, paid, ErrConflict)
	}

	err = s.withTx(ctx, func(tx *txn) error {
		if _, err := tx.exec(`DELETE FROM opportunity_installments WHERE opportunity_id = ?`, opportunityID); err != nil {
			return fmt.Errorf("delete installments: %w", err)
		}
		return insertInstallments(tx, o)
	})
	if err != nil {
		return nil, err
	}
	return s.ListInstallments(ctx, opportunityID)
}

// MarkInstallmentPaid settles an installment on the given date (YYYY-MM-DD).
func (s *Store) MarkInstallmentPaid(ctx context.Context, id, paidAt string) error {
	if _, err := time.Parse(DateLayout, paidAt); err != nil {
		return Invalidf("paid_at must be YYYY-MM-DD")
	}
	res, err := s.ExecContext(ctx,
		`UPDATE opportunity_installments SET status = ?, paid_at = ? WHERE id = ? AND status <> ?`,
		InstallmentPaid, paidAt, id, InstallmentCanceled,
	)
	if err != nil {
		return fmt.Errorf("mark installment paid: %w", err)
	}
	return affected(res, "installment", id)
}
