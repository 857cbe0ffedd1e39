package financial

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// Bucket totals one kind of flow by effective status. Canceled rows are
// counted but never added to any amount.
type Bucket struct {
	Paid     decimal.Decimal `json:"paid"`
	Pending  decimal.Decimal `json:"pending"`
	Overdue  decimal.Decimal `json:"overdue"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
	Canceled int             `json:"canceled"`
}

func (b *Bucket) add(f Flow) {
	b.Count++
	switch f.Status {
	case StatusPaid:
		b.Paid = b.Paid.Add(f.Amount)
	case StatusOverdue:
		b.Overdue = b.Overdue.Add(f.Amount)
	case StatusCanceled:
		b.Canceled++
		return
	default:
		b.Pending = b.Pending.Add(f.Amount)
	}
	b.Total = b.Total.Add(f.Amount)
}

// Totals pairs income and expense buckets with their balance.
type Totals struct {
	Income  Bucket          `json:"receitas"`
	Expense Bucket          `json:"despesas"`
	Balance decimal.Decimal `json:"saldo"`
	// Realized is paid income minus paid expenses.
	Realized decimal.Decimal `json:"saldo_realizado"`
}

func (t *Totals) add(f Flow) {
	if f.Kind == KindExpense {
		t.Expense.add(f)
	} else {
		t.Income.add(f)
	}
	t.Balance = t.Income.Total.Sub(t.Expense.Total)
	t.Realized = t.Income.Paid.Sub(t.Expense.Paid)
}

// Month is the totals of flows due in one calendar month.
type Month struct {
	Month string `json:"month"`
	Totals
}

// Summary aggregates a flow listing.
type Summary struct {
	Totals
	Months []Month `json:"months"`
	Count  int     `json:"count"`
}

// Summarize folds flows into overall and per-month totals. Months are keyed
// by due date (YYYY-MM) and returned in ascending order.
func Summarize(flows []Flow) *Summary {
	s := &Summary{Months: []Month{}}
	byMonth := make(map[string]*Month)
	for _, f := range flows {
		s.Count++
		s.Totals.add(f)

		key := f.DueDate
		if len(key) >= 7 {
			key = key[:7]
		}
		m, ok := byMonth[key]
		if !ok {
			m = &Month{Month: key}
			byMonth[key] = m
		}
		m.Totals.add(f)
	}

	keys := make([]string, 0, len(byMonth))
	for k := range byMonth {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Months = append(s.Months, *byMonth[k])
	}
	return s
}

// Summary lists every flow matching q, ignoring pagination, and summarizes it.
func (s *Service) Summary(ctx context.Context, q Query) (*Summary, error) {
	flows, err := s.run(ctx, q, false)
	if err != nil {
		return nil, err
	}
	return Summarize(flows), nil
}
