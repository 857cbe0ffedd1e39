package financial

import (
	"fmt"
	"strings"

	"github.com/diegolsarmond/jus-connect/internal/store"
)

const (
	flowsTable         = "financial_flows"
	installmentsTable  = "opportunity_installments"
	opportunitiesTable = "opportunities"
	clientsTable       = "clients"
)

// Flow kinds
const (
	KindIncome  = "receita"
	KindExpense = "despesa"
)

// Flow statuses. StatusOverdue is never stored: it is reported for pending
// rows whose due date has passed.
const (
	StatusPending  = "pendente"
	StatusPaid     = "pago"
	StatusCanceled = "cancelado"
	StatusOverdue  = "atrasado"
)

// Row origins
const (
	OriginFlow        = "flow"
	OriginInstallment = "installment"
)

// Query filters a flow listing. Dates are YYYY-MM-DD and inclusive.
type Query struct {
	ID            string
	Kind          string
	Status        string
	From          string
	To            string
	ClientID      string
	OpportunityID string
	Search        string
	Limit         int
	Offset        int
}

// plan is the set of optional query features still enabled. Degrading a plan
// always turns at least one feature off, which bounds the retry loop.
type plan struct {
	cols         map[field]string
	installments bool
	clients      bool
}

func newPlan(s *Schema) *plan {
	p := &plan{cols: make(map[field]string, len(s.Columns)), installments: s.Installments, clients: s.Clients}
	for f, c := range s.Columns {
		p.cols[f] = c
	}
	p.clients = p.clients && p.cols[fieldClientID] != ""
	return p
}

// schema returns the features the plan still uses.
func (p *plan) schema() *Schema {
	sc := &Schema{Columns: make(map[field]string, len(p.cols)), Installments: p.installments, Clients: p.clients}
	for f, c := range p.cols {
		sc.Columns[f] = c
	}
	return sc
}

func (p *plan) col(f field) string {
	if c := p.cols[f]; c != "" {
		return "f." + c
	}
	return "CAST(NULL AS TEXT)"
}

// text renders a column cast to TEXT so date-typed legacy columns union
// cleanly with the TEXT columns of the installment branch.
func (p *plan) text(f field) string {
	if c := p.cols[f]; c != "" {
		return "CAST(f." + c + " AS TEXT)"
	}
	return "CAST(NULL AS TEXT)"
}

// degrade turns off the feature blamed by a schema error. It reports false
// when nothing is left to turn off, in which case the error is final.
func (p *plan) degrade(kind store.SchemaErrorKind, object string) bool {
	switch kind {
	case store.SchemaErrorMissingColumn:
		alias, col, ok := strings.Cut(object, ".")
		if !ok {
			alias, col = "", object
		}
		switch alias {
		case "f", "":
			for _, f := range optionalFields {
				if p.cols[f] != "" && p.cols[f] == col {
					delete(p.cols, f)
					if f == fieldClientID {
						p.clients = false
					}
					return true
				}
			}
			if alias == "f" {
				return false
			}
		case "i", "o":
			if p.installments {
				p.installments = false
				return true
			}
		case "c":
			if p.clients {
				p.clients = false
				return true
			}
		}
	case store.SchemaErrorMissingTable, store.SchemaErrorPermission:
		switch object {
		case installmentsTable, opportunitiesTable:
			if p.installments {
				p.installments = false
				return true
			}
		case clientsTable:
			if p.clients {
				p.clients = false
				return true
			}
		case flowsTable:
			return false
		}
	default:
		return false
	}
	return p.strip()
}

// strip is the fallback when the failing object cannot be identified: drop
// the installment branch first, then the client join, then every optional column.
func (p *plan) strip() bool {
	if p.installments {
		p.installments = false
		return true
	}
	if p.clients {
		p.clients = false
		return true
	}
	dropped := false
	for _, f := range optionalFields {
		if p.cols[f] != "" {
			delete(p.cols, f)
			dropped = true
		}
	}
	return dropped
}

// build renders the listing query. today anchors the overdue status.
func (p *plan) build(q Query, today string, paginate bool) (string, []any) {
	var b strings.Builder
	var args []any

	b.WriteString("SELECT u.id, u.kind, u.description, u.amount, u.due_date, u.paid_at, u.status, u.client_id, u.opportunity_id, u.category, u.origin, u.installment_number, ")
	if p.clients {
		b.WriteString("c.name")
	} else {
		b.WriteString("CAST(NULL AS TEXT)")
	}
	b.WriteString(" AS client_name FROM (")

	fmt.Fprintf(&b, "SELECT f.%s AS id, f.%s AS kind, f.%s AS description, f.%s AS amount, %s AS due_date, %s AS paid_at, f.%s AS status, %s AS client_id, %s AS opportunity_id, %s AS category, '%s' AS origin, 0 AS installment_number FROM %s f",
		p.cols[fieldID], p.cols[fieldKind], p.cols[fieldDescription], p.cols[fieldAmount], p.text(fieldDueDate),
		p.text(fieldPaidAt), p.cols[fieldStatus], p.col(fieldClientID), p.col(fieldOpportunityID), p.col(fieldCategory),
		OriginFlow, flowsTable)

	if p.installments {
		fmt.Fprintf(&b, " UNION ALL SELECT i.id, '%s', o.title, i.amount, CAST(i.due_date AS TEXT), CAST(i.paid_at AS TEXT), CASE i.status WHEN '%s' THEN '%s' WHEN '%s' THEN '%s' ELSE '%s' END, o.client_id, i.opportunity_id, 'honorarios', '%s', i.number FROM %s i JOIN %s o ON o.id = i.opportunity_id WHERE o.deleted_at IS NULL",
			KindIncome,
			store.InstallmentPaid, StatusPaid, store.InstallmentCanceled, StatusCanceled, StatusPending,
			OriginInstallment, installmentsTable, opportunitiesTable)
	}
	b.WriteString(") u")

	if p.clients {
		fmt.Fprintf(&b, " LEFT JOIN %s c ON c.id = u.client_id", clientsTable)
	}

	var where []string
	if q.ID != "" {
		where = append(where, "u.id = ?")
		args = append(args, q.ID)
	}
	if q.Kind != "" {
		where = append(where, "u.kind = ?")
		args = append(args, q.Kind)
	}
	switch q.Status {
	case "":
	case StatusOverdue:
		where = append(where, "u.status = ? AND u.due_date < ?")
		args = append(args, StatusPending, today)
	case StatusPending:
		where = append(where, "u.status = ? AND u.due_date >= ?")
		args = append(args, StatusPending, today)
	default:
		where = append(where, "u.status = ?")
		args = append(args, q.Status)
	}
	if q.From != "" {
		where = append(where, "u.due_date >= ?")
		args = append(args, q.From)
	}
	if q.To != "" {
		where = append(where, "u.due_date <= ?")
		args = append(args, q.To)
	}
	if q.ClientID != "" {
		where = append(where, "u.client_id = ?")
		args = append(args, q.ClientID)
	}
	if q.OpportunityID != "" {
		where = append(where, "u.opportunity_id = ?")
		args = append(args, q.OpportunityID)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		where = append(where, "LOWER(u.description) LIKE ?")
		args = append(args, "%"+strings.ToLower(s)+"%")
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	b.WriteString(" ORDER BY u.due_date, u.id")
	if paginate {
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, normalizeLimit(q.Limit), max(q.Offset, 0))
	}
	return b.String(), args
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
