package financial

import (
	"context"
	"fmt"
)

// field is a logical flow attribute; legacy databases name some of them in
// Portuguese, so each field resolves to the first candidate column present.
type field string

const (
	fieldID            field = "id"
	fieldKind          field = "kind"
	fieldDescription   field = "description"
	fieldAmount        field = "amount"
	fieldDueDate       field = "due_date"
	fieldPaidAt        field = "paid_at"
	fieldStatus        field = "status"
	fieldClientID      field = "client_id"
	fieldOpportunityID field = "opportunity_id"
	fieldCategory      field = "category"
	fieldUpdatedAt     field = "updated_at"
)

var candidates = map[field][]string{
	fieldID:            {"id"},
	fieldKind:          {"kind", "tipo"},
	fieldDescription:   {"description", "descricao"},
	fieldAmount:        {"amount", "valor"},
	fieldDueDate:       {"due_date", "vencimento"},
	fieldPaidAt:        {"paid_at", "pagamento"},
	fieldStatus:        {"status"},
	fieldClientID:      {"client_id", "cliente_id"},
	fieldOpportunityID: {"opportunity_id", "oportunidade_id"},
	fieldCategory:      {"category", "categoria"},
	fieldUpdatedAt:     {"updated_at"},
}

var requiredFields = []field{fieldID, fieldKind, fieldDescription, fieldAmount, fieldDueDate, fieldStatus}

var optionalFields = []field{fieldPaidAt, fieldClientID, fieldOpportunityID, fieldCategory, fieldUpdatedAt}

// Schema records which parts of the financial data model exist in the
// connected database.
type Schema struct {
	// Columns maps each resolved logical field to its physical column.
	Columns map[field]string
	// Installments is set when opportunity installments can be merged in.
	Installments bool
	// Clients is set when client names can be joined in.
	Clients bool
}

// Has reports whether the logical field resolved to a column.
func (s *Schema) Has(f field) bool {
	return s.Columns[f] != ""
}

// Inspect reads the database catalog and resolves the flow schema.
func Inspect(ctx context.Context, db DB) (*Schema, error) {
	cols, err := db.TableColumns(ctx, flowsTable)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%s: %w", flowsTable, ErrUnsupportedSchema)
	}

	s := &Schema{Columns: make(map[field]string)}
	for f, names := range candidates {
		for _, name := range names {
			if cols[name] {
				s.Columns[f] = name
				break
			}
		}
	}
	for _, f := range requiredFields {
		if !s.Has(f) {
			return nil, fmt.Errorf("%s has no %s column: %w", flowsTable, f, ErrUnsupportedSchema)
		}
	}

	inst, err := db.TableColumns(ctx, installmentsTable)
	if err != nil {
		return nil, err
	}
	opp, err := db.TableColumns(ctx, opportunitiesTable)
	if err != nil {
		return nil, err
	}
	s.Installments = hasAll(inst, "id", "opportunity_id", "number", "amount", "due_date", "paid_at", "status") &&
		hasAll(opp, "id", "title", "client_id", "deleted_at")

	clients, err := db.TableColumns(ctx, clientsTable)
	if err != nil {
		return nil, err
	}
	s.Clients = hasAll(clients, "id", "name")

	return s, nil
}

func hasAll(cols map[string]bool, names ...string) bool {
	for _, n := range names {
		if !cols[n] {
			return false
		}
	}
	return true
}
