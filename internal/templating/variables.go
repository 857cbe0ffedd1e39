package templating

import (
	"strconv"
	"time"

	"github.com/diegolsarmond/jus-connect/internal/store"
)

// Subject is everything a template can draw values from. Any field may be nil.
type Subject struct {
	Office       string
	Client       *store.Client
	Opportunity  *store.Opportunity
	Installments []*store.Installment
	User         *store.User
	Now          time.Time
	// Extra values override the computed ones.
	Extra map[string]string
}

// Variables builds the flat name → value map used by Render. Values that
// cannot be computed are omitted so they show up as missing.
func Variables(s Subject) map[string]string {
	v := make(map[string]string)
	set := func(k, val string) {
		if val != "" {
			v[k] = val
		}
	}

	now := s.Now
	if now.IsZero() {
		now = time.Now()
	}
	set("data.atual", FormatDate(now))
	set("data.extenso", FormatLongDate(now))
	set("escritorio.nome", s.Office)

	if c := s.Client; c != nil {
		set("cliente.nome", c.Name)
		set("cliente.documento", FormatDocument(c.Document))
		set("cliente.email", c.Email)
		set("cliente.telefone", c.Phone)
		set("cliente.endereco", c.Address)
		set("cliente.cidade", c.City)
		set("cliente.estado", c.State)
	}

	if o := s.Opportunity; o != nil {
		set("oportunidade.titulo", o.Title)
		set("oportunidade.area", o.Area)
		set("oportunidade.fase", o.Stage)
		set("oportunidade.forma_pagamento", o.PaymentMethod)
		set("oportunidade.valor", FormatBRL(o.Value))
		set("processo.numero", o.ProcessNumber)
		set("parcelas.quantidade", strconv.Itoa(o.Installments))
	}

	if len(s.Installments) > 0 {
		first := s.Installments[0]
		set("parcelas.quantidade", strconv.Itoa(len(s.Installments)))
		set("parcelas.valor", FormatBRL(first.Amount))
		if d, err := time.Parse(store.DateLayout, first.DueDate); err == nil {
			set("parcelas.primeiro_vencimento", FormatDate(d))
		}
	}

	if u := s.User; u != nil {
		set("usuario.nome", u.Name)
		set("usuario.email", u.Email)
		set("usuario.oab", u.OAB)
	}

	for k, val := range s.Extra {
		v[k] = val
	}
	return v
}

// Known lists the names Variables may produce, for template editors.
var Known = []string{
	"cliente.nome", "cliente.documento", "cliente.email", "cliente.telefone",
	"cliente.endereco", "cliente.cidade", "cliente.estado",
	"oportunidade.titulo", "oportunidade.area", "oportunidade.fase",
	"oportunidade.forma_pagamento", "oportunidade.valor",
	"processo.numero",
	"parcelas.quantidade", "parcelas.valor", "parcelas.primeiro_vencimento",
	"usuario.nome", "usuario.email", "usuario.oab",
	"escritorio.nome", "data.atual", "data.extenso",
}
