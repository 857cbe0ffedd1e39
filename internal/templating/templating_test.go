package templating

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diegolsarmond/jus-connect/internal/store"
)

const contract = `{
  "type": "doc",
  "content": [
    {"type": "heading", "attrs": {"level": 2}, "content": [{"type": "text", "text": "Contrato de honorários"}]},
    {"type": "paragraph", "content": [
      {"type": "text", "text": "Contratante: "},
      {"type": "text", "text": "{{ cliente.nome }}", "marks": [{"type": "bold"}]},
      {"type": "text", "text": ", CPF {{cliente.documento}}."}
    ]},
    {"type": "paragraph", "content": [
      {"type": "text", "text": "Valor: "},
      {"type": "variable", "attrs": {"id": "oportunidade.valor"}},
      {"type": "text", "text": " em {{parcelas.quantidade}} parcelas. Foro: {{ foro.cidade }} / {{foro.cidade}}"}
    ]}
  ]
}`

func TestRenderSubstitutes(t *testing.T) {
	doc, err := Parse([]byte(contract))
	require.NoError(t, err)

	res, err := Render(doc, map[string]string{
		"cliente.nome":        "Maria <Souza>",
		"cliente.documento":   "123.456.789-01",
		"oportunidade.valor":  "R$ 1.234,56",
		"parcelas.quantidade": "3",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"foro.cidade"}, res.Missing)

	p1 := res.Content.Content[1]
	require.Len(t, p1.Content, 3)
	assert.Equal(t, "Maria <Souza>", p1.Content[1].Text)
	assert.Equal(t, ", CPF 123.456.789-01.", p1.Content[2].Text)

	// variable node becomes text and merges with its unmarked neighbours
	p2 := res.Content.Content[2]
	require.Len(t, p2.Content, 1)
	assert.Equal(t, "Valor: R$ 1.234,56 em 3 parcelas. Foro: {{ foro.cidade }} / {{foro.cidade}}", p2.Content[0].Text)

	// source document untouched
	assert.Equal(t, "variable", doc.Content[2].Content[1].Type)
	assert.Equal(t, "{{ cliente.nome }}", doc.Content[1].Content[1].Text)
}

func TestRenderSplitPlaceholder(t *testing.T) {
	doc := &Node{Type: "doc", Content: []*Node{
		{Type: "paragraph", Content: []*Node{
			{Type: "text", Text: "Processo {{processo."},
			{Type: "text", Text: "numero}}"},
		}},
	}}
	res, err := Render(doc, map[string]string{"processo.numero": "0001234-56.2025.8.26.0100"})
	require.NoError(t, err)
	assert.Empty(t, res.Missing)
	assert.Equal(t, "Processo 0001234-56.2025.8.26.0100", res.Content.Content[0].Content[0].Text)
}

func TestRenderUnnamedVariable(t *testing.T) {
	doc := &Node{Type: "doc", Content: []*Node{
		{Type: "paragraph", Content: []*Node{{Type: "placeholder"}}},
	}}
	res, err := Render(doc, nil)
	require.NoError(t, err)
	assert.Equal(t, "{{}}", res.Content.Content[0].Content[0].Text)
	assert.Empty(t, res.Missing)

	_, err = Render(nil, nil)
	assert.Error(t, err)
}

func TestPlaceholders(t *testing.T) {
	doc, err := Parse([]byte(contract))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"cliente.nome", "cliente.documento", "oportunidade.valor", "parcelas.quantidade", "foro.cidade",
	}, Placeholders(doc))
}

func TestToHTML(t *testing.T) {
	doc, err := Parse([]byte(contract))
	require.NoError(t, err)
	res, err := Render(doc, map[string]string{"cliente.nome": "Maria <Souza>"})
	require.NoError(t, err)

	html := ToHTML(res.Content)
	assert.Contains(t, html, "<h2>Contrato de honorários</h2>")
	assert.Contains(t, html, "<strong>Maria &lt;Souza&gt;</strong>")
	assert.Contains(t, html, "<p>Contratante: ")
}

func TestToHTMLDropsUnsafeLinks(t *testing.T) {
	doc := &Node{Type: "doc", Content: []*Node{
		{Type: "paragraph", Attrs: map[string]any{"textAlign": "center"}, Content: []*Node{
			{Type: "text", Text: "clique", Marks: []Mark{{Type: "link", Attrs: map[string]any{"href": "javascript:alert(document.cookie)"}}}},
			{Type: "text", Text: " ou veja "},
			{Type: "text", Text: "o site", Marks: []Mark{{Type: "link", Attrs: map[string]any{"href": "https://example.com/escritorio"}}}},
		}},
	}}

	html := ToHTML(doc)
	assert.NotContains(t, html, "javascript:")
	assert.Contains(t, html, "clique")
	assert.Contains(t, html, `href="https://example.com/escritorio"`)
	assert.Contains(t, html, "text-align")
}

func TestNullChildrenAreIgnored(t *testing.T) {
	doc, err := Parse([]byte(`{"type":"doc","content":[null,{"type":"paragraph","content":[null,{"type":"text","text":"oi {{cliente.nome}}"},null]}]}`))
	require.NoError(t, err)
	require.Len(t, doc.Content, 1)
	require.Len(t, doc.Content[0].Content, 1)

	res, err := Render(doc, map[string]string{"cliente.nome": "Maria"})
	require.NoError(t, err)
	assert.Equal(t, "oi Maria", ToText(res.Content))
	assert.Equal(t, "<p>oi Maria</p>", ToHTML(res.Content))

	built := &Node{Type: "doc", Content: []*Node{nil, {Type: "bulletList", Content: []*Node{nil}}}}
	res, err = Render(built, nil)
	require.NoError(t, err)
	assert.Equal(t, "", ToText(built))
	assert.Equal(t, "<ul></ul>", ToHTML(res.Content))
	assert.Equal(t, []string{}, Placeholders(built))
}

func TestToText(t *testing.T) {
	doc := &Node{Type: "doc", Content: []*Node{
		{Type: "paragraph", Content: []*Node{{Type: "text", Text: "Cláusulas:"}}},
		{Type: "orderedList", Content: []*Node{
			{Type: "listItem", Content: []*Node{{Type: "paragraph", Content: []*Node{{Type: "text", Text: "Objeto"}}}}},
			{Type: "listItem", Content: []*Node{{Type: "paragraph", Content: []*Node{
				{Type: "text", Text: "Preço"}, {Type: "hardBreak"}, {Type: "text", Text: "à vista"},
			}}}},
		}},
	}}
	assert.Equal(t, "Cláusulas:\n\n1. Objeto\n2. Preço\nà vista", ToText(doc))
}

func TestVariables(t *testing.T) {
	now := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	vars := Variables(Subject{
		Office: "Souza & Lima Advogados",
		Client: &store.Client{Name: "João", Document: "12345678901"},
		Opportunity: &store.Opportunity{
			Title: "Revisional", Value: decimal.RequireFromString("1234567.8"), Installments: 2, ProcessNumber: "123",
		},
		Installments: []*store.Installment{
			{Amount: decimal.RequireFromString("617283.90"), DueDate: "2026-02-10"},
			{Amount: decimal.RequireFromString("617283.90"), DueDate: "2026-03-10"},
		},
		User:  &store.User{Name: "Dra. Ana", OAB: "SP 123456"},
		Now:   now,
		Extra: map[string]string{"processo.numero": "override"},
	})

	assert.Equal(t, "02/01/2026", vars["data.atual"])
	assert.Equal(t, "2 de janeiro de 2026", vars["data.extenso"])
	assert.Equal(t, "123.456.789-01", vars["cliente.documento"])
	assert.Equal(t, "R$ 1.234.567,80", vars["oportunidade.valor"])
	assert.Equal(t, "R$ 617.283,90", vars["parcelas.valor"])
	assert.Equal(t, "10/02/2026", vars["parcelas.primeiro_vencimento"])
	assert.Equal(t, "2", vars["parcelas.quantidade"])
	assert.Equal(t, "override", vars["processo.numero"])
	assert.Equal(t, "Dra. Ana", vars["usuario.nome"])
	_, ok := vars["cliente.email"]
	assert.False(t, ok)
}

func TestFormatBRL(t *testing.T) {
	tests := map[string]string{
		"0":        "R$ 0,00",
		"5.5":      "R$ 5,50",
		"999.999":  "R$ 1.000,00",
		"1234.56":  "R$ 1.234,56",
		"-42":      "-R$ 42,00",
		"12345678": "R$ 12.345.678,00",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatBRL(decimal.RequireFromString(in)), in)
	}
}

func TestFormatDocument(t *testing.T) {
	assert.Equal(t, "12.345.678/0001-90", FormatDocument("12345678000190"))
	assert.Equal(t, "abc", FormatDocument("abc"))
}
