package output

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/diegolsarmond/jus-connect/internal/financial"
)

// TestFormatStatus tests status formatting
func TestFormatStatus(t *testing.T) {
	statuses := []string{
		financial.StatusPending,
		financial.StatusOverdue,
		financial.StatusPaid,
		financial.StatusCanceled,
	}

	for _, s := range statuses {
		result := FormatStatus(s)
		if !strings.Contains(result, s) {
			t.Errorf("FormatStatus(%q) = %q, should contain status", s, result)
		}
	}
}

// TestFormatStatusUnknown tests unknown status
func TestFormatStatusUnknown(t *testing.T) {
	result := FormatStatus("estornado")
	if result != "[estornado]" {
		t.Errorf("FormatStatus(unknown) = %q, want '[estornado]'", result)
	}
}

func TestFormatAmount(t *testing.T) {
	income := FormatAmount(financial.KindIncome, decimal.RequireFromString("1234.5"))
	if income != "R$ 1.234,50" {
		t.Errorf("FormatAmount(income) = %q", income)
	}
	expense := FormatAmount(financial.KindExpense, decimal.NewFromInt(80))
	if !strings.Contains(expense, "-R$ 80,00") {
		t.Errorf("FormatAmount(expense) = %q, want negative amount", expense)
	}
}

func TestFormatFlowShort(t *testing.T) {
	f := financial.Flow{
		ID:                "oi_1a2b",
		Kind:              financial.KindIncome,
		Description:       "Ação revisional",
		Amount:            decimal.RequireFromString("333.33"),
		DueDate:           "2026-02-10",
		Status:            financial.StatusOverdue,
		ClientName:        "Maria Souza",
		InstallmentNumber: 2,
	}
	result := FormatFlowShort(f)
	for _, want := range []string{"2026-02-10", "oi_1a2b", "Ação revisional #2", "R$ 333,33", "atrasado", "Maria Souza"} {
		if !strings.Contains(result, want) {
			t.Errorf("FormatFlowShort() = %q, missing %q", result, want)
		}
	}
}

func TestFormatFlowShortTruncatesLongDescriptions(t *testing.T) {
	f := financial.Flow{
		ID:          "f_9z",
		Kind:        financial.KindExpense,
		Description: strings.Repeat("custas processuais ", 10),
		Amount:      decimal.NewFromInt(10),
		DueDate:     "2026-03-01",
		Status:      financial.StatusPending,
	}
	result := FormatFlowShort(f)
	if !strings.Contains(result, "…") {
		t.Errorf("expected truncated description in %q", result)
	}
	if strings.Contains(result, strings.Repeat("custas processuais ", 3)) {
		t.Errorf("description not truncated: %q", result)
	}
}

func TestFormatSummary(t *testing.T) {
	s := financial.Summarize([]financial.Flow{
		{Kind: financial.KindIncome, Amount: decimal.NewFromInt(1000), DueDate: "2026-01-10", Status: financial.StatusPaid},
		{Kind: financial.KindExpense, Amount: decimal.NewFromInt(1500), DueDate: "2026-02-01", Status: financial.StatusOverdue},
	})
	result := FormatSummary(s)
	for _, want := range []string{"RESUMO FINANCEIRO", "2 lançamentos", "POR MÊS:", "2026-01", "2026-02", "-R$ 500,00"} {
		if !strings.Contains(result, want) {
			t.Errorf("FormatSummary() missing %q in:\n%s", want, result)
		}
	}
}

// TestSectionHeader tests section header formatting
func TestSectionHeader(t *testing.T) {
	tests := []struct {
		title    string
		expected string
	}{
		{"parcelas", "\nPARCELAS:\n"},
		{"Por mês", "\nPOR MÊS:\n"},
	}

	for _, tc := range tests {
		result := SectionHeader(tc.title)
		if result != tc.expected {
			t.Errorf("SectionHeader(%q) = %q, want %q", tc.title, result, tc.expected)
		}
	}
}

// TestIndentLines tests line indentation
func TestIndentLines(t *testing.T) {
	lines := []string{"line1", "line2", "line3"}

	result := IndentLines(lines, 2)

	expected := []string{"  line1", "  line2", "  line3"}
	for i, line := range result {
		if line != expected[i] {
			t.Errorf("IndentLines[%d] = %q, want %q", i, line, expected[i])
		}
	}
}

// TestBulletList tests bullet list formatting
func TestBulletList(t *testing.T) {
	items := []string{"cliente.nome", "processo.numero"}
	result := BulletList(items, 2)

	expected := []string{"  - cliente.nome", "  - processo.numero"}
	for i, line := range result {
		if line != expected[i] {
			t.Errorf("BulletList[%d] = %q, want %q", i, line, expected[i])
		}
	}
}

func TestPreviewWidthFor(t *testing.T) {
	if got := previewWidthFor(100); got != 100 {
		t.Errorf("previewWidthFor(100) = %d, want 100", got)
	}
	if got := previewWidthFor(10); got != minPreviewWidth {
		t.Errorf("previewWidthFor(10) = %d, want %d", got, minPreviewWidth)
	}
	t.Setenv("COLUMNS", "120")
	if got := previewWidthFor(0); got < minPreviewWidth {
		t.Errorf("previewWidthFor(0) = %d, below minimum", got)
	}
}

func TestRenderPost(t *testing.T) {
	out, err := RenderPost("Guia do inventário", "Primeiro passo.\nSegundo passo.", 80)
	if err != nil {
		t.Fatalf("RenderPost: %v", err)
	}
	for _, want := range []string{"Guia do inventário", "Primeiro passo.", "Segundo passo."} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderPost() missing %q in:\n%s", want, out)
		}
	}

	out, err = RenderPost("", "  ", 80)
	if err != nil || out != "" {
		t.Errorf("RenderPost(empty) = %q, %v", out, err)
	}
}
