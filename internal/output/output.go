// Package output provides styled terminal output helpers (success, error,
// warning, flow and summary formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/shopspring/decimal"

	"github.com/diegolsarmond/jus-connect/internal/financial"
	"github.com/diegolsarmond/jus-connect/internal/templating"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusStyles = map[string]lipgloss.Style{
		financial.StatusPending:  lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		financial.StatusOverdue:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		financial.StatusPaid:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		financial.StatusCanceled: lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// FormatStatus formats a flow status with color
func FormatStatus(s string) string {
	style, ok := statusStyles[s]
	if !ok {
		return fmt.Sprintf("[%s]", s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatAmount formats an amount in reais, expenses shown negative.
func FormatAmount(kind string, amount decimal.Decimal) string {
	if kind == financial.KindExpense {
		return errorStyle.Render(templating.FormatBRL(amount.Neg()))
	}
	return templating.FormatBRL(amount)
}

const maxDescWidth = 48

// FormatFlowShort formats a flow on one line:
// "2026-02-10  f_ab12  Honorários 1/3  R$ 333,33  [atrasado]"
func FormatFlowShort(f financial.Flow) string {
	desc := f.Description
	if f.InstallmentNumber > 0 {
		desc = fmt.Sprintf("%s #%d", desc, f.InstallmentNumber)
	}
	desc = ansi.Truncate(desc, maxDescWidth, "…")
	parts := []string{
		f.DueDate,
		titleStyle.Render(f.ID),
		desc,
		FormatAmount(f.Kind, f.Amount),
		FormatStatus(f.Status),
	}
	if f.ClientName != "" {
		parts = append(parts, subtleStyle.Render(f.ClientName))
	}
	return strings.Join(parts, "  ")
}

// FormatSummary renders overall totals followed by one line per month.
func FormatSummary(s *financial.Summary) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("RESUMO FINANCEIRO"))
	sb.WriteString("\n")
	writeTotals(&sb, s.Totals, "")
	sb.WriteString(subtleStyle.Render(fmt.Sprintf("%d lançamentos", s.Count)))
	sb.WriteString("\n")

	if len(s.Months) > 0 {
		sb.WriteString(SectionHeader("por mês"))
		for _, m := range s.Months {
			sb.WriteString(fmt.Sprintf("  %s  receitas %s  despesas %s  saldo %s\n",
				titleStyle.Render(m.Month),
				templating.FormatBRL(m.Income.Total),
				templating.FormatBRL(m.Expense.Total),
				formatBalance(m.Balance)))
		}
	}
	return sb.String()
}

func writeTotals(sb *strings.Builder, t financial.Totals, indent string) {
	row := func(label string, b financial.Bucket) {
		sb.WriteString(fmt.Sprintf("%s%-9s total %s  pago %s  pendente %s  atrasado %s\n",
			indent, label,
			templating.FormatBRL(b.Total),
			templating.FormatBRL(b.Paid),
			templating.FormatBRL(b.Pending),
			warningStyle.Render(templating.FormatBRL(b.Overdue))))
	}
	row("Receitas", t.Income)
	row("Despesas", t.Expense)
	sb.WriteString(fmt.Sprintf("%sSaldo     %s (realizado %s)\n", indent, formatBalance(t.Balance), formatBalance(t.Realized)))
}

func formatBalance(d decimal.Decimal) string {
	if d.IsNegative() {
		return errorStyle.Render(templating.FormatBRL(d))
	}
	return successStyle.Render(templating.FormatBRL(d))
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nPOR MÊS:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentLines indents each line by the specified number of spaces
func IndentLines(lines []string, spaces int) []string {
	indent := strings.Repeat(" ", spaces)
	result := make([]string, len(lines))
	for i, line := range lines {
		result[i] = indent + line
	}
	return result
}

// BulletList formats items as a bulleted list with optional indentation
func BulletList(items []string, indent int) []string {
	prefix := strings.Repeat(" ", indent)
	result := make([]string, len(items))
	for i, item := range items {
		result[i] = prefix + "- " + item
	}
	return result
}
