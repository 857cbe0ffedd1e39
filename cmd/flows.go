package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/diegolsarmond/jus-connect/internal/dateparse"
	"github.com/diegolsarmond/jus-connect/internal/financial"
	"github.com/diegolsarmond/jus-connect/internal/output"
	"github.com/diegolsarmond/jus-connect/internal/store"
)

var flowsCmd = &cobra.Command{
	Use:     "flows",
	Aliases: []string{"financeiro"},
	Short:   "Inspect financial flows",
	GroupID: "data",
}

// flowQueryFromFlags reads the shared filter flags. Dates accept the same
// relative forms as the API ("-30d", "month-start", "hoje").
func flowQueryFromFlags(cmd *cobra.Command, now time.Time) (financial.Query, error) {
	q := financial.Query{}
	q.Kind, _ = cmd.Flags().GetString("kind")
	q.Status, _ = cmd.Flags().GetString("status")
	q.ClientID, _ = cmd.Flags().GetString("client")
	q.Search, _ = cmd.Flags().GetString("search")
	q.Limit, _ = cmd.Flags().GetInt("limit")

	for name, dst := range map[string]*string{"from": &q.From, "to": &q.To} {
		raw, _ := cmd.Flags().GetString(name)
		if raw == "" {
			continue
		}
		d, err := dateparse.ParseDateFrom(raw, now)
		if err != nil {
			return q, fmt.Errorf("--%s: %w", name, err)
		}
		*dst = d
	}
	return q, nil
}

var flowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List flows and opportunity installments",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := flowQueryFromFlags(cmd, time.Now())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		jsonOut, _ := cmd.Flags().GetBool("json")

		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			flows, err := financial.NewService(st).List(ctx, q)
			if err != nil {
				return err
			}
			if jsonOut {
				return output.JSON(flows)
			}
			if len(flows) == 0 {
				output.Info("no flows")
				return nil
			}
			lines := make([]string, 0, len(flows))
			for _, f := range flows {
				lines = append(lines, output.FormatFlowShort(f))
			}
			for _, l := range output.IndentLines(lines, 2) {
				fmt.Println(l)
			}
			return nil
		})
	},
}

var flowsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show income, expense and balance totals",
	Example: `  jus flows summary --from month-start --to month-end
  jus flows summary --client c_ab12 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := flowQueryFromFlags(cmd, time.Now())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		jsonOut, _ := cmd.Flags().GetBool("json")

		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			sum, err := financial.NewService(st).Summary(ctx, q)
			if err != nil {
				return err
			}
			if jsonOut {
				return output.JSON(sum)
			}
			fmt.Print(output.FormatSummary(sum))
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{flowsListCmd, flowsSummaryCmd} {
		c.Flags().String("from", "", "first due date (YYYY-MM-DD or relative)")
		c.Flags().String("to", "", "last due date (YYYY-MM-DD or relative)")
		c.Flags().String("kind", "", "receita or despesa")
		c.Flags().String("status", "", "pendente, pago, cancelado or atrasado")
		c.Flags().String("client", "", "client ID")
		c.Flags().String("search", "", "text to match in descriptions")
		c.Flags().Bool("json", false, "output JSON")
	}
	flowsListCmd.Flags().Int("limit", 0, "maximum rows (default server page size)")

	flowsCmd.AddCommand(flowsListCmd, flowsSummaryCmd)
	rootCmd.AddCommand(flowsCmd)
}
