package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/diegolsarmond/jus-connect/internal/input"
	"github.com/diegolsarmond/jus-connect/internal/output"
	"github.com/diegolsarmond/jus-connect/internal/templating"
)

var renderCmd = &cobra.Command{
	Use:   "render <template.json|->",
	Short: "Fill a document template offline",
	Long: `Renders a rich-text template document with variables read from a YAML file.

Nested YAML maps are flattened with dots, so

  cliente:
    nome: Maria Souza

fills {{cliente.nome}}.`,
	Example: `  jus render procuracao.json --vars maria.yaml
  jus render procuracao.json --vars maria.yaml --format html`,
	Args:    cobra.ExactArgs(1),
	GroupID: "data",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := input.ReadSource(args[0], cmd.InOrStdin())
		if err != nil {
			output.Error("read template: %v", err)
			return err
		}
		doc, err := templating.Parse(raw)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		vars := map[string]string{}
		if path, _ := cmd.Flags().GetString("vars"); path != "" {
			if vars, err = loadVars(path); err != nil {
				output.Error("%v", err)
				return err
			}
		}

		res, err := templating.Render(doc, vars)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "text":
			fmt.Println(templating.ToText(res.Content))
		case "html":
			fmt.Println(templating.ToHTML(res.Content))
		case "json":
			return output.JSON(res)
		default:
			err := fmt.Errorf("unknown --format %q (use text, html or json)", format)
			output.Error("%v", err)
			return err
		}
		if len(res.Missing) > 0 {
			output.Warning("no value for: %v", res.Missing)
		}
		return nil
	},
}

// loadVars reads a YAML file of template variables.
func loadVars(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vars: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("parse vars %s: %w", path, err)
	}
	vars := make(map[string]string)
	flattenVars("", tree, vars)
	return vars, nil
}

func flattenVars(prefix string, tree map[string]any, out map[string]string) {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		switch v := tree[k].(type) {
		case map[string]any:
			flattenVars(name, v, out)
		case nil:
			out[name] = ""
		default:
			out[name] = fmt.Sprint(v)
		}
	}
}

func init() {
	renderCmd.Flags().String("vars", "", "YAML file with variable values")
	renderCmd.Flags().String("format", "text", "output format: text, html or json")
	rootCmd.AddCommand(renderCmd)
}
