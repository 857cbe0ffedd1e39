package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/diegolsarmond/jus-connect/internal/blog"
	"github.com/diegolsarmond/jus-connect/internal/input"
	"github.com/diegolsarmond/jus-connect/internal/output"
)

var postsCmd = &cobra.Command{
	Use:     "posts",
	Short:   "Work with blog posts",
	GroupID: "data",
}

var postsPreviewCmd = &cobra.Command{
	Use:   "preview <file.md|->",
	Short: "Preview a Markdown post in the terminal",
	Long: `Shows how a post will look before it is uploaded: the terminal rendering,
the slug derived from its title and the excerpt used in listings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := input.ReadSource(args[0], cmd.InOrStdin())
		if err != nil {
			output.Error("read post: %v", err)
			return err
		}
		body := string(raw)

		title, _ := cmd.Flags().GetString("title")
		if title == "" {
			title = postTitle(body, args[0])
		}
		rendered, err := blog.Render(body)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if htmlOut, _ := cmd.Flags().GetBool("html"); htmlOut {
			fmt.Println(rendered.HTML)
			return nil
		}

		width, _ := cmd.Flags().GetInt("width")
		pretty, err := output.RenderPost(title, body, width)
		if err != nil {
			output.Error("render markdown: %v", err)
			return err
		}
		fmt.Println(pretty)
		fmt.Print(output.SectionHeader("publicação"))
		for _, line := range output.BulletList([]string{
			"título: " + title,
			"slug: " + blog.Slugify(title),
			"resumo: " + rendered.Excerpt,
		}, 2) {
			fmt.Println(line)
		}
		return nil
	},
}

// postTitle uses the first Markdown heading, or the file name without its
// extension.
func postTitle(body, path string) string {
	for _, line := range strings.Split(body, "\n") {
		if t, ok := strings.CutPrefix(strings.TrimSpace(line), "#"); ok {
			return strings.TrimSpace(strings.TrimLeft(t, "#"))
		}
	}
	if path == "-" {
		return "sem-titulo"
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func init() {
	postsPreviewCmd.Flags().String("title", "", "post title (default: first heading)")
	postsPreviewCmd.Flags().Bool("html", false, "print the sanitized HTML instead")
	postsPreviewCmd.Flags().Int("width", 0, "wrap width (default: terminal width)")
	postsCmd.AddCommand(postsPreviewCmd)
	rootCmd.AddCommand(postsCmd)
}
