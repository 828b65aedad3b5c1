package cli

import (
	"context"

	"github.com/spf13/cobra"
)

type pdfToMarkdownOptions struct {
	inputDir  string
	outputDir string
}

func newPDFToMarkdownCommand(root *rootOptions) *cobra.Command {
	opts := &pdfToMarkdownOptions{}
	cmd := &cobra.Command{
		Use:   "pdf-to-markdown",
		Short: "Convert a directory of PDFs to markdown text",
		Long: `Extract the text of every *.pdf of the input directory and write <name>.md
to the output directory, one paragraph block per page.

Example:
  affiliations pdf-to-markdown --input-dir pdfs --output-dir md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			app := root.newApp(cfg)

			uc, err := app.PDFToMarkdown(opts.inputDir, opts.outputDir)
			if err != nil {
				return err
			}
			return root.run(cmd.Context(), app, func(ctx context.Context) error {
				_, err := uc.Run(ctx)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&opts.inputDir, "input-dir", "", "Directory containing PDF files")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "Directory for markdown files (created if missing)")
	_ = cmd.MarkFlagRequired("input-dir")
	_ = cmd.MarkFlagRequired("output-dir")
	return cmd
}
