package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/cometadata/preprint-affiliations/internal/config"
)

type pdfToTEIOptions struct {
	inputDir     string
	outputDir    string
	endpointURL  string
	workers      int
	rateLimitRPS float64
}

func newPDFToTEICommand(root *rootOptions) *cobra.Command {
	opts := &pdfToTEIOptions{}
	cmd := &cobra.Command{
		Use:   "pdf-to-tei",
		Short: "Convert a directory of PDFs to TEI XML with Grobid",
		Long: `Send every *.pdf of the input directory to a Grobid header endpoint and
write <name>.tei.xml to the output directory. Files whose output already
exists are skipped, failures are reported together at the end.

Examples:
  affiliations pdf-to-tei --input-dir pdfs --output-dir tei
  affiliations pdf-to-tei --input-dir pdfs --output-dir tei --workers 4 \
    --endpoint-url http://grobid:8070/api/processHeaderDocument`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPDFToTEI(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.inputDir, "input-dir", "", "Directory containing PDF files")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "Directory for TEI XML files (created if missing)")
	cmd.Flags().StringVar(&opts.endpointURL, "endpoint-url", "", "Grobid endpoint (default from config)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent Grobid requests (default from config)")
	cmd.Flags().Float64Var(&opts.rateLimitRPS, "rate-limit-rps", 0, "Maximum Grobid requests per second, 0 for unlimited")
	_ = cmd.MarkFlagRequired("input-dir")
	_ = cmd.MarkFlagRequired("output-dir")
	return cmd
}

func runPDFToTEI(cmd *cobra.Command, root *rootOptions, opts *pdfToTEIOptions) error {
	cfg, err := root.loadConfig(cmd, func(cfg *config.Config) {
		if cmd.Flags().Changed("endpoint-url") {
			cfg.Grobid.URL = opts.endpointURL
		}
		if cmd.Flags().Changed("workers") {
			cfg.Grobid.Workers = opts.workers
		}
		if cmd.Flags().Changed("rate-limit-rps") {
			cfg.Grobid.RateLimitRPS = opts.rateLimitRPS
		}
	})
	if err != nil {
		return err
	}
	app := root.newApp(cfg)

	uc, err := app.PDFToTEI(opts.inputDir, opts.outputDir)
	if err != nil {
		return err
	}
	return root.run(cmd.Context(), app, func(ctx context.Context) error {
		_, err := uc.Run(ctx)
		return err
	})
}
