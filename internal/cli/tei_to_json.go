package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cometadata/preprint-affiliations/internal/bootstrap"
	"github.com/cometadata/preprint-affiliations/internal/config"
)

type sinkFlags struct {
	postgresDSN string
	natsURL     string
	natsSubject string
}

func (f *sinkFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.postgresDSN, "postgres-dsn", "", "Also upsert results into Postgres")
	cmd.Flags().StringVar(&f.natsURL, "nats-url", "", "Also publish results to NATS")
	cmd.Flags().StringVar(&f.natsSubject, "nats-subject", "", "NATS subject (default from config)")
}

func (f *sinkFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("postgres-dsn") {
		cfg.PostgresDSN = f.postgresDSN
	}
	if cmd.Flags().Changed("nats-url") {
		cfg.NATSURL = f.natsURL
	}
	if cmd.Flags().Changed("nats-subject") {
		cfg.NATSSubject = f.natsSubject
	}
}

func sinksFor(cfg config.Config, outputFile string) bootstrap.Sinks {
	return bootstrap.Sinks{
		OutputFile:  outputFile,
		PostgresDSN: cfg.PostgresDSN,
		NATSURL:     cfg.NATSURL,
		NATSSubject: cfg.NATSSubject,
	}
}

type teiToJSONOptions struct {
	inputCSV   string
	teiXMLDir  string
	outputFile string
	sinks      sinkFlags
}

func newTEIToJSONCommand(root *rootOptions) *cobra.Command {
	opts := &teiToJSONOptions{}
	cmd := &cobra.Command{
		Use:   "tei-to-json",
		Short: "Export TEI author affiliations as JSON Lines",
		Long: `Read a CSV or XLSX record list with a "doi" column, look up the TEI file of
each arXiv DOI and write one prediction document per record, in record order.
The export stops at the first malformed DOI or missing TEI file.

Examples:
  affiliations tei-to-json --input-csv records.csv --tei-xml-dir tei --output-file out.jsonl
  affiliations tei-to-json --input-csv records.xlsx --tei-xml-dir tei --output-file out.jsonl \
    --postgres-dsn postgres://localhost/affiliations`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTEIToJSON(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.inputCSV, "input-csv", "", "Record list (CSV or XLSX) with a doi column")
	cmd.Flags().StringVar(&opts.teiXMLDir, "tei-xml-dir", "", "Directory containing <arxiv id>.tei.xml files")
	cmd.Flags().StringVar(&opts.outputFile, "output-file", "", "JSON Lines output file")
	opts.sinks.register(cmd)
	_ = cmd.MarkFlagRequired("input-csv")
	_ = cmd.MarkFlagRequired("tei-xml-dir")
	_ = cmd.MarkFlagRequired("output-file")
	return cmd
}

func runTEIToJSON(cmd *cobra.Command, root *rootOptions, opts *teiToJSONOptions) (err error) {
	cfg, err := root.loadConfig(cmd, func(cfg *config.Config) {
		opts.sinks.apply(cmd, cfg)
	})
	if err != nil {
		return err
	}
	app := root.newApp(cfg)

	out, err := app.OpenSinks(cmd.Context(), sinksFor(cfg, opts.outputFile))
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	uc, err := app.TEIToJSON(opts.teiXMLDir, out)
	if err != nil {
		return err
	}
	return root.run(cmd.Context(), app, func(ctx context.Context) error {
		written, err := uc.Export(ctx, opts.inputCSV)
		if err != nil {
			return err
		}
		fmt.Fprintf(root.stdout, "Wrote %d records to %s\n", written, opts.outputFile)
		return nil
	})
}
