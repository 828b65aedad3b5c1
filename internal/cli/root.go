// Package cli provides the affiliations command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	httpadapter "github.com/cometadata/preprint-affiliations/internal/adapters/http"
	"github.com/cometadata/preprint-affiliations/internal/bootstrap"
	"github.com/cometadata/preprint-affiliations/internal/config"
	"github.com/cometadata/preprint-affiliations/internal/observability/logging"
	"github.com/cometadata/preprint-affiliations/internal/observability/metrics"
)

const service = "affiliations"

// rootOptions holds the persistent flags and the output streams shared by
// every subcommand.
type rootOptions struct {
	configPath  string
	logLevel    string
	metricsAddr string

	stdout io.Writer
	stderr io.Writer
}

// NewRootCommand builds the command tree. Streams are injected for tests.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "affiliations",
		Short: "Extract author affiliations from arXiv preprints",
		Long: `Affiliations runs the preprint affiliation pipeline.

PDFs are converted to TEI with Grobid or to markdown text, TEI author blocks
are exported as JSON Lines, and a fine-tuned model served by vLLM parses
affiliations out of markdown.

Examples:
  affiliations pdf-to-tei --input-dir pdfs --output-dir tei --workers 4
  affiliations tei-to-json --input-csv records.csv --tei-xml-dir tei --output-file out.jsonl
  affiliations parse-affiliations --prompt-file prompt.txt --input-dir md --output-file parses.jsonl
  affiliations load-lora --lora-name affiliation-lora --lora-path /models/lora`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (environment overrides it)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /healthz and /metrics on this address while running")

	root.AddCommand(newPDFToTEICommand(opts))
	root.AddCommand(newPDFToMarkdownCommand(opts))
	root.AddCommand(newTEIToJSONCommand(opts))
	root.AddCommand(newParseAffiliationsCommand(opts))
	root.AddCommand(newLoadLoRACommand(opts))
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitCode(err)
	}
	return 0
}

// loadConfig layers the persistent flags over file and environment, lets the
// command apply its own overrides and validates the result.
func (o *rootOptions) loadConfig(cmd *cobra.Command, override func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	if override != nil {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (o *rootOptions) newApp(cfg config.Config) *bootstrap.App {
	logger := logging.NewJSONLoggerTo(o.stderr, service, cfg.LogLevel)
	slog.SetDefault(logger)
	return bootstrap.New(cfg, logger)
}

// run executes fn, serving the ops endpoint alongside when configured.
func (o *rootOptions) run(ctx context.Context, app *bootstrap.App, fn func(context.Context) error) error {
	if app.Config.MetricsAddr == "" {
		return fn(ctx)
	}

	srv, err := httpadapter.ListenOps(app.Config.MetricsAddr, httpadapter.OpsOptions{
		Logger:      app.Logger,
		Metrics:     app.Metrics.Handler(),
		HTTPMetrics: metrics.NewHTTPServerMetrics(service, app.Metrics.Registry()),
	})
	if err != nil {
		return err
	}

	opsCtx, stop := context.WithCancel(ctx)
	var (
		wg     sync.WaitGroup
		opsErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		opsErr = srv.Serve(opsCtx)
	}()

	runErr := fn(ctx)
	stop()
	wg.Wait()
	return errors.Join(runErr, opsErr)
}
