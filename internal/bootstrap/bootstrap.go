// Package bootstrap wires configuration into the pipeline drivers.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/cometadata/preprint-affiliations/internal/config"
	"github.com/cometadata/preprint-affiliations/internal/core/ports"
	"github.com/cometadata/preprint-affiliations/internal/core/usecase"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/chunking"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/extractor/pdftext"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/grobid"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/llm/fencedjson"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/llm/vllm"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/queue/nats"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/records"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/repository/postgres"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/resilience"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/sink"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/sink/jsonl"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/storage/localfs"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/tei"
	"github.com/cometadata/preprint-affiliations/internal/observability/metrics"
)

const service = "affiliations"

// App holds what every command shares: configuration, logger, metrics and
// one resilience executor for all outbound calls.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Metrics  *metrics.BatchMetrics
	Executor *resilience.Executor
	RunID    string
}

func New(cfg config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	batchMetrics := metrics.NewBatchMetrics(service)
	executor := resilience.NewExecutor(ResilienceConfig(cfg.Resilience)).
		WithLogger(logger).
		WithObserver(batchMetrics)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  batchMetrics,
		Executor: executor,
		RunID:    uuid.NewString(),
	}
}

// ResilienceConfig maps the configuration section onto the executor policy.
func ResilienceConfig(c config.ResilienceConfig) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        c.RetryMaxAttempts,
		RetryInitialBackoff:     c.RetryInitialBackoff,
		RetryMaxBackoff:         c.RetryMaxBackoff,
		RetryMultiplier:         c.RetryMultiplier,
		BreakerEnabled:          c.BreakerEnabled,
		BreakerMinRequests:      toUint32(c.BreakerMinRequests),
		BreakerFailureRatio:     c.BreakerFailureRatio,
		BreakerOpenTimeout:      c.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: toUint32(c.BreakerHalfOpenMaxCalls),
	}
}

func toUint32(v int) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v)
}

func (a *App) batchOptions(workers int) usecase.BatchOptions {
	return usecase.BatchOptions{
		Workers:  workers,
		Observer: a.Metrics,
		Logger:   a.Logger,
	}
}

func (a *App) directories(inputDir, outputDir string) (*localfs.Storage, *localfs.Storage, error) {
	input, err := localfs.NewExisting(inputDir)
	if err != nil {
		return nil, nil, fmt.Errorf("input directory: %w", err)
	}
	output, err := localfs.New(outputDir)
	if err != nil {
		return nil, nil, fmt.Errorf("output directory: %w", err)
	}
	return input, output, nil
}

func (a *App) PDFToTEI(inputDir, outputDir string) (*usecase.ConvertPDFsToTEIUseCase, error) {
	input, output, err := a.directories(inputDir, outputDir)
	if err != nil {
		return nil, err
	}
	client := grobid.New(a.Config.Grobid.URL, grobid.Options{
		Timeout:            a.Config.Grobid.Timeout,
		RateLimitRPS:       a.Config.Grobid.RateLimitRPS,
		Logger:             a.Logger,
		ResilienceExecutor: a.Executor,
	})
	return usecase.NewConvertPDFsToTEIUseCase(input, output, client, a.batchOptions(a.Config.Grobid.Workers)), nil
}

func (a *App) PDFToMarkdown(inputDir, outputDir string) (*usecase.ConvertPDFsToMarkdownUseCase, error) {
	input, output, err := a.directories(inputDir, outputDir)
	if err != nil {
		return nil, err
	}
	converter := pdftext.NewConverter(a.Logger)
	return usecase.NewConvertPDFsToMarkdownUseCase(input, output, converter, a.batchOptions(1)), nil
}

// Sinks lists the optional result sinks next to the mandatory JSONL file.
type Sinks struct {
	OutputFile  string
	PostgresDSN string
	NATSURL     string
	NATSSubject string
}

// OpenSinks opens every configured sink. On error, sinks already opened are
// closed again.
func (a *App) OpenSinks(ctx context.Context, s Sinks) (*sink.Multi, error) {
	var opened []ports.PredictionSink
	fail := func(err error) (*sink.Multi, error) {
		closeErr := sink.NewMulti(opened...).Close()
		return nil, errors.Join(err, closeErr)
	}

	if strings.TrimSpace(s.OutputFile) != "" {
		w, err := jsonl.Create(s.OutputFile)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, w)
	}

	if strings.TrimSpace(s.PostgresDSN) != "" {
		db, err := postgres.OpenDB(s.PostgresDSN)
		if err != nil {
			return fail(fmt.Errorf("open postgres: %w", err))
		}
		repo := postgres.NewPredictionRepository(db, a.RunID)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = repo.Close()
			return fail(fmt.Errorf("ensure schema: %w", err))
		}
		opened = append(opened, repo)
	}

	if strings.TrimSpace(s.NATSURL) != "" {
		publisher, err := nats.Connect(s.NATSURL, nats.Options{
			Subject:            s.NATSSubject,
			RunID:              a.RunID,
			ResilienceExecutor: a.Executor,
			Logger:             a.Logger,
		})
		if err != nil {
			return fail(fmt.Errorf("connect nats: %w", err))
		}
		opened = append(opened, publisher)
	}

	a.Logger.Debug("sinks_opened", "count", len(opened), "run_id", a.RunID)
	return sink.NewMulti(opened...), nil
}

func (a *App) TEIToJSON(teiDir string, out ports.PredictionSink) (*usecase.ExportPredictionsUseCase, error) {
	teiStorage, err := localfs.NewExisting(teiDir)
	if err != nil {
		return nil, fmt.Errorf("tei directory: %w", err)
	}
	return usecase.NewExportPredictionsUseCase(
		records.NewLoader(),
		teiStorage,
		tei.NewExtractor(a.Logger),
		out,
		a.batchOptions(1),
	), nil
}

// VLLM builds the inference client; blank arguments fall back to config.
func (a *App) VLLM(baseURL, model string, maxTokens int) *vllm.Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = a.Config.VLLM.URL
	}
	if strings.TrimSpace(model) == "" {
		model = a.Config.VLLM.Model
	}
	if maxTokens <= 0 {
		maxTokens = a.Config.VLLM.MaxTokens
	}
	return vllm.New(baseURL, vllm.Options{
		Model:              model,
		APIKey:             a.Config.VLLM.APIKey,
		MaxTokens:          maxTokens,
		Timeout:            a.Config.VLLM.Timeout,
		Logger:             a.Logger,
		ResilienceExecutor: a.Executor,
	})
}

// ParseAffiliations reads markdown from inputDir. out may be nil.
func (a *App) ParseAffiliations(inputDir string, completer ports.ChatCompleter, maxChars int, out ports.ParseSink) (*usecase.ParseAffiliationsUseCase, error) {
	input, err := localfs.NewExisting(inputDir)
	if err != nil {
		return nil, fmt.Errorf("input directory: %w", err)
	}
	if maxChars <= 0 {
		maxChars = a.Config.Prompt.MaxChars
	}
	truncator := chunking.NewTruncator(maxChars, a.Config.Prompt.MinTailWindow)
	return usecase.NewParseAffiliationsUseCase(
		input,
		truncator,
		completer,
		fencedjson.Decoder{},
		out,
		a.batchOptions(1),
	), nil
}

func (a *App) RegisterAdapter(registry ports.AdapterRegistry) *usecase.RegisterAdapterUseCase {
	return usecase.NewRegisterAdapterUseCase(registry, a.Logger)
}
