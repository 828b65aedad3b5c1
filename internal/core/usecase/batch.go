package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
	"github.com/cometadata/preprint-affiliations/internal/core/ports"
)

const (
	DriverPDFToTEI          = "pdf_to_tei"
	DriverPDFToMarkdown     = "pdf_to_markdown"
	DriverTEIToJSON         = "tei_to_json"
	DriverParseAffiliations = "parse_affiliations"

	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// BatchOptions carries the knobs shared by the batch drivers.
type BatchOptions struct {
	Workers  int
	Observer ports.BatchObserver
	Logger   *slog.Logger
}

func (o BatchOptions) normalize() BatchOptions {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.Observer == nil {
		o.Observer = noopObserver{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type noopObserver struct{}

func (noopObserver) ItemStarted(string)                         {}
func (noopObserver) ItemFinished(string, string, time.Duration) {}

// outputName maps "2101.00001.pdf" to "2101.00001<ext>".
func outputName(inputName, ext string) string {
	return strings.TrimSuffix(inputName, filepath.Ext(inputName)) + ext
}

// fileConversion converts every input file matching pattern into one output
// file, skipping outputs that already exist. Item failures are collected and
// never stop sibling items.
type fileConversion struct {
	driver    string
	operation string
	pattern   string
	outputExt string
	emptyErr  string

	input   ports.ObjectStorage
	output  ports.ObjectStorage
	convert func(ctx context.Context, name string, src io.Reader) (string, error)
	opts    BatchOptions
}

type itemFailure struct {
	index int
	name  string
	err   error
}

func (c fileConversion) run(ctx context.Context) (domain.BatchReport, error) {
	report := domain.BatchReport{RunID: uuid.NewString()}
	logger := c.opts.Logger.With("driver", c.driver, "run_id", report.RunID)

	names, err := c.input.List(ctx, c.pattern)
	if err != nil {
		return report, fmt.Errorf("list input files: %w", err)
	}
	if len(names) == 0 {
		return report, domain.WrapError(domain.ErrInvalidInput, c.operation, errors.New(c.emptyErr))
	}
	logger.Debug("batch_files", "count", len(names), "files", names)

	var (
		mu       sync.Mutex
		failures []itemFailure
	)
	var g errgroup.Group
	g.SetLimit(c.opts.Workers)

	for i, name := range names {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome, err := c.convertOne(ctx, logger, name)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case OutcomeSkipped:
				report.Skipped++
			case OutcomeSuccess:
				report.Processed++
			default:
				failures = append(failures, itemFailure{index: i, name: name, err: err})
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(failures, func(a, b int) bool { return failures[a].index < failures[b].index })
	for _, f := range failures {
		report.Failed = append(report.Failed, f.name)
	}

	logger.Info("batch_finished",
		"processed", report.Processed,
		"skipped", report.Skipped,
		"failed", len(report.Failed),
	)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("%s interrupted: %w", c.operation, err)
	}
	if len(failures) > 0 {
		return report, &domain.BatchError{
			Operation: c.operation,
			Failed:    report.Failed,
			Last:      failures[len(failures)-1].err,
		}
	}
	return report, nil
}

func (c fileConversion) convertOne(ctx context.Context, logger *slog.Logger, name string) (string, error) {
	started := time.Now()
	c.opts.Observer.ItemStarted(c.driver)

	outcome, err := c.process(ctx, logger, name)
	c.opts.Observer.ItemFinished(c.driver, outcome, time.Since(started))
	if err != nil {
		logger.Warn("item_failed", "file", name, "error", err)
	}
	return outcome, err
}

func (c fileConversion) process(ctx context.Context, logger *slog.Logger, name string) (string, error) {
	target := outputName(name, c.outputExt)
	exists, err := c.output.Exists(ctx, target)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("check output %s: %w", target, err)
	}
	if exists {
		logger.Info("skipping_already_converted", "file", target)
		return OutcomeSkipped, nil
	}

	src, err := c.input.Open(ctx, name)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("open %s: %w", name, err)
	}
	defer src.Close()

	converted, err := c.convert(ctx, name, src)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("convert %s: %w", name, err)
	}
	if err := c.output.Save(ctx, target, strings.NewReader(converted)); err != nil {
		return OutcomeFailed, fmt.Errorf("save %s: %w", target, err)
	}
	logger.Debug("item_converted", "file", name, "output", target, "bytes", len(converted))
	return OutcomeSuccess, nil
}
