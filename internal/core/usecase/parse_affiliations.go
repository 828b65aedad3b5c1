package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
	"github.com/cometadata/preprint-affiliations/internal/core/ports"
)

// ParseAffiliationsUseCase asks the fine-tuned model to parse the affiliations
// of markdown documents and recovers its fenced JSON answer.
type ParseAffiliationsUseCase struct {
	input     ports.ObjectStorage
	truncator ports.TextTruncator
	completer ports.ChatCompleter
	decoder   ports.ResponseDecoder
	sink      ports.ParseSink
	observer  ports.BatchObserver
	logger    *slog.Logger
}

// NewParseAffiliationsUseCase wires the driver; sink may be nil when results
// are only returned to the caller.
func NewParseAffiliationsUseCase(
	input ports.ObjectStorage,
	truncator ports.TextTruncator,
	completer ports.ChatCompleter,
	decoder ports.ResponseDecoder,
	sink ports.ParseSink,
	opts BatchOptions,
) *ParseAffiliationsUseCase {
	opts = opts.normalize()
	return &ParseAffiliationsUseCase{
		input:     input,
		truncator: truncator,
		completer: completer,
		decoder:   decoder,
		sink:      sink,
		observer:  opts.Observer,
		logger:    opts.Logger.With("driver", DriverParseAffiliations),
	}
}

// ParseFile parses one markdown file of the input storage.
func (uc *ParseAffiliationsUseCase) ParseFile(ctx context.Context, systemPrompt, name string) (domain.AffiliationParse, error) {
	started := time.Now()
	uc.observer.ItemStarted(DriverParseAffiliations)

	parse, err := uc.parse(ctx, systemPrompt, name)
	if err == nil && uc.sink != nil {
		if sinkErr := uc.sink.WriteParse(ctx, parse); sinkErr != nil {
			err = fmt.Errorf("write parse: %w", sinkErr)
		}
	}

	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailed
	}
	uc.observer.ItemFinished(DriverParseAffiliations, outcome, time.Since(started))
	if err != nil {
		return domain.AffiliationParse{}, err
	}
	return parse, nil
}

// ParseDir parses every markdown file of the input storage in name order,
// continuing past failures.
func (uc *ParseAffiliationsUseCase) ParseDir(ctx context.Context, systemPrompt string) (domain.BatchReport, error) {
	report := domain.BatchReport{RunID: uuid.NewString()}
	logger := uc.logger.With("run_id", report.RunID)

	names, err := uc.input.List(ctx, "*.md")
	if err != nil {
		return report, fmt.Errorf("list markdown files: %w", err)
	}
	if len(names) == 0 {
		return report, domain.WrapError(domain.ErrInvalidInput, "parse affiliations", errors.New("No markdown files found"))
	}

	var last error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("parse affiliations interrupted: %w", err)
		}
		if _, err := uc.ParseFile(ctx, systemPrompt, name); err != nil {
			logger.Warn("item_failed", "file", name, "error", err)
			report.Failed = append(report.Failed, name)
			last = err
			continue
		}
		report.Processed++
	}

	logger.Info("batch_finished", "processed", report.Processed, "failed", len(report.Failed))
	if last != nil {
		return report, &domain.BatchError{
			Operation: "parse affiliations",
			Failed:    report.Failed,
			Last:      last,
		}
	}
	return report, nil
}

func (uc *ParseAffiliationsUseCase) parse(ctx context.Context, systemPrompt, name string) (domain.AffiliationParse, error) {
	markdown, err := uc.readMarkdown(ctx, name)
	if err != nil {
		return domain.AffiliationParse{}, err
	}

	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: systemPrompt},
		{Role: domain.RoleUser, Content: uc.truncator.Truncate(markdown)},
	}
	content, err := uc.completer.Complete(ctx, messages)
	if err != nil {
		return domain.AffiliationParse{}, fmt.Errorf("chat completion for %s: %w", name, err)
	}

	value, err := uc.decoder.Decode(content)
	if err != nil {
		uc.logger.Warn("json_not_recovered", "file", name, "error", err, "content", content)
		return domain.AffiliationParse{}, fmt.Errorf("recover json for %s: %w", name, err)
	}

	entries, err := affiliationEntries(value)
	if err != nil {
		uc.logger.Warn("json_unexpected_shape", "file", name, "content", content)
		return domain.AffiliationParse{}, domain.WrapError(domain.ErrUnexpectedShape, "recover json for "+name, err)
	}
	uc.logger.Debug("affiliations_parsed", "file", name, "entries", len(entries))

	return domain.AffiliationParse{Source: name, Prediction: entries}, nil
}

func (uc *ParseAffiliationsUseCase) readMarkdown(ctx context.Context, name string) (string, error) {
	rc, err := uc.input.Open(ctx, name)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "read "+name, errors.New("empty markdown"))
	}
	return string(raw), nil
}

// affiliationEntries accepts a JSON array of objects. An empty array is a
// valid answer for a paper without affiliations.
func affiliationEntries(value any) ([]any, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON array, got %T", value)
	}
	for i, item := range list {
		if _, ok := item.(map[string]any); !ok {
			return nil, fmt.Errorf("element %d is %T, expected an object", i, item)
		}
	}
	return list, nil
}
