package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
)

func TestConvertPDFsToMarkdown(t *testing.T) {
	input := newMemoryStorage(map[string]string{"1109.3792.pdf": "body"})
	output := newMemoryStorage(nil)

	uc := NewConvertPDFsToMarkdownUseCase(input, output, &markdownConverterFake{}, BatchOptions{})
	report, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Processed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got, _ := output.get("1109.3792.md"); got != "# body" {
		t.Fatalf("unexpected markdown: %q", got)
	}
}

func TestConvertPDFsToMarkdownReportsSaveFailure(t *testing.T) {
	input := newMemoryStorage(map[string]string{"a.pdf": "a"})
	output := newMemoryStorage(nil)
	output.saveErr = errors.New("disk full")

	uc := NewConvertPDFsToMarkdownUseCase(input, output, &markdownConverterFake{}, BatchOptions{})
	report, err := uc.Run(context.Background())
	if !errors.Is(err, domain.ErrBatchIncomplete) {
		t.Fatalf("expected ErrBatchIncomplete, got %v", err)
	}
	if len(report.Failed) != 1 || report.Failed[0] != "a.pdf" {
		t.Fatalf("unexpected failures: %v", report.Failed)
	}
}

func TestConvertPDFsToMarkdownFailsOnEmptyInput(t *testing.T) {
	uc := NewConvertPDFsToMarkdownUseCase(newMemoryStorage(nil), newMemoryStorage(nil), &markdownConverterFake{}, BatchOptions{})
	if _, err := uc.Run(context.Background()); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
