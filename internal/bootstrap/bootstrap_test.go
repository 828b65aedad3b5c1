package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cometadata/preprint-affiliations/internal/config"
	"github.com/cometadata/preprint-affiliations/internal/core/domain"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/resilience"
)

func testApp(t *testing.T) *App {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	return New(config.Defaults(), logger)
}

func TestResilienceConfigMapsSection(t *testing.T) {
	got := ResilienceConfig(config.ResilienceConfig{
		RetryMaxAttempts:        4,
		RetryInitialBackoff:     time.Second,
		RetryMaxBackoff:         3 * time.Second,
		RetryMultiplier:         1.5,
		BreakerEnabled:          true,
		BreakerMinRequests:      7,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: -1,
	})
	if got.RetryMaxAttempts != 4 || got.BreakerMinRequests != 7 || got.RetryMultiplier != 1.5 {
		t.Fatalf("unexpected mapping: %+v", got)
	}
	if got.BreakerHalfOpenMaxCalls != 0 {
		t.Fatalf("negative counts must clamp to zero, got %d", got.BreakerHalfOpenMaxCalls)
	}
}

func TestDefaultResilienceSectionMatchesExecutorDefaults(t *testing.T) {
	got := ResilienceConfig(config.Defaults().Resilience)
	if want := resilience.DefaultConfig(); got != want {
		t.Fatalf("config defaults drifted from executor defaults:\n got %+v\nwant %+v", got, want)
	}
}

func TestNewAssignsRunID(t *testing.T) {
	a, b := testApp(t), testApp(t)
	if a.RunID == "" || a.RunID == b.RunID {
		t.Fatalf("expected distinct run ids, got %q and %q", a.RunID, b.RunID)
	}
}

func TestPDFToTEIRequiresExistingInputDir(t *testing.T) {
	app := testApp(t)
	_, err := app.PDFToTEI(filepath.Join(t.TempDir(), "missing"), t.TempDir())
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPDFToMarkdownCreatesOutputDir(t *testing.T) {
	app := testApp(t)
	out := filepath.Join(t.TempDir(), "nested", "md")
	if _, err := app.PDFToMarkdown(t.TempDir(), out); err != nil {
		t.Fatalf("PDFToMarkdown() error = %v", err)
	}
	if info, err := os.Stat(out); err != nil || !info.IsDir() {
		t.Fatalf("expected output dir to be created: %v", err)
	}
}

func TestOpenSinksWritesJSONL(t *testing.T) {
	app := testApp(t)
	path := filepath.Join(t.TempDir(), "out", "predictions.jsonl")

	sinks, err := app.OpenSinks(context.Background(), Sinks{OutputFile: path})
	if err != nil {
		t.Fatalf("OpenSinks() error = %v", err)
	}
	doc := domain.PredictionDocument{ArxivID: "arXiv:2301.00001", DOI: "10.48550/arXiv.2301.00001"}
	if err := sinks.Write(context.Background(), doc); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := sinks.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	want := `{"arxiv_id":"arXiv:2301.00001","doi":"10.48550/arXiv.2301.00001","prediction":[]}` + "\n"
	if string(raw) != want {
		t.Fatalf("unexpected output %q", raw)
	}
}

func TestOpenSinksClosesOpenedSinksOnFailure(t *testing.T) {
	app := testApp(t)
	path := filepath.Join(t.TempDir(), "predictions.jsonl")

	_, err := app.OpenSinks(context.Background(), Sinks{
		OutputFile:  path,
		PostgresDSN: "postgres://invalid host:bad/",
	})
	if err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected postgres open error, got %v", err)
	}
}

func TestParseAffiliationsFallsBackToConfiguredLimit(t *testing.T) {
	app := testApp(t)
	uc, err := app.ParseAffiliations(t.TempDir(), app.VLLM("", "", 0), 0, nil)
	if err != nil || uc == nil {
		t.Fatalf("ParseAffiliations() = %v, %v", uc, err)
	}
	if app.VLLM("", "", 0).Model() != "affiliation-lora" {
		t.Fatalf("expected configured model")
	}
	if app.VLLM("", "custom", 0).Model() != "custom" {
		t.Fatalf("expected explicit model to win")
	}
}
