package ports

import (
	"context"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
)

// TEIBatchConverter is the inbound contract of the PDF -> TEI driver.
type TEIBatchConverter interface {
	Run(ctx context.Context) (domain.BatchReport, error)
}

// MarkdownBatchConverter is the inbound contract of the PDF -> Markdown driver.
type MarkdownBatchConverter interface {
	Run(ctx context.Context) (domain.BatchReport, error)
}

// PredictionExporter is the inbound contract of the TEI -> JSONL driver.
type PredictionExporter interface {
	Export(ctx context.Context, recordListPath string) (int, error)
}

// AffiliationParser is the inbound contract of the model-based parse driver.
type AffiliationParser interface {
	ParseFile(ctx context.Context, systemPrompt, name string) (domain.AffiliationParse, error)
	ParseDir(ctx context.Context, systemPrompt string) (domain.BatchReport, error)
}

// AdapterLoader is the inbound contract of the LoRA registration command.
type AdapterLoader interface {
	Load(ctx context.Context, name, path string) error
}
