package ports

import (
	"context"
	"io"
	"time"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
)

// ObjectStorage reads and writes pipeline files under one root.
type ObjectStorage interface {
	List(ctx context.Context, pattern string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// TEIConverter turns a PDF into TEI XML (Grobid).
type TEIConverter interface {
	ConvertPDF(ctx context.Context, filename string, pdf io.Reader) (string, error)
}

// MarkdownConverter turns a PDF into markdown-ish plain text.
type MarkdownConverter interface {
	ConvertPDF(ctx context.Context, pdf io.Reader) (string, error)
}

// AuthorExtractor parses the article authorship out of a TEI document.
type AuthorExtractor interface {
	Extract(teiXML string) ([]domain.AuthorAffiliation, error)
}

// RecordSource loads the list of records (one DOI per row) to export.
type RecordSource interface {
	Load(ctx context.Context, path string) ([]domain.SourceRecord, error)
}

// TextTruncator bounds a document to the model's context budget.
type TextTruncator interface {
	Truncate(text string) string
}

// ChatCompleter sends a single-turn chat to the inference server.
type ChatCompleter interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// ResponseDecoder recovers a JSON payload from model output.
type ResponseDecoder interface {
	Decode(output string) (any, error)
}

// AdapterRegistry registers a LoRA adapter with the inference server.
type AdapterRegistry interface {
	LoadAdapter(ctx context.Context, name, path string) error
}

// PredictionSink receives TEI export documents in record order.
type PredictionSink interface {
	Write(ctx context.Context, doc domain.PredictionDocument) error
	Close() error
}

// ParseSink receives model-based affiliation parses.
type ParseSink interface {
	WriteParse(ctx context.Context, parse domain.AffiliationParse) error
}

// BatchObserver records per-item outcomes of a batch driver.
type BatchObserver interface {
	ItemStarted(driver string)
	ItemFinished(driver, outcome string, duration time.Duration)
}
