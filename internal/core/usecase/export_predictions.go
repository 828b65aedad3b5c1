package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
	"github.com/cometadata/preprint-affiliations/internal/core/ports"
)

// ExportPredictionsUseCase turns the TEI of every listed DOI into one
// prediction document. It stops at the first bad record: a DOI without an
// arXiv id, a missing TEI file or unparseable TEI.
type ExportPredictionsUseCase struct {
	records   ports.RecordSource
	tei       ports.ObjectStorage
	extractor ports.AuthorExtractor
	sink      ports.PredictionSink
	observer  ports.BatchObserver
	logger    *slog.Logger
}

func NewExportPredictionsUseCase(
	records ports.RecordSource,
	tei ports.ObjectStorage,
	extractor ports.AuthorExtractor,
	sink ports.PredictionSink,
	opts BatchOptions,
) *ExportPredictionsUseCase {
	opts = opts.normalize()
	return &ExportPredictionsUseCase{
		records:   records,
		tei:       tei,
		extractor: extractor,
		sink:      sink,
		observer:  opts.Observer,
		logger:    opts.Logger.With("driver", DriverTEIToJSON),
	}
}

// Export writes documents in record order and returns how many were written.
func (uc *ExportPredictionsUseCase) Export(ctx context.Context, recordListPath string) (int, error) {
	records, err := uc.records.Load(ctx, recordListPath)
	if err != nil {
		return 0, fmt.Errorf("load records: %w", err)
	}
	uc.logger.Info("records_loaded", "path", recordListPath, "count", len(records))

	written := 0
	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		started := time.Now()
		uc.observer.ItemStarted(DriverTEIToJSON)
		err := uc.exportRecord(ctx, record)
		outcome := OutcomeSuccess
		if err != nil {
			outcome = OutcomeFailed
		}
		uc.observer.ItemFinished(DriverTEIToJSON, outcome, time.Since(started))
		if err != nil {
			return written, fmt.Errorf("record %d (doi %q): %w", i+1, record.DOI, err)
		}
		written++
	}

	uc.logger.Info("export_finished", "written", written)
	return written, nil
}

func (uc *ExportPredictionsUseCase) exportRecord(ctx context.Context, record domain.SourceRecord) error {
	doc, err := uc.buildDocument(ctx, record.DOI)
	if err != nil {
		return err
	}
	uc.logger.Debug("prediction_built", "arxiv_id", doc.ArxivID, "authors", len(doc.Prediction))
	if err := uc.sink.Write(ctx, doc); err != nil {
		return fmt.Errorf("write prediction: %w", err)
	}
	return nil
}

func (uc *ExportPredictionsUseCase) buildDocument(ctx context.Context, doi string) (domain.PredictionDocument, error) {
	arxivID, err := domain.ArxivIDFromDOI(doi)
	if err != nil {
		return domain.PredictionDocument{}, err
	}
	filename, err := domain.ArxivIDFilenameFromDOI(doi)
	if err != nil {
		return domain.PredictionDocument{}, err
	}
	key := filename + teiExt
	uc.logger.Debug("tei_lookup", "doi", doi, "file", key)

	teiXML, err := uc.readTEI(ctx, key)
	if err != nil {
		return domain.PredictionDocument{}, err
	}
	authors, err := uc.extractor.Extract(teiXML)
	if err != nil {
		return domain.PredictionDocument{}, fmt.Errorf("extract authors from %s: %w", key, err)
	}

	return domain.PredictionDocument{
		ArxivID:    domain.CanonicalArxivID(arxivID),
		DOI:        doi,
		Prediction: authors,
	}, nil
}

func (uc *ExportPredictionsUseCase) readTEI(ctx context.Context, key string) (string, error) {
	exists, err := uc.tei.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("check tei file %s: %w", key, err)
	}
	if !exists {
		return "", domain.WrapError(domain.ErrMissingTEIFile, "export predictions", errors.New(key))
	}

	rc, err := uc.tei.Open(ctx, key)
	if err != nil {
		return "", fmt.Errorf("open tei file %s: %w", key, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read tei file %s: %w", key, err)
	}
	return string(raw), nil
}
