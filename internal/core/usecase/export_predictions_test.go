package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
)

func janeDoe() []domain.AuthorAffiliation {
	return []domain.AuthorAffiliation{{
		Name: "Jane Doe",
		Affiliations: []domain.AffiliationEntry{
			{Affiliation: "Dept. of Physics, MIT, Cambridge, USA"},
		},
	}}
}

func TestExportPredictionsWritesDocumentsInRecordOrder(t *testing.T) {
	records := &recordSourceFake{records: []domain.SourceRecord{
		{DOI: "10.48550/arXiv.2301.00002"},
		{DOI: "10.48550/arXiv.2301.00001"},
		{DOI: "10.48550/arXiv.hep-th/9901001"},
	}}
	tei := newMemoryStorage(map[string]string{
		"2301.00001.tei.xml":     "tei-1",
		"2301.00002.tei.xml":     "tei-2",
		"hep-th_9901001.tei.xml": "tei-3",
	})
	extractor := &authorExtractorFake{authors: map[string][]domain.AuthorAffiliation{
		"tei-2": janeDoe(),
	}}
	sink := &predictionSinkFake{}
	observer := newObserverFake()

	uc := NewExportPredictionsUseCase(records, tei, extractor, sink, BatchOptions{Observer: observer})
	written, err := uc.Export(context.Background(), "records.csv")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if written != 3 || len(sink.docs) != 3 {
		t.Fatalf("expected 3 documents, got written=%d docs=%d", written, len(sink.docs))
	}

	first := sink.docs[0]
	if first.ArxivID != "arXiv:2301.00002" || first.DOI != "10.48550/arXiv.2301.00002" {
		t.Fatalf("unexpected first document: %+v", first)
	}
	if len(first.Prediction) != 1 || first.Prediction[0].Name != "Jane Doe" {
		t.Fatalf("unexpected prediction: %+v", first.Prediction)
	}
	if sink.docs[1].ArxivID != "arXiv:2301.00001" {
		t.Fatalf("record order not preserved: %+v", sink.docs[1])
	}
	if sink.docs[2].ArxivID != "arXiv:hep-th/9901001" {
		t.Fatalf("old-style id must keep its slash: %+v", sink.docs[2])
	}
	if observer.outcomes[OutcomeSuccess] != 3 {
		t.Fatalf("unexpected observations: %+v", observer.outcomes)
	}
}

func TestExportPredictionsAbortsOnMalformedDOI(t *testing.T) {
	records := &recordSourceFake{records: []domain.SourceRecord{
		{DOI: "10.48550/arXiv.2301.00001"},
		{DOI: "10.1000/xyz123"},
		{DOI: "10.48550/arXiv.2301.00003"},
	}}
	tei := newMemoryStorage(map[string]string{
		"2301.00001.tei.xml": "tei-1",
		"2301.00003.tei.xml": "tei-3",
	})
	sink := &predictionSinkFake{}

	uc := NewExportPredictionsUseCase(records, tei, &authorExtractorFake{}, sink, BatchOptions{})
	written, err := uc.Export(context.Background(), "records.csv")
	if !errors.Is(err, domain.ErrMalformedDOI) {
		t.Fatalf("expected ErrMalformedDOI, got %v", err)
	}
	if !strings.Contains(err.Error(), "record 2") {
		t.Fatalf("expected record position in error, got %v", err)
	}
	if written != 1 || len(sink.docs) != 1 {
		t.Fatalf("expected only the first record written, got %d", written)
	}
}

func TestExportPredictionsReportsMissingTEI(t *testing.T) {
	records := &recordSourceFake{records: []domain.SourceRecord{{DOI: "10.48550/arXiv.2301.00009"}}}

	uc := NewExportPredictionsUseCase(records, newMemoryStorage(nil), &authorExtractorFake{}, &predictionSinkFake{}, BatchOptions{})
	_, err := uc.Export(context.Background(), "records.csv")
	if !errors.Is(err, domain.ErrMissingTEIFile) {
		t.Fatalf("expected ErrMissingTEIFile, got %v", err)
	}
	if !strings.Contains(err.Error(), "2301.00009.tei.xml") {
		t.Fatalf("expected missing file name in error, got %v", err)
	}
}

func TestExportPredictionsPropagatesExtractAndSinkErrors(t *testing.T) {
	records := &recordSourceFake{records: []domain.SourceRecord{{DOI: "10.48550/arXiv.2301.00001"}}}
	tei := newMemoryStorage(map[string]string{"2301.00001.tei.xml": "<broken"})

	extractErr := domain.WrapError(domain.ErrTEIParse, "extract", errors.New("bad xml"))
	uc := NewExportPredictionsUseCase(records, tei, &authorExtractorFake{err: extractErr}, &predictionSinkFake{}, BatchOptions{})
	if _, err := uc.Export(context.Background(), "r.csv"); !errors.Is(err, domain.ErrTEIParse) {
		t.Fatalf("expected ErrTEIParse, got %v", err)
	}

	sinkErr := errors.New("connection reset")
	uc = NewExportPredictionsUseCase(records, tei, &authorExtractorFake{}, &predictionSinkFake{writeErr: sinkErr}, BatchOptions{})
	if _, err := uc.Export(context.Background(), "r.csv"); !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestExportPredictionsFailsWhenRecordsCannotLoad(t *testing.T) {
	loadErr := domain.WrapError(domain.ErrInvalidInput, "load records", errors.New("no doi column"))
	uc := NewExportPredictionsUseCase(&recordSourceFake{err: loadErr}, newMemoryStorage(nil), &authorExtractorFake{}, &predictionSinkFake{}, BatchOptions{})
	written, err := uc.Export(context.Background(), "r.csv")
	if !errors.Is(err, domain.ErrInvalidInput) || written != 0 {
		t.Fatalf("expected ErrInvalidInput and nothing written, got %d %v", written, err)
	}
}
