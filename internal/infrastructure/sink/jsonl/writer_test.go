package jsonl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
)

func TestWriterEmitsOneLinePerDocumentInOrder(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	ctx := context.Background()

	docs := []domain.PredictionDocument{
		{
			ArxivID: "arXiv:2101.00001",
			DOI:     "10.48550/arXiv.2101.00001",
			Prediction: []domain.AuthorAffiliation{
				{Name: "Jane Doe", Affiliations: []domain.AffiliationEntry{{Affiliation: "R&D <Lab> & B"}}},
			},
		},
		{ArxivID: "arXiv:2101.00002", DOI: "10.48550/arXiv.2101.00002"},
	}
	for _, doc := range docs {
		if err := w.Write(ctx, doc); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	want := `{"arxiv_id":"arXiv:2101.00001","doi":"10.48550/arXiv.2101.00001","prediction":[{"name":"Jane Doe","affiliations":[{"affiliation":"R&D <Lab> & B","ror_id":null}]}]}` + "\n" +
		`{"arxiv_id":"arXiv:2101.00002","doi":"10.48550/arXiv.2101.00002","prediction":[]}` + "\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", buf.String(), want)
	}
	if w.Lines() != 2 {
		t.Fatalf("expected 2 lines, got %d", w.Lines())
	}
}

func TestWriterParseLineShape(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	if err := w.WriteParse(context.Background(), domain.AffiliationParse{Source: "a.md"}); err != nil {
		t.Fatalf("WriteParse() error = %v", err)
	}
	if buf.String() != `{"source":"a.md","prediction":[]}`+"\n" {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestCreateMakesParentDirsAndPersistsEachLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.jsonl")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer w.Close()

	if err := w.Write(context.Background(), domain.PredictionDocument{ArxivID: "arXiv:x", DOI: "d"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(raw) != `{"arxiv_id":"arXiv:x","doi":"d","prediction":[]}`+"\n" {
		t.Fatalf("expected the line on disk before Close, got %q", raw)
	}
}
