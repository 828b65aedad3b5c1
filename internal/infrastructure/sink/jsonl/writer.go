// Package jsonl writes pipeline results as JSON Lines.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
)

// Writer emits one JSON object per line and flushes after every record, so a
// failed run keeps everything written before the failure.
type Writer struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
	lines  int
}

// Create truncates (or creates) path and its parent directories.
func Create(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	w := New(f)
	w.closer = f
	return w, nil
}

// New writes to w without taking ownership of it.
func New(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &Writer{buf: buf, enc: enc}
}

func (w *Writer) Write(_ context.Context, doc domain.PredictionDocument) error {
	return w.writeLine(doc)
}

func (w *Writer) WriteParse(_ context.Context, parse domain.AffiliationParse) error {
	if parse.Prediction == nil {
		parse.Prediction = []any{}
	}
	return w.writeLine(parse)
}

// Lines reports how many records were written.
func (w *Writer) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

func (w *Writer) writeLine(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("encode jsonl record: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush jsonl record: %w", err)
	}
	w.lines++
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush jsonl output: %w", err)
	}
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
