package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
)

type memoryStorage struct {
	mu      sync.Mutex
	files   map[string]string
	saveErr error
}

func newMemoryStorage(files map[string]string) *memoryStorage {
	if files == nil {
		files = map[string]string{}
	}
	return &memoryStorage{files: files}
}

func (s *memoryStorage) List(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for name := range s.files {
		if ok, _ := path.Match(pattern, name); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memoryStorage) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[key]
	return ok, nil
}

func (s *memoryStorage) Save(_ context.Context, key string, data io.Reader) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = string(raw)
	return nil
}

func (s *memoryStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[key]
	if !ok {
		return nil, fmt.Errorf("open %s: not found", key)
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func (s *memoryStorage) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.files[key]
	return v, ok
}

type teiConverterFake struct {
	mu     sync.Mutex
	fail   map[string]error
	called []string
}

func (f *teiConverterFake) ConvertPDF(_ context.Context, filename string, pdf io.Reader) (string, error) {
	f.mu.Lock()
	f.called = append(f.called, filename)
	err := f.fail[filename]
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	raw, _ := io.ReadAll(pdf)
	return "<TEI>" + string(raw) + "</TEI>", nil
}

type markdownConverterFake struct {
	err error
}

func (f *markdownConverterFake) ConvertPDF(_ context.Context, pdf io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	raw, _ := io.ReadAll(pdf)
	return "# " + string(raw), nil
}

type observerFake struct {
	mu       sync.Mutex
	started  int
	outcomes map[string]int
}

func newObserverFake() *observerFake {
	return &observerFake{outcomes: map[string]int{}}
}

func (f *observerFake) ItemStarted(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *observerFake) ItemFinished(_, outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[outcome]++
}

type recordSourceFake struct {
	records []domain.SourceRecord
	err     error
}

func (f *recordSourceFake) Load(context.Context, string) ([]domain.SourceRecord, error) {
	return f.records, f.err
}

type authorExtractorFake struct {
	authors map[string][]domain.AuthorAffiliation
	err     error
}

func (f *authorExtractorFake) Extract(teiXML string) ([]domain.AuthorAffiliation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.authors[teiXML], nil
}

type predictionSinkFake struct {
	docs     []domain.PredictionDocument
	parses   []domain.AffiliationParse
	writeErr error
}

func (f *predictionSinkFake) Write(_ context.Context, doc domain.PredictionDocument) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.docs = append(f.docs, doc)
	return nil
}

func (f *predictionSinkFake) WriteParse(_ context.Context, parse domain.AffiliationParse) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.parses = append(f.parses, parse)
	return nil
}

func (f *predictionSinkFake) Close() error { return nil }

type truncatorFake struct {
	limit int
}

func (f truncatorFake) Truncate(text string) string {
	if len(text) > f.limit {
		return text[:f.limit]
	}
	return text
}

type completerFake struct {
	responses map[string]string
	err       error
	requests  [][]domain.ChatMessage
}

func (f *completerFake) Complete(_ context.Context, messages []domain.ChatMessage) (string, error) {
	f.requests = append(f.requests, messages)
	if f.err != nil {
		return "", f.err
	}
	if len(messages) < 2 {
		return "", errors.New("expected system and user messages")
	}
	return f.responses[messages[1].Content], nil
}

// decoderFake treats the raw output as the recovered value key.
type decoderFake struct {
	values map[string]any
}

func (f decoderFake) Decode(output string) (any, error) {
	v, ok := f.values[output]
	if !ok {
		return nil, domain.ErrNoFencedBlock
	}
	return v, nil
}

type adapterRegistryFake struct {
	name, path string
	err        error
}

func (f *adapterRegistryFake) LoadAdapter(_ context.Context, name, path string) error {
	f.name, f.path = name, path
	return f.err
}
