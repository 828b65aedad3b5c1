// Package sink combines result sinks.
package sink

import (
	"context"
	"errors"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
	"github.com/cometadata/preprint-affiliations/internal/core/ports"
)

// Multi writes every document to each sink in order and stops at the first
// error. Sinks that do not accept parses are skipped by WriteParse.
type Multi struct {
	sinks []ports.PredictionSink
}

func NewMulti(sinks ...ports.PredictionSink) *Multi {
	kept := make([]ports.PredictionSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Multi{sinks: kept}
}

func (m *Multi) Write(ctx context.Context, doc domain.PredictionDocument) error {
	for _, s := range m.sinks {
		if err := s.Write(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi) WriteParse(ctx context.Context, parse domain.AffiliationParse) error {
	for _, s := range m.sinks {
		ps, ok := s.(ports.ParseSink)
		if !ok {
			continue
		}
		if err := ps.WriteParse(ctx, parse); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
