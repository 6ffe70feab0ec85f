package storage

import (
	"context"
	"errors"

	"listing-scraper/models"
)

// Sink is what every writer in this package implements.
type Sink interface {
	Write(ctx context.Context, l models.Listing) error
	Close() error
}

// MultiSink writes each listing to every sink. A failing sink does not stop
// the others; all errors are joined.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Write(ctx context.Context, l models.Listing) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, l); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Len() int { return len(m.sinks) }
