package scraper

import (
	"context"
	"strings"
	"sync"

	"listing-scraper/metrics"
	"listing-scraper/models"
)

// DedupStore remembers emitted URLs. CheckAndInsert must be atomic: of two
// concurrent calls for the same URL exactly one reports inserted.
type DedupStore interface {
	Seen(ctx context.Context, url string) (bool, error)
	CheckAndInsert(ctx context.Context, url string) (inserted bool, err error)
}

// Sink receives emitted records. Implementations are safe for concurrent Write.
type Sink interface {
	Write(ctx context.Context, l models.Listing) error
	Close() error
}

// MemoryDedup is a per-run URL set.
type MemoryDedup struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{seen: make(map[string]struct{})}
}

func (m *MemoryDedup) Seen(_ context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[url]
	return ok, nil
}

func (m *MemoryDedup) CheckAndInsert(_ context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[url]; ok {
		return false, nil
	}
	m.seen[url] = struct{}{}
	return true, nil
}

type Outcome int

const (
	Emitted Outcome = iota
	Dropped
)

func (o Outcome) String() string {
	if o == Emitted {
		return "emitted"
	}
	return "dropped"
}

// EmitResult tells the caller whether a record went out and, if not, why.
type EmitResult struct {
	Outcome Outcome
	Reason  string
}

const (
	ReasonMissingURL = "missing url"
	ReasonDuplicate  = "duplicate url"
)

// Emitter gates records through the dedup store before they reach the sink.
type Emitter struct {
	store   DedupStore
	sink    Sink
	metrics *metrics.Metrics
}

func NewEmitter(store DedupStore, sink Sink, m *metrics.Metrics) *Emitter {
	return &Emitter{store: store, sink: sink, metrics: m}
}

// Emit writes l unless its URL is empty or already emitted. A URL whose
// sink write fails stays claimed; it is not offered again in this run.
func (e *Emitter) Emit(ctx context.Context, l models.Listing) EmitResult {
	res := e.emit(ctx, l)
	e.metrics.IncRecords(l.Site, recordOutcome(res))
	return res
}

func (e *Emitter) emit(ctx context.Context, l models.Listing) EmitResult {
	if strings.TrimSpace(l.URL) == "" {
		return EmitResult{Outcome: Dropped, Reason: ReasonMissingURL}
	}

	inserted, err := e.store.CheckAndInsert(ctx, l.URL)
	if err != nil {
		return EmitResult{Outcome: Dropped, Reason: "dedup store: " + err.Error()}
	}
	if !inserted {
		return EmitResult{Outcome: Dropped, Reason: ReasonDuplicate}
	}

	if err := e.sink.Write(ctx, l); err != nil {
		return EmitResult{Outcome: Dropped, Reason: "sink: " + err.Error()}
	}
	return EmitResult{Outcome: Emitted}
}

// Seen reports whether url was already emitted. Store errors count as unseen
// so the record still gets its chance at Emit.
func (e *Emitter) Seen(ctx context.Context, url string) bool {
	ok, err := e.store.Seen(ctx, url)
	return err == nil && ok
}

func recordOutcome(r EmitResult) string {
	switch {
	case r.Outcome == Emitted:
		return "emitted"
	case r.Reason == ReasonDuplicate:
		return "duplicate"
	default:
		return "dropped"
	}
}
