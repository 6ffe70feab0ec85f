package scraper

import (
	"context"
	"sync"

	"listing-scraper/models"
)

// detailJob pairs a list item with its position on the page.
type detailJob struct {
	index int
	item  models.ListItem
}

// DetailOutcome is what one worker produced for one list item.
type DetailOutcome struct {
	Item   models.ListItem
	Result DetailResult
	Err    error
}

// DetailSource is the part of DetailFetcher the pool needs.
type DetailSource interface {
	FetchDetail(ctx context.Context, url string) (DetailResult, error)
}

// WorkerPool fans one list page's detail URLs out to a fixed number of
// workers. A pool is reused page after page but runs one page at a time.
type WorkerPool struct {
	source  DetailSource
	size    int
	jobs    chan detailJob
	results chan indexedOutcome
	wg      sync.WaitGroup
}

type indexedOutcome struct {
	index int
	DetailOutcome
}

func NewWorkerPool(source DetailSource, size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{source: source, size: size}
}

func (p *WorkerPool) Size() int { return p.size }

// Run fetches every item's detail page and returns the outcomes in item
// order. Items not started before ctx is done come back with ctx.Err().
func (p *WorkerPool) Run(ctx context.Context, items []models.ListItem) []DetailOutcome {
	if len(items) == 0 {
		return nil
	}

	p.jobs = make(chan detailJob, len(items))
	p.results = make(chan indexedOutcome, len(items))

	workerCount := p.size
	if len(items) < workerCount {
		workerCount = len(items)
	}

	p.wg.Add(workerCount)
	for i := 1; i <= workerCount; i++ {
		go p.worker(ctx)
	}

	for i, item := range items {
		p.jobs <- detailJob{index: i, item: item}
	}
	close(p.jobs)

	go func() {
		p.wg.Wait()
		close(p.results)
	}()

	return p.collect(len(items))
}

func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for job := range p.jobs {
		out := DetailOutcome{Item: job.item}
		if err := ctx.Err(); err != nil {
			out.Err = err
		} else {
			out.Result, out.Err = p.source.FetchDetail(ctx, job.item.URL)
		}
		p.results <- indexedOutcome{index: job.index, DetailOutcome: out}
	}
}

func (p *WorkerPool) collect(n int) []DetailOutcome {
	all := make([]DetailOutcome, n)
	for r := range p.results {
		all[r.index] = r.DetailOutcome
	}
	return all
}
