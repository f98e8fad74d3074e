package warm

import (
	"context"
	"sync"

	"github.com/aravindthiru29/flipbook/internal/cache"
	"github.com/aravindthiru29/flipbook/pkg/logger"
)

// Job asks the pool to pre-render every page of one book.
type Job struct {
	BookID    string
	Locator   string
	PageCount int
}

// PageCache is the slice of the render cache the pool needs.
type PageCache interface {
	Cached(bookID string, page int) bool
	Populate(bookID string, doc cache.Doc, page int) (string, error)
}

// Source resolves a book locator to local bytes.
type Source interface {
	Resolve(ctx context.Context, bookID, locator string) (string, error)
}

// Pool runs warm-up jobs on a fixed set of workers. Jobs are queued, not
// spawned as detached goroutines, so an upload burst cannot fan out into
// unbounded concurrent rendering.
type Pool struct {
	jobs      chan Job
	workers   int
	pageCache PageCache
	source    Source
	open      cache.OpenFunc
	log       *logger.Logger
	wg        sync.WaitGroup

	startOnce sync.Once

	// mu orders Enqueue sends against the close in Shutdown.
	mu     sync.RWMutex
	closed bool
}

func NewPool(workers, queueSize int, pageCache PageCache, source Source, open cache.OpenFunc, log *logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Pool{
		jobs:      make(chan Job, queueSize),
		workers:   workers,
		pageCache: pageCache,
		source:    source,
		open:      open,
		log:       log,
	}
}

func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.run()
		}
	})
}

// Enqueue submits a warm-up job without blocking. A full queue or a stopped
// pool drops the job; every page it would have produced is still rendered
// on demand.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn("warm pool stopped, skipping pre-render for book %s", job.BookID)
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		p.log.Warn("warm queue full, skipping pre-render for book %s", job.BookID)
		return false
	}
}

// Shutdown stops accepting jobs and waits for in-flight walks to finish.
// Enqueue after Shutdown is safe and drops the job.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) run() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.warm(job)
	}
}

// warm walks all pages of one book and fills cache misses. Per-page
// failures are collected and logged; one bad page never aborts the rest
// of the walk.
func (p *Pool) warm(job Job) {
	p.log.Info("Pre-rendering book %s (%d pages)", job.BookID, job.PageCount)

	local, err := p.source.Resolve(context.Background(), job.BookID, job.Locator)
	if err != nil {
		p.log.Error("pre-render for book %s aborted: %v", job.BookID, err)
		return
	}

	doc, err := p.open(local)
	if err != nil {
		p.log.Error("pre-render for book %s aborted: %v", job.BookID, err)
		return
	}
	defer doc.Close()

	var failed []int
	rendered := 0
	for page := 0; page < job.PageCount; page++ {
		if p.pageCache.Cached(job.BookID, page) {
			continue
		}
		if _, err := p.pageCache.Populate(job.BookID, doc, page); err != nil {
			p.log.Warn("pre-render of page %d for book %s failed: %v", page, job.BookID, err)
			failed = append(failed, page)
			continue
		}
		rendered++
	}

	if len(failed) > 0 {
		p.log.Warn("book %s warmed with %d unrenderable pages: %v", job.BookID, len(failed), failed)
		return
	}
	p.log.Info("Book %s warmed: %d pages rendered, %d already cached",
		job.BookID, rendered, job.PageCount-rendered)
}
