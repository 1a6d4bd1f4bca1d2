// Package scheduler implements the priority scheduler and worker pool: a
// fixed pool of workers draining a priority queue of transaction
// descriptors, descending by priority and FIFO within a priority level.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Karannshah1/Financial-Systems/internal/metrics"
)

// ErrShutdown is the Err of the Outcome delivered for a submission made
// after the pool has been shut down, or discarded by Shutdown.
var ErrShutdown = errors.New("scheduler: pool is shut down")

// OutcomeKind classifies how a submission finished.
type OutcomeKind int

const (
	Succeeded OutcomeKind = iota
	Conflict
	Exhausted
	DomainErr
	Shutdown
)

// Outcome is the terminal result of one submission, delivered through its
// Handle.
type Outcome struct {
	Kind     OutcomeKind
	Attempts int
	Err      error
}

// Descriptor is the enqueued unit of work. Run receives the id of the
// worker dispatching it, so the implementation can fold its access set
// into the pool's diagnostic bookkeeping.
type Descriptor struct {
	Run      func(workerID int) Outcome
	Priority int
	Label    string
	seq      uint64
	handle   *Handle
}

// Handle is the optional completion primitive a caller can wait on.
type Handle struct {
	done    chan struct{}
	outcome Outcome
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) complete(o Outcome) {
	h.outcome = o
	close(h.done)
}

// Wait blocks until the submission reaches a terminal outcome or ctx is
// done.
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// descHeap orders descriptors by descending priority, then ascending
// sequence number (FIFO within a priority class).
type descHeap []*Descriptor

func (h descHeap) Len() int { return len(h) }
func (h descHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h descHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *descHeap) Push(x any)   { *h = append(*h, x.(*Descriptor)) }
func (h *descHeap) Pop() any {
	old := *h
	n := len(old)
	d := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return d
}

// Pool is a fixed-size worker pool consuming from the priority queue.
type Pool struct {
	mu        sync.Mutex
	notEmpty  *sync.Cond
	quiescent *sync.Cond

	queue      descHeap
	nextSeq    uint64
	active     int
	shutdown   bool
	accessSets map[int]map[uint64]struct{} // worker id -> current key access set, diagnostic only

	wg  sync.WaitGroup
	log *zap.Logger
}

// New starts n workers and returns the pool ready to accept submissions.
func New(n int, log *zap.Logger) *Pool {
	p := &Pool{
		accessSets: make(map[int]map[uint64]struct{}, n),
		log:        log,
	}
	p.notEmpty = sync.NewCond(&p.mu)
	p.quiescent = sync.NewCond(&p.mu)

	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Submit enqueues a descriptor and wakes one worker. It is fire-and-
// forget at the API level; the returned Handle carries the eventual
// outcome for callers that want it.
func (p *Pool) Submit(run func(workerID int) Outcome, priority int, label string) *Handle {
	h := newHandle()

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		h.complete(Outcome{Kind: Shutdown, Err: ErrShutdown})
		return h
	}

	p.nextSeq++
	d := &Descriptor{Run: run, Priority: priority, Label: label, seq: p.nextSeq, handle: h}
	heap.Push(&p.queue, d)
	p.active++
	metrics.ActiveTransactions.Set(float64(p.active))
	p.mu.Unlock()

	p.notEmpty.Signal()
	return h
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	p.mu.Lock()
	p.accessSets[id] = make(map[uint64]struct{})
	p.mu.Unlock()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.shutdown {
			p.notEmpty.Wait()
		}
		if len(p.queue) == 0 && p.shutdown {
			p.mu.Unlock()
			return
		}
		d := heap.Pop(&p.queue).(*Descriptor)
		p.accessSets[id] = make(map[uint64]struct{})
		p.mu.Unlock()

		outcome := d.Run(id)
		d.handle.complete(outcome)

		p.mu.Lock()
		p.active--
		metrics.ActiveTransactions.Set(float64(p.active))
		if p.active == 0 {
			p.quiescent.Broadcast()
		}
		p.mu.Unlock()
	}
}

// WaitForQuiescence blocks until no submission is queued or in flight, or
// until ctx is done (whichever comes first); it reports whether the pool
// actually reached quiescence.
func (p *Pool) WaitForQuiescence(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		p.mu.Lock()
		for p.active > 0 || len(p.queue) > 0 {
			p.quiescent.Wait()
		}
		p.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Shutdown stops accepting work, discards anything still queued, and
// waits for in-flight attempts to finish before returning.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true

	for len(p.queue) > 0 {
		d := heap.Pop(&p.queue).(*Descriptor)
		p.active--
		metrics.ActiveTransactions.Set(float64(p.active))
		d.handle.complete(Outcome{Kind: Shutdown, Err: ErrShutdown})
	}
	p.mu.Unlock()

	p.notEmpty.Broadcast()
	p.quiescent.Broadcast()
	p.wg.Wait()
}

// RecordAccess folds key into worker id's current access set. It is
// diagnostic bookkeeping only; nothing reads it back to make a scheduling
// or commit decision.
func (p *Pool) RecordAccess(id int, keys []uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.accessSets[id]
	if !ok {
		set = make(map[uint64]struct{})
		p.accessSets[id] = set
	}
	for _, k := range keys {
		set[k] = struct{}{}
	}
}

// AccessSets returns a snapshot of every worker's current access set, for
// diagnostics.
func (p *Pool) AccessSets() map[int]map[uint64]struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[int]map[uint64]struct{}, len(p.accessSets))
	for id, set := range p.accessSets {
		cp := make(map[uint64]struct{}, len(set))
		for k := range set {
			cp[k] = struct{}{}
		}
		out[id] = cp
	}
	return out
}
