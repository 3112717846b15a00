package service

import (
	"context"
	"sync"
	"time"
)

type Progress struct {
	Percent   int
	Processed int
	Failed    int
	Total     int
}

// ProgressSink persists a snapshot. Returning appErr.ErrJobCancelled stops
// the run at the checkpoint that triggered the flush.
type ProgressSink func(ctx context.Context, p Progress) error

// ProgressReporter tracks item counters in memory and forwards them to a sink
// at checkpoints, at most once every N items or M seconds unless forced.
// Item progress is interpolated inside the current band and never decreases.
type ProgressReporter struct {
	mu         sync.Mutex
	sink       ProgressSink
	everyItems int
	every      time.Duration
	now        func() time.Time

	bandStart int
	bandEnd   int
	current   Progress
	lastItems int
	lastFlush time.Time
}

func NewProgressReporter(sink ProgressSink, everyItems int, every time.Duration) *ProgressReporter {
	if everyItems <= 0 {
		everyItems = 1
	}
	return &ProgressReporter{
		sink:       sink,
		everyItems: everyItems,
		every:      every,
		now:        time.Now,
		bandEnd:    100,
	}
}

// Band confines item interpolation to [start, end].
func (p *ProgressReporter) Band(start, end int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if end < start {
		end = start
	}
	p.bandStart, p.bandEnd = start, end
	p.raise(start)
}

func (p *ProgressReporter) SetTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if total < 0 {
		total = 0
	}
	p.current.Total = total
}

// Advance records absolute item counters. It never performs I/O, so it is
// safe to call while a database transaction is open.
func (p *ProgressReporter) Advance(processed, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current.Processed = processed
	p.current.Failed = failed
	if p.current.Total < processed+failed {
		p.current.Total = processed + failed
	}
	if p.current.Total > 0 {
		done := processed + failed
		p.raise(p.bandStart + (p.bandEnd-p.bandStart)*done/p.current.Total)
	}
}

// Checkpoint flushes when the throttle allows it.
func (p *ProgressReporter) Checkpoint(ctx context.Context) error {
	return p.flush(ctx, false)
}

// Milestone jumps to percent and flushes unconditionally.
func (p *ProgressReporter) Milestone(ctx context.Context, percent int) error {
	p.mu.Lock()
	p.raise(percent)
	p.mu.Unlock()
	return p.flush(ctx, true)
}

func (p *ProgressReporter) Snapshot() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *ProgressReporter) flush(ctx context.Context, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	now := p.now()
	done := p.current.Processed + p.current.Failed
	due := force || done-p.lastItems >= p.everyItems ||
		(p.every > 0 && now.Sub(p.lastFlush) >= p.every)
	if !due {
		p.mu.Unlock()
		return nil
	}
	p.lastItems = done
	p.lastFlush = now
	snap := p.current
	p.mu.Unlock()
	if p.sink == nil {
		return nil
	}
	return p.sink(ctx, snap)
}

func (p *ProgressReporter) raise(percent int) {
	if percent > 100 {
		percent = 100
	}
	if percent > p.current.Percent {
		p.current.Percent = percent
	}
}
