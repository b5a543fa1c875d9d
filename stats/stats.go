package stats

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type Stage string

const (
	StageSource Stage = "source"
	StageMapper Stage = "mapper"
	StageFilter Stage = "filter"
)

type EventType string

const (
	EventTypeScanned  EventType = "scanned"
	EventTypeMapped   EventType = "mapped"
	EventTypeFailed   EventType = "failed"
	EventTypeFiltered EventType = "filtered"
	EventTypeError    EventType = "error"
)

type Event struct {
	Stage   Stage
	Type    EventType
	Folder  string
	Subject string
	Err     error
}

type Summary struct {
	Scanned   int
	Mapped    int
	Failed    int
	Filtered  int
	Errors    int
	LastError error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"mapped", s.Mapped,
		"failed", s.Failed,
		"filtered", s.Filtered,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.apply(evt)
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

func (c *Collector) apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeMapped:
		c.summary.Mapped++
	case EventTypeFailed:
		c.summary.Failed++
	case EventTypeFiltered:
		c.summary.Filtered++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if ctx.Err() != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", ctx.Err())...)
		}
		return ctx.Err()
	}
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}

// Freq pairs a distinct value with how often it was seen.
type Freq struct {
	Value string
	Count int
}

// TopCounts returns the n most frequent entries, most frequent first.
// Ties are broken by value so the order is deterministic.
func TopCounts(m map[string]int, n int) []Freq {
	freqs := make([]Freq, 0, len(m))
	for value, count := range m {
		freqs = append(freqs, Freq{Value: value, Count: count})
	}
	sort.Slice(freqs, func(i, j int) bool {
		if freqs[i].Count != freqs[j].Count {
			return freqs[i].Count > freqs[j].Count
		}
		return freqs[i].Value < freqs[j].Value
	})
	if n >= 0 && len(freqs) > n {
		freqs = freqs[:n]
	}
	return freqs
}
