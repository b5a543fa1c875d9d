// Package extract drives the pipeline: walk the source folders, map every
// item to a record, apply the filter and publish progress events.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mailtools/mail-to-table/filter"
	"github.com/mailtools/mail-to-table/mapper"
	"github.com/mailtools/mail-to-table/model"
	"github.com/mailtools/mail-to-table/source"
	"github.com/mailtools/mail-to-table/stats"
)

// ErrNoRecords is returned when no folder yields a single record.
var ErrNoRecords = errors.New("no records extracted")

const eventBuffer = 128

type subscriber struct {
	name string
	fn   func(context.Context, <-chan stats.Event) error
	ch   chan stats.Event
	done chan struct{}
}

// Extractor is single-use: subscribe first, then call Run once.
type Extractor struct {
	mapper *mapper.Mapper
	filter *filter.Filter
	logger *slog.Logger

	events      chan stats.Event
	subscribers []subscriber
	statsWG     sync.WaitGroup

	cancel context.CancelFunc
	errMu  sync.Mutex
	err    error
}

func New(m *mapper.Mapper, f *filter.Filter, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		mapper: m,
		filter: f,
		logger: logger,
		events: make(chan stats.Event, eventBuffer),
	}
}

// SubscribeStats registers a consumer for pipeline events. Every subscriber
// sees every event on its own channel, which is closed when the run ends.
// A consumer that returns before its channel closes stops receiving; the
// walk carries on without it.
func (e *Extractor) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	e.subscribers = append(e.subscribers, subscriber{
		name: name,
		fn:   fn,
		ch:   make(chan stats.Event, eventBuffer),
		done: make(chan struct{}),
	})
}

// Run walks the requested folders and returns the mapped records, newest
// first within each folder. An unreadable folder is logged and skipped; a
// run that keeps no records at all fails with ErrNoRecords.
func (e *Extractor) Run(parent context.Context, provider source.Provider, folders []string, maxPerFolder int) ([]model.Record, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	e.cancel = cancel

	for i := range e.subscribers {
		sub := e.subscribers[i]
		e.statsWG.Add(1)
		go func() {
			defer e.statsWG.Done()
			err := sub.fn(ctx, sub.ch)
			close(sub.done)
			if err != nil && !errors.Is(err, context.Canceled) {
				e.fail(fmt.Errorf("%s stats: %w", sub.name, err))
			}
		}()
	}

	e.statsWG.Add(1)
	go e.bridge(ctx)

	records, walkErr := e.walk(ctx, provider, folders, maxPerFolder)

	close(e.events)
	e.statsWG.Wait()

	if walkErr != nil {
		return nil, walkErr
	}
	if err := e.failure(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		e.logger.Error("extraction kept no records", "folders", folders)
		return nil, ErrNoRecords
	}
	return records, nil
}

func (e *Extractor) walk(ctx context.Context, provider source.Provider, folders []string, maxPerFolder int) ([]model.Record, error) {
	var records []model.Record
	for _, name := range folders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		folder, err := provider.Folder(ctx, name)
		if err != nil {
			e.logger.Error("folder unavailable, skipping", "folder", name, "err", err)
			e.emit(ctx, stats.Event{Stage: stats.StageSource, Type: stats.EventTypeError, Folder: name, Err: err})
			continue
		}

		items, err := folder.Items(ctx, maxPerFolder)
		if err != nil {
			e.logger.Error("folder items unavailable, skipping", "folder", name, "err", err)
			e.emit(ctx, stats.Event{Stage: stats.StageSource, Type: stats.EventTypeError, Folder: name, Err: err})
			continue
		}

		kept := 0
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res := e.mapper.Map(item, folder.Name())
			e.emit(ctx, stats.Event{Stage: stats.StageSource, Type: stats.EventTypeScanned, Folder: folder.Name(), Subject: res.Record.Subject})
			if res.Err != nil {
				e.logger.Warn("item degraded to error record", "folder", folder.Name(), "err", res.Err)
				e.emit(ctx, stats.Event{Stage: stats.StageMapper, Type: stats.EventTypeFailed, Folder: folder.Name(), Err: res.Err})
			} else {
				e.emit(ctx, stats.Event{Stage: stats.StageMapper, Type: stats.EventTypeMapped, Folder: folder.Name(), Subject: res.Record.Subject})
			}

			if e.filter != nil && !e.filter.Allows(&res.Record) {
				e.emit(ctx, stats.Event{Stage: stats.StageFilter, Type: stats.EventTypeFiltered, Folder: folder.Name(), Subject: res.Record.Subject})
				continue
			}
			records = append(records, res.Record)
			kept++
		}
		e.logger.Info("folder processed", "folder", folder.Name(), "items", len(items), "kept", kept)
	}
	return records, nil
}

// bridge fans every event out to all subscriber channels. A subscriber whose
// consumer has returned, or a canceled run, drops events instead of blocking
// the walk behind a full buffer.
func (e *Extractor) bridge(ctx context.Context) {
	defer e.statsWG.Done()
	for evt := range e.events {
		for _, sub := range e.subscribers {
			select {
			case sub.ch <- evt:
			case <-sub.done:
			case <-ctx.Done():
			}
		}
	}
	for _, sub := range e.subscribers {
		close(sub.ch)
	}
}

func (e *Extractor) emit(ctx context.Context, evt stats.Event) {
	select {
	case <-ctx.Done():
	case e.events <- evt:
	}
}

func (e *Extractor) fail(err error) {
	if err == nil {
		return
	}
	e.errMu.Lock()
	if e.err == nil {
		e.err = err
		if e.cancel != nil {
			e.cancel()
		}
	}
	e.errMu.Unlock()
}

func (e *Extractor) failure() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}
