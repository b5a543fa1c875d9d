package progress

import (
	"context"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/pterm/pterm"

	"github.com/mailtools/mail-to-table/stats"
)

const titleWidth = 40

// Bar manages a progress bar for tracking item extraction.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	total   int
	mu      sync.Mutex
	enabled bool
}

// New creates a new progress bar. The bar stays disabled when the total is
// unknown or when a non-default log level would interleave with it.
func New(total int, logLevel string) *Bar {
	enabled := total > 0 && logLevel == "info"

	bar := &Bar{
		total:   total,
		enabled: enabled,
	}

	if enabled {
		pb, _ := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle("Extracting items").
			Start()
		bar.pb = pb
	}

	return bar
}

// Update advances the progress bar based on the event type.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeScanned:
		b.pb.Increment()
		if evt.Subject != "" {
			b.pb.UpdateTitle("Extracting: " + runewidth.Truncate(evt.Subject, titleWidth, "..."))
		}
	case stats.EventTypeMapped, stats.EventTypeFailed, stats.EventTypeFiltered:
		// The final summary shows these counts; keep the bar output clean.
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}

	b.pb.Stop()
}

// Subscriber creates a stats subscriber function that updates the progress bar.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			b.Update(evt)
		}
	}
}

// PrintSummary prints the extraction counters once the bar has stopped.
func (b *Bar) PrintSummary(summary stats.Summary, duration time.Duration) {
	if !b.enabled {
		return
	}

	pterm.Println()
	pterm.DefaultSection.Println("Extraction Summary")
	pterm.Info.Printf("Duration: %v\n", duration)
	pterm.Info.Printf("Scanned: %d\n", summary.Scanned)
	pterm.Info.Printf("Mapped: %d\n", summary.Mapped)
	pterm.Info.Printf("Failed: %d\n", summary.Failed)
	pterm.Info.Printf("Filtered out: %d\n", summary.Filtered)
	pterm.Info.Printf("Errors: %d\n", summary.Errors)
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}
}
