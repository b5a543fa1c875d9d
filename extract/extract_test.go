package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mailtools/mail-to-table/filter"
	"github.com/mailtools/mail-to-table/mapper"
	"github.com/mailtools/mail-to-table/source"
	"github.com/mailtools/mail-to-table/stats"
)

type fakeFolder struct {
	name  string
	items []source.Item
}

func (f *fakeFolder) Name() string { return f.name }
func (f *fakeFolder) Path() string { return f.name }
func (f *fakeFolder) Count() int   { return len(f.items) }

func (f *fakeFolder) Items(ctx context.Context, max int) ([]source.Item, error) {
	if max > 0 && len(f.items) > max {
		return f.items[:max], nil
	}
	return f.items, nil
}

type fakeProvider struct {
	folders map[string]*fakeFolder
}

func (p *fakeProvider) Connect(ctx context.Context) error { return nil }
func (p *fakeProvider) Close() error                      { return nil }

func (p *fakeProvider) Folders(ctx context.Context) ([]source.FolderInfo, error) {
	infos := make([]source.FolderInfo, 0, len(p.folders))
	for _, f := range p.folders {
		infos = append(infos, source.FolderInfo{Name: f.name, Path: f.name, Items: len(f.items)})
	}
	return infos, nil
}

func (p *fakeProvider) Folder(ctx context.Context, path string) (source.Folder, error) {
	f, ok := p.folders[path]
	if !ok {
		return nil, fmt.Errorf("no such folder %q", path)
	}
	return f, nil
}

type brokenItem struct{}

func (brokenItem) Attr(name string) (any, error) { return nil, errors.New("store unavailable") }

func item(subject string) source.Item {
	it := source.NewMapItem()
	it.Set(source.AttrSubject, subject)
	return it
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newExtractor(f *filter.Filter) *Extractor {
	return New(mapper.New(testLogger()), f, testLogger())
}

func TestRunCollectsRecords(t *testing.T) {
	provider := &fakeProvider{folders: map[string]*fakeFolder{
		"INBOX": {name: "INBOX", items: []source.Item{item("a"), item("b")}},
		"Sent":  {name: "Sent", items: []source.Item{item("c")}},
	}}
	e := newExtractor(nil)
	reporter := stats.NewReporter(e, testLogger())

	records, err := e.Run(context.Background(), provider, []string{"INBOX", "Sent"}, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].FolderName != "INBOX" || records[2].FolderName != "Sent" {
		t.Errorf("folder order wrong: %q .. %q", records[0].FolderName, records[2].FolderName)
	}

	sum := reporter.Summary()
	if sum.Scanned != 3 || sum.Mapped != 3 || sum.Failed != 0 || sum.Filtered != 0 || sum.Errors != 0 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRunSkipsMissingFolder(t *testing.T) {
	provider := &fakeProvider{folders: map[string]*fakeFolder{
		"INBOX": {name: "INBOX", items: []source.Item{item("a")}},
	}}
	e := newExtractor(nil)
	reporter := stats.NewReporter(e, testLogger())

	records, err := e.Run(context.Background(), provider, []string{"Nope", "INBOX"}, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if sum := reporter.Summary(); sum.Errors != 1 {
		t.Errorf("Errors = %d, want 1", sum.Errors)
	}
}

func TestRunNoRecords(t *testing.T) {
	provider := &fakeProvider{folders: map[string]*fakeFolder{
		"INBOX": {name: "INBOX"},
	}}
	e := newExtractor(nil)

	_, err := e.Run(context.Background(), provider, []string{"INBOX"}, 0)
	if !errors.Is(err, ErrNoRecords) {
		t.Errorf("Run = %v, want ErrNoRecords", err)
	}
}

func TestRunAppliesFilter(t *testing.T) {
	f, err := filter.New(filter.Options{ExcludeSubject: []string{"^skip"}})
	if err != nil {
		t.Fatalf("filter.New: %v", err)
	}
	provider := &fakeProvider{folders: map[string]*fakeFolder{
		"INBOX": {name: "INBOX", items: []source.Item{item("keep me"), item("skip me")}},
	}}
	e := newExtractor(f)
	reporter := stats.NewReporter(e, testLogger())

	records, err := e.Run(context.Background(), provider, []string{"INBOX"}, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(records) != 1 || records[0].Subject != "keep me" {
		t.Fatalf("records = %+v", records)
	}
	if sum := reporter.Summary(); sum.Filtered != 1 || sum.Mapped != 2 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRunKeepsErrorRecords(t *testing.T) {
	provider := &fakeProvider{folders: map[string]*fakeFolder{
		"INBOX": {name: "INBOX", items: []source.Item{item("good"), brokenItem{}}},
	}}
	e := newExtractor(nil)
	reporter := stats.NewReporter(e, testLogger())

	records, err := e.Run(context.Background(), provider, []string{"INBOX"}, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if !records[1].Error || !strings.HasPrefix(records[1].Subject, "ERROR:") {
		t.Errorf("error record not kept: %+v", records[1])
	}
	if sum := reporter.Summary(); sum.Failed != 1 || sum.Mapped != 1 || sum.Scanned != 2 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRunCapsItems(t *testing.T) {
	folder := &fakeFolder{name: "INBOX"}
	for i := 0; i < 5; i++ {
		folder.items = append(folder.items, item(fmt.Sprintf("msg %d", i)))
	}
	provider := &fakeProvider{folders: map[string]*fakeFolder{"INBOX": folder}}
	e := newExtractor(nil)

	records, err := e.Run(context.Background(), provider, []string{"INBOX"}, 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
}

func TestRunSurvivesEarlySubscriberExit(t *testing.T) {
	folder := &fakeFolder{name: "INBOX"}
	// Enough items to overflow the event buffers once the consumer is gone.
	for i := 0; i < 300; i++ {
		folder.items = append(folder.items, item(fmt.Sprintf("msg %d", i)))
	}
	provider := &fakeProvider{folders: map[string]*fakeFolder{"INBOX": folder}}
	e := newExtractor(nil)
	e.SubscribeStats("quitter", func(ctx context.Context, events <-chan stats.Event) error {
		return nil
	})

	records, err := e.Run(context.Background(), provider, []string{"INBOX"}, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(records) != 300 {
		t.Errorf("got %d records, want 300", len(records))
	}
}

func TestRunCanceledContext(t *testing.T) {
	provider := &fakeProvider{folders: map[string]*fakeFolder{
		"INBOX": {name: "INBOX", items: []source.Item{item("a")}},
	}}
	e := newExtractor(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Run(ctx, provider, []string{"INBOX"}, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}
