// Package mbox reads local mbox archives as a mailbox source. Each archive
// file is exposed as one folder named after the file.
package mbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gombox "github.com/emersion/go-mbox"

	"github.com/mailtools/mail-to-table/source"
)

// Provider serves folders backed by mbox files on disk.
type Provider struct {
	archives []*archive
	logger   *slog.Logger
}

// NewProvider builds a provider over the given mbox files. Folder names
// derive from the file names, so two archives may not share a base name.
func NewProvider(paths []string, logger *slog.Logger) (*Provider, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no mbox paths given")
	}
	if logger == nil {
		logger = slog.Default()
	}

	seen := make(map[string]string, len(paths))
	archives := make([]*archive, 0, len(paths))
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			return nil, fmt.Errorf("mbox path is empty")
		}
		name := folderName(path)
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("mbox folder %q claimed by both %s and %s", name, prev, path)
		}
		seen[name] = path
		archives = append(archives, &archive{name: name, file: path, logger: logger})
	}

	return &Provider{archives: archives, logger: logger}, nil
}

func folderName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Connect verifies every archive exists and is a regular file.
func (p *Provider) Connect(ctx context.Context) error {
	for _, a := range p.archives {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := os.Stat(a.file)
		if err != nil {
			return fmt.Errorf("stat mbox: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("mbox path %s is a directory", a.file)
		}
	}
	p.logger.Debug("mbox source ready", "archives", len(p.archives))
	return nil
}

// Close is a no-op; archives are opened per read.
func (p *Provider) Close() error { return nil }

// Folders lists one folder per archive, in the order the archives were
// given, with a counted number of messages.
func (p *Provider) Folders(ctx context.Context) ([]source.FolderInfo, error) {
	infos := make([]source.FolderInfo, 0, len(p.archives))
	for _, a := range p.archives {
		if err := a.countMessages(ctx); err != nil {
			return nil, err
		}
		infos = append(infos, source.FolderInfo{Name: a.name, Path: a.name, Items: a.items})
	}
	return infos, nil
}

// Folder opens the archive whose folder name or file path matches path.
func (p *Provider) Folder(ctx context.Context, path string) (source.Folder, error) {
	for _, a := range p.archives {
		if a.name == path || a.file == path {
			if err := a.countMessages(ctx); err != nil {
				return nil, err
			}
			return a, nil
		}
	}
	return nil, fmt.Errorf("unknown mbox folder %q", path)
}

// archive is one mbox file exposed as a folder.
type archive struct {
	name   string
	file   string
	items  int
	logger *slog.Logger
}

func (a *archive) Name() string { return a.name }
func (a *archive) Path() string { return a.name }
func (a *archive) Count() int   { return a.items }

// countMessages walks the archive once and stores the message count.
// Messages that cannot be drained still count; they surface later as error
// records.
func (a *archive) countMessages(ctx context.Context) error {
	f, err := os.Open(a.file)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer f.Close()

	count := 0
	r := gombox.NewReader(f)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := r.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("scan mbox %s: %w", a.file, err)
		}
		count++
		if _, err := io.Copy(io.Discard, msg); err != nil {
			continue
		}
	}
	a.items = count
	return nil
}

// Items reads the archive's messages newest-first by date. When max is
// positive at most max items are returned.
func (a *archive) Items(ctx context.Context, max int) ([]source.Item, error) {
	f, err := os.Open(a.file)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	defer f.Close()

	type fetched struct {
		item     source.Item
		received time.Time
	}
	var items []fetched

	r := gombox.NewReader(f)
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg, err := r.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("mbox %s message %d: %w", a.file, idx, err)
		}
		raw, err := io.ReadAll(msg)
		if err != nil {
			return nil, fmt.Errorf("mbox %s message %d read: %w", a.file, idx, err)
		}
		item, received := buildItem(raw)
		items = append(items, fetched{item: item, received: received})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].received.After(items[j].received)
	})
	if max > 0 && len(items) > max {
		items = items[:max]
	}

	out := make([]source.Item, 0, len(items))
	for _, it := range items {
		out = append(out, it.item)
	}
	a.logger.Debug("mbox archive read", "folder", a.name, "items", len(out))
	return out, nil
}

// buildItem converts one raw message into the attribute map the mapper
// reads. Mbox archives carry no separate delivery stamp, so the Date header
// stands in for both received and sent time.
func buildItem(raw []byte) (source.Item, time.Time) {
	parsed := source.ParseMessage(raw)
	h := parsed.Header

	item := source.NewMapItem()
	subject, _ := h.Subject()
	item.Set(source.AttrSubject, subject)

	var received time.Time
	if date, err := h.Date(); err == nil && !date.IsZero() {
		received = date
		item.Set(source.AttrReceivedTime, date)
		item.Set(source.AttrSentTime, date)
	}

	if from := source.AddressesOf(h, "From", source.RecipientTo); len(from) > 0 {
		item.Set(source.AttrSenderName, from[0].Name)
		item.Set(source.AttrSenderEmail, from[0].Address)
		item.Set(source.AttrSender, source.Address{Name: from[0].Name, Address: from[0].Address})
	}

	var recipients []source.Recipient
	recipients = append(recipients, source.AddressesOf(h, "To", source.RecipientTo)...)
	recipients = append(recipients, source.AddressesOf(h, "Cc", source.RecipientCc)...)
	recipients = append(recipients, source.AddressesOf(h, "Bcc", source.RecipientBcc)...)
	if len(recipients) > 0 {
		item.Set(source.AttrRecipients, recipients)
	}
	if reply := source.AddressesOf(h, "Reply-To", source.RecipientTo); len(reply) > 0 {
		item.Set(source.AttrReplyRecipients, reply)
	}

	item.Set(source.AttrSize, int64(len(raw)))
	item.Set(source.AttrUnread, source.UnreadFromStatus(h.Get("Status")))
	item.Set(source.AttrImportance, source.ParseImportance(h.Get("X-Priority"), h.Get("Importance")))
	item.Set(source.AttrConversationTopic, source.ConversationTopic(h.Get("Thread-Topic"), subject))
	if keywords := strings.TrimSpace(h.Get("Keywords")); keywords != "" {
		item.Set(source.AttrCategories, keywords)
	}
	if id, _ := h.MessageID(); id != "" {
		item.Set(source.AttrMessageID, id)
	}
	if thread := source.ThreadID(h); thread != "" {
		item.Set(source.AttrThreadID, thread)
	}

	if parsed.TextBody != "" {
		item.Set(source.AttrBodyText, parsed.TextBody)
	}
	if parsed.HTMLBody != "" {
		item.Set(source.AttrBodyHTML, parsed.HTMLBody)
	}
	if len(parsed.Attachments) > 0 {
		item.Set(source.AttrAttachments, parsed.Attachments)
	}

	return item, received
}
