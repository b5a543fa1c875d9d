// Package imap provides the IMAP account source.
package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/mailtools/mail-to-table/source"
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	DialTimeout        time.Duration
}

// Provider reads folders and items from an IMAP account over a single
// connection.
type Provider struct {
	opts   Options
	logger *slog.Logger

	client    *imapclient.Client
	stopClose func() bool
}

func NewProvider(opts Options, logger *slog.Logger) (*Provider, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{opts: opts, logger: logger}, nil
}

// Connect dials and authenticates. Canceling ctx afterwards closes the
// connection, which unblocks any command in flight.
func (p *Provider) Connect(ctx context.Context) error {
	address := net.JoinHostPort(p.opts.Host, strconv.Itoa(p.opts.Port))

	dialer := &net.Dialer{Timeout: p.opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("dial imap %s: %w", address, err)
	}

	if p.opts.UseTLS {
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         p.opts.Host,
			InsecureSkipVerify: p.opts.InsecureSkipVerify,
		})
		handshakeCtx := ctx
		if p.opts.DialTimeout > 0 {
			var cancel context.CancelFunc
			handshakeCtx, cancel = context.WithTimeout(ctx, p.opts.DialTimeout)
			defer cancel()
		}
		if err := tlsConn.HandshakeContext(handshakeCtx); err != nil {
			_ = conn.Close()
			return fmt.Errorf("imap tls handshake %s: %w", address, err)
		}
		conn = tlsConn
	}

	client := imapclient.New(conn, &imapclient.Options{})
	stop := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	if err := client.Login(p.opts.Username, p.opts.Password).Wait(); err != nil {
		stop()
		_ = client.Close()
		return fmt.Errorf("imap login failed: %w", err)
	}

	p.client = client
	p.stopClose = stop

	p.logger.Debug("imap connection established", "address", address, "user", p.opts.Username, "tls", p.opts.UseTLS)
	return nil
}

func (p *Provider) Close() error {
	if p.client == nil {
		return nil
	}
	if p.stopClose != nil {
		p.stopClose()
	}
	client := p.client
	p.client = nil
	if err := client.Logout().Wait(); err != nil {
		p.logger.Debug("imap logout failed", "err", err)
		return client.Close()
	}
	return nil
}

// Folders lists the selectable mailboxes with their message counts, sorted
// by path.
func (p *Provider) Folders(ctx context.Context) ([]source.FolderInfo, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	listCmd := p.client.List("", "*", &imapv2.ListOptions{
		ReturnStatus: &imapv2.StatusOptions{NumMessages: true},
	})
	mailboxes, err := listCmd.Collect()
	if err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}

	infos := make([]source.FolderInfo, 0, len(mailboxes))
	for _, mb := range mailboxes {
		if hasAttr(mb.Attrs, imapv2.MailboxAttrNoSelect) {
			continue
		}
		info := source.FolderInfo{Name: mb.Mailbox, Path: mb.Mailbox}
		if mb.Status != nil && mb.Status.NumMessages != nil {
			info.Items = int(*mb.Status.NumMessages)
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

// Folder selects the mailbox. The returned folder reads from the live
// selection, so consume it before selecting another mailbox.
func (p *Provider) Folder(ctx context.Context, path string) (source.Folder, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	data, err := p.client.Select(path, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("select mailbox %s: %w", path, err)
	}
	return &mailbox{provider: p, path: path, count: int(data.NumMessages)}, nil
}

func (p *Provider) ready() error {
	if p.client == nil {
		return fmt.Errorf("imap provider is not connected")
	}
	return nil
}

type mailbox struct {
	provider *Provider
	path     string
	count    int
}

func (m *mailbox) Name() string { return m.path }
func (m *mailbox) Path() string { return m.path }
func (m *mailbox) Count() int   { return m.count }

// Items fetches the newest max messages (0 = all), newest first by internal
// date.
func (m *mailbox) Items(ctx context.Context, max int) ([]source.Item, error) {
	if err := m.provider.ready(); err != nil {
		return nil, err
	}
	client := m.provider.client

	searchData, err := client.UIDSearch(&imapv2.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search mailbox %s: %w", m.path, err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	// UIDs ascend with arrival order, so the tail holds the newest messages.
	if max > 0 && len(uids) > max {
		uids = uids[len(uids)-max:]
	}

	section := &imapv2.FetchItemBodySection{Peek: true}
	fetchOpts := &imapv2.FetchOptions{
		Envelope:     true,
		Flags:        true,
		UID:          true,
		InternalDate: true,
		RFC822Size:   true,
		BodySection:  []*imapv2.FetchItemBodySection{section},
	}
	bufs, err := client.Fetch(imapv2.UIDSetNum(uids...), fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch mailbox %s: %w", m.path, err)
	}

	type fetched struct {
		item     source.MapItem
		received time.Time
	}
	msgs := make([]fetched, 0, len(bufs))
	for _, buf := range bufs {
		msgs = append(msgs, fetched{item: buildItem(buf, section), received: buf.InternalDate})
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].received.After(msgs[j].received) })

	items := make([]source.Item, 0, len(msgs))
	for _, msg := range msgs {
		items = append(items, msg.item)
	}
	return items, nil
}

func buildItem(buf *imapclient.FetchMessageBuffer, section *imapv2.FetchItemBodySection) source.MapItem {
	item := source.NewMapItem()

	if !buf.InternalDate.IsZero() {
		item.Set(source.AttrReceivedTime, buf.InternalDate)
	}
	if buf.RFC822Size > 0 {
		item.Set(source.AttrSize, buf.RFC822Size)
	}
	item.Set(source.AttrUnread, !hasFlag(buf.Flags, imapv2.FlagSeen))

	var subject string
	if env := buf.Envelope; env != nil {
		subject = env.Subject
		item.Set(source.AttrSubject, env.Subject)
		if !env.Date.IsZero() {
			item.Set(source.AttrSentTime, env.Date)
		}
		if env.MessageID != "" {
			item.Set(source.AttrMessageID, env.MessageID)
		}
		if len(env.From) > 0 {
			item.Set(source.AttrSenderName, env.From[0].Name)
			item.Set(source.AttrSenderEmail, env.From[0].Addr())
			item.Set(source.AttrSender, source.Address{Name: env.From[0].Name, Address: env.From[0].Addr()})
		} else if len(env.Sender) > 0 {
			item.Set(source.AttrSender, source.Address{Name: env.Sender[0].Name, Address: env.Sender[0].Addr()})
		}

		var recipients []source.Recipient
		recipients = appendRecipients(recipients, env.To, source.RecipientTo)
		recipients = appendRecipients(recipients, env.Cc, source.RecipientCc)
		recipients = appendRecipients(recipients, env.Bcc, source.RecipientBcc)
		if len(recipients) > 0 {
			item.Set(source.AttrRecipients, recipients)
		}
		if replies := appendRecipients(nil, env.ReplyTo, source.RecipientTo); len(replies) > 0 {
			item.Set(source.AttrReplyRecipients, replies)
		}
	}

	if raw := buf.FindBodySection(section); len(raw) > 0 {
		parsed := source.ParseMessage(raw)
		if parsed.TextBody != "" {
			item.Set(source.AttrBodyText, parsed.TextBody)
		}
		if parsed.HTMLBody != "" {
			item.Set(source.AttrBodyHTML, parsed.HTMLBody)
		}
		if len(parsed.Attachments) > 0 {
			item.Set(source.AttrAttachments, parsed.Attachments)
		}

		h := parsed.Header
		item.Set(source.AttrImportance, source.ParseImportance(h.Get("X-Priority"), h.Get("Importance")))
		if topic := source.ConversationTopic(h.Get("Thread-Topic"), subject); topic != "" {
			item.Set(source.AttrConversationTopic, topic)
		}
		if keywords := h.Get("Keywords"); keywords != "" {
			item.Set(source.AttrCategories, keywords)
		}
		if threadID := source.ThreadID(h); threadID != "" {
			item.Set(source.AttrThreadID, threadID)
		}
	}

	return item
}

func hasFlag(flags []imapv2.Flag, want imapv2.Flag) bool {
	for _, flag := range flags {
		if flag == want {
			return true
		}
	}
	return false
}

func hasAttr(attrs []imapv2.MailboxAttr, want imapv2.MailboxAttr) bool {
	for _, attr := range attrs {
		if attr == want {
			return true
		}
	}
	return false
}

func appendRecipients(dst []source.Recipient, addrs []imapv2.Address, kind source.RecipientKind) []source.Recipient {
	for _, a := range addrs {
		addr := a.Addr()
		if addr == "" && a.Name == "" {
			continue
		}
		dst = append(dst, source.Recipient{Name: a.Name, Address: addr, Kind: kind})
	}
	return dst
}
