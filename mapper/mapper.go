// Package mapper turns raw mailbox items into normalized records. Mapping is
// total: a broken item degrades to an error record, a broken field degrades
// to that field's default.
package mapper

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mailtools/mail-to-table/model"
	"github.com/mailtools/mail-to-table/source"
	"github.com/mailtools/mail-to-table/textproc"
)

var errNilItem = errors.New("raw item is nil")

// Mapper maps source items into records.
type Mapper struct {
	logger  *slog.Logger
	maxBody int
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithMaxBodyLength lowers the rune bound on llm_optimized_text. Values
// outside (0, textproc.MaxLLMTextLen] keep the hard bound.
func WithMaxBodyLength(n int) Option {
	return func(m *Mapper) { m.maxBody = n }
}

// New returns a Mapper that logs field-level degradations at debug level.
func New(logger *slog.Logger, opts ...Option) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mapper{logger: logger, maxBody: textproc.MaxLLMTextLen}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Map normalizes one item into a record for folder. It never fails: when the
// item is structurally unreadable the result carries an error record plus
// the cause.
func (m *Mapper) Map(item source.Item, folder string) model.Result {
	rec, err := m.mapItem(item, folder)
	if err != nil {
		return model.Result{Record: model.NewErrorRecord(folder, err), Err: err}
	}
	return model.Result{Record: rec}
}

func (m *Mapper) mapItem(item source.Item, folder string) (model.Record, error) {
	if item == nil {
		return model.Record{}, errNilItem
	}
	// The subject decides whether the item is readable at all; every other
	// field degrades on its own.
	subjectVal, err := item.Attr(source.AttrSubject)
	if err != nil {
		return model.Record{}, fmt.Errorf("read subject: %w", err)
	}
	subject := asString(subjectVal)

	var rec model.Record
	rec.FolderName = folder
	rec.Subject = subject
	rec.SenderEmail = m.senderEmail(item)
	rec.SenderName = m.stringAttr(item, source.AttrSenderName, "")

	rec.ReceivedTime = asReferenceTime(m.timeAttr(item, source.AttrReceivedTime))
	rec.SentTime = asReferenceTime(m.timeAttr(item, source.AttrSentTime))

	rec.BodyText = m.stringAttr(item, source.AttrBodyText, "")
	rec.BodyHTML = m.stringAttr(item, source.AttrBodyHTML, "")
	rec.Importance = m.intAttr(item, source.AttrImportance, 1)
	rec.Size = m.int64Attr(item, source.AttrSize, 0)
	rec.Unread = m.boolAttr(item, source.AttrUnread, false)

	atts := m.attachmentsAttr(item)
	rec.HasAttachments = len(atts) > 0
	rec.AttachmentCount = len(atts)
	rec.AttachmentNames, rec.AttachmentSizes = summarizeAttachments(atts)

	rec.Categories = m.stringAttr(item, source.AttrCategories, "")
	rec.MessageClass = m.stringAttr(item, source.AttrMessageClass, "")
	rec.ConversationTopic = m.stringAttr(item, source.AttrConversationTopic, "")

	recipients := m.recipientsAttr(item, source.AttrRecipients)
	rec.ToRecipients = formatRecipients(recipients, source.RecipientTo)
	rec.CcRecipients = formatRecipients(recipients, source.RecipientCc)
	rec.BccRecipients = formatRecipients(recipients, source.RecipientBcc)

	replyTo := m.recipientsAttr(item, source.AttrReplyRecipients)
	rec.IsReply = len(replyTo) > 0 || hasPrefixFold(subject, "RE:")
	rec.IsForward = hasPrefixFold(subject, "FW:") || hasPrefixFold(subject, "FWD:")

	rec.Priority = priorityLabel(rec.Importance)
	if !rec.ReceivedTime.IsZero() {
		rec.DayOfWeek = rec.ReceivedTime.Weekday().String()
		rec.HourOfDay = rec.ReceivedTime.Hour()
	}

	rec.MessageID = m.stringAttr(item, source.AttrMessageID, "")
	rec.ThreadID = m.stringAttr(item, source.AttrThreadID, "")

	body := textproc.ProcessBody(rec.BodyHTML, rec.BodyText, m.maxBody)
	rec.CleanedText = body.CleanedText
	rec.CleanedHTML = body.CleanedHTML
	rec.LLMOptimizedText = body.LLMText
	rec.Keywords = strings.Join(body.Keywords, "; ")
	rec.EmailAddresses = strings.Join(body.EmailAddresses, "; ")
	rec.PhoneNumbers = strings.Join(body.PhoneNumbers, "; ")
	rec.URLs = strings.Join(body.URLs, "; ")
	rec.BodyCharCount = body.Stats.Characters
	rec.BodySentenceCount = body.Stats.Sentences
	rec.BodyParagraphCount = body.Stats.Paragraphs

	return rec, nil
}

// senderEmail resolves the sender the way mail stores expose it: the direct
// attribute, then the sender object, then the first reply-recipient.
// Directory-style paths (leading '/') are not routable and are rejected at
// every step.
func (m *Mapper) senderEmail(item source.Item) string {
	email := m.stringAttr(item, source.AttrSenderEmail, "")
	if !usableAddress(email) {
		if addr, ok := m.addressAttr(item, source.AttrSender); ok {
			email = addr.Address
		}
	}
	if !usableAddress(email) {
		if reply := m.recipientsAttr(item, source.AttrReplyRecipients); len(reply) > 0 {
			email = reply[0].Address
		}
	}
	if !usableAddress(email) {
		return ""
	}
	return email
}

func usableAddress(email string) bool {
	return email != "" && !strings.HasPrefix(email, "/")
}

// attr reads one attribute, folding read errors into the absent case after
// logging them.
func (m *Mapper) attr(item source.Item, name string) (any, bool) {
	v, err := item.Attr(name)
	if err != nil {
		m.logger.Debug("attribute unreadable, using default", "attr", name, "err", err)
		return nil, false
	}
	if v == nil {
		return nil, false
	}
	return v, true
}

func (m *Mapper) stringAttr(item source.Item, name, def string) string {
	v, ok := m.attr(item, name)
	if !ok {
		return def
	}
	return asString(v)
}

func (m *Mapper) intAttr(item source.Item, name string, def int) int {
	v, ok := m.attr(item, name)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int32:
		return int(t)
	case int64:
		return int(t)
	case uint32:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	m.logger.Debug("attribute has unexpected type, using default", "attr", name)
	return def
}

func (m *Mapper) int64Attr(item source.Item, name string, def int64) int64 {
	v, ok := m.attr(item, name)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return n
		}
	}
	m.logger.Debug("attribute has unexpected type, using default", "attr", name)
	return def
}

func (m *Mapper) boolAttr(item source.Item, name string, def bool) bool {
	v, ok := m.attr(item, name)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
	}
	m.logger.Debug("attribute has unexpected type, using default", "attr", name)
	return def
}

func (m *Mapper) timeAttr(item source.Item, name string) time.Time {
	v, ok := m.attr(item, name)
	if !ok {
		return time.Time{}
	}
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123} {
			if ts, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
				return ts
			}
		}
	}
	m.logger.Debug("attribute has unexpected type, using default", "attr", name)
	return time.Time{}
}

func (m *Mapper) recipientsAttr(item source.Item, name string) []source.Recipient {
	v, ok := m.attr(item, name)
	if !ok {
		return nil
	}
	list, ok := v.([]source.Recipient)
	if !ok {
		m.logger.Debug("attribute has unexpected type, using default", "attr", name)
		return nil
	}
	return list
}

func (m *Mapper) attachmentsAttr(item source.Item) []source.Attachment {
	v, ok := m.attr(item, source.AttrAttachments)
	if !ok {
		return nil
	}
	list, ok := v.([]source.Attachment)
	if !ok {
		m.logger.Debug("attribute has unexpected type, using default", "attr", source.AttrAttachments)
		return nil
	}
	return list
}

func (m *Mapper) addressAttr(item source.Item, name string) (source.Address, bool) {
	v, ok := m.attr(item, name)
	if !ok {
		return source.Address{}, false
	}
	switch t := v.(type) {
	case source.Address:
		return t, true
	case *source.Address:
		if t != nil {
			return *t, true
		}
	}
	m.logger.Debug("attribute has unexpected type, using default", "attr", name)
	return source.Address{}, false
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// formatRecipients renders the recipients of one kind as a "; " separated
// list, "Name <email>" when a distinct display name exists.
func formatRecipients(recipients []source.Recipient, kind source.RecipientKind) string {
	var parts []string
	for _, r := range recipients {
		if r.Kind != kind || r.Address == "" {
			continue
		}
		if r.Name != "" && r.Name != r.Address {
			parts = append(parts, fmt.Sprintf("%s <%s>", r.Name, r.Address))
		} else {
			parts = append(parts, r.Address)
		}
	}
	return strings.Join(parts, "; ")
}

// summarizeAttachments renders names and sizes as parallel "; " separated
// lists. Nameless attachments get a positional placeholder.
func summarizeAttachments(atts []source.Attachment) (names, sizes string) {
	if len(atts) == 0 {
		return "", ""
	}
	nameParts := make([]string, len(atts))
	sizeParts := make([]string, len(atts))
	for i, a := range atts {
		name := a.FileName
		if name == "" {
			name = fmt.Sprintf("Attachment_%d", i+1)
		}
		nameParts[i] = name
		sizeParts[i] = strconv.FormatInt(a.Size, 10)
	}
	return strings.Join(nameParts, "; "), strings.Join(sizeParts, "; ")
}

func priorityLabel(importance int) string {
	switch importance {
	case 0:
		return "Low"
	case 2:
		return "High"
	default:
		return "Normal"
	}
}

func hasPrefixFold(s, prefix string) bool {
	return strings.HasPrefix(strings.ToUpper(s), prefix)
}

// asReferenceTime retags a timestamp in the reference timezone, keeping the
// wall-clock reading so hour buckets match what the mailbox displayed.
func asReferenceTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
