// Package table assembles normalized records into a fixed-schema analytic
// dataset. Cells only ever hold string, int64, float64, bool, time.Time or
// nil; nil is the missing marker and is skipped by aggregations.
package table

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mailtools/mail-to-table/model"
)

// Row maps column names to cell values.
type Row map[string]any

// Table is an assembled dataset. Every row carries exactly the schema's
// columns.
type Table struct {
	rows []Row
}

// Len reports the row count. A nil table is empty, so summaries, prompts
// and exports degrade instead of crashing when no table was ever built.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

func (t *Table) Columns() []Column { return Schema() }

func (t *Table) Rows() []Row {
	if t == nil {
		return nil
	}
	return t.rows
}

// Builder turns records into a Table by backfilling missing columns,
// coercing cell types, cleaning text columns and computing the derived ones.
type Builder struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewBuilder(logger *slog.Logger) *Builder {
	return &Builder{logger: logger, now: time.Now}
}

func (b *Builder) Build(records []model.Record) *Table {
	rows := make([]Row, 0, len(records))
	for i := range records {
		rows = append(rows, rowFromRecord(&records[i]))
	}
	return b.BuildRows(rows)
}

// BuildRows runs the assembly passes over caller-supplied rows. Keys outside
// the schema are dropped, missing ones are backfilled with the column
// default, and no value survives with the wrong type.
func (b *Builder) BuildRows(rows []Row) *Table {
	if len(rows) == 0 {
		if b.logger != nil {
			b.logger.Info("assembled empty table")
		}
		return &Table{}
	}
	now := b.now()
	out := make([]Row, 0, len(rows))
	for _, src := range rows {
		row := make(Row, len(columns))
		for _, col := range columns {
			value, ok := src[col.Name]
			if !ok {
				row[col.Name] = defaultFor(col.Kind)
				continue
			}
			row[col.Name] = coerce(value, col.Kind)
		}
		cleanup(row)
		derive(row, now)
		out = append(out, row)
	}
	if b.logger != nil {
		b.logger.Info("assembled table", "rows", len(out), "columns", len(columns))
	}
	return &Table{rows: out}
}

func rowFromRecord(rec *model.Record) Row {
	return Row{
		"folder_name":          rec.FolderName,
		"subject":              rec.Subject,
		"sender_email":         rec.SenderEmail,
		"sender_name":          rec.SenderName,
		"received_time":        timeCell(rec.ReceivedTime),
		"sent_time":            timeCell(rec.SentTime),
		"body_text":            rec.BodyText,
		"body_html":            rec.BodyHTML,
		"importance":           int64(rec.Importance),
		"size":                 rec.Size,
		"unread":               rec.Unread,
		"has_attachments":      rec.HasAttachments,
		"attachment_count":     int64(rec.AttachmentCount),
		"attachment_names":     rec.AttachmentNames,
		"attachment_sizes":     rec.AttachmentSizes,
		"categories":           rec.Categories,
		"message_class":        rec.MessageClass,
		"conversation_topic":   rec.ConversationTopic,
		"to_recipients":        rec.ToRecipients,
		"cc_recipients":        rec.CcRecipients,
		"bcc_recipients":       rec.BccRecipients,
		"is_reply":             rec.IsReply,
		"is_forward":           rec.IsForward,
		"priority":             rec.Priority,
		"day_of_week":          rec.DayOfWeek,
		"hour_of_day":          int64(rec.HourOfDay),
		"message_id":           rec.MessageID,
		"thread_id":            rec.ThreadID,
		"cleaned_text":         rec.CleanedText,
		"cleaned_html":         rec.CleanedHTML,
		"llm_optimized_text":   rec.LLMOptimizedText,
		"keywords":             rec.Keywords,
		"email_addresses":      rec.EmailAddresses,
		"phone_numbers":        rec.PhoneNumbers,
		"urls":                 rec.URLs,
		"body_char_count":      int64(rec.BodyCharCount),
		"body_sentence_count":  int64(rec.BodySentenceCount),
		"body_paragraph_count": int64(rec.BodyParagraphCount),
		"error":                rec.Error,
		"error_message":        rec.ErrorMessage,
	}
}

func timeCell(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func coerce(v any, k Kind) any {
	if v == nil {
		return nil
	}
	switch k {
	case KindString:
		return coerceString(v)
	case KindInt:
		return coerceInt(v)
	case KindFloat:
		return coerceFloat(v)
	case KindBool:
		return coerceBool(v)
	case KindTime:
		return coerceTime(v)
	}
	return nil
}

func coerceString(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case bool:
		return strconv.FormatBool(c)
	case int:
		return strconv.Itoa(c)
	case int64:
		return strconv.FormatInt(c, 10)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case time.Time:
		return c.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

func coerceInt(v any) int64 {
	switch c := v.(type) {
	case int64:
		return c
	case int:
		return int64(c)
	case float64:
		return int64(c)
	case bool:
		if c {
			return 1
		}
		return 0
	case string:
		trimmed := strings.TrimSpace(c)
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return int64(f)
		}
	}
	return 0
}

func coerceFloat(v any) float64 {
	switch c := v.(type) {
	case float64:
		return c
	case int64:
		return float64(c)
	case int:
		return float64(c)
	case bool:
		if c {
			return 1
		}
		return 0
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(c), 64); err == nil {
			return f
		}
	}
	return 0
}

func coerceBool(v any) bool {
	switch c := v.(type) {
	case bool:
		return c
	case int64:
		return c != 0
	case int:
		return c != 0
	case float64:
		return c != 0
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(c)); err == nil {
			return b
		}
	}
	return false
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func coerceTime(v any) any {
	switch c := v.(type) {
	case time.Time:
		return timeCell(c)
	case string:
		trimmed := strings.TrimSpace(c)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return timeCell(t)
			}
		}
	}
	return nil
}

var textColumns = []string{"subject", "body_text", "sender_name", "sender_email"}

// cleanup normalizes the free-text columns: trims, nils out empties,
// lowercases addresses and populates body_text_clean.
func cleanup(row Row) {
	for _, name := range textColumns {
		s, ok := row[name].(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			row[name] = nil
			continue
		}
		if name == "sender_email" {
			s = strings.ToLower(s)
		}
		row[name] = s
	}
	if body, ok := row["body_text"].(string); ok {
		row["body_text_clean"] = strings.Join(strings.Fields(body), " ")
	} else {
		row["body_text_clean"] = nil
	}
}

func derive(row Row, now time.Time) {
	if body, ok := row["body_text_clean"].(string); ok && body != "" {
		row["body_word_count"] = int64(len(strings.Fields(body)))
	} else {
		row["body_word_count"] = int64(0)
	}

	subject, _ := row["subject"].(string)
	row["subject_length"] = int64(utf8.RuneCountInString(subject))

	row["domain"] = domainOf(row["sender_email"])

	if received, ok := row["received_time"].(time.Time); ok {
		row["age_days"] = int64(math.Floor(now.Sub(received).Hours() / 24))
		row["time_category"] = timeCategory(received.Hour())
	} else {
		row["age_days"] = int64(0)
		row["time_category"] = "Unknown"
	}

	size, _ := row["size"].(int64)
	row["size_category"] = sizeCategory(size)

	row["to_count"] = recipientCount(row["to_recipients"])
	row["cc_count"] = recipientCount(row["cc_recipients"])
	row["bcc_count"] = recipientCount(row["bcc_recipients"])
}

func domainOf(v any) string {
	s, _ := v.(string)
	parts := strings.Split(s, "@")
	if len(parts) > 1 {
		return parts[1]
	}
	return ""
}

func timeCategory(hour int) string {
	switch {
	case hour >= 6 && hour <= 11:
		return "Morning"
	case hour >= 12 && hour <= 16:
		return "Afternoon"
	case hour >= 17 && hour <= 20:
		return "Evening"
	default:
		return "Night"
	}
}

func sizeCategory(size int64) string {
	switch {
	case size <= 1000:
		return "Small"
	case size <= 10000:
		return "Medium"
	case size <= 100000:
		return "Large"
	default:
		return "Very Large"
	}
}

func recipientCount(v any) int64 {
	s, _ := v.(string)
	if strings.TrimSpace(s) == "" {
		return 0
	}
	return int64(len(strings.Split(s, ";")))
}
