// Package export writes an assembled table to disk in one of the supported
// dataset formats.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/mailtools/mail-to-table/table"
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ErrNoData is returned when the table has no rows to write.
var ErrNoData = errors.New("export: no rows to write")

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatParquet:
		return FormatParquet, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// llmColumns is the analysis-ready subset Export writes, in output order.
var llmColumns = []string{
	"folder_name",
	"subject",
	"sender_email",
	"sender_name",
	"received_time",
	"body_text_clean",
	"importance",
	"has_attachments",
	"body_word_count",
	"is_reply",
	"is_forward",
	"domain",
	"time_category",
	"age_days",
}

// Export writes the allow-listed columns of t to path, creating parent
// directories as needed.
func Export(t *table.Table, format Format, path string) error {
	if t == nil || t.Len() == 0 {
		return ErrNoData
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	switch format {
	case FormatCSV:
		return writeCSV(t, path)
	case FormatJSON:
		return writeJSON(t, path)
	case FormatParquet:
		return writeParquet(t, path)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

func presentColumns(t *table.Table) []string {
	have := make(map[string]bool)
	for _, col := range t.Columns() {
		have[col.Name] = true
	}
	cols := make([]string, 0, len(llmColumns))
	for _, name := range llmColumns {
		if have[name] {
			cols = append(cols, name)
		}
	}
	return cols
}

func writeCSV(t *table.Table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	cols := presentColumns(t)
	if err := w.Write(cols); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(cols))
	for _, row := range t.Rows() {
		for i, name := range cols {
			record[i] = cellText(row[name])
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func cellText(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case bool:
		return strconv.FormatBool(c)
	case int64:
		return strconv.FormatInt(c, 10)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case time.Time:
		return c.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

func writeJSON(t *table.Table, path string) error {
	cols := presentColumns(t)
	objs := make([]map[string]any, 0, t.Len())
	for _, row := range t.Rows() {
		obj := make(map[string]any, len(cols))
		for _, name := range cols {
			obj[name] = row[name]
		}
		objs = append(objs, obj)
	}
	data, err := json.MarshalIndent(objs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

type parquetRow struct {
	FolderName     string     `parquet:"folder_name"`
	Subject        string     `parquet:"subject"`
	SenderEmail    string     `parquet:"sender_email"`
	SenderName     string     `parquet:"sender_name"`
	ReceivedTime   *time.Time `parquet:"received_time,optional"`
	BodyTextClean  string     `parquet:"body_text_clean"`
	Importance     int64      `parquet:"importance"`
	HasAttachments bool       `parquet:"has_attachments"`
	BodyWordCount  int64      `parquet:"body_word_count"`
	IsReply        bool       `parquet:"is_reply"`
	IsForward      bool       `parquet:"is_forward"`
	Domain         string     `parquet:"domain"`
	TimeCategory   string     `parquet:"time_category"`
	AgeDays        int64      `parquet:"age_days"`
}

func writeParquet(t *table.Table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	rows := make([]parquetRow, 0, t.Len())
	for _, row := range t.Rows() {
		rows = append(rows, parquetRow{
			FolderName:     stringCell(row["folder_name"]),
			Subject:        stringCell(row["subject"]),
			SenderEmail:    stringCell(row["sender_email"]),
			SenderName:     stringCell(row["sender_name"]),
			ReceivedTime:   timeCell(row["received_time"]),
			BodyTextClean:  stringCell(row["body_text_clean"]),
			Importance:     intCell(row["importance"]),
			HasAttachments: boolCell(row["has_attachments"]),
			BodyWordCount:  intCell(row["body_word_count"]),
			IsReply:        boolCell(row["is_reply"]),
			IsForward:      boolCell(row["is_forward"]),
			Domain:         stringCell(row["domain"]),
			TimeCategory:   stringCell(row["time_category"]),
			AgeDays:        intCell(row["age_days"]),
		})
	}

	w := parquet.NewGenericWriter[parquetRow](f)
	if _, err := w.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func stringCell(v any) string {
	s, _ := v.(string)
	return s
}

func intCell(v any) int64 {
	n, _ := v.(int64)
	return n
}

func boolCell(v any) bool {
	b, _ := v.(bool)
	return b
}

func timeCell(v any) *time.Time {
	if t, ok := v.(time.Time); ok {
		return &t
	}
	return nil
}
