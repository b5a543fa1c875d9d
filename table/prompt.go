package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	promptSubjectLen = 100
	promptBodyLen    = 200
)

// PromptText renders the dataset digest handed to a language model:
// aggregate counts followed by up to maxRows sample rows (0 = all). The
// output is deterministic for a given table.
func PromptText(t *Table, maxRows int) string {
	if t.Len() == 0 {
		return "No email data available for analysis."
	}

	st := Summarize(t)
	senders := make(map[string]bool)
	seenFolder := make(map[string]bool)
	var folders []string
	for _, row := range t.Rows() {
		if sender, ok := row["sender_email"].(string); ok {
			senders[sender] = true
		}
		if folder, ok := row["folder_name"].(string); ok && !seenFolder[folder] {
			seenFolder[folder] = true
			folders = append(folders, folder)
		}
	}

	var b strings.Builder
	b.WriteString("EMAIL DATASET SUMMARY:\n")
	fmt.Fprintf(&b, "Total emails: %d\n", t.Len())
	fmt.Fprintf(&b, "Date range: %s to %s\n", promptTime(st.MinReceived), promptTime(st.MaxReceived))
	fmt.Fprintf(&b, "Unique senders: %d\n", len(senders))
	fmt.Fprintf(&b, "Folders: %s\n", strings.Join(folders, ", "))

	b.WriteString("\nSAMPLE EMAIL DATA:\n")
	rows := t.Rows()
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	for i, row := range rows {
		fmt.Fprintf(&b, "\nEmail %d:\n", i+1)
		fmt.Fprintf(&b, "  Folder: %s\n", cellString(row["folder_name"]))
		fmt.Fprintf(&b, "  From: %s\n", cellString(row["sender_email"]))
		fmt.Fprintf(&b, "  Subject: %s\n", truncateRunes(cellString(row["subject"]), promptSubjectLen))
		fmt.Fprintf(&b, "  Received: %s\n", cellString(row["received_time"]))
		fmt.Fprintf(&b, "  Body (first 200 chars): %s\n", truncateRunes(cellString(row["body_text_clean"]), promptBodyLen))
	}
	return b.String()
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func cellString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case time.Time:
		return promptTime(c)
	case bool:
		return strconv.FormatBool(c)
	case int64:
		return strconv.FormatInt(c, 10)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func promptTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
