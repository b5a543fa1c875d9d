package table

import (
	"sort"
	"time"

	"github.com/mailtools/mail-to-table/stats"
)

const topN = 10

// Stats summarizes an assembled table. An empty table yields zero values
// throughout.
type Stats struct {
	Rows        int
	MinReceived time.Time
	MaxReceived time.Time

	TopFolders []stats.Freq
	TopSenders []stats.Freq
	TopDomains []stats.Freq

	MeanWordCount   float64
	UnreadCount     int
	WithAttachments int

	SizeMean   float64
	SizeMedian float64
	SizeMax    int64
}

func (s Stats) LogAttrs() []any {
	attrs := []any{
		"rows", s.Rows,
		"unread", s.UnreadCount,
		"withAttachments", s.WithAttachments,
		"meanWordCount", s.MeanWordCount,
		"sizeMean", s.SizeMean,
		"sizeMedian", s.SizeMedian,
		"sizeMax", s.SizeMax,
	}
	if !s.MinReceived.IsZero() {
		attrs = append(attrs, "oldest", s.MinReceived, "newest", s.MaxReceived)
	}
	return attrs
}

func Summarize(t *Table) Stats {
	st := Stats{Rows: t.Len()}
	if t.Len() == 0 {
		return st
	}

	folders := make(map[string]int)
	senders := make(map[string]int)
	domains := make(map[string]int)
	var wordSum, sizeSum int64
	sizes := make([]int64, 0, t.Len())

	for _, row := range t.Rows() {
		if received, ok := row["received_time"].(time.Time); ok {
			if st.MinReceived.IsZero() || received.Before(st.MinReceived) {
				st.MinReceived = received
			}
			if received.After(st.MaxReceived) {
				st.MaxReceived = received
			}
		}
		if folder, ok := row["folder_name"].(string); ok && folder != "" {
			folders[folder]++
		}
		if sender, ok := row["sender_email"].(string); ok {
			senders[sender]++
		}
		if domain, ok := row["domain"].(string); ok && domain != "" {
			domains[domain]++
		}
		wordSum += cellInt(row["body_word_count"])
		size := cellInt(row["size"])
		sizeSum += size
		sizes = append(sizes, size)
		if size > st.SizeMax {
			st.SizeMax = size
		}
		if unread, ok := row["unread"].(bool); ok && unread {
			st.UnreadCount++
		}
		if has, ok := row["has_attachments"].(bool); ok && has {
			st.WithAttachments++
		}
	}

	st.TopFolders = stats.TopCounts(folders, topN)
	st.TopSenders = stats.TopCounts(senders, topN)
	st.TopDomains = stats.TopCounts(domains, topN)

	n := float64(t.Len())
	st.MeanWordCount = float64(wordSum) / n
	st.SizeMean = float64(sizeSum) / n
	st.SizeMedian = median(sizes)
	return st
}

func cellInt(v any) int64 {
	n, _ := v.(int64)
	return n
}

func median(values []int64) float64 {
	if len(values) == 0 {
		return 0
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return float64(values[mid])
	}
	return float64(values[mid-1]+values[mid]) / 2
}
