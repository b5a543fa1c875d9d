package table

// Kind is the value type a column holds. Coercion forces every cell to its
// column's kind, or to nil when the value cannot be represented.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
)

type Column struct {
	Name string
	Kind Kind
}

// columns is the closed schema in output order: mapper-populated columns
// first, then the assembler-derived ones, then the placeholders a downstream
// enrichment pass fills in.
var columns = []Column{
	{"folder_name", KindString},
	{"subject", KindString},
	{"sender_email", KindString},
	{"sender_name", KindString},
	{"received_time", KindTime},
	{"sent_time", KindTime},
	{"body_text", KindString},
	{"body_html", KindString},
	{"importance", KindInt},
	{"size", KindInt},
	{"unread", KindBool},
	{"has_attachments", KindBool},
	{"attachment_count", KindInt},
	{"attachment_names", KindString},
	{"attachment_sizes", KindString},
	{"categories", KindString},
	{"message_class", KindString},
	{"conversation_topic", KindString},
	{"to_recipients", KindString},
	{"cc_recipients", KindString},
	{"bcc_recipients", KindString},
	{"is_reply", KindBool},
	{"is_forward", KindBool},
	{"priority", KindString},
	{"day_of_week", KindString},
	{"hour_of_day", KindInt},
	{"message_id", KindString},
	{"thread_id", KindString},
	{"cleaned_text", KindString},
	{"cleaned_html", KindString},
	{"llm_optimized_text", KindString},
	{"keywords", KindString},
	{"email_addresses", KindString},
	{"phone_numbers", KindString},
	{"urls", KindString},
	{"body_char_count", KindInt},
	{"body_sentence_count", KindInt},
	{"body_paragraph_count", KindInt},
	{"error", KindBool},
	{"error_message", KindString},

	{"body_text_clean", KindString},
	{"body_word_count", KindInt},
	{"subject_length", KindInt},
	{"domain", KindString},
	{"age_days", KindInt},
	{"time_category", KindString},
	{"size_category", KindString},
	{"to_count", KindInt},
	{"cc_count", KindInt},
	{"bcc_count", KindInt},

	{"sentiment", KindString},
	{"priority_score", KindFloat},
	{"topic_category", KindString},
	{"requires_action", KindBool},
	{"key_entities", KindString},
	{"summary", KindString},
}

// Schema returns a copy of the column set in table order.
func Schema() []Column {
	out := make([]Column, len(columns))
	copy(out, columns)
	return out
}

func defaultFor(k Kind) any {
	switch k {
	case KindInt:
		return int64(0)
	case KindFloat:
		return float64(0)
	case KindBool:
		return false
	case KindTime:
		return nil
	default:
		return ""
	}
}
