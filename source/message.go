package source

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"
)

// ParsedMessage is the content pulled out of one raw RFC 5322 message.
type ParsedMessage struct {
	Header      mail.Header
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// ParseMessage walks the MIME structure of raw and separates plain-text and
// HTML bodies from attachments. A message that cannot be parsed at all is
// treated as a single plain-text body with an empty header.
func ParseMessage(raw []byte) ParsedMessage {
	var pm ParsedMessage
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		pm.TextBody = string(raw)
		return pm
	}
	pm.Header = mr.Header
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, err := h.ContentType()
			if err != nil {
				continue
			}
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch ct {
			case "text/plain":
				pm.TextBody += string(body)
			case "text/html":
				pm.HTMLBody += string(body)
			}
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			var size int64
			if body, err := io.ReadAll(part.Body); err == nil {
				size = int64(len(body))
			}
			pm.Attachments = append(pm.Attachments, Attachment{FileName: name, Size: size})
		}
	}
	return pm
}

// AddressesOf reads an address-list header into recipients of the given
// kind. Unparseable or empty headers read as no recipients.
func AddressesOf(h mail.Header, key string, kind RecipientKind) []Recipient {
	list, err := h.AddressList(key)
	if err != nil || len(list) == 0 {
		return nil
	}
	out := make([]Recipient, 0, len(list))
	for _, a := range list {
		if a.Address == "" {
			continue
		}
		out = append(out, Recipient{Name: a.Name, Address: a.Address, Kind: kind})
	}
	return out
}

// ParseImportance maps the X-Priority and Importance header conventions onto
// the 0 (low) / 1 (normal) / 2 (high) scale. X-Priority wins when both are
// present.
func ParseImportance(xPriority, importance string) int {
	if p := strings.TrimSpace(xPriority); p != "" {
		switch {
		case strings.HasPrefix(p, "1"), strings.HasPrefix(p, "2"):
			return 2
		case strings.HasPrefix(p, "4"), strings.HasPrefix(p, "5"):
			return 0
		default:
			return 1
		}
	}
	switch strings.ToLower(strings.TrimSpace(importance)) {
	case "high":
		return 2
	case "low":
		return 0
	default:
		return 1
	}
}

var topicPrefixRe = regexp.MustCompile(`(?i)^\s*(?:(?:re|fw|fwd)\s*:\s*)+`)

// ConversationTopic prefers an explicit Thread-Topic header and otherwise
// strips reply and forward prefixes from the subject.
func ConversationTopic(threadTopic, subject string) string {
	if t := strings.TrimSpace(threadTopic); t != "" {
		return t
	}
	return strings.TrimSpace(topicPrefixRe.ReplaceAllString(subject, ""))
}

// ThreadID derives a thread identity from the References chain, falling back
// to In-Reply-To.
func ThreadID(h mail.Header) string {
	if refs := strings.Fields(h.Get("References")); len(refs) > 0 {
		return strings.Trim(refs[0], "<>")
	}
	return strings.Trim(strings.TrimSpace(h.Get("In-Reply-To")), "<>")
}

// UnreadFromStatus reports whether an mbox Status header marks the message
// unread; a missing header counts as unread.
func UnreadFromStatus(status string) bool {
	return !strings.ContainsAny(status, "Rr")
}
