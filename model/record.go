package model

import "time"

// Record is one mailbox item normalized into the fixed analytic schema.
// Zero values are the documented defaults: empty strings, 0, false and the
// zero time, which the table layer renders as missing.
type Record struct {
	FolderName  string
	Subject     string
	SenderEmail string
	SenderName  string

	ReceivedTime time.Time
	SentTime     time.Time

	BodyText string
	BodyHTML string

	Importance int
	Size       int64
	Unread     bool

	HasAttachments  bool
	AttachmentCount int
	AttachmentNames string
	AttachmentSizes string

	Categories        string
	MessageClass      string
	ConversationTopic string

	ToRecipients  string
	CcRecipients  string
	BccRecipients string

	IsReply   bool
	IsForward bool

	Priority  string
	DayOfWeek string
	HourOfDay int

	MessageID string
	ThreadID  string

	CleanedText        string
	CleanedHTML        string
	LLMOptimizedText   string
	Keywords           string
	EmailAddresses     string
	PhoneNumbers       string
	URLs               string
	BodyCharCount      int
	BodySentenceCount  int
	BodyParagraphCount int

	Error        bool
	ErrorMessage string
}

// Result pairs a record with the error that degraded it. The record is
// always usable; a non-nil Err means it is an error record.
type Result struct {
	Record Record
	Err    error
}

// NewErrorRecord builds the placeholder record for an item that could not be
// read at all. The subject carries the reason so the row stays searchable.
func NewErrorRecord(folder string, err error) Record {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Record{
		FolderName:   folder,
		Subject:      "ERROR: " + msg,
		Importance:   1,
		MessageClass: "ERROR",
		Error:        true,
		ErrorMessage: msg,
	}
}
