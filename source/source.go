// Package source defines the contracts mailbox providers implement and the
// attribute vocabulary the record mapper reads.
package source

import "context"

// Attribute keys understood by the mapper. Providers populate the subset
// their backend can supply; an absent key reads as (nil, nil).
const (
	AttrSubject           = "subject"
	AttrSenderName        = "sender_name"
	AttrSenderEmail       = "sender_email"
	AttrSender            = "sender"
	AttrReceivedTime      = "received_time"
	AttrSentTime          = "sent_time"
	AttrBodyText          = "body_text"
	AttrBodyHTML          = "body_html"
	AttrImportance        = "importance"
	AttrSize              = "size"
	AttrUnread            = "unread"
	AttrMessageClass      = "message_class"
	AttrConversationTopic = "conversation_topic"
	AttrCategories        = "categories"
	AttrRecipients        = "recipients"
	AttrReplyRecipients   = "reply_recipients"
	AttrAttachments       = "attachments"
	AttrMessageID         = "message_id"
	AttrThreadID          = "thread_id"
)

// RecipientKind distinguishes the addressing header a recipient came from.
type RecipientKind int

const (
	RecipientTo RecipientKind = iota + 1
	RecipientCc
	RecipientBcc
)

// Address is a single mailbox address with an optional display name.
type Address struct {
	Name    string
	Address string
}

// Recipient is an Address plus the header it was addressed on.
type Recipient struct {
	Name    string
	Address string
	Kind    RecipientKind
}

// Attachment describes one attachment without carrying its content.
type Attachment struct {
	FileName string
	Size     int64
}

// Item is a raw mailbox item. Attr returns (nil, nil) when the item has no
// such attribute and a non-nil error when the attribute exists but cannot be
// read; callers treat the two differently.
type Item interface {
	Attr(name string) (any, error)
}

// FolderInfo describes one folder a provider can open.
type FolderInfo struct {
	Name  string
	Path  string
	Items int
}

// Folder is an opened mailbox folder.
type Folder interface {
	Name() string
	Path() string
	Count() int
	// Items returns the folder's items newest-first by received time. When
	// max is positive at most max items are returned.
	Items(ctx context.Context, max int) ([]Item, error)
}

// Provider connects to a mail store and opens folders by path.
type Provider interface {
	Connect(ctx context.Context) error
	Close() error
	Folders(ctx context.Context) ([]FolderInfo, error)
	Folder(ctx context.Context, path string) (Folder, error)
}

// MapItem is the map-backed Item providers assemble.
type MapItem map[string]any

// NewMapItem returns an empty MapItem ready for Set calls.
func NewMapItem() MapItem { return make(MapItem) }

// Set stores an attribute value. Nil values are skipped so absent stays
// absent.
func (m MapItem) Set(name string, value any) {
	if value == nil {
		return
	}
	m[name] = value
}

// Attr implements Item. Reading a MapItem never fails.
func (m MapItem) Attr(name string) (any, error) {
	v, ok := m[name]
	if !ok {
		return nil, nil
	}
	return v, nil
}
