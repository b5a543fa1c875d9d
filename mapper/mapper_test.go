package mapper

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mailtools/mail-to-table/source"
)

type fakeItem struct {
	attrs  map[string]any
	broken map[string]error
}

func (f *fakeItem) Attr(name string) (any, error) {
	if err, ok := f.broken[name]; ok {
		return nil, err
	}
	return f.attrs[name], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMapFullItem(t *testing.T) {
	received := time.Date(2024, 3, 14, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	item := source.NewMapItem()
	item.Set(source.AttrSubject, "Quarterly numbers")
	item.Set(source.AttrSenderName, "Alice Archer")
	item.Set(source.AttrSenderEmail, "alice@example.com")
	item.Set(source.AttrReceivedTime, received)
	item.Set(source.AttrBodyText, "Numbers attached. Call 555-123-4567 with questions.")
	item.Set(source.AttrImportance, 2)
	item.Set(source.AttrSize, int64(2048))
	item.Set(source.AttrUnread, true)
	item.Set(source.AttrRecipients, []source.Recipient{
		{Name: "Jane Smith", Address: "jane@x.com", Kind: source.RecipientTo},
		{Address: "bob@x.com", Kind: source.RecipientCc},
	})
	item.Set(source.AttrAttachments, []source.Attachment{
		{FileName: "report.pdf", Size: 1024},
		{Size: 99},
	})

	res := New(testLogger()).Map(item, "Inbox")
	if res.Err != nil {
		t.Fatalf("unexpected mapping error: %v", res.Err)
	}
	rec := res.Record

	if rec.FolderName != "Inbox" || rec.Subject != "Quarterly numbers" {
		t.Errorf("identity fields wrong: %q %q", rec.FolderName, rec.Subject)
	}
	if rec.ToRecipients != "Jane Smith <jane@x.com>" {
		t.Errorf("ToRecipients = %q", rec.ToRecipients)
	}
	if rec.CcRecipients != "bob@x.com" {
		t.Errorf("CcRecipients = %q", rec.CcRecipients)
	}
	if rec.BccRecipients != "" {
		t.Errorf("BccRecipients = %q, want empty", rec.BccRecipients)
	}
	if !rec.HasAttachments || rec.AttachmentCount != 2 {
		t.Errorf("attachment summary wrong: %v %d", rec.HasAttachments, rec.AttachmentCount)
	}
	if rec.AttachmentNames != "report.pdf; Attachment_2" {
		t.Errorf("AttachmentNames = %q", rec.AttachmentNames)
	}
	if rec.AttachmentSizes != "1024; 99" {
		t.Errorf("AttachmentSizes = %q", rec.AttachmentSizes)
	}
	if rec.Priority != "High" || rec.Importance != 2 {
		t.Errorf("priority mapping wrong: %q %d", rec.Priority, rec.Importance)
	}
	if rec.DayOfWeek != "Thursday" || rec.HourOfDay != 9 {
		t.Errorf("time fields wrong: %q %d", rec.DayOfWeek, rec.HourOfDay)
	}
	if rec.ReceivedTime.Location() != time.UTC || rec.ReceivedTime.Hour() != 9 {
		t.Errorf("received time not retagged with wall clock kept: %v", rec.ReceivedTime)
	}
	if rec.PhoneNumbers != "555-123-4567" {
		t.Errorf("PhoneNumbers = %q", rec.PhoneNumbers)
	}
	if !rec.Unread || rec.Size != 2048 {
		t.Errorf("unread/size wrong: %v %d", rec.Unread, rec.Size)
	}
	if rec.Error {
		t.Error("record unexpectedly flagged as error")
	}
}

func TestMapDefaults(t *testing.T) {
	res := New(testLogger()).Map(source.NewMapItem(), "Archive")
	if res.Err != nil {
		t.Fatalf("unexpected mapping error: %v", res.Err)
	}
	rec := res.Record
	if rec.Subject != "" || rec.SenderEmail != "" {
		t.Errorf("expected empty identity defaults, got %q %q", rec.Subject, rec.SenderEmail)
	}
	if rec.Importance != 1 || rec.Priority != "Normal" {
		t.Errorf("importance defaults wrong: %d %q", rec.Importance, rec.Priority)
	}
	if !rec.ReceivedTime.IsZero() || rec.DayOfWeek != "" || rec.HourOfDay != 0 {
		t.Errorf("time defaults wrong: %v %q %d", rec.ReceivedTime, rec.DayOfWeek, rec.HourOfDay)
	}
	if rec.Unread || rec.HasAttachments || rec.IsReply || rec.IsForward || rec.Error {
		t.Error("boolean defaults should all be false")
	}
}

func TestMapNilItem(t *testing.T) {
	res := New(testLogger()).Map(nil, "Inbox")
	if res.Err == nil {
		t.Fatal("expected an error for a nil item")
	}
	rec := res.Record
	if !rec.Error || rec.MessageClass != "ERROR" || rec.Importance != 1 {
		t.Errorf("error record shape wrong: %+v", rec)
	}
	if rec.Subject != "ERROR: raw item is nil" {
		t.Errorf("Subject = %q", rec.Subject)
	}
	if rec.FolderName != "Inbox" {
		t.Errorf("FolderName = %q", rec.FolderName)
	}
	if rec.Priority != "" {
		t.Errorf("Priority = %q, want empty on error records", rec.Priority)
	}
}

func TestMapSubjectReadFailure(t *testing.T) {
	item := &fakeItem{broken: map[string]error{source.AttrSubject: errors.New("store unavailable")}}
	res := New(testLogger()).Map(item, "Inbox")
	if res.Err == nil {
		t.Fatal("expected an error when the subject cannot be read")
	}
	if !res.Record.Error {
		t.Error("record should be an error record")
	}
	if !strings.Contains(res.Record.ErrorMessage, "read subject") {
		t.Errorf("ErrorMessage = %q, want the subject read failure", res.Record.ErrorMessage)
	}
}

func TestMapFieldFailureDegrades(t *testing.T) {
	item := &fakeItem{
		attrs:  map[string]any{source.AttrSubject: "still fine"},
		broken: map[string]error{source.AttrBodyText: errors.New("denied")},
	}
	res := New(testLogger()).Map(item, "Inbox")
	if res.Err != nil {
		t.Fatalf("field failure must not fail the item: %v", res.Err)
	}
	if res.Record.Subject != "still fine" || res.Record.BodyText != "" {
		t.Errorf("degradation wrong: %q %q", res.Record.Subject, res.Record.BodyText)
	}
	if res.Record.Error {
		t.Error("degraded record must not be an error record")
	}
}

func TestSenderResolution(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]any
		want  string
	}{
		{
			name:  "direct attribute",
			attrs: map[string]any{source.AttrSenderEmail: "a@x.io"},
			want:  "a@x.io",
		},
		{
			name: "directory path falls back to sender object",
			attrs: map[string]any{
				source.AttrSenderEmail: "/O=ORG/CN=RECIPIENTS/A",
				source.AttrSender:      source.Address{Name: "A", Address: "real@x.io"},
			},
			want: "real@x.io",
		},
		{
			name: "falls back to first reply recipient",
			attrs: map[string]any{
				source.AttrSenderEmail: "/O=ORG",
				source.AttrSender:      source.Address{Address: "/O=ORG2"},
				source.AttrReplyRecipients: []source.Recipient{
					{Address: "r@x.io", Kind: source.RecipientTo},
				},
			},
			want: "r@x.io",
		},
		{
			name:  "nothing usable",
			attrs: map[string]any{source.AttrSenderEmail: "/O=ORG"},
			want:  "",
		},
	}
	m := New(testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := m.Map(&fakeItem{attrs: tt.attrs}, "Inbox")
			if res.Record.SenderEmail != tt.want {
				t.Errorf("SenderEmail = %q, want %q", res.Record.SenderEmail, tt.want)
			}
		})
	}
}

func TestReplyForwardHeuristics(t *testing.T) {
	tests := []struct {
		name    string
		attrs   map[string]any
		reply   bool
		forward bool
	}{
		{"re prefix", map[string]any{source.AttrSubject: "RE: hello"}, true, false},
		{"lowercase re prefix", map[string]any{source.AttrSubject: "re: hello"}, true, false},
		{"fwd prefix", map[string]any{source.AttrSubject: "FWD: doc"}, false, true},
		{"fw prefix", map[string]any{source.AttrSubject: "Fw: doc"}, false, true},
		{
			"reply recipients without prefix",
			map[string]any{
				source.AttrSubject: "hello",
				source.AttrReplyRecipients: []source.Recipient{
					{Address: "r@x.io", Kind: source.RecipientTo},
				},
			},
			true, false,
		},
		{"plain subject", map[string]any{source.AttrSubject: "hello"}, false, false},
	}
	m := New(testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := m.Map(&fakeItem{attrs: tt.attrs}, "Inbox")
			if res.Record.IsReply != tt.reply || res.Record.IsForward != tt.forward {
				t.Errorf("got reply=%v forward=%v, want reply=%v forward=%v",
					res.Record.IsReply, res.Record.IsForward, tt.reply, tt.forward)
			}
		})
	}
}

func TestPriorityMapping(t *testing.T) {
	want := map[int]string{0: "Low", 1: "Normal", 2: "High", 99: "Normal"}
	m := New(testLogger())
	for importance, label := range want {
		res := m.Map(&fakeItem{attrs: map[string]any{source.AttrImportance: importance}}, "Inbox")
		if res.Record.Priority != label {
			t.Errorf("importance %d: Priority = %q, want %q", importance, res.Record.Priority, label)
		}
		if res.Record.Importance != importance {
			t.Errorf("importance %d not preserved: %d", importance, res.Record.Importance)
		}
	}
}

func TestMapBoundsLLMText(t *testing.T) {
	item := source.NewMapItem()
	item.Set(source.AttrSubject, "big body")
	item.Set(source.AttrBodyText, strings.Repeat("x", 12))
	res := New(testLogger(), WithMaxBodyLength(5)).Map(item, "Inbox")
	if res.Record.LLMOptimizedText != "xxxxx" {
		t.Errorf("LLMOptimizedText = %q, want 5 runes", res.Record.LLMOptimizedText)
	}
}
