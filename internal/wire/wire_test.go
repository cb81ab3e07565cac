package wire

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/matheus3301/dmserver/internal/message"
	"github.com/matheus3301/dmserver/internal/store"
)

func TestTimestamp(t *testing.T) {
	if got, want := Timestamp(1_700_000_000_123), "2023-11-14T22:13:20.123Z"; got != want {
		t.Errorf("Timestamp = %q, want %q", got, want)
	}
}

func TestFromMessageFillsSenderID(t *testing.T) {
	m := FromMessage(store.Message{ID: "m1", ChatID: "c1", SenderID: "alice", Content: "hi", Status: "sent"})
	if m.Sender.ID != "alice" {
		t.Errorf("sender id = %q, want alice", m.Sender.ID)
	}
}

func TestPageJSONShape(t *testing.T) {
	p := FromPage(message.Page{Messages: []store.Message{}})
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	got := string(b)
	for _, want := range []string{`"messages":[]`, `"nextCursor":null`, `"hasMore":false`} {
		if !strings.Contains(got, want) {
			t.Errorf("%s missing %s", got, want)
		}
	}
}

func TestSummaryWithoutLastMessage(t *testing.T) {
	out := FromSummaries([]store.ChatSummary{{Chat: store.Chat{ID: "c1"}, Other: store.User{ID: "bob"}}})
	b, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"lastMessage":null`) {
		t.Errorf("got %s, want lastMessage null", b)
	}
}
