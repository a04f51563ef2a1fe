package exchange

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pixelpilot/internal/chat"
	"pixelpilot/internal/clock"
	"pixelpilot/internal/persist"
	"pixelpilot/pkg/domain"
)

func newTestSimulator(t *testing.T, clk *clock.Fake) (*Simulator, *chat.Store, string) {
	t.Helper()
	store := chat.NewStore(persist.NewMemoryStore())
	room, err := store.CreateChatroom("testing")
	if err != nil {
		t.Fatalf("create chatroom: %v", err)
	}
	sim := NewSimulator(store, Options{
		Clock:           clk,
		MinReplyLatency: 3 * time.Second,
		MaxReplyLatency: 3 * time.Second,
	})
	return sim, store, room.ID
}

func messagesOf(t *testing.T, store *chat.Store, roomID string) []domain.Message {
	t.Helper()
	room, ok := store.GetChatroom(roomID)
	if !ok {
		t.Fatalf("chatroom %s disappeared", roomID)
	}
	return room.Messages
}

func TestSendAppendsUserMessageImmediately(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	sim, store, roomID := newTestSimulator(t, clk)

	if err := sim.Send(roomID, "hello", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs := messagesOf(t, store, roomID)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message before latency, got %d", len(msgs))
	}
	if msgs[0].Sender != domain.SenderUser || msgs[0].Content != "hello" {
		t.Fatalf("unexpected user message: %+v", msgs[0])
	}
	if msgs[0].ID == "" {
		t.Fatalf("message must get an id")
	}
}

func TestReplyArrivesAfterLatency(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	sim, store, roomID := newTestSimulator(t, clk)

	if err := sim.Send(roomID, "hello", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	clk.Advance(3*time.Second - time.Millisecond)
	if got := len(messagesOf(t, store, roomID)); got != 1 {
		t.Fatalf("reply landed before the latency elapsed, %d messages", got)
	}

	clk.Advance(time.Millisecond)
	msgs := messagesOf(t, store, roomID)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after latency, got %d", len(msgs))
	}
	reply := msgs[1]
	if reply.Sender != domain.SenderAssistant {
		t.Fatalf("expected assistant reply, got %+v", reply)
	}
	if want := "Pixel Pilot's response to - \nhello\nhello\nhello"; reply.Content != want {
		t.Fatalf("reply content = %q, want %q", reply.Content, want)
	}
	if !reply.Timestamp.After(msgs[0].Timestamp) {
		t.Fatalf("reply must be timestamped after the prompt")
	}
}

func TestOverlappingSendsSerializeReplies(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	sim, store, roomID := newTestSimulator(t, clk)

	if err := sim.Send(roomID, "first", ""); err != nil {
		t.Fatalf("send first: %v", err)
	}
	clk.Advance(time.Second)
	if err := sim.Send(roomID, "second", ""); err != nil {
		t.Fatalf("send second: %v", err)
	}

	// First reply at t=3s; the second reply waits its own full latency.
	clk.Advance(2 * time.Second)
	msgs := messagesOf(t, store, roomID)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages after first reply, got %d", len(msgs))
	}
	if !strings.Contains(msgs[2].Content, "first") {
		t.Fatalf("replies out of order: %q", msgs[2].Content)
	}
	if !sim.Composing(roomID) {
		t.Fatalf("composing must stay true while a reply is still owed")
	}

	clk.Advance(3 * time.Second)
	msgs = messagesOf(t, store, roomID)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages after second reply, got %d", len(msgs))
	}
	if !strings.Contains(msgs[3].Content, "second") {
		t.Fatalf("second reply content = %q", msgs[3].Content)
	}
	if sim.Composing(roomID) {
		t.Fatalf("composing must clear once the queue drains")
	}
}

func TestComposingPerChatroom(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	sim, store, roomID := newTestSimulator(t, clk)
	other, err := store.CreateChatroom("other")
	if err != nil {
		t.Fatalf("create chatroom: %v", err)
	}

	if err := sim.Send(roomID, "hello", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !sim.Composing(roomID) {
		t.Fatalf("composing must be true for the busy chatroom")
	}
	if sim.Composing(other.ID) {
		t.Fatalf("composing must be scoped to the chatroom")
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	sim, _, roomID := newTestSimulator(t, clk)

	if err := sim.Send(roomID, "   ", ""); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	// Image-only sends are allowed.
	if err := sim.Send(roomID, "", "data:image/png;base64,aGk="); err != nil {
		t.Fatalf("image-only send: %v", err)
	}
}

func TestSendUnknownChatroom(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	sim, _, _ := newTestSimulator(t, clk)

	if err := sim.Send("no-such-room", "hello", ""); !errors.Is(err, chat.ErrChatroomNotFound) {
		t.Fatalf("expected ErrChatroomNotFound, got %v", err)
	}
}

func TestImageRoundTripsInline(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	sim, store, roomID := newTestSimulator(t, clk)

	uri := "data:image/png;base64,aGVsbG8="
	if err := sim.Send(roomID, "look", uri); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs := messagesOf(t, store, roomID)
	if msgs[0].Image != uri {
		t.Fatalf("inline attachment altered: %q", msgs[0].Image)
	}

	clk.Advance(3 * time.Second)
	msgs = messagesOf(t, store, roomID)
	if msgs[1].Image != "" {
		t.Fatalf("assistant replies carry no image, got %q", msgs[1].Image)
	}
}

func TestReplyDroppedWhenChatroomDeleted(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	sim, store, roomID := newTestSimulator(t, clk)

	if err := sim.Send(roomID, "hello", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := store.DeleteChatroom(roomID); err != nil {
		t.Fatalf("delete chatroom: %v", err)
	}
	clk.Advance(3 * time.Second)
	if _, ok := store.GetChatroom(roomID); ok {
		t.Fatalf("chatroom resurrected by reply delivery")
	}
}

func TestCloseCancelsPendingReplies(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	sim, store, roomID := newTestSimulator(t, clk)

	if err := sim.Send(roomID, "hello", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	sim.Close()
	clk.Advance(time.Minute)
	if got := len(messagesOf(t, store, roomID)); got != 1 {
		t.Fatalf("closed simulator still delivered, %d messages", got)
	}
	if sim.Composing(roomID) {
		t.Fatalf("composing must be false after close")
	}
}

func TestParseDataURI(t *testing.T) {
	mediaType, payload, ok := parseDataURI("data:image/png;base64,aGVsbG8=")
	if !ok || mediaType != "image/png" || string(payload) != "hello" {
		t.Fatalf("parse: type=%q payload=%q ok=%v", mediaType, payload, ok)
	}
	if _, _, ok := parseDataURI("https://example.com/pic.png"); ok {
		t.Fatalf("plain URL must not parse as a data URI")
	}
	if _, _, ok := parseDataURI("data:image/png;base64,%%%"); ok {
		t.Fatalf("bad base64 must not parse")
	}
}

func TestInlineAttachmentsPassThrough(t *testing.T) {
	got, err := InlineAttachments{}.Store(context.Background(), "data:image/png;base64,aGk=")
	if err != nil || got != "data:image/png;base64,aGk=" {
		t.Fatalf("inline store: got %q err %v", got, err)
	}
}
