// Package chat owns the chatroom collection and message histories. The whole
// collection persists as one blob on every mutation and rehydrates wholesale
// at startup; chat state is independent of auth state and survives logout.
package chat

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"pixelpilot/internal/persist"
	"pixelpilot/internal/util"
	"pixelpilot/pkg/domain"
)

var (
	// ErrChatroomNotFound is returned for operations on an unknown chatroom id.
	ErrChatroomNotFound = errors.New("chatroom not found")
	// ErrTitleRequired is returned when a chatroom title trims to empty.
	ErrTitleRequired = errors.New("chatroom title is required")
)

type stateBlob struct {
	Chatrooms        []domain.Chatroom `json:"chatrooms"`
	ActiveChatroomID string            `json:"activeChatroomId"`
}

// Store is the chat session store. All mutations are atomic relative to the
// store lock and persist before the call returns.
type Store struct {
	mu      sync.RWMutex
	persist persist.Store

	rooms  map[string]*domain.Chatroom
	order  []string
	active string
}

// NewStore initializes an empty chat store writing through to p.
func NewStore(p persist.Store) *Store {
	return &Store{
		persist: p,
		rooms:   make(map[string]*domain.Chatroom),
	}
}

// Rehydrate restores the chatroom collection from the chat blob. A missing
// blob leaves the store empty.
func (s *Store) Rehydrate() error {
	var blob stateBlob
	found, err := s.persist.Load(persist.ChatKey, &blob)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = make(map[string]*domain.Chatroom, len(blob.Chatrooms))
	s.order = s.order[:0]
	for i := range blob.Chatrooms {
		room := blob.Chatrooms[i]
		if _, dup := s.rooms[room.ID]; dup {
			continue
		}
		s.rooms[room.ID] = &room
		s.order = append(s.order, room.ID)
	}
	if _, ok := s.rooms[blob.ActiveChatroomID]; ok {
		s.active = blob.ActiveChatroomID
	} else {
		s.active = ""
	}
	return nil
}

// CreateChatroom allocates a chatroom with a fresh id, appends it, and makes
// it the active selection. The new chatroom is visible to reads immediately.
func (s *Store) CreateChatroom(title string) (domain.Chatroom, error) {
	if strings.TrimSpace(title) == "" {
		return domain.Chatroom{}, ErrTitleRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room := domain.Chatroom{
		ID:       util.NewID(),
		Title:    title,
		Messages: []domain.Message{},
	}
	s.rooms[room.ID] = &room
	s.order = append(s.order, room.ID)
	s.active = room.ID
	s.persistLocked()
	return room, nil
}

// DeleteChatroom removes the chatroom. Deleting the active chatroom clears
// the selection; deleting any other leaves it untouched.
func (s *Store) DeleteChatroom(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return ErrChatroomNotFound
	}
	delete(s.rooms, id)
	filtered := s.order[:0]
	for _, item := range s.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	s.order = filtered
	if s.active == id {
		s.active = ""
	}
	s.persistLocked()
	return nil
}

// RenameChatroom replaces the title.
func (s *Store) RenameChatroom(id, newTitle string) error {
	if strings.TrimSpace(newTitle) == "" {
		return ErrTitleRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return ErrChatroomNotFound
	}
	room.Title = newTitle
	s.persistLocked()
	return nil
}

// SetActiveChatroomID changes the selection. An empty id clears it; a
// non-empty id must reference an existing chatroom.
func (s *Store) SetActiveChatroomID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		if _, ok := s.rooms[id]; !ok {
			return ErrChatroomNotFound
		}
	}
	s.active = id
	s.persistLocked()
	return nil
}

// ActiveChatroomID returns the current selection, empty when none.
func (s *Store) ActiveChatroomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// AddMessage appends to the target chatroom's history. Appending to an
// unknown chatroom is a no-op.
func (s *Store) AddMessage(chatroomID string, msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[chatroomID]
	if !ok {
		return
	}
	room.Messages = append(room.Messages, msg)
	s.persistLocked()
}

// GetChatroom returns a copy of the chatroom.
func (s *Store) GetChatroom(id string) (domain.Chatroom, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.Chatroom{}, false
	}
	return copyRoom(room), true
}

// Chatrooms returns copies of all chatrooms in insertion order.
func (s *Store) Chatrooms() []domain.Chatroom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Chatroom, 0, len(s.order))
	for _, id := range s.order {
		if room, ok := s.rooms[id]; ok {
			out = append(out, copyRoom(room))
		}
	}
	return out
}

// persistLocked writes the whole collection to the chat blob. Persistence is
// a fire-and-forget sink: failures are logged, not surfaced, so a full disk
// never blocks the conversation.
func (s *Store) persistLocked() {
	blob := stateBlob{
		Chatrooms:        make([]domain.Chatroom, 0, len(s.order)),
		ActiveChatroomID: s.active,
	}
	for _, id := range s.order {
		if room, ok := s.rooms[id]; ok {
			blob.Chatrooms = append(blob.Chatrooms, copyRoom(room))
		}
	}
	if err := s.persist.Save(persist.ChatKey, blob); err != nil {
		slog.Error("persist chat state", "err", err)
	}
}

func copyRoom(room *domain.Chatroom) domain.Chatroom {
	out := *room
	out.Messages = make([]domain.Message, len(room.Messages))
	copy(out.Messages, room.Messages)
	return out
}
