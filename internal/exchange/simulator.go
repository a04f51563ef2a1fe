// Package exchange simulates the assistant side of a conversation. Every user
// message is appended immediately; the reply arrives after a randomized
// latency and echoes the prompt. Replies within one chatroom are strictly
// serialized so histories never interleave out of order.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"pixelpilot/internal/chat"
	"pixelpilot/internal/clock"
	"pixelpilot/internal/util"
	"pixelpilot/pkg/domain"
)

// ErrEmptyMessage is returned when a send carries neither text nor an image.
var ErrEmptyMessage = errors.New("message needs text or an image")

const (
	defaultMinReplyLatency = 3 * time.Second
	defaultMaxReplyLatency = 4 * time.Second
	attachmentTimeout      = 10 * time.Second
)

// Options wire the simulator's dependencies. Zero values take defaults: real
// clock, inline attachments, 3s to 4s reply latency.
type Options struct {
	Clock           clock.Clock
	Attachments     Attachments
	MinReplyLatency time.Duration
	MaxReplyLatency time.Duration
}

// Simulator produces assistant replies for a chat store. One reply timer runs
// per chatroom; further sends into the same chatroom queue behind it.
type Simulator struct {
	store       *chat.Store
	clk         clock.Clock
	attachments Attachments
	minLatency  time.Duration
	maxLatency  time.Duration

	mu     sync.Mutex
	rng    *rand.Rand
	queues map[string][]string
	timers map[string]clock.Timer
	closed bool
}

// NewSimulator constructs a simulator writing replies into store.
func NewSimulator(store *chat.Store, opts Options) *Simulator {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	attachments := opts.Attachments
	if attachments == nil {
		attachments = InlineAttachments{}
	}
	minLatency := opts.MinReplyLatency
	if minLatency <= 0 {
		minLatency = defaultMinReplyLatency
	}
	maxLatency := opts.MaxReplyLatency
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	return &Simulator{
		store:       store,
		clk:         clk,
		attachments: attachments,
		minLatency:  minLatency,
		maxLatency:  maxLatency,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		queues:      make(map[string][]string),
		timers:      make(map[string]clock.Timer),
	}
}

// Send appends the user message to the chatroom and schedules the simulated
// reply. A message must carry text, an image, or both.
func (s *Simulator) Send(chatroomID, content, image string) error {
	if strings.TrimSpace(content) == "" && image == "" {
		return ErrEmptyMessage
	}
	if _, ok := s.store.GetChatroom(chatroomID); !ok {
		return chat.ErrChatroomNotFound
	}
	if image != "" {
		ctx, cancel := context.WithTimeout(context.Background(), attachmentTimeout)
		stored, err := s.attachments.Store(ctx, image)
		cancel()
		if err != nil {
			return fmt.Errorf("store attachment: %w", err)
		}
		image = stored
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.store.AddMessage(chatroomID, domain.Message{
		ID:        util.NewID(),
		Content:   content,
		Sender:    domain.SenderUser,
		Timestamp: s.clk.Now(),
		Image:     image,
	})
	s.queues[chatroomID] = append(s.queues[chatroomID], content)
	if len(s.queues[chatroomID]) == 1 {
		s.scheduleReplyLocked(chatroomID)
	}
	return nil
}

// Composing reports whether a reply is still owed to the chatroom. It stays
// true from the first queued send until the last reply lands.
func (s *Simulator) Composing(chatroomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[chatroomID]) > 0
}

// Close cancels all pending reply timers. Replies not yet delivered are
// dropped.
func (s *Simulator) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.queues = make(map[string][]string)
}

// scheduleReplyLocked arms the reply timer for the head of the chatroom's
// queue with a fresh randomized latency.
func (s *Simulator) scheduleReplyLocked(chatroomID string) {
	latency := s.minLatency
	if spread := s.maxLatency - s.minLatency; spread > 0 {
		latency += time.Duration(s.rng.Int63n(int64(spread) + 1))
	}
	s.timers[chatroomID] = s.clk.AfterFunc(latency, func() {
		s.deliverReply(chatroomID)
	})
}

func (s *Simulator) deliverReply(chatroomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	delete(s.timers, chatroomID)
	queue := s.queues[chatroomID]
	if len(queue) == 0 {
		return
	}
	prompt := queue[0]
	s.queues[chatroomID] = queue[1:]

	// AddMessage is a no-op when the chatroom was deleted mid-flight.
	s.store.AddMessage(chatroomID, domain.Message{
		ID:        util.NewID(),
		Content:   replyTo(prompt),
		Sender:    domain.SenderAssistant,
		Timestamp: s.clk.Now(),
	})
	if len(s.queues[chatroomID]) > 0 {
		s.scheduleReplyLocked(chatroomID)
	} else {
		delete(s.queues, chatroomID)
	}
}

func replyTo(prompt string) string {
	return fmt.Sprintf("Pixel Pilot's response to - \n%s\n%s\n%s", prompt, prompt, prompt)
}
