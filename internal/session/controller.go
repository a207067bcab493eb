// Package session is the client-side state controller: one per connected
// device. It mirrors the server's call state one hop away, observing
// transitions only through events, and keeps a local message timeline merged
// from history pages and live deliveries.
package session

import (
	"encoding/json"
	"sync"

	"github.com/ipsstech/pairtalk/internal/models"
)

// API is the request/response surface the controller syncs from. Satisfied by
// any HTTP client wrapper over the server's history endpoints.
type API interface {
	Conversations() ([]models.Conversation, error)
	History(peer int64, page, pageSize int) ([]models.Message, bool, error)
}

// CallState mirrors the server-side session lifecycle as seen from this
// device. The controller never owns the authoritative state.
type CallState int

const (
	CallIdle CallState = iota
	CallDialing
	CallRinging
	CallActive
)

const pageSize = 20

type Controller struct {
	self int64
	api  API

	mu            sync.Mutex
	conversations []models.Conversation
	peer          int64
	timeline      []models.Message
	seen          map[int64]struct{}
	hasMore       bool
	nextPage      int

	callState CallState
	incoming  *models.IncomingCallPayload
}

func NewController(self int64, api API) *Controller {
	return &Controller{
		self: self,
		api:  api,
		seen: make(map[int64]struct{}),
	}
}

// Resync discards all buffered state and reloads from the durable side. Must
// run after every reconnect: the realtime channel guarantees nothing across a
// disconnect gap, so continuity of the local buffer cannot be assumed.
func (c *Controller) Resync() error {
	conversations, err := c.api.Conversations()
	if err != nil {
		return err
	}

	c.mu.Lock()
	peer := c.peer
	c.conversations = conversations
	c.timeline = nil
	c.seen = make(map[int64]struct{})
	c.hasMore = false
	c.nextPage = 0
	c.mu.Unlock()

	if peer != 0 {
		return c.Select(peer)
	}
	return nil
}

// Select switches the active conversation and loads its newest page.
func (c *Controller) Select(peer int64) error {
	messages, hasMore, err := c.api.History(peer, 0, pageSize)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.peer = peer
	c.timeline = nil
	c.seen = make(map[int64]struct{})
	for _, m := range messages {
		c.append(m)
	}
	c.hasMore = hasMore
	c.nextPage = 1
	return nil
}

// LoadOlder prepends the next older page of the selected conversation.
func (c *Controller) LoadOlder() error {
	c.mu.Lock()
	peer, page := c.peer, c.nextPage
	c.mu.Unlock()
	if peer == 0 {
		return nil
	}

	messages, hasMore, err := c.api.History(peer, page, pageSize)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	older := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if _, dup := c.seen[m.ID]; dup {
			continue
		}
		c.seen[m.ID] = struct{}{}
		older = append(older, m)
	}
	c.timeline = append(older, c.timeline...)
	c.hasMore = hasMore
	c.nextPage = page + 1
	return nil
}

// HandleEvent feeds one realtime event into the controller.
func (c *Controller) HandleEvent(ev models.Event) {
	switch ev.Event {
	case models.EventReceiveMessage:
		var msg models.Message
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			return
		}
		c.mu.Lock()
		if c.peer != 0 && (msg.SenderID == c.peer || msg.RecipientID == c.peer) {
			c.append(msg)
		}
		c.touchConversation(msg)
		c.mu.Unlock()

	case models.EventIncomingCall:
		var payload models.IncomingCallPayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return
		}
		c.mu.Lock()
		c.callState = CallRinging
		c.incoming = &payload
		c.mu.Unlock()

	case models.EventCallAccepted:
		c.mu.Lock()
		if c.callState == CallDialing {
			c.callState = CallActive
		}
		c.mu.Unlock()

	case models.EventCallRejected, models.EventCallEnded, models.EventCallUnavailable:
		c.mu.Lock()
		c.callState = CallIdle
		c.incoming = nil
		c.mu.Unlock()
	}
}

// MarkDialing records that this device emitted callUser. The transition to
// Active only ever happens via a callAccepted event.
func (c *Controller) MarkDialing() {
	c.mu.Lock()
	c.callState = CallDialing
	c.mu.Unlock()
}

// MarkAnswered records that this device accepted the ringing call.
func (c *Controller) MarkAnswered() {
	c.mu.Lock()
	if c.callState == CallRinging {
		c.callState = CallActive
		c.incoming = nil
	}
	c.mu.Unlock()
}

func (c *Controller) CallState() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callState
}

func (c *Controller) IncomingCall() *models.IncomingCallPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.incoming
}

// Timeline returns a copy of the selected conversation's message buffer,
// oldest first.
func (c *Controller) Timeline() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.timeline))
	copy(out, c.timeline)
	return out
}

func (c *Controller) Conversations() []models.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Conversation, len(c.conversations))
	copy(out, c.conversations)
	return out
}

func (c *Controller) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// append adds a message to the end of the timeline, de-duplicating on the
// store-assigned id. Live deliveries and history pages can overlap; the id is
// the merge key.
func (c *Controller) append(msg models.Message) {
	if _, dup := c.seen[msg.ID]; dup {
		return
	}
	c.seen[msg.ID] = struct{}{}
	c.timeline = append(c.timeline, msg)
}

// touchConversation moves the message's conversation to the front and updates
// its last-message pointer, mirroring what the server persisted.
func (c *Controller) touchConversation(msg models.Message) {
	peer := msg.SenderID
	if peer == c.self {
		peer = msg.RecipientID
	}
	for i := range c.conversations {
		if c.conversations[i].Peer(c.self) == peer {
			conv := c.conversations[i]
			m := msg
			conv.LastMessage = &m
			conv.UpdatedAt = msg.CreatedAt
			c.conversations = append(c.conversations[:i], c.conversations[i+1:]...)
			c.conversations = append([]models.Conversation{conv}, c.conversations...)
			return
		}
	}
	m := msg
	c.conversations = append([]models.Conversation{{
		ParticipantA: c.self,
		ParticipantB: peer,
		LastMessage:  &m,
		UpdatedAt:    msg.CreatedAt,
	}}, c.conversations...)
}
