package models

import (
	"encoding/json"
	"time"
)

// Message type tags. Call records are produced server-side when an active
// call ends; their content is never encrypted.
const (
	TypeText       = "text"
	TypeCallRecord = "call-record"
)

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"-"`
}

type Message struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"senderId"`
	RecipientID int64     `json:"recipientId"`
	Content     string    `json:"content"`
	Type        string    `json:"type"`
	Encrypted   bool      `json:"encrypted"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Conversation is the unordered participant pair plus a pointer to the most
// recent message between them. Created lazily on first message, never deleted.
type Conversation struct {
	ID           int64     `json:"id"`
	ParticipantA int64     `json:"participantA"`
	ParticipantB int64     `json:"participantB"`
	LastMessage  *Message  `json:"lastMessage,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Peer returns the other participant of the conversation.
func (c *Conversation) Peer(self int64) int64 {
	if c.ParticipantA == self {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// Event is the envelope every realtime frame travels in, both directions.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Realtime event names. These are the wire contract.
const (
	EventJoin            = "join"
	EventSendMessage     = "sendMessage"
	EventReceiveMessage  = "receiveMessage"
	EventCallUser        = "callUser"
	EventIncomingCall    = "incomingCall"
	EventAnswerCall      = "answerCall"
	EventCallAccepted    = "callAccepted"
	EventRejectCall      = "rejectCall"
	EventCallRejected    = "callRejected"
	EventEndCall         = "endCall"
	EventCallEnded       = "callEnded"
	EventCallUnavailable = "callUnavailable"
	EventError           = "error"
)

// CallUserPayload is what a caller sends to start a call. The offer blob is
// opaque to the server; it is routed, never parsed.
type CallUserPayload struct {
	CalleeIdentity    string          `json:"calleeIdentity"`
	Offer             json.RawMessage `json:"offer"`
	CallerIdentity    string          `json:"callerIdentity"`
	CallerDisplayName string          `json:"callerDisplayName"`
}

// IncomingCallPayload is delivered to every live connection of the callee.
type IncomingCallPayload struct {
	Offer             json.RawMessage `json:"offer"`
	CallerIdentity    string          `json:"callerIdentity"`
	CallerDisplayName string          `json:"callerDisplayName"`
}

type AnswerCallPayload struct {
	CalleeTarget string          `json:"calleeTarget"`
	Answer       json.RawMessage `json:"answer"`
}

// CallUnavailablePayload tells a caller why an attempt resolved without
// ringing: "busy" (peer mid-call) or "offline" (zero live connections).
type CallUnavailablePayload struct {
	Reason string `json:"reason"`
}
