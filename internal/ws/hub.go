package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ipsstech/pairtalk/internal/auth"
	"github.com/ipsstech/pairtalk/internal/call"
	"github.com/ipsstech/pairtalk/internal/dispatch"
	"github.com/ipsstech/pairtalk/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub routes realtime events between connections, the call session manager
// and the message dispatcher. It owns no call or message state itself.
type Hub struct {
	registry   *Registry
	calls      *call.Manager
	dispatcher *dispatch.Dispatcher
}

func NewHub(registry *Registry, calls *call.Manager, dispatcher *dispatch.Dispatcher) *Hub {
	return &Hub{
		registry:   registry,
		calls:      calls,
		dispatcher: dispatcher,
	}
}

// ServeWS authenticates the bearer token carried in the query string, then
// upgrades the connection and starts its pumps. Unauthorized connections are
// rejected before any event is processed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(h, conn, userID)
	go client.writePump()
	go client.readPump()
}

// disconnect runs the mandatory cleanup path: unregister, and if that was the
// identity's last live connection, tear down any call it was part of. Safe to
// reach twice for the same connection; the second pass finds nothing to do.
func (h *Hub) disconnect(c *Client) {
	h.registry.Unregister(c)
	c.close()

	identity := c.Identity()
	if identity == 0 {
		return
	}
	if len(h.registry.ConnectionsFor(identity)) > 0 {
		return
	}
	if res := h.calls.DropConnection(identity); res != nil && res.WasActive {
		h.dispatcher.RecordCall(res.Caller, res.Callee, res.Duration)
	}
}

func (h *Hub) handleEvent(c *Client, ev models.Event) {
	switch ev.Event {
	case models.EventJoin:
		h.handleJoin(c, ev.Data)
	case models.EventSendMessage:
		h.handleSendMessage(c, ev.Data)
	case models.EventCallUser:
		h.handleCallUser(c, ev.Data)
	case models.EventAnswerCall:
		h.handleAnswerCall(c, ev.Data)
	case models.EventRejectCall:
		h.handleRejectCall(c)
	case models.EventEndCall:
		h.handleEndCall(c)
	default:
		c.sendEvent(models.EventError, map[string]string{"message": "unknown event: " + ev.Event})
	}
}

// handleJoin registers the connection under its identity. The identity must
// match the one the bearer token was minted for.
func (h *Hub) handleJoin(c *Client, data json.RawMessage) {
	identity, err := parseIdentity(data)
	if err != nil || identity != c.authID {
		c.sendEvent(models.EventError, map[string]string{"message": "join identity mismatch"})
		return
	}
	h.registry.Register(identity, c)
	log.Debug().Int64("identity", identity).Str("conn", c.ID.String()).Msg("connection joined")
}

func (h *Hub) handleSendMessage(c *Client, data json.RawMessage) {
	sender := c.Identity()
	if sender == 0 {
		c.sendEvent(models.EventError, map[string]string{"message": "join before sending"})
		return
	}

	var req struct {
		RecipientID int64  `json:"recipientId"`
		Content     string `json:"content"`
		Type        string `json:"type"`
		Encrypted   bool   `json:"encrypted"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.RecipientID == 0 {
		c.sendEvent(models.EventError, map[string]string{"message": "malformed message"})
		return
	}
	if req.Type == "" {
		req.Type = models.TypeText
	}

	_, err := h.dispatcher.Send(&models.Message{
		SenderID:    sender,
		RecipientID: req.RecipientID,
		Content:     req.Content,
		Type:        req.Type,
		Encrypted:   req.Encrypted,
	})
	if err != nil {
		// Retryable: the message was never persisted, so it must not appear
		// anywhere until the client retries successfully.
		log.Error().Err(err).Int64("sender", sender).Msg("message send failed")
		c.sendEvent(models.EventError, map[string]string{"message": "message not sent, retry"})
	}
}

func (h *Hub) handleCallUser(c *Client, data json.RawMessage) {
	caller := c.Identity()
	if caller == 0 {
		c.sendEvent(models.EventError, map[string]string{"message": "join before calling"})
		return
	}

	var req models.CallUserPayload
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendEvent(models.EventError, map[string]string{"message": "malformed call request"})
		return
	}
	callee, err := strconv.ParseInt(req.CalleeIdentity, 10, 64)
	if err != nil {
		c.sendEvent(models.EventError, map[string]string{"message": "malformed callee identity"})
		return
	}

	_, err = h.calls.Initiate(caller, callee, req.Offer, req.CallerDisplayName)
	switch {
	case errors.Is(err, call.ErrAlreadyInCall):
		c.sendEvent(models.EventCallUnavailable, models.CallUnavailablePayload{Reason: "busy"})
	case errors.Is(err, call.ErrPeerOffline):
		c.sendEvent(models.EventCallUnavailable, models.CallUnavailablePayload{Reason: "offline"})
	case err != nil:
		log.Error().Err(err).Int64("caller", caller).Int64("callee", callee).Msg("call initiate failed")
		c.sendEvent(models.EventError, map[string]string{"message": "call failed"})
	}
}

func (h *Hub) handleAnswerCall(c *Client, data json.RawMessage) {
	callee := c.Identity()
	if callee == 0 {
		return
	}
	var req models.AnswerCallPayload
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendEvent(models.EventError, map[string]string{"message": "malformed answer"})
		return
	}
	if _, err := h.calls.Accept(callee, req.Answer); errors.Is(err, call.ErrNoSuchSession) {
		// Caller canceled first. Swallowed: the race is expected and the
		// answering side's UI resets on the callEnded it already received.
		log.Debug().Int64("callee", callee).Msg("answer raced with cancel")
	}
}

func (h *Hub) handleRejectCall(c *Client) {
	callee := c.Identity()
	if callee == 0 {
		return
	}
	if err := h.calls.Reject(callee); errors.Is(err, call.ErrNoSuchSession) {
		log.Debug().Int64("callee", callee).Msg("reject raced with cancel")
	}
}

func (h *Hub) handleEndCall(c *Client) {
	identity := c.Identity()
	if identity == 0 {
		return
	}
	res, _ := h.calls.End(identity)
	if res != nil && res.WasActive {
		h.dispatcher.RecordCall(res.Caller, res.Callee, res.Duration)
	}
}

// parseIdentity accepts the identity either as a JSON string or a number,
// matching what different client builds emit for join.
func parseIdentity(data json.RawMessage) (int64, error) {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		return strconv.ParseInt(asString, 10, 64)
	}
	var asNumber int64
	if err := json.Unmarshal(data, &asNumber); err == nil {
		return asNumber, nil
	}
	return 0, errors.New("unparseable identity")
}
