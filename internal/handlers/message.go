package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ipsstech/pairtalk/internal/dispatch"
	"github.com/ipsstech/pairtalk/internal/history"
	"github.com/ipsstech/pairtalk/internal/middleware"
	"github.com/ipsstech/pairtalk/internal/models"
)

type MessageHandler struct {
	Dispatcher *dispatch.Dispatcher
	History    *history.Service
}

type CreateMessageRequest struct {
	RecipientID int64  `json:"recipientId"`
	Content     string `json:"content"`
	Type        string `json:"type"`
	Encrypted   bool   `json:"encrypted"`
}

// Create persists a message and triggers live delivery. The sender is always
// the authenticated identity, never client-supplied.
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	sender := middleware.UserID(r)

	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.RecipientID == 0 || req.Content == "" {
		http.Error(w, "recipient and content are required", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = models.TypeText
	}
	if req.Type != models.TypeText && req.Type != models.TypeCallRecord {
		http.Error(w, "unknown message type", http.StatusBadRequest)
		return
	}

	saved, err := h.Dispatcher.Send(&models.Message{
		SenderID:    sender,
		RecipientID: req.RecipientID,
		Content:     req.Content,
		Type:        req.Type,
		Encrypted:   req.Encrypted,
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrPersistence) {
			// Retryable by the client; the server does not retry on its own.
			http.Error(w, "message not saved, retry", http.StatusInternalServerError)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(saved)
}

// GetHistory returns one page of messages with the given peer, oldest first,
// plus a hasMore flag. Page 0 is the most recent pageSize messages.
func (h *MessageHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	requester := middleware.UserID(r)

	peer, err := strconv.ParseInt(mux.Vars(r)["peer"], 10, 64)
	if err != nil {
		http.Error(w, "invalid peer id", http.StatusBadRequest)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = history.DefaultPageSize
	}

	result, err := h.History.Between(requester, peer, page, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(result)
}
