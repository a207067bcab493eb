package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ipsstech/pairtalk/internal/history"
	"github.com/ipsstech/pairtalk/internal/middleware"
	"github.com/ipsstech/pairtalk/internal/models"
	"github.com/ipsstech/pairtalk/internal/store"
)

type UserHandler struct {
	Store   store.Store
	History *history.Service
}

func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		json.NewEncoder(w).Encode([]models.User{})
		return
	}

	users, err := h.Store.SearchUsers(query, middleware.UserID(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	json.NewEncoder(w).Encode(users)
}

// Conversations lists every conversation of the authenticated identity,
// newest activity first, each with its most recent message.
func (h *UserHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.History.ConversationsFor(middleware.UserID(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}
	json.NewEncoder(w).Encode(conversations)
}

// Lookup returns a peer's public details plus whether a conversation with the
// requester already exists.
func (h *UserHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	user, err := h.Store.GetUserByID(id)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	resp := map[string]any{
		"id":              user.ID,
		"username":        user.Username,
		"hasConversation": false,
	}
	conv, err := h.Store.ConversationBetween(middleware.UserID(r), id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if conv != nil {
		resp["hasConversation"] = true
		resp["conversationId"] = conv.ID
	}
	json.NewEncoder(w).Encode(resp)
}
