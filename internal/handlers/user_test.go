package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/mux"

	"github.com/ipsstech/pairtalk/internal/dispatch"
	"github.com/ipsstech/pairtalk/internal/history"
	"github.com/ipsstech/pairtalk/internal/middleware"
	"github.com/ipsstech/pairtalk/internal/models"
	"github.com/ipsstech/pairtalk/internal/store/sqlstore"
)

func userFixture(t *testing.T) (*UserHandler, *sqlstore.SQLStore, int64, int64) {
	t.Helper()
	st, err := sqlstore.New("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	alice := &models.User{Username: "alice", Email: "alice@example.com", Password: "x"}
	bob := &models.User{Username: "bob", Email: "bob@example.com", Password: "x"}
	st.CreateUser(alice)
	st.CreateUser(bob)

	return &UserHandler{Store: st, History: history.New(st)}, st, alice.ID, bob.ID
}

func TestConversationsEndpoint(t *testing.T) {
	handler, st, alice, bob := userFixture(t)
	dispatch.New(st, nullDeliverer{}).Send(&models.Message{
		SenderID: alice, RecipientID: bob, Content: "hi", Type: models.TypeText,
	})

	req := authed(httptest.NewRequest("GET", "/api/users/conversations", nil), alice)
	rr := httptest.NewRecorder()
	middleware.AuthMiddleware(http.HandlerFunc(handler.Conversations)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	var conversations []models.Conversation
	if err := json.NewDecoder(rr.Body).Decode(&conversations); err != nil {
		t.Fatal(err)
	}
	if len(conversations) != 1 {
		t.Fatalf("Expected 1 conversation, got %d", len(conversations))
	}
	if conversations[0].LastMessage == nil || conversations[0].LastMessage.Content != "hi" {
		t.Error("Expected the conversation annotated with its last message")
	}
}

func TestSearchEndpointExcludesSelf(t *testing.T) {
	handler, _, alice, _ := userFixture(t)

	req := authed(httptest.NewRequest("GET", "/api/users/search?query=ali", nil), alice)
	rr := httptest.NewRecorder()
	middleware.AuthMiddleware(http.HandlerFunc(handler.Search)).ServeHTTP(rr, req)

	var users []models.User
	if err := json.NewDecoder(rr.Body).Decode(&users); err != nil {
		t.Fatal(err)
	}
	if len(users) != 0 {
		t.Error("Search must not return the requester themselves")
	}
}

func TestLookupReportsConversationPresence(t *testing.T) {
	handler, st, alice, bob := userFixture(t)

	lookup := func() map[string]any {
		req := authed(httptest.NewRequest("GET", "/api/users/"+strconv.FormatInt(bob, 10), nil), alice)
		req = mux.SetURLVars(req, map[string]string{"id": strconv.FormatInt(bob, 10)})
		rr := httptest.NewRecorder()
		middleware.AuthMiddleware(http.HandlerFunc(handler.Lookup)).ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
		var resp map[string]any
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		return resp
	}

	if resp := lookup(); resp["hasConversation"] != false {
		t.Error("Expected hasConversation=false before any message")
	}

	dispatch.New(st, nullDeliverer{}).Send(&models.Message{
		SenderID: alice, RecipientID: bob, Content: "hi", Type: models.TypeText,
	})

	if resp := lookup(); resp["hasConversation"] != true {
		t.Error("Expected hasConversation=true after the first message")
	}
}
