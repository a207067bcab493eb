package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/ipsstech/pairtalk/internal/models"
	"github.com/ipsstech/pairtalk/internal/store/sqlstore"
)

func TestRegister(t *testing.T) {
	st, err := sqlstore.New("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	handler := &AuthHandler{Store: st}

	body, _ := json.Marshal(RegisterRequest{
		Username: "testuser",
		Email:    "testuser@example.com",
		Password: "password123",
	})
	req := httptest.NewRequest("POST", "/api/auth/register", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	handler.Register(rr, req)

	if rr.Code != http.StatusCreated {
		t.Errorf("Expected 201, got %d", rr.Code)
	}

	user, err := st.GetUserByUsername("testuser")
	if err != nil {
		t.Fatalf("User was not created: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("password123")); err != nil {
		t.Error("Stored password is not the bcrypt hash of the submitted one")
	}
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	st, _ := sqlstore.New("sqlite3", ":memory:")
	st.CreateUser(&models.User{Username: "taken", Email: "taken@example.com", Password: "x"})
	handler := &AuthHandler{Store: st}

	body, _ := json.Marshal(RegisterRequest{Username: "taken", Email: "other@example.com", Password: "pw"})
	req := httptest.NewRequest("POST", "/api/auth/register", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	handler.Register(rr, req)

	if rr.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", rr.Code)
	}
}

func TestLoginIssuesToken(t *testing.T) {
	st, _ := sqlstore.New("sqlite3", ":memory:")
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	st.CreateUser(&models.User{Username: "alice", Email: "alice@example.com", Password: string(hash)})

	handler := &AuthHandler{Store: st}

	body, _ := json.Marshal(Credentials{Email: "alice@example.com", Password: "password123"})
	req := httptest.NewRequest("POST", "/api/auth/login", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	handler.Login(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	var resp struct {
		Token    string `json:"token"`
		UserID   int64  `json:"userId"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token == "" {
		t.Error("Expected a bearer token in the response")
	}
	if resp.Username != "alice" {
		t.Errorf("Expected username alice, got %s", resp.Username)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	st, _ := sqlstore.New("sqlite3", ":memory:")
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	st.CreateUser(&models.User{Username: "alice", Email: "alice@example.com", Password: string(hash)})

	handler := &AuthHandler{Store: st}

	body, _ := json.Marshal(Credentials{Email: "alice@example.com", Password: "wrong"})
	req := httptest.NewRequest("POST", "/api/auth/login", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	handler.Login(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rr.Code)
	}
}
