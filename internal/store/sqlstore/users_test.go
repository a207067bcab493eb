package sqlstore

import (
	"strings"
	"testing"

	"github.com/ipsstech/pairtalk/internal/models"
)

func TestCreateAndGetUser(t *testing.T) {
	st := newTestStore(t)
	ids := seedUsers(t, st, "alice")

	byName, err := st.GetUserByUsername("alice")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if byName.ID != ids[0] {
		t.Errorf("Expected id %d, got %d", ids[0], byName.ID)
	}

	byEmail, err := st.GetUserByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail.ID != ids[0] {
		t.Errorf("Expected id %d, got %d", ids[0], byEmail.ID)
	}
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	st := newTestStore(t)
	seedUsers(t, st, "alice")

	err := st.CreateUser(&models.User{Username: "alice", Email: "other@example.com", Password: "hash"})
	if err == nil {
		t.Error("Expected duplicate username to fail")
	}
}

func TestSearchUsersExcludesRequesterAndMasksEmail(t *testing.T) {
	st := newTestStore(t)
	ids := seedUsers(t, st, "alice", "alicia", "bob")

	users, err := st.SearchUsers("ali", ids[0])
	if err != nil {
		t.Fatalf("SearchUsers failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(users))
	}
	if users[0].Username != "alicia" {
		t.Errorf("Expected alicia, got %s", users[0].Username)
	}
	if !strings.Contains(users[0].Email, "*") {
		t.Errorf("Expected masked email, got %s", users[0].Email)
	}
}
