package sqlstore

import (
	"testing"

	"github.com/ipsstech/pairtalk/internal/models"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	st, err := New("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return st
}

func seedUsers(t *testing.T, st *SQLStore, usernames ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(usernames))
	for _, name := range usernames {
		u := &models.User{Username: name, Email: name + "@example.com", Password: "hash"}
		if err := st.CreateUser(u); err != nil {
			t.Fatalf("Failed to seed user %s: %v", name, err)
		}
		ids = append(ids, u.ID)
	}
	return ids
}
