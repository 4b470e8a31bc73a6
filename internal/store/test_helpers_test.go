package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sejongpeer/studybuddy/internal/buddy"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRequest creates a WAITING request created minutes after base.
func createTestRequest(id, owner string, minutes int) buddy.Request {
	at := base.Add(time.Duration(minutes) * time.Minute)
	return buddy.Request{
		ID:         id,
		Owner:      owner,
		Contact:    "010-0000-" + owner,
		Scope:      buddy.ScopeAll,
		College:    "Engineering",
		Department: "CS",
		Status:     buddy.StatusWaiting,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}
