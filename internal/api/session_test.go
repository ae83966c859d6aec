package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/koopa0/docent/internal/session"
)

func TestSessionHistoryUnknownSessionIsEmpty(t *testing.T) {
	srv, _, _, _, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/ghost/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got sessionSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.SessionID != "ghost" || len(got.Messages) != 0 {
		t.Errorf("snapshot = %+v, want empty message list", got)
	}
}

func TestSessionHistoryReturnsMessagesWithSources(t *testing.T) {
	srv, _, _, _, store := testServer(t)
	now := time.Now()
	store.AppendExchange("abc-123",
		session.Message{Role: session.RoleUser, Content: "What is the threshold?", Time: now},
		session.Message{Role: session.RoleModel, Content: "12,570 pounds [1].", Time: now,
			Sources: []session.Source{{Name: "tax.txt", Page: 2, Excerpt: "12,570", Similarity: 0.9}}},
	)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc-123/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got sessionSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(got.Messages))
	}
	if got.Messages[0].Role != session.RoleUser || got.Messages[1].Role != session.RoleModel {
		t.Errorf("roles = %q, %q", got.Messages[0].Role, got.Messages[1].Role)
	}
	if len(got.Messages[1].Sources) != 1 || got.Messages[1].Sources[0].Document != "tax.txt" {
		t.Errorf("model message sources = %+v", got.Messages[1].Sources)
	}
	if got.CreatedAt == nil || got.LastActive == nil {
		t.Error("timestamps missing from known session snapshot")
	}
}

func TestSessionClear(t *testing.T) {
	srv, _, _, _, store := testServer(t)
	store.Append("abc-123", session.Message{Role: session.RoleUser, Content: "hi"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/abc-123", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := store.History("abc-123"); len(got) != 0 {
		t.Errorf("history after clear = %d messages", len(got))
	}

	// Clearing again is still a success.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/abc-123", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("second clear status = %d, want 204", rec.Code)
	}
}
