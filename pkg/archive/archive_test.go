package archive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientDisabledWithoutConfig(t *testing.T) {
	if NewClient(Config{}) != nil {
		t.Error("expected nil client without url and key")
	}
	if NewClient(Config{URL: "https://x"}) != nil {
		t.Error("expected nil client without api key")
	}
}

func TestNilClientInsertIsNoop(t *testing.T) {
	var c *Client
	if c.Insert(context.Background(), Record{Content: "x"}) {
		t.Error("nil client must report failure, not panic")
	}
}

func TestInsertPostsRecord(t *testing.T) {
	var got Record
	var gotPath, gotKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, APIKey: "secret", Table: "messages"})
	ok := c.Insert(context.Background(), Record{
		ConversationID: "conv-1",
		AuthorID:       "user-1",
		Content:        "hello",
	})

	if !ok {
		t.Fatal("expected insert to succeed")
	}
	if gotPath != "/rest/v1/messages" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("unexpected apikey header %q", gotKey)
	}
	if got.ConversationID != "conv-1" || got.Content != "hello" || got.IsBot {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.ID == "" || got.CreatedAt.IsZero() {
		t.Error("insert must fill id and timestamp")
	}
}

func TestInsertReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, APIKey: "bad"})
	if c.Insert(context.Background(), Record{Content: "x"}) {
		t.Error("expected rejected insert to report failure")
	}
}
