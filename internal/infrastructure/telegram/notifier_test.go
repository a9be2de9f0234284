package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPublishDigest(t *testing.T) {
	t.Parallel()

	received := make(chan sendMessageRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			http.NotFound(w, r)
			return
		}
		var msg sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		received <- msg
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewNotifier("TOKEN", "42")
	n.apiBase = srv.URL
	n.client = srv.Client()

	if err := n.PublishDigest(context.Background(), "Coin aggregation completed"); err != nil {
		t.Fatalf("PublishDigest returned error: %v", err)
	}

	msg := <-received
	if msg.ChatID != "42" || msg.Text != "Coin aggregation completed" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestPublishDigestReportsAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	n := NewNotifier("TOKEN", "missing")
	n.apiBase = srv.URL

	err := n.PublishDigest(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected API error description, got %v", err)
	}
}

func TestPublishDigestMisconfigured(t *testing.T) {
	t.Parallel()

	if err := NewNotifier("", "").PublishDigest(context.Background(), "x"); err == nil {
		t.Fatalf("expected misconfiguration error")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", maxMessageLen+10)
	out := truncate(long, maxMessageLen)
	if utf8.RuneCountInString(out) != maxMessageLen {
		t.Fatalf("expected %d runes, got %d", maxMessageLen, utf8.RuneCountInString(out))
	}
	if truncate("short", maxMessageLen) != "short" {
		t.Fatalf("short messages must be untouched")
	}
}
