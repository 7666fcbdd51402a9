package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"photoman/backend"
)

type stubLister struct {
	mu     sync.Mutex
	videos []string
}

func (s *stubLister) set(v ...string) {
	s.mu.Lock()
	s.videos = v
	s.mu.Unlock()
}

func (s *stubLister) Videos(context.Context, uint64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.videos...), nil
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg WSMessage
	if err = json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid message %q: %v", data, err)
	}
	return msg
}

func TestVideoHub(t *testing.T) {
	gin.SetMode(gin.TestMode)
	lister := &stubLister{}
	hub := NewVideoHub(lister, time.Hour)
	r := gin.New()
	r.GET("/ws/videos", func(c *gin.Context) {
		hub.WebSocket(c, nil, &backend.User{ID: 7})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/videos", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// the current list is sent on connect, even when empty
	if msg := readMessage(t, conn); msg.Type != WSMessageVideos || len(msg.Videos) != 0 {
		t.Fatalf("first message = %+v", msg)
	}

	deadline := time.Now().Add(5 * time.Second)
	for hub.Connected(7) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	lister.set("v1.mp4")
	hub.Notify(7)
	if msg := readMessage(t, conn); len(msg.Videos) != 1 || msg.Videos[0] != "v1.mp4" {
		t.Fatalf("after notify = %+v", msg)
	}

	// other users are not affected
	hub.Notify(8)

	_ = conn.WriteMessage(websocket.TextMessage, []byte("ping"))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, data, err := conn.ReadMessage(); err != nil || string(data) != "pong" {
		t.Fatalf("ping reply = %q, %v", data, err)
	}

	conn.Close()
	for hub.Connected(7) != 0 {
		if time.Now().After(deadline.Add(5 * time.Second)) {
			t.Fatal("client never removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
