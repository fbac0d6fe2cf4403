package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"habitstock/internal/models"
)

// feedServer upgrades one connection and pushes a bar for every user the
// client watches.
func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var msg feedMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type != "watch" {
				continue
			}
			reply := feedMessage{
				Type:   "bar",
				UserID: msg.UserID,
				Bar: &models.StockBar{
					Date: "2024-05-01", Open: 100, High: 105, Low: 99, Close: 104, Volume: 3,
				},
			}
			payload, _ := json.Marshal(reply)
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}))
}

func TestFeedPublishesServerBars(t *testing.T) {
	srv := feedServer(t)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	hub := NewHub()
	sub := hub.Subscribe(Key{UserID: "friend", Date: "2024-05-01"})
	defer hub.Cancel(sub)

	feed := NewFeed(DefaultFeedConfig(url), hub, zerolog.Nop())
	if err := feed.Watch("friend"); err != nil {
		t.Fatal(err)
	}
	if err := feed.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer feed.Close()

	select {
	case snap := <-sub.C():
		if snap.UserID != "friend" || snap.Bar.Close != 104 {
			t.Errorf("snapshot = %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed snapshot")
	}
}

func TestFeedWatchAfterConnect(t *testing.T) {
	srv := feedServer(t)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	hub := NewHub()
	sub := hub.Subscribe(Key{UserID: "late", Date: "2024-05-01"})
	defer hub.Cancel(sub)

	feed := NewFeed(DefaultFeedConfig(url), hub, zerolog.Nop())
	if err := feed.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer feed.Close()

	if err := feed.Watch("late"); err != nil {
		t.Fatal(err)
	}

	select {
	case snap := <-sub.C():
		if snap.UserID != "late" {
			t.Errorf("snapshot = %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot after late watch")
	}
}

func TestFeedCloseStopsReconnect(t *testing.T) {
	srv := feedServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	feed := NewFeed(DefaultFeedConfig(url), NewHub(), zerolog.Nop())
	if err := feed.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := feed.Close(); err != nil {
		t.Fatal(err)
	}
	srv.Close()

	// A closed feed refuses new connections.
	if err := feed.Connect(context.Background()); err == nil {
		t.Error("Connect after Close should fail")
	}
}
