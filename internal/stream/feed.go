package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	apperrors "habitstock/internal/errors"
	"habitstock/internal/models"
	"habitstock/pkg/utils"
)

// FeedConfig holds configuration for the remote snapshot feed.
type FeedConfig struct {
	URL          string
	MaxRetries   int
	BaseDelay    time.Duration
	PingInterval time.Duration
}

// DefaultFeedConfig returns the default feed configuration for a URL.
func DefaultFeedConfig(url string) FeedConfig {
	return FeedConfig{
		URL:          url,
		MaxRetries:   5,
		BaseDelay:    time.Second,
		PingInterval: 30 * time.Second,
	}
}

// Feed is a WebSocket client that receives server-pushed bar snapshots and
// publishes them into the hub. Reconnection uses exponential backoff and
// re-sends the watch list, so a watcher survives transient disconnects.
// Replayed snapshots after a reconnect are absorbed by the hub's de-dup.
type Feed struct {
	config FeedConfig
	hub    *Hub
	log    zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	watched map[string]struct{}
	closed  bool
	done    chan struct{}
}

// feedMessage is the wire format exchanged with the snapshot server.
type feedMessage struct {
	Type   string           `json:"type"` // "watch", "unwatch", "bar"
	UserID string           `json:"user_id"`
	Bar    *models.StockBar `json:"bar,omitempty"`
}

// NewFeed creates a feed publishing into hub.
func NewFeed(config FeedConfig, hub *Hub, logger zerolog.Logger) *Feed {
	return &Feed{
		config:  config,
		hub:     hub,
		log:     logger,
		watched: make(map[string]struct{}),
		done:    make(chan struct{}),
	}
}

// Connect dials the feed and starts the read loop.
func (f *Feed) Connect(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return apperrors.ErrFeedClosed
	}
	f.mu.Unlock()

	if err := f.dial(ctx); err != nil {
		return apperrors.NewFeedError(f.config.URL, "connect", err)
	}

	go f.readLoop(ctx)
	return nil
}

func (f *Feed) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.config.URL, nil)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.conn = conn
	watched := make([]string, 0, len(f.watched))
	for id := range f.watched {
		watched = append(watched, id)
	}
	f.mu.Unlock()

	for _, id := range watched {
		if err := f.send(feedMessage{Type: "watch", UserID: id}); err != nil {
			return err
		}
	}
	return nil
}

func (f *Feed) send(msg feedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return apperrors.ErrConnectionFailed
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return f.conn.WriteMessage(websocket.TextMessage, payload)
}

func (f *Feed) readLoop(ctx context.Context) {
	for {
		f.mu.Lock()
		conn := f.conn
		closed := f.closed
		f.mu.Unlock()
		if closed || conn == nil {
			return
		}

		var msg feedMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if f.isClosed() {
				return
			}
			f.log.Warn().Err(err).Str("url", f.config.URL).Msg("Feed read failed, reconnecting")
			if !f.reconnect(ctx) {
				return
			}
			continue
		}

		if msg.Type == "bar" && msg.Bar != nil {
			f.hub.Publish(Snapshot{UserID: msg.UserID, Bar: *msg.Bar})
		}
	}
}

// reconnect re-dials with exponential backoff. Returns false when the feed
// was closed or retries are exhausted.
func (f *Feed) reconnect(ctx context.Context) bool {
	for attempt := 0; attempt < f.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-f.done:
			return false
		case <-time.After(utils.Backoff(attempt, f.config.BaseDelay, time.Minute, 2.0)):
		}

		if err := f.dial(ctx); err == nil {
			f.log.Info().Str("url", f.config.URL).Int("attempt", attempt+1).Msg("Feed reconnected")
			return true
		}
	}
	f.log.Error().Str("url", f.config.URL).Msg("Feed reconnect attempts exhausted")
	return false
}

// Watch subscribes to server pushes for a user's bars.
func (f *Feed) Watch(userID string) error {
	f.mu.Lock()
	f.watched[userID] = struct{}{}
	connected := f.conn != nil
	f.mu.Unlock()

	if !connected {
		return nil
	}
	return f.send(feedMessage{Type: "watch", UserID: userID})
}

// Unwatch stops server pushes for a user's bars.
func (f *Feed) Unwatch(userID string) error {
	f.mu.Lock()
	delete(f.watched, userID)
	connected := f.conn != nil
	f.mu.Unlock()

	if !connected {
		return nil
	}
	return f.send(feedMessage{Type: "unwatch", UserID: userID})
}

func (f *Feed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Close tears the feed down. The read loop exits and no reconnection is
// attempted afterwards.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.done)
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}
