package social

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "habitstock/internal/errors"
	"habitstock/internal/models"
	"habitstock/internal/store"
	"habitstock/internal/stream"
)

func seedFriend(t *testing.T, st *store.MemoryStore, id string, close float64) {
	t.Helper()
	err := st.SaveBar(context.Background(), id, &models.StockBar{
		Date: "2024-05-01", Open: close - 5, Close: close, High: close + 1, Low: close - 6, Volume: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestFollowRefreshesSnapshot(t *testing.T) {
	st := store.NewMemoryStore()
	seedFriend(t, st, "u2", 500)
	svc := NewService("u1", st, nil, zerolog.Nop())
	ctx := context.Background()

	if err := svc.Follow(ctx, "u2"); err != nil {
		t.Fatal(err)
	}

	snap, err := svc.FriendBars("u2")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Bars["2024-05-01"].Close != 500 {
		t.Errorf("friend snapshot = %+v", snap)
	}
	if svc.LastRefreshed().IsZero() {
		t.Error("refresh time not recorded")
	}
}

func TestUnfollowDropsSnapshotWholesale(t *testing.T) {
	st := store.NewMemoryStore()
	seedFriend(t, st, "u2", 500)
	svc := NewService("u1", st, nil, zerolog.Nop())
	ctx := context.Background()

	if err := svc.Follow(ctx, "u2"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Unfollow(ctx, "u2"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.FriendBars("u2"); !apperrors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("snapshot survived unfollow: %v", err)
	}
	following, err := svc.Following(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(following) != 0 {
		t.Errorf("following = %v", following)
	}
}

func TestFollowValidation(t *testing.T) {
	svc := NewService("u1", store.NewMemoryStore(), nil, zerolog.Nop())
	ctx := context.Background()

	if err := svc.Follow(ctx, ""); err == nil {
		t.Error("empty friend id accepted")
	}
	if err := svc.Follow(ctx, "u1"); err == nil {
		t.Error("self-follow accepted")
	}
}

func TestFriendBarsIsACopy(t *testing.T) {
	st := store.NewMemoryStore()
	seedFriend(t, st, "u2", 500)
	svc := NewService("u1", st, nil, zerolog.Nop())
	ctx := context.Background()

	if err := svc.Follow(ctx, "u2"); err != nil {
		t.Fatal(err)
	}

	snap, _ := svc.FriendBars("u2")
	snap.Bars["2024-05-01"] = models.StockBar{Date: "2024-05-01", Close: 1}

	again, _ := svc.FriendBars("u2")
	if again.Bars["2024-05-01"].Close != 500 {
		t.Error("mutating a returned snapshot leaked into the cache")
	}
}

func TestRefreshReplacesStaleData(t *testing.T) {
	st := store.NewMemoryStore()
	seedFriend(t, st, "u2", 500)
	svc := NewService("u1", st, nil, zerolog.Nop())
	ctx := context.Background()

	if err := svc.Follow(ctx, "u2"); err != nil {
		t.Fatal(err)
	}

	// Friend's price moved server-side; a refresh swaps the whole snapshot.
	seedFriend(t, st, "u2", 550)
	if err := svc.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	snap, _ := svc.FriendBars("u2")
	if snap.Bars["2024-05-01"].Close != 550 {
		t.Errorf("refresh did not replace snapshot: %+v", snap)
	}
}

func TestListenOverlaysPushedFriendBars(t *testing.T) {
	st := store.NewMemoryStore()
	seedFriend(t, st, "u2", 500)
	svc := NewService("u1", st, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Follow(ctx, "u2"); err != nil {
		t.Fatal(err)
	}
	hub := stream.NewHub()
	if err := svc.Listen(ctx, hub); err != nil {
		t.Fatal(err)
	}

	pushed := models.StockBar{Date: "2024-05-02", Open: 500, Close: 507.5, High: 507.5, Low: 500, Volume: 1}
	hub.Publish(stream.Snapshot{UserID: "u2", Bar: pushed})

	deadline := time.Now().Add(time.Second)
	for {
		snap, err := svc.FriendBars("u2")
		if err != nil {
			t.Fatal(err)
		}
		if snap.Bars["2024-05-02"] == pushed {
			// The seeded history is still present alongside the overlay.
			if snap.Bars["2024-05-01"].Close != 500 {
				t.Errorf("seeded bar lost: %+v", snap)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("bar = %+v, want %+v", snap.Bars["2024-05-02"], pushed)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFollowWhileListeningSubscribes(t *testing.T) {
	st := store.NewMemoryStore()
	seedFriend(t, st, "u2", 500)
	svc := NewService("u1", st, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := stream.NewHub()
	if err := svc.Listen(ctx, hub); err != nil {
		t.Fatal(err)
	}

	key := stream.Key{UserID: "u2"}
	if err := svc.Follow(ctx, "u2"); err != nil {
		t.Fatal(err)
	}
	if n := hub.SubscriberCount(key); n != 1 {
		t.Fatalf("subscriber count after follow = %d, want 1", n)
	}

	if err := svc.Unfollow(ctx, "u2"); err != nil {
		t.Fatal(err)
	}
	if n := hub.SubscriberCount(key); n != 0 {
		t.Errorf("subscriber count after unfollow = %d, want 0", n)
	}
}
