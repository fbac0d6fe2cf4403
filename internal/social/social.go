// Package social maintains the follow graph and read-only friend stock
// snapshots for comparison charts.
package social

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "habitstock/internal/errors"
	"habitstock/internal/models"
	"habitstock/internal/store"
	"habitstock/internal/stream"
)

const syncKey = "friends"

// Service owns the local user's follow list and a cache of friend bar
// histories. Friend data is strictly read-only: the cache is replaced
// wholesale on every follow-list change, never partially fetched. While
// listening to a hub, server-pushed bars overlay the cached histories.
type Service struct {
	userID string
	store  store.DataStore
	feed   *stream.Feed // optional; nil without a remote feed
	log    zerolog.Logger

	mu      sync.RWMutex
	friends map[string]models.FriendStock

	// set while listening to a hub
	hub       *stream.Hub
	listenCtx context.Context
	subs      map[string]*stream.Subscription
}

// NewService creates a social service for a user. feed may be nil.
func NewService(userID string, st store.DataStore, feed *stream.Feed, logger zerolog.Logger) *Service {
	return &Service{
		userID:  userID,
		store:   st,
		feed:    feed,
		log:     logger.With().Str("user_id", userID).Logger(),
		friends: make(map[string]models.FriendStock),
		subs:    make(map[string]*stream.Subscription),
	}
}

// Follow adds a friend and refreshes the snapshot cache.
func (s *Service) Follow(ctx context.Context, friendID string) error {
	if friendID == "" || friendID == s.userID {
		return apperrors.NewValidationError("friend_id", friendID, "must name another user")
	}
	if err := s.store.Follow(ctx, s.userID, friendID); err != nil {
		return err
	}
	if s.feed != nil {
		if err := s.feed.Watch(friendID); err != nil {
			s.log.Warn().Err(err).Str("friend_id", friendID).Msg("Feed watch failed")
		}
	}
	if err := s.Refresh(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.subscribeLocked(friendID)
	s.mu.Unlock()
	return nil
}

// Unfollow removes a friend and refreshes the snapshot cache.
func (s *Service) Unfollow(ctx context.Context, friendID string) error {
	if err := s.store.Unfollow(ctx, s.userID, friendID); err != nil {
		return err
	}
	if s.feed != nil {
		if err := s.feed.Unwatch(friendID); err != nil {
			s.log.Warn().Err(err).Str("friend_id", friendID).Msg("Feed unwatch failed")
		}
	}

	s.mu.Lock()
	if sub, ok := s.subs[friendID]; ok {
		s.hub.Cancel(sub)
		delete(s.subs, friendID)
	}
	s.mu.Unlock()

	return s.Refresh(ctx)
}

// Following returns the IDs the user follows.
func (s *Service) Following(ctx context.Context) ([]string, error) {
	return s.store.GetFollowing(ctx, s.userID)
}

// Refresh rebuilds the friend snapshot cache from scratch for the current
// follow list.
func (s *Service) Refresh(ctx context.Context) error {
	friendIDs, err := s.store.GetFollowing(ctx, s.userID)
	if err != nil {
		return apperrors.Wrap(err, "refreshing follow list")
	}

	now := time.Now()
	fresh := make(map[string]models.FriendStock, len(friendIDs))
	for _, id := range friendIDs {
		bars, err := s.store.GetBars(ctx, id, "", "")
		if err != nil {
			return apperrors.Wrapf(err, "refreshing friend %s", id)
		}
		barMap := make(map[string]models.StockBar, len(bars))
		for _, b := range bars {
			barMap[b.Date] = b
		}
		fresh[id] = models.FriendStock{FriendID: id, Bars: barMap, FetchedAt: now}
	}

	s.mu.Lock()
	s.friends = fresh
	s.mu.Unlock()

	if err := s.store.SetLastSync(syncKey, now); err != nil {
		s.log.Warn().Err(err).Msg("Recording friend sync time failed")
	}
	s.log.Debug().Int("friends", len(fresh)).Msg("Friend snapshots refreshed")
	return nil
}

// FriendBars returns a copy of one friend's snapshot.
func (s *Service) FriendBars(friendID string) (models.FriendStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.friends[friendID]
	if !ok {
		return models.FriendStock{}, apperrors.ErrDataNotFound
	}
	out := models.FriendStock{
		FriendID:  snap.FriendID,
		Bars:      make(map[string]models.StockBar, len(snap.Bars)),
		FetchedAt: snap.FetchedAt,
	}
	for k, v := range snap.Bars {
		out.Bars[k] = v
	}
	return out, nil
}

// LastRefreshed returns the time of the last successful wholesale refresh.
func (s *Service) LastRefreshed() time.Time {
	return s.store.GetLastSync(syncKey)
}

// Listen overlays server-pushed bars from hub onto the cached friend
// histories until ctx is canceled. It refreshes the cache first, then
// subscribes a user-wide hub key per followed friend; follows made while
// listening are subscribed as they happen.
func (s *Service) Listen(ctx context.Context, hub *stream.Hub) error {
	if err := s.Refresh(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.hub = hub
	s.listenCtx = ctx
	for id := range s.friends {
		s.subscribeLocked(id)
	}
	s.mu.Unlock()
	return nil
}

// subscribeLocked starts a pump for one friend's hub snapshots. No-op when
// not listening or already subscribed. Caller holds s.mu.
func (s *Service) subscribeLocked(friendID string) {
	if s.hub == nil {
		return
	}
	if _, ok := s.subs[friendID]; ok {
		return
	}
	sub := s.hub.Subscribe(stream.Key{UserID: friendID})
	s.subs[friendID] = sub
	go s.pump(s.listenCtx, sub)
}

func (s *Service) pump(ctx context.Context, sub *stream.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C():
			if !ok {
				return
			}
			s.applyBar(snap.UserID, snap.Bar)
		}
	}
}

// applyBar overlays one pushed bar onto a friend's cached history. Bars for
// users no longer followed are dropped.
func (s *Service) applyBar(friendID string, bar models.StockBar) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.friends[friendID]
	if !ok {
		return
	}
	snap.Bars[bar.Date] = bar
	s.friends[friendID] = snap
	s.log.Debug().Str("friend_id", friendID).Str("date", bar.Date).Msg("Friend bar updated from feed")
}
