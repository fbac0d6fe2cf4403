package store

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "habitstock/internal/errors"
	"habitstock/internal/models"
)

// MemoryStore implements DataStore in memory. Used by tests and as the
// backing store when no database path is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	tasks     map[string]map[string]models.Task     // userID -> taskID -> task
	bars      map[string]map[string]models.StockBar // userID -> date -> bar
	follows   map[string][]string
	articles  map[string]models.NewsArticle // taskID -> article
	syncTimes map[string]time.Time

	// FailNextWrite makes the next mutating call fail; used to exercise
	// the pending-operation rollback path in tests.
	FailNextWrite error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:     make(map[string]map[string]models.Task),
		bars:      make(map[string]map[string]models.StockBar),
		follows:   make(map[string][]string),
		articles:  make(map[string]models.NewsArticle),
		syncTimes: make(map[string]time.Time),
	}
}

func (s *MemoryStore) failWrite() error {
	if s.FailNextWrite != nil {
		err := s.FailNextWrite
		s.FailNextWrite = nil
		return err
	}
	return nil
}

// SaveTask inserts or replaces a task.
func (s *MemoryStore) SaveTask(ctx context.Context, userID string, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite(); err != nil {
		return err
	}
	if s.tasks[userID] == nil {
		s.tasks[userID] = make(map[string]models.Task)
	}
	s.tasks[userID][task.ID] = *task
	return nil
}

// GetTask retrieves a task by ID.
func (s *MemoryStore) GetTask(ctx context.Context, userID, taskID string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[userID][taskID]
	if !ok {
		return nil, apperrors.ErrTaskNotFound
	}
	return &task, nil
}

// GetTasks retrieves tasks matching the filter, oldest first.
func (s *MemoryStore) GetTasks(ctx context.Context, userID string, filter TaskFilter) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []models.Task
	for _, t := range s.tasks[userID] {
		if filter.DueDate != "" && t.DueDate != filter.DueDate {
			continue
		}
		if filter.Completed != nil && t.Completed != *filter.Completed {
			continue
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	if filter.Limit > 0 && len(tasks) > filter.Limit {
		tasks = tasks[:filter.Limit]
	}
	return tasks, nil
}

// DeleteTask removes a task.
func (s *MemoryStore) DeleteTask(ctx context.Context, userID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite(); err != nil {
		return err
	}
	if _, ok := s.tasks[userID][taskID]; !ok {
		return apperrors.ErrTaskNotFound
	}
	delete(s.tasks[userID], taskID)
	return nil
}

// SaveBar upserts a single bar.
func (s *MemoryStore) SaveBar(ctx context.Context, userID string, bar *models.StockBar) error {
	return s.SaveBars(ctx, userID, []models.StockBar{*bar})
}

// SaveBars upserts bars.
func (s *MemoryStore) SaveBars(ctx context.Context, userID string, bars []models.StockBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite(); err != nil {
		return err
	}
	if s.bars[userID] == nil {
		s.bars[userID] = make(map[string]models.StockBar)
	}
	for _, bar := range bars {
		s.bars[userID][bar.Date] = bar
	}
	return nil
}

// GetBar retrieves the bar for one calendar day.
func (s *MemoryStore) GetBar(ctx context.Context, userID, date string) (*models.StockBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bar, ok := s.bars[userID][date]
	if !ok {
		return nil, apperrors.ErrDataNotFound
	}
	return &bar, nil
}

// GetBars retrieves bars in [from, to] sorted ascending by date.
func (s *MemoryStore) GetBars(ctx context.Context, userID string, from, to string) ([]models.StockBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bars []models.StockBar
	for date, bar := range s.bars[userID] {
		if from != "" && date < from {
			continue
		}
		if to != "" && date > to {
			continue
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars, nil
}

// GetLatestBar retrieves the most recent bar for a user.
func (s *MemoryStore) GetLatestBar(ctx context.Context, userID string) (*models.StockBar, error) {
	bars, err := s.GetBars(ctx, userID, "", "")
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, apperrors.ErrDataNotFound
	}
	return &bars[len(bars)-1], nil
}

// Follow records a follow edge. Following twice is a no-op.
func (s *MemoryStore) Follow(ctx context.Context, userID, friendID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite(); err != nil {
		return err
	}
	for _, id := range s.follows[userID] {
		if id == friendID {
			return nil
		}
	}
	s.follows[userID] = append(s.follows[userID], friendID)
	return nil
}

// Unfollow removes a follow edge.
func (s *MemoryStore) Unfollow(ctx context.Context, userID, friendID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite(); err != nil {
		return err
	}
	edges := s.follows[userID]
	for i, id := range edges {
		if id == friendID {
			s.follows[userID] = append(edges[:i], edges[i+1:]...)
			return nil
		}
	}
	return nil
}

// GetFollowing returns the IDs of users that userID follows.
func (s *MemoryStore) GetFollowing(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.follows[userID]))
	copy(out, s.follows[userID])
	return out, nil
}

// SaveArticle persists a news article, rejecting a second article for the
// same task.
func (s *MemoryStore) SaveArticle(ctx context.Context, article *models.NewsArticle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite(); err != nil {
		return err
	}
	if _, exists := s.articles[article.TaskID]; exists {
		return apperrors.ErrNewsAlreadyGenerated
	}
	s.articles[article.TaskID] = *article
	return nil
}

// GetArticles returns a user's articles, newest first.
func (s *MemoryStore) GetArticles(ctx context.Context, userID string, limit int) ([]models.NewsArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var articles []models.NewsArticle
	for _, a := range s.articles {
		if a.UserID == userID {
			articles = append(articles, a)
		}
	}
	sort.Slice(articles, func(i, j int) bool {
		return articles[i].CreatedAt.After(articles[j].CreatedAt)
	})
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}
	return articles, nil
}

// GetLastSync returns the last sync time for a data type.
func (s *MemoryStore) GetLastSync(dataType string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncTimes[dataType]
}

// SetLastSync records the last sync time for a data type.
func (s *MemoryStore) SetLastSync(dataType string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncTimes[dataType] = t
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
