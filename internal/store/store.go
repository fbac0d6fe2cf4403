// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"habitstock/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Tasks
	SaveTask(ctx context.Context, userID string, task *models.Task) error
	GetTask(ctx context.Context, userID, taskID string) (*models.Task, error)
	GetTasks(ctx context.Context, userID string, filter TaskFilter) ([]models.Task, error)
	DeleteTask(ctx context.Context, userID, taskID string) error

	// Price bars
	SaveBar(ctx context.Context, userID string, bar *models.StockBar) error
	SaveBars(ctx context.Context, userID string, bars []models.StockBar) error
	GetBar(ctx context.Context, userID, date string) (*models.StockBar, error)
	GetBars(ctx context.Context, userID string, from, to string) ([]models.StockBar, error)
	GetLatestBar(ctx context.Context, userID string) (*models.StockBar, error)

	// Social graph
	Follow(ctx context.Context, userID, friendID string) error
	Unfollow(ctx context.Context, userID, friendID string) error
	GetFollowing(ctx context.Context, userID string) ([]string, error)

	// News articles
	SaveArticle(ctx context.Context, article *models.NewsArticle) error
	GetArticles(ctx context.Context, userID string, limit int) ([]models.NewsArticle, error)

	// Sync bookkeeping
	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error

	// Lifecycle
	Close() error
}

// TaskFilter represents filters for querying tasks.
type TaskFilter struct {
	DueDate   string
	Completed *bool
	Limit     int
}
