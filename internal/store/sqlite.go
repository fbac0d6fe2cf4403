package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "habitstock/internal/errors"
	"habitstock/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[string]time.Time
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{
		db:        db,
		syncTimes: make(map[string]time.Time),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.loadSyncTimes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load sync times: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Tasks per user and due date
	CREATE TABLE IF NOT EXISTS tasks (
		user_id TEXT NOT NULL,
		id TEXT NOT NULL,
		text TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		difficulty TEXT NOT NULL,
		due_date TEXT NOT NULL,
		price_change REAL NOT NULL,
		percentage REAL NOT NULL,
		applied_price_change REAL NOT NULL DEFAULT 0,
		applied_percentage REAL NOT NULL DEFAULT 0,
		has_generated_news INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(user_id, due_date);

	-- One OHLCV bar per user per calendar day
	CREATE TABLE IF NOT EXISTS stock_bars (
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		change_price REAL NOT NULL DEFAULT 0,
		change_rate REAL NOT NULL DEFAULT 0,
		volume INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, date)
	);

	-- Follow edges
	CREATE TABLE IF NOT EXISTS follows (
		user_id TEXT NOT NULL,
		friend_id TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, friend_id)
	);

	-- AI-generated news articles, at most one per task
	CREATE TABLE IF NOT EXISTS news_articles (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		task_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_news_user ON news_articles(user_id, created_at);

	-- Sync bookkeeping
	CREATE TABLE IF NOT EXISTS sync_times (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) loadSyncTimes() error {
	rows, err := s.db.Query(`SELECT data_type, last_sync FROM sync_times`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var dataType string
		var lastSync time.Time
		if err := rows.Scan(&dataType, &lastSync); err != nil {
			return err
		}
		s.syncTimes[dataType] = lastSync
	}
	return rows.Err()
}

// SaveTask inserts or replaces a task.
func (s *SQLiteStore) SaveTask(ctx context.Context, userID string, task *models.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tasks
		(user_id, id, text, completed, difficulty, due_date, price_change, percentage,
		 applied_price_change, applied_percentage, has_generated_news, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, task.ID, task.Text, boolToInt(task.Completed), string(task.Difficulty),
		task.DueDate, task.PriceChange, task.Percentage,
		task.AppliedPriceChange, task.AppliedPercentage,
		boolToInt(task.HasGeneratedNews), task.CreatedAt)
	if err != nil {
		return apperrors.NewStoreError("save_task", task.ID, err)
	}
	return nil
}

// GetTask retrieves a single task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, userID, taskID string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, text, completed, difficulty, due_date, price_change, percentage,
		       applied_price_change, applied_percentage, has_generated_news, created_at
		FROM tasks WHERE user_id = ? AND id = ?`, userID, taskID)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrTaskNotFound
	}
	if err != nil {
		return nil, apperrors.NewStoreError("get_task", taskID, err)
	}
	return task, nil
}

// GetTasks retrieves tasks matching the filter, oldest first.
func (s *SQLiteStore) GetTasks(ctx context.Context, userID string, filter TaskFilter) ([]models.Task, error) {
	query := `
		SELECT id, text, completed, difficulty, due_date, price_change, percentage,
		       applied_price_change, applied_percentage, has_generated_news, created_at
		FROM tasks WHERE user_id = ?`
	args := []interface{}{userID}

	if filter.DueDate != "" {
		query += " AND due_date = ?"
		args = append(args, filter.DueDate)
	}
	if filter.Completed != nil {
		query += " AND completed = ?"
		args = append(args, boolToInt(*filter.Completed))
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreError("get_tasks", userID, err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, apperrors.NewStoreError("get_tasks", userID, err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// DeleteTask removes a task.
func (s *SQLiteStore) DeleteTask(ctx context.Context, userID, taskID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE user_id = ? AND id = ?`, userID, taskID)
	if err != nil {
		return apperrors.NewStoreError("delete_task", taskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrTaskNotFound
	}
	return nil
}

// SaveBar upserts a single price bar.
func (s *SQLiteStore) SaveBar(ctx context.Context, userID string, bar *models.StockBar) error {
	return s.SaveBars(ctx, userID, []models.StockBar{*bar})
}

// SaveBars upserts price bars in a single transaction.
func (s *SQLiteStore) SaveBars(ctx context.Context, userID string, bars []models.StockBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStoreError("save_bars", userID, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO stock_bars
		(user_id, date, open, high, low, close, change_price, change_rate, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperrors.NewStoreError("save_bars", userID, err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		if _, err := stmt.ExecContext(ctx, userID, bar.Date, bar.Open, bar.High,
			bar.Low, bar.Close, bar.ChangePrice, bar.ChangeRate, bar.Volume); err != nil {
			return apperrors.NewStoreError("save_bars", bar.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStoreError("save_bars", userID, err)
	}
	return nil
}

// GetBar retrieves the bar for one calendar day.
func (s *SQLiteStore) GetBar(ctx context.Context, userID, date string) (*models.StockBar, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT date, open, high, low, close, change_price, change_rate, volume
		FROM stock_bars WHERE user_id = ? AND date = ?`, userID, date)

	bar, err := scanBar(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrDataNotFound
	}
	if err != nil {
		return nil, apperrors.NewStoreError("get_bar", date, err)
	}
	return bar, nil
}

// GetBars retrieves bars in [from, to] sorted ascending by date. Empty
// bounds are open-ended.
func (s *SQLiteStore) GetBars(ctx context.Context, userID string, from, to string) ([]models.StockBar, error) {
	query := `
		SELECT date, open, high, low, close, change_price, change_rate, volume
		FROM stock_bars WHERE user_id = ?`
	args := []interface{}{userID}

	if from != "" {
		query += " AND date >= ?"
		args = append(args, from)
	}
	if to != "" {
		query += " AND date <= ?"
		args = append(args, to)
	}
	query += " ORDER BY date ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreError("get_bars", userID, err)
	}
	defer rows.Close()

	var bars []models.StockBar
	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, apperrors.NewStoreError("get_bars", userID, err)
		}
		bars = append(bars, *bar)
	}
	return bars, rows.Err()
}

// GetLatestBar retrieves the most recent bar for a user.
func (s *SQLiteStore) GetLatestBar(ctx context.Context, userID string) (*models.StockBar, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT date, open, high, low, close, change_price, change_rate, volume
		FROM stock_bars WHERE user_id = ? ORDER BY date DESC LIMIT 1`, userID)

	bar, err := scanBar(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrDataNotFound
	}
	if err != nil {
		return nil, apperrors.NewStoreError("get_latest_bar", userID, err)
	}
	return bar, nil
}

// Follow records a follow edge. Following twice is a no-op.
func (s *SQLiteStore) Follow(ctx context.Context, userID, friendID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO follows (user_id, friend_id) VALUES (?, ?)`,
		userID, friendID)
	if err != nil {
		return apperrors.NewStoreError("follow", friendID, err)
	}
	return nil
}

// Unfollow removes a follow edge.
func (s *SQLiteStore) Unfollow(ctx context.Context, userID, friendID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM follows WHERE user_id = ? AND friend_id = ?`, userID, friendID)
	if err != nil {
		return apperrors.NewStoreError("unfollow", friendID, err)
	}
	return nil
}

// GetFollowing returns the IDs of users that userID follows.
func (s *SQLiteStore) GetFollowing(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT friend_id FROM follows WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, apperrors.NewStoreError("get_following", userID, err)
	}
	defer rows.Close()

	var friends []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewStoreError("get_following", userID, err)
		}
		friends = append(friends, id)
	}
	return friends, rows.Err()
}

// SaveArticle persists a news article. The unique task_id constraint makes
// a second article for the same task fail.
func (s *SQLiteStore) SaveArticle(ctx context.Context, article *models.NewsArticle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO news_articles (id, user_id, task_id, title, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		article.ID, article.UserID, article.TaskID, article.Title, article.Content,
		article.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return apperrors.ErrNewsAlreadyGenerated
		}
		return apperrors.NewStoreError("save_article", article.TaskID, err)
	}
	return nil
}

// GetArticles returns a user's articles, newest first.
func (s *SQLiteStore) GetArticles(ctx context.Context, userID string, limit int) ([]models.NewsArticle, error) {
	query := `
		SELECT id, user_id, task_id, title, content, created_at
		FROM news_articles WHERE user_id = ? ORDER BY created_at DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreError("get_articles", userID, err)
	}
	defer rows.Close()

	var articles []models.NewsArticle
	for rows.Next() {
		var a models.NewsArticle
		if err := rows.Scan(&a.ID, &a.UserID, &a.TaskID, &a.Title, &a.Content, &a.CreatedAt); err != nil {
			return nil, apperrors.NewStoreError("get_articles", userID, err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// GetLastSync returns the last sync time for a data type.
func (s *SQLiteStore) GetLastSync(dataType string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncTimes[dataType]
}

// SetLastSync records the last sync time for a data type.
func (s *SQLiteStore) SetLastSync(dataType string, t time.Time) error {
	s.mu.Lock()
	s.syncTimes[dataType] = t
	s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO sync_times (data_type, last_sync) VALUES (?, ?)`,
		dataType, t)
	if err != nil {
		return apperrors.NewStoreError("set_last_sync", dataType, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var completed, hasNews int
	var difficulty string
	if err := row.Scan(&t.ID, &t.Text, &completed, &difficulty, &t.DueDate,
		&t.PriceChange, &t.Percentage, &t.AppliedPriceChange, &t.AppliedPercentage,
		&hasNews, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Completed = completed != 0
	t.HasGeneratedNews = hasNews != 0
	t.Difficulty = models.Difficulty(difficulty)
	return &t, nil
}

func scanBar(row rowScanner) (*models.StockBar, error) {
	var b models.StockBar
	if err := row.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close,
		&b.ChangePrice, &b.ChangeRate, &b.Volume); err != nil {
		return nil, err
	}
	return &b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
