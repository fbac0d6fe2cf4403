// Package models provides domain models for the habit stock application.
package models

import (
	"time"
)

// Difficulty represents the ordinal tier of a task.
type Difficulty string

const (
	DifficultyEasy    Difficulty = "easy"
	DifficultyMedium  Difficulty = "medium"
	DifficultyHard    Difficulty = "hard"
	DifficultyExtreme Difficulty = "extreme"
)

// Difficulties lists all valid difficulty tiers in ascending order.
var Difficulties = []Difficulty{
	DifficultyEasy,
	DifficultyMedium,
	DifficultyHard,
	DifficultyExtreme,
}

// Valid reports whether d is a known difficulty tier.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExtreme:
		return true
	}
	return false
}

// Task represents one unit of user-defined work.
//
// PriceChange and Percentage are frozen at creation time (or redrawn on a
// difficulty edit, or multiplied by a news boost). AppliedPriceChange and
// AppliedPercentage track the portion currently reflected in the user's
// aggregate price: zero while incomplete, equal to the (possibly boosted)
// delta once completed. Toggling completion adds or subtracts the frozen
// delta so repeated toggles are exactly reversible.
type Task struct {
	ID                 string
	Text               string
	Completed          bool
	Difficulty         Difficulty
	DueDate            string // ISO date, YYYY-MM-DD
	PriceChange        float64
	Percentage         float64
	AppliedPriceChange float64
	AppliedPercentage  float64
	HasGeneratedNews   bool
	CreatedAt          time.Time
}

// StockBar represents one calendar day's simulated price bar for a user.
//
// Bars are keyed by ISO date within a per-user map. Days with no activity
// still materialize as a flat bar at the previous close with zero volume so
// charts have no gaps.
type StockBar struct {
	Date        string
	Open        float64
	Close       float64
	High        float64
	Low         float64
	ChangePrice float64
	ChangeRate  float64
	Volume      int64
}

// FlatBar returns a zero-volume bar pinned to the given price for date.
func FlatBar(date string, price float64) StockBar {
	return StockBar{
		Date:  date,
		Open:  price,
		Close: price,
		High:  price,
		Low:   price,
	}
}

// Bucket represents an aggregated OHLCV record spanning a day, week or
// month, derived from daily bars. Key is the ISO date of the first day of
// the period (for months, "YYYY-MM").
type Bucket struct {
	Key    string
	Open   float64
	Close  float64
	High   float64
	Low    float64
	Volume int64
}

// Period selects the bucket granularity for aggregation.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// NewsArticle represents an AI-generated narrative for a completed task.
type NewsArticle struct {
	ID        string
	UserID    string
	TaskID    string
	Title     string
	Content   string
	CreatedAt time.Time
}

// FriendStock is a read-only snapshot of a followed user's bar history,
// refreshed wholesale on follow-list change and never partially patched.
type FriendStock struct {
	FriendID  string
	Bars      map[string]StockBar
	FetchedAt time.Time
}
