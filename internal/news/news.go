package news

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "habitstock/internal/errors"
	"habitstock/internal/ledger"
	"habitstock/internal/models"
	"habitstock/internal/store"
)

const systemPrompt = `You are a financial news writer for a playful stock market where each person is a listed company and completing personal tasks moves their share price.
Write a short, upbeat market-news item about the completed task below.
Your response must be in the following exact format:
TITLE: <one headline, no quotes>
BODY: <two or three sentences of article text>`

// Service generates news articles for completed tasks. A successful
// generation applies the one-time 1.5x boost through the ledger; the boost
// flag on the task is what makes repeat generation impossible.
type Service struct {
	llm    LLMClient
	store  store.DataStore
	ledger *ledger.Ledger
	log    zerolog.Logger
}

// NewService creates a news service. llm may be nil; generation then falls
// back to a template article.
func NewService(llm LLMClient, st store.DataStore, l *ledger.Ledger, logger zerolog.Logger) *Service {
	return &Service{
		llm:    llm,
		store:  st,
		ledger: l,
		log:    logger,
	}
}

// Generate produces and persists an article for a completed task, then
// applies the news boost. Only completed, not-yet-boosted tasks qualify.
func (s *Service) Generate(ctx context.Context, taskID string) (*models.NewsArticle, error) {
	task, err := s.ledger.Task(taskID)
	if err != nil {
		return nil, apperrors.NewNewsError(taskID, "lookup", err)
	}
	if !task.Completed {
		return nil, apperrors.NewNewsError(taskID, "generate", apperrors.ErrTaskNotCompleted)
	}
	if task.HasGeneratedNews {
		return nil, apperrors.NewNewsError(taskID, "generate", apperrors.ErrNewsAlreadyGenerated)
	}

	title, content := s.compose(ctx, task)

	article := &models.NewsArticle{
		ID:        uuid.NewString(),
		UserID:    s.ledger.UserID(),
		TaskID:    task.ID,
		Title:     title,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveArticle(ctx, article); err != nil {
		return nil, apperrors.NewNewsError(taskID, "save", err)
	}

	if _, err := s.ledger.ApplyNewsBoost(ctx, taskID); err != nil {
		return nil, apperrors.NewNewsError(taskID, "boost", err)
	}

	s.log.Info().
		Str("task_id", taskID).
		Str("title", title).
		Msg("News article generated")
	return article, nil
}

// Articles returns the user's generated articles, newest first.
func (s *Service) Articles(ctx context.Context, limit int) ([]models.NewsArticle, error) {
	return s.store.GetArticles(ctx, s.ledger.UserID(), limit)
}

// compose builds the article text, falling back to a template when no LLM
// is configured or the call fails.
func (s *Service) compose(ctx context.Context, task models.Task) (title, content string) {
	if s.llm != nil {
		prompt := fmt.Sprintf(
			"Task: %q\nDifficulty: %s\nCompleted on: %s\nPrice impact: +%.1f (%.1f%%)",
			task.Text, task.Difficulty, task.DueDate, task.PriceChange, task.Percentage)

		response, err := s.llm.CompleteWithSystem(ctx, systemPrompt, prompt)
		if err == nil {
			if t, c, ok := parseArticle(response); ok {
				return t, c
			}
			s.log.Debug().Str("task_id", task.ID).Msg("Unparseable LLM response, using template")
		} else {
			s.log.Warn().Err(err).Str("task_id", task.ID).Msg("LLM call failed, using template")
		}
	}
	return templateArticle(task)
}

// parseArticle extracts the TITLE/BODY pair from an LLM response.
func parseArticle(response string) (title, content string, ok bool) {
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "TITLE:"):
			title = strings.TrimSpace(strings.TrimPrefix(line, "TITLE:"))
		case strings.HasPrefix(line, "BODY:"):
			content = strings.TrimSpace(strings.TrimPrefix(line, "BODY:"))
		default:
			if content != "" && line != "" {
				content += " " + line
			}
		}
	}
	return title, content, title != "" && content != ""
}

func templateArticle(task models.Task) (title, content string) {
	title = fmt.Sprintf("Shares rally after %q gets done", task.Text)
	content = fmt.Sprintf(
		"Investors cheered the completion of a %s-tier task on %s. "+
			"Analysts point to a +%.1f move and expect momentum to continue.",
		task.Difficulty, task.DueDate, task.PriceChange)
	return title, content
}
