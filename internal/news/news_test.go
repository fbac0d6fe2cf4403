package news

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"

	apperrors "habitstock/internal/errors"
	"habitstock/internal/ledger"
	"habitstock/internal/models"
	"habitstock/internal/pricing"
	"habitstock/internal/store"
)

type stubLLM struct {
	response string
	err      error
	calls    int
}

func (s *stubLLM) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	s.calls++
	return s.response, s.err
}

func newFixture(t *testing.T, llm LLMClient) (*Service, *ledger.Ledger, models.Task) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	l := ledger.New("u1", 1000, st, zerolog.Nop(),
		ledger.WithGenerator(pricing.NewGeneratorWithRand(rand.New(rand.NewSource(3)))))

	task, err := l.Create(ctx, "finish thesis chapter", models.DifficultyExtreme, "2024-05-01")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Toggle(ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	return NewService(llm, st, l, zerolog.Nop()), l, task
}

func TestGenerateAppliesBoostOnce(t *testing.T) {
	llm := &stubLLM{response: "TITLE: Thesis chapter lands\nBODY: The market loved it."}
	svc, l, task := newFixture(t, llm)
	ctx := context.Background()

	completed, err := l.Task(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	priceBefore := l.CurrentPrice()

	article, err := svc.Generate(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if article.Title != "Thesis chapter lands" || article.Content != "The market loved it." {
		t.Errorf("article = %+v", article)
	}

	boosted, err := l.Task(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !boosted.HasGeneratedNews {
		t.Error("boost flag not set")
	}
	wantIncrease := completed.PriceChange / 2
	if got := l.CurrentPrice() - priceBefore; got != wantIncrease {
		t.Errorf("price moved by %v, want %v", got, wantIncrease)
	}

	// Second generation is rejected with no further price movement.
	if _, err := svc.Generate(ctx, task.ID); !apperrors.Is(err, apperrors.ErrNewsAlreadyGenerated) {
		t.Errorf("second generate: %v", err)
	}
	if got := l.CurrentPrice() - priceBefore; got != wantIncrease {
		t.Errorf("second generate moved price again: %v", got)
	}

	articles, err := svc.Articles(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 1 {
		t.Errorf("articles = %d, want 1", len(articles))
	}
}

func TestGenerateRequiresCompletion(t *testing.T) {
	svc, l, _ := newFixture(t, nil)
	ctx := context.Background()

	pending, err := l.Create(ctx, "not done yet", models.DifficultyEasy, "2024-05-02")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Generate(ctx, pending.ID); !apperrors.Is(err, apperrors.ErrTaskNotCompleted) {
		t.Errorf("generate on incomplete task: %v", err)
	}
}

func TestGenerateFallsBackToTemplate(t *testing.T) {
	llm := &stubLLM{err: fmt.Errorf("rate limited")}
	svc, _, task := newFixture(t, llm)

	article, err := svc.Generate(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if llm.calls != 1 {
		t.Errorf("llm calls = %d, want 1", llm.calls)
	}
	if article.Title == "" || article.Content == "" {
		t.Errorf("template article empty: %+v", article)
	}
}

func TestGenerateNilClientUsesTemplate(t *testing.T) {
	svc, _, task := newFixture(t, nil)

	article, err := svc.Generate(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if article.Title == "" || article.Content == "" {
		t.Errorf("template article empty: %+v", article)
	}
}

func TestParseArticle(t *testing.T) {
	title, content, ok := parseArticle("TITLE: Big day\nBODY: First sentence.\nSecond sentence.")
	if !ok || title != "Big day" || content != "First sentence. Second sentence." {
		t.Errorf("parse = %q / %q / %v", title, content, ok)
	}

	if _, _, ok := parseArticle("no structure here"); ok {
		t.Error("unstructured response should not parse")
	}
}
