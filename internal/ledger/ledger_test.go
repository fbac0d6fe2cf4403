package ledger

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "habitstock/internal/errors"
	"habitstock/internal/models"
	"habitstock/internal/pricing"
	"habitstock/internal/store"
	"habitstock/internal/stream"
	"habitstock/pkg/utils"
)

const testDate = "2024-05-01"

// oneShotRetry disables backoff so failure-path tests stay fast.
func oneShotRetry() utils.RetryConfig {
	return utils.RetryConfig{MaxAttempts: 1, InitialDelay: 0, MaxDelay: 0, BackoffFactor: 1}
}

func newTestLedger(t *testing.T, opts ...Option) (*Ledger, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	opts = append([]Option{
		WithGenerator(pricing.NewGeneratorWithRand(rand.New(rand.NewSource(1)))),
	}, opts...)
	l := New("u1", 1000, st, zerolog.Nop(), opts...)
	return l, st
}

func mustCreate(t *testing.T, l *Ledger) models.Task {
	t.Helper()
	task, err := l.Create(context.Background(), "write report", models.DifficultyHard, testDate)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return task
}

func TestCreateFreezesDelta(t *testing.T) {
	l, st := newTestLedger(t)
	task := mustCreate(t, l)

	if task.PriceChange <= 0 {
		t.Errorf("price change = %v, want > 0", task.PriceChange)
	}
	if task.AppliedPriceChange != 0 || task.AppliedPercentage != 0 {
		t.Errorf("new task has applied totals: %+v", task)
	}
	if task.Completed {
		t.Error("new task is completed")
	}

	// Persisted through the store.
	stored, err := st.GetTask(context.Background(), "u1", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.PriceChange != task.PriceChange {
		t.Errorf("stored delta %v != created delta %v", stored.PriceChange, task.PriceChange)
	}
}

func TestCreateValidation(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.Create(ctx, "   ", models.DifficultyEasy, testDate); err == nil {
		t.Error("empty text accepted")
	}
	if _, err := l.Create(ctx, "x", models.Difficulty("nope"), testDate); !apperrors.Is(err, apperrors.ErrUnknownDifficulty) {
		t.Errorf("bad difficulty: %v", err)
	}
	if _, err := l.Create(ctx, "x", models.DifficultyEasy, "05/01/2024"); err == nil {
		t.Error("bad date accepted")
	}
}

func TestToggleAppliesFrozenDelta(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	task := mustCreate(t, l)

	done, err := l.Toggle(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !done.Completed {
		t.Error("toggle did not complete the task")
	}
	if done.AppliedPriceChange != task.PriceChange {
		t.Errorf("applied = %v, want frozen delta %v", done.AppliedPriceChange, task.PriceChange)
	}
	if done.AppliedPercentage != task.Percentage {
		t.Errorf("applied pct = %v, want %v", done.AppliedPercentage, task.Percentage)
	}

	bar := l.Bars()[testDate]
	if bar.Close != 1000+task.PriceChange {
		t.Errorf("bar close = %v, want %v", bar.Close, 1000+task.PriceChange)
	}
	if bar.Volume != 1 {
		t.Errorf("bar volume = %d, want 1", bar.Volume)
	}
}

func TestToggleTwiceIsIdentity(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	task := mustCreate(t, l)

	priceBefore := l.CurrentPrice()

	if _, err := l.Toggle(ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	after, err := l.Toggle(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}

	if after.Completed {
		t.Error("double toggle left task completed")
	}
	if after.AppliedPriceChange != 0 || after.AppliedPercentage != 0 {
		t.Errorf("double toggle left applied totals %v / %v, want 0 / 0",
			after.AppliedPriceChange, after.AppliedPercentage)
	}
	if got := l.CurrentPrice(); got != priceBefore {
		t.Errorf("price after double toggle = %v, want %v", got, priceBefore)
	}
	if vol := l.Bars()[testDate].Volume; vol != 0 {
		t.Errorf("volume after double toggle = %d, want 0", vol)
	}
}

func TestDeleteCompletedReversesAggregate(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	task := mustCreate(t, l)

	done, err := l.Toggle(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	priceWithTask := l.CurrentPrice()

	if err := l.Delete(ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	if got := l.CurrentPrice(); got != priceWithTask-done.AppliedPriceChange {
		t.Errorf("price after delete = %v, want %v lower than %v",
			got, done.AppliedPriceChange, priceWithTask)
	}
	if _, err := l.Task(task.ID); !apperrors.Is(err, apperrors.ErrTaskNotFound) {
		t.Errorf("task still present after delete: %v", err)
	}
}

func TestDeleteIncompleteLeavesAggregate(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	task := mustCreate(t, l)

	before := l.CurrentPrice()
	if err := l.Delete(ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	if got := l.CurrentPrice(); got != before {
		t.Errorf("deleting an incomplete task moved the price: %v -> %v", before, got)
	}
}

func TestNewsBoost(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	task := mustCreate(t, l)

	// Not completed yet: boost rejected.
	if _, err := l.ApplyNewsBoost(ctx, task.ID); !apperrors.Is(err, apperrors.ErrTaskNotCompleted) {
		t.Errorf("boost on incomplete task: %v", err)
	}

	done, err := l.Toggle(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	priceBefore := l.CurrentPrice()

	boosted, err := l.ApplyNewsBoost(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}

	increase := done.PriceChange / 2
	if boosted.PriceChange != done.PriceChange+increase {
		t.Errorf("boosted delta = %v, want %v", boosted.PriceChange, done.PriceChange+increase)
	}
	if boosted.AppliedPriceChange != done.AppliedPriceChange+increase {
		t.Errorf("boosted applied = %v, want %v", boosted.AppliedPriceChange, done.AppliedPriceChange+increase)
	}
	if !boosted.HasGeneratedNews {
		t.Error("boost did not set the news flag")
	}
	if got := l.CurrentPrice(); got != priceBefore+increase {
		t.Errorf("price after boost = %v, want %v", got, priceBefore+increase)
	}

	// Second boost must be rejected.
	if _, err := l.ApplyNewsBoost(ctx, task.ID); !apperrors.Is(err, apperrors.ErrNewsAlreadyGenerated) {
		t.Errorf("second boost: %v", err)
	}
}

func TestBoostExampleFromTen(t *testing.T) {
	// priceChange=10 -> boost yields 15, applied +5.
	l, st := newTestLedger(t)
	ctx := context.Background()
	task := mustCreate(t, l)

	// Pin the frozen delta to a known value.
	fixed, err := l.Task(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	fixed.PriceChange = 10
	fixed.Percentage = 1.0
	if err := st.SaveTask(ctx, "u1", &fixed); err != nil {
		t.Fatal(err)
	}
	if err := l.Load(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := l.Toggle(ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	boosted, err := l.ApplyNewsBoost(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if boosted.PriceChange != 15 {
		t.Errorf("boosted delta = %v, want 15", boosted.PriceChange)
	}
	if boosted.AppliedPriceChange != 15 {
		t.Errorf("applied after boost = %v, want 15 (10 + 5)", boosted.AppliedPriceChange)
	}
}

func TestEditDifficultyRedrawsDelta(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	task := mustCreate(t, l)

	edited, err := l.EditDifficulty(ctx, task.ID, models.DifficultyExtreme)
	if err != nil {
		t.Fatal(err)
	}
	if edited.Difficulty != models.DifficultyExtreme {
		t.Errorf("difficulty = %s", edited.Difficulty)
	}
	if edited.PriceChange <= 0 {
		t.Errorf("redrawn delta = %v", edited.PriceChange)
	}
	if edited.AppliedPriceChange != task.AppliedPriceChange {
		t.Error("difficulty edit touched applied totals")
	}
}

func TestEditDueDateMovesAppliedDelta(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	task := mustCreate(t, l)

	done, err := l.Toggle(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}

	const newDate = "2024-05-03"
	moved, err := l.EditDueDate(ctx, task.ID, newDate)
	if err != nil {
		t.Fatal(err)
	}
	if moved.DueDate != newDate {
		t.Errorf("due date = %s", moved.DueDate)
	}

	bars := l.Bars()
	if bars[testDate].Volume != 0 {
		t.Errorf("old date still counts the task: %+v", bars[testDate])
	}
	if bars[newDate].Volume != 1 {
		t.Errorf("new date does not count the task: %+v", bars[newDate])
	}
	if bars[newDate].Close-bars[newDate].Open != done.AppliedPriceChange {
		t.Errorf("new date bar delta = %v, want %v",
			bars[newDate].Close-bars[newDate].Open, done.AppliedPriceChange)
	}
}

func TestFailedWriteRollsBackOptimisticState(t *testing.T) {
	l, st := newTestLedger(t, WithRetry(oneShotRetry()))
	ctx := context.Background()
	task := mustCreate(t, l)

	priceBefore := l.CurrentPrice()
	st.FailNextWrite = apperrors.ErrDatabaseError

	if _, err := l.Toggle(ctx, task.ID); err == nil {
		t.Fatal("toggle should surface the store failure")
	}

	// Local state restored: the task is still incomplete and the price
	// unchanged.
	got, err := l.Task(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Completed || got.AppliedPriceChange != 0 {
		t.Errorf("rollback failed, task = %+v", got)
	}
	if p := l.CurrentPrice(); p != priceBefore {
		t.Errorf("rollback failed, price = %v, want %v", p, priceBefore)
	}

	// The store is reachable again; the toggle succeeds now.
	if _, err := l.Toggle(ctx, task.ID); err != nil {
		t.Fatalf("toggle after recovery: %v", err)
	}
}

func TestTogglePublishesSnapshot(t *testing.T) {
	hub := stream.NewHub()
	l, _ := newTestLedger(t, WithHub(hub))
	ctx := context.Background()
	task := mustCreate(t, l)

	sub := hub.Subscribe(stream.Key{UserID: "u1", Date: testDate})
	defer hub.Cancel(sub)

	if _, err := l.Toggle(ctx, task.ID); err != nil {
		t.Fatal(err)
	}

	select {
	case snap := <-sub.C():
		if snap.Bar.Volume != 1 {
			t.Errorf("snapshot = %+v", snap)
		}
	default:
		t.Error("no snapshot published after toggle")
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	l, _ := newTestLedger(t)

	bar := models.StockBar{Date: testDate, Open: 1000, Close: 1005, High: 1006, Low: 999, Volume: 2}
	if !l.Reconcile(bar) {
		t.Error("first reconcile should report a change")
	}
	if l.Reconcile(bar) {
		t.Error("second reconcile of the same snapshot should be a no-op")
	}
	if got := l.Bars()[testDate]; got != bar {
		t.Errorf("reconciled bar = %+v", got)
	}
}

func TestListenReconcilesHubSnapshots(t *testing.T) {
	l, _ := newTestLedger(t)
	hub := stream.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Listen(ctx, hub)

	pushed := models.StockBar{Date: "2024-05-02", Open: 1000, Close: 1003.5, High: 1003.5, Low: 1000, Volume: 2}
	deadline := time.Now().Add(time.Second)
	for l.Bars()["2024-05-02"] != pushed {
		// Republish until the listener has subscribed and caught up;
		// Reconcile makes the replay harmless.
		hub.Publish(stream.Snapshot{UserID: "u1", Bar: pushed})
		if time.Now().After(deadline) {
			t.Fatalf("bar = %+v, want %+v", l.Bars()["2024-05-02"], pushed)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestGapDaysMaterializeFlat(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	task := mustCreate(t, l)
	if _, err := l.Toggle(ctx, task.ID); err != nil {
		t.Fatal(err)
	}

	dense := l.DenseBars(testDate, "2024-05-03")
	if len(dense) != 3 {
		t.Fatalf("dense length = %d, want 3", len(dense))
	}
	close1 := dense[0].Close
	for _, bar := range dense[1:] {
		if bar.Open != close1 || bar.Close != close1 || bar.Volume != 0 {
			t.Errorf("gap bar = %+v, want flat at %v", bar, close1)
		}
	}
}

func TestDenseBarsAfterActivityHoldPreviousClose(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	task := mustCreate(t, l)
	if _, err := l.Toggle(ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	want := l.CurrentPrice()

	// A range starting after the completion day must stay at the moved
	// price, not dip back to the initial price.
	dense := l.DenseBars("2024-05-02", "2024-05-03")
	if len(dense) != 2 {
		t.Fatalf("dense length = %d, want 2", len(dense))
	}
	for _, bar := range dense {
		if bar.Close != want || bar.Open != want {
			t.Errorf("bar %s close = %v, want previous close %v", bar.Date, bar.Close, want)
		}
	}
}

func TestLoadRestoresState(t *testing.T) {
	l, st := newTestLedger(t)
	ctx := context.Background()
	task := mustCreate(t, l)
	if _, err := l.Toggle(ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	price := l.CurrentPrice()

	// A fresh ledger over the same store sees the same state.
	l2 := New("u1", 1000, st, zerolog.Nop())
	if err := l2.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if got := l2.CurrentPrice(); got != price {
		t.Errorf("reloaded price = %v, want %v", got, price)
	}
	got, err := l2.Task(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Completed {
		t.Error("reloaded task lost completion")
	}
}
