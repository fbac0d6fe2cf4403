// Package ledger maintains a user's tasks and the stock bars their
// completion drives.
//
// A task's price delta is drawn once, at creation or difficulty-edit time,
// and frozen. Completion toggles add or subtract that frozen delta from the
// task's applied totals and from the due date's price bar, so toggling is
// exactly reversible. All mutations are optimistic: the in-memory state
// changes first, the store write runs with retries, and a lost write rolls
// the local change back.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"habitstock/internal/analysis/aggregate"
	apperrors "habitstock/internal/errors"
	"habitstock/internal/models"
	"habitstock/internal/pricing"
	"habitstock/internal/store"
	"habitstock/internal/stream"
	"habitstock/pkg/utils"
)

// Ledger owns one user's tasks and price bars. The owning user is the
// single writer; mutations are serialized by the ledger's mutex.
type Ledger struct {
	userID       string
	initialPrice float64
	store        store.DataStore
	gen          *pricing.Generator
	oplog        *OpLog
	hub          *stream.Hub
	log          zerolog.Logger

	mu    sync.Mutex
	tasks map[string]models.Task
	bars  map[string]models.StockBar
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithHub makes the ledger publish bar snapshots after successful writes.
func WithHub(hub *stream.Hub) Option {
	return func(l *Ledger) { l.hub = hub }
}

// WithRetry overrides the store write retry policy.
func WithRetry(cfg utils.RetryConfig) Option {
	return func(l *Ledger) { l.oplog = NewOpLog(cfg, l.log) }
}

// WithGenerator injects a price generator, used by tests for determinism.
func WithGenerator(gen *pricing.Generator) Option {
	return func(l *Ledger) { l.gen = gen }
}

// New creates a ledger for a user. initialPrice seeds the very first bar
// when no history exists yet.
func New(userID string, initialPrice float64, st store.DataStore, logger zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		userID:       userID,
		initialPrice: initialPrice,
		store:        st,
		gen:          pricing.NewGenerator(),
		log:          logger.With().Str("user_id", userID).Logger(),
		tasks:        make(map[string]models.Task),
		bars:         make(map[string]models.StockBar),
	}
	l.oplog = NewOpLog(utils.DefaultRetryConfig(), l.log)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the user's tasks and bars from the store into the cache.
func (l *Ledger) Load(ctx context.Context) error {
	tasks, err := l.store.GetTasks(ctx, l.userID, store.TaskFilter{})
	if err != nil {
		return apperrors.Wrap(err, "loading tasks")
	}
	bars, err := l.store.GetBars(ctx, l.userID, "", "")
	if err != nil {
		return apperrors.Wrap(err, "loading bars")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks = make(map[string]models.Task, len(tasks))
	for _, t := range tasks {
		l.tasks[t.ID] = t
	}
	l.bars = make(map[string]models.StockBar, len(bars))
	for _, b := range bars {
		l.bars[b.Date] = b
	}
	return nil
}

// UserID returns the owning user's ID.
func (l *Ledger) UserID() string {
	return l.userID
}

// CurrentPrice returns the latest close, or the initial price when no bar
// exists yet.
func (l *Ledger) CurrentPrice() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latestCloseLocked("")
}

// latestCloseLocked returns the close of the newest bar strictly before
// date, or of any bar when date is empty. Falls back to the initial price.
func (l *Ledger) latestCloseLocked(before string) float64 {
	latest := ""
	for d := range l.bars {
		if before != "" && d >= before {
			continue
		}
		if d > latest {
			latest = d
		}
	}
	if latest == "" {
		return l.initialPrice
	}
	return l.bars[latest].Close
}

// Task returns a task by ID.
func (l *Ledger) Task(taskID string) (models.Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tasks[taskID]
	if !ok {
		return models.Task{}, apperrors.ErrTaskNotFound
	}
	return t, nil
}

// Tasks returns the tasks due on date (all tasks when date is empty),
// oldest first.
func (l *Ledger) Tasks(date string) []models.Task {
	l.mu.Lock()
	defer l.mu.Unlock()

	var tasks []models.Task
	for _, t := range l.tasks {
		if date == "" || t.DueDate == date {
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}

// Bars returns a copy of the user's bar map.
func (l *Ledger) Bars() map[string]models.StockBar {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]models.StockBar, len(l.bars))
	for k, v := range l.bars {
		out[k] = v
	}
	return out
}

// DenseBars returns a gap-free, date-sorted series over [from, to].
func (l *Ledger) DenseBars(from, to string) []models.StockBar {
	return aggregate.FillGaps(l.Bars(), from, to, l.initialPrice)
}

// Create draws a price delta for the new task and inserts it. The delta is
// frozen: completion toggles reuse it verbatim.
func (l *Ledger) Create(ctx context.Context, text string, difficulty models.Difficulty, dueDate string) (models.Task, error) {
	if strings.TrimSpace(text) == "" {
		return models.Task{}, apperrors.NewValidationError("text", text, "must not be empty")
	}
	if !difficulty.Valid() {
		return models.Task{}, apperrors.ErrUnknownDifficulty
	}
	if !utils.ValidDate(dueDate) {
		return models.Task{}, apperrors.NewValidationError("due_date", dueDate, "must be an ISO date")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	perturb, err := l.gen.Generate(difficulty, l.latestCloseLocked(""))
	if err != nil {
		return models.Task{}, err
	}

	now := time.Now()
	task := models.Task{
		ID:          fmt.Sprintf("%d", now.UnixNano()),
		Text:        text,
		Difficulty:  difficulty,
		DueDate:     dueDate,
		PriceChange: perturb.PriceChange,
		Percentage:  utils.Round1(perturb.Percent * 100),
		CreatedAt:   now,
	}

	l.tasks[task.ID] = task
	op := NewOp("create_task",
		func(ctx context.Context) error {
			return l.store.SaveTask(ctx, l.userID, &task)
		},
		func() {
			l.mu.Lock()
			delete(l.tasks, task.ID)
			l.mu.Unlock()
		})

	if err := l.execute(ctx, op); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// Toggle flips a task's completion and applies or reverses its frozen
// delta. Toggling twice restores the applied totals exactly.
func (l *Ledger) Toggle(ctx context.Context, taskID string) (models.Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, ok := l.tasks[taskID]
	if !ok {
		return models.Task{}, apperrors.ErrTaskNotFound
	}

	task := prev
	bar, prevBar := l.ensureBarLocked(task.DueDate)

	if task.Completed {
		task.AppliedPriceChange = utils.Round1(task.AppliedPriceChange - task.PriceChange)
		task.AppliedPercentage = utils.Round1(task.AppliedPercentage - task.Percentage)
		applyDelta(&bar, -task.PriceChange, -1)
	} else {
		task.AppliedPriceChange = utils.Round1(task.AppliedPriceChange + task.PriceChange)
		task.AppliedPercentage = utils.Round1(task.AppliedPercentage + task.Percentage)
		applyDelta(&bar, task.PriceChange, 1)
	}
	task.Completed = !task.Completed

	l.tasks[taskID] = task
	l.bars[bar.Date] = bar

	op := NewOp("toggle_task",
		func(ctx context.Context) error {
			if err := l.store.SaveTask(ctx, l.userID, &task); err != nil {
				return err
			}
			return l.store.SaveBar(ctx, l.userID, &bar)
		},
		func() {
			l.mu.Lock()
			l.tasks[taskID] = prev
			l.restoreBarLocked(bar.Date, prevBar)
			l.mu.Unlock()
		})

	if err := l.execute(ctx, op); err != nil {
		return models.Task{}, err
	}

	l.publish(bar)
	l.log.Info().
		Str("task_id", taskID).
		Bool("completed", task.Completed).
		Float64("applied_price_change", task.AppliedPriceChange).
		Msg("Task toggled")
	return task, nil
}

// Delete removes a task. A completed task's applied delta is reversed from
// the aggregate first so no ghost contribution remains.
func (l *Ledger) Delete(ctx context.Context, taskID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, ok := l.tasks[taskID]
	if !ok {
		return apperrors.ErrTaskNotFound
	}

	bar, prevBar := l.ensureBarLocked(prev.DueDate)
	reversed := prev.Completed
	if reversed {
		applyDelta(&bar, -prev.AppliedPriceChange, -1)
		l.bars[bar.Date] = bar
	}
	delete(l.tasks, taskID)

	op := NewOp("delete_task",
		func(ctx context.Context) error {
			if reversed {
				if err := l.store.SaveBar(ctx, l.userID, &bar); err != nil {
					return err
				}
			}
			return l.store.DeleteTask(ctx, l.userID, taskID)
		},
		func() {
			l.mu.Lock()
			l.tasks[taskID] = prev
			if reversed {
				l.restoreBarLocked(bar.Date, prevBar)
			}
			l.mu.Unlock()
		})

	if err := l.execute(ctx, op); err != nil {
		return err
	}

	if reversed {
		l.publish(bar)
	}
	return nil
}

// EditText changes a task's text.
func (l *Ledger) EditText(ctx context.Context, taskID, text string) (models.Task, error) {
	if strings.TrimSpace(text) == "" {
		return models.Task{}, apperrors.NewValidationError("text", text, "must not be empty")
	}
	return l.editTask(ctx, taskID, "edit_text", func(t *models.Task) error {
		t.Text = text
		return nil
	})
}

// EditDifficulty redraws the task's frozen delta from the user's current
// price baseline. Applied totals are deliberately left untouched; a
// completed task keeps the contribution it already made.
func (l *Ledger) EditDifficulty(ctx context.Context, taskID string, difficulty models.Difficulty) (models.Task, error) {
	if !difficulty.Valid() {
		return models.Task{}, apperrors.ErrUnknownDifficulty
	}
	return l.editTask(ctx, taskID, "edit_difficulty", func(t *models.Task) error {
		perturb, err := l.gen.Generate(difficulty, l.latestCloseLocked(""))
		if err != nil {
			return err
		}
		t.Difficulty = difficulty
		t.PriceChange = perturb.PriceChange
		t.Percentage = utils.Round1(perturb.Percent * 100)
		return nil
	})
}

// EditDueDate moves a task to a new date. A completed task's applied delta
// moves with it: reversed from the old date's bar and applied to the new
// one, so per-date aggregates stay consistent.
func (l *Ledger) EditDueDate(ctx context.Context, taskID, dueDate string) (models.Task, error) {
	if !utils.ValidDate(dueDate) {
		return models.Task{}, apperrors.NewValidationError("due_date", dueDate, "must be an ISO date")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev, ok := l.tasks[taskID]
	if !ok {
		return models.Task{}, apperrors.ErrTaskNotFound
	}
	if prev.DueDate == dueDate {
		return prev, nil
	}

	task := prev
	task.DueDate = dueDate

	var oldBar, newBar models.StockBar
	var prevOld, prevNew *models.StockBar
	moved := prev.Completed
	if moved {
		oldBar, prevOld = l.ensureBarLocked(prev.DueDate)
		applyDelta(&oldBar, -prev.AppliedPriceChange, -1)
		l.bars[oldBar.Date] = oldBar

		newBar, prevNew = l.ensureBarLocked(dueDate)
		applyDelta(&newBar, prev.AppliedPriceChange, 1)
		l.bars[newBar.Date] = newBar
	}
	l.tasks[taskID] = task

	op := NewOp("edit_due_date",
		func(ctx context.Context) error {
			if moved {
				if err := l.store.SaveBars(ctx, l.userID, []models.StockBar{oldBar, newBar}); err != nil {
					return err
				}
			}
			return l.store.SaveTask(ctx, l.userID, &task)
		},
		func() {
			l.mu.Lock()
			l.tasks[taskID] = prev
			if moved {
				l.restoreBarLocked(oldBar.Date, prevOld)
				l.restoreBarLocked(newBar.Date, prevNew)
			}
			l.mu.Unlock()
		})

	if err := l.execute(ctx, op); err != nil {
		return models.Task{}, err
	}

	if moved {
		l.publish(oldBar)
		l.publish(newBar)
	}
	return task, nil
}

// ApplyNewsBoost applies the one-time 1.5x news multiplier to a completed
// task: half the frozen delta is added on top of the task's delta, its
// applied totals, and the due date's bar. A second boost is rejected.
func (l *Ledger) ApplyNewsBoost(ctx context.Context, taskID string) (models.Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, ok := l.tasks[taskID]
	if !ok {
		return models.Task{}, apperrors.ErrTaskNotFound
	}
	if !prev.Completed {
		return models.Task{}, apperrors.NewTaskError(taskID, "news_boost", "task not completed", apperrors.ErrTaskNotCompleted)
	}
	if prev.HasGeneratedNews {
		return models.Task{}, apperrors.NewTaskError(taskID, "news_boost", "boost already applied", apperrors.ErrNewsAlreadyGenerated)
	}

	increase := utils.Round1(prev.PriceChange * 0.5)
	pctIncrease := utils.Round1(prev.Percentage * 0.5)

	task := prev
	task.PriceChange = utils.Round1(prev.PriceChange * 1.5)
	task.Percentage = utils.Round1(prev.Percentage * 1.5)
	task.AppliedPriceChange = utils.Round1(prev.AppliedPriceChange + increase)
	task.AppliedPercentage = utils.Round1(prev.AppliedPercentage + pctIncrease)
	task.HasGeneratedNews = true

	bar, prevBar := l.ensureBarLocked(task.DueDate)
	applyDelta(&bar, increase, 0)

	l.tasks[taskID] = task
	l.bars[bar.Date] = bar

	op := NewOp("news_boost",
		func(ctx context.Context) error {
			if err := l.store.SaveTask(ctx, l.userID, &task); err != nil {
				return err
			}
			return l.store.SaveBar(ctx, l.userID, &bar)
		},
		func() {
			l.mu.Lock()
			l.tasks[taskID] = prev
			l.restoreBarLocked(bar.Date, prevBar)
			l.mu.Unlock()
		})

	if err := l.execute(ctx, op); err != nil {
		return models.Task{}, err
	}

	l.publish(bar)
	l.log.Info().
		Str("task_id", taskID).
		Float64("increase", increase).
		Float64("price_change", task.PriceChange).
		Msg("News boost applied")
	return task, nil
}

// Reconcile applies a server-pushed bar snapshot to the cache. Applying the
// same snapshot twice is a no-op; the return value reports whether anything
// changed.
func (l *Ledger) Reconcile(bar models.StockBar) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if current, ok := l.bars[bar.Date]; ok && current == bar {
		return false
	}
	l.bars[bar.Date] = bar
	return true
}

// Listen consumes hub snapshots for this user until ctx is canceled,
// reconciling server-pushed bars into the local cache. Snapshots the ledger
// published itself replay harmlessly because Reconcile is idempotent.
func (l *Ledger) Listen(ctx context.Context, hub *stream.Hub) {
	sub := hub.Subscribe(stream.Key{UserID: l.userID})
	defer hub.Cancel(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C():
			if !ok {
				return
			}
			if l.Reconcile(snap.Bar) {
				l.log.Debug().
					Str("date", snap.Bar.Date).
					Float64("close", snap.Bar.Close).
					Msg("Reconciled server bar")
			}
		}
	}
}

// OpHistory exposes the outcomes of executed operations.
func (l *Ledger) OpHistory() []OpRecord {
	return l.oplog.History()
}

// editTask runs a cache-level task mutation with store write-back and
// rollback. Callers must not hold the ledger mutex.
func (l *Ledger) editTask(ctx context.Context, taskID, kind string, mutate func(*models.Task) error) (models.Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, ok := l.tasks[taskID]
	if !ok {
		return models.Task{}, apperrors.ErrTaskNotFound
	}

	task := prev
	if err := mutate(&task); err != nil {
		return models.Task{}, err
	}
	l.tasks[taskID] = task

	op := NewOp(kind,
		func(ctx context.Context) error {
			return l.store.SaveTask(ctx, l.userID, &task)
		},
		func() {
			l.mu.Lock()
			l.tasks[taskID] = prev
			l.mu.Unlock()
		})

	if err := l.execute(ctx, op); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// execute runs an op outside the ledger mutex so rollbacks can re-acquire it.
func (l *Ledger) execute(ctx context.Context, op Op) error {
	l.mu.Unlock()
	defer l.mu.Lock()
	return l.oplog.Execute(ctx, op)
}

// ensureBarLocked returns the bar for date, materializing a flat bar at the
// previous close when none exists. The second return is the prior stored
// value, nil when the bar was just materialized.
func (l *Ledger) ensureBarLocked(date string) (models.StockBar, *models.StockBar) {
	if bar, ok := l.bars[date]; ok {
		prev := bar
		return bar, &prev
	}
	return models.FlatBar(date, l.latestCloseLocked(date)), nil
}

// restoreBarLocked puts a bar back to its pre-op value; a nil prev removes
// the bar that the op materialized.
func (l *Ledger) restoreBarLocked(date string, prev *models.StockBar) {
	if prev == nil {
		delete(l.bars, date)
		return
	}
	l.bars[date] = *prev
}

func (l *Ledger) publish(bar models.StockBar) {
	if l.hub != nil {
		l.hub.Publish(stream.Snapshot{UserID: l.userID, Bar: bar})
	}
}

// applyDelta moves a bar's close by delta, stretches high/low to cover the
// new close, and adjusts the derived change fields. Volume counts completed
// tasks and never goes negative.
func applyDelta(bar *models.StockBar, delta float64, dVolume int64) {
	bar.Close = utils.Round1(bar.Close + delta)
	if bar.Close > bar.High {
		bar.High = bar.Close
	}
	if bar.Close < bar.Low {
		bar.Low = bar.Close
	}
	bar.ChangePrice = utils.Round1(bar.Close - bar.Open)
	if bar.Open != 0 {
		bar.ChangeRate = bar.ChangePrice / bar.Open
	}
	bar.Volume += dVolume
	if bar.Volume < 0 {
		bar.Volume = 0
	}
}
