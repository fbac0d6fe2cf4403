package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "habitstock/internal/errors"
	"habitstock/pkg/utils"
)

// Op is one optimistic mutation: the local state change has already been
// applied when the op is executed, Apply performs the remote write, and
// Rollback restores the pre-optimistic local state if the write ultimately
// fails.
type Op struct {
	ID       string
	Kind     string
	Apply    func(ctx context.Context) error
	Rollback func()
}

// OpRecord is the outcome of one executed operation.
type OpRecord struct {
	ID   string
	Kind string
	At   time.Time
	Err  error
}

// OpLog executes optimistic operations against the store with retries and
// keeps a bounded history of outcomes. A failed operation is rolled back
// locally so the optimistic state never outlives a lost write.
type OpLog struct {
	retry utils.RetryConfig
	log   zerolog.Logger

	mu      sync.Mutex
	history []OpRecord
	maxHist int
}

// NewOpLog creates an operation log with the given retry policy.
func NewOpLog(retry utils.RetryConfig, logger zerolog.Logger) *OpLog {
	return &OpLog{
		retry:   retry,
		log:     logger,
		maxHist: 256,
	}
}

// NewOp creates an operation with a fresh ID.
func NewOp(kind string, apply func(ctx context.Context) error, rollback func()) Op {
	return Op{
		ID:       uuid.NewString(),
		Kind:     kind,
		Apply:    apply,
		Rollback: rollback,
	}
}

// Execute runs the op's remote write with retries. On failure the rollback
// runs and the error is returned to the caller.
func (l *OpLog) Execute(ctx context.Context, op Op) error {
	err := utils.Retry(ctx, l.retry, func() error {
		return op.Apply(ctx)
	})

	l.record(OpRecord{ID: op.ID, Kind: op.Kind, At: time.Now(), Err: err})

	if err != nil {
		l.log.Warn().
			Str("op_id", op.ID).
			Str("kind", op.Kind).
			Err(err).
			Msg("Operation failed, rolling back optimistic state")
		if op.Rollback != nil {
			op.Rollback()
		}
		return apperrors.Wrapf(err, "op %s (%s)", op.Kind, op.ID)
	}
	return nil
}

func (l *OpLog) record(r OpRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, r)
	if len(l.history) > l.maxHist {
		l.history = l.history[len(l.history)-l.maxHist:]
	}
}

// History returns a copy of the recorded operation outcomes, oldest first.
func (l *OpLog) History() []OpRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]OpRecord, len(l.history))
	copy(out, l.history)
	return out
}
