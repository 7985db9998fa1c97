// Package tracker records run status transitions and progress for observers.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a run.
type Status string

const (
	NotStarted Status = "not_started"
	InProgress Status = "in_progress"
	Done       Status = "done"
	Error      Status = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == Done || s == Error
}

var (
	ErrUnknownRun = errors.New("unknown run")
	ErrTerminal   = errors.New("run already finished")
)

// Run is a snapshot of one pipeline run.
type Run struct {
	ID          string    `json:"id"`
	RecordID    string    `json:"record_id"`
	ContentType string    `json:"content_type"`
	Status      Status    `json:"status"`
	Progress    []string  `json:"progress"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Journal persists run snapshots. Failures are logged, never fatal to a run.
type Journal interface {
	Save(ctx context.Context, r Run) error
}

// DefaultRetain is how many runs a tracker keeps in memory. Finished runs
// beyond it are evicted oldest first; the journal keeps their history.
const DefaultRetain = 200

// Tracker holds runs in memory, optionally mirrored to a Journal.
type Tracker struct {
	mu      sync.RWMutex
	runs    map[string]*Run
	retain  int
	journal Journal
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a tracker. journal may be nil.
func New(journal Journal, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		runs:    make(map[string]*Run),
		retain:  DefaultRetain,
		journal: journal,
		now:     time.Now,
		logger:  logger,
	}
}

// Create registers a new run in NotStarted.
func (t *Tracker) Create(recordID, contentType string) Run {
	now := t.now()
	r := &Run{
		ID:          uuid.NewString(),
		RecordID:    recordID,
		ContentType: contentType,
		Status:      NotStarted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.mu.Lock()
	t.runs[r.ID] = r
	snap := r.clone()
	t.evict()
	t.mu.Unlock()

	t.persist(snap)
	return snap
}

// Start moves a run to InProgress.
func (t *Tracker) Start(id string) error {
	return t.update(id, func(r *Run) error {
		r.Status = InProgress
		return nil
	})
}

// Progress appends a message to the run's log.
func (t *Tracker) Progress(id, message string) error {
	return t.update(id, func(r *Run) error {
		r.Progress = append(r.Progress, message)
		return nil
	})
}

// Finish marks the run Done.
func (t *Tracker) Finish(id string) error {
	return t.update(id, func(r *Run) error {
		r.Status = Done
		return nil
	})
}

// Fail marks the run Error with a message.
func (t *Tracker) Fail(id, message string) error {
	return t.update(id, func(r *Run) error {
		r.Status = Error
		r.Error = message
		r.Progress = append(r.Progress, message)
		return nil
	})
}

// Get returns a snapshot of the run.
func (t *Tracker) Get(id string) (Run, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrUnknownRun, id)
	}
	return r.clone(), nil
}

// Latest returns the most recently created run for a record.
func (t *Tracker) Latest(recordID string) (Run, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var best *Run
	for _, r := range t.runs {
		if r.RecordID != recordID {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) {
			best = r
		}
	}
	if best == nil {
		return Run{}, false
	}
	return best.clone(), true
}

// Active reports whether recordID has a run that has not finished.
func (t *Tracker) Active(recordID string) (Run, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.runs {
		if r.RecordID == recordID && !r.Status.Terminal() {
			return r.clone(), true
		}
	}
	return Run{}, false
}

// Recent returns up to limit runs, newest first.
func (t *Tracker) Recent(limit int) []Run {
	t.mu.RLock()
	out := make([]Run, 0, len(t.runs))
	for _, r := range t.runs {
		out = append(out, r.clone())
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (t *Tracker) update(id string, fn func(*Run) error) error {
	t.mu.Lock()
	r, ok := t.runs[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRun, id)
	}
	if r.Status.Terminal() {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrTerminal, id, r.Status)
	}
	if err := fn(r); err != nil {
		t.mu.Unlock()
		return err
	}
	r.UpdatedAt = t.now()
	snap := r.clone()
	if r.Status.Terminal() {
		t.evict()
	}
	t.mu.Unlock()

	t.persist(snap)
	return nil
}

// evict drops the oldest finished runs while more than retain are held.
// Active runs are never evicted. Callers hold t.mu.
func (t *Tracker) evict() {
	excess := len(t.runs) - t.retain
	if t.retain <= 0 || excess <= 0 {
		return
	}
	var finished []*Run
	for _, r := range t.runs {
		if r.Status.Terminal() {
			finished = append(finished, r)
		}
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].UpdatedAt.Before(finished[j].UpdatedAt) })
	for _, r := range finished[:min(excess, len(finished))] {
		delete(t.runs, r.ID)
	}
}

func (t *Tracker) persist(r Run) {
	if t.journal == nil {
		return
	}
	if err := t.journal.Save(context.Background(), r); err != nil {
		t.logger.Warn("failed to journal run", "run_id", r.ID, "error", err)
	}
}

func (r *Run) clone() Run {
	c := *r
	c.Progress = append([]string(nil), r.Progress...)
	return c
}
