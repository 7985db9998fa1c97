package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/TobiSchelling/talkcomms/internal/tracker"
)

// DefaultTTL is how long a cached row is trusted.
const DefaultTTL = 24 * time.Hour

// ErrStatusInContent is returned when a content map tries to set the status
// column directly.
var ErrStatusInContent = errors.New("status column must be set through Update.Status")

// StatusValue maps a run status to the ledger's status vocabulary.
func StatusValue(s tracker.Status) string {
	switch s {
	case tracker.NotStarted:
		return "Not started"
	case tracker.InProgress:
		return "In progress"
	case tracker.Done:
		return "Done"
	case tracker.Error:
		return "Error"
	}
	return ""
}

// Update is one batched write: content columns plus optional status and
// progress. Empty Status or Progress leaves those columns untouched.
type Update struct {
	Content  map[string]string
	Status   tracker.Status
	Progress string
}

type entry struct {
	values  map[string]string
	known   map[string]bool
	fetched time.Time
}

// Adapter fronts a Store with a per-record read cache. Writes go straight to
// the store and then into the cache; the last writer wins.
type Adapter struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	cache map[string]*entry
}

// NewAdapter wraps store. A zero ttl uses DefaultTTL.
func NewAdapter(store Store, ttl time.Duration) *Adapter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Adapter{store: store, ttl: ttl, now: time.Now, cache: make(map[string]*entry)}
}

// Store returns the backing store.
func (a *Adapter) Store() Store {
	return a.store
}

// Read returns the requested columns of a record. Every requested column is
// present in the result, empty when the ledger has no value. A cache miss
// fetches all requested columns in one store round trip.
func (a *Adapter) Read(ctx context.Context, recordID string, columns []string) (map[string]string, error) {
	if vals, ok := a.cached(recordID, columns); ok {
		return vals, nil
	}

	fetched, err := a.store.ReadRow(ctx, recordID, columns)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	e := a.cache[recordID]
	if e == nil || a.now().Sub(e.fetched) >= a.ttl {
		e = &entry{values: make(map[string]string), known: make(map[string]bool)}
		a.cache[recordID] = e
	}
	e.fetched = a.now()
	for _, col := range columns {
		e.known[col] = true
		e.values[col] = fetched[col]
	}
	out := subset(e.values, columns)
	a.mu.Unlock()

	slog.Debug("ledger row fetched", "record_id", recordID, "columns", len(columns))
	return out, nil
}

func (a *Adapter) cached(recordID string, columns []string) (map[string]string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e := a.cache[recordID]
	if e == nil || a.now().Sub(e.fetched) >= a.ttl {
		return nil, false
	}
	for _, col := range columns {
		if !e.known[col] {
			return nil, false
		}
	}
	return subset(e.values, columns), true
}

// Write applies u to the record in a single store write.
func (a *Adapter) Write(ctx context.Context, recordID string, u Update) error {
	if _, ok := u.Content[ColStatus]; ok {
		return ErrStatusInContent
	}
	values := make(map[string]string, len(u.Content)+2)
	for k, v := range u.Content {
		values[k] = v
	}
	if u.Status != "" {
		sv := StatusValue(u.Status)
		if sv == "" {
			return fmt.Errorf("unknown status %q", u.Status)
		}
		values[ColStatus] = sv
	}
	if u.Progress != "" {
		values[ColProgress] = u.Progress
	}
	if len(values) == 0 {
		return nil
	}

	if err := a.store.WriteRow(ctx, recordID, values); err != nil {
		return err
	}

	a.mu.Lock()
	if e := a.cache[recordID]; e != nil {
		for k, v := range values {
			e.values[k] = v
			e.known[k] = true
		}
	}
	a.mu.Unlock()
	return nil
}

// Invalidate drops the cached row so the next read goes to the store.
func (a *Adapter) Invalidate(recordID string) {
	a.mu.Lock()
	delete(a.cache, recordID)
	a.mu.Unlock()
}

func subset(values map[string]string, columns []string) map[string]string {
	out := make(map[string]string, len(columns))
	for _, col := range columns {
		out[col] = values[col]
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatProgress renders a cumulative progress log for the progress column.
func FormatProgress(lines []string) string {
	return strings.Join(lines, "\n")
}
