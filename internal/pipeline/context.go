package pipeline

import (
	"errors"
	"fmt"
)

// ErrStageWritten is returned when a stage output is stored twice in one run.
var ErrStageWritten = errors.New("stage output already recorded")

// StageContext holds the outputs of completed stages for one run. Each name
// is written once; later stages only read. A context belongs to a single run
// goroutine.
type StageContext struct {
	outputs map[string]any
	order   []string
}

func NewStageContext() *StageContext {
	return &StageContext{outputs: make(map[string]any)}
}

// Put records the output of stage name.
func (c *StageContext) Put(name string, v any) error {
	if _, ok := c.outputs[name]; ok {
		return fmt.Errorf("%w: %s", ErrStageWritten, name)
	}
	c.outputs[name] = v
	c.order = append(c.order, name)
	return nil
}

// Get returns the raw output of stage name.
func (c *StageContext) Get(name string) (any, bool) {
	v, ok := c.outputs[name]
	return v, ok
}

// Names lists completed stages in completion order.
func (c *StageContext) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Lookup returns the output of stage name as T.
func Lookup[T any](c *StageContext, name string) (T, bool) {
	var zero T
	v, ok := c.outputs[name]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
