// Package transcript holds the ordered log of turns for one session.
package transcript

import (
	"errors"
	"fmt"
	"time"

	"AgentConsole/pkg/console/api"
)

var (
	ErrNotFound = errors.New("turn not found")
	ErrSealed   = errors.New("turn is sealed")
)

// Transcript is an append-only sequence of turns. Ids are assigned in creation
// order and the slice order always equals creation order. Only open turns may
// be mutated; sealed turns are immutable.
//
// Transcript is not safe for concurrent use; the orchestrator loop owns it.
type Transcript struct {
	turns  []api.Turn
	index  map[int64]int
	open   map[int64]bool
	nextID int64
	now    func() time.Time
}

// New creates an empty transcript.
func New() *Transcript {
	return &Transcript{
		index:  make(map[int64]int),
		open:   make(map[int64]bool),
		nextID: 1,
		now:    time.Now,
	}
}

// WithClock replaces the creation timestamp source.
func (t *Transcript) WithClock(now func() time.Time) *Transcript {
	if now != nil {
		t.now = now
	}
	return t
}

// Append adds a sealed turn and returns its id.
func (t *Transcript) Append(role api.Role, content string, tools []api.ToolInvocation) int64 {
	return t.add(role, content, tools, false)
}

// Open adds a turn that stays mutable until Seal.
func (t *Transcript) Open(role api.Role, content string) int64 {
	return t.add(role, content, nil, true)
}

func (t *Transcript) add(role api.Role, content string, tools []api.ToolInvocation, open bool) int64 {
	id := t.nextID
	t.nextID++
	t.turns = append(t.turns, api.Turn{
		ID:              id,
		Role:            role,
		Content:         content,
		CreatedAt:       t.now(),
		ToolInvocations: tools,
	})
	t.index[id] = len(t.turns) - 1
	if open {
		t.open[id] = true
	}
	return id
}

// Update mutates an open turn in place.
func (t *Transcript) Update(id int64, fn func(*api.Turn)) error {
	i, ok := t.index[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if !t.open[id] {
		return fmt.Errorf("%w: %d", ErrSealed, id)
	}
	fn(&t.turns[i])
	t.turns[i].ID = id
	return nil
}

// SetContent replaces the content of an open turn.
func (t *Transcript) SetContent(id int64, content string) error {
	return t.Update(id, func(turn *api.Turn) { turn.Content = content })
}

// AppendContent appends to the content of an open turn.
func (t *Transcript) AppendContent(id int64, suffix string) error {
	return t.Update(id, func(turn *api.Turn) { turn.Content += suffix })
}

// Seal makes a turn immutable. Sealing twice is a no-op.
func (t *Transcript) Seal(id int64) {
	delete(t.open, id)
}

// IsOpen reports whether id refers to a mutable turn.
func (t *Transcript) IsOpen(id int64) bool {
	return t.open[id]
}

// Get returns a copy of one turn.
func (t *Transcript) Get(id int64) (api.Turn, bool) {
	i, ok := t.index[id]
	if !ok {
		return api.Turn{}, false
	}
	return t.turns[i].Clone(), true
}

// Len returns the number of turns.
func (t *Transcript) Len() int { return len(t.turns) }

// Snapshot returns deep copies of all turns in creation order.
func (t *Transcript) Snapshot() []api.Turn {
	out := make([]api.Turn, len(t.turns))
	for i, turn := range t.turns {
		out[i] = turn.Clone()
	}
	return out
}
