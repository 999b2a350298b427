package remote

import (
	"fmt"

	"github.com/armin976/noema-gateway/internal/core/domain"
)

// Fragment is one partial tool-call delivery decoded from a stream chunk.
// Replace indicates the arguments are a complete value (final non-stream
// messages and "arguments done" events) rather than an appendable delta;
// callers must set it according to the dialect that produced the fragment.
type Fragment struct {
	ID        string
	Name      string
	Arguments string
	Replace   bool
}

type callBuilder struct {
	id   string
	name string
	args string
}

// Accumulator merges fragmented tool-call deliveries into complete
// invocations, keyed by the caller's slot (index-based for chunked delta
// style, item-id-based for event style). Builders are never removed
// mid-stream; each key maps to exactly one logical invocation for the
// stream's lifetime.
type Accumulator struct {
	builders    map[string]*callBuilder
	order       []string
	lastEmitted map[string]string
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		builders:    make(map[string]*callBuilder),
		lastEmitted: make(map[string]string),
	}
}

// IndexKey addresses a slot for index-addressed delta chunks.
func IndexKey(index int) string {
	return fmt.Sprintf("idx:%d", index)
}

// ItemKey addresses a slot for event-addressed ("responses" style) chunks.
func ItemKey(itemID string) string {
	return "item:" + itemID
}

// Apply merges a fragment into the keyed builder and returns the assembled
// invocation when its best-effort JSON changed since the last emission.
// Names arrive whole in practice, so updating on any non-empty name is
// idempotent.
func (a *Accumulator) Apply(key string, frag Fragment) (domain.ToolCall, bool) {
	b, exists := a.builders[key]
	if !exists {
		b = &callBuilder{}
		a.builders[key] = b
		a.order = append(a.order, key)
	}

	if frag.ID != "" {
		b.id = frag.ID
	}
	if frag.Name != "" {
		b.name = frag.Name
	}
	if frag.Arguments != "" {
		if frag.Replace {
			b.args = frag.Arguments
		} else {
			b.args += frag.Arguments
		}
	}

	if b.name == "" {
		return domain.ToolCall{}, false
	}

	call := b.toolCall()
	canonical := call.Arguments.CanonicalJSON()
	if a.lastEmitted[key] == canonical {
		return domain.ToolCall{}, false
	}
	a.lastEmitted[key] = canonical
	return call, true
}

// Finalize force-emits the current state of every emittable builder,
// guaranteeing each key's final invocation is delivered even when no
// intermediate change was observed. Called on terminal signals: a tool-use
// finish reason, an explicit done event, or end of stream.
func (a *Accumulator) Finalize() []domain.ToolCall {
	var calls []domain.ToolCall
	for _, key := range a.order {
		b := a.builders[key]
		if b.name == "" {
			continue
		}
		call := b.toolCall()
		a.lastEmitted[key] = call.Arguments.CanonicalJSON()
		calls = append(calls, call)
	}
	return calls
}

// Len reports how many distinct invocation slots have been seen.
func (a *Accumulator) Len() int {
	return len(a.builders)
}

func (b *callBuilder) toolCall() domain.ToolCall {
	return domain.ToolCall{
		ID:        b.id,
		Name:      b.name,
		Arguments: domain.ParseToolCallArguments(b.args),
	}
}
