// Package cursor provides the immutable pagination handle passed between
// the backend facade and provider implementations.
package cursor

import "sort"

// Action is a navigation verb a cursor may offer.
type Action string

// Navigation actions. A cursor only honors actions present in its action set.
const (
	ActionFirst Action = "first"
	ActionPrev  Action = "prev"
	ActionNext  Action = "next"
	ActionLast  Action = "last"
)

// Meta carries pagination bookkeeping alongside the opaque provider data.
type Meta struct {
	Page      int
	Count     int
	PageSize  int
	PageCount int
	// UsingOldPaginationAPI marks cursors produced by providers that still
	// paginate by raw page number.
	UsingOldPaginationAPI bool
}

// Data is the opaque provider-specific payload of a cursor.
type Data map[string]any

// Store is the plain descriptor a Cursor is built from.
type Store struct {
	Actions []Action
	Meta    Meta
	Data    Data
}

// Cursor is an immutable pagination handle. Every transition allocates a
// new Cursor; the zero value is a valid cursor with no actions.
type Cursor struct {
	actions map[Action]struct{}
	meta    Meta
	data    Data
}

// Keys used by WrapData/UnwrapData to nest provider data under facade data.
const (
	wrappedKey = "wrapped_data"
	innerKey   = "data"
)

// Create builds a Cursor from a descriptor. A nil descriptor produces a
// cursor with an empty action set so HasAction never panics on
// uninitialized state.
func Create(store *Store) Cursor {
	c := Cursor{actions: map[Action]struct{}{}}
	if store == nil {
		return c
	}
	for _, a := range store.Actions {
		c.actions[a] = struct{}{}
	}
	c.meta = store.Meta
	c.data = copyData(store.Data)
	return c
}

// HasAction reports whether the cursor offers the given navigation action.
func (c Cursor) HasAction(action Action) bool {
	_, ok := c.actions[action]
	return ok
}

// Actions returns the sorted set of available actions.
func (c Cursor) Actions() []Action {
	actions := make([]Action, 0, len(c.actions))
	for a := range c.actions {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// Meta returns the pagination metadata.
func (c Cursor) Meta() Meta {
	return c.meta
}

// Data returns a copy of the opaque provider payload.
func (c Cursor) Data() Data {
	return copyData(c.data)
}

// WrapData nests the cursor's current data under extra fields, so a generic
// caller can attach context (e.g. which collection a cursor belongs to)
// without the provider-specific payload losing its shape. Actions and meta
// are untouched.
func (c Cursor) WrapData(extra Data) Cursor {
	next := c.clone()
	next.data = Data{
		wrappedKey: copyData(extra),
		innerKey:   c.data,
	}
	return next
}

// UnwrapData reverses WrapData: it returns the previously wrapped extra
// fields and a cursor stripped back to provider-only data.
func (c Cursor) UnwrapData() (Data, Cursor) {
	next := c.clone()
	wrapped, _ := c.data[wrappedKey].(Data)
	inner, _ := c.data[innerKey].(Data)
	next.data = inner
	return copyData(wrapped), next
}

// ClearData returns a cursor with its data removed. Safe to hand to layers
// that must not carry non-serializable payloads.
func (c Cursor) ClearData() Cursor {
	next := c.clone()
	next.data = nil
	return next
}

// UpdateStore applies a pure transform to the cursor's descriptor and
// returns the resulting cursor. Used to merge in synthetic actions, e.g.
// deriving an append action from next.
func (c Cursor) UpdateStore(fn func(*Store)) Cursor {
	store := &Store{
		Actions: c.Actions(),
		Meta:    c.meta,
		Data:    copyData(c.data),
	}
	fn(store)
	return Create(store)
}

func (c Cursor) clone() Cursor {
	next := Cursor{
		actions: make(map[Action]struct{}, len(c.actions)),
		meta:    c.meta,
		data:    c.data,
	}
	for a := range c.actions {
		next.actions[a] = struct{}{}
	}
	return next
}

// copyData shallow-copies a data map. Values are treated as opaque and
// never mutated by cursor code.
func copyData(d Data) Data {
	if d == nil {
		return nil
	}
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
