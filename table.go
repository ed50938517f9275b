package topicroute

import (
	"fmt"
	"sort"
	"strings"
)

// entry is one registered route.
type entry struct {
	template Template
	handler  *Handler
	order    int
}

// Table maps topic templates to handlers.
//
// Entries are kept in match order: most literal segments first, then fewer
// capturing segments, then templates without a catch-all, then registration
// order. Match returns the first entry that fits, so the ordering is the
// tie-break.
//
// Table is not safe for concurrent registration; it is safe for concurrent
// Match once registration is complete.
type Table struct {
	entries []entry
	shapes  map[string]*entry
	next    int
}

// NewTable creates an empty route table.
func NewTable() *Table {
	return &Table{shapes: make(map[string]*entry)}
}

// Register adds a route. It fails with ErrAmbiguousRoute when a template
// with the same shape is already registered.
func (t *Table) Register(tmpl Template, h *Handler) error {
	if len(tmpl.segments) == 0 {
		return malformed(tmpl.raw, "template is empty")
	}

	shape := tmpl.Shape()
	if prev, ok := t.shapes[shape]; ok {
		return fmt.Errorf("%w: %q conflicts with %q (handler %s)",
			ErrAmbiguousRoute, tmpl.String(), prev.template.String(), prev.handler.Name)
	}

	e := entry{template: tmpl, handler: h, order: t.next}
	t.next++

	i := sort.Search(len(t.entries), func(i int) bool {
		return before(e, t.entries[i])
	})
	t.entries = append(t.entries, entry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = e

	t.reindex()
	return nil
}

// reindex rebuilds the shape index after entries move.
func (t *Table) reindex() {
	for i := range t.entries {
		t.shapes[t.entries[i].template.Shape()] = &t.entries[i]
	}
}

// before reports whether a outranks b.
func before(a, b entry) bool {
	at, bt := a.template, b.template
	if at.Literals() != bt.Literals() {
		return at.Literals() > bt.Literals()
	}
	if at.Captures() != bt.Captures() {
		return at.Captures() < bt.Captures()
	}
	if at.HasCatchAll() != bt.HasCatchAll() {
		return !at.HasCatchAll()
	}
	return a.order < b.order
}

// Match finds the handler for topic. The returned context has a nil Handler
// when nothing matched.
func (t *Table) Match(topic string) *RouteContext {
	rc := &RouteContext{Topic: topic}
	segments := strings.Split(topic, Separator)

	for i := range t.entries {
		e := &t.entries[i]
		params, tail, ok := e.template.match(segments)
		if !ok {
			continue
		}
		rc.Handler = e.handler
		rc.Template = e.template
		rc.Params = params
		rc.Tail = tail
		return rc
	}
	return rc
}

// Len returns the number of registered routes.
func (t *Table) Len() int { return len(t.entries) }

// RouteInfo describes one registered route.
type RouteInfo struct {
	Template string
	Handler  string
}

// Routes lists the registered routes in match order.
func (t *Table) Routes() []RouteInfo {
	out := make([]RouteInfo, len(t.entries))
	for i, e := range t.entries {
		out[i] = RouteInfo{Template: e.template.String(), Handler: e.handler.Name}
	}
	return out
}
