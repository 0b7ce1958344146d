// Package text implements the text layer: a per-field sequence CRDT with
// positional inserts/deletes and attribute-wise formatting, grounded on the
// RGA (Replicated Growable Array) in the teacher repo's rga.go — generalized
// from a single global sequence to a map of independent per-field
// sequences, and from whole-document Value() to per-field materialization
// plus a formatting overlay.
package text

import (
	"sort"
	"sync"
	"time"

	"github.com/vespera-atelier/vespera-bindery/crdterr"
	"github.com/vespera-atelier/vespera-bindery/types"
)

// elementID uniquely identifies one inserted character within a field.
// Seq disambiguates multiple characters inserted by the same operation
// (content longer than one rune); it never collides across operations
// since OpID is globally unique.
type elementID struct {
	user types.UserID
	op   types.OpID
	seq  uint32
}

var rootID = elementID{}

// greater defines the deterministic total order used to break ties between
// concurrent inserts that share the same anchor: compare (user_id, op_id)
// lexicographically, per spec §4.2. Higher sorts closer to the anchor.
func (a elementID) greater(b elementID) bool {
	if a.user != b.user {
		return a.user > b.user
	}
	if a.op != b.op {
		return a.op.String() > b.op.String()
	}
	return a.seq > b.seq
}

type formatAttr struct {
	value any
	ts    time.Time
}

type node struct {
	id         elementID
	anchor     elementID
	ch         rune
	deleted    bool
	insertedAt time.Time
	format     map[string]formatAttr
	next       *node
}

type field struct {
	root     *node
	registry map[elementID]*node
	cached   string
	dirty    bool
}

func newField() *field {
	root := &node{id: rootID}
	return &field{
		root:     root,
		registry: map[elementID]*node{rootID: root},
		dirty:    false,
	}
}

// Layer is the text CRDT: field_id -> ordered sequence of Unicode scalar
// values with optional formatting runs, per spec §4.2.
type Layer struct {
	mu     sync.RWMutex
	fields map[string]*field
}

// New returns an empty text layer.
func New() *Layer {
	return &Layer{fields: make(map[string]*field)}
}

func (l *Layer) fieldFor(fieldID string) *field {
	f, ok := l.fields[fieldID]
	if !ok {
		f = newField()
		l.fields[fieldID] = f
	}
	return f
}

// Insert inserts content such that it appears at position in the
// causally-consistent ordering of field_id. position is a logical index
// into the current *visible* sequence; position beyond the end clamps to
// append. opID/user identify the operation for tie-breaking and dedup;
// callers (the orchestrator) guarantee opID uniqueness.
func (l *Layer) Insert(fieldID string, position int, content string, opID types.OpID, user types.UserID) error {
	if content == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f := l.fieldFor(fieldID)
	anchor := f.visiblePositionToAnchor(position)

	var seq uint32
	for _, r := range content {
		id := elementID{user: user, op: opID, seq: seq}
		seq++
		n := &node{id: id, anchor: anchor, ch: r, insertedAt: time.Now()}
		f.integrate(n)
		anchor = id
	}
	f.dirty = true
	return nil
}

// Delete tombstones length visible elements of field_id starting at
// position. Tombstoned elements remain in the registry (visible to the
// algorithm for future concurrent inserts adjacent to them) but disappear
// from materialized text. A range extending past the end trims silently.
func (l *Layer) Delete(fieldID string, position int, length int) error {
	if length <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.fields[fieldID]
	if !ok {
		return nil
	}

	visible := 0
	removed := 0
	for n := f.root.next; n != nil && removed < length; n = n.next {
		if n.deleted {
			continue
		}
		if visible >= position {
			n.deleted = true
			removed++
		}
		visible++
	}
	if removed > 0 {
		f.dirty = true
	}
	return nil
}

// Format applies formatting attributes to length visible elements of
// field_id starting at position. Concurrent formats compose attribute-wise;
// each attribute resolves by last-writer-wins on ts. Formatting attaches to
// tombstoned elements (they keep the attribute map) but is never
// materialized, per spec §9's resolution of the underspecified
// format-over-deleted-range interaction.
func (l *Layer) Format(fieldID string, position, length int, format types.TextFormat, ts time.Time) error {
	if length <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.fields[fieldID]
	if !ok {
		return crdterr.InvalidOperation("format: unknown field %q", fieldID)
	}

	visible := 0
	applied := 0
	for n := f.root.next; n != nil && applied < length; n = n.next {
		if n.deleted {
			continue
		}
		if visible >= position {
			applyFormat(n, format, ts)
			applied++
		}
		visible++
	}
	return nil
}

func applyFormat(n *node, format types.TextFormat, ts time.Time) {
	if n.format == nil {
		n.format = make(map[string]formatAttr)
	}
	set := func(key string, value any, present bool) {
		if !present {
			return
		}
		existing, ok := n.format[key]
		if !ok || ts.After(existing.ts) || ts.Equal(existing.ts) {
			n.format[key] = formatAttr{value: value, ts: ts}
		}
	}
	set("bold", format.Bold, format.Bold != nil)
	set("italic", format.Italic, format.Italic != nil)
	set("underline", format.Underline, format.Underline != nil)
	set("strikethrough", format.Strikethrough, format.Strikethrough != nil)
	set("color", format.Color, format.Color != nil)
	set("background_color", format.BackgroundColor, format.BackgroundColor != nil)
	set("font_size", format.FontSize, format.FontSize != nil)
	set("font_family", format.FontFamily, format.FontFamily != nil)
}

// integrate links a new node into the field's global ordering, following
// the teacher rga.go algorithm: find the anchor, then walk its existing
// children (nodes that share that anchor) to find the correct slot using
// the greater() total order, exactly mirroring RGA's sibling-ordering rule.
// A sibling that outranks n is skipped together with every node anchored
// (directly or transitively) beneath it, since those follow it contiguously.
func (f *field) integrate(n *node) {
	parent, ok := f.registry[n.anchor]
	if !ok {
		// Anchor not found locally (can happen transiently during a
		// partial merge); fall back to appending at the root so the
		// character is never silently dropped.
		parent = f.root
	}

	prev := parent
	current := parent.next
	for current != nil && current.anchor == n.anchor {
		if n.id.greater(current.id) {
			break
		}
		subtree := map[elementID]struct{}{current.id: {}}
		prev = current
		current = current.next
		for current != nil {
			if _, in := subtree[current.anchor]; !in {
				break
			}
			subtree[current.id] = struct{}{}
			prev = current
			current = current.next
		}
	}

	n.next = current
	prev.next = n
	f.registry[n.id] = n
}

// visiblePositionToAnchor returns the elementID that new content at
// position should be inserted after: the ID of the position-th visible
// element, or the field's root sentinel if position is 0 or the field is
// still empty. Position beyond the visible length clamps to append at end.
func (f *field) visiblePositionToAnchor(position int) elementID {
	if position <= 0 {
		return rootID
	}
	anchor := rootID
	visible := 0
	for n := f.root.next; n != nil; n = n.next {
		if n.deleted {
			continue
		}
		anchor = n.id
		visible++
		if visible >= position {
			break
		}
	}
	return anchor
}

func (f *field) materialize() string {
	if !f.dirty && f.cached != "" {
		return f.cached
	}
	var sb []rune
	for n := f.root.next; n != nil; n = n.next {
		if !n.deleted {
			sb = append(sb, n.ch)
		}
	}
	f.cached = string(sb)
	f.dirty = false
	return f.cached
}

func (f *field) allTombstoned() bool {
	any := false
	for n := f.root.next; n != nil; n = n.next {
		any = true
		if !n.deleted {
			return false
		}
	}
	return any
}

// Snapshot returns field_id -> materialized string for rendering.
func (l *Layer) Snapshot() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]string, len(l.fields))
	for id, f := range l.fields {
		out[id] = f.materialize()
	}
	return out
}

// FieldCount returns the number of fields currently tracked (including
// fully-tombstoned ones not yet GC'd).
func (l *Layer) FieldCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fields)
}

// GCFields removes fields whose every element is tombstoned, then compacts
// the tombstone chain of each surviving field: any tombstoned node inserted
// before cutoff is unlinked and dropped from the registry, provided nothing
// still anchors off it. A tombstoned node that other nodes still anchor to
// is kept (as a placeholder for integrate's anchor lookup) even past cutoff,
// since dropping it would sever the positions of its still-live descendants.
// Returns the count of fully-removed fields.
func (l *Layer) GCFields(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cleaned := 0
	for id, f := range l.fields {
		if f.allTombstoned() {
			delete(l.fields, id)
			cleaned++
			continue
		}
		f.compactTombstones(cutoff)
	}
	return cleaned
}

// compactTombstones drops tombstoned nodes older than cutoff that no live or
// tombstoned node still anchors to, relinking around them in place.
func (f *field) compactTombstones(cutoff time.Time) {
	anchoredBy := make(map[elementID]int)
	for n := f.root.next; n != nil; n = n.next {
		anchoredBy[n.anchor]++
	}

	prev := f.root
	for n := f.root.next; n != nil; {
		next := n.next
		if n.deleted && n.insertedAt.Before(cutoff) && anchoredBy[n.id] == 0 {
			prev.next = next
			delete(f.registry, n.id)
		} else {
			prev = n
		}
		n = next
	}
}

// Cleanup releases all field state.
func (l *Layer) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fields = make(map[string]*field)
}

// FormattingRuns returns the resolved formatting for field_id as a sorted
// list of (position, TextFormat) pairs over the materialized (visible)
// sequence, for callers that need to render rich text rather than just
// plain content.
func (l *Layer) FormattingRuns(fieldID string) []PositionedFormat {
	l.mu.RLock()
	defer l.mu.RUnlock()

	f, ok := l.fields[fieldID]
	if !ok {
		return nil
	}

	var runs []PositionedFormat
	pos := 0
	for n := f.root.next; n != nil; n = n.next {
		if n.deleted {
			continue
		}
		if len(n.format) > 0 {
			runs = append(runs, PositionedFormat{Position: pos, Format: resolveFormat(n.format)})
		}
		pos++
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Position < runs[j].Position })
	return runs
}

// PositionedFormat pairs a materialized-text position with its resolved
// formatting attributes.
type PositionedFormat struct {
	Position int
	Format   types.TextFormat
}

func resolveFormat(m map[string]formatAttr) types.TextFormat {
	var out types.TextFormat
	if a, ok := m["bold"]; ok {
		v := a.value.(*bool)
		out.Bold = v
	}
	if a, ok := m["italic"]; ok {
		v := a.value.(*bool)
		out.Italic = v
	}
	if a, ok := m["underline"]; ok {
		v := a.value.(*bool)
		out.Underline = v
	}
	if a, ok := m["strikethrough"]; ok {
		v := a.value.(*bool)
		out.Strikethrough = v
	}
	if a, ok := m["color"]; ok {
		v := a.value.(*string)
		out.Color = v
	}
	if a, ok := m["background_color"]; ok {
		v := a.value.(*string)
		out.BackgroundColor = v
	}
	if a, ok := m["font_size"]; ok {
		v := a.value.(*float32)
		out.FontSize = v
	}
	if a, ok := m["font_family"]; ok {
		v := a.value.(*string)
		out.FontFamily = v
	}
	return out
}
