package types

import (
	"time"
)

// TemplateValueKind discriminates the TemplateValue tagged variant.
type TemplateValueKind string

const (
	// TemplateValueText is a simple text value.
	TemplateValueText TemplateValueKind = "text"
	// TemplateValueRichText references a field in the text layer by its
	// field_id; the actual content lives in text.Layer, not here.
	TemplateValueRichText TemplateValueKind = "rich_text"
	// TemplateValueStructured holds schemaless structured data.
	TemplateValueStructured TemplateValueKind = "structured"
	// TemplateValueReference points at another Codex.
	TemplateValueReference TemplateValueKind = "reference"
	// TemplateValueList is an id-keyed collection of entries.
	TemplateValueList TemplateValueKind = "list"
	// TemplateValueMap is a string-keyed collection of entries.
	TemplateValueMap TemplateValueKind = "map"
)

// TemplateValue is a tagged variant over the value kinds a metadata entry
// may hold. Every leaf carries the (timestamp, user_id) pair the LWW map
// needs for conflict resolution; List/Map entries carry their own
// (timestamp, user_id) pair per nested entry.
type TemplateValue struct {
	Kind TemplateValueKind `json:"type" msgpack:"type"`

	// Text / RichText
	Text string `json:"value,omitempty" msgpack:"value,omitempty"`

	// Structured: arbitrary JSON-compatible payload.
	Structured any `json:"structured,omitempty" msgpack:"structured,omitempty"`

	// Reference
	CodexRef CodexID `json:"codex_id,omitempty" msgpack:"codex_id,omitempty"`

	// List / Map: nested entries, each with its own provenance.
	ListItems map[string]TemplateValueEntry `json:"items,omitempty" msgpack:"items,omitempty"`
	MapItems  map[string]TemplateValueEntry `json:"entries,omitempty" msgpack:"entries,omitempty"`

	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
	UserID    UserID    `json:"user_id" msgpack:"user_id"`
}

// TemplateValueEntry is a single nested value inside a List or Map
// TemplateValue, carrying its own provenance for independent conflict
// resolution.
type TemplateValueEntry struct {
	Value     TemplateValue `json:"value" msgpack:"value"`
	Timestamp time.Time     `json:"timestamp" msgpack:"timestamp"`
	UserID    UserID        `json:"user_id" msgpack:"user_id"`
}

// NewTextValue builds a Text-kind TemplateValue.
func NewTextValue(value string, ts time.Time, user UserID) TemplateValue {
	return TemplateValue{Kind: TemplateValueText, Text: value, Timestamp: ts, UserID: user}
}

// NewRichTextValue builds a RichText-kind TemplateValue referencing a text
// layer field_id.
func NewRichTextValue(fieldID string, ts time.Time, user UserID) TemplateValue {
	return TemplateValue{Kind: TemplateValueRichText, Text: fieldID, Timestamp: ts, UserID: user}
}

// NewStructuredValue builds a Structured-kind TemplateValue.
func NewStructuredValue(value any, ts time.Time, user UserID) TemplateValue {
	return TemplateValue{Kind: TemplateValueStructured, Structured: value, Timestamp: ts, UserID: user}
}

// NewReferenceValue builds a Reference-kind TemplateValue.
func NewReferenceValue(codexID CodexID, ts time.Time, user UserID) TemplateValue {
	return TemplateValue{Kind: TemplateValueReference, CodexRef: codexID, Timestamp: ts, UserID: user}
}

// ReferenceType classifies a cross-document reference between two Codices.
type ReferenceType struct {
	// Kind is one of "child", "depends_on", "references", "related", or
	// "custom". Custom carries its label in Custom.
	Kind   string `json:"kind" msgpack:"kind"`
	Custom string `json:"custom,omitempty" msgpack:"custom,omitempty"`
}

// MaxCustomReferenceTypeLen bounds ReferenceType.Custom: the original source
// does not constrain the string, so this reimplementation imposes a limit
// (see spec §9 Open Questions) to keep reference tags from growing without
// bound.
const MaxCustomReferenceTypeLen = 64

var (
	ReferenceTypeChild      = ReferenceType{Kind: "child"}
	ReferenceTypeDependsOn  = ReferenceType{Kind: "depends_on"}
	ReferenceTypeReferences = ReferenceType{Kind: "references"}
	ReferenceTypeRelated    = ReferenceType{Kind: "related"}
)

// NewCustomReferenceType builds a Custom reference type, truncating label
// to MaxCustomReferenceTypeLen bytes if necessary.
func NewCustomReferenceType(label string) ReferenceType {
	if len(label) > MaxCustomReferenceTypeLen {
		label = label[:MaxCustomReferenceTypeLen]
	}
	return ReferenceType{Kind: "custom", Custom: label}
}

// CodexReference is a single cross-document reference element, as stored
// in the reference layer's OR-set.
type CodexReference struct {
	FromCodexID   CodexID       `json:"from_codex_id" msgpack:"from_codex_id"`
	ToCodexID     CodexID       `json:"to_codex_id" msgpack:"to_codex_id"`
	ReferenceType ReferenceType `json:"reference_type" msgpack:"reference_type"`
	Context       *string       `json:"context,omitempty" msgpack:"context,omitempty"`
}

// Key returns a comparable identity for the reference, with Context folded
// to its string value (empty when nil), so it can be used as a Go map key
// (CodexReference itself may not be, since it contains a pointer field).
func (r CodexReference) Key() CodexReferenceKey {
	ctx := ""
	if r.Context != nil {
		ctx = *r.Context
	}
	return CodexReferenceKey{
		FromCodexID: r.FromCodexID,
		ToCodexID:   r.ToCodexID,
		ReferenceType: r.ReferenceType,
		Context:     ctx,
	}
}

// CodexReferenceKey is the comparable (map-key-safe) projection of a
// CodexReference.
type CodexReferenceKey struct {
	FromCodexID   CodexID
	ToCodexID     CodexID
	ReferenceType ReferenceType
	Context       string
}

// TextFormat carries the formatting attributes applicable to a run of text.
// Each attribute resolves independently under last-writer-wins by the
// applying operation's timestamp; concurrent formats compose attribute-wise
// (see spec §4.2).
type TextFormat struct {
	Bold            *bool    `json:"bold,omitempty" msgpack:"bold,omitempty"`
	Italic          *bool    `json:"italic,omitempty" msgpack:"italic,omitempty"`
	Underline       *bool    `json:"underline,omitempty" msgpack:"underline,omitempty"`
	Strikethrough   *bool    `json:"strikethrough,omitempty" msgpack:"strikethrough,omitempty"`
	Color           *string  `json:"color,omitempty" msgpack:"color,omitempty"`
	BackgroundColor *string  `json:"background_color,omitempty" msgpack:"background_color,omitempty"`
	FontSize        *float32 `json:"font_size,omitempty" msgpack:"font_size,omitempty"`
	FontFamily      *string  `json:"font_family,omitempty" msgpack:"font_family,omitempty"`
}

// FieldType enumerates the kinds of fields a Template can define.
type FieldType string

const (
	FieldTypeText      FieldType = "text"
	FieldTypeRichText  FieldType = "rich_text"
	FieldTypeStructured FieldType = "structured"
)

// FieldDefault is the optional default value for a template field, kept as
// a small closed variant distinct from TemplateValue since templates are
// defined before any (timestamp, user_id) provenance exists.
type FieldDefault struct {
	Text     *string
	Number   *float64
	Boolean  *bool
	DateTime *time.Time
}

// FieldDefinition describes one field of a Template.
type FieldDefinition struct {
	Name         string
	Type         FieldType
	DefaultValue *FieldDefault
}

// Template is the pure schema a Codex can be initialized from. Template
// validation (turning a Template into the initial metadata layer state) is
// a pure function over these types — see crdt.NewWithTemplate.
type Template struct {
	ID     string
	Fields []FieldDefinition
}
