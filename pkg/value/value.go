// Package value implements the configuration values stored in parameter
// maps throughout the model.
//
// A Value is a closed variant: a plain string, a number with a unit, or the
// distinguished NothingSelected value. Maps that can hold "no selection"
// store NothingSelected instead of omitting the key.
package value

import (
	"fmt"
	"regexp"
)

// Kind enumerates the variants of Value.
type Kind int

const (
	KindString Kind = iota
	KindUnit
	KindNothingSelected
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindUnit:
		return "unit"
	case KindNothingSelected:
		return "nothing-selected"
	}
	return "unknown"
}

// NothingSelectedDisplay is shown for NothingSelected.
const NothingSelectedDisplay = "nothing selected"

// Value is a configuration value. The zero Value is the empty string.
type Value struct {
	kind    Kind
	raw     string
	display string
	number  string
	unit    string
}

// NothingSelected is the only value of KindNothingSelected.
var NothingSelected = Value{kind: KindNothingSelected, display: NothingSelectedDisplay}

// String creates a plain string value whose display form equals its raw form.
func String(raw string) Value {
	return Value{kind: KindString, raw: raw, display: raw}
}

// StringWithDisplay creates a string value with a separate display form, e.g.
// a handler script shown by a short description.
func StringWithDisplay(raw, display string) Value {
	if display == "" {
		display = raw
	}
	return Value{kind: KindString, raw: raw, display: display}
}

// WithUnit creates a number with a unit. The raw form is number directly
// followed by unit, as the vendor tools write it ("100M", "5s").
func WithUnit(number, unit string) Value {
	return Value{
		kind:    KindUnit,
		raw:     number + unit,
		display: number + unit,
		number:  number,
		unit:    unit,
	}
}

var unitRe = regexp.MustCompile(`^(-?\d+)([a-zA-Z]*)$`)

// Parse interprets raw as a unit value if it looks like a number followed by
// an optional unit, and as a string otherwise.
func Parse(raw string) Value {
	if m := unitRe.FindStringSubmatch(raw); m != nil && m[2] != "" {
		return WithUnit(m[1], m[2])
	}
	return String(raw)
}

func (v Value) Kind() Kind { return v.kind }

// Raw returns the form written into configuration files. NothingSelected has
// an empty raw form.
func (v Value) Raw() string { return v.raw }

// Display returns the human-readable form. It is never empty for
// NothingSelected.
func (v Value) Display() string { return v.display }

// Number returns the numeric part of a unit value.
func (v Value) Number() string { return v.number }

// Unit returns the unit of a unit value, or "".
func (v Value) Unit() string { return v.unit }

// IsNothingSelected reports whether v is the NothingSelected value.
func (v Value) IsNothingSelected() bool { return v.kind == KindNothingSelected }

// IsEmpty reports whether v carries no configuration value.
func (v Value) IsEmpty() bool { return v.kind == KindNothingSelected || v.raw == "" }

// Equal compares the raw forms and kinds; display forms are not compared.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.raw == o.raw
}

func (v Value) String() string { return v.display }

func (v Value) GoString() string {
	return fmt.Sprintf("value.Value{%s %q}", v.kind, v.raw)
}

// MarshalText writes the raw form.
func (v Value) MarshalText() ([]byte, error) { return []byte(v.raw), nil }
