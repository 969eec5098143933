package dmr

import (
	"fmt"
	"strings"
)

// AtomicType is the element type of an atomic variable or attribute.
type AtomicType int

// Atomic types, named as they appear in a DMR document.
const (
	TypeInvalid AtomicType = iota
	Char
	Int8
	UInt8
	Int16
	UInt16
	Int32
	UInt32
	Int64
	UInt64
	Float32
	Float64
	String
	URL
	Opaque
)

var typeNames = [...]string{
	TypeInvalid: "Invalid",
	Char:        "Char",
	Int8:        "Int8",
	UInt8:       "UInt8",
	Int16:       "Int16",
	UInt16:      "UInt16",
	Int32:       "Int32",
	UInt32:      "UInt32",
	Int64:       "Int64",
	UInt64:      "UInt64",
	Float32:     "Float32",
	Float64:     "Float64",
	String:      "String",
	URL:         "URL",
	Opaque:      "Opaque",
}

// String returns the DMR element name of the type.
func (t AtomicType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("AtomicType(%d)", int(t))
	}
	return typeNames[t]
}

// Valid reports whether t is one of the defined atomic types.
func (t AtomicType) Valid() bool {
	return t > TypeInvalid && t <= Opaque
}

// Size returns the size in bytes of one element, or 0 when the size is
// not fixed (String, URL, Opaque).
func (t AtomicType) Size() int {
	switch t {
	case Char, Int8, UInt8:
		return 1
	case Int16, UInt16:
		return 2
	case Int32, UInt32, Float32:
		return 4
	case Int64, UInt64, Float64:
		return 8
	default:
		return 0
	}
}

// IsUnsigned reports whether t is an unsigned integer type.
func (t AtomicType) IsUnsigned() bool {
	switch t {
	case UInt8, UInt16, UInt32, UInt64:
		return true
	}
	return false
}

// IsIntegral reports whether t is a signed or unsigned integer type.
func (t AtomicType) IsIntegral() bool {
	switch t {
	case Int8, UInt8, Int16, UInt16, Int32, UInt32, Int64, UInt64:
		return true
	}
	return false
}

// IsFloat reports whether t is a floating-point type.
func (t AtomicType) IsFloat() bool {
	return t == Float32 || t == Float64
}

// ParseAtomicType returns the type named s. Matching is case-insensitive
// and accepts Byte as the DAP2 spelling of UInt8.
func ParseAtomicType(s string) (AtomicType, error) {
	if strings.EqualFold(s, "Byte") {
		return UInt8, nil
	}
	for t := Char; t <= Opaque; t++ {
		if strings.EqualFold(s, typeNames[t]) {
			return t, nil
		}
	}
	return TypeInvalid, fmt.Errorf("unknown atomic type %q", s)
}

// Sort identifies the kind of a schema node.
type Sort int

const (
	SortDataset Sort = iota + 1
	SortGroup
	SortDimension
	SortAtomic
	SortStructure
	SortSequence
)

func (s Sort) String() string {
	switch s {
	case SortDataset:
		return "Dataset"
	case SortGroup:
		return "Group"
	case SortDimension:
		return "Dimension"
	case SortAtomic:
		return "Atomic"
	case SortStructure:
		return "Structure"
	case SortSequence:
		return "Sequence"
	default:
		return fmt.Sprintf("Sort(%d)", int(s))
	}
}

// Attribute is a named, typed list of values attached to a group or
// variable. Values are kept in their textual DMR form.
type Attribute struct {
	Name   string
	Type   AtomicType
	Values []string
}
