package dap4

import (
	"fmt"

	"github.com/robert-malhotra/go-dap4/dap4/dmr"
)

// DataSort classifies what a data node is, for dispatch by consumers.
type DataSort int

const (
	SortDataset DataSort = iota + 1
	SortAtomic
	SortStructure
	SortSequence
	SortRecord
	SortCompoundArray
)

func (s DataSort) String() string {
	switch s {
	case SortDataset:
		return "DATASET"
	case SortAtomic:
		return "ATOMIC"
	case SortStructure:
		return "STRUCTURE"
	case SortSequence:
		return "SEQUENCE"
	case SortRecord:
		return "RECORD"
	case SortCompoundArray:
		return "COMPOUNDARRAY"
	default:
		return fmt.Sprintf("DataSort(%d)", int(s))
	}
}

// Scheme is the fixed role of a cursor. It decides which cursor
// operations are legal and never changes after the cursor is created.
type Scheme int

const (
	SchemeAtomic Scheme = iota + 1
	SchemeStructure
	SchemeSequence
	SchemeRecord
	SchemeStructArray
	SchemeSeqArray
)

func (s Scheme) String() string {
	switch s {
	case SchemeAtomic:
		return "ATOMIC"
	case SchemeStructure:
		return "STRUCTURE"
	case SchemeSequence:
		return "SEQUENCE"
	case SchemeRecord:
		return "RECORD"
	case SchemeStructArray:
		return "STRUCTARRAY"
	case SchemeSeqArray:
		return "SEQARRAY"
	default:
		return fmt.Sprintf("Scheme(%d)", int(s))
	}
}

// Sort maps a scheme to the data sort of the node it addresses.
func (s Scheme) Sort() DataSort {
	switch s {
	case SchemeAtomic:
		return SortAtomic
	case SchemeStructure:
		return SortStructure
	case SchemeSequence:
		return SortSequence
	case SchemeRecord:
		return SortRecord
	case SchemeStructArray, SchemeSeqArray:
		return SortCompoundArray
	}
	return 0
}

// IsCompoundArray reports whether s addresses an array of structures or
// sequences.
func (s Scheme) IsCompoundArray() bool {
	return s == SchemeStructArray || s == SchemeSeqArray
}

// SchemeFor returns the scheme of a cursor over the whole of v.
func SchemeFor(v *dmr.Variable) (Scheme, error) {
	switch v.Sort() {
	case dmr.SortAtomic:
		return SchemeAtomic, nil
	case dmr.SortStructure:
		if v.Rank() == 0 {
			return SchemeStructure, nil
		}
		return SchemeStructArray, nil
	case dmr.SortSequence:
		if v.Rank() == 0 {
			return SchemeSequence, nil
		}
		return SchemeSeqArray, nil
	}
	return 0, fmt.Errorf("variable %s has no data scheme (sort %v)", v.FQN(), v.Sort())
}

// elementScheme is the scheme of one element of a compound array.
func elementScheme(s Scheme) Scheme {
	if s == SchemeSeqArray {
		return SchemeSequence
	}
	return SchemeStructure
}

// op is a cursor operation for the legality table.
type op uint8

const (
	opRead op = 1 << iota
	opReadIndex
	opRecordCount
	opRecord
	opField
)

func (o op) String() string {
	switch o {
	case opRead:
		return "read"
	case opReadIndex:
		return "read index"
	case opRecordCount:
		return "record count"
	case opRecord:
		return "record"
	case opField:
		return "field"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

var legal = map[Scheme]op{
	SchemeAtomic:      opRead | opReadIndex,
	SchemeStructure:   opField,
	SchemeRecord:      opField,
	SchemeSequence:    opRecordCount | opRecord,
	SchemeStructArray: opRead | opReadIndex,
	SchemeSeqArray:    opRead | opReadIndex,
}

// allows reports whether an operation is legal on a cursor of scheme s.
func (s Scheme) allows(o op) bool {
	return legal[s]&o != 0
}
