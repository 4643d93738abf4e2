package dbc

import (
	"fmt"
	"sort"
)

type ByteOrder int

const (
	LittleEndian ByteOrder = iota // Intel, "@1" in DBC
	BigEndian                     // Motorola, "@0" in DBC
)

func (b ByteOrder) String() string {
	switch b {
	case LittleEndian:
		return "little"
	case BigEndian:
		return "big"
	default:
		return "unknown"
	}
}

type ValueType int

const (
	Unsigned ValueType = iota
	Signed
)

func (v ValueType) String() string {
	switch v {
	case Unsigned:
		return "unsigned"
	case Signed:
		return "signed"
	default:
		return "unknown"
	}
}

// ExtendedValueType is the SIG_VALTYPE_ of a signal.
type ExtendedValueType int

const (
	Integer ExtendedValueType = iota
	Float
	Double
)

func (e ExtendedValueType) String() string {
	switch e {
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Double:
		return "double"
	default:
		return "unknown"
	}
}

// Multiplexer is the multiplexing role of a signal within its message.
type Multiplexer int

const (
	MuxNone   Multiplexer = iota
	MuxSwitch             // "M": the signal selects which multiplexed signals are present
	MuxValue              // "m<n>": present only while the switch equals n
)

func (m Multiplexer) String() string {
	switch m {
	case MuxNone:
		return "none"
	case MuxSwitch:
		return "switch"
	case MuxValue:
		return "value"
	default:
		return "unknown"
	}
}

// Attribute is a named BA_ value attached to a database object. Value holds
// an int64, float64 or string.
type Attribute struct {
	Name  string
	Value any
}

func (a Attribute) String() string {
	if s, ok := a.Value.(string); ok {
		return fmt.Sprintf("%s=%q", a.Name, s)
	}
	return fmt.Sprintf("%s=%v", a.Name, a.Value)
}

// SignalGroup is a SIG_GROUP_ definition of a message.
type SignalGroup struct {
	Name        string
	Repetitions uint64
	SignalNames []string
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
