package dbc

import (
	"iter"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// extendedIDFlag marks 29-bit identifiers in DBC BO_ lines.
const extendedIDFlag = 0x80000000

type MessageParams struct {
	ID              uint32
	Extended        bool
	Name            string
	Size            uint64
	Transmitter     string
	Transmitters    []string
	Signals         []SignalParams
	AttributeValues map[string]Attribute
	Comment         string
	SignalGroups    []SignalGroup
}

// Message is an immutable BO_ definition owning its signals.
type Message struct {
	id           uint32
	extended     bool
	name         string
	size         uint64
	transmitter  string
	transmitters []string
	signals      []*Signal
	byName       map[string]*Signal
	muxSignal    *Signal
	attributes   map[string]Attribute
	comment      string
	groups       []SignalGroup
}

// NewMessage builds every signal against the message size. Any signal error
// aborts the whole message.
func NewMessage(p MessageParams) (*Message, error) {
	m := &Message{
		id:           p.ID,
		extended:     p.Extended,
		name:         p.Name,
		size:         p.Size,
		transmitter:  p.Transmitter,
		transmitters: uniqueSorted(p.Transmitters),
		signals:      make([]*Signal, 0, len(p.Signals)),
		byName:       make(map[string]*Signal, len(p.Signals)),
		attributes:   maps.Clone(p.AttributeValues),
		comment:      p.Comment,
		groups:       slices.Clone(p.SignalGroups),
	}

	hasMuxValue := false
	for _, sp := range p.Signals {
		sp.MessageSize = p.Size
		sig, err := NewSignal(sp)
		if err != nil {
			return nil, errors.Wrapf(err, "message %s (0x%X)", p.Name, p.ID)
		}
		if _, dup := m.byName[sig.Name()]; dup {
			return nil, &MessageError{Message: p.Name, Signal: sig.Name(), Code: DuplicateSignalName}
		}
		m.byName[sig.Name()] = sig
		m.signals = append(m.signals, sig)

		switch sig.Multiplexer() {
		case MuxSwitch:
			if m.muxSignal == nil {
				m.muxSignal = sig
			}
		case MuxValue:
			hasMuxValue = true
		}
	}
	if hasMuxValue && m.muxSignal == nil {
		return nil, &MessageError{Message: p.Name, Code: MuxValueWithoutMuxSignal}
	}
	return m, nil
}

func (m *Message) ID() uint32          { return m.id }
func (m *Message) IsExtended() bool    { return m.extended }
func (m *Message) Name() string        { return m.name }
func (m *Message) Size() uint64        { return m.size }
func (m *Message) Transmitter() string { return m.transmitter }
func (m *Message) Comment() string     { return m.comment }
func (m *Message) MuxSignal() *Signal  { return m.muxSignal }

func (m *Message) HasTransmitter(name string) bool {
	if name == m.transmitter {
		return true
	}
	_, ok := slices.BinarySearch(m.transmitters, name)
	return ok
}

// SignalByName returns nil when the message has no such signal.
func (m *Message) SignalByName(name string) *Signal {
	return m.byName[name]
}

func (m *Message) FindSignal(pred func(*Signal) bool) *Signal {
	for _, s := range m.signals {
		if pred(s) {
			return s
		}
	}
	return nil
}

// Signals yields the signals in declaration order.
func (m *Message) Signals() iter.Seq[*Signal] {
	return slices.Values(m.signals)
}

func (m *Message) NumSignals() int { return len(m.signals) }

func (m *Message) AttributeValue(name string) (Attribute, bool) {
	a, ok := m.attributes[name]
	return a, ok
}

func (m *Message) FindAttributeValue(pred func(Attribute) bool) (Attribute, bool) {
	for _, k := range sortedKeys(m.attributes) {
		if a := m.attributes[k]; pred(a) {
			return a, true
		}
	}
	return Attribute{}, false
}

// AttributeValues yields the attribute values ordered by name.
func (m *Message) AttributeValues() iter.Seq[Attribute] {
	return func(yield func(Attribute) bool) {
		for _, k := range sortedKeys(m.attributes) {
			if !yield(m.attributes[k]) {
				return
			}
		}
	}
}

// Transmitters yields the BO_TX_BU_ senders in sorted order. The BO_
// transmitter is not included.
func (m *Message) Transmitters() iter.Seq[string] {
	return slices.Values(m.transmitters)
}

func (m *Message) SignalGroups() iter.Seq[SignalGroup] {
	return slices.Values(m.groups)
}

// Clone returns an independent copy of the message and its signals.
func (m *Message) Clone() *Message {
	c := *m
	c.transmitters = slices.Clone(m.transmitters)
	c.signals = make([]*Signal, len(m.signals))
	c.byName = make(map[string]*Signal, len(m.signals))
	c.muxSignal = nil
	for i, s := range m.signals {
		cs := s.Clone()
		c.signals[i] = cs
		c.byName[cs.name] = cs
		if s == m.muxSignal {
			c.muxSignal = cs
		}
	}
	c.attributes = maps.Clone(m.attributes)
	c.groups = make([]SignalGroup, len(m.groups))
	for i, g := range m.groups {
		g.SignalNames = slices.Clone(g.SignalNames)
		c.groups[i] = g
	}
	return &c
}

// Equal compares the database content of two messages, signals included.
func (m *Message) Equal(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.id == o.id &&
		m.extended == o.extended &&
		m.name == o.name &&
		m.size == o.size &&
		m.transmitter == o.transmitter &&
		slices.Equal(m.transmitters, o.transmitters) &&
		slices.EqualFunc(m.signals, o.signals, (*Signal).Equal) &&
		maps.EqualFunc(m.attributes, o.attributes, func(a, b Attribute) bool { return a == b }) &&
		m.comment == o.comment &&
		slices.EqualFunc(m.groups, o.groups, func(a, b SignalGroup) bool {
			return a.Name == b.Name && a.Repetitions == b.Repetitions && slices.Equal(a.SignalNames, b.SignalNames)
		})
}

// active reports whether sig is present in a frame whose multiplexor decoded
// to muxRaw.
func (m *Message) active(sig *Signal, muxRaw float64) bool {
	if sig.multiplexer != MuxValue {
		return true
	}
	return m.muxSignal != nil && float64(sig.muxSwitchValue) == muxRaw
}

// DecodeInto calls fn with the physical value of every signal present in
// data, honouring multiplexing.
func (m *Message) DecodeInto(data []byte, fn func(sig *Signal, physical float64)) {
	var muxRaw float64
	if m.muxSignal != nil {
		muxRaw = m.muxSignal.Decode(data)
	}
	for _, s := range m.signals {
		if m.active(s, muxRaw) {
			fn(s, s.DecodePhysical(data))
		}
	}
}

// Decode returns the physical value of every signal present in data.
func (m *Message) Decode(data []byte) map[string]float64 {
	out := make(map[string]float64, len(m.signals))
	m.DecodeInto(data, func(sig *Signal, physical float64) {
		out[sig.name] = physical
	})
	return out
}

// Encode packs physical values into a new frame of Size bytes. Values are
// clamped to the signal's [min, max] when that range is set; signals missing
// from values, or multiplexed out by the switch value, stay zero. The switch
// is packed first and read back, so the multiplexed signals packed are the
// ones a decoder of the frame selects.
func (m *Message) Encode(values map[string]float64) []byte {
	out := make([]byte, m.size)
	var muxRaw float64
	if m.muxSignal != nil {
		if v, ok := values[m.muxSignal.name]; ok {
			m.muxSignal.encodeClamped(out, v)
			muxRaw = m.muxSignal.Decode(out)
		}
	}
	for _, s := range m.signals {
		v, ok := values[s.name]
		if !ok || s == m.muxSignal || !m.active(s, muxRaw) {
			continue
		}
		s.encodeClamped(out, v)
	}
	return out
}

// String renders the BO_ block with its SG_ lines.
func (m *Message) String() string {
	var b strings.Builder
	transmitter := m.transmitter
	if transmitter == "" {
		transmitter = noNode
	}
	b.WriteString("BO_ " + m.dbcID() + " " + m.name + ": " +
		strconv.FormatUint(m.size, 10) + " " + transmitter)
	for _, s := range m.signals {
		b.WriteString("\n " + s.String())
	}
	return b.String()
}

// dbcID is the identifier as written in DBC files, with the extended flag.
func (m *Message) dbcID() string {
	id := uint64(m.id)
	if m.extended {
		id |= extendedIDFlag
	}
	return strconv.FormatUint(id, 10)
}
