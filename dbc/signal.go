package dbc

import (
	"iter"
	"maps"
	"math"
	"slices"
	"sort"
)

// Host float representation, checked once. Go mandates IEEE-754 so these
// hold on every supported platform.
var (
	hostFloatIEEE  = math.Float32bits(1.0) == 0x3f800000 && math.Float32bits(-2.5) == 0xc0200000
	hostDoubleIEEE = math.Float64bits(1.0) == 0x3ff0000000000000 && math.Float64bits(-2.5) == 0xc004000000000000
)

// SignalParams is the full set of SG_ metadata a Signal is built from.
type SignalParams struct {
	MessageSize            uint64
	Name                   string
	Multiplexer            Multiplexer
	MultiplexerSwitchValue uint64
	StartBit               uint64
	BitSize                uint64
	ByteOrder              ByteOrder
	ValueType              ValueType
	Factor                 float64
	Offset                 float64
	Minimum                float64
	Maximum                float64
	Unit                   string
	Receivers              []string
	AttributeValues        map[string]Attribute
	ValueDescriptions      map[int64]string
	Comment                string
	ExtendedValueType      ExtendedValueType
}

// Signal is an immutable signal descriptor. All methods are safe for
// concurrent use.
type Signal struct {
	name              string
	multiplexer       Multiplexer
	muxSwitchValue    uint64
	startBit          uint64
	bitSize           uint64
	byteOrder         ByteOrder
	valueType         ValueType
	factor            float64
	offset            float64
	minimum           float64
	maximum           float64
	unit              string
	receivers         []string
	attributes        map[string]Attribute
	valueDescriptions map[int64]string
	comment           string
	extendedValueType ExtendedValueType

	layout  layout
	extract extractFunc
	convert convertFunc
	insert  insertFunc
	errCode ErrorCode
}

// NewSignal validates p and precomputes the decode parameters. On failure it
// returns nil and a *SignalError carrying the ErrorCode.
func NewSignal(p SignalParams) (*Signal, error) {
	if code := validateSignal(p); code != NoError {
		return nil, &SignalError{Signal: p.Name, Code: code}
	}

	s := &Signal{
		name:              p.Name,
		multiplexer:       p.Multiplexer,
		muxSwitchValue:    p.MultiplexerSwitchValue,
		startBit:          p.StartBit,
		bitSize:           p.BitSize,
		byteOrder:         p.ByteOrder,
		valueType:         p.ValueType,
		factor:            p.Factor,
		offset:            p.Offset,
		minimum:           p.Minimum,
		maximum:           p.Maximum,
		unit:              p.Unit,
		receivers:         uniqueSorted(p.Receivers),
		attributes:        maps.Clone(p.AttributeValues),
		valueDescriptions: maps.Clone(p.ValueDescriptions),
		comment:           p.Comment,
		extendedValueType: p.ExtendedValueType,
		layout:            classify(p.StartBit, p.BitSize, p.ByteOrder),
	}
	s.extract = selectExtract(s.layout.class, s.byteOrder)
	s.insert = selectInsert(s.layout.class, s.byteOrder)
	s.convert = selectConvert(s.extendedValueType, s.valueType)
	if s.extract == nil || s.insert == nil || s.convert == nil {
		panic("dbc: no codec routine for " + s.layout.class.String() + "/" +
			s.byteOrder.String() + "/" + s.valueType.String() + "/" + s.extendedValueType.String())
	}
	s.errCode = NoError
	return s, nil
}

// validateSignal rejects malformed layouts outright. Of the remaining checks
// the last failing one is reported, so a float of the wrong width wins over a
// frame overflow.
func validateSignal(p SignalParams) ErrorCode {
	msgSize := p.MessageSize
	if msgSize < 8 {
		msgSize = 8
	}
	switch {
	case p.BitSize == 0 || p.BitSize > 64:
		return InvalidBitSize
	case p.ByteOrder != LittleEndian && p.ByteOrder != BigEndian,
		p.ValueType != Unsigned && p.ValueType != Signed,
		p.ExtendedValueType < Integer || p.ExtendedValueType > Double:
		return UnsupportedEncoding
	}
	code := NoError
	if exceedsFrame(p.StartBit, p.BitSize, p.ByteOrder, msgSize) {
		code = SignalExceedsMessageSize
	}
	switch {
	case p.ExtendedValueType == Float && p.BitSize != 32,
		p.ExtendedValueType == Double && p.BitSize != 64:
		code = WrongBitSizeForExtendedDataType
	}
	if p.ExtendedValueType == Float && !hostFloatIEEE {
		code = MachineFloatEncodingNotSupported
	}
	if p.ExtendedValueType == Double && !hostDoubleIEEE {
		code = MachineDoubleEncodingNotSupported
	}
	return code
}

func uniqueSorted(in []string) []string {
	out := slices.Clone(in)
	sort.Strings(out)
	return slices.Compact(out)
}

// Decode extracts the raw value of the signal from a frame. data should be at
// least as long as the owning message; missing bytes read as zero.
func (s *Signal) Decode(data []byte) float64 {
	return s.convert(&s.layout, s.extract(&s.layout, data))
}

// DecodePhysical is Decode followed by RawToPhysical.
func (s *Signal) DecodePhysical(data []byte) float64 {
	return s.RawToPhysical(s.Decode(data))
}

// Encode writes raw into the signal's bits of data and leaves every other bit
// untouched. Integer raw values are rounded and saturated to the field width.
func (s *Signal) Encode(data []byte, raw float64) {
	s.insert(&s.layout, data, rawBits(raw, s.bitSize, s.valueType, s.extendedValueType))
}

// EncodePhysical is PhysicalToRaw followed by Encode.
func (s *Signal) EncodePhysical(data []byte, physical float64) {
	s.Encode(data, s.PhysicalToRaw(physical))
}

// encodeClamped is EncodePhysical after clamping to [min, max] when that
// range is set.
func (s *Signal) encodeClamped(data []byte, physical float64) {
	if s.minimum < s.maximum {
		physical = clamp(physical, s.minimum, s.maximum)
	}
	s.EncodePhysical(data, physical)
}

// Clone returns an independent copy of the signal.
func (s *Signal) Clone() *Signal {
	c := *s
	c.receivers = slices.Clone(s.receivers)
	c.attributes = maps.Clone(s.attributes)
	c.valueDescriptions = maps.Clone(s.valueDescriptions)
	return &c
}

func (s *Signal) Name() string                         { return s.name }
func (s *Signal) Multiplexer() Multiplexer             { return s.multiplexer }
func (s *Signal) MultiplexerSwitchValue() uint64       { return s.muxSwitchValue }
func (s *Signal) StartBit() uint64                     { return s.startBit }
func (s *Signal) BitSize() uint64                      { return s.bitSize }
func (s *Signal) ByteOrder() ByteOrder                 { return s.byteOrder }
func (s *Signal) ValueType() ValueType                 { return s.valueType }
func (s *Signal) Factor() float64                      { return s.factor }
func (s *Signal) Offset() float64                      { return s.offset }
func (s *Signal) Minimum() float64                     { return s.minimum }
func (s *Signal) Maximum() float64                     { return s.maximum }
func (s *Signal) Unit() string                         { return s.unit }
func (s *Signal) Comment() string                      { return s.comment }
func (s *Signal) ExtendedValueType() ExtendedValueType { return s.extendedValueType }
func (s *Signal) ErrorCode() ErrorCode                 { return s.errCode }

func (s *Signal) HasReceiver(name string) bool {
	_, ok := slices.BinarySearch(s.receivers, name)
	return ok
}

// Receivers yields the receiving node names in sorted order.
func (s *Signal) Receivers() iter.Seq[string] {
	return slices.Values(s.receivers)
}

func (s *Signal) ValueDescription(raw int64) (string, bool) {
	d, ok := s.valueDescriptions[raw]
	return d, ok
}

// ValueDescriptions yields the value table ordered by raw value.
func (s *Signal) ValueDescriptions() iter.Seq2[int64, string] {
	return func(yield func(int64, string) bool) {
		for _, k := range slices.Sorted(maps.Keys(s.valueDescriptions)) {
			if !yield(k, s.valueDescriptions[k]) {
				return
			}
		}
	}
}

func (s *Signal) AttributeValue(name string) (Attribute, bool) {
	a, ok := s.attributes[name]
	return a, ok
}

func (s *Signal) FindAttributeValue(pred func(Attribute) bool) (Attribute, bool) {
	for _, k := range sortedKeys(s.attributes) {
		if a := s.attributes[k]; pred(a) {
			return a, true
		}
	}
	return Attribute{}, false
}

// AttributeValues yields the attribute values ordered by name.
func (s *Signal) AttributeValues() iter.Seq[Attribute] {
	return func(yield func(Attribute) bool) {
		for _, k := range sortedKeys(s.attributes) {
			if !yield(s.attributes[k]) {
				return
			}
		}
	}
}

// Equal compares the database content of two signals.
func (s *Signal) Equal(o *Signal) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.name == o.name &&
		s.multiplexer == o.multiplexer &&
		s.muxSwitchValue == o.muxSwitchValue &&
		s.startBit == o.startBit &&
		s.bitSize == o.bitSize &&
		s.byteOrder == o.byteOrder &&
		s.valueType == o.valueType &&
		s.factor == o.factor &&
		s.offset == o.offset &&
		s.minimum == o.minimum &&
		s.maximum == o.maximum &&
		s.unit == o.unit &&
		slices.Equal(s.receivers, o.receivers) &&
		maps.EqualFunc(s.attributes, o.attributes, func(a, b Attribute) bool { return a == b }) &&
		maps.Equal(s.valueDescriptions, o.valueDescriptions) &&
		s.comment == o.comment &&
		s.extendedValueType == o.extendedValueType
}
