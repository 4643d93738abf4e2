package dbc

import (
	"encoding/binary"
	"math"
	"slices"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
)

func TestSignal_DecodeIntel(t *testing.T) {
	s := mustSignal(t, SignalParams{Name: "u8", BitSize: 8})
	data := []byte{0xFF, 0, 0, 0, 0, 0, 0, 0}
	assert.Equal(t, 255.0, s.Decode(data))
	assert.Equal(t, NoError, s.ErrorCode())
}

func TestSignal_DecodeSigned(t *testing.T) {
	s := mustSignal(t, SignalParams{Name: "i8", BitSize: 8, ValueType: Signed})
	assert.Equal(t, -1.0, s.Decode([]byte{0xFF, 0, 0, 0, 0, 0, 0, 0}))
	assert.Equal(t, 127.0, s.Decode([]byte{0x7F, 0, 0, 0, 0, 0, 0, 0}))
	assert.Equal(t, -128.0, s.Decode([]byte{0x80, 0, 0, 0, 0, 0, 0, 0}))

	wide := mustSignal(t, SignalParams{Name: "i64", BitSize: 64, ValueType: Signed})
	assert.Equal(t, -2.0, wide.Decode([]byte{0xFE, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}))
}

func TestSignal_MotorolaDiffersFromIntel(t *testing.T) {
	data := []byte{0x12, 0x34, 0, 0, 0, 0, 0, 0}
	intel := mustSignal(t, SignalParams{Name: "le", StartBit: 0, BitSize: 16})
	motorola := mustSignal(t, SignalParams{Name: "be", StartBit: 7, BitSize: 16, ByteOrder: BigEndian})
	assert.Equal(t, float64(0x3412), intel.Decode(data))
	assert.Equal(t, float64(0x1234), motorola.Decode(data))

	// same nominal start bit, different numbering
	sameStart := mustSignal(t, SignalParams{Name: "be0", StartBit: 0, BitSize: 16, ByteOrder: BigEndian})
	assert.NotEqual(t, intel.Decode(data), sameStart.Decode(data))
}

func TestSignal_AgreesWithEinrideData(t *testing.T) {
	var data can.Data
	copy(data[:], []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x23, 0x45, 0x67})
	for _, tt := range []struct {
		start, size uint8
	}{
		{0, 8}, {4, 12}, {13, 7}, {20, 32}, {7, 64}, {39, 17}, {0, 64},
	} {
		le := SignalParams{Name: "le", StartBit: uint64(tt.start), BitSize: uint64(tt.size)}
		if !exceedsFrame(le.StartBit, le.BitSize, LittleEndian, 8) {
			s := mustSignal(t, le)
			assert.Equal(t, data.UnsignedBitsLittleEndian(tt.start, tt.size), s.extract(&s.layout, data[:]),
				"intel %d|%d", tt.start, tt.size)
		}
		be := SignalParams{Name: "be", StartBit: uint64(tt.start), BitSize: uint64(tt.size), ByteOrder: BigEndian}
		if !exceedsFrame(be.StartBit, be.BitSize, BigEndian, 8) {
			s := mustSignal(t, be)
			assert.Equal(t, data.UnsignedBitsBigEndian(tt.start, tt.size), s.extract(&s.layout, data[:]),
				"motorola %d|%d", tt.start, tt.size)
		}
	}
}

func TestSignal_FloatWidth(t *testing.T) {
	_, err := NewSignal(SignalParams{Name: "f16", BitSize: 16, ExtendedValueType: Float})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWrongBitSizeForExtendedDataType))
	assert.Equal(t, WrongBitSizeForExtendedDataType, ErrorCodeOf(err))

	_, err = NewSignal(SignalParams{Name: "d32", BitSize: 32, ExtendedValueType: Double})
	assert.True(t, errors.Is(err, ErrWrongBitSizeForExtendedDataType))
}

func TestSignal_FloatAtEveryIntelOffset(t *testing.T) {
	for start := uint64(0); start <= 32; start++ {
		s := mustSignal(t, SignalParams{Name: "f", StartBit: start, BitSize: 32, ExtendedValueType: Float})
		data := make([]byte, 8)
		binary.LittleEndian.PutUint64(data, uint64(math.Float32bits(1.0))<<start)
		assert.Equal(t, 1.0, s.Decode(data), "start %d", start)
	}
}

func TestSignal_FloatMotorolaAndExtendedFrame(t *testing.T) {
	for k := uint64(0); k <= 4; k++ {
		s := mustSignal(t, SignalParams{Name: "f", StartBit: 8*k + 7, BitSize: 32,
			ByteOrder: BigEndian, ExtendedValueType: Float})
		data := make([]byte, 8)
		binary.BigEndian.PutUint32(data[k:], math.Float32bits(-2.5))
		assert.Equal(t, -2.5, s.Decode(data), "byte %d", k)
	}

	s := mustSignal(t, SignalParams{MessageSize: 16, Name: "f", StartBit: 76, BitSize: 32,
		ExtendedValueType: Float})
	assert.Equal(t, exceeds64ButFitsIn64, s.layout.class)
	data := make([]byte, 16)
	binary.LittleEndian.PutUint64(data[8:], uint64(math.Float32bits(0.15625))<<12)
	assert.Equal(t, 0.15625, s.Decode(data))
}

func TestSignal_Double(t *testing.T) {
	for _, order := range []ByteOrder{LittleEndian, BigEndian} {
		start := uint64(0)
		if order == BigEndian {
			start = 7
		}
		s := mustSignal(t, SignalParams{Name: "d", StartBit: start, BitSize: 64, ByteOrder: order, ExtendedValueType: Double})
		data := make([]byte, 8)
		s.Encode(data, math.Pi)
		assert.Equal(t, math.Pi, s.Decode(data), "%s", order)
	}
}

func TestSignal_FrameBoundary(t *testing.T) {
	_, err := NewSignal(SignalParams{MessageSize: 8, Name: "last", StartBit: 56, BitSize: 8})
	require.NoError(t, err)

	_, err = NewSignal(SignalParams{MessageSize: 8, Name: "over", StartBit: 57, BitSize: 8})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSignalExceedsMessageSize))

	// declared sizes below 8 are treated as a full classic frame
	_, err = NewSignal(SignalParams{MessageSize: 2, Name: "short", StartBit: 0, BitSize: 64})
	require.NoError(t, err)

	_, err = NewSignal(SignalParams{MessageSize: 12, Name: "fd", StartBit: 88, BitSize: 8})
	require.NoError(t, err)
	_, err = NewSignal(SignalParams{MessageSize: 12, Name: "fd", StartBit: 89, BitSize: 8})
	assert.True(t, errors.Is(err, ErrSignalExceedsMessageSize))
}

func TestSignal_Bytes7To9(t *testing.T) {
	s := mustSignal(t, SignalParams{MessageSize: 10, Name: "x", StartBit: 60, BitSize: 20})
	data := make([]byte, 10)
	data[7], data[8], data[9] = 0xA0, 0xBC, 0x0D
	assert.Equal(t, float64(0xDBCA), s.Decode(data))
}

func TestSignal_TwoWordSpan(t *testing.T) {
	data := make([]byte, 16)
	copy(data[7:], []byte{0x10, 0x32, 0x54, 0x76, 0x98, 0xBA, 0xDC, 0xFE, 0x0F})

	intel := mustSignal(t, SignalParams{MessageSize: 16, Name: "le", StartBit: 60, BitSize: 64})
	require.Equal(t, exceeds64AndSpansTwoWords, intel.layout.class)
	assert.Equal(t, uint64(0xFFEDCBA987654321), intel.extract(&intel.layout, data))

	data = make([]byte, 16)
	copy(data[7:], []byte{0x0A, 0xBC, 0xDE, 0xF0, 0x12, 0x34, 0x56, 0x78, 0x90})
	motorola := mustSignal(t, SignalParams{MessageSize: 16, Name: "be", StartBit: 59, BitSize: 64, ByteOrder: BigEndian})
	require.Equal(t, exceeds64AndSpansTwoWords, motorola.layout.class)
	assert.Equal(t, uint64(0xABCDEF0123456789), motorola.extract(&motorola.layout, data))
}

func TestSignal_ShortBufferReadsZero(t *testing.T) {
	s := mustSignal(t, SignalParams{MessageSize: 8, Name: "hi", StartBit: 48, BitSize: 16})
	assert.Equal(t, 0.0, s.Decode([]byte{0xFF, 0xFF}))
	assert.Equal(t, 0.0, s.Decode(nil))
}

func TestSignal_ConcurrentDecode(t *testing.T) {
	s := mustSignal(t, SignalParams{MessageSize: 16, Name: "x", StartBit: 60, BitSize: 64, ValueType: Signed})

	frames := make([][]byte, 8)
	want := make([]float64, len(frames))
	for i := range frames {
		frames[i] = make([]byte, 16)
		for j := range frames[i] {
			frames[i][j] = byte(i*31 + j*7)
		}
		want[i] = s.Decode(frames[i])
	}

	got := make([][]float64, len(frames))
	var wg sync.WaitGroup
	for i := range frames {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; n < 1000; n++ {
				got[i] = append(got[i], s.Decode(frames[i]))
			}
		}(i)
	}
	wg.Wait()

	for i := range frames {
		for _, v := range got[i] {
			require.Equal(t, want[i], v, "frame %d", i)
		}
	}
}

func TestSignal_Validation(t *testing.T) {
	tests := []struct {
		name string
		p    SignalParams
		want ErrorCode
		is   error
	}{
		{"zero width", SignalParams{BitSize: 0}, InvalidBitSize, ErrInvalidBitSize},
		{"too wide", SignalParams{BitSize: 65}, InvalidBitSize, ErrInvalidBitSize},
		{"bad byte order", SignalParams{BitSize: 8, ByteOrder: ByteOrder(7)}, UnsupportedEncoding, ErrUnsupportedEncoding},
		{"bad value type", SignalParams{BitSize: 8, ValueType: ValueType(-1)}, UnsupportedEncoding, ErrUnsupportedEncoding},
		{"bad extended type", SignalParams{BitSize: 8, ExtendedValueType: ExtendedValueType(3)}, UnsupportedEncoding, ErrUnsupportedEncoding},
		{"outside frame", SignalParams{StartBit: 60, BitSize: 8}, SignalExceedsMessageSize, ErrSignalExceedsMessageSize},
		{"short double", SignalParams{BitSize: 32, ExtendedValueType: Double}, WrongBitSizeForExtendedDataType, ErrWrongBitSizeForExtendedDataType},
		// the float width check is reported over the frame check
		{"float outside frame", SignalParams{StartBit: 56, BitSize: 16, ExtendedValueType: Float}, WrongBitSizeForExtendedDataType, ErrWrongBitSizeForExtendedDataType},
		{"float fits but exceeds frame", SignalParams{StartBit: 40, BitSize: 32, ExtendedValueType: Float}, SignalExceedsMessageSize, ErrSignalExceedsMessageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.p.Name = "bad"
			s, err := NewSignal(tt.p)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.Equal(t, tt.want, ErrorCodeOf(err))
			assert.True(t, errors.Is(err, tt.is))

			var se *SignalError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, "bad", se.Signal)
		})
	}
}

func TestSignal_Scaling(t *testing.T) {
	for _, tt := range []struct{ factor, offset float64 }{
		{1, 0}, {0.1, -40}, {0.001, 0}, {-2.5, 100}, {3, 1e6},
	} {
		s := mustSignal(t, SignalParams{Name: "s", BitSize: 16, Factor: tt.factor, Offset: tt.offset})
		for _, raw := range []float64{0, 1, -1, 255, 65535, -32768, 12345.678} {
			phys := s.RawToPhysical(raw)
			assert.Equal(t, raw*tt.factor+tt.offset, phys)
			assert.InDelta(t, raw, s.PhysicalToRaw(phys), 1e-6*math.Max(1, math.Abs(raw)),
				"factor=%g offset=%g raw=%g", tt.factor, tt.offset, raw)
		}
	}
}

func TestSignal_ZeroFactor(t *testing.T) {
	s := mustSignal(t, SignalParams{Name: "s", BitSize: 8, Factor: 0, Offset: 2})
	assert.True(t, math.IsInf(s.PhysicalToRaw(5), 1))
	assert.True(t, math.IsInf(s.PhysicalToRaw(-5), -1))
	assert.True(t, math.IsNaN(s.PhysicalToRaw(2)))
}

func TestSignal_Metadata(t *testing.T) {
	s := mustSignal(t, SignalParams{
		Name:      "Gear",
		BitSize:   4,
		Receivers: []string{"TCU", "ABS", "TCU"},
		ValueDescriptions: map[int64]string{
			2: "Drive", 0: "Park", 1: "Reverse",
		},
		AttributeValues: map[string]Attribute{
			"GenSigStartValue": {Name: "GenSigStartValue", Value: 0.0},
			"SPN":              {Name: "SPN", Value: int64(523)},
		},
		Comment: "selected gear",
	})

	assert.Equal(t, []string{"ABS", "TCU"}, slices.Collect(s.Receivers()))
	assert.True(t, s.HasReceiver("TCU"))
	assert.False(t, s.HasReceiver("ECU"))

	var keys []int64
	for k := range s.ValueDescriptions() {
		keys = append(keys, k)
	}
	assert.Equal(t, []int64{0, 1, 2}, keys)
	d, ok := s.ValueDescription(1)
	assert.True(t, ok)
	assert.Equal(t, "Reverse", d)
	_, ok = s.ValueDescription(9)
	assert.False(t, ok)

	a, ok := s.AttributeValue("SPN")
	require.True(t, ok)
	assert.Equal(t, int64(523), a.Value)
	a, ok = s.FindAttributeValue(func(a Attribute) bool { _, isInt := a.Value.(int64); return isInt })
	require.True(t, ok)
	assert.Equal(t, "SPN", a.Name)

	var names []string
	for a := range s.AttributeValues() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"GenSigStartValue", "SPN"}, names)
	assert.Equal(t, "selected gear", s.Comment())
}

func TestSignal_CloneAndEqual(t *testing.T) {
	p := SignalParams{
		Name: "Speed", StartBit: 8, BitSize: 16, Factor: 0.1,
		Receivers:         []string{"ECU"},
		ValueDescriptions: map[int64]string{0: "stopped"},
	}
	s := mustSignal(t, p)
	c := s.Clone()
	assert.True(t, s.Equal(c))
	assert.NotSame(t, s, c)

	p.Factor = 0.2
	other := mustSignal(t, p)
	assert.False(t, s.Equal(other))
	assert.False(t, s.Equal(nil))
	assert.True(t, (*Signal)(nil).Equal(nil))
}

func TestSignal_String(t *testing.T) {
	s := mustSignal(t, SignalParams{
		Name: "Speed", StartBit: 0, BitSize: 16, Factor: 0.1, Maximum: 6553.5,
		Unit: "km/h", Receivers: []string{"ECU", "ABS"},
	})
	assert.Equal(t, `SG_ Speed : 0|16@1+ (0.1,0) [0|6553.5] "km/h" ABS,ECU`, s.String())

	mux := mustSignal(t, SignalParams{
		Name: "Temp", Multiplexer: MuxValue, MultiplexerSwitchValue: 2,
		StartBit: 15, BitSize: 8, ByteOrder: BigEndian, ValueType: Signed,
		Factor: 1, Offset: -40, Minimum: -40, Maximum: 215,
	})
	assert.Equal(t, `SG_ Temp m2 : 15|8@0- (1,-40) [-40|215] "" Vector__XXX`, mux.String())
}
