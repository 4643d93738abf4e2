package dbc

import (
	"encoding/binary"
	"math"
)

// extractFunc pulls the field bits out of a frame, right aligned.
type extractFunc func(l *layout, data []byte) uint64

// convertFunc interprets right aligned field bits as a raw value.
type convertFunc func(l *layout, bits uint64) float64

var extractors = [3][2]extractFunc{
	withinFirst64Bits: {
		LittleEndian: extractWordLittle,
		BigEndian:    extractWordBig,
	},
	exceeds64ButFitsIn64: {
		LittleEndian: extractWordLittle,
		BigEndian:    extractWordBig,
	},
	exceeds64AndSpansTwoWords: {
		LittleEndian: extractSpanLittle,
		BigEndian:    extractSpanBig,
	},
}

var converters = [3][2]convertFunc{
	Integer: {
		Unsigned: convertUnsigned,
		Signed:   convertSigned,
	},
	Float: {
		Unsigned: convertFloat,
		Signed:   convertFloat,
	},
	Double: {
		Unsigned: convertDouble,
		Signed:   convertDouble,
	},
}

func selectExtract(class alignment, order ByteOrder) extractFunc {
	if int(class) >= len(extractors) || order < 0 || int(order) >= len(extractors[class]) {
		return nil
	}
	return extractors[class][order]
}

func selectConvert(ext ExtendedValueType, vt ValueType) convertFunc {
	if ext < 0 || int(ext) >= len(converters) || vt < 0 || int(vt) >= len(converters[ext]) {
		return nil
	}
	return converters[ext][vt]
}

// loadWord reads the 8 bytes at pos in the given byte order. Bytes past the
// end of data read as zero.
func loadWord(data []byte, pos uint64, order ByteOrder) uint64 {
	var buf [8]byte
	b := buf[:]
	if pos+8 <= uint64(len(data)) {
		b = data[pos : pos+8]
	} else if pos < uint64(len(data)) {
		copy(buf[:], data[pos:])
	}
	if order == BigEndian {
		return binary.BigEndian.Uint64(b)
	}
	return binary.LittleEndian.Uint64(b)
}

func loadByte(data []byte, pos uint64) uint64 {
	if pos < uint64(len(data)) {
		return uint64(data[pos])
	}
	return 0
}

func extractWordLittle(l *layout, data []byte) uint64 {
	return (loadWord(data, l.bytePos, LittleEndian) >> l.shift0) & l.mask
}

func extractWordBig(l *layout, data []byte) uint64 {
	return (loadWord(data, l.bytePos, BigEndian) >> l.shift0) & l.mask
}

func extractSpanLittle(l *layout, data []byte) uint64 {
	word := loadWord(data, l.bytePos, LittleEndian)
	last := loadByte(data, l.bytePos+8)
	return word>>l.shift0 | (last&l.mask)<<l.shift1
}

func extractSpanBig(l *layout, data []byte) uint64 {
	word := loadWord(data, l.bytePos, BigEndian)
	last := loadByte(data, l.bytePos+8)
	return (word&l.mask)<<l.shift0 | last>>l.shift1
}

func convertUnsigned(_ *layout, bits uint64) float64 {
	return float64(bits)
}

func convertSigned(l *layout, bits uint64) float64 {
	if bits&l.maskSigned != 0 {
		bits |= l.maskSigned
	}
	return float64(int64(bits))
}

func convertFloat(_ *layout, bits uint64) float64 {
	return float64(math.Float32frombits(uint32(bits)))
}

func convertDouble(_ *layout, bits uint64) float64 {
	return math.Float64frombits(bits)
}
