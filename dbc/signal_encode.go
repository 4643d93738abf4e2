package dbc

import (
	"encoding/binary"
	"math"
)

// insertFunc writes right aligned field bits into a frame, leaving all other
// bits untouched. It is the inverse of the extractFunc of the same class.
type insertFunc func(l *layout, data []byte, bits uint64)

var inserters = [3][2]insertFunc{
	withinFirst64Bits: {
		LittleEndian: insertWordLittle,
		BigEndian:    insertWordBig,
	},
	exceeds64ButFitsIn64: {
		LittleEndian: insertWordLittle,
		BigEndian:    insertWordBig,
	},
	exceeds64AndSpansTwoWords: {
		LittleEndian: insertSpanLittle,
		BigEndian:    insertSpanBig,
	},
}

func selectInsert(class alignment, order ByteOrder) insertFunc {
	if int(class) >= len(inserters) || order < 0 || int(order) >= len(inserters[class]) {
		return nil
	}
	return inserters[class][order]
}

// storeWord writes word at pos in the given byte order. Bytes past the end of
// data are dropped.
func storeWord(data []byte, pos uint64, order ByteOrder, word uint64) {
	var buf [8]byte
	b := buf[:]
	direct := pos+8 <= uint64(len(data))
	if direct {
		b = data[pos : pos+8]
	}
	if order == BigEndian {
		binary.BigEndian.PutUint64(b, word)
	} else {
		binary.LittleEndian.PutUint64(b, word)
	}
	if !direct && pos < uint64(len(data)) {
		copy(data[pos:], buf[:])
	}
}

func storeByte(data []byte, pos uint64, v uint64) {
	if pos < uint64(len(data)) {
		data[pos] = byte(v)
	}
}

func insertWordLittle(l *layout, data []byte, bits uint64) {
	word := loadWord(data, l.bytePos, LittleEndian)
	word = word&^(l.mask<<l.shift0) | (bits&l.mask)<<l.shift0
	storeWord(data, l.bytePos, LittleEndian, word)
}

func insertWordBig(l *layout, data []byte, bits uint64) {
	word := loadWord(data, l.bytePos, BigEndian)
	word = word&^(l.mask<<l.shift0) | (bits&l.mask)<<l.shift0
	storeWord(data, l.bytePos, BigEndian, word)
}

func insertSpanLittle(l *layout, data []byte, bits uint64) {
	word := loadWord(data, l.bytePos, LittleEndian)
	word = word&^(^uint64(0)<<l.shift0) | bits<<l.shift0
	storeWord(data, l.bytePos, LittleEndian, word)

	last := loadByte(data, l.bytePos+8)
	last = last&^l.mask | (bits>>l.shift1)&l.mask
	storeByte(data, l.bytePos+8, last)
}

func insertSpanBig(l *layout, data []byte, bits uint64) {
	word := loadWord(data, l.bytePos, BigEndian)
	word = word&^l.mask | (bits>>l.shift0)&l.mask
	storeWord(data, l.bytePos, BigEndian, word)

	// the low shift0 bits of the value sit in the top of the ninth byte
	top := (uint64(0xFF) << l.shift1) & 0xFF
	last := loadByte(data, l.bytePos+8)
	last = last&^top | (bits<<l.shift1)&top
	storeByte(data, l.bytePos+8, last)
}

// rawBits turns a raw value into the bit pattern stored in the frame.
// Integers are rounded and saturated to the range of the field.
func rawBits(raw float64, bitSize uint64, vt ValueType, ext ExtendedValueType) uint64 {
	switch ext {
	case Float:
		return uint64(math.Float32bits(float32(raw)))
	case Double:
		return math.Float64bits(raw)
	}
	r := math.Round(raw)
	if vt == Signed {
		return uint64(clampSigned(r, bitSize)) & valueMask(bitSize)
	}
	return clampUnsigned(r, bitSize)
}
