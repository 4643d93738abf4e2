package dbc

type alignment int

const (
	// WithinFirst64Bits: the field lies in bytes 0..7, one word read at offset 0.
	withinFirst64Bits alignment = iota
	// Exceeds64ButFitsIn64: the field lies past byte 7 but inside one 8 byte window.
	exceeds64ButFitsIn64
	// Exceeds64AndSpansTwoWords: the field needs an 8 byte window plus one more byte.
	exceeds64AndSpansTwoWords
)

func (a alignment) String() string {
	switch a {
	case withinFirst64Bits:
		return "WithinFirst64Bits"
	case exceeds64ButFitsIn64:
		return "Exceeds64ButFitsIn64"
	case exceeds64AndSpansTwoWords:
		return "Exceeds64AndSpansTwoWords"
	default:
		return "unknown"
	}
}

// layout holds everything the decode and encode routines need, derived once
// from (start bit, bit size, byte order).
type layout struct {
	class      alignment
	mask       uint64
	maskSigned uint64
	shift0     uint64
	shift1     uint64
	bytePos    uint64
}

func valueMask(bitSize uint64) uint64 {
	// Go defines 1<<64 as 0, which makes the 64 bit case all ones.
	return (uint64(1) << bitSize) - 1
}

func signExtensionMask(bitSize uint64) uint64 {
	return ^((uint64(1) << (bitSize - 1)) - 1)
}

// touchedBytes is the number of bytes the field occupies counted from its
// start byte.
func touchedBytes(startBit, bitSize uint64, order ByteOrder) uint64 {
	if order == LittleEndian {
		return (startBit%8 + bitSize + 7) / 8
	}
	return (bitSize + (7 - startBit%8) + 7) / 8
}

// motorolaShift converts the DBC start bit (MSB) of a big-endian field,
// relative to an 8 byte window, into the right shift of its LSB within the
// big-endian word read from that window.
func motorolaShift(relStartBit, bitSize uint64) uint64 {
	return 8*(7-relStartBit/8) + relStartBit%8 - (bitSize - 1)
}

// exceedsFrame reports whether the field does not fit a frame of msgSize bytes.
func exceedsFrame(startBit, bitSize uint64, order ByteOrder, msgSize uint64) bool {
	if order == LittleEndian {
		return startBit+bitSize > msgSize*8
	}
	span := bitSize + (7 - startBit%8)
	first := startBit - startBit%8
	return first+((span-1)/8)*8 >= msgSize*8
}

func classify(startBit, bitSize uint64, order ByteOrder) layout {
	l := layout{
		mask:       valueMask(bitSize),
		maskSigned: signExtensionMask(bitSize),
		bytePos:    startBit / 8,
	}
	nbytes := touchedBytes(startBit, bitSize, order)

	switch {
	case l.bytePos+nbytes <= 8:
		l.class = withinFirst64Bits
		l.bytePos = 0
		l.shift0 = startBit
		if order == BigEndian {
			l.shift0 = motorolaShift(startBit, bitSize)
		}
	case l.bytePos%8+nbytes <= 8:
		// aligning the window on 8 bytes keeps the field inside it
		l.class = exceeds64ButFitsIn64
		l.bytePos -= l.bytePos % 8
		l.shift0 = startBit - l.bytePos*8
		if order == BigEndian {
			l.shift0 = motorolaShift(l.shift0, bitSize)
		}
	case nbytes <= 8:
		l.class = exceeds64ButFitsIn64
		l.shift0 = startBit - l.bytePos*8
		if order == BigEndian {
			l.shift0 = motorolaShift(l.shift0, bitSize)
		}
	default:
		l.class = exceeds64AndSpansTwoWords
		if order == BigEndian {
			lastBits := (7 - startBit%8) + bitSize - 64
			l.shift0 = lastBits
			l.shift1 = 8 - lastBits
			l.mask = (uint64(1) << (startBit%8 + 57)) - 1
		} else {
			l.shift0 = startBit % 8
			l.shift1 = 64 - startBit%8
			l.mask = (uint64(1) << (bitSize + startBit%8 - 64)) - 1
		}
	}
	return l
}
