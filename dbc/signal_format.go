package dbc

import (
	"strconv"
	"strings"
)

// noNode is the DBC placeholder for an empty transmitter or receiver list.
const noNode = "Vector__XXX"

// quote wraps s as a DBC string. DBC has no escapes besides \" so everything
// else, newlines included, is written verbatim.
func quote(s string) string {
	s = strings.ReplaceAll(s, `"`, `\"`)
	if strings.HasSuffix(s, `\`) {
		// a trailing backslash would escape the closing quote
		s += " "
	}
	return `"` + s + `"`
}

// unquote undoes quote on text read by the einride parser, which keeps \"
// as two characters.
func unquote(s string) string {
	return strings.ReplaceAll(s, `\"`, `"`)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// String renders the signal as a DBC SG_ line.
func (s *Signal) String() string {
	var b strings.Builder
	b.WriteString("SG_ ")
	b.WriteString(s.name)
	b.WriteByte(' ')
	switch s.multiplexer {
	case MuxSwitch:
		b.WriteString("M ")
	case MuxValue:
		b.WriteByte('m')
		b.WriteString(strconv.FormatUint(s.muxSwitchValue, 10))
		b.WriteByte(' ')
	}
	b.WriteString(": ")
	b.WriteString(strconv.FormatUint(s.startBit, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(s.bitSize, 10))
	b.WriteByte('@')
	if s.byteOrder == BigEndian {
		b.WriteByte('0')
	} else {
		b.WriteByte('1')
	}
	if s.valueType == Signed {
		b.WriteString("- ")
	} else {
		b.WriteString("+ ")
	}
	b.WriteString("(" + formatFloat(s.factor) + "," + formatFloat(s.offset) + ") ")
	b.WriteString("[" + formatFloat(s.minimum) + "|" + formatFloat(s.maximum) + "] ")
	b.WriteString(quote(s.unit))
	b.WriteByte(' ')
	if len(s.receivers) == 0 {
		b.WriteString(noNode)
	} else {
		b.WriteString(strings.Join(s.receivers, ","))
	}
	return b.String()
}
