package dbc

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"can-dbc-core/utils"
)

// csvColumns are required in a can_map.csv header. "extended" (integer,
// float, double) and "receivers" (space separated) are optional.
var csvColumns = []string{
	"direction", "frame_id", "frame_name", "cycle_ms", "dlc",
	"signal_name", "start_bit", "bit_length", "endianness",
	"signed", "factor", "offset", "min", "max", "default", "unit", "comment",
}

// maxFrameSize is the largest CAN FD payload.
const maxFrameSize = 64

// Well known DBC attribute names the cycle_ms and default columns map to.
const (
	attrMessageCycleTime = "GenMsgCycleTime"
	attrSignalStartValue = "GenSigStartValue"
)

// LoadCSV builds a network from a flat can_map.csv, one row per signal.
func LoadCSV(csvPath string, log *utils.Logger) (*Network, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	return ParseCSV(f, log)
}

func ParseCSV(r io.Reader, log *utils.Logger) (*Network, error) {
	if log == nil {
		log = utils.NewNopLogger()
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read csv header")
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, k := range csvColumns {
		if _, ok := idx[k]; !ok {
			return nil, errors.Errorf("can_map.csv missing required column: %q", k)
		}
	}

	frames := map[uint32]*MessageParams{}
	var order []uint32
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", row)
		}
		c := csvRow{rec: rec, idx: idx}

		frameID := c.hexOrDec("frame_id")
		frameName := c.str("frame_name")
		dlc := c.unsigned("dlc")
		sig := SignalParams{
			Name:      c.str("signal_name"),
			StartBit:  c.unsigned("start_bit"),
			BitSize:   c.unsigned("bit_length"),
			ByteOrder: c.byteOrder("endianness"),
			Factor:    c.number("factor"),
			Offset:    c.number("offset"),
			Minimum:   c.number("min"),
			Maximum:   c.number("max"),
			Unit:      c.str("unit"),
			Comment:   c.str("comment"),
			AttributeValues: map[string]Attribute{
				attrSignalStartValue: {Name: attrSignalStartValue, Value: c.number("default")},
			},
		}
		if c.flag("signed") {
			sig.ValueType = Signed
		}
		if _, ok := idx["extended"]; ok {
			sig.ExtendedValueType = c.extended("extended")
		}
		if _, ok := idx["receivers"]; ok {
			sig.Receivers = strings.Fields(c.str("receivers"))
		}
		if c.err != nil {
			return nil, errors.Wrapf(c.err, "row %d (%s.%s)", row, frameName, sig.Name)
		}
		if dlc == 0 || dlc > maxFrameSize {
			return nil, errors.Errorf("frame %s (0x%X): invalid dlc %d", frameName, frameID, dlc)
		}

		mp, ok := frames[frameID]
		if !ok {
			mp = &MessageParams{
				ID:          frameID,
				Extended:    frameID > 0x7FF,
				Name:        frameName,
				Size:        dlc,
				Transmitter: c.str("direction"),
				AttributeValues: map[string]Attribute{
					attrMessageCycleTime: {Name: attrMessageCycleTime, Value: int64(c.unsigned("cycle_ms"))},
				},
			}
			frames[frameID] = mp
			order = append(order, frameID)
		}
		if mp.Size != dlc {
			return nil, errors.Errorf("frame %s (0x%X) has inconsistent DLC (%d vs %d)", frameName, frameID, mp.Size, dlc)
		}
		mp.Signals = append(mp.Signals, sig)
	}

	messages := make([]*Message, 0, len(order))
	for _, id := range order {
		mp := frames[id]
		sort.SliceStable(mp.Signals, func(i, j int) bool { return mp.Signals[i].StartBit < mp.Signals[j].StartBit })
		m, err := NewMessage(*mp)
		if err != nil {
			return nil, err
		}
		log.Debug("csv: frame %s id=0x%X dlc=%d signals=%d", m.Name(), m.ID(), m.Size(), m.NumSignals())
		messages = append(messages, m)
	}
	return NewNetwork("", nil, messages)
}

// csvRow reads typed columns and keeps the first conversion error.
type csvRow struct {
	rec []string
	idx map[string]int
	err error
}

func (c *csvRow) str(col string) string {
	i := c.idx[col]
	if i >= len(c.rec) {
		return ""
	}
	return strings.TrimSpace(c.rec[i])
}

func (c *csvRow) fail(col, v string, err error) {
	if c.err == nil {
		c.err = errors.Wrapf(err, "column %s: invalid value %q", col, v)
	}
}

func (c *csvRow) unsigned(col string) uint64 {
	s := c.str(col)
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		c.fail(col, s, err)
	}
	return v
}

func (c *csvRow) hexOrDec(col string) uint32 {
	s := c.str(col)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		c.fail(col, s, err)
	}
	return uint32(v)
}

func (c *csvRow) number(col string) float64 {
	s := c.str(col)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		c.fail(col, s, err)
	}
	return v
}

func (c *csvRow) flag(col string) bool {
	s := strings.ToLower(c.str(col))
	return s == "true" || s == "1" || s == "yes"
}

func (c *csvRow) byteOrder(col string) ByteOrder {
	switch s := strings.ToLower(c.str(col)); s {
	case "", "little", "intel":
		return LittleEndian
	case "big", "motorola":
		return BigEndian
	default:
		c.fail(col, s, errors.New("expected little or big"))
		return LittleEndian
	}
}

func (c *csvRow) extended(col string) ExtendedValueType {
	switch s := strings.ToLower(c.str(col)); s {
	case "", "integer", "int":
		return Integer
	case "float", "float32":
		return Float
	case "double", "float64":
		return Double
	default:
		c.fail(col, s, errors.New("expected integer, float or double"))
		return Integer
	}
}
