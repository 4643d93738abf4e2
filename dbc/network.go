package dbc

import (
	"io"
	"iter"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.einride.tech/can"
)

const classicPayload = 8

// Network is a loaded CAN database: its nodes and messages, addressable by
// frame ID and by name.
type Network struct {
	version  string
	nodes    []string
	messages []*Message
	byID     map[uint32]*Message
	byName   map[string]*Message
}

func NewNetwork(version string, nodes []string, messages []*Message) (*Network, error) {
	n := &Network{
		version:  version,
		nodes:    slices.Clone(nodes),
		messages: make([]*Message, 0, len(messages)),
		byID:     make(map[uint32]*Message, len(messages)),
		byName:   make(map[string]*Message, len(messages)),
	}
	for _, m := range messages {
		if prev, ok := n.byID[m.ID()]; ok {
			return nil, errors.Errorf("messages %s and %s share id 0x%X", prev.Name(), m.Name(), m.ID())
		}
		if _, ok := n.byName[m.Name()]; ok {
			return nil, errors.Errorf("duplicate message name %q", m.Name())
		}
		n.byID[m.ID()] = m
		n.byName[m.Name()] = m
		n.messages = append(n.messages, m)
	}
	return n, nil
}

func (n *Network) Version() string { return n.version }

func (n *Network) Nodes() iter.Seq[string] {
	return slices.Values(n.nodes)
}

// Messages yields the messages in declaration order.
func (n *Network) Messages() iter.Seq[*Message] {
	return slices.Values(n.messages)
}

func (n *Network) MessageNames() []string {
	out := make([]string, 0, len(n.byName))
	for k := range n.byName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (n *Network) MessageByName(name string) (*Message, error) {
	m, ok := n.byName[name]
	if !ok {
		return nil, errors.Errorf("unknown message %q (available: %v)", name, n.MessageNames())
	}
	return m, nil
}

func (n *Network) MessageByID(id uint32) (*Message, error) {
	m, ok := n.byID[id]
	if !ok {
		return nil, errors.Errorf("unknown message id 0x%X", id)
	}
	return m, nil
}

// DecodeFrame decodes every signal of the message with the given id. data
// must hold at least the message's declared size.
func (n *Network) DecodeFrame(id uint32, data []byte) (map[string]float64, error) {
	m, err := n.MessageByID(id)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) < m.Size() {
		return nil, errors.Errorf("message %s (0x%X) expects %d bytes, got %d", m.Name(), id, m.Size(), len(data))
	}
	return m.Decode(data), nil
}

func (n *Network) DecodeEinrideFrame(f can.Frame) (map[string]float64, error) {
	if err := f.Validate(); err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}
	if f.IsRemote {
		return nil, errors.Errorf("remote frame 0x%X carries no data", f.ID)
	}
	return n.DecodeFrame(f.ID, f.Data[:f.Length])
}

func (n *Network) EncodeFrame(name string, values map[string]float64) ([]byte, uint32, error) {
	m, err := n.MessageByName(name)
	if err != nil {
		return nil, 0, err
	}
	return m.Encode(values), m.ID(), nil
}

// EncodeEinrideFrame produces a classic CAN frame ready to transmit.
func (n *Network) EncodeEinrideFrame(name string, values map[string]float64) (can.Frame, error) {
	m, err := n.MessageByName(name)
	if err != nil {
		return can.Frame{}, err
	}
	if m.Size() > classicPayload {
		return can.Frame{}, errors.Errorf("message %s has %d bytes, classic CAN carries at most %d",
			m.Name(), m.Size(), classicPayload)
	}
	payload := m.Encode(values)

	var f can.Frame
	f.ID = m.ID()
	f.IsExtended = m.IsExtended()
	f.Length = uint8(len(payload))
	copy(f.Data[:], payload)
	if err := f.Validate(); err != nil {
		return can.Frame{}, errors.Wrapf(err, "message %s", m.Name())
	}
	return f, nil
}

// WriteDBC serializes the network as DBC text.
func (n *Network) WriteDBC(w io.Writer) error {
	var b strings.Builder
	b.WriteString("VERSION " + quote(n.version) + "\n\n")
	b.WriteString("BU_:")
	for _, node := range n.nodes {
		b.WriteString(" " + node)
	}
	b.WriteString("\n")

	for _, m := range n.messages {
		b.WriteString("\n" + m.String() + "\n")
	}

	b.WriteString("\n")
	for _, m := range n.messages {
		if len(m.transmitters) > 0 {
			b.WriteString("BO_TX_BU_ " + m.dbcID() + " : " + strings.Join(m.transmitters, ",") + ";\n")
		}
	}
	for _, m := range n.messages {
		if m.comment != "" {
			b.WriteString("CM_ BO_ " + m.dbcID() + " " + quote(m.comment) + ";\n")
		}
		for _, s := range m.signals {
			if s.comment != "" {
				b.WriteString("CM_ SG_ " + m.dbcID() + " " + s.name + " " + quote(s.comment) + ";\n")
			}
		}
	}
	n.writeAttributes(&b)
	for _, m := range n.messages {
		for _, s := range m.signals {
			if len(s.valueDescriptions) == 0 {
				continue
			}
			b.WriteString("VAL_ " + m.dbcID() + " " + s.name)
			for v, d := range s.ValueDescriptions() {
				b.WriteString(" " + strconv.FormatInt(v, 10) + " " + quote(d))
			}
			b.WriteString(" ;\n")
		}
	}
	for _, m := range n.messages {
		for _, s := range m.signals {
			if s.extendedValueType != Integer {
				b.WriteString("SIG_VALTYPE_ " + m.dbcID() + " " + s.name + " : " +
					strconv.Itoa(int(s.extendedValueType)) + ";\n")
			}
		}
	}
	for _, m := range n.messages {
		for _, g := range m.groups {
			// einride discards SIG_GROUP_ lines token pairwise and may run into
			// the next line unless it is blank
			b.WriteString("SIG_GROUP_ " + m.dbcID() + " " + g.Name + " " +
				strconv.FormatUint(g.Repetitions, 10) + " :")
			for _, name := range g.SignalNames {
				b.WriteString(" " + name)
			}
			b.WriteString(";\n\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return errors.WithStack(err)
}

// writeAttributes emits a BA_DEF_ per attribute name and object kind, then
// the BA_ values of messages and signals.
func (n *Network) writeAttributes(b *strings.Builder) {
	msgDefs := map[string]string{}
	sigDefs := map[string]string{}
	for _, m := range n.messages {
		for _, a := range m.attributes {
			if typ, _, ok := attributeText(a); ok {
				msgDefs[a.Name] = typ
			}
		}
		for _, s := range m.signals {
			for _, a := range s.attributes {
				if typ, _, ok := attributeText(a); ok {
					sigDefs[a.Name] = typ
				}
			}
		}
	}
	for _, name := range sortedKeys(msgDefs) {
		b.WriteString("BA_DEF_ BO_ " + quote(name) + " " + msgDefs[name] + ";\n")
	}
	for _, name := range sortedKeys(sigDefs) {
		b.WriteString("BA_DEF_ SG_ " + quote(name) + " " + sigDefs[name] + ";\n")
	}
	for _, m := range n.messages {
		for a := range m.AttributeValues() {
			if _, v, ok := attributeText(a); ok {
				b.WriteString("BA_ " + quote(a.Name) + " BO_ " + m.dbcID() + " " + v + ";\n")
			}
		}
		for _, s := range m.signals {
			for a := range s.AttributeValues() {
				if _, v, ok := attributeText(a); ok {
					b.WriteString("BA_ " + quote(a.Name) + " SG_ " + m.dbcID() + " " + s.name + " " + v + ";\n")
				}
			}
		}
	}
}

// attributeText returns the BA_DEF_ type and the BA_ value text of a.
func attributeText(a Attribute) (string, string, bool) {
	switch v := a.Value.(type) {
	case int64:
		return "INT 0 0", strconv.FormatInt(v, 10), true
	case float64:
		return "FLOAT 0 0", formatFloat(v), true
	case string:
		return "STRING", quote(v), true
	default:
		return "", "", false
	}
}

// Equal compares version, nodes and messages in declaration order.
func (n *Network) Equal(o *Network) bool {
	if n == nil || o == nil {
		return n == o
	}
	return n.version == o.version &&
		slices.Equal(n.nodes, o.nodes) &&
		slices.EqualFunc(n.messages, o.messages, (*Message).Equal)
}
