package dbc

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	dbcfile "go.einride.tech/can/pkg/dbc"

	"can-dbc-core/utils"
)

// signalKey addresses a signal across the auxiliary DBC sections.
type signalKey struct {
	message uint32
	signal  string
}

// LoadNetwork loads a .dbc or a can_map .csv file depending on its extension.
func LoadNetwork(path string, log *utils.Logger) (*Network, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path, log)
	case ".dbc":
		return LoadDBC(path, log)
	default:
		return nil, errors.Errorf("%s: unknown database format (want .dbc or .csv)", path)
	}
}

func LoadDBC(path string, log *utils.Logger) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ParseDBC(path, data, log)
}

// ParseDBC builds a network from DBC source text. Messages whose signals fail
// validation are skipped and logged, the rest of the network still loads.
func ParseDBC(name string, data []byte, log *utils.Logger) (*Network, error) {
	if log == nil {
		log = utils.NewNopLogger()
	}
	p := dbcfile.NewParser(name, data)
	if err := p.Parse(); err != nil {
		return nil, errors.Wrapf(err, "parse %s", name)
	}

	var (
		version   string
		nodes     []string
		msgDefs   []*dbcfile.MessageDef
		valTypes  = map[signalKey]ExtendedValueType{}
		sigNotes  = map[signalKey]string{}
		msgNotes  = map[uint32]string{}
		valueDesc = map[signalKey]map[int64]string{}
		attrTypes = map[string]dbcfile.AttributeValueType{}
		msgAttrs  = map[uint32]map[string]Attribute{}
		sigAttrs  = map[signalKey]map[string]Attribute{}
		senders   = map[uint32][]string{}
		groups    = map[uint32][]SignalGroup{}
		srcLines  []string
	)
	// signals are immutable, so everything that decorates them is collected
	// before any message is built
	for _, def := range p.Defs() {
		switch def := def.(type) {
		case *dbcfile.VersionDef:
			version = unquote(def.Version)
		case *dbcfile.NodesDef:
			for _, n := range def.NodeNames {
				nodes = append(nodes, string(n))
			}
		case *dbcfile.MessageDef:
			msgDefs = append(msgDefs, def)
		case *dbcfile.SignalValueTypeDef:
			key := signalKey{uint32(def.MessageID), string(def.SignalName)}
			switch def.SignalValueType {
			case dbcfile.SignalValueTypeFloat32:
				valTypes[key] = Float
			case dbcfile.SignalValueTypeFloat64:
				valTypes[key] = Double
			default:
				valTypes[key] = Integer
			}
		case *dbcfile.CommentDef:
			switch def.ObjectType {
			case dbcfile.ObjectTypeMessage:
				msgNotes[uint32(def.MessageID)] = unquote(def.Comment)
			case dbcfile.ObjectTypeSignal:
				sigNotes[signalKey{uint32(def.MessageID), string(def.SignalName)}] = unquote(def.Comment)
			}
		case *dbcfile.ValueDescriptionsDef:
			if def.SignalName == "" {
				continue
			}
			key := signalKey{uint32(def.MessageID), string(def.SignalName)}
			table := make(map[int64]string, len(def.ValueDescriptions))
			for _, vd := range def.ValueDescriptions {
				table[int64(vd.Value)] = unquote(vd.Description)
			}
			valueDesc[key] = table
		case *dbcfile.AttributeDef:
			if _, ok := attrTypes[string(def.Name)]; !ok {
				attrTypes[string(def.Name)] = def.Type
			}
		case *dbcfile.AttributeValueForObjectDef:
			a, ok := attributeValue(def, attrTypes)
			if !ok {
				log.Warn("dbc: %s: attribute %s has no BA_DEF_, ignored", name, def.AttributeName)
				continue
			}
			switch def.ObjectType {
			case dbcfile.ObjectTypeMessage:
				addAttribute(msgAttrs, uint32(def.MessageID), a)
			case dbcfile.ObjectTypeSignal:
				addAttribute(sigAttrs, signalKey{uint32(def.MessageID), string(def.SignalName)}, a)
			}
		case *dbcfile.MessageTransmittersDef:
			id := uint32(def.MessageID)
			for _, t := range def.Transmitters {
				if n := nodeName(string(t)); n != "" {
					senders[id] = append(senders[id], n)
				}
			}
		case *dbcfile.UnknownDef:
			// einride keeps only the keyword of SIG_GROUP_, the line is read back
			// from the source
			if def.Keyword != dbcfile.KeywordSignalGroup {
				continue
			}
			if srcLines == nil {
				srcLines = strings.Split(string(data), "\n")
			}
			id, g, err := parseSignalGroup(srcLines, def.Pos.Line)
			if err != nil {
				log.Warn("dbc: %s:%d: %v", name, def.Pos.Line, err)
				continue
			}
			groups[id] = append(groups[id], g)
		}
	}

	messages := make([]*Message, 0, len(msgDefs))
	for _, md := range msgDefs {
		rawID := uint32(md.MessageID)
		mp := MessageParams{
			ID:              rawID &^ extendedIDFlag,
			Extended:        rawID&extendedIDFlag != 0,
			Name:            string(md.Name),
			Size:            uint64(md.Size),
			Transmitter:     nodeName(string(md.Transmitter)),
			Transmitters:    senders[rawID],
			AttributeValues: msgAttrs[rawID],
			Comment:         msgNotes[rawID],
			SignalGroups:    groups[rawID],
			Signals:         make([]SignalParams, 0, len(md.Signals)),
		}
		for _, sd := range md.Signals {
			key := signalKey{rawID, string(sd.Name)}
			sp := SignalParams{
				Name:              string(sd.Name),
				StartBit:          uint64(sd.StartBit),
				BitSize:           uint64(sd.Size),
				Factor:            sd.Factor,
				Offset:            sd.Offset,
				Minimum:           sd.Minimum,
				Maximum:           sd.Maximum,
				Unit:              unquote(sd.Unit),
				AttributeValues:   sigAttrs[key],
				Comment:           sigNotes[key],
				ValueDescriptions: valueDesc[key],
				ExtendedValueType: valTypes[key],
			}
			if sd.IsBigEndian {
				sp.ByteOrder = BigEndian
			}
			if sd.IsSigned {
				sp.ValueType = Signed
			}
			switch {
			case sd.IsMultiplexerSwitch:
				sp.Multiplexer = MuxSwitch
			case sd.IsMultiplexed:
				sp.Multiplexer = MuxValue
				sp.MultiplexerSwitchValue = uint64(sd.MultiplexerSwitch)
			}
			for _, r := range sd.Receivers {
				if n := nodeName(string(r)); n != "" {
					sp.Receivers = append(sp.Receivers, n)
				}
			}
			mp.Signals = append(mp.Signals, sp)
		}

		m, err := NewMessage(mp)
		if err != nil {
			log.Warn("dbc: skipping message %s (0x%X): %v", mp.Name, mp.ID, err)
			continue
		}
		log.Trace("dbc: message %s id=0x%X size=%d signals=%d", m.Name(), m.ID(), m.Size(), m.NumSignals())
		messages = append(messages, m)
	}
	log.Debug("dbc: loaded %s: %d of %d messages", name, len(messages), len(msgDefs))
	return NewNetwork(version, nodes, messages)
}

// attributeValue picks the BA_ field matching the type declared by BA_DEF_.
func attributeValue(def *dbcfile.AttributeValueForObjectDef, types map[string]dbcfile.AttributeValueType) (Attribute, bool) {
	a := Attribute{Name: string(def.AttributeName)}
	switch types[a.Name] {
	case dbcfile.AttributeValueTypeInt, dbcfile.AttributeValueTypeHex:
		a.Value = def.IntValue
	case dbcfile.AttributeValueTypeFloat:
		a.Value = def.FloatValue
	case dbcfile.AttributeValueTypeString, dbcfile.AttributeValueTypeEnum:
		a.Value = unquote(def.StringValue)
	default:
		return Attribute{}, false
	}
	return a, true
}

func addAttribute[K comparable](into map[K]map[string]Attribute, key K, a Attribute) {
	if into[key] == nil {
		into[key] = map[string]Attribute{}
	}
	into[key][a.Name] = a
}

// parseSignalGroup reads "SIG_GROUP_ <id> <name> <repetitions> : <signal>... ;"
// from the given 1-based source line.
func parseSignalGroup(lines []string, line int) (uint32, SignalGroup, error) {
	if line < 1 || line > len(lines) {
		return 0, SignalGroup{}, errors.Errorf("no source line %d", line)
	}
	text := strings.TrimSpace(lines[line-1])
	head, tail, ok := strings.Cut(strings.TrimSuffix(text, ";"), ":")
	fields := strings.Fields(head)
	if !ok || len(fields) != 4 || fields[0] != string(dbcfile.KeywordSignalGroup) {
		return 0, SignalGroup{}, errors.Errorf("malformed signal group %q", text)
	}
	id, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, SignalGroup{}, errors.Wrapf(err, "signal group %s: message id", fields[2])
	}
	reps, err := strconv.ParseUint(fields[3], 10, 64)
	if err != nil {
		return 0, SignalGroup{}, errors.Wrapf(err, "signal group %s: repetitions", fields[2])
	}
	g := SignalGroup{Name: fields[2], Repetitions: reps}
	g.SignalNames = strings.FieldsFunc(tail, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\r'
	})
	return uint32(id), g, nil
}

func nodeName(n string) string {
	if n == noNode {
		return ""
	}
	return n
}
