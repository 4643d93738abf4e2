package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Record is one decoded frame.
type Record struct {
	Time    time.Time          `json:"time" cbor:"time"`
	ID      uint32             `json:"id" cbor:"id"`
	Message string             `json:"message" cbor:"message"`
	Signals map[string]float64 `json:"signals" cbor:"signals"`
	Labels  map[string]string  `json:"labels,omitempty" cbor:"labels,omitempty"`
}

type RecordSink interface {
	Write(rec *Record) error
}

type jsonSink struct {
	enc *json.Encoder
}

func (s *jsonSink) Write(rec *Record) error {
	return errors.WithStack(s.enc.Encode(rec))
}

// cborSink writes an RFC 8742 CBOR sequence, one item per record.
type cborSink struct {
	enc *cbor.Encoder
}

func (s *cborSink) Write(rec *Record) error {
	return errors.WithStack(s.enc.Encode(rec))
}

func newSink(format string, w io.Writer) (RecordSink, error) {
	switch format {
	case "json", "":
		return &jsonSink{enc: json.NewEncoder(w)}, nil
	case "cbor":
		opts := cbor.EncOptions{
			Sort: cbor.SortCoreDeterministic,
			Time: cbor.TimeRFC3339Nano,
		}
		em, err := opts.EncMode()
		if err != nil {
			return nil, errors.Wrap(err, "cbor encoder")
		}
		return &cborSink{enc: em.NewEncoder(w)}, nil
	default:
		return nil, errors.Errorf("unknown output format %q", format)
	}
}
