package utils

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.einride.tech/can"
)

// CANReader defines the interface for reading CAN frames
type CANReader interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

type CANWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

// ReplayReader reads frames from a candump log. Both the "-l" file format
// "(1436509052.249713) vcan0 044#2A366C2BBA" and bare "044#2A366C2BBA"
// lines are accepted; blank lines and lines starting with '#' are skipped.
type ReplayReader struct {
	src     io.Closer
	scanner *bufio.Scanner
	line    int
	last    time.Time
}

var _ CANReader = (*ReplayReader)(nil)

func NewReplayReader(r io.Reader) *ReplayReader {
	rr := &ReplayReader{scanner: bufio.NewScanner(r)}
	if c, ok := r.(io.Closer); ok {
		rr.src = c
	}
	return rr
}

// ReadFrame returns io.EOF once the log is exhausted.
func (r *ReplayReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return can.Frame{}, err
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return can.Frame{}, errors.WithStack(err)
			}
			return can.Frame{}, io.EOF
		}
		r.line++
		text := strings.TrimSpace(r.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if ts, ok := parseCandumpTimestamp(fields[0]); ok {
			r.last = ts
		}
		var f can.Frame
		if err := f.UnmarshalString(fields[len(fields)-1]); err != nil {
			return can.Frame{}, errors.Wrapf(err, "replay line %d", r.line)
		}
		return f, nil
	}
}

// Timestamp is the capture time of the last frame read, zero if the log
// carries none.
func (r *ReplayReader) Timestamp() time.Time {
	return r.last
}

func (r *ReplayReader) Close() error {
	if r.src != nil {
		return r.src.Close()
	}
	return nil
}

func parseCandumpTimestamp(s string) (time.Time, bool) {
	if len(s) < 3 || s[0] != '(' || s[len(s)-1] != ')' {
		return time.Time{}, false
	}
	sec, frac, _ := strings.Cut(s[1:len(s)-1], ".")
	secs, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	var nanos int64
	if frac != "" {
		frac = (frac + "000000000")[:9]
		if nanos, err = strconv.ParseInt(frac, 10, 64); err != nil {
			return time.Time{}, false
		}
	}
	return time.Unix(secs, nanos), true
}
