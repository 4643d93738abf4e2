package main

import (
	"context"
	"io"
	"math"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.einride.tech/can"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"can-dbc-core/dbc"
	"can-dbc-core/utils"
)

type Runner struct {
	cfg     MonitorConfig
	log     *utils.Logger
	network *dbc.Network
	reader  utils.CANReader
	sink    RecordSink
	out     io.Closer
	filter  map[uint32]bool

	decoded uint64
	unknown uint64
	failed  uint64
}

// timestamper is implemented by readers that know when a frame was captured.
type timestamper interface {
	Timestamp() time.Time
}

type timedFrame struct {
	frame can.Frame
	at    time.Time
}

func NewRunner(ctx context.Context, cfg MonitorConfig, log *utils.Logger) (*Runner, error) {
	network, err := dbc.LoadNetwork(cfg.DatabasePath, log)
	if err != nil {
		return nil, errors.Wrap(err, "load database")
	}

	var reader utils.CANReader
	if cfg.ReplayPath != "" {
		f, err := os.Open(cfg.ReplayPath)
		if err != nil {
			return nil, errors.Wrap(err, "open replay")
		}
		reader = utils.NewReplayReader(f)
	} else {
		reader, err = utils.NewSocketCANReader(ctx, cfg.Interface)
		if err != nil {
			return nil, err
		}
	}

	var (
		w   io.Writer = os.Stdout
		out io.Closer
	)
	if cfg.OutputPath != "" {
		f, err := os.Create(cfg.OutputPath)
		if err != nil {
			_ = reader.Close()
			return nil, errors.Wrap(err, "create output")
		}
		w, out = f, f
	}
	sink, err := newSink(cfg.Format, w)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	r, err := newRunner(cfg, log, network, reader, sink)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}
	r.out = out
	return r, nil
}

func newRunner(cfg MonitorConfig, log *utils.Logger, network *dbc.Network, reader utils.CANReader, sink RecordSink) (*Runner, error) {
	r := &Runner{
		cfg:     cfg,
		log:     log,
		network: network,
		reader:  reader,
		sink:    sink,
	}
	if len(cfg.Messages) > 0 {
		r.filter = make(map[uint32]bool, len(cfg.Messages))
		for _, name := range cfg.Messages {
			m, err := network.MessageByName(name)
			if err != nil {
				return nil, errors.Wrap(err, "message filter")
			}
			r.filter[m.ID()] = true
		}
	}
	return r, nil
}

func (r *Runner) Close() {
	if r.reader != nil {
		_ = r.reader.Close()
	}
	if r.out != nil {
		_ = r.out.Close()
	}
}

// Run decodes frames until the reader is exhausted or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Starting RX: database=%s messages=%d source=%s format=%s",
		r.cfg.DatabasePath, len(r.network.MessageNames()), r.source(), r.cfg.Format)

	frames := make(chan timedFrame, 256)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(frames)
		for {
			f, err := r.reader.ReadFrame(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			tf := timedFrame{frame: f, at: time.Now()}
			if ts, ok := r.reader.(timestamper); ok && !ts.Timestamp().IsZero() {
				tf.at = ts.Timestamp()
			}
			select {
			case frames <- tf:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	g.Go(func() error {
		for tf := range frames {
			if err := r.handle(tf); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	r.log.Info("Completed RX. decoded=%d unknown=%d failed=%d", r.decoded, r.unknown, r.failed)
	return err
}

func (r *Runner) source() string {
	if r.cfg.ReplayPath != "" {
		return r.cfg.ReplayPath
	}
	return r.cfg.Interface
}

// handle decodes one frame. Only sink errors are fatal.
func (r *Runner) handle(tf timedFrame) error {
	f := tf.frame
	if r.filter != nil && !r.filter[f.ID] {
		return nil
	}
	m, err := r.network.MessageByID(f.ID)
	if err != nil {
		r.unknown++
		r.log.Trace("RX unknown id=0x%X", f.ID)
		return nil
	}
	values, err := r.network.DecodeEinrideFrame(f)
	if err != nil {
		r.failed++
		r.log.Zap().Warn("decode failed",
			zap.Uint32("id", f.ID),
			zap.Uint8("length", f.Length),
			zap.Error(err))
		return nil
	}
	r.decoded++

	rec := &Record{Time: tf.at, ID: f.ID, Message: m.Name(), Signals: values}
	if r.cfg.Labels {
		rec.Labels = labels(m, f.Data[:f.Length])
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			r.log.Debug("RX %s.%s is not finite", m.Name(), name)
			delete(values, name)
		}
	}
	return errors.Wrap(r.sink.Write(rec), "write record")
}

// labels resolves the VAL_ description of every integer signal in data.
func labels(m *dbc.Message, data []byte) map[string]string {
	var out map[string]string
	m.DecodeInto(data, func(sig *dbc.Signal, _ float64) {
		if sig.ExtendedValueType() != dbc.Integer {
			return
		}
		if d, ok := sig.ValueDescription(int64(sig.Decode(data))); ok {
			if out == nil {
				out = map[string]string{}
			}
			out[sig.Name()] = d
		}
	})
	return out
}

// sendFrame encodes physical values for one message and transmits it.
func sendFrame(ctx context.Context, network *dbc.Network, w utils.CANWriter, name string, values map[string]float64, log *utils.Logger) error {
	frame, err := network.EncodeEinrideFrame(name, values)
	if err != nil {
		return err
	}
	if err := w.WriteFrame(ctx, frame); err != nil {
		return errors.Wrapf(err, "send %s", name)
	}
	log.Info("TX %s %s", name, frame.String())
	return nil
}
