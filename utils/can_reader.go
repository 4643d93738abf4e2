package utils

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// SocketCANReader implements CANReader using Einride's socketcan
type SocketCANReader struct {
	conn   net.Conn
	recv   *socketcan.Receiver
	frames chan can.Frame
	failed chan struct{}
	err    error
	once   sync.Once
	closed sync.Once
	done   chan struct{}
}

// NewSocketCANReader creates a new SocketCAN reader
func NewSocketCANReader(ctx context.Context, ifname string) (*SocketCANReader, error) {
	conn, err := socketcan.DialContext(ctx, "can", ifname)
	if err != nil {
		return nil, errors.Wrap(err, "socketcan dial")
	}
	return &SocketCANReader{
		conn:   conn,
		recv:   socketcan.NewReceiver(conn),
		frames: make(chan can.Frame, 64),
		failed: make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// receiveLoop owns the receiver; it ends when the socket is closed.
func (r *SocketCANReader) receiveLoop() {
	for r.recv.Receive() {
		if r.recv.HasErrorFrame() {
			continue
		}
		select {
		case r.frames <- r.recv.Frame():
		case <-r.done:
			return
		}
	}
	r.err = r.recv.Err()
	if r.err == nil {
		r.err = errors.New("socketcan receive: connection closed")
	}
	close(r.failed)
}

// ReadFrame blocks until a data frame arrives or ctx is done
func (r *SocketCANReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	r.once.Do(func() { go r.receiveLoop() })
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case frame := <-r.frames:
		return frame, nil
	case <-r.failed:
		return can.Frame{}, r.err
	}
}

// Close closes the CAN socket, which also stops the receive loop
func (r *SocketCANReader) Close() error {
	var err error
	r.closed.Do(func() {
		close(r.done)
		if r.conn != nil {
			err = r.conn.Close()
		}
	})
	return err
}
