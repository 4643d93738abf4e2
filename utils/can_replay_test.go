package utils

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestReplayReader(t *testing.T) {
	log := `# captured on vcan0
(1436509052.249713) vcan0 044#2A366C2BBA

(1436509052.250000) vcan0 18FEF100#0102030405060708
123#DEADBEEF
`
	r := NewReplayReader(strings.NewReader(log))
	ctx := context.Background()

	f, err := r.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x44), f.ID)
	assert.False(t, f.IsExtended)
	assert.Equal(t, uint8(5), f.Length)
	assert.Equal(t, []byte{0x2A, 0x36, 0x6C, 0x2B, 0xBA}, f.Data[:f.Length])
	assert.Equal(t, time.Unix(1436509052, 249713000), r.Timestamp())

	f, err = r.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x18FEF100), f.ID)
	assert.True(t, f.IsExtended)
	assert.Equal(t, time.Unix(1436509052, 250000000), r.Timestamp())

	// bare lines keep the previous timestamp
	f, err = r.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x123), f.ID)
	assert.Equal(t, time.Unix(1436509052, 250000000), r.Timestamp())

	_, err = r.ReadFrame(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, r.Close())
}

func TestReplayReader_BadLine(t *testing.T) {
	r := NewReplayReader(strings.NewReader("044#2A\nnot-a-frame\n"))
	_, err := r.ReadFrame(context.Background())
	require.NoError(t, err)
	_, err = r.ReadFrame(context.Background())
	assert.ErrorContains(t, err, "replay line 2")
}

func TestReplayReader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewReplayReader(strings.NewReader("044#2A\n"))
	_, err := r.ReadFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseCandumpTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"(1.5)", time.Unix(1, 500000000), true},
		{"(100)", time.Unix(100, 0), true},
		{"(1.000000001)", time.Unix(1, 1), true},
		{"vcan0", time.Time{}, false},
		{"(abc.1)", time.Time{}, false},
		{"()", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := parseCandumpTimestamp(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %v", tt.in, got)
	}
}
