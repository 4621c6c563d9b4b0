//go:build linux

package keyboard

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	evdev "github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeDevice is a non-blocking pipe standing in for /dev/input/eventN.
type fakeDevice struct {
	t     *testing.T
	read  int
	write int
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
	d := &fakeDevice{t: t, read: p[0], write: p[1]}
	t.Cleanup(func() { d.closeWriter() })
	return d
}

func (d *fakeDevice) send(raws ...RawEvent) {
	d.t.Helper()
	var buf []byte
	for _, r := range raws {
		buf = append(buf, encodeRawEvent(r)...)
	}
	_, err := unix.Write(d.write, buf)
	require.NoError(d.t, err)
}

func (d *fakeDevice) closeWriter() {
	if d.write >= 0 {
		unix.Close(d.write)
		d.write = -1
	}
}

func newTestReader(t *testing.T, devs ...*fakeDevice) *Reader {
	t.Helper()
	inputs := make([]*inputDevice, len(devs))
	for i, d := range devs {
		inputs[i] = &inputDevice{info: DeviceInfo{Path: "pipe", Name: "fake"}, fd: d.read}
	}
	r, err := newReader(inputs, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestReaderDecodesBatch(t *testing.T) {
	dev := newFakeDevice(t)
	r := newTestReader(t, dev)

	dev.send(keyRaw(LCtrl, 1), synRaw(), keyRaw(V, 1), synRaw())

	events, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []KeyEvent{{Key: LCtrl, Position: Press}, {Key: V, Position: Press}}, events)

	stats := r.Stats()
	assert.Equal(t, uint64(2), stats.Decoded)
	assert.Equal(t, uint64(2), stats.Dropped)
}

func TestReaderSkipsUndecodableInsideBatch(t *testing.T) {
	dev := newFakeDevice(t)
	r := newTestReader(t, dev)

	dev.send(
		RawEvent{Type: evdev.EvType(evdev.EV_MSC), Code: evdev.EvCode(evdev.MSC_SCAN), Value: 30},
		keyRaw(A, 2),
		RawEvent{Type: evdev.EvType(evdev.EV_KEY), Code: evdev.EvCode(evdev.KEY_MUTE), Value: 1},
		keyRaw(B, 1),
		synRaw(),
	)

	events, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []KeyEvent{{Key: B, Position: Press}}, events)
}

func TestReaderWaitsPastEmptyRounds(t *testing.T) {
	dev := newFakeDevice(t)
	r := newTestReader(t, dev)

	dev.send(keyRaw(A, 2), synRaw())

	done := make(chan []KeyEvent, 1)
	go func() {
		events, err := r.Read()
		if err != nil {
			t.Errorf("Read: %v", err)
		}
		done <- events
	}()

	select {
	case events := <-done:
		t.Fatalf("Read returned %v for a repeat-only round", events)
	case <-time.After(50 * time.Millisecond):
	}

	dev.send(keyRaw(A, 0), synRaw())

	select {
	case events := <-done:
		assert.Equal(t, []KeyEvent{{Key: A, Position: Release}}, events)
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after a decodable event")
	}
}

func TestReaderMultiplexesDevices(t *testing.T) {
	first := newFakeDevice(t)
	second := newFakeDevice(t)
	r := newTestReader(t, first, second)
	assert.Len(t, r.Devices(), 2)

	var viaFirst, viaSecond State
	first.send(keyRaw(LAlt, 1), synRaw())
	second.send(keyRaw(Q, 1), synRaw())
	for viaFirst.Len() < 2 {
		events, err := r.Read()
		require.NoError(t, err)
		viaFirst.ApplyEvents(events)
	}

	second.send(keyRaw(LAlt, 1), synRaw())
	first.send(keyRaw(Q, 1), synRaw())
	for viaSecond.Len() < 2 {
		events, err := r.Read()
		require.NoError(t, err)
		viaSecond.ApplyEvents(events)
	}

	assert.Equal(t, StateOf(LAlt, Q), viaFirst)
	assert.Equal(t, viaFirst, viaSecond)
}

func TestReaderFetchFailureIsIOError(t *testing.T) {
	dev := newFakeDevice(t)
	r := newTestReader(t, dev)

	dev.closeWriter()

	_, err := r.Read()
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr), "got %v", err)
	assert.Equal(t, "fetch device events", ioErr.Op)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderInterrupt(t *testing.T) {
	dev := newFakeDevice(t)
	r := newTestReader(t, dev)

	errc := make(chan error, 1)
	go func() {
		_, err := r.Read()
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Interrupt())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrInterrupted)
	case <-time.After(2 * time.Second):
		t.Fatal("Read was not interrupted")
	}

	// The wake signal is consumed; real events flow again.
	dev.send(keyRaw(Z, 1))
	events, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []KeyEvent{{Key: Z, Position: Press}}, events)
}

func TestReaderEventsWinOverPendingInterrupt(t *testing.T) {
	dev := newFakeDevice(t)
	r := newTestReader(t, dev)

	dev.send(keyRaw(C, 1))
	require.NoError(t, r.Interrupt())

	events, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []KeyEvent{{Key: C, Position: Press}}, events)

	_, err = r.Read()
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestReaderReadContext(t *testing.T) {
	dev := newFakeDevice(t)
	r := newTestReader(t, dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := r.ReadContext(ctx)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	dev.send(keyRaw(D, 1))
	events, err := r.ReadContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []KeyEvent{{Key: D, Position: Press}}, events)
}

func TestReaderReadContextAlreadyDone(t *testing.T) {
	dev := newFakeDevice(t)
	r := newTestReader(t, dev)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.ReadContext(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReaderClosed(t *testing.T) {
	dev := newFakeDevice(t)
	r := newTestReader(t, dev)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err := r.Read()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, r.Interrupt(), ErrClosed)
}
