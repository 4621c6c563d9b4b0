//go:build linux

package keyboard

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// wakeToken marks the eventfd used to interrupt a blocked Read.
const wakeToken int32 = -1

// maxReadyEvents bounds the readiness batch of one epoll_wait call.
const maxReadyEvents = 32

type inputDevice struct {
	info DeviceInfo
	fd   int
}

// Reader multiplexes the event streams of every discovered keyboard.
// It exclusively owns the device descriptors until Close. Read and Close
// must be called from one goroutine; Interrupt may be called from any.
type Reader struct {
	epfd    int
	wakefd  int
	devices map[int32]*inputDevice
	ready   []unix.EpollEvent
	buf     []byte
	log     *slog.Logger
	closed  atomic.Bool

	reads   atomic.Uint64
	decoded atomic.Uint64
	dropped atomic.Uint64
}

// ReaderStats are cumulative counters of a Reader.
type ReaderStats struct {
	Reads   uint64
	Decoded uint64
	Dropped uint64
}

// NewReader discovers keyboards and registers them with an epoll instance.
// It fails with ErrKeyboardNotFound when no device is eligible.
func NewReader(opts ...Option) (*Reader, error) {
	o := buildOptions(opts)

	all, err := scanDevices(o.log)
	if err != nil {
		return nil, err
	}
	return openReader(all, o)
}

// openReader opens the eligible devices among all read-only and
// non-blocking. Devices that cannot be opened are skipped.
func openReader(all []DeviceInfo, o options) (*Reader, error) {
	var devices []*inputDevice
	for _, info := range filterDevices(all, o.reference, o.log) {
		fd, err := unix.Open(info.Path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			o.log.Warn("cannot open keyboard", "path", info.Path, "error", err)
			continue
		}
		o.log.Info("found device", "name", info.Name, "path", info.Path)
		devices = append(devices, &inputDevice{info: info, fd: fd})
	}
	if len(devices) == 0 {
		return nil, ErrKeyboardNotFound
	}

	return newReader(devices, o.log)
}

// newReader takes ownership of the given descriptors, closing them on failure.
func newReader(devices []*inputDevice, log *slog.Logger) (*Reader, error) {
	closeAll := func() {
		for _, d := range devices {
			unix.Close(d.fd)
		}
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		closeAll()
		return nil, ioError("creating poll", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		closeAll()
		return nil, ioError("creating wake event", err)
	}

	r := &Reader{
		epfd:    epfd,
		wakefd:  wakefd,
		devices: make(map[int32]*inputDevice, len(devices)),
		ready:   make([]unix.EpollEvent, maxReadyEvents),
		buf:     make([]byte, rawEventSize*64),
		log:     log,
	}

	if err := r.register(wakefd, wakeToken); err != nil {
		r.closeFds()
		closeAll()
		return nil, ioError("register wake event", err)
	}
	for i, d := range devices {
		token := int32(i)
		if err := r.register(d.fd, token); err != nil {
			r.closeFds()
			closeAll()
			return nil, ioError("register device", err)
		}
		r.devices[token] = d
	}
	return r, nil
}

func (r *Reader) register(fd int, token int32) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: token}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Devices returns the devices the reader listens to.
func (r *Reader) Devices() []DeviceInfo {
	infos := make([]DeviceInfo, 0, len(r.devices))
	for i := int32(0); i < int32(len(r.devices)); i++ {
		if d, ok := r.devices[i]; ok {
			infos = append(infos, d.info)
		}
	}
	return infos
}

// Stats returns the reader counters.
func (r *Reader) Stats() ReaderStats {
	return ReaderStats{
		Reads:   r.reads.Load(),
		Decoded: r.decoded.Load(),
		Dropped: r.dropped.Load(),
	}
}

// Read blocks until at least one key event has been decoded. Readiness
// rounds that only carry unsupported events (sync, scan codes, repeats) are
// absorbed and the wait resumes. It returns ErrInterrupted when Interrupt
// was called and no key event is pending.
func (r *Reader) Read() ([]KeyEvent, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	r.reads.Add(1)

	for {
		n, err := unix.EpollWait(r.epfd, r.ready, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, ioError("poll events", err)
		}

		var events []KeyEvent
		woken := false
		for _, ready := range r.ready[:n] {
			if ready.Fd == wakeToken {
				woken = true
				continue
			}
			dev, ok := r.devices[ready.Fd]
			if !ok {
				r.log.Error("an event was detected that does not belong to a registered device", "token", ready.Fd)
				continue
			}
			raws, err := r.fetch(dev)
			if err != nil {
				return nil, ioError("fetch device events", err)
			}
			events = r.decode(raws, events)
		}

		if len(events) > 0 {
			// A pending wake stays armed and ends the next Read.
			return events, nil
		}
		if woken {
			r.drainWake()
			return nil, ErrInterrupted
		}
	}
}

// ReadContext is Read that also returns when ctx is done. The returned
// error then wraps both ErrInterrupted and the context error.
func (r *Reader) ReadContext(ctx context.Context) ([]KeyEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrInterrupted, err)
	}

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		if err := r.Interrupt(); err != nil {
			r.log.Warn("interrupt keyboard read", "error", err)
		}
	})

	events, err := r.Read()
	if !stop() {
		<-fired
		if err == nil {
			r.drainWake()
		}
	}
	if errors.Is(err, ErrInterrupted) && ctx.Err() != nil {
		return nil, errors.Join(ErrInterrupted, ctx.Err())
	}
	return events, err
}

// Interrupt wakes a blocked Read, which returns ErrInterrupted.
func (r *Reader) Interrupt() error {
	if r.closed.Load() {
		return ErrClosed
	}
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(r.wakefd, one[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return ioError("signal wake event", err)
	}
	return nil
}

func (r *Reader) drainWake() {
	var counter [8]byte
	_, _ = unix.Read(r.wakefd, counter[:])
}

// fetch drains every pending record of a non-blocking device.
func (r *Reader) fetch(dev *inputDevice) ([]RawEvent, error) {
	var raws []RawEvent
	for {
		n, err := unix.Read(dev.fd, r.buf)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return raws, nil
		case err != nil:
			return nil, err
		case n == 0:
			return nil, io.EOF
		}
		raws = append(raws, parseRawEvents(r.buf[:n])...)
		if n < len(r.buf) {
			return raws, nil
		}
	}
}

func (r *Reader) decode(raws []RawEvent, events []KeyEvent) []KeyEvent {
	for _, raw := range raws {
		ev, err := raw.Decode()
		if err != nil {
			r.dropped.Add(1)
			r.log.Debug("not implemented input event", "type", raw.Type, "code", raw.Code, "value", raw.Value, "reason", err)
			continue
		}
		r.decoded.Add(1)
		events = append(events, ev)
	}
	return events
}

// Close releases every device descriptor and the multiplexer.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	for _, d := range r.devices {
		if err := unix.Close(d.fd); err != nil {
			errs = append(errs, ioError("close device "+d.info.Path, err))
		}
	}
	if err := r.closeFds(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Reader) closeFds() error {
	return errors.Join(unix.Close(r.wakefd), unix.Close(r.epfd))
}
