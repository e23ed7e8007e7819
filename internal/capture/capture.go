// Package capture turns a microphone stream into fixed-size PCM frames.
//
// The device delivers buffers from its own callback goroutine. Every
// complete frame is handed to the configured sink immediately; frames that
// complete after Stop has been requested are discarded.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

const (
	// SampleRate is the fixed capture rate in Hz.
	SampleRate = 16000
	// FrameSize is the number of mono samples per frame.
	FrameSize = 4096
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
)

// Error is returned by Start when the device cannot be acquired.
type Error struct {
	Kind error // ErrPermissionDenied or ErrDeviceUnavailable
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "capture: " + e.Kind.Error()
	}
	return fmt.Sprintf("capture: %v: %v", e.Kind, e.Err)
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// Frame is one block of FrameSize mono float32 samples. Frames are never
// modified after they are produced.
type Frame struct {
	Seq     uint64
	Samples []float32
}

// Sink receives frames in production order.
type Sink func(Frame)

// Device opens the default input device. The callback is invoked from the
// device's own goroutine with buffers of arbitrary length; it must not
// retain the slice.
type Device interface {
	Open(sampleRate, framesPerBuffer int, callback func(in []float32)) (Stream, error)
}

// Stream is an opened device stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Pipeline owns one device stream at a time.
type Pipeline struct {
	device Device
	sink   Sink

	mu     sync.Mutex
	stream Stream
	active atomic.Bool

	// gen distinguishes callbacks of the current stream from stale ones.
	gen atomic.Uint64

	dropped   atomic.Uint64
	onDiscard func()
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDiscardHook is called for every frame dropped by the stop guard.
func WithDiscardHook(fn func()) Option {
	return func(p *Pipeline) { p.onDiscard = fn }
}

// New creates a pipeline that forwards frames to sink.
func New(device Device, sink Sink, opts ...Option) *Pipeline {
	p := &Pipeline{device: device, sink: sink}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start acquires the device and begins producing frames. Starting an
// already running pipeline is a no-op.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return nil
	}

	gen := p.gen.Add(1)
	fr := &framer{}
	stream, err := p.device.Open(SampleRate, FrameSize, func(in []float32) {
		p.onBuffer(gen, fr, in)
	})
	if err != nil {
		return asCaptureError(err)
	}

	p.active.Store(true)
	if err := stream.Start(); err != nil {
		p.active.Store(false)
		_ = stream.Close()
		return asCaptureError(err)
	}

	p.stream = stream
	slog.Info("audio capture started", "sample_rate", SampleRate, "frame_size", FrameSize)
	return nil
}

// Stop releases the stream. It is idempotent and safe to call before Start.
func (p *Pipeline) Stop() {
	// Flip the flag before touching the device so callbacks already in
	// flight see it.
	p.active.Store(false)

	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	p.mu.Unlock()

	if stream == nil {
		return
	}
	if err := stream.Stop(); err != nil {
		slog.Warn("audio stream stop failed", "err", err)
	}
	if err := stream.Close(); err != nil {
		slog.Warn("audio stream close failed", "err", err)
	}
	slog.Info("audio capture stopped", "discarded", p.dropped.Load())
}

// Active reports whether frames are currently being forwarded.
func (p *Pipeline) Active() bool { return p.active.Load() }

// Discarded returns the number of frames dropped by the stop guard.
func (p *Pipeline) Discarded() uint64 { return p.dropped.Load() }

func (p *Pipeline) onBuffer(gen uint64, fr *framer, in []float32) {
	for _, f := range fr.push(in) {
		if !p.active.Load() || p.gen.Load() != gen {
			p.dropped.Add(1)
			if p.onDiscard != nil {
				p.onDiscard()
			}
			continue
		}
		p.sink(f)
	}
}

// framer accumulates device buffers into FrameSize frames. Each stream gets
// its own framer, so a partial frame never leaks into the next capture.
type framer struct {
	mu  sync.Mutex
	buf []float32
	seq uint64
}

func (f *framer) push(in []float32) []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf = append(f.buf, in...)
	var out []Frame
	for len(f.buf) >= FrameSize {
		samples := make([]float32, FrameSize)
		copy(samples, f.buf[:FrameSize])
		f.buf = f.buf[FrameSize:]
		out = append(out, Frame{Seq: f.seq, Samples: samples})
		f.seq++
	}
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return out
}

func asCaptureError(err error) error {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr
	}
	if errors.Is(err, ErrPermissionDenied) {
		return &Error{Kind: ErrPermissionDenied, Err: err}
	}
	return &Error{Kind: ErrDeviceUnavailable, Err: err}
}
