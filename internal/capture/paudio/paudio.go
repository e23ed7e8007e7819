// Package paudio implements capture.Device on top of PortAudio.
//
// Requires the portaudio C library (pkg-config portaudio-2.0).
package paudio

import (
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"

	"voxcanvas/internal/capture"
)

// Device opens the system default input device as a mono float32 stream.
type Device struct{}

var _ capture.Device = Device{}

// Open initializes PortAudio and opens a callback-driven input stream. The
// returned stream terminates PortAudio when closed.
func (Device) Open(sampleRate, framesPerBuffer int, callback func(in []float32)) (capture.Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, classify(fmt.Errorf("portaudio init: %w", err))
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, func(in []float32) {
		callback(in)
	})
	if err != nil {
		_ = portaudio.Terminate()
		return nil, classify(fmt.Errorf("open default stream: %w", err))
	}
	return &inputStream{s: stream}, nil
}

type inputStream struct {
	s *portaudio.Stream
}

func (st *inputStream) Start() error {
	if err := st.s.Start(); err != nil {
		return classify(fmt.Errorf("start stream: %w", err))
	}
	return nil
}

func (st *inputStream) Stop() error { return st.s.Stop() }

func (st *inputStream) Close() error {
	err := st.s.Close()
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}

func classify(err error) error {
	kind := capture.ErrDeviceUnavailable
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "not permitted") {
		kind = capture.ErrPermissionDenied
	}
	return &capture.Error{Kind: kind, Err: err}
}
