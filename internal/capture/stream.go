// Package capture keeps the newest decoded frame of a camera available to
// readers while a background pipeline pulls and decodes frames.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/observability"
)

// ErrStopped is returned by Start on a stream that has been stopped.
var ErrStopped = errors.New("capture stream stopped")

// Source opens a camera for reading.
type Source interface {
	Open(ctx context.Context) (FrameReader, error)
}

// FrameReader yields encoded (JPEG) frames. Close unblocks a pending ReadFrame.
type FrameReader interface {
	ReadFrame() ([]byte, error)
	Close() error
}

type State int32

const (
	StateIdle State = iota
	StateOpening
	StateStreaming
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Stream owns one camera. The newest frame and its preview are published
// together so readers never see a preview of a different frame.
type Stream struct {
	id     string
	source Source
	cfg    config.CaptureConfig

	state atomic.Int32

	mu          sync.Mutex
	frame       *image.NRGBA
	preview     *image.NRGBA
	seq         uint64
	previewJPEG []byte
	jpegSeq     uint64

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	stopped   bool
}

func NewStream(id string, source Source, cfg config.CaptureConfig) *Stream {
	return &Stream{id: id, source: source, cfg: cfg}
}

func (s *Stream) ID() string {
	return s.id
}

func (s *Stream) State() State {
	return State(s.state.Load())
}

func (s *Stream) setState(st State) {
	if prev := State(s.state.Swap(int32(st))); prev != st {
		slog.Debug("capture state", "camera_id", s.id, "from", prev, "to", st)
	}
}

// Start launches the capture pipeline. Calling Start on a running stream is a
// no-op; a stopped stream cannot be restarted.
func (s *Stream) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.done != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.setState(StateOpening)

	go s.run(ctx)
	return nil
}

// Stop cancels the pipeline and waits up to the configured stop timeout for
// it to exit. It is safe to call more than once.
func (s *Stream) Stop() {
	s.lifecycle.Lock()
	if s.stopped {
		s.lifecycle.Unlock()
		return
	}
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.lifecycle.Unlock()

	if cancel == nil {
		s.setState(StateStopped)
		return
	}
	cancel()

	select {
	case <-done:
	case <-time.After(s.cfg.StopTimeout):
		slog.Warn("capture stream did not stop in time", "camera_id", s.id, "timeout", s.cfg.StopTimeout)
	}
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)
	defer s.setState(StateStopped)

	for {
		s.setState(StateOpening)
		reader, err := s.source.Open(ctx)
		if err == nil {
			s.setState(StateStreaming)
			slog.Info("capture stream opened", "camera_id", s.id)
			err = s.pump(ctx, reader)
		}
		if ctx.Err() != nil {
			return
		}

		slog.Warn("capture stream failed, reconnecting",
			"camera_id", s.id,
			"delay", s.cfg.ReconnectDelay,
			"error", err,
		)
		s.setState(StateReconnecting)
		observability.CaptureReconnects.WithLabelValues(s.id).Inc()

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

// pump runs a reader goroutine feeding a one-slot mailbox and decodes the
// newest frame whenever one is available. It returns when reading fails or
// ctx is cancelled, after closing the reader.
func (s *Stream) pump(ctx context.Context, reader FrameReader) error {
	mailbox := make(chan []byte, 1)
	errc := make(chan error, 1)
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		for {
			data, err := reader.ReadFrame()
			if err != nil {
				errc <- err
				return
			}
			select {
			case mailbox <- data:
			default:
				select {
				case <-mailbox:
					observability.FramesDropped.WithLabelValues(s.id).Inc()
				default:
				}
				select {
				case mailbox <- data:
				default:
				}
			}
		}
	}()

	defer func() {
		_ = reader.Close()
		<-readerDone
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			return fmt.Errorf("read frame: %w", err)
		case data := <-mailbox:
			if err := s.publish(data); err != nil {
				observability.FramesDropped.WithLabelValues(s.id).Inc()
				slog.Debug("decode frame", "camera_id", s.id, "error", err)
			}
		}
	}
}

func (s *Stream) publish(data []byte) error {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode jpeg: %w", err)
	}
	frame := imaging.Clone(img)

	preview := frame
	if w := s.cfg.PreviewWidth; w > 0 && frame.Bounds().Dx() > w {
		preview = imaging.Resize(frame, w, 0, imaging.Linear)
	}

	s.mu.Lock()
	s.frame = frame
	s.preview = preview
	s.seq++
	s.mu.Unlock()

	observability.FramesCaptured.WithLabelValues(s.id).Inc()
	return nil
}

// ReadLatest returns a copy of the newest full-resolution frame.
func (s *Stream) ReadLatest() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, false
	}
	return imaging.Clone(s.frame), true
}

// ReadPreview returns a copy of the downscaled preview of the newest frame.
func (s *Stream) ReadPreview() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preview == nil {
		return nil, false
	}
	return imaging.Clone(s.preview), true
}

// PreviewJPEG returns the preview encoded as JPEG. The encoding is cached
// until the next frame arrives.
func (s *Stream) PreviewJPEG() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preview == nil {
		return nil, false
	}
	if s.previewJPEG == nil || s.jpegSeq != s.seq {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, s.preview, &jpeg.Options{Quality: 80}); err != nil {
			slog.Warn("encode preview", "camera_id", s.id, "error", err)
			return nil, false
		}
		s.previewJPEG = buf.Bytes()
		s.jpegSeq = s.seq
	}
	return bytes.Clone(s.previewJPEG), true
}

// Seq counts published frames; readers use it to skip frames already seen.
func (s *Stream) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
