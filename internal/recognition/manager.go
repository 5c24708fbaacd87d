package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/your-org/attendance/internal/adaptive"
	"github.com/your-org/attendance/internal/attendance"
	"github.com/your-org/attendance/internal/capture"
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/vision"
)

// ErrAlreadyRunning is returned when starting a camera that has a pipeline.
var ErrAlreadyRunning = errors.New("camera already running")

// CameraStore records camera pipeline status.
type CameraStore interface {
	UpdateCameraStatus(ctx context.Context, id int64, status models.CameraStatus, errMsg string) error
}

// SourceFunc builds the capture source for a camera.
type SourceFunc func(cam models.Camera) capture.Source

type pipeline struct {
	camera models.Camera
	stream *capture.Stream
	coord  *Coordinator
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager runs one capture stream and one coordinator per started camera.
type Manager struct {
	recognizer *Recognizer
	learner    *adaptive.Learner
	attendance *attendance.Service
	acquire    Acquirer
	cameras    CameraStore
	newSource  SourceFunc
	captureCfg config.CaptureConfig
	recognCfg  config.RecognitionConfig
	events     chan Event

	mu        sync.RWMutex
	pipelines map[int64]*pipeline
}

func NewManager(
	recognizer *Recognizer,
	learner *adaptive.Learner,
	svc *attendance.Service,
	acquire Acquirer,
	cameras CameraStore,
	captureCfg config.CaptureConfig,
	recognCfg config.RecognitionConfig,
) *Manager {
	return &Manager{
		recognizer: recognizer,
		learner:    learner,
		attendance: svc,
		acquire:    acquire,
		cameras:    cameras,
		newSource:  FFmpegSource(captureCfg.FPS),
		captureCfg: captureCfg,
		recognCfg:  recognCfg,
		events:     make(chan Event, 64),
		pipelines:  make(map[int64]*pipeline),
	}
}

// FFmpegSource returns a SourceFunc decoding each camera with ffmpeg.
func FFmpegSource(fps int) SourceFunc {
	return func(cam models.Camera) capture.Source {
		return &capture.FFmpegSource{Input: cam.Source, FPS: fps}
	}
}

// WithSource replaces how capture sources are built.
func (m *Manager) WithSource(fn SourceFunc) *Manager {
	m.newSource = fn
	return m
}

// Events delivers attendance outcomes from every camera.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Start launches the pipeline for cam.
func (m *Manager) Start(cam models.Camera) error {
	m.mu.Lock()
	if _, exists := m.pipelines[cam.ID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("camera %d: %w", cam.ID, ErrAlreadyRunning)
	}

	id := strconv.FormatInt(cam.ID, 10)
	stream := capture.NewStream(id, m.newSource(cam), m.captureCfg)
	coord := NewCoordinator(id, stream, m.recognizer, m.learner, m.attendance, m.acquire, m.recognCfg)
	coord.OnEvent(m.events)

	ctx, cancel := context.WithCancel(context.Background())
	p := &pipeline{
		camera: cam,
		stream: stream,
		coord:  coord,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.pipelines[cam.ID] = p
	m.mu.Unlock()

	m.updateStatus(cam.ID, models.CameraStatusStarting, "")
	if err := stream.Start(); err != nil {
		cancel()
		close(p.done)
		m.remove(cam.ID)
		m.updateStatus(cam.ID, models.CameraStatusError, err.Error())
		return fmt.Errorf("start capture: %w", err)
	}

	observability.ActiveCameras.Inc()
	m.updateStatus(cam.ID, models.CameraStatusRunning, "")
	slog.Info("camera pipeline started", "camera_id", cam.ID, "name", cam.Name)

	go func() {
		defer close(p.done)
		defer func() {
			stream.Stop()
			m.remove(cam.ID)
			observability.ActiveCameras.Dec()
			slog.Info("camera pipeline stopped", "camera_id", cam.ID)
		}()

		if err := coord.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("recognition loop failed", "camera_id", cam.ID, "error", err)
			m.updateStatus(cam.ID, models.CameraStatusError, err.Error())
			return
		}
		m.updateStatus(cam.ID, models.CameraStatusStopped, "")
	}()

	return nil
}

// Stop stops a camera pipeline and waits for it to exit. Stopping a camera
// that is not running is a no-op.
func (m *Manager) Stop(cameraID int64) error {
	m.mu.RLock()
	p, exists := m.pipelines[cameraID]
	m.mu.RUnlock()
	if !exists {
		return nil
	}

	p.cancel()
	p.stream.Stop()

	select {
	case <-p.done:
		return nil
	case <-time.After(m.captureCfg.StopTimeout):
		return fmt.Errorf("camera %d did not stop within %s", cameraID, m.captureCfg.StopTimeout)
	}
}

// StopAll stops every running pipeline.
func (m *Manager) StopAll() {
	m.mu.RLock()
	ids := make([]int64, 0, len(m.pipelines))
	for id := range m.pipelines {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := m.Stop(id); err != nil {
				slog.Warn("stop camera", "camera_id", id, "error", err)
			}
		}(id)
	}
	wg.Wait()
}

// ActiveCount returns the number of running pipelines.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pipelines)
}

// Running reports whether a camera has a pipeline.
func (m *Manager) Running(cameraID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pipelines[cameraID]
	return ok
}

// Latest returns the newest recognition result of a camera.
func (m *Manager) Latest(cameraID int64) (Snapshot, bool) {
	p, ok := m.get(cameraID)
	if !ok {
		return Snapshot{}, false
	}
	return p.coord.Latest(), true
}

// Preview returns the newest preview frame annotated with the latest
// detections, encoded as JPEG.
func (m *Manager) Preview(cameraID int64) ([]byte, bool) {
	p, ok := m.get(cameraID)
	if !ok {
		return nil, false
	}
	snap := p.coord.Latest()
	if len(snap.Detections) == 0 {
		return p.stream.PreviewJPEG()
	}
	preview, ok := p.stream.ReadPreview()
	if !ok {
		return nil, false
	}
	data, err := vision.EncodeJPEG(Annotate(preview, snap), 80)
	if err != nil {
		slog.Warn("encode preview", "camera_id", cameraID, "error", err)
		return nil, false
	}
	return data, true
}

// CaptureState returns the capture state of a running camera.
func (m *Manager) CaptureState(cameraID int64) (capture.State, bool) {
	p, ok := m.get(cameraID)
	if !ok {
		return capture.StateStopped, false
	}
	return p.stream.State(), true
}

func (m *Manager) get(cameraID int64) (*pipeline, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pipelines[cameraID]
	return p, ok
}

func (m *Manager) remove(cameraID int64) {
	m.mu.Lock()
	delete(m.pipelines, cameraID)
	m.mu.Unlock()
}

func (m *Manager) updateStatus(cameraID int64, status models.CameraStatus, errMsg string) {
	if m.cameras == nil {
		return
	}
	if err := m.cameras.UpdateCameraStatus(context.Background(), cameraID, status, errMsg); err != nil {
		slog.Error("update camera status", "camera_id", cameraID, "error", err)
	}
}
