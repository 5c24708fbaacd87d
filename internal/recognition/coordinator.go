package recognition

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/attendance/internal/adaptive"
	"github.com/your-org/attendance/internal/attendance"
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/vision"
)

const photoQuality = 90

// Frames is the capture side of a coordinator. *capture.Stream implements it.
type Frames interface {
	ReadLatest() (image.Image, bool)
	Seq() uint64
}

// ScopedStore is a store connection owned by one coordinator until Release.
type ScopedStore interface {
	attendance.Store
	adaptive.ProfileStore
	Release()
}

// Acquirer hands out scoped store connections.
type Acquirer func(ctx context.Context) (ScopedStore, error)

// Snapshot is the latest recognition result of a camera.
type Snapshot struct {
	Detections []models.Detection
	FrameSize  image.Point
	At         time.Time
}

// Coordinator polls one camera, recognizes faces and logs attendance for
// confidently recognized employees.
type Coordinator struct {
	cameraID   string
	frames     Frames
	recognizer *Recognizer
	learner    *adaptive.Learner
	attendance *attendance.Service
	acquire    Acquirer
	cfg        config.RecognitionConfig

	mu     sync.RWMutex
	latest Snapshot

	outcomes chan<- Event
}

// Event is an attendance outcome produced by a coordinator.
type Event struct {
	CameraID   string
	EmployeeID int64
	Name       string
	Outcome    attendance.Outcome
}

func NewCoordinator(
	cameraID string,
	frames Frames,
	recognizer *Recognizer,
	learner *adaptive.Learner,
	svc *attendance.Service,
	acquire Acquirer,
	cfg config.RecognitionConfig,
) *Coordinator {
	return &Coordinator{
		cameraID:   cameraID,
		frames:     frames,
		recognizer: recognizer,
		learner:    learner,
		attendance: svc,
		acquire:    acquire,
		cfg:        cfg,
	}
}

// OnEvent routes attendance outcomes to ch. Sends never block; events are
// dropped when ch is full.
func (c *Coordinator) OnEvent(ch chan<- Event) {
	c.outcomes = ch
}

// Latest returns a copy of the most recent recognition result.
func (c *Coordinator) Latest() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.latest
	s.Detections = make([]models.Detection, len(c.latest.Detections))
	for i, d := range c.latest.Detections {
		s.Detections[i] = d.Clone()
	}
	return s
}

// Run polls until ctx is cancelled. The store connection is acquired lazily
// and released on exit; after a store failure it is replaced on the next tick.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	var conn ScopedStore
	defer func() {
		if conn != nil {
			conn.Release()
		}
	}()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		seq := c.frames.Seq()
		if seq == lastSeq {
			continue
		}
		img, ok := c.frames.ReadLatest()
		if !ok {
			continue
		}
		lastSeq = seq

		results := c.recognizer.recognize(ctx, img)
		c.publish(results, img.Bounds().Size())

		for _, res := range results {
			if !res.Recognized() {
				continue
			}
			// Every accepted match feeds the learner, so a weak one can
			// break a trusted streak. Only confident matches are logged.
			loggable := res.Confidence > c.cfg.LogMinConfidence
			if !loggable && c.learner == nil {
				continue
			}
			if conn == nil {
				var err error
				if conn, err = c.acquire(ctx); err != nil {
					slog.Error("acquire store connection", "camera_id", c.cameraID, "error", err)
					conn = nil
					break
				}
			}
			c.learn(ctx, conn, res)
			if !loggable {
				continue
			}
			if err := c.handle(ctx, conn, res); errors.Is(err, attendance.ErrStoreFailure) {
				conn.Release()
				conn = nil
				break
			}
		}
	}
}

func (c *Coordinator) publish(results []result, size image.Point) {
	dets := make([]models.Detection, len(results))
	for i, r := range results {
		dets[i] = r.Detection
		observability.FacesDetected.WithLabelValues(c.cameraID, string(r.State)).Inc()
		if r.Recognized() {
			observability.FacesRecognized.WithLabelValues(c.cameraID).Inc()
		}
	}

	c.mu.Lock()
	c.latest = Snapshot{Detections: dets, FrameSize: size, At: time.Now()}
	c.mu.Unlock()
}

func (c *Coordinator) learn(ctx context.Context, conn ScopedStore, res result) {
	if c.learner == nil {
		return
	}
	c.learner.Observe(ctx, conn, adaptive.Observation{
		EmployeeID: *res.EmployeeID,
		Embedding:  res.Embedding,
		Confidence: res.Confidence,
		Liveness:   res.Liveness,
	})
}

func (c *Coordinator) handle(ctx context.Context, conn ScopedStore, res result) error {
	employeeID := *res.EmployeeID

	var photo []byte
	if res.crop != nil {
		var err error
		if photo, err = vision.EncodeJPEG(res.crop, photoQuality); err != nil {
			slog.Warn("encode attendance photo", "camera_id", c.cameraID, "error", err)
		}
	}

	out, err := c.attendance.WithStore(conn).EvaluateAndLog(ctx, attendance.Request{
		EmployeeID: employeeID,
		CameraID:   c.cameraID,
		Confidence: res.Confidence,
		Photo:      photo,
	})
	if err != nil {
		slog.Error("evaluate attendance",
			"camera_id", c.cameraID,
			"employee_id", employeeID,
			"error", err,
		)
		return err
	}

	if out.Status == attendance.StatusBlocked {
		slog.Debug("attendance blocked",
			"camera_id", c.cameraID,
			"employee_id", employeeID,
			"reason", out.Reason,
		)
	}
	if out.Status != attendance.StatusDebounced && c.outcomes != nil {
		select {
		case c.outcomes <- Event{CameraID: c.cameraID, EmployeeID: employeeID, Name: res.Name, Outcome: out}:
		default:
		}
	}
	return nil
}
