package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendance/internal/capture"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/recognition"
	"github.com/your-org/attendance/pkg/dto"
)

const mjpegBoundary = "frame"

// CameraReader looks up registered cameras.
type CameraReader interface {
	ListCameras(ctx context.Context) ([]models.Camera, error)
	GetCamera(ctx context.Context, id int64) (*models.Camera, error)
}

// Pipelines controls the running camera pipelines.
type Pipelines interface {
	Start(cam models.Camera) error
	Stop(cameraID int64) error
	Running(cameraID int64) bool
	CaptureState(cameraID int64) (capture.State, bool)
	Latest(cameraID int64) (recognition.Snapshot, bool)
	Preview(cameraID int64) ([]byte, bool)
}

type CameraHandler struct {
	cameras   CameraReader
	pipelines Pipelines
	interval  time.Duration
}

// NewCameraHandler streams previews at fps frames per second.
func NewCameraHandler(cameras CameraReader, pipelines Pipelines, fps int) *CameraHandler {
	if fps <= 0 {
		fps = 10
	}
	return &CameraHandler{cameras: cameras, pipelines: pipelines, interval: time.Second / time.Duration(fps)}
}

func (h *CameraHandler) List(c *gin.Context) {
	cams, err := h.cameras.ListCameras(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.CameraResponse, 0, len(cams))
	for _, cam := range cams {
		resp = append(resp, h.cameraResponse(cam))
	}
	c.JSON(http.StatusOK, dto.CameraListResponse{Cameras: resp})
}

func (h *CameraHandler) Start(c *gin.Context) {
	cam, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := h.pipelines.Start(*cam); err != nil {
		if errors.Is(err, recognition.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.cameraResponse(*cam))
}

func (h *CameraHandler) Stop(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	if !h.pipelines.Running(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not running"})
		return
	}
	if err := h.pipelines.Stop(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// Detections returns the latest recognition result of a running camera.
func (h *CameraHandler) Detections(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	snap, ok := h.pipelines.Latest(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not running"})
		return
	}

	detections := snap.Detections
	if detections == nil {
		detections = []models.Detection{}
	}
	c.JSON(http.StatusOK, dto.DetectionsResponse{
		CameraID:    id,
		At:          snap.At,
		FrameWidth:  snap.FrameSize.X,
		FrameHeight: snap.FrameSize.Y,
		Detections:  detections,
	})
}

// Stream serves the annotated preview as multipart MJPEG until the client
// goes away or the camera stops. It never runs detection itself.
func (h *CameraHandler) Stream(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	if !h.pipelines.Running(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not running"})
		return
	}

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Header("Cache-Control", "no-cache, no-store")
	c.Header("Connection", "close")
	c.Status(http.StatusOK)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		if data, ok := h.pipelines.Preview(id); ok {
			if err := writePart(c, data); err != nil {
				return
			}
		} else if !h.pipelines.Running(id) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func writePart(c *gin.Context, jpeg []byte) error {
	if _, err := fmt.Fprintf(c.Writer, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(jpeg)); err != nil {
		return err
	}
	if _, err := c.Writer.Write(jpeg); err != nil {
		return err
	}
	if _, err := c.Writer.WriteString("\r\n"); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

func (h *CameraHandler) cameraResponse(cam models.Camera) dto.CameraResponse {
	resp := dto.CameraResponse{Camera: cam}
	if state, ok := h.pipelines.CaptureState(cam.ID); ok {
		resp.Running = true
		resp.CaptureState = state.String()
	}
	return resp
}

func (h *CameraHandler) lookup(c *gin.Context) (*models.Camera, bool) {
	id, ok := cameraID(c)
	if !ok {
		return nil, false
	}
	cam, err := h.cameras.GetCamera(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if cam == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return nil, false
	}
	return cam, true
}

func cameraID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera id"})
		return 0, false
	}
	return id, true
}
