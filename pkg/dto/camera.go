package dto

import (
	"time"

	"github.com/your-org/attendance/internal/models"
)

type CameraResponse struct {
	models.Camera
	Running      bool   `json:"running"`
	CaptureState string `json:"capture_state,omitempty"`
}

type CameraListResponse struct {
	Cameras []CameraResponse `json:"cameras"`
}

// DetectionsResponse is the latest recognition result of a camera.
type DetectionsResponse struct {
	CameraID    int64              `json:"camera_id"`
	At          time.Time          `json:"at"`
	FrameWidth  int                `json:"frame_width"`
	FrameHeight int                `json:"frame_height"`
	Detections  []models.Detection `json:"detections"`
}

type RecognizeResponse struct {
	Width      int                `json:"width"`
	Height     int                `json:"height"`
	Detections []models.Detection `json:"detections"`
}
