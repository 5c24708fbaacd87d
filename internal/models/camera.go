package models

import "time"

type CameraStatus string

const (
	CameraStatusStopped  CameraStatus = "stopped"
	CameraStatusStarting CameraStatus = "starting"
	CameraStatusRunning  CameraStatus = "running"
	CameraStatusError    CameraStatus = "error"
)

// Camera is a capture source: a device index, a file path, or an RTSP/HTTP URL.
type Camera struct {
	ID           int64        `json:"id" db:"id"`
	Name         string       `json:"name" db:"name"`
	Source       string       `json:"source" db:"source"`
	IsActive     bool         `json:"is_active" db:"is_active"`
	IsSelected   bool         `json:"is_selected" db:"is_selected"`
	Status       CameraStatus `json:"status" db:"status"`
	ErrorMessage string       `json:"error_message,omitempty" db:"error_message"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}
