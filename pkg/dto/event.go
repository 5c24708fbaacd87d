package dto

import (
	"time"

	"github.com/your-org/attendance/internal/models"
)

// AttendanceEvent describes one attendance outcome pushed to live clients.
type AttendanceEvent struct {
	RecordID      int64   `json:"record_id,omitempty"`
	EmployeeID    int64   `json:"employee_id"`
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	Type          string  `json:"type,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	Message       string  `json:"message"`
	WorkedMinutes *int    `json:"worked_minutes,omitempty"`
	Confidence    float64 `json:"confidence,omitempty"`
}

// WSEvent is a WebSocket message for real-time event delivery.
type WSEvent struct {
	Type      string          `json:"type"` // attendance_logged, attendance_blocked, camera_status
	CameraID  string          `json:"camera_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      AttendanceEvent `json:"data,omitempty"`
	Status    string          `json:"status,omitempty"`
}

// NewLoggedEvent builds the live event for a stored attendance record.
func NewLoggedEvent(rec models.AttendanceRecord) WSEvent {
	return WSEvent{
		Type:      "attendance_logged",
		CameraID:  rec.CameraID,
		Timestamp: rec.Timestamp,
		Data: AttendanceEvent{
			RecordID:      rec.ID,
			EmployeeID:    rec.EmployeeID,
			Name:          rec.EmployeeName,
			Status:        "logged",
			Type:          string(rec.Type),
			Message:       string(rec.Type) + " logged for " + rec.EmployeeName,
			WorkedMinutes: rec.WorkedMinutes,
			Confidence:    rec.Confidence,
		},
	}
}

// NewBlockedEvent builds the live event for a refused attendance attempt.
func NewBlockedEvent(cameraID string, employeeID int64, name, reason, message string) WSEvent {
	return WSEvent{
		Type:      "attendance_blocked",
		CameraID:  cameraID,
		Timestamp: time.Now(),
		Data: AttendanceEvent{
			EmployeeID: employeeID,
			Name:       name,
			Status:     "blocked",
			Reason:     reason,
			Message:    message,
		},
	}
}
