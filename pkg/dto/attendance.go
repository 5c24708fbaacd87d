package dto

import (
	"time"

	"github.com/your-org/attendance/internal/models"
)

type LogAttendanceRequest struct {
	EmployeeID int64   `json:"employee_id" binding:"required"`
	CameraID   string  `json:"camera_id"`
	Confidence float64 `json:"confidence" binding:"required,gt=0,lte=1"`
}

// AttendanceOutcome is the result of an attendance attempt. Status is one of
// logged, blocked, debounced.
type AttendanceOutcome struct {
	Status           string                   `json:"status"`
	Type             string                   `json:"type,omitempty"`
	WorkedMinutes    *int                     `json:"worked_minutes,omitempty"`
	Reason           string                   `json:"reason,omitempty"`
	Message          string                   `json:"message"`
	RemainingMinutes int                      `json:"remaining_minutes,omitempty"`
	Record           *models.AttendanceRecord `json:"record,omitempty"`
}

type AttendanceQuery struct {
	EmployeeID *int64 `form:"employee_id"`
	CameraID   string `form:"camera_id"`
	From       string `form:"from"`
	To         string `form:"to"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

type AttendanceListResponse struct {
	Records []models.AttendanceRecord `json:"records"`
	Count   int                       `json:"count"`
}

type WorkTimeResponse struct {
	EmployeeID    int64      `json:"employee_id"`
	Date          string     `json:"date"`
	Entry         *time.Time `json:"entry,omitempty"`
	Exit          *time.Time `json:"exit,omitempty"`
	WorkedMinutes int        `json:"worked_minutes"`
	Status        string     `json:"status"`
}
