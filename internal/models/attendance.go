package models

import "time"

type LogType string

const (
	LogTypeEntry LogType = "ENTRY"
	LogTypeExit  LogType = "EXIT"
)

type AttendanceRecord struct {
	ID            int64     `json:"id" db:"id"`
	EmployeeID    int64     `json:"employee_id" db:"employee_id"`
	EmployeeName  string    `json:"employee_name" db:"employee_name"`
	CameraID      string    `json:"camera_id" db:"camera_id"`
	Confidence    float64   `json:"confidence" db:"confidence"`
	Type          LogType   `json:"type" db:"type"`
	WorkedMinutes *int      `json:"worked_minutes,omitempty" db:"worked_minutes"`
	Timestamp     time.Time `json:"timestamp" db:"logged_at"`
	LogDate       time.Time `json:"log_date" db:"log_date"`
	PhotoKey      string    `json:"photo_key,omitempty" db:"photo_key"`
}

// AttendanceFilter narrows attendance log queries. Zero values are ignored.
type AttendanceFilter struct {
	EmployeeID *int64
	CameraID   string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
