package queue

import "testing"

func TestAttendanceSubject(t *testing.T) {
	tests := []struct {
		cameraID string
		want     string
	}{
		{"0", "attendance.0"},
		{"", "attendance.manual"},
		{"lobby.east", "attendance.lobby_east"},
		{"gate *", "attendance.gate__"},
	}
	for _, tt := range tests {
		if got := AttendanceSubject(tt.cameraID); got != tt.want {
			t.Errorf("AttendanceSubject(%q) = %q, want %q", tt.cameraID, got, tt.want)
		}
	}
}
