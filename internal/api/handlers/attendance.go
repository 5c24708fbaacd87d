package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendance/internal/attendance"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/pkg/dto"
)

const dateLayout = "2006-01-02"

// AttendanceReader lists stored attendance records.
type AttendanceReader interface {
	QueryAttendance(ctx context.Context, f models.AttendanceFilter) ([]models.AttendanceRecord, error)
	GetAttendance(ctx context.Context, id int64) (*models.AttendanceRecord, error)
}

// PhotoGetter fetches stored photos. A missing photo yields nil, nil.
type PhotoGetter interface {
	GetPhoto(ctx context.Context, key string) ([]byte, error)
}

type AttendanceHandler struct {
	svc            *attendance.Service
	records        AttendanceReader
	photos         PhotoGetter
	minimumMinutes int
}

func NewAttendanceHandler(svc *attendance.Service, records AttendanceReader, photos PhotoGetter, minimumMinutes int) *AttendanceHandler {
	return &AttendanceHandler{svc: svc, records: records, photos: photos, minimumMinutes: minimumMinutes}
}

// Log evaluates an attendance attempt for an already identified employee.
func (h *AttendanceHandler) Log(c *gin.Context) {
	var req dto.LogAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.CameraID == "" {
		req.CameraID = "manual"
	}

	out, err := h.svc.EvaluateAndLog(c.Request.Context(), attendance.Request{
		EmployeeID: req.EmployeeID,
		CameraID:   req.CameraID,
		Confidence: req.Confidence,
	})
	switch {
	case errors.Is(err, attendance.ErrUnknownEmployee):
		c.JSON(http.StatusNotFound, gin.H{"error": "employee not found"})
		return
	case err != nil:
		slog.Error("log attendance", "employee_id", req.EmployeeID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to log attendance"})
		return
	}

	c.JSON(http.StatusOK, dto.AttendanceOutcome{
		Status:           string(out.Status),
		Type:             string(out.Type),
		WorkedMinutes:    out.WorkedMinutes,
		Reason:           string(out.Reason),
		Message:          out.Message,
		RemainingMinutes: out.RemainingMinutes,
		Record:           out.Record,
	})
}

func (h *AttendanceHandler) List(c *gin.Context) {
	var q dto.AttendanceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f := models.AttendanceFilter{
		EmployeeID: q.EmployeeID,
		CameraID:   q.CameraID,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	loc := h.location()
	if q.From != "" {
		from, _, err := parseTimeParam(q.From, loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		f.From = &from
	}
	if q.To != "" {
		to, dateOnly, err := parseTimeParam(q.To, loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		// A bare date includes the whole day.
		if dateOnly {
			to = to.AddDate(0, 0, 1)
		}
		f.To = &to
	}

	records, err := h.records.QueryAttendance(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	c.JSON(http.StatusOK, dto.AttendanceListResponse{Records: records, Count: len(records)})
}

// WorkTime reports the worked minutes of an employee for one day.
func (h *AttendanceHandler) WorkTime(c *gin.Context) {
	employeeID, err := strconv.ParseInt(c.Query("employee_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid employee_id"})
		return
	}

	loc := h.location()
	day := time.Now().In(loc)
	if s := c.Query("date"); s != "" {
		if day, err = time.ParseInLocation(dateLayout, s, loc); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYY-MM-DD"})
			return
		}
	}

	sum, err := h.svc.Summary(c.Request.Context(), employeeID, day, h.minimumMinutes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.WorkTimeResponse{
		EmployeeID:    employeeID,
		Date:          day.Format(dateLayout),
		Entry:         sum.Entry,
		Exit:          sum.Exit,
		WorkedMinutes: sum.WorkedMinutes,
		Status:        string(sum.Status),
	})
}

// Photo serves the JPEG captured with an attendance record.
func (h *AttendanceHandler) Photo(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	rec, err := h.records.GetAttendance(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil || rec.PhotoKey == "" || h.photos == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}

	data, err := h.photos.GetPhoto(c.Request.Context(), rec.PhotoKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if data == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

func (h *AttendanceHandler) location() *time.Location {
	if loc := h.svc.Policy().Location; loc != nil {
		return loc
	}
	return time.Local
}

// parseTimeParam accepts RFC 3339 timestamps or YYYY-MM-DD dates in loc.
func parseTimeParam(s string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, loc)
	return t, true, err
}
