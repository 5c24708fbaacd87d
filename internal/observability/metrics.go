package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "frames_captured_total",
		Help:      "Total number of frames decoded from camera sources",
	}, []string{"camera_id"})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "frames_dropped_total",
		Help:      "Frames discarded because a newer frame arrived before decode",
	}, []string{"camera_id"})

	CaptureReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "capture_reconnects_total",
		Help:      "Number of times a camera source was reopened after a failure",
	}, []string{"camera_id"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected",
	}, []string{"camera_id", "state"})

	FacesRecognized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "faces_recognized_total",
		Help:      "Total number of faces matched to an enrolled employee",
	}, []string{"camera_id"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "inference_duration_seconds",
		Help:      "Duration of recognition stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	AttendanceDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "decisions_total",
		Help:      "Attendance evaluations by outcome",
	}, []string{"status", "reason"})

	ProfileUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "profile_updates_total",
		Help:      "Adaptive profile update attempts by result",
	}, []string{"result"})

	GallerySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "gallery_embeddings",
		Help:      "Number of enrolled embeddings loaded for matching",
	})

	ActiveCameras = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "active_cameras",
		Help:      "Number of cameras with a running recognition pipeline",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})

	RetentionDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "retention_deleted_total",
		Help:      "Attendance logs removed by the retention job",
	})
)
