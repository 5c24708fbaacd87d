package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/attendance/internal/api/handlers"
	"github.com/your-org/attendance/internal/api/ws"
	"github.com/your-org/attendance/internal/attendance"
	"github.com/your-org/attendance/internal/auth"
)

type RouterConfig struct {
	APIKey          string
	TrustedNetworks auth.TrustedNetworks
	// Checks are the readiness dependencies keyed by name.
	Checks             map[string]handlers.Pinger
	Hub                *ws.Hub
	Recognizer         handlers.FaceRecognizer
	Attendance         *attendance.Service
	Records            handlers.AttendanceReader
	Photos             handlers.PhotoGetter
	MinimumWorkMinutes int
	Cameras            handlers.CameraReader
	Pipelines          handlers.Pipelines
	StreamFPS          int
	ReloadGallery      handlers.ReloadFunc
	BroadcastReload    func() error
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (API key or trusted network)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey, cfg.TrustedNetworks))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Recognition
	recH := handlers.NewRecognitionHandler(cfg.Recognizer)
	v1.POST("/recognize", recH.Recognize)

	// Attendance
	attH := handlers.NewAttendanceHandler(cfg.Attendance, cfg.Records, cfg.Photos, cfg.MinimumWorkMinutes)
	v1.POST("/attendance/log", attH.Log)
	v1.GET("/attendance", attH.List)
	v1.GET("/attendance/work-time", attH.WorkTime)
	v1.GET("/attendance/:id/photo", attH.Photo)

	// Cameras
	camH := handlers.NewCameraHandler(cfg.Cameras, cfg.Pipelines, cfg.StreamFPS)
	v1.GET("/cameras", camH.List)
	v1.POST("/cameras/:id/start", camH.Start)
	v1.POST("/cameras/:id/stop", camH.Stop)
	v1.GET("/cameras/:id/stream", camH.Stream)
	v1.GET("/cameras/:id/detections", camH.Detections)

	// Gallery
	galH := handlers.NewGalleryHandler(cfg.ReloadGallery, cfg.BroadcastReload)
	v1.POST("/gallery/reload", galH.Reload)

	return r
}
