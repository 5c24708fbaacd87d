package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/attendance/internal/adaptive"
	"github.com/your-org/attendance/internal/api"
	"github.com/your-org/attendance/internal/api/handlers"
	"github.com/your-org/attendance/internal/api/ws"
	"github.com/your-org/attendance/internal/attendance"
	"github.com/your-org/attendance/internal/auth"
	"github.com/your-org/attendance/internal/biometric"
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/queue"
	"github.com/your-org/attendance/internal/recognition"
	"github.com/your-org/attendance/internal/retention"
	"github.com/your-org/attendance/internal/storage"
	"github.com/your-org/attendance/internal/vision"
	"github.com/your-org/attendance/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting attendance server", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("attendance server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// Connect to Postgres
	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		return err
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Vision engine
	if err := vision.InitRuntime(cfg.Vision.ONNXLibPath); err != nil {
		return err
	}
	defer vision.DestroyRuntime()

	engine, err := vision.NewEngine(cfg.Vision)
	if err != nil {
		return err
	}
	defer engine.Close()

	// Gallery and matching
	gallery := biometric.NewGallery()
	n, err := gallery.Reload(ctx, db)
	if err != nil {
		return fmt.Errorf("load gallery: %w", err)
	}
	slog.Info("gallery loaded", "entries", n)

	matcher := biometric.NewMatcher(cfg.Matching, gallery)
	recognizer := recognition.NewRecognizer(engine, biometric.NewLivenessScorer(cfg.Liveness), matcher)

	var learner *adaptive.Learner
	if !cfg.Adaptive.Disabled {
		learner = adaptive.NewLearner(cfg.Adaptive, gallery)
	}

	policy, err := attendance.NewPolicy(cfg.Attendance)
	if err != nil {
		return err
	}

	hub := ws.NewHub()

	// Logged records go through NATS when it is configured, otherwise
	// straight to the WebSocket hub.
	var notifier attendance.Notifier = hub
	var producer *queue.Producer
	var consumer *queue.Consumer
	if cfg.NATS.URL != "" {
		producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			return err
		}
		consumer, err = queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer consumer.Close()
		notifier = producer
	}

	registry := attendance.NewRegistry(cfg.Attendance.Debounce)
	svc := attendance.NewService(registry, policy, db, minioStore, notifier)

	acquire := func(ctx context.Context) (recognition.ScopedStore, error) {
		conn, err := db.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	manager := recognition.NewManager(recognizer, learner, svc, acquire, db, cfg.Capture, cfg.Recognition)

	janitor, err := retention.NewJanitor(db, minioStore, cfg.Retention, policy.Location)
	if err != nil {
		return err
	}

	trusted, err := auth.ParseTrustedNetworks(cfg.Server.TrustedNetworks)
	if err != nil {
		return err
	}

	reload := func(ctx context.Context) (int, error) {
		n, err := gallery.Reload(ctx, db)
		if err == nil && learner != nil {
			learner.Reset()
		}
		return n, err
	}
	checks := map[string]handlers.Pinger{"postgres": db, "minio": minioStore}
	var broadcastReload func() error
	if producer != nil {
		checks["nats"] = handlers.PingerFunc(producer.Ping)
		broadcastReload = producer.PublishGalleryReload
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:             cfg.Server.APIKey,
		TrustedNetworks:    trusted,
		Checks:             checks,
		Hub:                hub,
		Recognizer:         recognizer,
		Attendance:         svc,
		Records:            db,
		Photos:             minioStore,
		MinimumWorkMinutes: cfg.Attendance.MinimumWorkMinutes,
		Cameras:            db,
		Pipelines:          manager,
		StreamFPS:          cfg.Capture.FPS,
		ReloadGallery:      reload,
		BroadcastReload:    broadcastReload,
	})

	// No write timeout: camera streams stay open.
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// Subscriptions come first so a failure returns before any goroutine of
	// the group is running.
	if consumer != nil {
		err := consumer.ConsumeAttendance(gctx, "attendance-ws", func(_ context.Context, msg jetstream.Msg) error {
			hub.Broadcast(msg.Data())
			return nil
		})
		if err != nil {
			return err
		}
		sub, err := consumer.OnGalleryReload(func() {
			if n, err := reload(gctx); err != nil {
				slog.Error("reload gallery", "error", err)
			} else {
				slog.Info("gallery reloaded", "entries", n)
			}
		})
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()
	}

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	// Refused attempts are not stored, so they reach live clients directly.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev := <-manager.Events():
				if ev.Outcome.Status != attendance.StatusBlocked {
					continue
				}
				hub.BroadcastEvent(dto.NewBlockedEvent(ev.CameraID, ev.EmployeeID, ev.Name,
					string(ev.Outcome.Reason), ev.Outcome.Message))
			}
		}
	})

	g.Go(func() error {
		return janitor.Run(gctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				registry.Prune(now)
			}
		}
	})

	g.Go(func() error {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down attendance server...", "cameras", manager.ActiveCount())
		manager.StopAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return nil
	})

	startCameras(ctx, db, manager)

	return g.Wait()
}

// startCameras launches every camera marked active.
func startCameras(ctx context.Context, db *storage.PostgresStore, manager *recognition.Manager) {
	cams, err := db.ListCameras(ctx)
	if err != nil {
		slog.Error("list cameras", "error", err)
		return
	}
	for _, cam := range cams {
		if !cam.IsActive {
			continue
		}
		if err := manager.Start(cam); err != nil {
			slog.Error("start camera", "camera_id", cam.ID, "error", err)
		}
	}
}
