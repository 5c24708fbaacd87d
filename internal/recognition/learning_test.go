package recognition

import (
	"context"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/your-org/attendance/internal/adaptive"
	"github.com/your-org/attendance/internal/attendance"
	"github.com/your-org/attendance/internal/biometric"
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/vision"
)

// scriptedDetector returns one scripted face per call. drained is closed on
// the first call after the script is used up, by which time the coordinator
// has handled every scripted frame.
type scriptedDetector struct {
	mu      sync.Mutex
	script  [][]vision.Face
	once    sync.Once
	drained chan struct{}
}

func (d *scriptedDetector) Detect(image.Image) ([]vision.Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.script) == 0 {
		d.once.Do(func() { close(d.drained) })
		return nil, nil
	}
	faces := d.script[0]
	d.script = d.script[1:]
	return faces, nil
}

// anaAt returns a unit embedding whose cosine similarity to anaVec is sim.
func anaAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim)), 0}
}

func TestCoordinatorFeedsLearnerEveryAcceptedMatch(t *testing.T) {
	tests := []struct {
		name        string
		confidences []float64
		wantUpdates int
	}{
		{
			name:        "trusted streak commits",
			confidences: []float64{0.95, 0.95, 0.95},
			wantUpdates: 1,
		},
		{
			name:        "accepted match below log threshold resets streak",
			confidences: []float64{0.95, 0.95, 0.84, 0.95},
			wantUpdates: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bbox := [4]float32{270, 190, 370, 290}
			det := &scriptedDetector{drained: make(chan struct{})}
			for _, c := range tt.confidences {
				det.script = append(det.script, []vision.Face{face(bbox, anaAt(c))})
			}

			gallery := biometric.NewGallery()
			gallery.Replace([]models.Employee{
				{ID: 1, Name: "Ana", Embeddings: [models.SlotCount][]float32{anaVec}},
			})
			matcher := biometric.NewMatcher(config.MatchingConfig{
				MinFaceSize: 80,
				CenterZone:  0.5,
				Tiers:       []config.Tier{{MinLiveness: 0, Cutoff: 0.80}},
			}, gallery)
			liveness := biometric.NewLivenessScorer(config.LivenessConfig{
				SharpnessWeight: 0.7,
				ColourWeight:    0.3,
				SharpnessScale:  200,
				ColourScale:     50,
				AnalysisSize:    64,
			})
			learner := adaptive.NewLearner(config.AdaptiveConfig{
				MinConfidence: 0.90,
				ResetBelow:    0.85,
				StableCount:   3,
				Alpha:         0.1,
			}, gallery)

			var released atomic.Int32
			conn := &fakeConn{released: &released}
			acquire := func(context.Context) (ScopedStore, error) { return conn, nil }

			svc := attendance.NewService(attendance.NewRegistry(5*time.Second), allDayPolicy(), nil, nil, nil)
			frames := &fakeFrames{img: image.NewNRGBA(image.Rect(0, 0, 640, 480))}
			coord := NewCoordinator("7", frames, NewRecognizer(det, liveness, matcher), learner, svc, acquire,
				config.RecognitionConfig{PollInterval: 5 * time.Millisecond, LogMinConfidence: 0.85})

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- coord.Run(ctx) }()

			select {
			case <-det.drained:
			case <-time.After(3 * time.Second):
				cancel()
				t.Fatal("detector script not consumed")
			}
			cancel()
			<-done

			if got := conn.slotUpdates(); got != tt.wantUpdates {
				t.Errorf("profile updates = %d, want %d", got, tt.wantUpdates)
			}
		})
	}
}
