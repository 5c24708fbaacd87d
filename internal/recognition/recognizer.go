// Package recognition runs the per-camera loop that turns captured frames
// into detections and attendance events.
package recognition

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/your-org/attendance/internal/biometric"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/vision"
)

// Detector finds and embeds faces. *vision.Engine implements it.
type Detector interface {
	Detect(img image.Image) ([]vision.Face, error)
}

// result is a detection plus the face crop it was scored on.
type result struct {
	models.Detection
	crop image.Image
}

// Recognizer classifies every face in an image.
type Recognizer struct {
	detector Detector
	liveness *biometric.LivenessScorer
	matcher  *biometric.Matcher
}

func NewRecognizer(detector Detector, liveness *biometric.LivenessScorer, matcher *biometric.Matcher) *Recognizer {
	return &Recognizer{detector: detector, liveness: liveness, matcher: matcher}
}

// Recognize returns one detection per face. Detector errors are logged and
// produce no detections.
func (r *Recognizer) Recognize(ctx context.Context, img image.Image) []models.Detection {
	results := r.recognize(ctx, img)
	dets := make([]models.Detection, len(results))
	for i, res := range results {
		dets[i] = res.Detection
	}
	return dets
}

func (r *Recognizer) recognize(ctx context.Context, img image.Image) []result {
	if img == nil {
		return nil
	}
	faces, err := r.detector.Detect(img)
	if err != nil {
		slog.Warn("face detection failed", "error", err)
		return nil
	}

	b := img.Bounds()
	results := make([]result, 0, len(faces))
	for _, f := range faces {
		if ctx.Err() != nil {
			break
		}
		det := models.Detection{
			BBox:      f.BBox,
			Keypoints: f.Keypoints,
			Embedding: f.Embedding,
		}

		if state, ok := r.matcher.Gate(f.BBox, b.Dx(), b.Dy()); !ok {
			det.State = state
			results = append(results, result{Detection: det})
			continue
		}

		start := time.Now()
		det.Liveness = r.liveness.Score(f.Crop)
		observability.InferenceDuration.WithLabelValues("liveness").Observe(time.Since(start).Seconds())

		m := r.matcher.Match(f.Embedding, det.Liveness)
		det.Confidence = m.Similarity
		if m.Accepted {
			id := m.EmployeeID
			det.State = models.DetectionRecognized
			det.EmployeeID = &id
			det.Name = m.Name
		} else {
			det.State = models.DetectionUnknown
		}
		results = append(results, result{Detection: det, crop: f.Crop})
	}
	return results
}
