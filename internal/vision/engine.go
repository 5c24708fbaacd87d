package vision

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/observability"
)

// Face is one detected face with its identity embedding. Coordinates are
// relative to the image origin.
type Face struct {
	BBox      [4]float32
	Score     float32
	Keypoints [detKeypointCount][2]float32
	Embedding []float32
	// Crop is the padded face region used for liveness analysis.
	Crop image.Image
}

// Engine runs detection and embedding. ONNX sessions bind fixed tensors, so
// calls are serialised.
type Engine struct {
	mu       sync.Mutex
	detector *Detector
	embedder *Embedder
}

// NewEngine loads det_10g.onnx and w600k_r50.onnx from the models directory.
// The ONNX runtime must already be initialised.
func NewEngine(cfg config.VisionConfig) (*Engine, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold), nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath, nil)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	slog.Info("vision engine ready")
	return &Engine{detector: det, embedder: emb}, nil
}

// Detect finds every face in img and embeds it. Faces without usable
// keypoints are embedded from the plain crop; faces that fail to embed are
// skipped.
func (e *Engine) Detect(img image.Image) ([]Face, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, nil
	}

	start := time.Now()
	canvas, scale := letterbox(img, detInputSize)
	input := toCHW(canvas, 127.5, 128)
	observability.InferenceDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	e.mu.Lock()
	defer e.mu.Unlock()

	start = time.Now()
	dets, err := e.detector.Detect(input, scale, b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	faces := make([]Face, 0, len(dets))
	offset := [2]float32{float32(b.Min.X), float32(b.Min.Y)}
	for _, d := range dets {
		abs := [4]float32{d.bbox[0] + offset[0], d.bbox[1] + offset[1], d.bbox[2] + offset[0], d.bbox[3] + offset[1]}
		var absKps [detKeypointCount][2]float32
		for i, k := range d.keypoints {
			absKps[i] = [2]float32{k[0] + offset[0], k[1] + offset[1]}
		}

		crop := CropFace(img, abs)
		if crop == nil {
			continue
		}

		start = time.Now()
		aligned, ok := alignFace(img, absKps)
		var embInput []float32
		if ok {
			embInput = toCHW(aligned, 127.5, 127.5)
		} else {
			embInput = toCHW(imaging.Resize(crop, alignedSize, alignedSize, imaging.Linear), 127.5, 127.5)
		}
		embedding, err := e.embedder.Extract(embInput)
		if err != nil {
			slog.Warn("embed face", "error", err)
			continue
		}
		observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

		faces = append(faces, Face{
			BBox:      d.bbox,
			Score:     d.score,
			Keypoints: d.keypoints,
			Embedding: embedding,
			Crop:      crop,
		})
	}
	return faces, nil
}

func (e *Engine) Close() {
	if e.detector != nil {
		e.detector.Close()
	}
	if e.embedder != nil {
		e.embedder.Close()
	}
}
