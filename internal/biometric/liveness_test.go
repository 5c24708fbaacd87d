package biometric

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"github.com/your-org/attendance/internal/config"
)

func livenessConfig(spectral bool) config.LivenessConfig {
	cfg := config.LivenessConfig{
		SharpnessWeight: 0.7,
		ColourWeight:    0.3,
		SharpnessScale:  200,
		ColourScale:     50,
		AnalysisSize:    128,
	}
	if spectral {
		cfg.Spectral = true
		cfg.SharpnessWeight, cfg.ColourWeight, cfg.SpectralWeight = 0.4, 0.3, 0.3
	}
	return cfg
}

func flatImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func noiseImage(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

// gratingImage is a grey sinusoid with a fixed period, like a screen's pixel grid.
func gratingImage(n, period int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, n, n))
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			v := 128 + 80*math.Sin(2*math.Pi*float64(x)/float64(period)) + rng.Float64()*2
			g := uint8(v)
			img.SetNRGBA(x, y, color.NRGBA{R: g, G: g, B: g, A: 255})
		}
	}
	return img
}

func TestScoreBounds(t *testing.T) {
	for _, spectral := range []bool{false, true} {
		s := NewLivenessScorer(livenessConfig(spectral))
		for _, img := range []image.Image{
			flatImage(200, 200, color.NRGBA{R: 120, G: 110, B: 100, A: 255}),
			noiseImage(160, 160, 1),
			gratingImage(128, 8, 2),
		} {
			score := s.Score(img)
			if score < 0 || score > 1 || math.IsNaN(score) {
				t.Fatalf("spectral=%v: score %v out of [0,1]", spectral, score)
			}
		}
	}
}

func TestScoreNeutralOnDegenerateInput(t *testing.T) {
	s := NewLivenessScorer(livenessConfig(false))

	tests := []struct {
		name string
		img  image.Image
	}{
		{"nil", nil},
		{"empty", image.NewNRGBA(image.Rect(0, 0, 0, 0))},
		{"single pixel", image.NewNRGBA(image.Rect(0, 0, 1, 1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Score(tt.img); got != NeutralLiveness {
				t.Errorf("Score = %v, want %v", got, NeutralLiveness)
			}
		})
	}
}

func TestTexturedBeatsFlat(t *testing.T) {
	s := NewLivenessScorer(livenessConfig(false))

	flat := s.Score(flatImage(150, 150, color.NRGBA{R: 200, G: 180, B: 170, A: 255}))
	textured := s.Score(noiseImage(150, 150, 3))

	if flat != 0 {
		t.Errorf("flat score = %v, want 0", flat)
	}
	if textured <= flat {
		t.Errorf("textured %v should score above flat %v", textured, flat)
	}
}

func TestSpectralPenalisesPeriodicPattern(t *testing.T) {
	s := NewLivenessScorer(livenessConfig(true))

	grid, err := s.Signals(gratingImage(128, 8, 4))
	if err != nil {
		t.Fatalf("Signals(grating) error = %v", err)
	}
	noise, err := s.Signals(noiseImage(128, 128, 5))
	if err != nil {
		t.Fatalf("Signals(noise) error = %v", err)
	}

	if grid.Spectral >= noise.Spectral {
		t.Errorf("grating spectral %v should be below noise spectral %v", grid.Spectral, noise.Spectral)
	}
	if grid.Spectral > 0.5 {
		t.Errorf("grating spectral = %v, want <= 0.5", grid.Spectral)
	}
}
