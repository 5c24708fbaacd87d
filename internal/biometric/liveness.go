package biometric

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"math/cmplx"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/stat"

	"github.com/your-org/attendance/internal/config"
)

// NeutralLiveness is reported when a face cannot be measured.
const NeutralLiveness = 0.5

// Spectral peak ratios are mapped linearly from 1 (at or below peakFloor) to
// 0 (at or above peakCeil).
const (
	peakFloor = 8.0
	peakCeil  = 24.0
)

var errEmptyFace = errors.New("empty face region")

// LivenessSignals are the individual passive cues, each in [0,1].
type LivenessSignals struct {
	Sharpness float64
	Colour    float64
	Spectral  float64
}

// LivenessScorer estimates whether a face crop shows a live person.
type LivenessScorer struct {
	cfg config.LivenessConfig
}

func NewLivenessScorer(cfg config.LivenessConfig) *LivenessScorer {
	return &LivenessScorer{cfg: cfg}
}

// Score returns the weighted liveness score in [0,1]. Measurement failures
// yield NeutralLiveness.
func (s *LivenessScorer) Score(face image.Image) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("liveness measurement panicked", "panic", r)
			score = NeutralLiveness
		}
	}()

	sig, err := s.Signals(face)
	if err != nil {
		slog.Debug("liveness measurement failed", "error", err)
		return NeutralLiveness
	}

	score = s.cfg.SharpnessWeight*sig.Sharpness + s.cfg.ColourWeight*sig.Colour
	if s.cfg.Spectral {
		score += s.cfg.SpectralWeight * sig.Spectral
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return NeutralLiveness
	}
	return clamp01(score)
}

// Signals computes each cue on the face resized to the analysis size.
func (s *LivenessScorer) Signals(face image.Image) (LivenessSignals, error) {
	if face == nil || face.Bounds().Dx() < 3 || face.Bounds().Dy() < 3 {
		return LivenessSignals{}, errEmptyFace
	}

	n := s.cfg.AnalysisSize
	img := imaging.Resize(face, n, n, imaging.Linear)
	luma, sat := lumaAndSaturation(img)

	sig := LivenessSignals{
		Sharpness: clamp01(laplacianVariance(luma, n) / s.cfg.SharpnessScale),
		Colour:    clamp01(stat.PopStdDev(sat, nil) / s.cfg.ColourScale),
	}
	if s.cfg.Spectral {
		sp, err := spectralScore(luma, n)
		if err != nil {
			return LivenessSignals{}, fmt.Errorf("spectral signal: %w", err)
		}
		sig.Spectral = sp
	}
	return sig, nil
}

// lumaAndSaturation returns row-major luma and HSV saturation (0-255 scale).
func lumaAndSaturation(img *image.NRGBA) (luma, sat []float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	luma = make([]float64, w*h)
	sat = make([]float64, w*h)

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			r := float64(row[x*4])
			g := float64(row[x*4+1])
			bl := float64(row[x*4+2])

			luma[y*w+x] = 0.299*r + 0.587*g + 0.114*bl

			hi := math.Max(r, math.Max(g, bl))
			lo := math.Min(r, math.Min(g, bl))
			if hi > 0 {
				sat[y*w+x] = (hi - lo) / hi * 255
			}
		}
	}
	return luma, sat
}

// laplacianVariance is the population variance of the 4-neighbour Laplacian
// over the interior of an n x n luma plane.
func laplacianVariance(luma []float64, n int) float64 {
	resp := make([]float64, 0, (n-2)*(n-2))
	for y := 1; y < n-1; y++ {
		for x := 1; x < n-1; x++ {
			i := y*n + x
			resp = append(resp, luma[i-n]+luma[i+n]+luma[i-1]+luma[i+1]-4*luma[i])
		}
	}
	return stat.PopVariance(resp, nil)
}

// spectralScore looks for isolated peaks in the mid/high frequency band of the
// windowed 2-D spectrum. Each bin is compared with the mean magnitude at its
// radius; screen pixel grids and moiré produce a few bins far above it.
func spectralScore(luma []float64, n int) (float64, error) {
	if n < 16 {
		return 0, fmt.Errorf("analysis size %d too small", n)
	}

	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	win := window.Hann(ones)

	var mean float64
	for _, v := range luma {
		mean += v
	}
	mean /= float64(len(luma))

	half := n/2 + 1
	rowFFT := fourier.NewFFT(n)
	rows := make([][]complex128, n)
	seq := make([]float64, n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			seq[x] = (luma[y*n+x] - mean) * win[y] * win[x]
		}
		rows[y] = rowFFT.Coefficients(nil, seq)
	}

	colFFT := fourier.NewCmplxFFT(n)
	mag := make([][]float64, n)
	for y := range mag {
		mag[y] = make([]float64, half)
	}
	col := make([]complex128, n)
	out := make([]complex128, n)
	for x := 0; x < half; x++ {
		for y := 0; y < n; y++ {
			col[y] = rows[y][x]
		}
		colFFT.Coefficients(out, col)
		for y := 0; y < n; y++ {
			mag[y][x] = cmplx.Abs(out[y])
		}
	}

	lo, hi := n/8, n/2
	sum := make([]float64, hi+1)
	count := make([]int, hi+1)
	radius := func(y, x int) int {
		fy := y
		if fy > n/2 {
			fy = n - fy
		}
		return int(math.Round(math.Hypot(float64(fy), float64(x))))
	}
	for y := 0; y < n; y++ {
		for x := 0; x < half; x++ {
			if r := radius(y, x); r >= lo && r <= hi {
				sum[r] += mag[y][x]
				count[r]++
			}
		}
	}

	var peak float64
	for y := 0; y < n; y++ {
		for x := 0; x < half; x++ {
			r := radius(y, x)
			if r < lo || r > hi || count[r] == 0 {
				continue
			}
			avg := sum[r] / float64(count[r])
			if avg < normEpsilon {
				continue
			}
			if ratio := mag[y][x] / avg; ratio > peak {
				peak = ratio
			}
		}
	}
	if peak == 0 {
		// No measurable texture at all.
		return 0, nil
	}
	return clamp01((peakCeil - peak) / (peakCeil - peakFloor)), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
