package vision

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func TestIOU(t *testing.T) {
	tests := []struct {
		name string
		a, b [4]float32
		want float32
	}{
		{"identical", [4]float32{0, 0, 10, 10}, [4]float32{0, 0, 10, 10}, 1},
		{"disjoint", [4]float32{0, 0, 10, 10}, [4]float32{20, 20, 30, 30}, 0},
		{"half overlap", [4]float32{0, 0, 10, 10}, [4]float32{5, 0, 15, 10}, 50.0 / 150.0},
		{"touching", [4]float32{0, 0, 10, 10}, [4]float32{10, 0, 20, 10}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := iou(tt.a, tt.b); math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("iou = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNMS(t *testing.T) {
	dets := []detection{
		{bbox: [4]float32{0, 0, 10, 10}, score: 0.6},
		{bbox: [4]float32{1, 1, 11, 11}, score: 0.9},
		{bbox: [4]float32{50, 50, 60, 60}, score: 0.7},
	}
	kept := nms(dets, 0.4)
	if len(kept) != 2 {
		t.Fatalf("kept %d boxes, want 2", len(kept))
	}
	if kept[0].score != 0.9 || kept[1].score != 0.7 {
		t.Fatalf("kept scores %v, %v", kept[0].score, kept[1].score)
	}
}

func TestDecodeHead(t *testing.T) {
	cells := (detInputSize / 32) * (detInputSize / 32) * anchorsPerCell
	scores := make([]float32, cells)
	boxes := make([]float32, cells*4)
	kps := make([]float32, cells*detKeypointCount*2)

	// Anchor index 2*(row 1 * 20 + col 2) + 1: centre (64, 32) at stride 32.
	idx := 2*(1*20+2) + 1
	scores[idx] = 0.8
	copy(boxes[idx*4:], []float32{1, 1, 1, 1})
	kps[idx*10] = 0.5

	got := decodeHead(32, scores, boxes, kps, 0.5, 0.5, 1000, 1000)
	if len(got) != 1 {
		t.Fatalf("decoded %d detections, want 1", len(got))
	}
	want := [4]float32{64, 0, 192, 128}
	if got[0].bbox != want {
		t.Errorf("bbox = %v, want %v", got[0].bbox, want)
	}
	if got[0].keypoints[0] != [2]float32{160, 64} {
		t.Errorf("keypoint[0] = %v", got[0].keypoints[0])
	}
}

func TestSimilarityTransformRecoversScaleAndShift(t *testing.T) {
	var src [detKeypointCount][2]float32
	for i, p := range arcfaceTemplate {
		src[i] = [2]float32{float32(p[0]*2 + 10), float32(p[1]*2 + 20)}
	}

	m, ok := similarityTransform(src, arcfaceTemplate)
	if !ok {
		t.Fatal("similarityTransform failed")
	}
	want := [6]float64{0.5, 0, -5, 0, 0.5, -10}
	for i := range want {
		if math.Abs(m[i]-want[i]) > 1e-4 {
			t.Fatalf("transform = %v, want %v", m, want)
		}
	}
}

func TestAlignFaceRejectsDegenerateKeypoints(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	var kps [detKeypointCount][2]float32
	for i := range kps {
		kps[i] = [2]float32{100, 100}
	}
	if _, ok := alignFace(img, kps); ok {
		t.Fatal("alignFace accepted coincident keypoints")
	}
}

func TestLetterbox(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1280, 720))
	canvas, scale := letterbox(img, 640)
	if canvas.Bounds().Dx() != 640 || canvas.Bounds().Dy() != 640 {
		t.Fatalf("canvas = %v", canvas.Bounds())
	}
	if scale != 0.5 {
		t.Fatalf("scale = %v, want 0.5", scale)
	}
}

func TestCropFace(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	img.Set(50, 50, color.White)

	crop := CropFace(img, [4]float32{40, 40, 60, 60})
	if crop == nil {
		t.Fatal("CropFace returned nil")
	}
	if crop.Bounds().Dx() != 24 || crop.Bounds().Dy() != 24 {
		t.Fatalf("crop bounds = %v", crop.Bounds())
	}
	if CropFace(img, [4]float32{10, 10, 10, 20}) != nil {
		t.Fatal("zero-width box should not crop")
	}
	edge := CropFace(img, [4]float32{90, 90, 110, 110})
	if edge == nil || edge.Bounds().Dx() != 12 {
		t.Fatalf("edge crop = %v", edge)
	}
}

func TestToCHW(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, G: 127, B: 0, A: 255})
	img.Set(1, 0, color.RGBA{R: 0, G: 0, B: 255, A: 255})

	out := toCHW(img, 127.5, 127.5)
	want := []float32{1, -1, -0.003921569, -1, -1, 1}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 1e-5 {
			t.Fatalf("toCHW = %v, want %v", out, want)
		}
	}
}
