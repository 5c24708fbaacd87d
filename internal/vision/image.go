package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// letterbox scales img to fit a size x size canvas anchored top-left and
// returns the canvas with the applied scale.
func letterbox(img image.Image, size int) (*image.NRGBA, float32) {
	b := img.Bounds()
	scale := min(float32(size)/float32(b.Dx()), float32(size)/float32(b.Dy()))
	w := max(1, int(float32(b.Dx())*scale))
	h := max(1, int(float32(b.Dy())*scale))

	resized := imaging.Resize(img, w, h, imaging.Linear)
	canvas := imaging.New(size, size, color.Black)
	return imaging.Paste(canvas, resized, image.Pt(0, 0)), scale
}

// toCHW converts an RGB image to planar float32 with (v - mean) / std.
func toCHW(img image.Image, mean, std float32) []float32 {
	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	plane := w * h
	out := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			i := y*w + x
			out[i] = (float32(row[x*4]) - mean) / std
			out[plane+i] = (float32(row[x*4+1]) - mean) / std
			out[2*plane+i] = (float32(row[x*4+2]) - mean) / std
		}
	}
	return out
}

// CropFace cuts the box out of img with 10% padding on each side.
func CropFace(img image.Image, bbox [4]float32) image.Image {
	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	if w <= 0 || h <= 0 {
		return nil
	}
	r := image.Rect(
		int(bbox[0]-w*0.1), int(bbox[1]-h*0.1),
		int(bbox[2]+w*0.1), int(bbox[3]+h*0.1),
	).Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}
	return imaging.Crop(img, r)
}

// EncodeJPEG encodes img at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeImage decodes any registered image format.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
