package vision

import (
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// arcfaceTemplate holds the reference keypoints of a 112x112 aligned face:
// left eye, right eye, nose tip, left and right mouth corners.
var arcfaceTemplate = [detKeypointCount][2]float64{
	{38.2946, 51.6963},
	{73.5318, 51.5014},
	{56.0252, 71.7366},
	{41.5493, 92.3655},
	{70.7299, 92.2041},
}

// minEyeDistance rejects degenerate keypoint sets.
const minEyeDistance = 4

// similarityTransform fits the least-squares rotation+scale+translation that
// maps src onto dst and returns it as a source-to-destination affine matrix.
func similarityTransform(src [detKeypointCount][2]float32, dst [detKeypointCount][2]float64) (f64.Aff3, bool) {
	var smx, smy, dmx, dmy float64
	for i := range src {
		smx += float64(src[i][0])
		smy += float64(src[i][1])
		dmx += dst[i][0]
		dmy += dst[i][1]
	}
	n := float64(len(src))
	smx, smy, dmx, dmy = smx/n, smy/n, dmx/n, dmy/n

	var norm, dotp, cross float64
	for i := range src {
		px, py := float64(src[i][0])-smx, float64(src[i][1])-smy
		qx, qy := dst[i][0]-dmx, dst[i][1]-dmy
		norm += px*px + py*py
		dotp += px*qx + py*qy
		cross += px*qy - py*qx
	}
	if norm < 1 {
		return f64.Aff3{}, false
	}

	a, b := dotp/norm, cross/norm
	tx := dmx - (a*smx - b*smy)
	ty := dmy - (b*smx + a*smy)
	return f64.Aff3{a, -b, tx, b, a, ty}, true
}

// alignFace warps img so the keypoints land on the ArcFace template.
func alignFace(img image.Image, kps [detKeypointCount][2]float32) (*image.RGBA, bool) {
	dx := kps[1][0] - kps[0][0]
	dy := kps[1][1] - kps[0][1]
	if dx*dx+dy*dy < minEyeDistance*minEyeDistance {
		return nil, false
	}

	m, ok := similarityTransform(kps, arcfaceTemplate)
	if !ok {
		return nil, false
	}

	dst := image.NewRGBA(image.Rect(0, 0, alignedSize, alignedSize))
	draw.BiLinear.Transform(dst, m, img, img.Bounds(), draw.Src, nil)
	return dst, true
}
