package faces

import (
	"image"
	"sort"

	"github.com/nfnt/resize"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// ArcFaceTemplate holds the reference landmark positions of a 112x112 aligned face
var ArcFaceTemplate = [5]Landmark{
	{38.2946, 51.6963},
	{73.5318, 51.5014},
	{56.0252, 71.7366},
	{41.5493, 92.3655},
	{70.7299, 92.2041},
}

// ToRGBA returns img as an *image.RGBA anchored at the origin, copying only when needed
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(rgba, rgba.Rect, img, b.Min, xdraw.Src)
	return rgba
}

// Letterbox resizes img to fit a size x size canvas keeping the aspect ratio.
// The image is anchored at the top-left corner and the rest is left black.
// The returned scale maps source coordinates into canvas coordinates.
func Letterbox(img image.Image, size int) (*image.RGBA, float32) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	if w == 0 || h == 0 {
		return canvas, 1
	}
	ratio := float64(h) / float64(w)
	var newW, newH int
	if ratio > 1 {
		newH = size
		newW = int(float64(newH) / ratio)
	} else {
		newW = size
		newH = int(float64(newW) * ratio)
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	resized := resize.Resize(uint(newW), uint(newH), img, resize.Bilinear)
	xdraw.Draw(canvas, image.Rect(0, 0, newW, newH), resized, resized.Bounds().Min, xdraw.Src)
	return canvas, float32(newH) / float32(h)
}

// FitWithin scales img down so its longest side is at most size.
// Images already small enough are returned as they are, with scale 1.
func FitWithin(img image.Image, size int) (image.Image, float32) {
	b := img.Bounds()
	longest := b.Dx()
	if b.Dy() > longest {
		longest = b.Dy()
	}
	if size <= 0 || longest <= size {
		return img, 1
	}
	thumb := resize.Thumbnail(uint(size), uint(size), img, resize.Bilinear)
	return thumb, float32(thumb.Bounds().Dx()) / float32(b.Dx())
}

// Blob converts an RGBA image into a normalised CHW float tensor in RGB order
func Blob(img *image.RGBA, mean, std float32) []float32 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	plane := w * h
	out := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+3]
			i := y*w + x
			out[i] = (float32(p[0]) - mean) / std
			out[plane+i] = (float32(p[1]) - mean) / std
			out[2*plane+i] = (float32(p[2]) - mean) / std
		}
	}
	return out
}

// SimilarityTransform estimates the least-squares rotation+scale+translation
// mapping src onto dst. The result is in f64.Aff3 row-major form.
func SimilarityTransform(src, dst []Landmark) f64.Aff3 {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	if n == 0 {
		return f64.Aff3{1, 0, 0, 0, 1, 0}
	}
	var msx, msy, mdx, mdy float64
	for i := 0; i < n; i++ {
		msx += float64(src[i][0])
		msy += float64(src[i][1])
		mdx += float64(dst[i][0])
		mdy += float64(dst[i][1])
	}
	msx /= float64(n)
	msy /= float64(n)
	mdx /= float64(n)
	mdy /= float64(n)

	var num1, num2, den float64
	for i := 0; i < n; i++ {
		sx, sy := float64(src[i][0])-msx, float64(src[i][1])-msy
		dx, dy := float64(dst[i][0])-mdx, float64(dst[i][1])-mdy
		num1 += sx*dx + sy*dy
		num2 += sx*dy - sy*dx
		den += sx*sx + sy*sy
	}
	if den == 0 {
		return f64.Aff3{1, 0, mdx - msx, 0, 1, mdy - msy}
	}
	a, b := num1/den, num2/den
	return f64.Aff3{
		a, -b, mdx - (a*msx - b*msy),
		b, a, mdy - (b*msx + a*msy),
	}
}

// AlignCrop warps the face described by 5 landmarks onto the ArcFace template.
// Pixels outside the source are black.
func AlignCrop(img image.Image, landmarks []Landmark, size int) *image.RGBA {
	tmpl := ArcFaceTemplate
	if size != 112 {
		ratio := float32(size) / 112
		for i := range tmpl {
			tmpl[i] = Landmark{tmpl[i][0] * ratio, tmpl[i][1] * ratio}
		}
	}
	m := SimilarityTransform(landmarks, tmpl[:])
	// OpenCV maps pixel indices, x/image maps pixel centres
	m[2] += 0.5 - 0.5*(m[0]+m[1])
	m[5] += 0.5 - 0.5*(m[3]+m[4])

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.BiLinear.Transform(dst, m, img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// IoU of two boxes using inclusive pixel coordinates
func IoU(a, b BBox) float32 {
	xx1 := max32(a[0], b[0])
	yy1 := max32(a[1], b[1])
	xx2 := min32(a[2], b[2])
	yy2 := min32(a[3], b[3])
	w := max32(0, xx2-xx1+1)
	h := max32(0, yy2-yy1+1)
	inter := w * h
	union := (a[2]-a[0]+1)*(a[3]-a[1]+1) + (b[2]-b[0]+1)*(b[3]-b[1]+1) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// NMS returns the indexes of boxes kept by greedy non-maximum suppression,
// highest score first
func NMS(boxes []BBox, scores []float32, thresh float32) []int {
	order := make([]int, len(boxes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	suppressed := make([]bool, len(boxes))
	keep := []int{}
	for oi, i := range order {
		if suppressed[i] {
			continue
		}
		keep = append(keep, i)
		for _, j := range order[oi+1:] {
			if !suppressed[j] && IoU(boxes[i], boxes[j]) > thresh {
				suppressed[j] = true
			}
		}
	}
	return keep
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
