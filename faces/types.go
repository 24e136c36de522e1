package faces

import (
	"context"
	"errors"
	"image"
)

// Bounding box indexes
const (
	IndexX1 = 0
	IndexY1 = 1
	IndexX2 = 2
	IndexY2 = 3
)

var (
	ErrNotLoaded      = errors.New("model not loaded")
	ErrUnknownBackend = errors.New("unknown face backend")
)

type (
	// BBox is x1, y1, x2, y2 in source image pixels
	BBox     [4]float32
	Landmark [2]float32

	Face struct {
		BBox      BBox
		Landmarks []Landmark // 5 points (eyes, nose, mouth corners) when the backend provides them
		DetScore  *float32   // nil if the backend has no detection score
		Embedding []float32
	}

	// Analyzer detects faces in an image and extracts one embedding per face.
	// Implementations must be safe for concurrent use.
	Analyzer interface {
		Get(ctx context.Context, img image.Image) ([]Face, error)
		EmbeddingSize() int
		Close() error
	}
)

// Options configure a backend. Backends ignore what they don't support.
type Options struct {
	Backend      string
	ModelsDir    string
	ModelName    string
	DetModel     string
	RecModel     string
	DetSize      int
	DetThreshold float32
	NMSThreshold float32
	UseGPU       bool
	GPUDeviceID  int
	LibraryPath  string
	CNN          bool
}

func (b BBox) Width() float32 {
	return b[IndexX2] - b[IndexX1]
}

func (b BBox) Height() float32 {
	return b[IndexY2] - b[IndexY1]
}

func (b BBox) Area() float32 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Scale multiplies all coordinates by f
func (b BBox) Scale(f float32) BBox {
	return BBox{b[0] * f, b[1] * f, b[2] * f, b[3] * f}
}

// Ints truncates toward zero
func (b BBox) Ints() [4]int {
	return [4]int{int(b[0]), int(b[1]), int(b[2]), int(b[3])}
}
