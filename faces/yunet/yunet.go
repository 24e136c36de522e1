//go:build opencv

// Package yunet detects faces with OpenCV's YuNet and describes them with SFace.
package yunet

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"

	"recognition-server/faces"
	"recognition-server/logger"
)

const (
	Name            = "yunet"
	defaultDetModel = "face_detection_yunet_2023mar.onnx"
	defaultRecModel = "face_recognition_sface_2021dec.onnx"
	topK            = 5000
)

func init() {
	faces.Register(Name, New)
}

type analyzer struct {
	mu         sync.Mutex
	detector   gocv.FaceDetectorYN
	recognizer gocv.FaceRecognizerSF
	maxSide    int
	embSize    int
}

func New(opts faces.Options) (faces.Analyzer, error) {
	detPath := modelPath(opts.ModelsDir, opts.DetModel, defaultDetModel)
	recPath := modelPath(opts.ModelsDir, opts.RecModel, defaultRecModel)
	for _, p := range []string{detPath, recPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("model file not found: %w", err)
		}
	}
	size := opts.DetSize
	if size <= 0 {
		size = 640
	}
	backend, target := gocv.NetBackendDefault, gocv.NetTargetCPU
	if opts.UseGPU {
		backend, target = gocv.NetBackendCUDA, gocv.NetTargetCUDA
	}
	a := &analyzer{
		detector: gocv.NewFaceDetectorYNWithParams(detPath, "", image.Pt(size, size),
			opts.DetThreshold, opts.NMSThreshold, topK, int(backend), int(target)),
		recognizer: gocv.NewFaceRecognizerSFWithParams(recPath, "", int(backend), int(target)),
		maxSide:    size,
		embSize:    128,
	}
	logger.Info(logger.Fields{
		"detector":   detPath,
		"recognizer": recPath,
		"gpu":        opts.UseGPU,
		"max_side":   size,
	}, "YuNet face analyzer ready")
	return a, nil
}

func (a *analyzer) Get(ctx context.Context, img image.Image) ([]faces.Face, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer src.Close()

	work := src
	scale := fitScale(src.Cols(), src.Rows(), a.maxSide)
	if scale != 1 {
		work = gocv.NewMat()
		defer work.Close()
		size := image.Pt(int(float32(src.Cols())*scale), int(float32(src.Rows())*scale))
		gocv.Resize(src, &work, size, 0, 0, gocv.InterpolationLinear)
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	detections := gocv.NewMat()
	defer detections.Close()
	a.detector.SetInputSize(image.Pt(work.Cols(), work.Rows()))
	a.detector.Detect(work, &detections)

	result := make([]faces.Face, 0, detections.Rows())
	for i := 0; i < detections.Rows(); i++ {
		score := detections.GetFloatAt(i, 14)
		row := detections.RowRange(i, i+1).Clone()
		if scale != 1 {
			row.MultiplyFloat(1 / scale)
		}
		f := parseRow(row)
		f.DetScore = &score
		f.Embedding = a.embed(src, row)
		row.Close()
		result = append(result, f)
	}
	return result, nil
}

func (a *analyzer) embed(src, row gocv.Mat) []float32 {
	aligned := a.recognizer.AlignCrop(src, row)
	defer aligned.Close()
	feature := a.recognizer.Feature(aligned)
	defer feature.Close()
	embedding := make([]float32, feature.Cols())
	for j := range embedding {
		embedding[j] = feature.GetFloatAt(0, j)
	}
	return embedding
}

// parseRow reads a YuNet detection: x, y, w, h, 5 landmark pairs, score
func parseRow(row gocv.Mat) faces.Face {
	x, y := row.GetFloatAt(0, 0), row.GetFloatAt(0, 1)
	w, h := row.GetFloatAt(0, 2), row.GetFloatAt(0, 3)
	f := faces.Face{
		BBox:      faces.BBox{x, y, x + w, y + h},
		Landmarks: make([]faces.Landmark, 5),
	}
	for p := 0; p < 5; p++ {
		f.Landmarks[p] = faces.Landmark{row.GetFloatAt(0, 4+2*p), row.GetFloatAt(0, 5+2*p)}
	}
	return f
}

func fitScale(w, h, maxSide int) float32 {
	longest := w
	if h > longest {
		longest = h
	}
	if maxSide <= 0 || longest <= maxSide {
		return 1
	}
	return float32(maxSide) / float32(longest)
}

func modelPath(dir, file, fallback string) string {
	if file == "" {
		file = fallback
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

func (a *analyzer) EmbeddingSize() int {
	return a.embSize
}

func (a *analyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector.Close()
	a.recognizer.Close()
	return nil
}
