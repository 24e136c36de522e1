//go:build dlib

// Package dlib detects and describes faces with dlib through go-face.
// It needs the dlib model files in the models directory:
// shape_predictor_5_face_landmarks.dat, dlib_face_recognition_resnet_model_v1.dat
// and mmod_human_face_detector.dat.
package dlib

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/Kagami/go-face"

	"recognition-server/faces"
	"recognition-server/logger"
)

const (
	Name          = "dlib"
	embeddingSize = 128
	jpegQuality   = 95
)

func init() {
	faces.Register(Name, New)
}

type analyzer struct {
	mu         sync.Mutex
	recognizer *face.Recognizer
	maxSide    int
	cnn        bool
}

func New(opts faces.Options) (faces.Analyzer, error) {
	if opts.UseGPU {
		logger.Warn(logger.Fields{"backend": Name}, "GPU requested but the dlib backend runs on CPU")
	}
	rec, err := face.NewRecognizer(opts.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load dlib models from %s: %w", opts.ModelsDir, err)
	}
	return &analyzer{recognizer: rec, maxSide: opts.DetSize, cnn: opts.CNN}, nil
}

func (a *analyzer) Get(ctx context.Context, img image.Image) ([]faces.Face, error) {
	small, scale := faces.FitWithin(img, a.maxSide)
	data, err := encodeJPEG(small)
	if err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	var found []face.Face
	if a.cnn {
		found, err = a.recognizer.RecognizeCNN(data)
	} else {
		found, err = a.recognizer.Recognize(data)
	}
	a.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("dlib recognition failed: %w", err)
	}
	return toFaces(found, scale), nil
}

// toFaces maps go-face results back to source image coordinates
func toFaces(found []face.Face, scale float32) []faces.Face {
	result := make([]faces.Face, 0, len(found))
	for _, cur := range found {
		r := cur.Rectangle
		desc := [embeddingSize]float32(cur.Descriptor)
		embedding := make([]float32, embeddingSize)
		copy(embedding, desc[:])
		result = append(result, faces.Face{
			BBox:      faces.BBox{float32(r.Min.X), float32(r.Min.Y), float32(r.Max.X), float32(r.Max.Y)}.Scale(1 / scale),
			Embedding: embedding,
		})
	}
	return result
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image for dlib: %w", err)
	}
	return buf.Bytes(), nil
}

func (a *analyzer) EmbeddingSize() int {
	return embeddingSize
}

func (a *analyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recognizer.Close()
	return nil
}
