// Package onnx runs InsightFace model packs (SCRFD detector + ArcFace
// recognizer, e.g. buffalo_l) on onnxruntime.
package onnx

import (
	"context"
	"fmt"
	"image"
	"path/filepath"

	"recognition-server/faces"
	"recognition-server/logger"
)

const Name = "onnx"

func init() {
	faces.Register(Name, New)
}

type analyzer struct {
	det *scrfd
	rec *arcface
}

// New loads the detector and recognizer described by opts
func New(opts faces.Options) (faces.Analyzer, error) {
	opts = withDefaults(opts)
	if err := acquireEnvironment(opts.LibraryPath); err != nil {
		return nil, err
	}
	det, err := newSCRFD(modelPath(opts, opts.DetModel), opts)
	if err != nil {
		releaseEnvironment()
		return nil, err
	}
	rec, err := newArcFace(modelPath(opts, opts.RecModel), opts)
	if err != nil {
		det.Close()
		releaseEnvironment()
		return nil, err
	}
	logger.Info(logger.Fields{
		"model":          opts.ModelName,
		"provider":       det.sess.provider,
		"det_size":       fmt.Sprintf("%dx%d", opts.DetSize, opts.DetSize),
		"embedding_size": rec.embeddingSize,
	}, "ONNX face analyzer ready")
	return &analyzer{det: det, rec: rec}, nil
}

func (a *analyzer) Get(ctx context.Context, img image.Image) ([]faces.Face, error) {
	rgba := faces.ToRGBA(img)
	dets, err := a.det.detect(ctx, rgba)
	if err != nil {
		return nil, err
	}
	result := make([]faces.Face, 0, len(dets))
	for _, d := range dets {
		embedding, err := a.rec.embed(ctx, rgba, d.kps)
		if err != nil {
			return nil, err
		}
		score := d.score
		result = append(result, faces.Face{
			BBox:      d.box,
			Landmarks: d.kps,
			DetScore:  &score,
			Embedding: embedding,
		})
	}
	return result, nil
}

func (a *analyzer) EmbeddingSize() int {
	return a.rec.embeddingSize
}

func (a *analyzer) Close() error {
	a.det.Close()
	a.rec.Close()
	releaseEnvironment()
	return nil
}

func withDefaults(opts faces.Options) faces.Options {
	if opts.DetSize <= 0 {
		opts.DetSize = 640
	}
	if opts.DetThreshold <= 0 {
		opts.DetThreshold = 0.5
	}
	if opts.NMSThreshold <= 0 {
		opts.NMSThreshold = 0.4
	}
	if opts.DetModel == "" {
		opts.DetModel = "det_10g.onnx"
	}
	if opts.RecModel == "" {
		opts.RecModel = "w600k_r50.onnx"
	}
	return opts
}

func modelPath(opts faces.Options, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(opts.ModelsDir, opts.ModelName, file)
}
