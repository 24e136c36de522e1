package onnx

import (
	"context"
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"

	"recognition-server/faces"
)

const (
	defaultInputSize     = 112
	defaultEmbeddingSize = 512
)

type arcface struct {
	sess          *session
	inputSize     int
	embeddingSize int
}

func newArcFace(path string, opts faces.Options) (*arcface, error) {
	sess, err := openSession(path, opts)
	if err != nil {
		return nil, err
	}
	r := &arcface{
		sess:          sess,
		inputSize:     defaultInputSize,
		embeddingSize: defaultEmbeddingSize,
	}
	// NCHW, batch is usually dynamic
	if dims := sess.inputs[0].Dimensions; len(dims) == 4 && dims[2] > 0 {
		r.inputSize = int(dims[2])
	}
	if dims := sess.outputs[0].Dimensions; len(dims) > 0 && dims[len(dims)-1] > 0 {
		r.embeddingSize = int(dims[len(dims)-1])
	}
	return r, nil
}

// embed aligns the face on its 5 landmarks and returns the raw ArcFace output
func (r *arcface) embed(ctx context.Context, img *image.RGBA, kps []faces.Landmark) ([]float32, error) {
	aligned := faces.AlignCrop(img, kps, r.inputSize)
	size := int64(r.inputSize)
	input, err := ort.NewTensor(ort.NewShape(1, 3, size, size), faces.Blob(aligned, 127.5, 127.5))
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer input: %w", err)
	}
	defer input.Destroy()
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(r.embeddingSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer output: %w", err)
	}
	defer output.Destroy()

	if err = ctx.Err(); err != nil {
		return nil, err
	}
	if err = r.sess.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	embedding := make([]float32, r.embeddingSize)
	copy(embedding, output.GetData())
	return embedding, nil
}

func (r *arcface) Close() {
	r.sess.Close()
}
