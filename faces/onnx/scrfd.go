package onnx

import (
	"context"
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"

	"recognition-server/faces"
)

// SCRFD output layouts, keyed by number of model outputs
var scrfdLayouts = map[int]struct {
	strides    []int
	numAnchors int
	kps        bool
}{
	6:  {[]int{8, 16, 32}, 2, false},
	9:  {[]int{8, 16, 32}, 2, true},
	10: {[]int{8, 16, 32, 64, 128}, 1, false},
	15: {[]int{8, 16, 32, 64, 128}, 1, true},
}

type detection struct {
	box   faces.BBox
	score float32
	kps   []faces.Landmark
}

type scrfd struct {
	sess         *session
	size         int
	strides      []int
	numAnchors   int
	batched      bool
	threshold    float32
	nmsThreshold float32
}

func newSCRFD(path string, opts faces.Options) (*scrfd, error) {
	if opts.DetSize%32 != 0 {
		return nil, fmt.Errorf("detection size %d must be a multiple of 32", opts.DetSize)
	}
	sess, err := openSession(path, opts)
	if err != nil {
		return nil, err
	}
	layout, ok := scrfdLayouts[len(sess.outputs)]
	if !ok {
		sess.Close()
		return nil, fmt.Errorf("unsupported SCRFD model with %d outputs", len(sess.outputs))
	}
	if !layout.kps {
		sess.Close()
		return nil, fmt.Errorf("detector model %s has no landmark outputs, faces cannot be aligned", path)
	}
	return &scrfd{
		sess:         sess,
		size:         opts.DetSize,
		strides:      layout.strides,
		numAnchors:   layout.numAnchors,
		batched:      len(sess.outputs[0].Dimensions) == 3,
		threshold:    opts.DetThreshold,
		nmsThreshold: opts.NMSThreshold,
	}, nil
}

func (d *scrfd) outputShape(stride, width int) ort.Shape {
	cells := int64(d.size/stride) * int64(d.size/stride) * int64(d.numAnchors)
	if d.batched {
		return ort.NewShape(1, cells, int64(width))
	}
	return ort.NewShape(cells, int64(width))
}

func (d *scrfd) detect(ctx context.Context, img *image.RGBA) ([]detection, error) {
	canvas, scale := faces.Letterbox(img, d.size)
	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(d.size), int64(d.size)), faces.Blob(canvas, 127.5, 128))
	if err != nil {
		return nil, fmt.Errorf("failed to create detector input: %w", err)
	}
	defer input.Destroy()

	fmc := len(d.strides)
	outputs := make([]ort.ArbitraryTensor, 3*fmc)
	defer destroyAll(outputs)
	for i, stride := range d.strides {
		for group, width := range []int{1, 4, 10} {
			t, err := ort.NewEmptyTensor[float32](d.outputShape(stride, width))
			if err != nil {
				return nil, fmt.Errorf("failed to create detector output: %w", err)
			}
			outputs[group*fmc+i] = t
		}
	}

	if err = ctx.Err(); err != nil {
		return nil, err
	}
	if err = d.sess.Run([]ort.ArbitraryTensor{input}, outputs); err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	var dets []detection
	for i, stride := range d.strides {
		scores := outputs[i].(*ort.Tensor[float32]).GetData()
		boxes := outputs[fmc+i].(*ort.Tensor[float32]).GetData()
		kps := outputs[2*fmc+i].(*ort.Tensor[float32]).GetData()
		dets = append(dets, decodeStride(scores, boxes, kps, stride, d.size, d.numAnchors, d.threshold)...)
	}

	inv := 1 / scale
	boxes := make([]faces.BBox, len(dets))
	scores := make([]float32, len(dets))
	for i := range dets {
		dets[i].box = dets[i].box.Scale(inv)
		for k := range dets[i].kps {
			dets[i].kps[k] = faces.Landmark{dets[i].kps[k][0] * inv, dets[i].kps[k][1] * inv}
		}
		boxes[i] = dets[i].box
		scores[i] = dets[i].score
	}
	keep := faces.NMS(boxes, scores, d.nmsThreshold)
	result := make([]detection, 0, len(keep))
	for _, k := range keep {
		result = append(result, dets[k])
	}
	return result, nil
}

// decodeStride turns one feature map's distance predictions into boxes and
// landmarks in letterbox canvas coordinates. Anchor centres sit on a
// stride-spaced grid, each repeated numAnchors times.
func decodeStride(scores, boxes, kps []float32, stride, size, numAnchors int, threshold float32) []detection {
	cells := size / stride
	var dets []detection
	for idx, score := range scores {
		if score < threshold {
			continue
		}
		cell := idx / numAnchors
		if cell >= cells*cells || len(boxes) < (idx+1)*4 {
			break
		}
		cx := float32((cell % cells) * stride)
		cy := float32((cell / cells) * stride)
		b := boxes[idx*4 : idx*4+4]
		det := detection{
			box: faces.BBox{
				cx - b[0]*float32(stride),
				cy - b[1]*float32(stride),
				cx + b[2]*float32(stride),
				cy + b[3]*float32(stride),
			},
			score: score,
		}
		if len(kps) >= (idx+1)*10 {
			k := kps[idx*10 : idx*10+10]
			det.kps = make([]faces.Landmark, 5)
			for p := 0; p < 5; p++ {
				det.kps[p] = faces.Landmark{
					cx + k[2*p]*float32(stride),
					cy + k[2*p+1]*float32(stride),
				}
			}
		}
		dets = append(dets, det)
	}
	return dets
}

func (d *scrfd) Close() {
	d.sess.Close()
}
