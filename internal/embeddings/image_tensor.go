package embeddings

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

// imageEncoderSize is the fixed square input resolution expected by the
// ONNX vision encoder (matches common CLIP image-tower exports).
const imageEncoderSize = 224

// imageNetMean and imageNetStd are the standard per-channel normalization
// constants used by CLIP-family vision encoders.
var (
	imageNetMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	imageNetStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// loadImageTensor decodes an image file and produces a CHW float32 tensor
// normalized to the vision encoder's expected input distribution. Decode
// failures (corrupt file, unsupported codec) surface as an error so the
// caller can treat the image as unembeddable without indexing failing.
func loadImageTensor(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	resized := resizeNearest(img, imageEncoderSize, imageEncoderSize)

	tensor := make([]float32, 3*imageEncoderSize*imageEncoderSize)
	plane := imageEncoderSize * imageEncoderSize
	for y := 0; y < imageEncoderSize; y++ {
		for x := 0; x < imageEncoderSize; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			idx := y*imageEncoderSize + x
			tensor[0*plane+idx] = (float32(r>>8)/255 - imageNetMean[0]) / imageNetStd[0]
			tensor[1*plane+idx] = (float32(g>>8)/255 - imageNetMean[1]) / imageNetStd[1]
			tensor[2*plane+idx] = (float32(b>>8)/255 - imageNetMean[2]) / imageNetStd[2]
		}
	}
	return tensor, nil
}

// resizeNearest performs nearest-neighbor resize. Vision-encoder input
// preprocessing doesn't need a higher-quality filter: the encoder itself is
// tolerant of minor resampling artifacts, and nearest-neighbor keeps this
// path dependency-free.
func resizeNearest(src image.Image, w, h int) image.Image {
	bounds := src.Bounds()
	sw, sh := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := bounds.Min.Y + y*sh/h
		for x := 0; x < w; x++ {
			sx := bounds.Min.X + x*sw/w
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

// runSession executes the loaded ONNX vision encoder against a single
// preprocessed image tensor and returns the raw (pre-normalization) output
// embedding.
func (e *ImageEmbedder) runSession(pixels []float32) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inputShape := ort.NewShape(1, 3, imageEncoderSize, imageEncoderSize)
	inputTensor, err := ort.NewTensor(inputShape, pixels)
	if err != nil {
		return nil, fmt.Errorf("%w: creating input tensor: %v", ErrImageEmbedFailed, err)
	}
	defer inputTensor.Destroy()

	outputShape := ort.NewShape(1, int64(e.cfg.Dimension))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return nil, fmt.Errorf("%w: creating output tensor: %v", ErrImageEmbedFailed, err)
	}
	defer outputTensor.Destroy()

	if e.session == nil {
		session, err := ort.NewAdvancedSession(e.cfg.ModelPath,
			[]string{"pixel_values"}, []string{"image_embeds"},
			[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor}, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: creating session: %v", ErrImageEmbedFailed, err)
		}
		e.session = session
	}

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: running inference: %v", ErrImageEmbedFailed, err)
	}

	data := outputTensor.GetData()
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}
