package embeddings

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/time/rate"
)

// ErrImageEmbedFailed indicates a specific image could not be embedded
// (corrupt file, unsupported format, or model inference error). Per the
// image-embedder contract this is not fatal to the chunk: callers keep
// has_image=true and omit the vector.
var ErrImageEmbedFailed = fmt.Errorf("image embedding failed")

// ImageConfig configures the local vision encoder.
type ImageConfig struct {
	// ModelPath is the path to the ONNX vision-encoder graph (e.g. a CLIP
	// image tower exported to ONNX).
	ModelPath string

	// LibraryPath overrides the ONNX runtime shared library location.
	// Falls back to GetONNXLibraryPath() when empty.
	LibraryPath string

	// Dimension is the output embedding dimension (D_I in the spec).
	Dimension int

	// RequestsPerSecond caps inference calls per second. Defaults to 2,
	// since local vision inference is CPU/GPU bound rather than
	// network bound but still benefits from the same backpressure
	// primitive used for the text embedder and the query-parser LLM calls.
	RequestsPerSecond float64
}

// ImageEmbedder wraps a locally-loaded ONNX vision encoder. The model is
// lazily initialized on first EmbedImage call; subsequent calls reuse the
// loaded session.
type ImageEmbedder struct {
	cfg     ImageConfig
	limiter *rate.Limiter

	mu      sync.Mutex
	loadErr error
	loaded  bool
	session *ort.AdvancedSession
	input   []float32
	output  []float32
}

// NewImageEmbedder constructs an embedder without loading the model yet.
func NewImageEmbedder(cfg ImageConfig) (*ImageEmbedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("%w: model path required", ErrInvalidConfig)
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 512
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	return &ImageEmbedder{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// Dimension returns D_I, the image embedding dimension.
func (e *ImageEmbedder) Dimension() int {
	return e.cfg.Dimension
}

// ensureLoaded lazily initializes the ONNX runtime and session under e.mu,
// using the platform-library resolution in onnx_setup.go. The first
// outcome, success or error, is kept and returned by every later call.
func (e *ImageEmbedder) ensureLoaded() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded {
		return e.loadErr
	}
	e.loaded = true

	libPath := e.cfg.LibraryPath
	if libPath == "" {
		libPath = GetONNXLibraryPath()
	}
	if libPath == "" {
		e.loadErr = fmt.Errorf("%w: ONNX runtime library not found (set ONNX_PATH or run setup)", ErrImageEmbedFailed)
		return e.loadErr
	}
	if _, err := os.Stat(e.cfg.ModelPath); err != nil {
		e.loadErr = fmt.Errorf("%w: model file unreadable: %v", ErrImageEmbedFailed, err)
		return e.loadErr
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		e.loadErr = fmt.Errorf("%w: initializing ONNX environment: %v", ErrImageEmbedFailed, err)
		return e.loadErr
	}

	return nil
}

// EmbedImage produces a unit image embedding for the file at path, or
// (nil, nil) if the image could not be embedded — per §4.8, a per-image
// failure is absorbed by the caller (chunk keeps has_image=true, no vector).
func (e *ImageEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	if err := e.ensureLoaded(); err != nil {
		return nil, nil //nolint:nilerr // per-image failures are absent vectors, not hard errors
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	pixels, err := loadImageTensor(path)
	if err != nil {
		return nil, nil
	}

	vec, err := e.runSession(pixels)
	if err != nil {
		return nil, nil
	}
	return normalizeVector(vec), nil
}

// Close releases the ONNX session and destroys the environment.
func (e *ImageEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	return ort.DestroyEnvironment()
}

func normalizeVector(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
