// Package embeddings provides text and image embedding generation.
//
// Text embeddings (C7) support FastEmbed (local ONNX) and TEI (external
// service) providers, selected via the Provider factory with automatic
// dimension detection for common models. Image embeddings (C8) run a
// locally-loaded ONNX vision encoder, lazily initialized on first use.
package embeddings
