package embeddings

import "testing"

func TestNewProvider_UnknownProviderErrors(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Provider: "unknown"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewProvider_TEIWithoutBaseURLErrors(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Provider: "tei", Model: "BAAI/bge-small-en-v1.5"})
	if err == nil {
		t.Fatal("expected error for tei provider without a base URL")
	}
}

func TestNewProvider_EmptyModelDefaultsForTEI(t *testing.T) {
	provider, err := NewProvider(ProviderConfig{
		Provider: "tei",
		BaseURL:  "http://localhost:8080",
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	defer provider.Close()

	want := detectDimensionFromModel(DefaultModel)
	if provider.Dimension() != want {
		t.Errorf("Dimension() = %d, want %d (DefaultModel %q)", provider.Dimension(), want, DefaultModel)
	}
}

func TestDetectDimensionFromModel(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		wantDim int
	}{
		{"small model", "BAAI/bge-small-en-v1.5", 384},
		{"base model", "BAAI/bge-base-en-v1.5", 768},
		{"mini model", "sentence-transformers/all-MiniLM-L6-v2", 384},
		{"unrecognized name containing large", "some-large-model", 1024},
		{"unrecognized name with no hint", "unknown-model", 384},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectDimensionFromModel(tt.model); got != tt.wantDim {
				t.Errorf("detectDimensionFromModel(%q) = %d, want %d", tt.model, got, tt.wantDim)
			}
		})
	}
}
