package contacts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1 (415) 555-1234", "4155551234"},
		{"4155551234", "4155551234"},
		{"415.555.1234", "4155551234"},
		{"15551234", "15551234"}, // fewer than 10 digits: kept as-is
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.in), tt.in)
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
}

func TestResolver_UnknownHandleReturnsItself(t *testing.T) {
	r := &Resolver{phones: map[string]string{}, emails: map[string]string{}}
	assert.Equal(t, "+14155551234", r.Resolve("+14155551234"))
	assert.Equal(t, "nobody@example.com", r.Resolve("nobody@example.com"))
}

func TestResolver_ResolvesKnownHandles(t *testing.T) {
	r := &Resolver{
		phones: map[string]string{"4155551234": "Alice"},
		emails: map[string]string{"bob@example.com": "Bob"},
	}
	assert.Equal(t, "Alice", r.Resolve("+1 (415) 555-1234"))
	assert.Equal(t, "Bob", r.Resolve("Bob@Example.com"))
}
