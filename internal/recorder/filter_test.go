package recorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter(t *testing.T) {
	tests := []struct {
		pattern string
		url     string
		want    bool
	}{
		{"", "https://anything.test/", true},
		{"/api/", "https://shop.test/api/cart", true},
		{"/api/", "https://shop.test/app.js", false},
		{"https://*.shop.test/api/*", "https://eu.shop.test/api/cart", true},
		{"https://*.shop.test/api/*", "https://eu.shop.test/static/x", false},
		{"*.json", "https://a.test/data.json", true},
	}
	for _, tt := range tests {
		f, err := NewFilter(tt.pattern)
		require.NoError(t, err)
		assert.Equal(t, tt.want, f.Match(tt.url), "%q vs %q", tt.pattern, tt.url)
	}
}

func TestNilFilterMatchesAll(t *testing.T) {
	var f *Filter
	assert.True(t, f.Match("https://a.test"))
}

func TestIsTextMime(t *testing.T) {
	for _, m := range []string{"application/json", "text/plain", "application/xml", "application/javascript", "text/css"} {
		assert.True(t, IsTextMime(m), m)
	}
	for _, m := range []string{"", "image/webp", "font/woff2", "application/octet-stream"} {
		assert.False(t, IsTextMime(m), m)
	}
}
