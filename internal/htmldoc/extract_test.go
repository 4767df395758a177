package htmldoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRemoteURLs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "img src",
			doc:  `<p><img src="https://cdn.example.com/a.png"></p>`,
			want: []string{"https://cdn.example.com/a.png"},
		},
		{
			name: "lazy load attributes",
			doc: `<img data-src="https://cdn.example.com/lazy.png">` +
				`<img data-original="https://cdn.example.com/orig.jpg">`,
			want: []string{
				"https://cdn.example.com/lazy.png",
				"https://cdn.example.com/orig.jpg",
			},
		},
		{
			name: "inline style background",
			doc:  `<div style="background-image: url('https://cdn.example.com/bg.jpg')">x</div>`,
			want: []string{"https://cdn.example.com/bg.jpg"},
		},
		{
			name: "background shorthand",
			doc:  `<div style="background: #fff url(https://cdn.example.com/bg2.png) no-repeat">x</div>`,
			want: []string{"https://cdn.example.com/bg2.png"},
		},
		{
			name: "style block",
			doc:  `<style>.hero { background-image: url("https://cdn.example.com/hero.webp"); }</style>`,
			want: []string{"https://cdn.example.com/hero.webp"},
		},
		{
			name: "data-background-image attribute",
			doc:  `<section data-background-image="https://cdn.example.com/s.png"></section>`,
			want: []string{"https://cdn.example.com/s.png"},
		},
		{
			name: "entity escaped query string",
			doc:  `<img src="https://cdn.example.com/a.png?w=10&amp;h=20">`,
			want: []string{"https://cdn.example.com/a.png?w=10&h=20"},
		},
		{
			name: "duplicates collapse preserving first-seen order",
			doc: `<img src="https://cdn.example.com/a.png">` +
				`<img src="https://cdn.example.com/b.png">` +
				`<img src="https://cdn.example.com/a.png">`,
			want: []string{
				"https://cdn.example.com/a.png",
				"https://cdn.example.com/b.png",
			},
		},
		{
			name: "data URIs are excluded",
			doc:  `<img src="data:image/png;base64,iVBORw0KGgo="><img src="https://cdn.example.com/a.png">`,
			want: []string{"https://cdn.example.com/a.png"},
		},
		{
			name: "no images",
			doc:  `<p>plain text</p>`,
			want: nil,
		},
		{
			name: "malformed markup does not panic",
			doc:  `<img src="https://cdn.example.com/a.png"<div><<>`,
			want: []string{"https://cdn.example.com/a.png"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExtractRemoteURLs(tt.doc))
		})
	}
}

func TestExtractDataImages(t *testing.T) {
	t.Parallel()

	doc := `<img src="data:image/png;base64,iVBORw0KGgo=">` +
		`<img src="https://cdn.example.com/a.png">` +
		`<img src="data:image/png;base64,iVBORw0KGgo=">`

	got := ExtractDataImages(doc)
	require.Len(t, got, 1)
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgo=", got[0])
}

func TestIsDataImage(t *testing.T) {
	t.Parallel()

	assert.True(t, IsDataImage("data:image/png;base64,AAAA"))
	assert.False(t, IsDataImage("https://cdn.example.com/a.png"))
	assert.False(t, IsDataImage("data:text/plain;base64,AAAA"))
}

func TestDecodeDataImage(t *testing.T) {
	t.Parallel()

	// "hello" in standard base64.
	body, mediaType, err := DecodeDataImage("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), body)
	assert.Equal(t, "image/png", mediaType)
}

func TestDecodeDataImage_ToleratesWhitespaceAndMissingPadding(t *testing.T) {
	t.Parallel()

	body, mediaType, err := DecodeDataImage("data:image/jpeg;base64,aGVs\n bG8")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), body)
	assert.Equal(t, "image/jpeg", mediaType)
}

func TestDecodeDataImage_Errors(t *testing.T) {
	t.Parallel()

	_, _, err := DecodeDataImage("data:image/png;base64")
	assert.Error(t, err, "missing payload separator")

	_, _, err = DecodeDataImage("data:image/png;base64,!!!not-base64!!!")
	assert.Error(t, err)
}

func TestFileExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		url         string
		contentType string
		want        string
	}{
		{"known extension from path", "https://a/img.PNG", "", ".png"},
		{"extension with query string", "https://a/img.webp?w=100#frag", "", ".webp"},
		{"unknown extension falls back to content type", "https://a/img.php", "image/gif", ".gif"},
		{"content type with charset", "https://a/img", "image/svg+xml; charset=utf-8", ".svg"},
		{"no hints defaults to jpg", "https://a/img", "text/html", ".jpg"},
		{"data image media type", "", "image/png", ".png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FileExtension(tt.url, tt.contentType))
		})
	}
}
