package htmldoc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteURLs_Substitution(t *testing.T) {
	t.Parallel()

	doc := `<img src="https://cdn.example.com/a.png">` +
		`<div style="background-image: url(https://cdn.example.com/a.png)">x</div>`

	got := RewriteURLs(doc, map[string]string{
		"https://cdn.example.com/a.png": "images/01.png",
	})

	assert.NotContains(t, got, "https://cdn.example.com/a.png")
	assert.Equal(t, 2, strings.Count(got, "images/01.png"))
}

func TestRewriteURLs_EntityEscapedForm(t *testing.T) {
	t.Parallel()

	doc := `<img src="https://cdn.example.com/a.png?w=1&amp;h=2">`
	got := RewriteURLs(doc, map[string]string{
		"https://cdn.example.com/a.png?w=1&h=2": "images/01.png",
	})

	assert.Contains(t, got, `src="images/01.png"`)
	assert.NotContains(t, got, "cdn.example.com")
}

func TestRewriteURLs_RemoveStripsImgElement(t *testing.T) {
	t.Parallel()

	doc := `<p>before</p><img class="wide" src="https://cdn.example.com/dead.png" alt="x"/><p>after</p>`
	got := RewriteURLs(doc, map[string]string{
		"https://cdn.example.com/dead.png": "",
	})

	assert.NotContains(t, got, "<img")
	assert.NotContains(t, got, "dead.png")
	assert.Contains(t, got, "<p>before</p>")
	assert.Contains(t, got, "<p>after</p>")
}

func TestRewriteURLs_RemoveBlanksCSSReference(t *testing.T) {
	t.Parallel()

	doc := `<div style="background-image: url(https://cdn.example.com/dead.png)">x</div>`
	got := RewriteURLs(doc, map[string]string{
		"https://cdn.example.com/dead.png": "",
	})

	assert.NotContains(t, got, "dead.png")
	assert.Contains(t, got, "<div")
}

func TestRewriteURLs_EmptyMapping(t *testing.T) {
	t.Parallel()

	doc := `<img src="https://cdn.example.com/a.png">`
	assert.Equal(t, doc, RewriteURLs(doc, nil))
}

func TestWrapDocument(t *testing.T) {
	t.Parallel()

	got := WrapDocument("<p>内容</p>")
	assert.True(t, strings.HasPrefix(got, "<!DOCTYPE html>"))
	assert.Contains(t, got, `lang="zh-CN"`)
	assert.Contains(t, got, "<p>内容</p>")
	assert.True(t, strings.HasSuffix(got, "</html>"))
}

func TestWrapDocument_FullDocumentUnchanged(t *testing.T) {
	t.Parallel()

	full := "<!DOCTYPE html>\n<html><body>x</body></html>"
	assert.Equal(t, full, WrapDocument(full))

	lower := "  <!doctype html><html></html>"
	assert.Equal(t, lower, WrapDocument(lower))
}
