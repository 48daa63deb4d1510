package feed

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizerResolvesRelativeLinks(t *testing.T) {
	s := NewSanitizer()

	got := s.Run(`<p><a href="/post/1">post</a> <img src="img/a.png"></p>`, "https://example.com/blog/")

	assert.Contains(t, got, `href="https://example.com/post/1"`)
	assert.Contains(t, got, `src="https://example.com/blog/img/a.png"`)
}

func TestSanitizerKeepsAbsoluteLinks(t *testing.T) {
	got := NewSanitizer().Run(`<a href="https://other.example.org/x">x</a>`, "https://example.com/")

	assert.Contains(t, got, `href="https://other.example.org/x"`)
}

func TestSanitizerStripsActiveContent(t *testing.T) {
	got := NewSanitizer().Run(
		`<p onclick="steal()">hi</p><script>alert(1)</script><a href="javascript:alert(1)">x</a>`,
		"https://example.com/",
	)

	assert.NotContains(t, got, "script")
	assert.NotContains(t, got, "onclick")
	assert.NotContains(t, got, "javascript:")
	assert.Contains(t, got, "hi")
}

func TestSanitizerEmpty(t *testing.T) {
	assert.Equal(t, "", NewSanitizer().Run("  ", "https://example.com/"))
}

func TestSanitizerTitle(t *testing.T) {
	s := NewSanitizer()

	assert.Equal(t, "Hello world", s.Title("  <b>Hello</b>\n world ", "https://example.com/"))
	assert.Equal(t, "Fish & Chips", s.Title("Fish &amp; Chips", ""))

	long := strings.Repeat("é", MaxTitleLength+10)
	truncated := s.Title(long, "")
	assert.Equal(t, MaxTitleLength, utf8.RuneCountInString(truncated))
}
