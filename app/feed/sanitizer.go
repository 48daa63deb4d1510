package feed

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const MaxTitleLength = 2048

const strippedElements = "script, style, object, embed, applet, frame, frameset, base, meta, link"

// Sanitizer cleans entry HTML before it is stored
type Sanitizer struct{}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// Run removes active content and resolves relative href/src attributes against baseURL
func (s *Sanitizer) Run(html, baseURL string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	doc.Find(strippedElements).Remove()

	base, _ := url.Parse(baseURL)
	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		var handlers []string
		for _, attr := range sel.Nodes[0].Attr {
			if strings.HasPrefix(strings.ToLower(attr.Key), "on") {
				handlers = append(handlers, attr.Key)
			}
		}
		for _, name := range handlers {
			sel.RemoveAttr(name)
		}
		for _, name := range []string{"href", "src"} {
			value, ok := sel.Attr(name)
			if !ok {
				continue
			}
			sel.SetAttr(name, resolveURL(base, value))
		}
	})

	body, err := doc.Find("body").Html()
	if err != nil {
		return html
	}
	return strings.TrimSpace(body)
}

// Title strips markup from a title and truncates it to MaxTitleLength runes
func (s *Sanitizer) Title(title, baseURL string) string {
	if strings.TrimSpace(title) == "" {
		return ""
	}

	text := title
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s.Run(title, baseURL))); err == nil {
		text = doc.Text()
	}
	text = strings.Join(strings.Fields(text), " ")

	return truncate(text, MaxTitleLength)
}

func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(strings.ToLower(ref), "javascript:") {
		return ""
	}
	if base == nil || ref == "" {
		return ref
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
