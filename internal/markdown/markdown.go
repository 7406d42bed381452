// Package markdown renders dilemma bodies to sanitized HTML for API
// responses. Input is untrusted admin text; the bluemonday UGC policy strips
// anything the question detail payload should not carry.
package markdown

import (
	"bytes"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.Linkify, extension.Typographer),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

var policy = bluemonday.UGCPolicy()

// Render converts markdown to sanitized HTML. On a conversion error the raw
// text is sanitized and returned as-is rather than failing the request.
func Render(src string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return template.HTML(policy.Sanitize(src))
	}
	return template.HTML(policy.SanitizeBytes(buf.Bytes()))
}
