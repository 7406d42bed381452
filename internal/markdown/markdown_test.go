package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	out := string(Render("The dog is outside **all winter**."))
	assert.Contains(t, out, "<strong>all winter</strong>")
}

func TestRenderLinkify(t *testing.T) {
	out := string(Render("See https://example.com for details."))
	assert.Contains(t, out, `<a href="https://example.com"`)
}

func TestRenderStripsScripts(t *testing.T) {
	out := string(Render(`Hello <script>alert("x")</script> world`))
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "Hello")
}
