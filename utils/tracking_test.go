package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInjectTrackingAppendsPixel(t *testing.T) {
	out := InjectTracking("<p>Hello</p>", "http://localhost:5000", "msg-1")

	assert.True(t, strings.HasPrefix(out, "<p>Hello</p>"))
	assert.Contains(t, out, "http://localhost:5000/track/open/msg-1/")
	assert.Contains(t, out, `width="1" height="1"`)
}

func TestInjectTrackingRewritesLinks(t *testing.T) {
	body := `<p>See <a href="https://example.com/pricing">pricing</a> and <a href="https://example.com/docs">docs</a></p>`
	out := InjectTracking(body, "http://localhost:5000", "msg-1")

	assert.NotContains(t, out, `href="https://example.com/pricing"`)
	assert.Equal(t, 2, strings.Count(out, "/track/click/msg-1/"))
	assert.Contains(t, out, "url=https%3A%2F%2Fexample.com%2Fpricing")
	assert.Contains(t, out, "url=https%3A%2F%2Fexample.com%2Fdocs")
}

func TestClickTrackURLEscapesTarget(t *testing.T) {
	u := ClickTrackURL("http://localhost:5000", "msg-1", "https://example.com/a?b=c&d=e")
	assert.Contains(t, u, "url=https%3A%2F%2Fexample.com%2Fa%3Fb%3Dc%26d%3De")
}
