package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `
<html>
<head>
	<title>Plain Title</title>
	<meta property="og:title" content="OG Title">
	<meta property="og:description" content="OG description text">
	<meta property="og:type" content="article">
</head>
<body>
	<a href="/relative/path">relative</a>
	<a href="https://other.example.com/absolute">absolute</a>
	<a href="#fragment-only">fragment</a>
	<a href="mailto:hi@example.com">mail</a>
	<a href="https://example.com/relative/path">duplicate</a>
</body>
</html>`

func TestExtractLinks_ResolvesAndDedupes(t *testing.T) {
	h := New()
	links, err := h.ExtractLinks([]byte(samplePage), "https://example.com/start", "example.com")
	require.NoError(t, err)
	assert.Contains(t, links, "https://example.com/relative/path")
	assert.Contains(t, links, "https://other.example.com/absolute")
	assert.NotContains(t, links, "")

	count := 0
	for _, l := range links {
		if l == "https://example.com/relative/path" {
			count++
		}
	}
	assert.Equal(t, 1, count, "identical resolved URLs must be deduplicated")
}

func TestExtractLinks_SkipsNonHTTPSchemes(t *testing.T) {
	h := New()
	links, err := h.ExtractLinks([]byte(samplePage), "https://example.com/start", "example.com")
	require.NoError(t, err)
	for _, l := range links {
		assert.NotContains(t, l, "mailto:")
	}
}

func TestExtractMetadata_PrefersOpenGraph(t *testing.T) {
	h := New()
	meta, err := h.ExtractMetadata([]byte(samplePage))
	require.NoError(t, err)
	assert.Equal(t, "OG Title", meta.Title)
	assert.Equal(t, "OG description text", meta.Description)
	assert.Equal(t, "article", meta.ContentType)
}

func TestExtractMetadata_FallsBackToPlainTitle(t *testing.T) {
	h := New()
	meta, err := h.ExtractMetadata([]byte(`<html><head><title>Only Title</title></head></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Only Title", meta.Title)
}
