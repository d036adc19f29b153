package frontier

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases host and strips default port",
			in:   "HTTP://Example.COM:80/Path",
			want: "http://example.com/Path",
		},
		{
			name: "strips https default port",
			in:   "https://example.com:443/path",
			want: "https://example.com/path",
		},
		{
			name: "strips trailing slash except root",
			in:   "https://example.com/path/",
			want: "https://example.com/path",
		},
		{
			name: "keeps root slash",
			in:   "https://example.com",
			want: "https://example.com/",
		},
		{
			name: "drops fragment",
			in:   "https://example.com/path#section",
			want: "https://example.com/path",
		},
		{
			name: "drops tracking params and sorts the rest",
			in:   "https://example.com/path?b=2&utm_source=ads&a=1&fbclid=xyz",
			want: "https://example.com/path?a=1&b=2",
		},
		{
			name: "unparseable url passes through unchanged",
			in:   "::not a url::",
			want: "::not a url::",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestInDomain(t *testing.T) {
	t.Parallel()

	assert.True(t, InDomain("example.com", "example.com"))
	assert.True(t, InDomain("WWW.Example.com", "example.com"))
	assert.True(t, InDomain("blog.example.com", "example.com"))
	assert.False(t, InDomain("notexample.com", "example.com"))
	assert.False(t, InDomain("example.com", "blog.example.com"))
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "example.com", HostOf("https://Example.com/path"))
	assert.Equal(t, "", HostOf("::not a url::"))
}

func TestPassesFilters(t *testing.T) {
	t.Parallel()

	exclude := []*regexp.Regexp{regexp.MustCompile(`/admin/`)}
	include := []*regexp.Regexp{regexp.MustCompile(`/blog/`)}

	assert.False(t, PassesFilters("https://example.com/admin/x", include, exclude),
		"exclude match always rejects, even if include would also match")
	assert.True(t, PassesFilters("https://example.com/blog/post", include, exclude))
	assert.False(t, PassesFilters("https://example.com/other", include, exclude),
		"non-empty include list rejects anything that fails to match")
	assert.True(t, PassesFilters("https://example.com/anything", nil, exclude),
		"empty include list passes everything not excluded")
}
