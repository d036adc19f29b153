// Package frontier normalizes discovered URLs, applies the in-domain and
// include/exclude filters, and exposes a thin facade over crawl.Store for
// seeding, discovery, and claim/complete/fail/skip operations.
package frontier

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// trackingParamPrefixes and trackingParamNames are dropped from the query
// string during normalization.
var trackingParamPrefixes = []string{"utm_"}
var trackingParamNames = map[string]struct{}{
	"fbclid": {},
	"gclid":  {},
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if _, ok := trackingParamNames[lower]; ok {
		return true
	}
	for _, prefix := range trackingParamPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// NormalizeURL produces the canonical dedup key for a URL: lowercase host,
// default ports stripped, trailing slash stripped (except root), fragment
// dropped, tracking params dropped, remaining query params sorted by key,
// scheme preserved. Invalid URLs pass through unchanged.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Host = stripDefaultPort(u.Scheme, u.Host)
	u.Fragment = ""

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	if u.Path == "" {
		u.Path = "/"
	}

	if u.RawQuery != "" {
		values := u.Query()
		for key := range values {
			if isTrackingParam(key) {
				values.Del(key)
			}
		}
		u.RawQuery = encodeSortedQuery(values)
	}

	return u.String()
}

func stripDefaultPort(scheme, host string) string {
	switch {
	case strings.HasSuffix(host, ":80") && scheme == "http":
		return strings.TrimSuffix(host, ":80")
	case strings.HasSuffix(host, ":443") && scheme == "https":
		return strings.TrimSuffix(host, ":443")
	default:
		return host
	}
}

func encodeSortedQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for j, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
			_ = i
			_ = j
		}
	}
	return b.String()
}

// InDomain reports whether urlHost is jobDomain or a subdomain of it.
func InDomain(urlHost, jobDomain string) bool {
	urlHost = strings.ToLower(urlHost)
	jobDomain = strings.ToLower(jobDomain)
	return urlHost == jobDomain || strings.HasSuffix(urlHost, "."+jobDomain)
}

// HostOf extracts the lowercase host from a raw URL, or "" if unparsable.
func HostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// PassesFilters implements the §4.4 filter order: exclude (any match ⇒
// reject) then include (if non-empty, at least one must match). The
// in-domain check is applied by the caller before this, per the spec's
// filter order (in-domain → exclude → include → normalize → dedup).
func PassesFilters(raw string, include, exclude []*regexp.Regexp) bool {
	for _, re := range exclude {
		if re.MatchString(raw) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, re := range include {
		if re.MatchString(raw) {
			return true
		}
	}
	return false
}
