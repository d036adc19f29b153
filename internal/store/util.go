package store

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

func secondsToDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// domainOf extracts the lowercase registrable host from a seed URL. It does
// not attempt public-suffix-aware eTLD+1 reduction; the job's domain is
// simply the seed's host, and in-domain matching (frontier.InDomain) treats
// that host and its subdomains as in scope.
func domainOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse seed url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("seed url %q has no host", rawURL)
	}
	return host, nil
}
