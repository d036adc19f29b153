package memory

import (
	"fmt"
	"net/url"
	"strings"
)

func parseHost(rawURL string) (string, error) {
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
