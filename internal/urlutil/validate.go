package urlutil

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/hamed0406/uptimeboard/internal/apperr"
)

var aliasRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// NormalizeURL checks that raw is an absolute http(s) URL with a host and
// returns it with scheme and host lowercased and default ports stripped.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", apperr.NewValidation("url is not a valid URL", map[string]any{"url": raw})
	}
	if !u.IsAbs() || (strings.ToLower(u.Scheme) != "http" && strings.ToLower(u.Scheme) != "https") {
		return "", apperr.NewValidation("url must be an absolute http or https url", map[string]any{"url": raw})
	}
	if u.Hostname() == "" {
		return "", apperr.NewValidation("url has no host", map[string]any{"url": raw})
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && u.Port() == "80") || (u.Scheme == "https" && u.Port() == "443") {
		u.Host = u.Hostname()
	}
	u.Fragment = ""
	return u.String(), nil
}

// ValidateAlias checks that alias can be used as a single URL path segment.
func ValidateAlias(alias string) error {
	if !aliasRe.MatchString(alias) {
		return apperr.NewValidation("alias must be 1-64 characters of letters, digits, '.', '_' or '-'",
			map[string]any{"alias": alias})
	}
	return nil
}

// Host returns the hostname of raw, or raw itself when it does not parse.
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return strings.ToLower(u.Hostname())
}
