package provider

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ResolveBaseURL returns cfg.BaseURL when set (after validation) and def
// otherwise, always without a trailing slash.
func ResolveBaseURL(cfg Config, def string) (string, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return strings.TrimRight(def, "/"), nil
	}
	if err := ValidateBaseURL(raw, cfg.AllowPrivateBaseURL); err != nil {
		return "", fmt.Errorf("provider %s: %w", cfg.Name, err)
	}
	return strings.TrimRight(raw, "/"), nil
}

// ValidateBaseURL rejects base URLs carrying userinfo, query or fragment and,
// unless allowPrivate is set, loopback and private hosts.
func ValidateBaseURL(raw string, allowPrivate bool) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}

	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("invalid base_url scheme %q (must be http or https)", u.Scheme)
	case u.Hostname() == "":
		return fmt.Errorf("invalid base_url host %q", u.Host)
	case u.User != nil:
		return fmt.Errorf("base_url must not contain userinfo")
	case u.RawQuery != "":
		return fmt.Errorf("base_url must not contain query")
	case u.Fragment != "":
		return fmt.Errorf("base_url must not contain fragment")
	}

	if !allowPrivate && isPrivateHost(u.Hostname()) {
		return fmt.Errorf("base_url host %q is private (set allow_private_base_url to override)", u.Hostname())
	}
	return nil
}

func isPrivateHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return true
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return true
	}
	return !ip.IsGlobalUnicast()
}
