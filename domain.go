package afetch

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ResolveDomain extracts the rate-limit partition key from a URL: the
// lowercased host, with the port appended only when it differs from the
// scheme default. http://Example.com and http://example.com:80 resolve
// to the same key. The URL is parsed by two independent strategies and
// the call fails closed if they disagree.
func ResolveDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL %q has no authority component", rawURL)
	}
	parsed := domainKey(u.Scheme, u.Hostname(), u.Port())

	scanned, ok := scanDomainKey(rawURL)
	if !ok || scanned != parsed {
		return "", fmt.Errorf("URL %q has an ambiguous authority component", rawURL)
	}
	return parsed, nil
}

// domainKey normalizes host and port into a partition key.
func domainKey(scheme, host, port string) string {
	host = strings.ToLower(host)
	if port == "" || port == defaultPort(scheme) {
		return host
	}
	return net.JoinHostPort(host, port)
}

func defaultPort(scheme string) string {
	switch strings.ToLower(scheme) {
	case "http", "ws":
		return "80"
	case "https", "wss":
		return "443"
	default:
		return ""
	}
}

// scanDomainKey extracts the authority by a plain string scan, without
// net/url. Second opinion against malformed-URL edge cases.
func scanDomainKey(rawURL string) (string, bool) {
	var scheme, rest string
	if i := strings.Index(rawURL, "://"); i >= 0 {
		scheme = strings.ToLower(rawURL[:i])
		rest = rawURL[i+3:]
	} else if strings.HasPrefix(rawURL, "//") {
		rest = rawURL[2:]
	} else {
		return "", false
	}

	if j := strings.IndexAny(rest, "/?#"); j >= 0 {
		rest = rest[:j]
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	if rest == "" {
		return "", false
	}

	host, port := splitAuthority(rest)
	if host == "" {
		return "", false
	}
	return domainKey(scheme, host, port), true
}

func splitAuthority(authority string) (host, port string) {
	if strings.HasPrefix(authority, "[") {
		end := strings.Index(authority, "]")
		if end < 0 {
			return "", ""
		}
		host = authority[1:end]
		if len(authority) > end+1 && authority[end+1] == ':' {
			port = authority[end+2:]
		}
		return host, port
	}
	if i := strings.LastIndex(authority, ":"); i >= 0 {
		if strings.Contains(authority[:i], ":") {
			// Bare IPv6 literal without brackets.
			return authority, ""
		}
		return authority[:i], authority[i+1:]
	}
	return authority, ""
}
