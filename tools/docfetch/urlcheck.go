package docfetch

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Reserved ranges not covered by the net.IP helpers, parsed once.
var (
	cgnat    *net.IPNet // 100.64.0.0/10 carrier-grade NAT
	v6unique *net.IPNet // fc00::/7 IPv6 unique local
	v6link   *net.IPNet // fe80::/10 IPv6 link-local
)

func init() {
	for _, r := range []struct {
		cidr string
		dst  **net.IPNet
	}{
		{"100.64.0.0/10", &cgnat},
		{"fc00::/7", &v6unique},
		{"fe80::/10", &v6link},
	} {
		_, ipnet, err := net.ParseCIDR(r.cidr)
		if err != nil {
			panic("invalid reserved CIDR " + r.cidr + ": " + err.Error())
		}
		*r.dst = ipnet
	}
}

// validateURL rejects URLs that could reach internal infrastructure:
// non-HTTPS schemes, localhost variants, local domains, and literal
// private IPs. Resolved IPs are re-checked at dial time against DNS
// rebinding.
func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "https" {
		return fmt.Errorf("only HTTPS URLs are allowed")
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return fmt.Errorf("localhost URLs are not allowed")
	}
	if strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("local domain URLs are not allowed")
	}

	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("private IP addresses are not allowed")
	}

	return nil
}

// isPrivateIP reports whether ip falls in a private or reserved range,
// including IPv6-mapped IPv4 addresses.
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}

	if v4 := ip.To4(); v4 != nil {
		ip = v4
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
			return true
		}
	}

	return cgnat.Contains(ip) || v6unique.Contains(ip) || v6link.Contains(ip)
}

// urlPermitted applies the deny list, then the allow list. Patterns
// without a slash match the host alone ("*.github.io"); patterns with one
// match host plus path ("gorm.io/docs/**"). An empty allow list permits
// everything that clears the deny list. Malformed patterns never match.
func urlPermitted(host, path string, allow, deny []string) bool {
	host = strings.ToLower(host)
	target := host + "/" + strings.Trim(strings.ToLower(path), "/")
	target = strings.TrimSuffix(target, "/")

	for _, pattern := range deny {
		if matchURLPattern(pattern, host, target) {
			return false
		}
	}

	if len(allow) == 0 {
		return true
	}
	for _, pattern := range allow {
		if matchURLPattern(pattern, host, target) {
			return true
		}
	}
	return false
}

func matchURLPattern(pattern, host, target string) bool {
	pattern = strings.ToLower(strings.Trim(pattern, "/"))
	subject := host
	if strings.Contains(pattern, "/") {
		subject = target
	}
	ok, err := doublestar.Match(pattern, subject)
	return err == nil && ok
}
