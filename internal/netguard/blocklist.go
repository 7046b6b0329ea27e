package netguard

import "strings"

// defaultBlockedHosts are refused whatever the configuration says.
var defaultBlockedHosts = []string{
	"localhost",
	"*.localhost",
	"localhost.localdomain",
	"metadata.google.internal",
}

// hostBlocklist matches exact hostnames and "*.suffix" (or ".suffix")
// patterns. A suffix pattern also matches the bare suffix.
type hostBlocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

func newHostBlocklist(patterns ...string) *hostBlocklist {
	b := &hostBlocklist{exact: make(map[string]struct{})}
	b.add(patterns...)
	return b
}

func (b *hostBlocklist) add(patterns ...string) {
	for _, raw := range patterns {
		value := strings.TrimSuffix(strings.TrimSpace(strings.ToLower(raw)), ".")
		switch {
		case value == "":
		case strings.HasPrefix(value, "*."):
			b.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			b.addSuffix(strings.TrimPrefix(value, "."))
		default:
			b.exact[value] = struct{}{}
		}
	}
}

func (b *hostBlocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// Blocked reports whether host matches any pattern.
func (b *hostBlocklist) Blocked(host string) bool {
	host = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(host)), ".")
	if host == "" {
		return false
	}
	if _, ok := b.exact[host]; ok {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
