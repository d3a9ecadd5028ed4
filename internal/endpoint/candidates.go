// Package endpoint discovers the pharmacy service among several candidate
// base addresses and remembers the one that last answered.
package endpoint

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is used when no override is configured.
const DefaultBaseURL = "http://127.0.0.1:8000"

var (
	wellKnownHosts = []string{"127.0.0.1", "localhost"}
	wellKnownPorts = []int{8000, 8001, 8080, 5000}
)

// Options carries the inputs to candidate construction.
type Options struct {
	// Override is a runtime-injected base address (flag or environment).
	Override string
	// PersistedOverride is the base address saved in local storage.
	PersistedOverride string
	// PageOrigin is the origin the client itself was served from, if any.
	PageOrigin string
}

// Candidates builds the ordered, deduplicated list of base addresses to try.
func Candidates(opts Options) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(base string) {
		base = Normalize(base)
		if base == "" || seen[base] {
			return
		}
		seen[base] = true
		out = append(out, base)
	}

	override := Normalize(opts.Override)
	if override == "" {
		override = Normalize(opts.PersistedOverride)
	}
	if override != "" {
		add(override)
	} else {
		add(DefaultBaseURL)
	}

	hosts := wellKnownHosts
	if origin, host, ok := localOrigin(opts.PageOrigin); ok {
		add(origin)
		hosts = append([]string{host}, wellKnownHosts...)
	}

	for _, host := range hosts {
		for _, port := range wellKnownPorts {
			add("http://" + net.JoinHostPort(host, strconv.Itoa(port)))
		}
	}

	return out
}

// Normalize trims whitespace and trailing slashes from a base address.
func Normalize(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}

// localOrigin reports the scheme://host[:port] of origin and its hostname
// when it points at the local machine.
func localOrigin(origin string) (string, string, bool) {
	origin = Normalize(origin)
	if origin == "" {
		return "", "", false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", "", false
	}
	host := u.Hostname()
	if !isLocalHost(host) {
		return "", "", false
	}
	return u.Scheme + "://" + u.Host, host, true
}

func isLocalHost(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0":
		return true
	}
	return false
}
