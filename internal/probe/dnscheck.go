package probe

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"
)

// DNS classes reported by CheckDNS.
const (
	DNSResolves     = "RESOLVES"
	DNSNXDomain     = "NXDOMAIN"
	DNSTimeout      = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName  = "INVALID_NAME"
	DNSLookupFailed = "LOOKUP_FAILED"
)

// DefaultHosts are the API hosts the SDKs call when base_url is unset.
var DefaultHosts = map[string]string{
	"openai": "api.openai.com",
	"claude": "api.anthropic.com",
	"gemini": "generativelanguage.googleapis.com",
}

// Resolver is the subset of *net.Resolver used by CheckDNS.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

type DNSStatus struct {
	Host          string
	IPs           []net.IP
	Class         string
	ResolverError string
}

var dnsTimeout = 3 * time.Second

// HostOf returns the host part of a base URL, or raw itself when it has none.
func HostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Hostname() == "" {
		return strings.TrimSpace(raw)
	}
	return u.Hostname()
}

// CheckDNS resolves host and classifies the outcome. A nil r uses the OS resolver.
func CheckDNS(ctx context.Context, r Resolver, host string) DNSStatus {
	s := DNSStatus{Host: strings.TrimSpace(host)}
	if s.Host == "" || strings.ContainsAny(s.Host, "/: ") {
		s.Class = DNSInvalidName
		return s
	}
	if r == nil {
		r = net.DefaultResolver
	}

	ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	addrs, err := r.LookupIPAddr(ctx, s.Host)
	if err == nil && len(addrs) > 0 {
		for _, a := range addrs {
			s.IPs = append(s.IPs, a.IP)
		}
		s.Class = DNSResolves
		return s
	}

	s.Class = DNSLookupFailed
	if err == nil {
		s.Class = DNSNXDomain
		return s
	}
	s.ResolverError = err.Error()
	var de *net.DNSError
	if errors.As(err, &de) {
		switch {
		case de.IsNotFound:
			s.Class = DNSNXDomain
		case de.IsTemporary || de.Timeout():
			s.Class = DNSTimeout
		}
	}
	return s
}
