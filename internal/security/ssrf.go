// Package security guards outbound requests to user-configured URLs.
package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"hydra/internal/domain"
)

// privateRanges lists the blocks a guarded client refuses to dial.
var privateRanges = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"0.0.0.0/8",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var parsedRanges []*net.IPNet

func init() {
	for _, cidr := range privateRanges {
		_, ipnet, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %q: %v", cidr, err))
		}
		parsedRanges = append(parsedRanges, ipnet)
	}
}

// IsPrivateIP reports whether ip is loopback, link-local, or in a private block.
func IsPrivateIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, ipnet := range parsedRanges {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

// dialControl runs after name resolution, so every address actually dialed
// is checked, including ones reached through DNS rebinding or redirects.
func dialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", address, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return domain.NewDomainError("security.Dial", domain.ErrBlockedAddress, "unresolved host "+host)
	}
	if IsPrivateIP(ip) {
		return domain.NewDomainError("security.Dial", domain.ErrBlockedAddress,
			fmt.Sprintf("%s is a private address", ip))
	}
	return nil
}

// NewHTTPClient returns a client with the given overall timeout. When
// blockPrivate is set, connections to private addresses fail with
// domain.ErrBlockedAddress.
func NewHTTPClient(timeout time.Duration, blockPrivate bool) *http.Client {
	if !blockPrivate {
		return &http.Client{Timeout: timeout}
	}
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   dialControl,
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: nil,
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}
