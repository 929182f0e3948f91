package dns

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// VerifyHostResolves checks that the hostname has at least one A or AAAA
// record. It first tries public DNS (1.1.1.1 / 8.8.8.8), then falls back to
// the system resolver. Campaign targets pointing at unresolvable hosts are
// rejected before any credits are charged.
func VerifyHostResolves(hostname string) error {
	if strings.TrimSpace(hostname) == "" {
		return fmt.Errorf("hostname cannot be empty")
	}

	host := dns.Fqdn(hostname)
	zap.L().Debug("Verifying host resolves", zap.String("host", host))

	publicResolvers := []string{"1.1.1.1:53", "8.8.8.8:53"}
	for _, resolver := range publicResolvers {
		if err := queryAddrWithResolver(host, resolver); err == nil {
			return nil
		}
	}

	zap.L().Warn("Falling back to system resolver", zap.String("hostname", hostname))
	if err := querySystem(hostname); err == nil {
		return nil
	}

	return fmt.Errorf("host %s does not resolve", hostname)
}

// queryAddrWithResolver uses a specific DNS resolver for the address lookup
func queryAddrWithResolver(hostname, resolver string) error {
	client := &dns.Client{
		Timeout: 3 * time.Second,
	}

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := dns.Msg{}
		msg.SetQuestion(hostname, qtype)

		resp, _, err := client.Exchange(&msg, resolver)
		if err != nil {
			zap.L().Debug("DNS query failed", zap.String("resolver", resolver), zap.Error(err))
			continue
		}

		if len(resp.Answer) > 0 {
			return nil
		}
	}

	return fmt.Errorf("no address records found at resolver %s", resolver)
}

// querySystem uses Go's standard net.LookupHost for fallback
func querySystem(hostname string) error {
	addrs, err := net.LookupHost(hostname)
	if err != nil {
		return fmt.Errorf("system resolver lookup failed: %w", err)
	}

	if len(addrs) == 0 {
		return fmt.Errorf("no addresses found via system resolver")
	}

	return nil
}
