package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/hamed0406/uptimeboard/internal/urlutil"
)

// DNS classes reported by Diagnose.
const (
	DNSResolves     = "RESOLVES"
	DNSNXDomain     = "NXDOMAIN"
	DNSNoARecord    = "NO_A_RECORD"
	DNSServfail     = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName  = "INVALID_NAME"
	DNSLiteralIP    = "IP_LITERAL"
	defaultDNSLimit = 3 * time.Second
)

type DNSStatus struct {
	Domain        string
	HasAOrAAAA    bool
	IPs           []net.IP
	CNAME         string
	HasNS         bool
	Nameservers   []string
	Class         string
	ResolverError string
}

// Resolver is the subset of *net.Resolver used for diagnosis.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

// Diagnose explains a failed probe by looking at DNS for the target's host.
// It never returns an error; failures are folded into Class.
func Diagnose(ctx context.Context, target string) DNSStatus {
	return DiagnoseWith(ctx, &net.Resolver{}, target)
}

func DiagnoseWith(ctx context.Context, r Resolver, target string) DNSStatus {
	s := DNSStatus{Domain: strings.TrimSpace(urlutil.Host(target))}
	if s.Domain == "" || strings.Contains(s.Domain, "://") {
		s.Class = DNSInvalidName
		return s
	}
	if ip := net.ParseIP(s.Domain); ip != nil {
		s.Class = DNSLiteralIP
		s.IPs = []net.IP{ip}
		return s
	}

	ctx, cancel := context.WithTimeout(ctx, defaultDNSLimit)
	defer cancel()

	ips, err := r.LookupIP(ctx, "ip", s.Domain)
	if err == nil && len(ips) > 0 {
		s.HasAOrAAAA = true
		s.IPs = ips
		s.Class = DNSResolves
	} else if err != nil {
		var de *net.DNSError
		s.ResolverError = err.Error()
		if errors.As(err, &de) {
			if de.IsNotFound {
				s.Class = DNSNXDomain
			} else if de.IsTemporary || de.Timeout() {
				s.Class = DNSServfail
			}
		}
	}

	if cname, err := r.LookupCNAME(ctx, s.Domain); err == nil && !strings.EqualFold(cname, s.Domain+".") {
		s.CNAME = strings.TrimSuffix(cname, ".")
	}

	if ns, err := r.LookupNS(ctx, s.Domain); err == nil && len(ns) > 0 {
		s.HasNS = true
		for _, n := range ns {
			s.Nameservers = append(s.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
		if s.Class == DNSNXDomain {
			s.Class = DNSNoARecord
		}
	}

	if s.Class == "" {
		switch {
		case s.HasAOrAAAA:
			s.Class = DNSResolves
		case s.HasNS:
			s.Class = DNSNoARecord
		case s.ResolverError != "":
			s.Class = DNSServfail
		default:
			s.Class = DNSNXDomain
		}
	}
	return s
}
