// Package dns resolves an organization's mail domain and characterizes
// its mail infrastructure (exchange hosts, catch-all behavior).
package dns

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/idna"

	"github.com/contactsift/contact-verifier/internal/blocklist"
	"github.com/contactsift/contact-verifier/internal/core"
)

// LookupFunc performs an MX record lookup. Injectable for tests.
type LookupFunc func(ctx context.Context, domain string) ([]*net.MX, error)

// HostLookupFunc performs an A/AAAA lookup, used for the optional
// fallback when a domain has no MX records but still runs a mail host.
type HostLookupFunc func(ctx context.Context, host string) ([]string, error)

// Config is the resolver configuration.
type Config struct {
	LookupTimeout time.Duration
	FallbackToA   bool
	CatchAllCheck bool
}

// Resolver implements core.DomainResolver. The catch-all probe goes
// through the injected prober so the resolver itself never speaks SMTP.
type Resolver struct {
	cfg        Config
	lookupMX   LookupFunc
	lookupHost HostLookupFunc
	prober     core.MailboxProber
	blocked    *blocklist.Checker
	logger     *zap.Logger
}

// NewResolver creates a resolver backed by the system resolver.
func NewResolver(cfg Config, prober core.MailboxProber, blocked *blocklist.Checker, logger *zap.Logger) *Resolver {
	r := &net.Resolver{}
	return NewResolverWithLookup(cfg, prober, blocked, logger,
		func(ctx context.Context, domain string) ([]*net.MX, error) {
			ctx, cancel := context.WithTimeout(ctx, cfg.LookupTimeout)
			defer cancel()
			return r.LookupMX(ctx, domain)
		},
		func(ctx context.Context, host string) ([]string, error) {
			ctx, cancel := context.WithTimeout(ctx, cfg.LookupTimeout)
			defer cancel()
			return r.LookupHost(ctx, host)
		})
}

// NewResolverWithLookup is a test-oriented constructor that overrides the
// DNS lookup functions.
func NewResolverWithLookup(cfg Config, prober core.MailboxProber, blocked *blocklist.Checker, logger *zap.Logger, lookupMX LookupFunc, lookupHost HostLookupFunc) *Resolver {
	if blocked == nil {
		blocked = blocklist.NewChecker(nil, logger)
	}
	return &Resolver{
		cfg:        cfg,
		lookupMX:   lookupMX,
		lookupHost: lookupHost,
		prober:     prober,
		blocked:    blocked,
		logger:     logger,
	}
}

// Resolve tries the organization's candidate domains in order and returns
// the record for the first one with reachable mail exchange hosts.
func (r *Resolver) Resolve(ctx context.Context, org core.Organization) (core.DomainRecord, error) {
	candidates := r.candidateDomains(org)
	if len(candidates) == 0 {
		return core.DomainRecord{}, fmt.Errorf("organization %q: no domain candidates: %w", org.Name, core.ErrDomainInvalid)
	}

	for _, domain := range candidates {
		rec, ok := r.resolveDomain(ctx, domain)
		if !ok {
			continue
		}

		if r.cfg.CatchAllCheck && r.prober != nil {
			rec.CatchAll = r.detectCatchAll(ctx, rec)
		}

		r.logger.Debug("Resolved mail domain",
			zap.String("organization", org.Name),
			zap.String("domain", rec.Domain),
			zap.Int("mail_hosts", len(rec.MailHosts)),
			zap.String("catch_all", rec.CatchAll.String()))

		return rec, nil
	}

	return core.DomainRecord{}, fmt.Errorf("organization %q: %w", org.Name, core.ErrDomainInvalid)
}

// candidateDomains orders the domains worth trying: the discovery hint
// first, then guesses derived from the organization name. Aggregator and
// social domains are never a candidate.
func (r *Resolver) candidateDomains(org core.Organization) []string {
	var out []string
	seen := make(map[string]struct{})

	add := func(domain string) {
		if domain == "" || r.blocked.IsBlocked(domain) {
			return
		}
		if _, ok := seen[domain]; ok {
			return
		}
		seen[domain] = struct{}{}
		out = append(out, domain)
	}

	if hint, ok := NormalizeDomain(org.ClaimedDomain); ok {
		add(hint)
	}
	if collapsed := collapseOrgName(org.Name); collapsed != "" {
		add(collapsed + ".com")
		add(collapsed + ".org")
	}

	return out
}

// resolveDomain looks up the MX hosts for one domain.
func (r *Resolver) resolveDomain(ctx context.Context, domain string) (core.DomainRecord, bool) {
	records, err := r.lookupMX(ctx, domain)
	if err == nil && len(records) > 0 {
		hosts := make([]core.MailHost, 0, len(records))
		for _, mx := range records {
			host := strings.TrimSuffix(mx.Host, ".")
			if host == "" {
				continue
			}
			hosts = append(hosts, core.MailHost{Host: host, Pref: mx.Pref})
		}
		if len(hosts) == 0 {
			return core.DomainRecord{}, false
		}
		sort.SliceStable(hosts, func(i, j int) bool { return hosts[i].Pref < hosts[j].Pref })
		return core.DomainRecord{
			Domain:     domain,
			MailHosts:  hosts,
			CatchAll:   core.CatchAllUnknown,
			ResolvedAt: time.Now(),
		}, true
	}

	// RFC 5321: a domain without MX records may still accept mail on its
	// A record. Off by default; it trades precision for coverage.
	if r.cfg.FallbackToA {
		if addrs, aErr := r.lookupHost(ctx, domain); aErr == nil && len(addrs) > 0 {
			return core.DomainRecord{
				Domain:     domain,
				MailHosts:  []core.MailHost{{Host: domain, Pref: 0}},
				CatchAll:   core.CatchAllUnknown,
				ResolvedAt: time.Now(),
			}, true
		}
	}

	if err != nil {
		r.logger.Debug("MX lookup failed", zap.String("domain", domain), zap.Error(err))
	}
	return core.DomainRecord{}, false
}

// detectCatchAll probes a statistically improbable address. Acceptance
// means the domain takes anything, which makes individual probes
// non-diagnostic downstream.
//
// The probe runs on the raw prober, outside the scheduler's per-domain
// semaphore and breaker: resolution itself is deduplicated per domain
// by the scheduler's singleflight, so at most one catch-all session is
// in flight per domain, before any candidate probes start.
func (r *Resolver) detectCatchAll(ctx context.Context, rec core.DomainRecord) core.CatchAllStatus {
	local := strings.ReplaceAll(uuid.NewString(), "-", "")
	res := r.prober.Probe(ctx, local+"@"+rec.Domain, rec)

	switch res.Outcome {
	case core.OutcomeAccepted:
		return core.CatchAllYes
	case core.OutcomeRejected:
		return core.CatchAllNo
	default:
		return core.CatchAllUnknown
	}
}

// NormalizeDomain turns a discovery hint (possibly a URL) into a bare
// ASCII host name. Returns false when the hint cannot be a host name.
func NormalizeDomain(raw string) (string, bool) {
	domain := strings.ToLower(strings.TrimSpace(raw))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	if idx := strings.IndexAny(domain, "/?#"); idx >= 0 {
		domain = domain[:idx]
	}
	domain = strings.TrimPrefix(domain, "www.")
	domain = strings.TrimSuffix(domain, ".")

	if domain == "" || !strings.Contains(domain, ".") || strings.ContainsAny(domain, " @:") {
		return "", false
	}

	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", false
	}
	return ascii, true
}

// collapseOrgName reduces an organization name to the letters and digits
// usable as a domain label.
func collapseOrgName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() < 3 {
		return ""
	}
	return b.String()
}
