// Package blocklist filters out domains that can never be an
// organization's own mail domain: charity aggregators, directories and
// social networks that discovery frequently hands over as "the website".
package blocklist

import (
	"strings"

	"go.uber.org/zap"
)

// defaultDomains are aggregator and social sites commonly misattributed
// to organizations by upstream discovery.
var defaultDomains = []string{
	"charitynavigator.org",
	"yellowpages.com",
	"guidestar.org",
	"charitywatch.org",
	"greatnonprofits.org",
	"linkedin.com",
	"facebook.com",
	"twitter.com",
	"yelp.com",
	"bbb.org",
	"nonprofitfacts.com",
	"findnonprofits.com",
}

// Checker reports whether a domain is blocked from acting as an
// organization's mail domain.
type Checker struct {
	domains map[string]struct{}
	logger  *zap.Logger
}

// NewChecker creates a checker. Passing no domains installs the default
// aggregator list; custom domains replace it entirely.
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	if len(domains) == 0 {
		domains = defaultDomains
	}

	normalized := make(map[string]struct{}, len(domains))
	for _, domain := range domains {
		normalized[strings.ToLower(strings.TrimSpace(domain))] = struct{}{}
	}

	if logger != nil {
		logger.Debug("Initialized domain blocklist", zap.Int("domains", len(normalized)))
	}

	return &Checker{domains: normalized, logger: logger}
}

// IsBlocked checks the domain and every parent domain against the list,
// so "pages.linkedin.com" is blocked by the "linkedin.com" entry.
func (c *Checker) IsBlocked(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	for domain != "" {
		if _, ok := c.domains[domain]; ok {
			if c.logger != nil {
				c.logger.Debug("Domain is blocklisted", zap.String("domain", domain))
			}
			return true
		}
		idx := strings.Index(domain, ".")
		if idx < 0 {
			return false
		}
		domain = domain[idx+1:]
	}
	return false
}
