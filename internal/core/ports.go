package core

import (
	"context"
	"time"
)

// DomainResolver validates that an organization has a usable mail domain
// and characterizes its mail infrastructure.
type DomainResolver interface {
	// Resolve returns the DomainRecord for the organization's best domain
	// candidate, or ErrDomainInvalid when no candidate has mail exchange
	// hosts.
	Resolve(ctx context.Context, org Organization) (DomainRecord, error)
}

// MailboxProber tests whether a specific address is accepted by the
// domain's mail exchange hosts, without ever delivering mail.
type MailboxProber interface {
	// Probe performs the greeting/sender/recipient handshake and
	// classifies the response. Network faults are folded into the
	// returned outcome, never raised as errors.
	Probe(ctx context.Context, address string, rec DomainRecord) ProbeResult
}

// PatternGenerator produces ranked candidate addresses for a person at a
// domain. Implementations must be pure and deterministic.
type PatternGenerator interface {
	Generate(person Person, domain string) []CandidateEmail
}

// ProbeScheduler governs every network-facing call: it owns the domain and
// probe caches, bounds per-domain concurrency, retries transient failures
// and trips a circuit breaker for domains that block probing.
type ProbeScheduler interface {
	// ResolveDomain resolves through the domain cache; concurrent callers
	// for the same domain share a single resolution.
	ResolveDomain(ctx context.Context, org Organization) (DomainRecord, error)

	// Probe submits a candidate through the probe cache, the per-domain
	// concurrency bound, the circuit breaker and the retry policy. The
	// returned result is always terminal.
	Probe(ctx context.Context, candidate CandidateEmail, rec DomainRecord) ProbeResult
}

// CacheRepository stores DomainRecords keyed by domain (or a resolution
// alias, for organizations whose record was found without a usable domain
// hint) and ProbeResults keyed by exact address. All access goes through
// the scheduler so that concurrent requests observe a consistent view.
type CacheRepository interface {
	// GetDomain retrieves an unexpired DomainRecord by cache key.
	GetDomain(ctx context.Context, key string) (*DomainRecord, bool)

	// SetDomain stores a DomainRecord under the given cache key and TTL.
	SetDomain(ctx context.Context, key string, rec DomainRecord, ttl time.Duration)

	// GetProbe retrieves an unexpired ProbeResult.
	GetProbe(ctx context.Context, address string) (*ProbeResult, bool)

	// SetProbe stores a ProbeResult under the given TTL.
	SetProbe(ctx context.Context, res ProbeResult, ttl time.Duration)

	// Cleanup removes expired entries.
	Cleanup(ctx context.Context) error
}
