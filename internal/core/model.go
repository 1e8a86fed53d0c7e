package core

import (
	"errors"
	"time"
)

// ErrDomainInvalid is returned when no mail exchange host can be resolved
// for any of an organization's candidate domains. It is terminal for the
// request: the decision is Reject and no probing is attempted.
var ErrDomainInvalid = errors.New("no mail exchange hosts for organization domain")

// Organization identifies the target of a verification request.
// ClaimedDomain is an optional hint from the discovery stage and may be a
// bare domain or a full URL; the resolver normalizes it.
type Organization struct {
	Name          string
	ClaimedDomain string
}

// Person is a candidate contact whose mailbox we are trying to find.
type Person struct {
	FirstName     string
	LastName      string
	MiddleInitial string
	Nickname      string
}

// CatchAllStatus is the tri-state result of catch-all detection.
// Unknown is deliberately distinct from No: a domain whose catch-all probe
// timed out must not be scored as if individual probes were diagnostic.
type CatchAllStatus int

const (
	CatchAllUnknown CatchAllStatus = iota
	CatchAllNo
	CatchAllYes
)

func (s CatchAllStatus) String() string {
	switch s {
	case CatchAllNo:
		return "no"
	case CatchAllYes:
		return "yes"
	default:
		return "unknown"
	}
}

// MailHost is a single mail exchange host with its MX preference.
type MailHost struct {
	Host string
	Pref uint16
}

// DomainRecord describes a resolved mail domain. MailHosts is ordered by
// ascending preference; an empty MailHosts means the domain cannot accept
// mail. Records are cached by the scheduler under the domain TTL.
type DomainRecord struct {
	Domain     string
	MailHosts  []MailHost
	CatchAll   CatchAllStatus
	ResolvedAt time.Time
}

// Valid reports whether the domain can accept mail at all.
func (r DomainRecord) Valid() bool {
	return len(r.MailHosts) > 0
}

// CandidateEmail is one generated address form. PatternID names the rule
// that produced it and PriorRank is the rule's generation-time plausibility
// in [0,1]. A candidate is unique per (person, domain, pattern).
type CandidateEmail struct {
	Address   string
	PatternID string
	PriorRank float64
}

// ProbeOutcome classifies a mailbox probe.
type ProbeOutcome int

const (
	// OutcomeUnknown covers timeouts, greylisting and 4xx responses.
	// It is weak evidence, never negative evidence.
	OutcomeUnknown ProbeOutcome = iota
	OutcomeAccepted
	OutcomeRejected
	OutcomeDomainUnreachable
)

func (o ProbeOutcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeDomainUnreachable:
		return "domain_unreachable"
	default:
		return "unknown"
	}
}

// Terminal reports whether the outcome needs no further retries.
func (o ProbeOutcome) Terminal() bool {
	return o == OutcomeAccepted || o == OutcomeRejected
}

// ProbeResult records one mailbox probe. Results are immutable: a re-probe
// produces a new ProbeResult, never mutates an old one.
type ProbeResult struct {
	Address  string
	Outcome  ProbeOutcome
	Code     int
	Message  string
	ViaHost  string
	ProbedAt time.Time
}

// EvidenceBundle aggregates everything the fusion scorer needs for one
// person: the resolved domain, the generated candidates, the terminal probe
// result per address, and how many independent discovery sources surfaced
// each address.
type EvidenceBundle struct {
	Domain            DomainRecord
	Candidates        []CandidateEmail
	Probes            map[string]ProbeResult
	ExternalSightings map[string]int
}

// Decision is the terminal verdict for a request.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReview Decision = "review"
	DecisionReject Decision = "reject"
)

// VerificationDecision is the immutable artifact returned to callers.
// ChosenEmail is empty when no candidate had any positive evidence.
// Reasons lists contributing evidence tags in descending order of
// contribution.
type VerificationDecision struct {
	ProcessingID string
	ChosenEmail  string
	Confidence   float64
	Decision     Decision
	Reasons      []string
	VerifiedAt   time.Time
}

// Request is one verification work item as handed over by discovery or
// ingestion. ExternalSightings maps addresses independently surfaced by
// discovery to the number of sources that agreed on them.
type Request struct {
	Person            Person
	Organization      Organization
	ExternalSightings map[string]int
}
