package core

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Evidence tags recorded in VerificationDecision.Reasons.
const (
	ReasonDomainInvalid     = "domain_invalid"
	ReasonResolutionFailed  = "resolution_failed"
	ReasonDomainUnreachable = "domain_unreachable"
	ReasonSMTPAccepted      = "smtp_accepted"
	ReasonSMTPRejected      = "smtp_rejected"
	ReasonProbeInconclusive = "probe_inconclusive"
	ReasonPatternPrior      = "pattern_prior"
	ReasonExternalAgreement = "external_agreement"
	ReasonCatchAllCapped    = "catch_all_capped"
	ReasonNoCandidates      = "no_candidates"
)

// ScoringConfig holds the tunable fusion weights and decision thresholds.
// The weights are calibration parameters; the ordering of influence
// (accepted probe > rejected probe > prior/agreement) is fixed by Score.
type ScoringConfig struct {
	AcceptThreshold float64
	ReviewThreshold float64
	CatchAllCap     float64
	AcceptedScore   float64
	RejectedScore   float64
	UnknownBase     float64
	PriorWeight     float64
	AgreementWeight float64
}

// DefaultScoringConfig returns the calibration shipped with the engine.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		AcceptThreshold: 0.85,
		ReviewThreshold: 0.40,
		CatchAllCap:     0.70,
		AcceptedScore:   0.96,
		RejectedScore:   0.02,
		UnknownBase:     0.15,
		PriorWeight:     0.30,
		AgreementWeight: 0.25,
	}
}

// Validate rejects inconsistent calibrations. Called at startup so a bad
// configuration never makes it into a running verifier.
func (c ScoringConfig) Validate() error {
	inUnit := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("scoring: %s must be in [0,1], got %v", name, v)
		}
		return nil
	}
	for name, v := range map[string]float64{
		"accept_threshold": c.AcceptThreshold,
		"review_threshold": c.ReviewThreshold,
		"catch_all_cap":    c.CatchAllCap,
		"accepted_score":   c.AcceptedScore,
		"rejected_score":   c.RejectedScore,
		"unknown_base":     c.UnknownBase,
		"prior_weight":     c.PriorWeight,
		"agreement_weight": c.AgreementWeight,
	} {
		if err := inUnit(name, v); err != nil {
			return err
		}
	}
	if c.ReviewThreshold >= c.AcceptThreshold {
		return fmt.Errorf("scoring: review_threshold (%v) must be below accept_threshold (%v)",
			c.ReviewThreshold, c.AcceptThreshold)
	}
	if c.RejectedScore >= c.ReviewThreshold {
		return fmt.Errorf("scoring: rejected_score (%v) must be below review_threshold (%v)",
			c.RejectedScore, c.ReviewThreshold)
	}
	return nil
}

// Scorer fuses domain, pattern, probe and agreement evidence into a single
// confidence and decision per person.
type Scorer struct {
	cfg    ScoringConfig
	logger *zap.Logger
}

// NewScorer creates a scorer with a validated configuration.
func NewScorer(cfg ScoringConfig, logger *zap.Logger) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg, logger: logger}, nil
}

// contribution is one scored signal for a candidate.
type contribution struct {
	tag    string
	amount float64
}

// scoredCandidate pairs a candidate with its fused confidence.
type scoredCandidate struct {
	candidate     CandidateEmail
	confidence    float64
	contributions []contribution
}

// Score produces the VerificationDecision for one evidence bundle.
//
// Candidates are scored independently: a rejected address never drags down
// a sibling address for the same person. Catch-all domains cap whatever
// the probes claim, because acceptance there is non-diagnostic.
func (s *Scorer) Score(bundle EvidenceBundle) VerificationDecision {
	now := time.Now()

	if !bundle.Domain.Valid() {
		return VerificationDecision{
			Decision:   DecisionReject,
			Confidence: 0,
			Reasons:    []string{ReasonDomainInvalid},
			VerifiedAt: now,
		}
	}

	if len(bundle.Candidates) == 0 {
		return VerificationDecision{
			Decision:   DecisionReject,
			Confidence: 0,
			Reasons:    []string{ReasonNoCandidates},
			VerifiedAt: now,
		}
	}

	scored := make([]scoredCandidate, 0, len(bundle.Candidates))
	for _, cand := range bundle.Candidates {
		scored = append(scored, s.scoreCandidate(cand, bundle))
	}

	// Highest confidence wins; ties break by prior rank, then lexically,
	// so identical inputs always choose the same address.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].confidence != scored[j].confidence {
			return scored[i].confidence > scored[j].confidence
		}
		if scored[i].candidate.PriorRank != scored[j].candidate.PriorRank {
			return scored[i].candidate.PriorRank > scored[j].candidate.PriorRank
		}
		return scored[i].candidate.Address < scored[j].candidate.Address
	})

	best := scored[0]
	decision := s.decide(best.confidence)

	chosen := best.candidate.Address
	if decision == DecisionReject {
		chosen = ""
	}

	s.logger.Debug("Scored evidence bundle",
		zap.String("domain", bundle.Domain.Domain),
		zap.String("chosen", chosen),
		zap.Float64("confidence", best.confidence),
		zap.String("decision", string(decision)))

	return VerificationDecision{
		ChosenEmail: chosen,
		Confidence:  best.confidence,
		Decision:    decision,
		Reasons:     reasonTags(best.contributions),
		VerifiedAt:  now,
	}
}

// scoreCandidate fuses the signals for a single address.
func (s *Scorer) scoreCandidate(cand CandidateEmail, bundle EvidenceBundle) scoredCandidate {
	var contribs []contribution

	probe, probed := bundle.Probes[cand.Address]
	outcome := OutcomeUnknown
	if probed {
		outcome = probe.Outcome
	}

	var score float64
	switch outcome {
	case OutcomeAccepted:
		score = s.cfg.AcceptedScore
		contribs = append(contribs, contribution{ReasonSMTPAccepted, score})
	case OutcomeRejected:
		score = s.cfg.RejectedScore
		contribs = append(contribs, contribution{ReasonSMTPRejected, 1 - score})
	default:
		// Unknown and DomainUnreachable are weak evidence: fall back to
		// the pattern prior and cross-source agreement.
		prior := s.cfg.PriorWeight * cand.PriorRank
		score = s.cfg.UnknownBase + prior
		if prior > 0 {
			contribs = append(contribs, contribution{ReasonPatternPrior, prior})
		}
		tag := ReasonProbeInconclusive
		if outcome == OutcomeDomainUnreachable {
			tag = ReasonDomainUnreachable
		}
		contribs = append(contribs, contribution{tag, s.cfg.UnknownBase})
	}

	// Each agreeing source adds confidence with diminishing returns,
	// bounded by the agreement weight. Rejected candidates get nothing:
	// the mail server outranks any number of scrapes.
	if n := bundle.ExternalSightings[cand.Address]; n > 0 && outcome != OutcomeRejected {
		bonus := s.cfg.AgreementWeight * (1 - math.Pow(0.5, float64(n)))
		score += bonus
		contribs = append(contribs, contribution{ReasonExternalAgreement, bonus})
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	// A catch-all (or unverifiable) domain accepts anything, so probe
	// acceptance proves nothing. Cap the confidence accordingly.
	if bundle.Domain.CatchAll != CatchAllNo && score > s.cfg.CatchAllCap {
		capped := score - s.cfg.CatchAllCap
		score = s.cfg.CatchAllCap
		contribs = append(contribs, contribution{ReasonCatchAllCapped, capped})
	}

	return scoredCandidate{candidate: cand, confidence: score, contributions: contribs}
}

func (s *Scorer) decide(confidence float64) Decision {
	switch {
	case confidence >= s.cfg.AcceptThreshold:
		return DecisionAccept
	case confidence >= s.cfg.ReviewThreshold:
		return DecisionReview
	default:
		return DecisionReject
	}
}

// reasonTags orders contributions by descending amount. The order is part
// of the audit contract: the strongest signal comes first.
func reasonTags(contribs []contribution) []string {
	sort.SliceStable(contribs, func(i, j int) bool {
		return contribs[i].amount > contribs[j].amount
	})
	tags := make([]string, 0, len(contribs))
	for _, c := range contribs {
		tags = append(tags, c.tag)
	}
	return tags
}
