package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// VerificationService runs the resolve → generate → probe → score pipeline
// for one request, and a bounded worker pool across independent requests.
type VerificationService struct {
	scheduler      ProbeScheduler
	generator      PatternGenerator
	scorer         *Scorer
	logger         *zap.Logger
	requestTimeout time.Duration
	workers        int
}

// NewVerificationService creates the service. requestTimeout bounds a
// single request end to end; probes still pending when it elapses are
// scored as Unknown. workers bounds VerifyBatch parallelism.
func NewVerificationService(
	scheduler ProbeScheduler,
	generator PatternGenerator,
	scorer *Scorer,
	logger *zap.Logger,
	requestTimeout time.Duration,
	workers int,
) *VerificationService {
	if workers < 1 {
		workers = 1
	}
	return &VerificationService{
		scheduler:      scheduler,
		generator:      generator,
		scorer:         scorer,
		logger:         logger,
		requestTimeout: requestTimeout,
		workers:        workers,
	}
}

// Verify produces exactly one well-formed decision for the request. A
// request that cannot be verified at all still yields a decision with
// explanatory reasons, never an error and never an absent result.
func (s *VerificationService) Verify(ctx context.Context, req Request) VerificationDecision {
	processingID := uuid.NewString()
	log := s.logger.With(
		zap.String("processing_id", processingID),
		zap.String("organization", req.Organization.Name))

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	rec, err := s.scheduler.ResolveDomain(ctx, req.Organization)
	if err != nil {
		// No probes ran, so the Reject is a gate, not a score. The reason
		// distinguishes a domain with no mail service from a resolution
		// that failed for operational causes (timeout, resolver outage).
		reason := ReasonDomainInvalid
		if !errors.Is(err, ErrDomainInvalid) {
			reason = ReasonResolutionFailed
			log.Warn("Domain resolution failed", zap.Error(err))
		}
		return VerificationDecision{
			ProcessingID: processingID,
			Decision:     DecisionReject,
			Confidence:   0,
			Reasons:      []string{reason},
			VerifiedAt:   time.Now(),
		}
	}

	candidates := s.generator.Generate(req.Person, rec.Domain)
	log.Debug("Generated candidates",
		zap.String("domain", rec.Domain),
		zap.Int("count", len(candidates)))

	// Probe all candidates concurrently. They target one domain, so the
	// scheduler's per-domain bound typically serializes them anyway.
	probes := make(map[string]ProbeResult, len(candidates))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, cand := range candidates {
		wg.Add(1)
		go func(cand CandidateEmail) {
			defer wg.Done()
			res := s.scheduler.Probe(ctx, cand, rec)
			mu.Lock()
			probes[cand.Address] = res
			mu.Unlock()
		}(cand)
	}
	wg.Wait()

	decision := s.scorer.Score(EvidenceBundle{
		Domain:            rec,
		Candidates:        candidates,
		Probes:            probes,
		ExternalSightings: req.ExternalSightings,
	})
	decision.ProcessingID = processingID

	log.Info("Verification complete",
		zap.String("domain", rec.Domain),
		zap.String("chosen", decision.ChosenEmail),
		zap.Float64("confidence", decision.Confidence),
		zap.String("decision", string(decision.Decision)))

	return decision
}

// VerifyBatch verifies independent requests through a bounded worker pool.
// The output order matches the input order.
func (s *VerificationService) VerifyBatch(ctx context.Context, reqs []Request) []VerificationDecision {
	decisions := make([]VerificationDecision, len(reqs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			decisions[i] = s.Verify(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	return decisions
}
