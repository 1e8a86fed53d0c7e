package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/contactsift/contact-verifier/internal/config"
	"github.com/contactsift/contact-verifier/internal/core"
	"github.com/contactsift/contact-verifier/internal/di"
)

var inputFile = flag.String("file", "", "Input file of verification requests (use stdin if not specified)")

func main() {
	flag.Parse()

	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	service *core.VerificationService,
	cacheRepo core.CacheRepository,
) error {
	defer logger.Sync()

	// Cancel in-flight probes on SIGINT/SIGTERM; pending candidates are
	// scored as inconclusive rather than dropped.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsSrv *http.Server
	if cfg.GetBool("metrics.enabled") {
		metricsSrv = &http.Server{
			Addr:    cfg.GetString("metrics.listen_address"),
			Handler: promhttp.Handler(),
		}
		go func() {
			logger.Info("Serving metrics", zap.String("address", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
		defer metricsSrv.Shutdown(context.Background())
	}

	var in io.Reader = os.Stdin
	if *inputFile != "" {
		file, err := os.Open(*inputFile)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", *inputFile))
		}
		defer file.Close()
		in = file
		logger.Info("Reading requests from file", zap.String("file", *inputFile))
	} else {
		logger.Info("Reading requests from stdin")
	}

	reqs, err := readRequests(in)
	if err != nil {
		logger.Fatal("Failed to read requests", zap.Error(err))
	}
	logger.Info("Loaded verification requests", zap.Int("count", len(reqs)))

	decisions := service.VerifyBatch(ctx, reqs)

	enc := json.NewEncoder(os.Stdout)
	for _, d := range decisions {
		if err := enc.Encode(decisionOutput{
			ProcessingID: d.ProcessingID,
			ChosenEmail:  d.ChosenEmail,
			Confidence:   d.Confidence,
			Decision:     string(d.Decision),
			Reasons:      d.Reasons,
			VerifiedAt:   d.VerifiedAt.Format(time.RFC3339),
		}); err != nil {
			logger.Error("Failed to write decision", zap.Error(err))
		}
	}

	// Stop the cache if needed
	if stopper, ok := cacheRepo.(interface{ Stop() }); ok {
		stopper.Stop()
	}

	logger.Info("Batch complete", zap.Int("decisions", len(decisions)))
	return nil
}

// decisionOutput is the wire shape of one emitted decision.
type decisionOutput struct {
	ProcessingID string   `json:"processing_id"`
	ChosenEmail  string   `json:"chosen_email,omitempty"`
	Confidence   float64  `json:"confidence"`
	Decision     string   `json:"decision"`
	Reasons      []string `json:"reasons"`
	VerifiedAt   string   `json:"verified_at"`
}

// readRequests parses one request per line:
//
//	First Last,Organization[,domain[,sighted@addr=count;...]]
//
// Blank lines and lines starting with '#' are skipped.
func readRequests(in io.Reader) ([]core.Request, error) {
	var reqs []core.Request

	scanner := bufio.NewScanner(in)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Split(text, ",")
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected at least name and organization, got %q", line, text)
		}

		req := core.Request{
			Person:       parsePerson(fields[0]),
			Organization: core.Organization{Name: strings.TrimSpace(fields[1])},
		}
		if len(fields) > 2 {
			req.Organization.ClaimedDomain = strings.TrimSpace(fields[2])
		}
		if len(fields) > 3 {
			sightings, err := parseSightings(fields[3])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			req.ExternalSightings = sightings
		}
		reqs = append(reqs, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

// parsePerson splits a display name into first and last components. A
// single middle token is treated as a middle initial source.
func parsePerson(name string) core.Person {
	parts := strings.Fields(strings.TrimSpace(name))
	switch len(parts) {
	case 0:
		return core.Person{}
	case 1:
		return core.Person{FirstName: parts[0]}
	case 2:
		return core.Person{FirstName: parts[0], LastName: parts[1]}
	default:
		return core.Person{
			FirstName:     parts[0],
			MiddleInitial: parts[1],
			LastName:      parts[len(parts)-1],
		}
	}
}

// parseSightings parses "addr=count;addr=count" into a sightings map.
func parseSightings(field string) (map[string]int, error) {
	sightings := make(map[string]int)
	for _, pair := range strings.Split(field, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		addr, countStr, found := strings.Cut(pair, "=")
		count := 1
		if found {
			n, err := strconv.Atoi(strings.TrimSpace(countStr))
			if err != nil {
				return nil, fmt.Errorf("invalid sighting count in %q", pair)
			}
			count = n
		}
		sightings[strings.ToLower(strings.TrimSpace(addr))] = count
	}
	if len(sightings) == 0 {
		return nil, nil
	}
	return sightings, nil
}
