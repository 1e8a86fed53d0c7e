package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/contactsift/contact-verifier/internal/config"
	"github.com/contactsift/contact-verifier/internal/core"
	"github.com/contactsift/contact-verifier/internal/di"
	"github.com/contactsift/contact-verifier/internal/logging"
)

var (
	// Contact flags
	firstName     = flag.String("first", "", "First name of the person")
	lastName      = flag.String("last", "", "Last name of the person")
	middleInitial = flag.String("middle", "", "Middle name or initial")
	nickname      = flag.String("nickname", "", "Known nickname, tried alongside the first name")
	orgName       = flag.String("org", "", "Organization name")
	orgDomain     = flag.String("domain", "", "Claimed organization domain (resolved from the name if empty)")
	sightings     = flag.String("sightings", "", "Externally sighted addresses as addr=count;addr=count")

	// Probe flags
	heloDomain = flag.String("helo", "verifier.local", "Domain announced in the EHLO handshake")
	mailFrom   = flag.String("mail-from", "verify@verifier.local", "Envelope sender for probe sessions")

	// Scoring flags
	acceptThreshold = flag.Float64("accept-threshold", 0.85, "Confidence at or above which a candidate is accepted")
	reviewThreshold = flag.Float64("review-threshold", 0.40, "Confidence at or above which a candidate goes to review")

	// Input flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog    = flag.Bool("json-log", false, "Output logs in JSON format")
	configFile = flag.String("config", "", "Path to config file (overrides command line flags)")
)

func main() {
	flag.Parse()

	var cfg *config.Config
	var err error

	// Initialize logger
	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *firstName == "" || *lastName == "" {
		fmt.Println("Both -first and -last are required")
		flag.Usage()
		os.Exit(2)
	}
	if *orgName == "" && *orgDomain == "" {
		fmt.Println("At least one of -org or -domain is required")
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration from file if specified
	if *configFile != "" {
		cfg, err = config.New()
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		// Create config from command line flags
		cfg = createConfigFromFlags()
	}

	container, err := di.BuildCLIContainer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build dependency container", zap.Error(err))
	}

	if err := container.Invoke(func(service *core.VerificationService, cacheRepo core.CacheRepository) {
		defer func() {
			if stopper, ok := cacheRepo.(interface{ Stop() }); ok {
				stopper.Stop()
			}
		}()
		runOnce(cfg, service)
	}); err != nil {
		logger.Fatal("Verification failed", zap.Error(err))
	}
}

// runOnce verifies a single contact and prints a human-readable report.
func runOnce(cfg *config.Config, service *core.VerificationService) {
	req := core.Request{
		Person: core.Person{
			FirstName:     *firstName,
			LastName:      *lastName,
			MiddleInitial: *middleInitial,
			Nickname:      *nickname,
		},
		Organization: core.Organization{
			Name:          *orgName,
			ClaimedDomain: *orgDomain,
		},
		ExternalSightings: parseSightings(*sightings),
	}

	fmt.Printf("\n=== Request ===\n")
	fmt.Printf("Person: %s %s\n", req.Person.FirstName, req.Person.LastName)
	fmt.Printf("Organization: %s\n", req.Organization.Name)
	if req.Organization.ClaimedDomain != "" {
		fmt.Printf("Claimed domain: %s\n", req.Organization.ClaimedDomain)
	}
	fmt.Printf("Accept threshold: %.2f\n", cfg.GetFloat64("scoring.accept_threshold"))
	fmt.Printf("Review threshold: %.2f\n", cfg.GetFloat64("scoring.review_threshold"))

	startTime := time.Now()
	decision := service.Verify(context.Background(), req)
	duration := time.Since(startTime)

	fmt.Printf("\n=== Decision ===\n")
	fmt.Printf("Decision: %s\n", decision.Decision)
	if decision.ChosenEmail != "" {
		fmt.Printf("Chosen email: %s\n", decision.ChosenEmail)
	}
	fmt.Printf("Confidence: %.4f\n", decision.Confidence)
	fmt.Printf("Reasons: %s\n", strings.Join(decision.Reasons, ", "))
	fmt.Printf("Processing ID: %s\n", decision.ProcessingID)
	fmt.Printf("Processing time: %v\n", duration)
}

// parseSightings parses "addr=count;addr=count"; malformed counts default
// to one sighting.
func parseSightings(field string) map[string]int {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil
	}
	sightings := make(map[string]int)
	for _, pair := range strings.Split(field, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		addr, countStr, found := strings.Cut(pair, "=")
		count := 1
		if found {
			if _, err := fmt.Sscanf(strings.TrimSpace(countStr), "%d", &count); err != nil {
				count = 1
			}
		}
		sightings[strings.ToLower(strings.TrimSpace(addr))] = count
	}
	return sightings
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags() *config.Config {
	v := config.NewEmptyViper()

	v.Set("verifier.helo_domain", *heloDomain)
	v.Set("verifier.mail_from", *mailFrom)

	// The CLI is a one-shot tool; keep results out of shared caches and
	// metrics off the default registry.
	v.Set("cache.type", "memory")
	v.Set("metrics.enabled", false)

	v.Set("scoring.accept_threshold", *acceptThreshold)
	v.Set("scoring.review_threshold", *reviewThreshold)

	return config.NewFromViper(v)
}
