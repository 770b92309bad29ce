package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/autotester/autotester/internal/catalog"
	"github.com/autotester/autotester/internal/config"
	"github.com/autotester/autotester/internal/history"
	"github.com/autotester/autotester/internal/notify"
	"github.com/autotester/autotester/internal/outcome"
	"github.com/autotester/autotester/internal/reconcile"
	"github.com/autotester/autotester/internal/tracker"
)

// target is one service queued for reconciliation with its test directory.
type target struct {
	service catalog.Service
	testDir string
}

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting autotester reconciliation (%s environment)", cfg.Environment)

	// A cancelled workflow leaves any committed mutation valid; idempotence
	// makes the next run's retry safe, so plain context cancellation is all
	// the cleanup needed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := catalog.LoadDiscovery(cfg.DiscoveryFile)
	if err != nil {
		log.Fatalf("Failed to load discovery input: %v", err)
	}
	log.Printf("Discovery input lists %d services", len(services))

	targets, err := selectTargets(cfg, services)
	if err != nil {
		log.Fatalf("Failed to select services: %v", err)
	}
	if len(targets) == 0 {
		log.Println("No services with a configured test suite; nothing to reconcile")
		return
	}

	store, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize issue store: %v", err)
	}

	var historyStore *history.Store
	if cfg.HistoryDatabaseURL != "off" {
		historyStore, err = history.Connect(cfg.HistoryDatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open history database: %v", err)
		}
		defer historyStore.Close()
		log.Printf("Run history recorded to %s", cfg.HistoryDatabaseURL)
	}

	engine := reconcile.NewEngine(store, cfg.MarkerLabel, reconcile.ClosePolicy{
		PassingAfter:  time.Duration(cfg.ClosePassingAfterDays) * 24 * time.Hour,
		Disassociated: cfg.CloseDisassociated,
	})

	var (
		mu        sync.Mutex
		summaries []reconcile.Summary
		failed    bool
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.MaxConcurrentServices)

	for _, tgt := range targets {
		tgt := tgt
		group.Go(func() error {
			summary, err := reconcileService(groupCtx, engine, historyStore, cfg.Environment, tgt)

			mu.Lock()
			defer mu.Unlock()
			summaries = append(summaries, summary)
			if err != nil || !summary.Ok() {
				failed = true
			}
			// Per-service failures must not cancel the remaining services.
			return nil
		})
	}
	group.Wait()

	notify.NewNotifier(cfg.SlackToken, cfg.SlackChannel).Post(cfg.Environment, summaries)

	for _, summary := range summaries {
		log.Printf("Service %s: created %d, updated %d, closed %d, unchanged %d, failed %d",
			summary.Service.Name, summary.Created, summary.Updated, summary.Closed,
			summary.Unchanged, summary.Failed)
	}

	if failed {
		os.Exit(1)
	}
}

// selectTargets resolves which services to reconcile and where their test
// output artifacts live.
func selectTargets(cfg *config.Config, services []catalog.Service) ([]target, error) {
	var mapping *catalog.ServiceMapping

	// A single service with an explicit TEST_DIRECTORY needs no mapping
	// file; everything else does.
	if cfg.ServiceConceptID == "" || cfg.TestDirectory == "" {
		var err error
		mapping, err = catalog.LoadServiceMapping(cfg.ServiceMappingFile)
		if err != nil {
			return nil, err
		}
	}

	if cfg.ServiceConceptID != "" {
		svc, ok := catalog.FindService(services, cfg.ServiceConceptID)
		if !ok {
			log.Printf("Service %s is not in the discovery input; nothing to do", cfg.ServiceConceptID)
			return nil, nil
		}
		testDir := cfg.TestDirectory
		if testDir == "" {
			testDir = mapping.TestDirectory(cfg.Environment, svc.ConceptID)
		}
		if testDir == "" {
			log.Printf("Service %s has no test suite configured for %s; nothing to do",
				svc.ConceptID, cfg.Environment)
			return nil, nil
		}
		return []target{{service: svc, testDir: testDir}}, nil
	}

	var targets []target
	for _, svc := range services {
		testDir := mapping.TestDirectory(cfg.Environment, svc.ConceptID)
		if testDir == "" {
			continue
		}
		targets = append(targets, target{service: svc, testDir: testDir})
	}
	return targets, nil
}

// buildStore wires the issue store: the in-memory store for dry runs, or
// the GitHub store wrapped with bounded retries.
func buildStore(cfg *config.Config) (tracker.Store, error) {
	if cfg.DryRun {
		log.Println("DRY_RUN is set; mutations will be logged, not applied")
		return tracker.NewDryRun(), nil
	}

	var tokens tracker.TokenSource
	if cfg.HasAppAuth() {
		appAuth, err := tracker.NewAppAuth(cfg.AppID, cfg.AppInstallationID, cfg.AppPrivateKeyPath)
		if err != nil {
			return nil, err
		}
		tokens = appAuth
		log.Printf("Authenticating to %s as GitHub App %s", cfg.TrackerRepository, cfg.AppID)
	} else {
		tokens = tracker.StaticToken(cfg.TrackerToken)
	}

	github := tracker.NewGitHub(cfg.TrackerRepository, tokens)
	backoff := time.Duration(cfg.RetryBackoffSeconds) * time.Second
	return tracker.NewRetry(github, cfg.RetryAttempts, backoff), nil
}

// reconcileService runs one pass and records it in the history store.
func reconcileService(ctx context.Context, engine *reconcile.Engine, historyStore *history.Store, environment string, tgt target) (reconcile.Summary, error) {
	artifactPath := filepath.Join(tgt.testDir, "test_output.json")
	run, err := outcome.LoadRunOutcomes(artifactPath, time.Now())
	if err != nil {
		log.Printf("Service %s: %v", tgt.service.Name, err)
		return reconcile.Summary{Service: tgt.service, Failed: 1}, err
	}
	if !run.Executed {
		log.Printf("Service %s: no test output at %s; collections will be treated as not tested",
			tgt.service.Name, artifactPath)
	}

	summary, err := engine.Reconcile(ctx, tgt.service, tgt.service.Collections, run)
	if err != nil {
		log.Printf("Service %s: reconciliation pass aborted: %v", tgt.service.Name, err)
		// Count the abort itself so the summary reflects a failed pass even
		// when no individual pairing recorded an error.
		if summary.Failed == 0 {
			summary.Failed++
		}
	}

	if historyStore != nil {
		if _, recordErr := historyStore.RecordPass(environment, summary, time.Now()); recordErr != nil {
			log.Printf("Service %s: failed to record run history: %v", tgt.service.Name, recordErr)
		}
	}

	return summary, err
}
