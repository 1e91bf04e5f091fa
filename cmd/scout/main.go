// Command scout runs the ingestion orchestrator: marketplace and ATS
// queries, offer persistence and scoring, company aggregation, sheet sync
// and the human feedback loop, on a single-cycle or continuous schedule.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	// The feedback window is defined in Europe/Madrid; the zone must
	// resolve even on images without a tzdata package.
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"

	"github.com/banasa44/buiss-scrapper-sub000/aggregator"
	"github.com/banasa44/buiss-scrapper-sub000/config"
	"github.com/banasa44/buiss-scrapper-sub000/coordination"
	"github.com/banasa44/buiss-scrapper-sub000/discovery"
	"github.com/banasa44/buiss-scrapper-sub000/feedback"
	"github.com/banasa44/buiss-scrapper-sub000/identity"
	"github.com/banasa44/buiss-scrapper-sub000/matching"
	"github.com/banasa44/buiss-scrapper-sub000/offermgr"
	"github.com/banasa44/buiss-scrapper-sub000/provider"
	"github.com/banasa44/buiss-scrapper-sub000/provider/factorial"
	"github.com/banasa44/buiss-scrapper-sub000/provider/infojobs"
	"github.com/banasa44/buiss-scrapper-sub000/provider/personio"
	"github.com/banasa44/buiss-scrapper-sub000/runmgr"
	"github.com/banasa44/buiss-scrapper-sub000/scheduler"
	"github.com/banasa44/buiss-scrapper-sub000/sheets"
	"github.com/banasa44/buiss-scrapper-sub000/sheetsync"
	"github.com/banasa44/buiss-scrapper-sub000/storage/sqlite"
)

// _searches is the compiled-in marketplace query list. Queries are data the
// team curates with the catalog, not runtime configuration.
var _searches = []provider.SearchParams{
	{Query: "tesorería"},
	{Query: "treasury"},
	{Query: "cash management"},
	{Query: "contable", Province: "madrid"},
	{Query: "contable", Province: "barcelona"},
	{Query: "comercio exterior"},
}

func main() {
	if err := run(); err != nil {
		log.WithError(err).Error("scout exited with error")
		os.Exit(1)
	}
}

func run() error {
	// A .env file is a development convenience; production sets real env.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	log.SetLevel(cfg.LogLevel)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}

	catalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer store.Close()

	ctx := context.Background()
	scope := tally.NoopScope

	sheetClient, err := sheets.NewClient(ctx, sheets.Config{
		SpreadsheetID:   cfg.Sheet.SpreadsheetID,
		SheetName:       cfg.Sheet.SheetName,
		CredentialsFile: cfg.Sheet.CredentialsFile,
	})
	if err != nil {
		return errors.Wrap(err, "open sheet client")
	}

	infojobsClient, err := infojobs.New(infojobs.Config{
		ClientID:     cfg.InfoJobs.ClientID,
		ClientSecret: cfg.InfoJobs.ClientSecret,
	})
	if err != nil {
		return errors.Wrap(err, "build infojobs client")
	}
	factorialClient := factorial.New(factorial.Config{})
	personioClient := personio.New(personio.Config{})

	offerMetrics := offermgr.NewMetrics(scope)
	pipeline := offermgr.NewPipeline(
		offermgr.NewPersister(store, store, identity.NewResolver(store), offerMetrics),
		aggregator.New(store, store),
		runmgr.New(store),
		store,
		matching.NewScorer(catalog),
		offerMetrics,
	)

	discoverer := discovery.New(store, store, map[string]discovery.Prober{
		"factorial": factorialClient,
		"personio":  personioClient,
	}, discovery.NewMetrics(scope))

	gate, err := feedback.NewGate()
	if err != nil {
		return errors.Wrap(err, "build feedback gate")
	}
	feedbackLoop := feedback.NewLoop(
		feedback.NewReader(sheetClient, gate),
		store,
		store,
		store,
		gate,
		feedback.NewMetrics(scope),
	)
	syncer := sheetsync.New(sheetClient, store, catalog, sheetsync.NewMetrics(scope))

	registry, err := scheduler.NewRegistry(buildQueries(infojobsClient, factorialClient, personioClient, discoverer, pipeline)...)
	if err != nil {
		return errors.Wrap(err, "build query registry")
	}

	sched := scheduler.New(
		store,
		store,
		coordination.NewRunLock(store, coordination.DefaultLockTTL),
		coordination.NewPauser(store),
		registry,
		scheduler.Config{
			CycleSleepMin: cfg.Scheduler.CycleSleepMin,
			CycleSleepMax: cfg.Scheduler.CycleSleepMax,
		},
		scheduler.NewMetrics(scope),
	)
	sched.AddPrePhase("discovery", func(ctx context.Context) error {
		_, err := discoverer.Run(ctx)
		return err
	})
	sched.AddPrePhase("feedback", func(ctx context.Context) error {
		_, err := feedbackLoop.Process(ctx)
		return err
	})
	sched.AddPostPhase("sheet_sync", func(ctx context.Context) error {
		_, err := syncer.Sync(ctx)
		return err
	})

	log.WithFields(log.Fields{
		"mode":    cfg.RunMode,
		"db":      cfg.DBPath,
		"queries": len(registry.Queries()),
	}).Info("Starting scout")

	if cfg.RunMode == config.RunModeForever {
		return sched.RunForever(ctx)
	}
	return runOnce(ctx, sched)
}

// runOnce executes a single cycle with the same two-phase signal handling
// the continuous mode has, and fails when any query failed.
func runOnce(ctx context.Context, sched *scheduler.Scheduler) error {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Warn("Termination requested, finishing current query")
		sched.RequestStop()
		<-sigCh
		log.Error("Second termination signal, exiting now")
		os.Exit(1)
	}()

	stats, err := sched.RunOnce(ctx)
	if err != nil {
		return err
	}
	if stats.QueriesFailed > 0 {
		return errors.Errorf("%d of %d queries failed", stats.QueriesFailed, stats.QueriesRun)
	}
	return nil
}

func buildQueries(
	infojobsClient provider.Marketplace,
	factorialClient provider.ATS,
	personioClient provider.ATS,
	boards scheduler.BoardLister,
	pipeline *offermgr.Pipeline,
) []scheduler.Query {
	queries := make([]scheduler.Query, 0, len(_searches)+2)
	for _, params := range _searches {
		queryParams := map[string]string{"q": params.Query}
		if params.Province != "" {
			queryParams["province"] = params.Province
		}
		queries = append(queries, scheduler.Query{
			Client: "infojobs",
			Name:   "search",
			Params: queryParams,
			Runner: scheduler.MarketplaceRunner("infojobs", infojobsClient, pipeline, params),
		})
	}
	queries = append(queries,
		scheduler.Query{
			Client: "factorial",
			Name:   "board_sweep",
			Runner: scheduler.ATSRunner("factorial", factorialClient, boards, pipeline),
		},
		scheduler.Query{
			Client: "personio",
			Name:   "board_sweep",
			Runner: scheduler.ATSRunner("personio", personioClient, boards, pipeline),
		},
	)
	return queries
}

func loadCatalog(path string) (*matching.Catalog, error) {
	if path == "" {
		return matching.DefaultCatalog(), nil
	}
	catalog, err := matching.LoadCatalog(path)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}
	log.WithField("path", path).Info("Loaded catalog")
	return catalog, nil
}
