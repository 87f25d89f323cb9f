package main

import (
	"context"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/custodia/backoffice/internal/api"
	"github.com/custodia/backoffice/internal/audit"
	"github.com/custodia/backoffice/internal/authz"
	"github.com/custodia/backoffice/internal/config"
	"github.com/custodia/backoffice/internal/domain"
	"github.com/custodia/backoffice/internal/exceptions"
	"github.com/custodia/backoffice/internal/feed"
	"github.com/custodia/backoffice/internal/matching"
	"github.com/custodia/backoffice/internal/repository"
	"github.com/custodia/backoffice/internal/schedule"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	log.Info().Str("db", cfg.DBPath).Msg("initializing database")
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("init db")
	}
	defer db.Close()

	// Repositories.
	posRepo := repository.NewPositionRepo(db)
	brkRepo := repository.NewBreakRepo(db)
	excRepo := repository.NewExceptionRepo(db)
	authRepo := repository.NewAuthorizationRepo(db)
	tradeRepo := repository.NewTradeRepo(db)
	clientRepo := repository.NewClientRepo(db)
	auditRepo := repository.NewAuditRepo(db)

	trail := audit.NewTrail(auditRepo)

	// Feed source behind a circuit breaker so a dead upstream surfaces as
	// unavailable, never as an empty snapshot.
	source := feed.NewBreakerSource(feed.NewFixtureSource(cfg.Feeds.FixtureDir))

	// Services.
	reconSvc := matching.NewService(
		source, posRepo, brkRepo, trail,
		matching.Tolerances{MatchPct: cfg.Matching.TolerancePct, HighPct: cfg.Matching.HighSeverityPct},
		cfg.Matching.ReferenceSource, cfg.Matching.ComparisonSource,
	)
	excMgr := exceptions.NewManager(excRepo, brkRepo, trail, exceptions.Config{
		GracePeriod:       cfg.GracePeriod(),
		EscalateThreshold: cfg.EscalateThreshold(),
		Owners:            cfg.Exceptions.Owners,
		TriageOwner:       cfg.Exceptions.TriageOwner,
	})
	queue := authz.NewQueue(authRepo, tradeRepo, clientRepo, trail)

	// Seed client accounts if the book is empty so closure requests have
	// subjects to act on.
	if n, err := clientRepo.Count(); err != nil {
		log.Fatal().Err(err).Msg("count clients")
	} else if n == 0 {
		seedClients(clientRepo)
	}

	// Background tasks, independently cancellable.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slaTick := schedule.NewTask("sla-tick", cfg.TickInterval(), excMgr.Tick)
	slaTick.Start(ctx)
	defer slaTick.Stop()

	sweep := schedule.NewTask("cutoff-sweep", cfg.SweepInterval(), func(ctx context.Context) error {
		_, err := excMgr.Sweep(ctx)
		return err
	})
	sweep.Start(ctx)
	defer sweep.Stop()

	refresh := schedule.NewTask("feed-refresh", cfg.RefreshInterval(), func(ctx context.Context) error {
		_, err := reconSvc.Run(ctx)
		return err
	})
	refresh.Start(ctx)
	defer refresh.Stop()

	router := api.NewRouter(reconSvc, excMgr, queue, trail, tradeRepo, clientRepo)

	log.Info().Str("port", cfg.Port).Msg("custody back-office engine listening")
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func seedClients(repo *repository.ClientRepo) {
	seeds := []domain.ClientAccount{
		{ID: "CLT-1001", Name: "Zenith Pensions", Status: domain.AccountStatusActive},
		{ID: "CLT-1002", Name: "Unity Insurance", Status: domain.AccountStatusActive},
		{ID: "CLT-1003", Name: "Sterling Asset", Status: domain.AccountStatusActive},
		{ID: "CLT-1004", Name: "Nova Capital", Status: domain.AccountStatusActive},
	}
	for i := range seeds {
		if err := repo.Insert(&seeds[i]); err != nil {
			log.Warn().Err(err).Str("client", seeds[i].ID).Msg("seed client failed")
		}
	}
	log.Info().Int("count", len(seeds)).Msg("seeded client accounts")
}
