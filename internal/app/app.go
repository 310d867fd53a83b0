package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"LinkPilot/internal/config"
	"LinkPilot/internal/discovery"
	"LinkPilot/internal/domain"
	"LinkPilot/internal/infrastructure/deepseek"
	"LinkPilot/internal/infrastructure/ideogram"
	"LinkPilot/internal/infrastructure/linkedin"
	"LinkPilot/internal/infrastructure/newspage"
	"LinkPilot/internal/infrastructure/perplexity"
	"LinkPilot/internal/infrastructure/scheduler"
	"LinkPilot/internal/infrastructure/storage"
	"LinkPilot/internal/infrastructure/twilio"
	"LinkPilot/internal/logging"
	"LinkPilot/internal/server"
	"LinkPilot/internal/usecase"
)

const shutdownTimeout = 15 * time.Second

// Application wires configuration to adapters, use cases and lifecycle.
type Application struct {
	cfg config.Config
	log *slog.Logger

	db        *sql.DB
	scheduler *scheduler.Cron
	http      *http.Server
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	trendRepo := storage.NewTrendRepository(db)
	draftRepo := storage.NewDraftRepository(db)
	credRepo := storage.NewCredentialRepository(db)

	registry := discovery.NewRegistry()
	registry.Register(perplexity.NewClient(cfg.Perplexity))
	registry.Register(newspage.NewScanner(nil))
	source := discovery.NewSource(registry, logging.Component(baseLogger, "discovery"))

	linkedinClient := linkedin.NewClient(cfg.LinkedIn)
	messenger := twilio.NewMessenger(cfg.Twilio)

	credentials := usecase.NewCredentials(credRepo, linkedinClient, logging.Component(baseLogger, "credentials"))
	orchestrator := usecase.NewOrchestrator(
		trendRepo,
		draftRepo,
		source,
		deepseek.NewClient(cfg.DeepSeek),
		ideogram.NewClient(cfg.Ideogram),
		messenger,
		linkedinClient,
		credentials,
		discoveryTargets(cfg.Discovery),
		cfg.Pipeline,
		cfg.Twilio.OperatorNumber,
		logging.Component(baseLogger, "orchestrator"),
	)
	interpreter := usecase.NewInterpreter(draftRepo, messenger,
		cfg.Pipeline.ApprovalPublishDelay(), logging.Component(baseLogger, "approval"))

	cron := scheduler.New(cfg.Scheduler.Location(), logging.Component(baseLogger, "scheduler"))
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"discover-trends", cfg.Scheduler.DiscoverTrends, orchestrator.DiscoverTrends},
		{"generate-content", cfg.Scheduler.GenerateContent, orchestrator.GenerateContent},
		{"send-approvals", cfg.Scheduler.SendApprovals, orchestrator.SendPendingApprovals},
		{"publish-posts", cfg.Scheduler.PublishPosts, orchestrator.PublishApproved},
		{"track-engagement", cfg.Scheduler.TrackEngagement, orchestrator.TrackEngagement},
		{"generate-report", cfg.Scheduler.GenerateReport, orchestrator.GenerateReport},
	}
	jobLog := logging.Component(baseLogger, "jobs")
	for _, job := range jobs {
		job := job
		err := cron.Add(job.name, job.spec, func(ctx context.Context) {
			if err := job.run(ctx); err != nil {
				jobLog.Error("job run failed", "job", job.name, "error", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("register job %s: %w", job.name, err)
		}
	}

	srv := server.New(interpreter, credentials, orchestrator, linkedinClient,
		cfg.Pipeline.OperatorID, cfg.Server.FrontendURL, logging.Component(baseLogger, "http"))

	return &Application{
		cfg:       cfg,
		log:       baseLogger,
		db:        db,
		scheduler: cron,
		http: &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: srv.Router(),
		},
	}, nil
}

// Run starts the scheduler and HTTP listener, then blocks until ctx is
// cancelled or the listener fails.
func (a *Application) Run(ctx context.Context) error {
	if err := storage.EnsureSchema(ctx, a.db); err != nil {
		return err
	}

	a.scheduler.Start()
	a.log.Info("scheduler started", "timezone", a.cfg.Scheduler.Timezone)

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.Server.Addr)
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.shutdown()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		a.log.Info("shutdown requested")
		a.shutdown()
		return nil
	}
}

func (a *Application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(ctx); err != nil {
		a.log.Error("http shutdown failed", "error", err)
	}
	if err := a.scheduler.Stop(ctx); err != nil {
		a.log.Error("scheduler stop failed", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.log.Error("database close failed", "error", err)
	}
}

func discoveryTargets(targets []config.TargetConfig) []domain.DiscoveryTarget {
	out := make([]domain.DiscoveryTarget, 0, len(targets))
	for _, t := range targets {
		out = append(out, domain.DiscoveryTarget{
			Finder:   t.Finder,
			Query:    t.Query,
			Category: t.Category,
			URL:      t.URL,
		})
	}
	return out
}
