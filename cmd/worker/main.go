// Worker retries mirroring for verified accounts that have no mirror id, on RECONCILE_SCHEDULE.
// Set TB_BASE_URL and the admin credentials; without them there is nothing to reconcile.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	accountrepo "account-mirror/internal/account/repository"
	"account-mirror/internal/config"
	"account-mirror/internal/db"
	"account-mirror/internal/logger"
	"account-mirror/internal/mirror"
	"account-mirror/internal/telemetry"
	telemetryotel "account-mirror/internal/telemetry/otel"
	"account-mirror/internal/telemetry/producer"
)

// passTimeout bounds one reconcile pass so a hung remote cannot stall the schedule.
const passTimeout = 4 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	log, err := logger.Init(logger.Config{Level: cfg.LogLevel, Dev: cfg.LogDev, File: cfg.LogFile})
	if err != nil {
		zap.NewExample().Fatal("logger", zap.Error(err))
	}
	log = log.Named("worker")
	defer func() { _ = log.Sync() }()

	if !cfg.MirrorEnabled() {
		log.Fatal("TB_BASE_URL is required")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "account-mirror-worker",
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatal("otel providers", zap.Error(err))
	}
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(sctx)
	}()

	conn, err := db.OpenX(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db", zap.Error(err))
	}
	defer conn.Close()

	events := telemetry.Fanout{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AccountEventsTopic); kp != nil {
		defer kp.Close()
		events = append(events, kp)
	}

	client := mirror.NewThingsBoardClient(cfg.TBBaseURL, cfg.TBAdminEmail, cfg.TBAdminPassword, cfg.MirrorRequestTimeout())
	reconciler := mirror.NewReconciler(accountrepo.NewPostgresRepository(conn), mirror.NewBestEffort(client, log), events, 0, log)

	run := func() {
		pctx, cancel := context.WithTimeout(ctx, passTimeout)
		defer cancel()
		res, err := reconciler.RunOnce(pctx)
		if err != nil {
			log.Error("reconcile pass failed", zap.Error(err))
			return
		}
		if res.Mirrored+res.Failed+res.Skipped > 0 {
			log.Info("reconcile pass",
				zap.Int("mirrored", res.Mirrored), zap.Int("failed", res.Failed), zap.Int("skipped", res.Skipped))
		}
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger), cron.Recover(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.ReconcileSchedule, run); err != nil {
		log.Fatal("invalid RECONCILE_SCHEDULE", zap.String("schedule", cfg.ReconcileSchedule), zap.Error(err))
	}
	log.Info("reconciler started", zap.String("schedule", cfg.ReconcileSchedule))
	run()
	c.Start()

	<-ctx.Done()
	log.Info("shutting down")
	<-c.Stop().Done()
	log.Info("stopped")
}
