package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	accountrepo "account-mirror/internal/account/repository"
	"account-mirror/internal/audit"
	auditrepo "account-mirror/internal/audit/repository"
	"account-mirror/internal/config"
	"account-mirror/internal/db"
	"account-mirror/internal/devotp"
	devotphandler "account-mirror/internal/devotp/handler"
	healthhandler "account-mirror/internal/health/handler"
	identityhandler "account-mirror/internal/identity/handler"
	identityservice "account-mirror/internal/identity/service"
	invitationrepo "account-mirror/internal/invitation/repository"
	"account-mirror/internal/logger"
	membershiphandler "account-mirror/internal/membership/handler"
	membershipservice "account-mirror/internal/membership/service"
	"account-mirror/internal/mirror"
	"account-mirror/internal/notify"
	"account-mirror/internal/otp"
	policyengine "account-mirror/internal/policy/engine"
	registrationhandler "account-mirror/internal/registration/handler"
	registrationservice "account-mirror/internal/registration/service"
	"account-mirror/internal/security"
	"account-mirror/internal/server"
	"account-mirror/internal/server/middleware"
	sessionrepo "account-mirror/internal/session/repository"
	"account-mirror/internal/telemetry"
	telemetryotel "account-mirror/internal/telemetry/otel"
	"account-mirror/internal/telemetry/producer"
)

// shutdownDrain bounds how long in-flight requests may run after SIGTERM.
const shutdownDrain = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	log, err := logger.Init(logger.Config{Level: cfg.LogLevel, Dev: cfg.LogDev, File: cfg.LogFile})
	if err != nil {
		zap.NewExample().Fatal("logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "account-mirror",
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
		if err := providers.Shutdown(sctx); err != nil {
			log.Warn("otel shutdown", zap.Error(err))
		}
	}()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	conn, err := db.OpenX(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db", zap.Error(err))
	}
	defer conn.Close()

	accounts := accountrepo.NewPostgresRepository(conn)
	invitations := invitationrepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(conn), middleware.ClientIPFromContext, log)

	var otpStore otp.Store = otp.NewMemoryStore()
	var cachePinger healthhandler.Pinger
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		otpStore = otp.NewRedisStore(rdb, "otp")
		cachePinger = healthhandler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	} else {
		log.Warn("REDIS_ADDR is not set; OTPs are kept in process memory")
	}
	var devHandler *devotphandler.Handler
	if cfg.OTPReturnToClient {
		devStore := devotp.NewMemoryStore()
		otpStore = otp.WithDevCopy(otpStore, devStore)
		devHandler = devotphandler.New(devStore)
		log.Warn("dev OTP mode enabled; codes are readable at GET /dev/otp")
	}

	signer, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey, cfg.Env != "production")
	if err != nil {
		log.Fatal("jwt keys", zap.Error(err))
	}
	tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	links := security.NewLinkSigner(signer, pub, cfg.JWTIssuer, cfg.LinkTTL())
	hasher := security.NewHasher(cfg.BcryptCost)

	notifier := notify.NewFromSenders(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender, cfg.PublicBaseURL, log)

	var mirrorClient mirror.Client
	if cfg.MirrorEnabled() {
		mirrorClient = mirror.NewThingsBoardClient(cfg.TBBaseURL, cfg.TBAdminEmail, cfg.TBAdminPassword, cfg.MirrorRequestTimeout())
	} else {
		log.Warn("TB_BASE_URL is not set; accounts will not be mirrored")
	}
	mirrorWriter := mirror.NewBestEffort(mirrorClient, log)

	events := telemetry.Fanout{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AccountEventsTopic); kp != nil {
		defer kp.Close()
		events = append(events, kp)
	}

	gate, err := policyengine.NewOPAEvaluator(ctx, "")
	if err != nil {
		log.Fatal("login policy", zap.Error(err))
	}

	registration := registrationservice.NewService(registrationservice.Deps{
		Accounts:    accounts,
		Invitations: invitations,
		OTP:         otpStore,
		Hasher:      hasher,
		Links:       links,
		Notifier:    notifier,
		Mirror:      mirrorWriter,
		Events:      events,
		Audit:       auditLogger,
		Log:         log,
	})
	auth := identityservice.NewAuthService(identityservice.Deps{
		Accounts:           accounts,
		Sessions:           sessions,
		OTP:                otpStore,
		Hasher:             hasher,
		Tokens:             tokens,
		Gate:               gate,
		Notifier:           notifier,
		Events:             events,
		Audit:              auditLogger,
		Log:                log,
		SessionAbsoluteTTL: cfg.SessionAbsoluteLifetime(),
	})
	membership := membershipservice.NewService(accounts, invitations, notifier, events, log)

	checker := healthhandler.NewChecker(conn, cachePinger, gate)
	router := server.NewRouter(server.Deps{
		Registration: registrationhandler.New(registration, log),
		Auth:         identityhandler.New(auth, log),
		Membership:   membershiphandler.New(membership, log),
		DevOTP:       devHandler,
		Health:       checker,
		Tokens:       auth,
		Accounts:     accounts,
		Audit:        auditLogger,
		CORSOrigins:  cfg.CORSOrigins(),
		Log:          log,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http serve", zap.Error(err))
		}
	}()

	opsSrv := server.NewOpsServer(server.OpsDeps{Health: checker})
	if cfg.OpsGRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.OpsGRPCAddr)
		if err != nil {
			log.Fatal("ops listen", zap.Error(err))
		}
		go func() {
			log.Info("ops gRPC listening", zap.String("addr", cfg.OpsGRPCAddr))
			if err := opsSrv.Serve(lis); err != nil {
				log.Error("ops serve", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownDrain)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	opsSrv.GracefulStop()
	// Let in-flight async event emits finish before the deferred provider shutdown.
	time.Sleep(telemetry.ShutdownDrainDuration)
	log.Info("stopped")
}
