package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/zllovesuki/membergate/auth"
	"github.com/zllovesuki/membergate/checkout"
	"github.com/zllovesuki/membergate/db"
	"github.com/zllovesuki/membergate/external"
	"github.com/zllovesuki/membergate/grant"
	"github.com/zllovesuki/membergate/messaging"
	"github.com/zllovesuki/membergate/settings"
	"github.com/zllovesuki/membergate/util"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	var logger *zap.Logger
	var authEnvironment auth.Environment
	var dotFile string
	var err error

	mintTokenFor := flag.String("mint-admin-token", "", "mint an operator token for the given name and exit")
	flag.Parse()

	// Determine running environment and initialize structural logger
	env := os.Getenv("ENV")
	if "production" == env {
		dotFile = ".env.production"
		authEnvironment = auth.EnvProduction
		logger, err = zap.NewProduction()
	} else {
		dotFile = ".env.development"
		authEnvironment = auth.EnvDevelopment
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	logger = logger.With(zap.String("Version", Version))

	// Initialize sentry for error reporting
	if err := sentry.Init(sentry.ClientOptions{
		Environment: string(authEnvironment),
		Debug:       authEnvironment == auth.EnvDevelopment,
	}); err != nil {
		log.Fatal("Cannot initialize sentry",
			zap.Error(err),
		)
	}
	defer sentry.Flush(time.Second * 2)

	// Attach sentry to zap so we can do automatic error capturing
	cfg := zapsentry.Configuration{
		Level: zapcore.ErrorLevel,
		Tags: map[string]string{
			"component": "membergate",
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	logger = zapsentry.AttachCoreToLogger(core, logger)

	defer logger.Sync()

	// Load configurations from dotFile
	if err := godotenv.Load(dotFile); err != nil {
		logger.Fatal("Cannot load configurations from .env",
			zap.Error(err),
		)
	}

	authManager, err := auth.New(auth.Options{
		Logger:        logger,
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		Environment:   authEnvironment,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Auth",
			zap.Error(err),
		)
	}

	if len(*mintTokenFor) > 0 {
		token, err := authManager.CreateToken(*mintTokenFor)
		if err != nil {
			logger.Fatal("Cannot mint operator token",
				zap.Error(err),
			)
		}
		fmt.Println(token)
		return
	}

	groupID, err := strconv.ParseInt(os.Getenv("GROUP_ID"), 10, 64)
	if err != nil {
		logger.Fatal("Cannot parse GROUP_ID",
			zap.Error(err),
		)
	}

	stripeClient := external.NewStripeClient(os.Getenv("STRIPE_KEY"))

	botClient, err := external.NewTelegramClient(os.Getenv("BOT_TOKEN"))
	if err != nil {
		logger.Fatal("Cannot connect to Telegram",
			zap.Error(err),
		)
	}

	// Initialize backend connections
	db, err := db.New(db.Options{
		URI:    os.Getenv("POSTGRES_URI"),
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot connect to Postgres",
			zap.Error(err),
		)
	}

	messenger, err := messaging.NewTelegram(messaging.TelegramOptions{
		Bot:     botClient,
		GroupID: groupID,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Telegram Messenger",
			zap.Error(err),
		)
	}

	issuer, err := checkout.NewIssuer(checkout.IssuerOptions{
		StripeClient: stripeClient,
		PriceID:      os.Getenv("PRICE_ID"),
		SuccessURL:   os.Getenv("CHECKOUT_SUCCESS_URL"),
		CancelURL:    os.Getenv("CHECKOUT_CANCEL_URL"),
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize checkout Issuer",
			zap.Error(err),
		)
	}

	settingsManager, err := settings.NewManager(settings.ManagerOptions{
		DB:     db,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize settings.Manager",
			zap.Error(err),
		)
	}

	grantManager, err := grant.NewManager(grant.ManagerOptions{
		DB:     db,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize grant.Manager",
			zap.Error(err),
		)
	}

	// both execution contexts serialize per-subscriber work through the same locks
	locks := &util.KeyedMutex{}

	activator, err := grant.NewActivator(grant.ActivatorOptions{
		Store:     grantManager,
		Settings:  settingsManager,
		Messenger: messenger,
		Locks:     locks,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Activator",
			zap.Error(err),
		)
	}

	grantTask, err := grant.NewTask(grant.TaskOptions{
		Store:     grantManager,
		Settings:  settingsManager,
		Messenger: messenger,
		Issuer:    issuer,
		Locks:     locks,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize grant Task",
			zap.Error(err),
		)
	}

	grantRouter, err := grant.NewService(grant.ServiceOptions{
		Auth:          authManager,
		Store:         grantManager,
		Activator:     activator,
		Task:          grantTask,
		Messenger:     messenger,
		Issuer:        issuer,
		WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize grant Service Router",
			zap.Error(err),
		)
	}

	settingsRouter, err := settings.NewService(settings.ServiceOptions{
		Auth:     authManager,
		Settings: settingsManager,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize settings Service Router",
			zap.Error(err),
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go grantTask.Run(ctx)

	rootRouter := chi.NewRouter()
	rootRouter.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
	}))

	rootRouter.Mount("/", grantRouter.Router())
	rootRouter.Mount("/settings", settingsRouter.Router())

	addr := os.Getenv("LISTEN_ADDR")
	if len(addr) == 0 {
		addr = ":42069"
	}
	srv := &http.Server{
		Handler: rootRouter,
		Addr:    addr,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server returned error",
				zap.Error(err),
			)
		}
	}()

	logger.Info("membergate started",
		zap.String("Addr", addr),
	)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-c

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second*10)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown returned error",
			zap.Error(err),
		)
	}
}
