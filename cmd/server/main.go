package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/Romainl01/photobooth-backend/internal/alert"
	"github.com/Romainl01/photobooth-backend/internal/api"
	"github.com/Romainl01/photobooth-backend/internal/config"
	"github.com/Romainl01/photobooth-backend/internal/database"
	"github.com/Romainl01/photobooth-backend/internal/gemini"
	"github.com/Romainl01/photobooth-backend/internal/identity"
	"github.com/Romainl01/photobooth-backend/internal/repository"
	"github.com/Romainl01/photobooth-backend/internal/service"
	"github.com/Romainl01/photobooth-backend/internal/storage"
	"github.com/Romainl01/photobooth-backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	db, err := database.Connect(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	identityClient := identity.NewClient(cfg, logr)
	geminiClient := gemini.NewClient(cfg, logr)

	profileRepo := repository.NewProfileRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	var archiver service.ImageArchiver
	if cfg.ArchiveEnabled() {
		a, err := storage.NewArchiver(storage.Config{
			Endpoint:     cfg.ArchiveEndpoint,
			Region:       cfg.ArchiveRegion,
			AccessKey:    cfg.ArchiveAccessKey,
			SecretKey:    cfg.ArchiveSecretKey,
			Bucket:       cfg.ArchiveBucket,
			UsePathStyle: cfg.ArchiveUsePathStyle,
			Prefix:       cfg.ArchivePrefix,
		})
		if err != nil {
			log.Fatalf("storage archiver: %v", err)
		}
		archiver = a
	}

	var alerts service.Alerter
	if cfg.AlertsEnabled() {
		n, err := alert.NewNotifier(cfg.AlertBotToken, cfg.AlertChatID, logr)
		if err != nil {
			log.Fatalf("alert notifier: %v", err)
		}
		alerts = n
	}

	generationService := service.NewGenerationService(logr, profileRepo, ledgerRepo, geminiClient, archiver, alerts)
	paymentService := service.NewPaymentService(cfg.PaymentWebhookSecret, logr, ledgerRepo)
	profileService := service.NewProfileService(cfg.StartingFreeCredits, profileRepo)

	server := api.NewServer(cfg.ListenAddr, logr, identityClient, generationService, paymentService, profileService)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("api server stopped", "err", err)
	}
}
