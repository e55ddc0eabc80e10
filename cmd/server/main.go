// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/keyshop-bot/internal/bot"
	"github.com/javajoker/keyshop-bot/internal/config"
	"github.com/javajoker/keyshop-bot/internal/database"
	"github.com/javajoker/keyshop-bot/internal/i18n"
	"github.com/javajoker/keyshop-bot/internal/models"
	"github.com/javajoker/keyshop-bot/internal/queue"
	"github.com/javajoker/keyshop-bot/internal/router"
	"github.com/javajoker/keyshop-bot/internal/services"
	"github.com/javajoker/keyshop-bot/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	utils.ConfigureLogger(cfg.Log.Level, cfg.Log.Format)

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		logrus.WithError(err).Fatal("Failed to run migrations")
	}

	if err := i18n.Initialize(cfg.I18n.DefaultLocale); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize i18n")
	}
	lang := i18n.Default()

	utils.SetJWTSecret(cfg.JWT.SecretKey)

	session, err := bot.NewSession(cfg.Discord.Token)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create Discord session")
	}
	gateway := bot.NewGateway(session, cfg.Discord, lang)

	// Initialize services
	keyService := services.NewKeyService(db)
	productService := services.NewProductService(db, keyService)
	productService.SetListingPublisher(gateway)
	reputationService := services.NewReputationService(db)

	eventService := services.NewEventService(db, gateway)
	var publisher *queue.Publisher
	if cfg.AMQP.Enabled() {
		publisher = queue.NewPublisher(cfg.AMQP)
		eventService.AddSink(publisher)
	}

	transcriptService := services.NewTranscriptService(db, gateway)
	storageService, err := services.NewStorageService(cfg.AWS)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize transcript storage")
	}
	if storageService.Enabled() {
		transcriptService.AddArchiver(storageService)
	}

	ticketService := services.NewTicketService(db, services.TicketDependencies{
		Config: services.TicketConfig{
			VouchWindow:            cfg.Ticket.VouchWindow,
			IdleCloseAfter:         cfg.Ticket.IdleCloseAfter,
			PostDeliveryCloseAfter: cfg.Ticket.PostDeliveryCloseAfter,
			CloseGrace:             cfg.Ticket.CloseGrace,
			PaymentInstructions: map[models.PaymentMethod]string{
				models.PaymentMethodPayPal:       cfg.Payment.PayPalInstructions,
				models.PaymentMethodCrypto:       cfg.Payment.CryptoInstructions,
				models.PaymentMethodBankTransfer: cfg.Payment.BankTransferInstructions,
			},
			ReviewsChannelID: cfg.Discord.ReviewsChannelID,
			Lang:             lang,
		},
		Keys:        keyService,
		Products:    productService,
		Reputation:  reputationService,
		Events:      eventService,
		Transcripts: transcriptService,
		Platform:    gateway,
	})

	scheduler := services.NewScheduler(db, ticketService, ticketService, services.SchedulerConfig{
		PollInterval:  cfg.Ticket.JobPollInterval,
		SweepInterval: cfg.Ticket.IdleSweepInterval,
		MaxAttempts:   cfg.Ticket.JobMaxAttempts,
	})

	discordBot := bot.New(session, gateway, bot.Services{
		Products:    productService,
		Keys:        keyService,
		Tickets:     ticketService,
		Reputation:  reputationService,
		Transcripts: transcriptService,
		Openers:     services.NewOpeners(ticketService),
	}, bot.Options{
		Discord:          cfg.Discord,
		InteractionEvery: cfg.Ticket.InteractionEvery,
		InteractionBurst: cfg.Ticket.InteractionBurst,
	})
	if err := discordBot.Start(); err != nil {
		logrus.WithError(err).Fatal("Failed to start Discord bot")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler.Start(ctx)

	// Ops API
	r, limiter := router.Initialize(cfg, router.Dependencies{
		DB:         db,
		Products:   productService,
		Tickets:    ticketService,
		Events:     eventService,
		Reputation: reputationService,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logrus.WithField("addr", srv.Addr).Info("Starting ops API")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start ops API")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Ops API forced to shutdown")
	}
	limiter.Stop()

	if err := discordBot.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close Discord session")
	}

	cancel()
	scheduler.Wait()

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close AMQP publisher")
		}
	}

	logrus.Info("Shutdown complete")
}
