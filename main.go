package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82/client"

	"breakdown-service/internal/config"
	"breakdown-service/internal/handler"
	"breakdown-service/internal/identity"
	"breakdown-service/internal/publisher"
	"breakdown-service/internal/repository"
	"breakdown-service/internal/sender"
	"breakdown-service/internal/service"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stdout)
	log.Info("Starting breakdown service...")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Could not load configuration")
	}

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	runMigrations(cfg)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()

	repo := repository.NewPostgresRepository(db)

	emailSender := sender.NewSMTPEmailSender(
		cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)

	var users identity.UserLookup
	if cfg.SupabaseURL != "" {
		users = identity.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.SupabaseServiceKey)
	} else {
		log.Warn("SUPABASE_URL is not set, authenticated-user email resolution disabled")
	}

	var paidEvents publisher.PaidEventPublisher
	if cfg.KafkaBootstrapServers != "" {
		servers := strings.Trim(cfg.KafkaBootstrapServers, "\"")
		producer, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": servers})
		if err != nil {
			log.WithError(err).Fatal("Failed to create Kafka producer")
		}
		kafkaPublisher := publisher.NewKafkaPublisher(producer, cfg.PaidEventsTopic)
		defer kafkaPublisher.Close()
		paidEvents = kafkaPublisher
		log.WithField("topic", cfg.PaidEventsTopic).Info("Paid-event publishing enabled")
	}

	sc := client.New(cfg.StripeSecretKey, nil)

	reconcileService := service.NewReconcileService(
		repo, emailSender, users, paidEvents,
		cfg.AdminEmail, cfg.BreakdownPricePence, cfg.BreakdownCurrency)

	checkoutService := service.NewCheckoutService(
		repo, sc.CheckoutSessions, users,
		cfg.SiteURL, cfg.BreakdownPricePence, cfg.BreakdownCurrency)

	mux := http.NewServeMux()
	handler.NewServer(reconcileService, checkoutService, cfg.StripeWebhookSecret).Register(mux)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigchan
	log.Infof("Caught signal %v: terminating", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}
}

func runMigrations(cfg *config.Config) {
	// Use a separate migrations table to avoid conflicts with any other
	// service sharing this database.
	migrationDBURL := cfg.DatabaseURL
	if strings.Contains(migrationDBURL, "?") {
		migrationDBURL += "&x-migrations-table=breakdown_schema_migrations"
	} else {
		migrationDBURL += "?x-migrations-table=breakdown_schema_migrations"
	}

	m, err := migrate.New("file://"+cfg.MigrationsDir, migrationDBURL)
	if err != nil {
		log.WithError(err).Fatal("Could not create migration instance")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.WithError(err).Fatal("Could not apply migration")
	}
	log.Info("Database migration successfully applied")
}
