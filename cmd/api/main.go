package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/nexauth/server/internal/auth"
	"github.com/nexauth/server/internal/config"
	"github.com/nexauth/server/internal/db"
	httphandler "github.com/nexauth/server/internal/http"
	"github.com/nexauth/server/internal/http/handlers"
	"github.com/nexauth/server/internal/notify"
	"github.com/nexauth/server/internal/repo"
	"github.com/pressly/goose/v3"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	accountRepo := repo.NewAccountRepo(database)
	otpRepo := repo.NewOtpRepo(database)
	attemptRepo := repo.NewAttemptRepo(database)

	var sender notify.Notifier
	if cfg.NotifyDevMode {
		sender = notify.LogNotifier{}
	} else {
		sender = notify.NewGateway(notify.GatewayConfig{
			SMSGatewayURL: cfg.SMSGatewayURL,
			SMSAPIKey:     cfg.SMSAPIKey,
			SMSSender:     cfg.SMSSender,
			SMTPAddr:      cfg.SMTPAddr,
			SMTPFrom:      cfg.SMTPFrom,
		})
	}
	dispatcher := notify.NewDispatcher(sender, 4, 256)
	defer dispatcher.Close()

	accounts := auth.NewAccounts(accountRepo, auth.AccountPolicy{
		MinPasswordLength: cfg.MinPasswordLength,
		MaxUsernameLength: cfg.MaxUsernameLength,
	})

	// Optional bootstrap: provision an administrative account on first start.
	if email := os.Getenv("SUPERUSER_EMAIL"); email != "" {
		_, err := accounts.CreateSuperuser(ctx, auth.CreateParams{
			Email:       email,
			PhoneNumber: os.Getenv("SUPERUSER_PHONE"),
			Password:    os.Getenv("SUPERUSER_PASSWORD"),
		})
		switch {
		case err == nil:
			log.Println("Superuser account created")
		case errors.Is(err, auth.ErrDuplicateField):
			// Already provisioned on a previous start.
		default:
			log.Fatalf("Failed to create superuser: %v", err)
		}
	}
	ledger := auth.NewLedger(otpRepo, cfg.OTPTTL, cfg.OTPCodeLength)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL)
	resolver := auth.NewResolver(accounts, ledger, dispatcher, jwtService, attemptRepo)

	// Stale records only waste space; correctness is enforced at verify time.
	reaper := auth.NewReaper(otpRepo, 10*time.Minute, log.Printf)
	go reaper.Run(ctx)

	authHandler := handlers.NewAuthHandler(resolver)
	router := httphandler.NewRouter(authHandler, jwtService, accountRepo)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the module root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
