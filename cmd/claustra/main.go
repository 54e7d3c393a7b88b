package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/strataplan/claustra/internal/claustra"
	"github.com/strataplan/claustra/internal/config"
	"github.com/strataplan/claustra/internal/http_api"
	"github.com/strataplan/claustra/internal/repository"
	"github.com/strataplan/claustra/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "claustra",
		Usage: "Claustra is a collaborative field-lock service for shared project records",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.IntFlag{Name: "api-port", Aliases: []string{"a"}, Usage: "API port"},
			&cli.DurationFlag{Name: "lock-ttl", Aliases: []string{"l"}, Usage: "How long a field lock lives without a heartbeat"},
			&cli.DurationFlag{Name: "reaper-interval", Aliases: []string{"r"}, Usage: "How often expired locks are swept away"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("lock-ttl") {
		cfg.LockTTL = c.Duration("lock-ttl")
	}
	if c.IsSet("reaper-interval") {
		cfg.ReaperInterval = c.Duration("reaper-interval")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer log.Sync()

	// Initialize database
	db, err := repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	// Initialize lock coordinator and expiry reaper
	coordinator := claustra.NewCoordinator(db, log, cfg.LockTTL)
	reaper := claustra.NewReaper(db, log, cfg.ReaperInterval)
	// Initialize API server
	apiServer := http_api.NewHTTPServer(coordinator, db, cfg.APIPort, log)

	reaper.Start()
	go apiServer.Start()

	// Wait for a shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Received shutdown signal")
	if err := apiServer.Shutdown(); err != nil {
		log.Error("Failed to shut down HTTP server", "error", err)
	}
	reaper.Stop()
	if err := db.Close(); err != nil {
		log.Error("Failed to close database connection", "error", err)
	}

	return nil
}
