package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"idokep-uploader/internal/app"
	"idokep-uploader/internal/config"
	"idokep-uploader/internal/db"
	"idokep-uploader/internal/logging"
	"idokep-uploader/internal/migrate"
	"idokep-uploader/internal/modules/idokep"
)

const (
	appName        = "idokep-uploader"
	defaultEnvFile = ".env"
)

// Default version is "dev" if not set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	cliApp := &cli.App{
		Name:    appName,
		Usage:   "upload weather station archive records to IDOKEP",
		Version: version,
		Description: "Archive records are received over MQTT, stored in SQLite and sent to" +
			"\n the IDOKEP weather network (https://pro.idokep.hu)." +
			"\n Settings come from the environment and the station configuration file.",
		UsageText: "idokep-uploader [--env-file <file>] [--config <file>] [--dry-run]" +
			"\n   idokep-uploader migrate" +
			"\n   idokep-uploader default-config > station.yaml",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Aliases: []string{"e"}, Value: defaultEnvFile, Usage: "load environment variables from `FILE`"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "station configuration `FILE` (overrides STATION_CONFIG)"},
			&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "format uploads without sending them"},
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "apply pending archive database migrations and exit",
				Action: migrateDB,
			},
			{
				Name:  "default-config",
				Usage: "print the IDOKEP configuration stub",
				Action: func(c *cli.Context) error {
					out, err := idokep.DefaultConfig()
					if err != nil {
						return err
					}
					_, err = c.App.Writer.Write(out)
					return err
				},
			},
		},
		Action: run,
	}

	sort.Sort(cli.FlagsByName(cliApp.Flags))
	sort.Sort(cli.CommandsByName(cliApp.Commands))
	return cliApp
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	slog.Info("starting",
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		return err
	}

	slog.Info("shutting down")
	return nil
}

func migrateDB(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := logging.New(cfg, version, appName)

	conn, err := db.Open(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(c.Context, conn, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	_, err = fmt.Fprintln(c.App.Writer, "migrations applied")
	return err
}

// loadConfig reads the environment, after the env file, and applies the
// global flags.
func loadConfig(c *cli.Context) (config.Config, error) {
	if err := loadEnvFile(c.String("env-file"), c.IsSet("env-file")); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	if c.IsSet("config") {
		cfg.StationConfig = c.String("config")
	}
	if c.Bool("dry-run") {
		cfg.DryRun = true
	}
	return cfg, nil
}

// loadEnvFile loads path into the environment without overriding variables
// already set. The default file is optional.
func loadEnvFile(path string, explicit bool) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}
