package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"idokep-uploader/internal/archive/controller"
	"idokep-uploader/internal/archive/repository"
	"idokep-uploader/internal/config"
	db "idokep-uploader/internal/db"
	httpapi "idokep-uploader/internal/httpapi"
	"idokep-uploader/internal/migrate"
	"idokep-uploader/internal/modules/idokep"
	"idokep-uploader/internal/mqtt"
	"idokep-uploader/internal/restx"
)

// idokepEnvOptions may be set as IDOKEP_<OPTION> environment variables.
var idokepEnvOptions = []string{"username", "password", "station_type", "server_url", "skip_upload"}

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"sqliteDriver", cfg.SQLiteDriver,
		"sqlitePath", cfg.SQLitePath,
		"sqliteMaxOpenConns", cfg.SQLiteMaxOpenConns,
		"sqliteMaxIdleConns", cfg.SQLiteMaxIdleConns,
		"sqliteConnMaxLifetime", cfg.SQLiteConnMaxLifetime,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
		"stationConfig", cfg.StationConfig,
		"location", cfg.Location.String(),
		"dryRun", cfg.DryRun,
	)

	station, err := config.LoadStation(cfg.StationConfig)
	if err != nil {
		return err
	}
	station.ApplyEnvOverrides(idokep.Protocol, idokepEnvOptions...)
	if cfg.DryRun {
		station.SetOption(idokep.Protocol, "skip_upload", true)
	}
	hardware := cfg.StationHardware
	if hardware == "" {
		hardware = station.Hardware
	}

	dbConn, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := db.Close(dbConn)
		if closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(ctx, dbConn, logger); err != nil {
		return err
	}
	logger.Info("database connection successful")

	repo := repository.NewRepository(dbConn, logger)
	engine := newStationEngine(hardware, repo, logger)
	metrics := restx.NewMetrics()

	ctx, stopUploader := context.WithCancel(ctx)
	defer stopUploader()

	uploader := idokep.Register(ctx, engine, station.RESTful, logger,
		idokep.WithLocation(cfg.Location),
		idokep.WithMetrics(metrics),
	)
	// Runs before the database is closed, on every return path. The worker
	// finishes the record in flight before returning.
	defer func() {
		stopUploader()
		_ = uploader.Wait()
		logger.Debug("upload worker stopped", "protocol", idokep.Protocol)
	}()
	go func() {
		if err := uploader.Wait(); err != nil {
			logger.Error("uploader stopped", "protocol", idokep.Protocol, "error", err)
		}
	}()

	// The handler is set before Connect so records the broker delivers right
	// after CONNACK are not lost.
	mqttSubscriber := mqtt.NewSubscriber(cfg, logger)
	mqttSubscriber.SetMessageHandler(engine.onRecord)

	mux := httpapi.NewMux(dbConn, mqttSubscriber, metrics.Registry())
	controller.NewArchiveController(repo).RegisterRoutes(mux)

	// The client keeps retrying in the background; HTTP and the upload
	// worker do not wait for the broker.
	go func() {
		if err := mqttSubscriber.Connect(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	}()

	srv := httpapi.NewServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		mqttSubscriber.Disconnect()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("mqtt disconnecting")
	mqttSubscriber.Disconnect()

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
