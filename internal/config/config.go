package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	SQLiteDriver          string
	SQLiteDSN             string
	SQLitePath            string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration
	SQLiteLogSQL          bool

	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string

	// StationHardware is the station model reported to uploaders that have
	// no station_type of their own.
	StationHardware string
	// StationConfig is the path of the YAML station configuration file.
	StationConfig string
	// Location is the station's time zone (STATION_TZ), time.Local by default.
	Location *time.Location
	// DryRun formats uploads without sending them.
	DryRun bool
}

// LoadFromEnv reads the configuration from the environment. Every invalid
// value is reported, not only the first.
func LoadFromEnv() (Config, error) {
	var errs *multierror.Error
	fail := func(err error) { errs = multierror.Append(errs, err) }

	appEnv := getenv("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		fail(fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv))
	}

	level, err := parseLogLevel(getenv("LOG_LEVEL", "info"))
	if err != nil {
		fail(err)
	}

	maxOpenConns, err := getenvInt("SQLITE_MAX_OPEN_CONNS", 1)
	if err != nil {
		fail(err)
	}
	maxIdleConns, err := getenvInt("SQLITE_MAX_IDLE_CONNS", 1)
	if err != nil {
		fail(err)
	}
	connMaxLifetime, err := getenvDuration("SQLITE_CONN_MAX_LIFETIME", 0)
	if err != nil {
		fail(err)
	}
	logSQL, err := getenvBool("SQLITE_LOG_SQL", false)
	if err != nil {
		fail(err)
	}

	dryRun, err := getenvBool("DRY_RUN", false)
	if err != nil {
		fail(err)
	}

	mqttPort, err := getenvInt("MQTT_PORT", 1883)
	if err != nil {
		fail(err)
	} else if mqttPort < 1 || mqttPort > 65535 {
		fail(fmt.Errorf("invalid MQTT_PORT %d (allowed: 1-65535)", mqttPort))
	}

	clientID := getenv("MQTT_CLIENT_ID", "")
	if clientID == "" {
		clientID = "idokep-" + uuid.NewString()[:8]
	}

	loc := time.Local
	if tz := getenv("STATION_TZ", ""); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			fail(fmt.Errorf("invalid STATION_TZ %q: %w", tz, err))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:   appEnv,
		LogLevel: level,
		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		SQLiteDriver:          getenv("SQLITE_DRIVER", "sqlite3"),
		SQLiteDSN:             getenv("SQLITE_DSN", ""),
		SQLitePath:            getenv("SQLITE_PATH", "data/archive.db"),
		SQLiteMaxOpenConns:    maxOpenConns,
		SQLiteMaxIdleConns:    maxIdleConns,
		SQLiteConnMaxLifetime: connMaxLifetime,
		SQLiteLogSQL:          logSQL,

		MQTTBroker:   getenv("MQTT_BROKER", "localhost"),
		MQTTPort:     mqttPort,
		MQTTClientID: clientID,
		MQTTTopic:    getenv("MQTT_TOPIC", "weather/loop/archive"),

		StationHardware: getenv("STATION_HARDWARE", ""),
		StationConfig:   getenv("STATION_CONFIG", "station.yaml"),
		Location:        loc,
		DryRun:          dryRun,
	}, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) (int, error) {
	s := getenv(key, "")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	s := getenv(key, "")
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func getenvBool(key string, def bool) (bool, error) {
	s := getenv(key, "")
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
