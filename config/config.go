// Package config loads settings from defaults, an optional config file, a
// .env file, FITA_ environment variables and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	fitanalytics "github.com/lucasjlepore/fit-analytics"
	"github.com/lucasjlepore/fit-analytics/climb"
)

// EnvPrefix prefixes every environment variable, e.g. FITA_STORE_DRIVER.
const EnvPrefix = "FITA"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the resolved configuration.
type Config struct {
	Store StoreConfig
	HTTP  HTTPConfig
	Log   LogConfig

	v *viper.Viper
}

// StoreConfig selects the telemetry store.
type StoreConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Listen string
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// flag name -> config key
var flagKeys = map[string]string{
	"store-driver": "store.driver",
	"sqlite-path":  "store.sqlite_path",
	"postgres-dsn": "store.postgres_dsn",
	"listen":       "http.listen",
	"log-file":     "log.file",
}

// RegisterFlags adds the flags Load understands to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "config file (yaml, json, toml)")
	flags.String("store-driver", DriverSQLite, "telemetry store: sqlite or postgres")
	flags.String("sqlite-path", "fit-analytics.db", "sqlite database file")
	flags.String("postgres-dsn", "", "postgres connection string")
	flags.String("listen", ":8080", "HTTP listen address")
	flags.String("log-file", "", "also write logs to this rotating file")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "fit-analytics.db")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("http.listen", ":8080")

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)

	d := fitanalytics.DefaultOptions()
	v.SetDefault("analysis.lookback_steps_months", d.LookbackSteps)
	v.SetDefault("analysis.lookback_all_history", d.AllHistory)
	v.SetDefault("analysis.min_records.climbs", d.MinRecords.Climbs)
	v.SetDefault("analysis.min_records.power", d.MinRecords.Power)
	v.SetDefault("analysis.min_records.cadence", d.MinRecords.Cadence)
	v.SetDefault("analysis.min_records.trends", d.MinRecords.Trends)
	v.SetDefault("analysis.smoothing_window", d.SmoothingWindow)
	v.SetDefault("analysis.steep_gradient_pct", d.SteepGradientPct)
	v.SetDefault("analysis.group.distance_tolerance", d.Group.DistanceTolerance)
	v.SetDefault("analysis.group.elevation_tolerance", d.Group.ElevationTolerance)
	v.SetDefault("analysis.group.top_n", d.Group.TopN)
	v.SetDefault("analysis.trend_threshold", d.TrendThreshold)
	v.SetDefault("analysis.climb_trend_months", d.ClimbTrendMonths)
	v.SetDefault("analysis.seasonal_months", d.SeasonalMonths)
	v.SetDefault("analysis.report_trend_months", d.ReportTrendMonths)
	v.SetDefault("analysis.persist_ftp", d.PersistFTP)
	v.SetDefault("analysis.scan_samples_for_curve", d.ScanSamplesForCurve)
}

// Load resolves the configuration. flags may be nil; when given, flags that
// were registered with RegisterFlags and set on the command line win over
// every other source.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", f.Value.String(), err)
			}
		}
	}

	cfg := &Config{
		Store: StoreConfig{
			Driver:      strings.ToLower(v.GetString("store.driver")),
			SQLitePath:  v.GetString("store.sqlite_path"),
			PostgresDSN: v.GetString("store.postgres_dsn"),
		},
		HTTP: HTTPConfig{Listen: v.GetString("http.listen")},
		Log: LogConfig{
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
			Compress:   v.GetBool("log.compress"),
		},
		v: v,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q (want %s or %s)", c.Store.Driver, DriverSQLite, DriverPostgres)
	}
	if _, err := c.lookbackSteps(); err != nil {
		return err
	}
	return nil
}

// Analysis converts the analysis keys into service options.
func (c *Config) Analysis() fitanalytics.Options {
	v := c.v
	opts := fitanalytics.DefaultOptions()
	if steps, err := c.lookbackSteps(); err == nil {
		opts.LookbackSteps = steps
	}
	opts.AllHistory = v.GetBool("analysis.lookback_all_history")
	opts.MinRecords = fitanalytics.MinRecords{
		Climbs:  v.GetInt("analysis.min_records.climbs"),
		Power:   v.GetInt("analysis.min_records.power"),
		Cadence: v.GetInt("analysis.min_records.cadence"),
		Trends:  v.GetInt("analysis.min_records.trends"),
	}
	opts.SmoothingWindow = v.GetInt("analysis.smoothing_window")
	opts.SteepGradientPct = v.GetFloat64("analysis.steep_gradient_pct")
	opts.Group = climb.GroupOptions{
		DistanceTolerance:  v.GetFloat64("analysis.group.distance_tolerance"),
		ElevationTolerance: v.GetFloat64("analysis.group.elevation_tolerance"),
		TopN:               v.GetInt("analysis.group.top_n"),
	}
	opts.TrendThreshold = v.GetFloat64("analysis.trend_threshold")
	opts.ClimbTrendMonths = v.GetInt("analysis.climb_trend_months")
	opts.SeasonalMonths = v.GetInt("analysis.seasonal_months")
	opts.ReportTrendMonths = v.GetInt("analysis.report_trend_months")
	opts.PersistFTP = v.GetBool("analysis.persist_ftp")
	opts.ScanSamplesForCurve = v.GetBool("analysis.scan_samples_for_curve")
	return opts
}

// lookbackSteps accepts a list from defaults or a config file, or a comma
// separated string from the environment.
func (c *Config) lookbackSteps() ([]int, error) {
	raw := c.v.Get("analysis.lookback_steps_months")
	var parts []string
	switch t := raw.(type) {
	case string:
		parts = strings.FieldsFunc(t, func(r rune) bool { return r == ',' || r == ' ' })
	case []int:
		return append([]int(nil), t...), nil
	case []interface{}:
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
	default:
		return nil, fmt.Errorf("analysis.lookback_steps_months: unsupported value %v", raw)
	}

	steps := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("analysis.lookback_steps_months: bad step %q", p)
		}
		steps = append(steps, n)
	}
	return steps, nil
}

// NewLogger writes to stderr and, when a log file is configured, to a
// rotating file as well. The returned closer releases the file.
func NewLogger(cfg LogConfig, prefix string) (*log.Logger, io.Closer) {
	if cfg.File == "" {
		return log.New(os.Stderr, prefix, log.LstdFlags), nopCloser{}
	}
	rotating := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return log.New(io.MultiWriter(os.Stderr, rotating), prefix, log.LstdFlags), rotating
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
