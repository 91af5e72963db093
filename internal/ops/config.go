package ops

import (
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"

	"tradecore/internal/backtest"
	"tradecore/internal/broker"
	"tradecore/internal/errors"
	"tradecore/internal/marketdata"
	"tradecore/internal/strategy"
	"tradecore/pkg/conn"
	"tradecore/pkg/exception"
)

// Environment overrides, read after an optional .env file.
const (
	EnvDatabaseURL    = "TRADECORE_DATABASE_URL"
	EnvDatabaseDriver = "TRADECORE_DATABASE_DRIVER"
	EnvBrokerURL      = "TRADECORE_BROKER_URL"
	EnvBrokerToken    = "TRADECORE_BROKER_TOKEN"
	EnvPyroscopeAddr  = "TRADECORE_PYROSCOPE_ADDR"
)

const defaultReconcileInterval = 5 * time.Minute

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Database   conn.Option      `json:"database"`
	Backtest   backtest.Config  `json:"backtest"`
	Strategy   strategy.Config  `json:"strategy"`
	MarketData MarketDataConfig `json:"marketData"`
	Reconcile  ReconcileConfig  `json:"reconcile"`
	Profiling  ProfilingConfig  `json:"profiling"`
}

// MarketDataConfig selects the bar provider.
type MarketDataConfig struct {
	Source marketdata.Source `json:"source"`
	Dir    string            `json:"dir"`
}

// ReconcileConfig describes the broker gateway and watch loop.
type ReconcileConfig struct {
	BrokerURL   string `json:"brokerUrl"`
	BrokerToken string `json:"brokerToken"`
	Timeout     string `json:"timeout"`
	Interval    string `json:"interval"`
	Retries     int    `json:"retries"`
}

// ProfilingConfig enables continuous profiling.
type ProfilingConfig struct {
	Enabled         bool   `json:"enabled"`
	ServerAddress   string `json:"serverAddress"`
	ApplicationName string `json:"applicationName"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Database          conn.Option
	Backtest          backtest.Config
	Strategy          strategy.Config
	MarketData        MarketDataConfig
	Broker            broker.Option
	ReconcileInterval time.Duration
	Profiling         ProfilingConfig
}

// Default returns the configuration used when no file is given.
func Default() FileConfig {
	return FileConfig{
		Database:   conn.Option{Driver: conn.DriverSQLite, ConnString: "tradecore.db"},
		Backtest:   backtest.DefaultConfig(),
		Strategy:   strategy.Config{Kind: strategy.KindMACrossoverRSI},
		MarketData: MarketDataConfig{Source: marketdata.SourceCSV, Dir: "data"},
		Profiling:  ProfilingConfig{ApplicationName: "tradecore"},
	}
}

// Load reads a JSON config file over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Loaded, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, err
		}
		if err := sonic.Unmarshal(data, &cfg); err != nil {
			return Loaded{}, errors.Wrapf(err, "decode %s", path)
		}
	}

	_ = godotenv.Load()
	applyEnv(&cfg)

	return resolve(cfg)
}

func applyEnv(cfg *FileConfig) {
	if val := os.Getenv(EnvDatabaseURL); val != "" {
		cfg.Database.ConnString = val
		if strings.HasPrefix(val, "postgres://") || strings.HasPrefix(val, "postgresql://") {
			cfg.Database.Driver = conn.DriverPostgres
		}
	}
	if val := os.Getenv(EnvDatabaseDriver); val != "" {
		cfg.Database.Driver = conn.Driver(val)
	}
	if val := os.Getenv(EnvBrokerURL); val != "" {
		cfg.Reconcile.BrokerURL = val
	}
	if val := os.Getenv(EnvBrokerToken); val != "" {
		cfg.Reconcile.BrokerToken = val
	}
	if val := os.Getenv(EnvPyroscopeAddr); val != "" {
		cfg.Profiling.ServerAddress = val
		cfg.Profiling.Enabled = true
	}
}

func resolve(cfg FileConfig) (Loaded, error) {
	if err := cfg.Backtest.Validate(); err != nil {
		return Loaded{}, err
	}
	if _, err := strategy.New(cfg.Strategy); err != nil {
		return Loaded{}, err
	}

	timeout, err := parseDuration(cfg.Reconcile.Timeout, 0)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "reconcile timeout")
	}
	interval, err := parseDuration(cfg.Reconcile.Interval, defaultReconcileInterval)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "reconcile interval")
	}
	if cfg.Profiling.Enabled && cfg.Profiling.ServerAddress == "" {
		return Loaded{}, errors.Wrap(exception.ErrInvalidArgument, "profiling enabled without server address")
	}

	return Loaded{
		Database:   cfg.Database,
		Backtest:   cfg.Backtest,
		Strategy:   cfg.Strategy,
		MarketData: cfg.MarketData,
		Broker: broker.Option{
			BaseURL: cfg.Reconcile.BrokerURL,
			Token:   cfg.Reconcile.BrokerToken,
			Timeout: timeout,
			Retries: cfg.Reconcile.Retries,
		},
		ReconcileInterval: interval,
		Profiling:         cfg.Profiling,
	}, nil
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Wrap(exception.ErrInvalidArgument, err.Error())
	}
	if d <= 0 {
		return 0, errors.Wrapf(exception.ErrInvalidArgument, "duration %s must be > 0", raw)
	}
	return d, nil
}
