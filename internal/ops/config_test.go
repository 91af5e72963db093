package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/strategy"
	"tradecore/pkg/conn"
	"tradecore/pkg/exception"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, conn.DriverSQLite, cfg.Database.Driver)
	assert.True(t, decimal.NewFromInt(100_000).Equal(cfg.Backtest.InitialCapital))
	assert.Equal(t, strategy.KindMACrossoverRSI, cfg.Strategy.Kind)
	assert.Equal(t, 5*time.Minute, cfg.ReconcileInterval)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"driver": "postgres", "host": "db", "database": "ledger"},
		"backtest": {"initialCapital": "50000", "stopLossPct": "0.05"},
		"strategy": {"kind": "ma_crossover_rsi", "maCrossoverRsi": {"emaFast": 10, "emaSlow": 30, "rsiPeriod": 14, "rsiThreshold": 65}},
		"marketData": {"source": "yahoo"},
		"reconcile": {"brokerUrl": "http://gateway:8080", "interval": "30s", "timeout": "5s"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "db", cfg.Database.Host)
	assert.True(t, decimal.NewFromInt(50_000).Equal(cfg.Backtest.InitialCapital))
	// fields absent from the file keep their defaults
	assert.True(t, decimal.RequireFromString("0.001").Equal(cfg.Backtest.SlippagePct))
	assert.True(t, decimal.RequireFromString("0.05").Equal(cfg.Backtest.StopLossPct))
	require.NotNil(t, cfg.Strategy.MACrossoverRSI)
	assert.Equal(t, 10, cfg.Strategy.MACrossoverRSI.EMAFast)
	assert.Equal(t, "http://gateway:8080", cfg.Broker.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Broker.Timeout)
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "postgres://u@db:5432/ledger")
	t.Setenv(EnvBrokerURL, "http://env-gateway")
	t.Setenv(EnvPyroscopeAddr, "http://pyroscope:4040")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, conn.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://u@db:5432/ledger", cfg.Database.ConnString)
	assert.Equal(t, "http://env-gateway", cfg.Broker.BaseURL)
	assert.True(t, cfg.Profiling.Enabled)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"capital", `{"backtest": {"initialCapital": "0"}}`, exception.ErrInvalidBacktestConfig},
		{"strategy kind", `{"strategy": {"kind": "martingale"}}`, exception.ErrUnknownStrategy},
		{"strategy params", `{"strategy": {"kind": "ma_crossover_rsi", "maCrossoverRsi": {"emaFast": 50, "emaSlow": 20, "rsiPeriod": 14, "rsiThreshold": 70}}}`, exception.ErrInvalidStrategyParams},
		{"interval", `{"reconcile": {"interval": "soon"}}`, exception.ErrInvalidArgument},
		{"profiling", `{"profiling": {"enabled": true}}`, exception.ErrInvalidArgument},
	}
	for _, tc := range tests {
		_, err := Load(writeConfig(t, tc.body))
		if !assert.ErrorIs(t, err, tc.want) {
			t.Fatalf("%s: err = %v", tc.name, err)
		}
	}

	_, err := Load(writeConfig(t, `{not json`))
	assert.Error(t, err)
}
