package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  environment: test\n"))
	require.NoError(t, err)

	require.Equal(t, "test", cfg.App.Environment)
	require.Equal(t, 30*time.Second, cfg.Poller.Interval)
	require.Equal(t, time.Hour, cfg.Flow.Window)
	require.Equal(t, "quai_quaiToQi", cfg.Quai.AtoBMethod)
	require.Equal(t, "quai-network", cfg.Pricing.CoinIDs["quai"])

	pair := cfg.Pair()
	require.Equal(t, "QUAI", pair.A.Symbol)
	require.Equal(t, int32(18), pair.A.Decimals)
	require.Equal(t, "QI", pair.B.Symbol)
	require.Equal(t, int32(3), pair.B.Decimals)

	params := cfg.SlippageParams()
	require.Equal(t, "1.5", params.FloorAtoB.String())
	require.Equal(t, "0.5", params.FloorBtoA.String())
	require.Equal(t, "10000", params.SizeDivisor.String())
	require.NoError(t, params.Validate())
}

func TestLoadDecodesYAMLNumbersAsDecimals(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
slippage:
  floor_a_to_b: 2.25
  floor_b_to_a: 1
  ceiling_a_to_b: 9
alerting:
  channels: telegram,log
`))
	require.NoError(t, err)
	require.Equal(t, "2.25", cfg.Slippage.FloorAtoB.String())
	require.Equal(t, "1", cfg.Slippage.FloorBtoA.String())
	require.Equal(t, "9", cfg.Slippage.CeilingAtoB.String())
	require.Equal(t, []string{"telegram", "log"}, cfg.Alerting.Channels)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("QIQUAI_POLLER_INTERVAL", "45s")
	t.Setenv("QIQUAI_SLIPPAGE_SIZE_CAP", "3.5")
	t.Setenv("QIQUAI_QUAI_RPC_URL", "http://localhost:9001")

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	require.Equal(t, 45*time.Second, cfg.Poller.Interval)
	require.Equal(t, "3.5", cfg.Slippage.SizeCap.String())
	require.Equal(t, "http://localhost:9001", cfg.Quai.RPCURL)
}

func TestLoadRejectsInvalidSlippage(t *testing.T) {
	_, err := Load(writeConfig(t, `
slippage:
  floor_a_to_b: 0.1
  floor_b_to_a: 0.5
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "slippage")
}

func TestValidateTelegramRequiresCredentials(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	cfg.Alerting.Telegram.Enabled = true
	require.Error(t, cfg.Validate())

	cfg.Alerting.Telegram.BotToken = "token"
	cfg.Alerting.Telegram.ChatID = "42"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsIdenticalAssets(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	cfg.Assets.B.Symbol = "quai"
	require.Error(t, cfg.Validate())
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 10}}
	require.Equal(t, 10, cfg.ResolveMaxPoints(0))
	require.Equal(t, 3, cfg.ResolveMaxPoints(3))
}
