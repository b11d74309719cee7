package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/defistate/defistate-dex-go/cmd/console/config"
	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExampleScenario(t *testing.T) {
	cfg, err := config.LoadConfig("config.example.yaml")
	require.NoError(t, err)
	cfg.LogFile = filepath.Join(t.TempDir(), "console.log")

	stdout := os.Stdout
	devnull, err := os.Open(os.DevNull)
	require.NoError(t, err)
	os.Stdout = devnull
	defer func() { os.Stdout = stdout; devnull.Close() }()

	s, err := newScenario(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, s.run())
	s.report()

	assert.Equal(t, uint64(2), s.dex.PoolCount())
	taker := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	weth, err := s.dex.GetDeposit(taker, s.token("WETH"))
	require.NoError(t, err)
	start, err := s.parseAmount("WETH", "5")
	require.NoError(t, err)
	assert.True(t, weth.Lt(&start), "taker sold WETH")

	dai, err := s.dex.GetDeposit(taker, s.token("DAI"))
	require.NoError(t, err)
	assert.False(t, dai.IsZero(), "multi-hop delivered DAI")
}

func TestAmountFormatting(t *testing.T) {
	cfg, err := config.LoadConfig("config.example.yaml")
	require.NoError(t, err)
	s, err := newScenario(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	a, err := s.parseAmount("USDC", "1.5")
	require.NoError(t, err)
	assert.Equal(t, clmm.AmountFromUint64(1_500_000), a)
	assert.Equal(t, "1.5 USDC", s.formatAmount(s.token("USDC"), a))

	_, err = s.parseAmount("USDC", "0.0000001")
	assert.Error(t, err)
	_, err = s.parseAmount("USDC", "abc")
	assert.Error(t, err)
	assert.Equal(t, "7", s.formatAmount(common.Address{}, clmm.AmountFromUint64(7)))
}
