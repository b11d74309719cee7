package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/defistate/defistate-dex-go/protocols/clmm/dex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
owner: "0x0000000000000000000000000000000000000064"
protocol_fee_fraction: 1300
tracker: counting
tokens:
  - {symbol: AAA, address: "0x0000000000000000000000000000000000000001", decimals: 18}
  - {symbol: BBB, address: "0x0000000000000000000000000000000000000002", decimals: 6}
accounts:
  - name: alice
    address: "0x0000000000000000000000000000000000000065"
    deposits: {AAA: "10", BBB: "20000.5"}
positions:
  - {account: alice, tokens: [AAA, BBB], fee_rate: 1, amounts: ["1", "2000"]}
swaps:
  - {account: alice, path: [AAA, BBB], exact: out, amount: "10"}
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, clmm.BasisPoints(1300), cfg.ProtocolFeeFraction)
	assert.Len(t, cfg.Tokens, 2)
	assert.Equal(t, int32(6), cfg.Tokens[1].Decimals)
	assert.Equal(t, "20000.5", cfg.Accounts[0].Deposits["BBB"])
	assert.Equal(t, [2]string{"AAA", "BBB"}, cfg.Positions[0].Tokens)

	kind, err := cfg.TrackerKind()
	require.NoError(t, err)
	assert.Equal(t, dex.TrackerCounting, kind)

	exact, err := cfg.Swaps[0].ExactKind()
	require.NoError(t, err)
	assert.Equal(t, clmm.ExactOut, exact)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"BadOwner":     `owner: nope`,
		"FewTokens":    "owner: \"0x0000000000000000000000000000000000000064\"\ntokens: []",
		"BadTracker":   "owner: \"0x0000000000000000000000000000000000000064\"\ntracker: lossy",
		"UnknownToken": sample + "\n  - {account: alice, path: [AAA, ZZZ]}",
		"UnknownUser":  sample + "\n  - {account: bob, path: [AAA, BBB]}",
		"ShortPath":    sample + "\n  - {account: alice, path: [AAA]}",
		"BadExact":     sample + "\n  - {account: alice, path: [AAA, BBB], exact: sideways}",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("owner: [unterminated"))
	assert.ErrorContains(t, err, "decode config")
}
