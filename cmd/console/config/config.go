// Package config loads the scenario the console replays against an
// in-memory exchange.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/defistate/defistate-dex-go/protocols/clmm/dex"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// ConsoleConfig is the root of config.yaml.
type ConsoleConfig struct {
	Owner               string           `yaml:"owner"`
	ProtocolFeeFraction clmm.BasisPoints `yaml:"protocol_fee_fraction"`
	MetricsNamespace    string           `yaml:"metrics_namespace"`
	// Tracker is one of full, counting or noop. Empty means full.
	Tracker   string           `yaml:"tracker"`
	LogFile   string           `yaml:"log_file"`
	Tokens    []TokenConfig    `yaml:"tokens"`
	Accounts  []AccountConfig  `yaml:"accounts"`
	Positions []PositionConfig `yaml:"positions"`
	Swaps     []SwapConfig     `yaml:"swaps"`
}

type TokenConfig struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
}

// AccountConfig funds an account. Deposits map token symbols to amounts
// in whole tokens, e.g. "1.5".
type AccountConfig struct {
	Name     string            `yaml:"name"`
	Address  string            `yaml:"address"`
	Deposits map[string]string `yaml:"deposits"`
}

type PositionConfig struct {
	Account string    `yaml:"account"`
	Tokens  [2]string `yaml:"tokens"`
	FeeRate uint16    `yaml:"fee_rate"`
	Amounts [2]string `yaml:"amounts"`
}

// SwapConfig runs a swap along Path. Exact is "in" or "out"; Limit is the
// minimum output or maximum input and may be empty.
type SwapConfig struct {
	Account string   `yaml:"account"`
	Path    []string `yaml:"path"`
	Exact   string   `yaml:"exact"`
	Amount  string   `yaml:"amount"`
	Limit   string   `yaml:"limit"`
}

// LoadConfig reads and validates the file at path.
func LoadConfig(path string) (*ConsoleConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*ConsoleConfig, error) {
	var cfg ConsoleConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ConsoleConfig) validate() error {
	if !common.IsHexAddress(c.Owner) {
		return fmt.Errorf("config: invalid owner address %q", c.Owner)
	}
	if _, err := c.TrackerKind(); err != nil {
		return err
	}
	if len(c.Tokens) < 2 {
		return errors.New("config: at least two tokens are required")
	}
	seen := make(map[string]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		if t.Symbol == "" {
			return errors.New("config: token symbol cannot be empty")
		}
		if seen[t.Symbol] {
			return fmt.Errorf("config: duplicate token %s", t.Symbol)
		}
		seen[t.Symbol] = true
		if !common.IsHexAddress(t.Address) {
			return fmt.Errorf("config: token %s has invalid address %q", t.Symbol, t.Address)
		}
		if t.Decimals < 0 || t.Decimals > 38 {
			return fmt.Errorf("config: token %s decimals out of range", t.Symbol)
		}
	}
	accounts := make(map[string]bool, len(c.Accounts))
	for _, a := range c.Accounts {
		if a.Name == "" || !common.IsHexAddress(a.Address) {
			return fmt.Errorf("config: invalid account %q", a.Name)
		}
		accounts[a.Name] = true
		for symbol := range a.Deposits {
			if !seen[symbol] {
				return fmt.Errorf("config: account %s deposits unknown token %s", a.Name, symbol)
			}
		}
	}
	for i, p := range c.Positions {
		if !accounts[p.Account] {
			return fmt.Errorf("config: position %d: unknown account %q", i, p.Account)
		}
		for _, symbol := range p.Tokens {
			if !seen[symbol] {
				return fmt.Errorf("config: position %d: unknown token %q", i, symbol)
			}
		}
	}
	for i, s := range c.Swaps {
		if !accounts[s.Account] {
			return fmt.Errorf("config: swap %d: unknown account %q", i, s.Account)
		}
		if len(s.Path) < 2 {
			return fmt.Errorf("config: swap %d: path needs at least two tokens", i)
		}
		for _, symbol := range s.Path {
			if !seen[symbol] {
				return fmt.Errorf("config: swap %d: unknown token %q", i, symbol)
			}
		}
		if _, err := s.ExactKind(); err != nil {
			return fmt.Errorf("config: swap %d: %w", i, err)
		}
	}
	return nil
}

// TrackerKind maps the tracker setting to the exchange's tracker kind.
func (c *ConsoleConfig) TrackerKind() (dex.TrackerKind, error) {
	switch strings.ToLower(c.Tracker) {
	case "", "full":
		return dex.TrackerFull, nil
	case "counting":
		return dex.TrackerCounting, nil
	case "noop":
		return dex.TrackerNoop, nil
	}
	return 0, fmt.Errorf("config: unknown tracker %q", c.Tracker)
}

func (s SwapConfig) ExactKind() (clmm.Exact, error) {
	switch strings.ToLower(s.Exact) {
	case "", "in":
		return clmm.ExactIn, nil
	case "out":
		return clmm.ExactOut, nil
	}
	return 0, fmt.Errorf("unknown exact %q", s.Exact)
}
