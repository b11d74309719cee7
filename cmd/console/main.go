package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/defistate/defistate-dex-go/cmd/console/config"
	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/defistate/defistate-dex-go/protocols/clmm/dex"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"

	DefaultLogFile = "console.log"
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

// scenario binds a loaded config to a running exchange.
type scenario struct {
	cfg      *config.ConsoleConfig
	dex      *dex.Dex
	host     *dex.InMemoryHost
	registry *prometheus.Registry
	logger   *slog.Logger

	tokens   map[string]config.TokenConfig
	accounts map[string]clmm.AccountID
	symbols  map[clmm.TokenID]string
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logPath := cfg.LogFile
	if logPath == "" {
		logPath = DefaultLogFile
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()
	rootLogger := slog.New(slog.NewJSONHandler(logFile, nil))

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check " + logPath + " for details." + Reset)
		logFile.Close()
		os.Exit(1)
	}

	s, err := newScenario(cfg, rootLogger)
	if err != nil {
		rootLogger.Error("Failed to initialize exchange", "error", err)
		closeApp()
	}
	if err := s.run(); err != nil {
		rootLogger.Error("Scenario failed", "error", err)
		closeApp()
	}
	s.report()
}

func newScenario(cfg *config.ConsoleConfig, logger *slog.Logger) (*scenario, error) {
	kind, err := cfg.TrackerKind()
	if err != nil {
		return nil, err
	}
	owner := common.HexToAddress(cfg.Owner)
	host := dex.NewInMemoryHost(owner)
	registry := prometheus.NewRegistry()

	d, err := dex.New(&dex.Config{
		Owner:               owner,
		ProtocolFeeFraction: cfg.ProtocolFeeFraction,
		FeeRates:            clmm.FeeRatesTicks(),
		Host:                host,
		Events:              dex.NewSlogEventLogger(logger.With("component", "events")),
		Registry:            registry,
		Logger:              logger.With("component", "dex"),
		ItemFactory:         dex.DefaultItemFactory{Tracker: kind},
		MetricsNamespace:    cfg.MetricsNamespace,
	})
	if err != nil {
		return nil, err
	}

	s := &scenario{
		cfg:      cfg,
		dex:      d,
		host:     host,
		registry: registry,
		logger:   logger,
		tokens:   make(map[string]config.TokenConfig, len(cfg.Tokens)),
		accounts: make(map[string]clmm.AccountID, len(cfg.Accounts)),
		symbols:  make(map[clmm.TokenID]string, len(cfg.Tokens)),
	}
	for _, t := range cfg.Tokens {
		s.tokens[t.Symbol] = t
		s.symbols[common.HexToAddress(t.Address)] = t.Symbol
	}
	for _, a := range cfg.Accounts {
		s.accounts[a.Name] = common.HexToAddress(a.Address)
	}
	return s, nil
}

func (s *scenario) token(symbol string) clmm.TokenID {
	return common.HexToAddress(s.tokens[symbol].Address)
}

func (s *scenario) allTokens() []clmm.TokenID {
	out := make([]clmm.TokenID, 0, len(s.cfg.Tokens))
	for _, t := range s.cfg.Tokens {
		out = append(out, common.HexToAddress(t.Address))
	}
	return out
}

// parseAmount converts whole tokens to base units.
func (s *scenario) parseAmount(symbol, value string) (clmm.Amount, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return clmm.Amount{}, fmt.Errorf("amount %q: %w", value, err)
	}
	scaled := d.Shift(s.tokens[symbol].Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return clmm.Amount{}, fmt.Errorf("amount %q has more than %d decimals", value, s.tokens[symbol].Decimals)
	}
	return clmm.AmountFromBig(scaled.BigInt())
}

func (s *scenario) formatAmount(token clmm.TokenID, a clmm.Amount) string {
	symbol, ok := s.symbols[token]
	if !ok {
		return a.Dec()
	}
	return decimal.NewFromBigInt(a.ToBig(), -s.tokens[symbol].Decimals).String() + " " + symbol
}

func (s *scenario) run() error {
	header("FUNDING ACCOUNTS")
	for _, a := range s.cfg.Accounts {
		id := s.accounts[a.Name]
		s.host.Act(id)
		if err := s.dex.RegisterAccount(); err != nil {
			return fmt.Errorf("register %s: %w", a.Name, err)
		}
		if err := s.dex.RegisterTokens(s.allTokens()); err != nil {
			return fmt.Errorf("register tokens for %s: %w", a.Name, err)
		}
		for symbol, value := range a.Deposits {
			amount, err := s.parseAmount(symbol, value)
			if err != nil {
				return err
			}
			if _, err := s.dex.Deposit(id, s.token(symbol), amount); err != nil {
				return fmt.Errorf("deposit %s for %s: %w", symbol, a.Name, err)
			}
			fmt.Printf("   %s%-10s%s +%s\n", Green, a.Name, Reset, s.formatAmount(s.token(symbol), amount))
		}
	}

	header("OPENING POSITIONS")
	for i, p := range s.cfg.Positions {
		s.host.Act(s.accounts[p.Account])
		maxA, err := s.parseAmount(p.Tokens[0], p.Amounts[0])
		if err != nil {
			return err
		}
		maxB, err := s.parseAmount(p.Tokens[1], p.Amounts[1])
		if err != nil {
			return err
		}
		opened, err := s.dex.OpenPositionFull(s.token(p.Tokens[0]), s.token(p.Tokens[1]), p.FeeRate, maxA, maxB)
		if err != nil {
			return fmt.Errorf("position %d: %w", i, err)
		}
		fmt.Printf("   #%d %s/%s fee %d bp: %s, %s\n", opened.ID, p.Tokens[0], p.Tokens[1], p.FeeRate,
			s.formatAmount(s.token(p.Tokens[0]), opened.Amounts[clmm.Left]),
			s.formatAmount(s.token(p.Tokens[1]), opened.Amounts[clmm.Right]))
	}
	if _, err := s.dex.UpdateTopPools(); err != nil {
		return fmt.Errorf("update top pools: %w", err)
	}

	header("SWAPS")
	for i, sw := range s.cfg.Swaps {
		if err := s.swap(sw); err != nil {
			// A rejected swap leaves the state untouched; the scenario goes on.
			fmt.Printf("   %s#%d %s rejected: %v%s\n", Yellow, i, strings.Join(sw.Path, "->"), err, Reset)
			s.logger.Warn("Swap rejected", "index", i, "error", err)
		}
	}
	return nil
}

func (s *scenario) swap(sw config.SwapConfig) error {
	exact, err := sw.ExactKind()
	if err != nil {
		return err
	}
	path := make([]clmm.TokenID, len(sw.Path))
	for i, symbol := range sw.Path {
		path[i] = s.token(symbol)
	}
	fixedSymbol, limitSymbol := sw.Path[0], sw.Path[len(sw.Path)-1]
	if exact == clmm.ExactOut {
		fixedSymbol, limitSymbol = limitSymbol, fixedSymbol
	}
	amount, err := s.parseAmount(fixedSymbol, sw.Amount)
	if err != nil {
		return err
	}
	limit := clmm.Amount{}
	if exact == clmm.ExactOut {
		limit = clmm.MaxAmount
	}
	if sw.Limit != "" {
		if limit, err = s.parseAmount(limitSymbol, sw.Limit); err != nil {
			return err
		}
	}

	s.host.Act(s.accounts[sw.Account])
	var counter clmm.Amount
	if exact == clmm.ExactIn {
		counter, err = s.dex.SwapExactIn(path, amount, limit)
	} else {
		counter, err = s.dex.SwapExactOut(path, amount, limit)
	}
	if err != nil {
		return err
	}
	in, out := amount, counter
	if exact == clmm.ExactOut {
		in, out = counter, amount
	}
	fmt.Printf("   %-10s %s -> %s\n", sw.Account,
		s.formatAmount(path[0], in), s.formatAmount(path[len(path)-1], out))
	return nil
}

func (s *scenario) report() {
	s.printPools()
	s.printBalances()
	s.printTopPools()
	s.printMetrics()
	fmt.Println()
}

func (s *scenario) printPools() {
	header("POOLS")
	entries, err := s.dex.PoolInfos()
	if err != nil {
		fmt.Println(Red + "   " + err.Error() + Reset)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "   PAIR\tRESERVES\tSPOT SQRTPRICE (L0)\tLIQUIDITY (L0)")
	for _, e := range entries {
		tokens := e.ID.Tokens()
		fmt.Fprintf(w, "   %s/%s\t%s | %s\t%.6g\t%.6g\n",
			s.symbols[tokens[clmm.Left]], s.symbols[tokens[clmm.Right]],
			s.formatAmount(tokens[clmm.Left], e.Info.TotalReserves[clmm.Left]),
			s.formatAmount(tokens[clmm.Right], e.Info.TotalReserves[clmm.Right]),
			e.Info.SpotSqrtprices[0], e.Info.Liquidities[0])
	}
	w.Flush()
}

func (s *scenario) printBalances() {
	header("BALANCES")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	for _, a := range s.cfg.Accounts {
		acc, err := s.dex.Account(s.accounts[a.Name])
		if err != nil {
			continue
		}
		var cells []string
		for _, token := range acc.Tokens() {
			balance, _ := acc.Balance(token)
			cells = append(cells, s.formatAmount(token, balance))
		}
		fmt.Fprintf(w, "   %s\t%d positions\t%s\n", a.Name, len(acc.Positions()), strings.Join(cells, "\t"))
	}
	w.Flush()
}

func (s *scenario) printTopPools() {
	header("TOP POOLS")
	for _, t := range s.cfg.Tokens {
		top, err := s.dex.TokenTopPools(common.HexToAddress(t.Address))
		if err != nil {
			continue
		}
		names := make([]string, len(top))
		for i, n := range top {
			names[i] = s.symbols[n]
		}
		fmt.Printf("   %-8s %s\n", t.Symbol, strings.Join(names, ", "))
	}
}

func (s *scenario) printMetrics() {
	header("OPERATIONS")
	families, err := s.registry.Gather()
	if err != nil {
		fmt.Println(Red + "   " + err.Error() + Reset)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	for _, f := range families {
		if f.GetType() != dto.MetricType_COUNTER || !strings.HasSuffix(f.GetName(), "operations_total") {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetValue())
			}
			fmt.Fprintf(w, "   %s\t%.0f\n", strings.Join(labels, "\t"), m.GetCounter().GetValue())
		}
	}
	w.Flush()
}

func loadConfig() (*config.ConsoleConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
