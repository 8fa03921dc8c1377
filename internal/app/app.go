// Package app wires configuration into exchanges, persistence backends,
// risk validators and engines for the tempo commands.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"tempo/internal/config"
	"tempo/internal/domain"
	"tempo/internal/engine"
	"tempo/internal/exchange"
	"tempo/internal/pricing"
	"tempo/internal/risk"
	"tempo/internal/store"
	"tempo/internal/strategy"
	"tempo/internal/strategy/builtins"
)

// Backends owns the persistence connections selected by storage.backend.
type Backends struct {
	kind    string
	dataDir string
	sqlite  *store.SQLiteDB
	pg      *pgxpool.Pool
}

// OpenBackends connects to the configured backend.
func OpenBackends(ctx context.Context, cfg config.Storage) (*Backends, error) {
	b := &Backends{kind: cfg.Backend, dataDir: cfg.DataDir}
	switch cfg.Backend {
	case "file", "memory":
	case "sqlite":
		db, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite %s: %w", cfg.SQLitePath, err)
		}
		b.sqlite = db
	case "postgres":
		pool, err := store.NewPostgresPool(ctx, cfg.DatabaseURL, store.DefaultPoolConfig())
		if err != nil {
			return nil, err
		}
		b.pg = pool
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	return b, nil
}

// MemoryBackends returns in-process backends. Backtests use them so that
// replays never touch live state.
func MemoryBackends() *Backends {
	return &Backends{kind: "memory"}
}

// Close releases database connections.
func (b *Backends) Close() {
	if b.sqlite != nil {
		_ = b.sqlite.Close()
	}
	if b.pg != nil {
		b.pg.Close()
	}
}

// Adapter returns the persistence adapter for entity on b.
func Adapter[T any](b *Backends, entity string) store.Adapter[T] {
	switch b.kind {
	case "sqlite":
		return store.NewSQLite[T](b.sqlite, entity)
	case "postgres":
		return store.NewPostgres[T](b.pg, entity)
	case "file":
		return store.NewFile[T](filepath.Join(b.dataDir, "state"), entity)
	default:
		return store.NewMemory[T]()
	}
}

// NewExchange builds the configured candle source. With storage.candle_cache
// set, Alpaca reads go through the Parquet cache under data_dir.
func NewExchange(cfg *config.Config, log *slog.Logger) (exchange.Exchange, error) {
	switch cfg.Exchange {
	case "alpaca":
		ex := exchange.NewAlpaca(exchange.AlpacaOptions{
			APIKey:            cfg.Alpaca.APIKey,
			APISecret:         cfg.Alpaca.APISecret,
			DataURL:           cfg.Alpaca.DataURL,
			Feed:              cfg.Alpaca.Feed,
			RequestsPerMinute: cfg.Alpaca.RateLimitPerMin,
		}, log)
		if cfg.Storage.CandleCache {
			return exchange.NewCached(ex, store.NewParquetStore(cfg.Storage.DataDir), log), nil
		}
		return ex, nil
	case "memory":
		return exchange.NewMemory("memory"), nil
	default:
		return nil, fmt.Errorf("unknown exchange %q", cfg.Exchange)
	}
}

// NewStrategies builds every configured strategy and registers it.
func NewStrategies(cfg *config.Config, src builtins.CandleSource) (*strategy.Registry, error) {
	reg := strategy.NewRegistry()
	for _, sc := range cfg.Strategies {
		s, err := builtins.NewSMACross(builtins.SMACrossConfig{
			Name:              sc.Name,
			Interval:          sc.Interval,
			ShortPeriod:       sc.ShortPeriod,
			LongPeriod:        sc.LongPeriod,
			TakeProfitPercent: sc.TakeProfitPercent,
			StopLossPercent:   sc.StopLossPercent,
			LifetimeMinutes:   sc.LifetimeMinutes,
		}, src)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// NewValidators builds one validator per configured risk profile, keyed by
// name, persisting through b.
func NewValidators(profiles []config.RiskProfile, b *Backends, log *slog.Logger) map[string]*risk.Validator {
	out := make(map[string]*risk.Validator, len(profiles))
	for _, rp := range profiles {
		p := risk.Profile{Name: rp.Name}
		if rp.MaxPositions > 0 {
			p.Rules = append(p.Rules, risk.MaxPositions(rp.MaxPositions))
		}
		if rp.OnePerSymbol {
			p.Rules = append(p.Rules, risk.OnePerSymbol())
		}
		p.OnRejected = func(pl risk.Payload, rej *risk.RejectedError) {
			log.Info("signal rejected by risk",
				"profile", rej.Profile,
				"rule", rej.Rule,
				"strategy", pl.StrategyName,
				"symbol", pl.Symbol,
			)
		}
		out[rp.Name] = risk.NewValidator(p, Adapter[risk.PositionMap](b, store.EntityRisk), log)
	}
	return out
}

// Session is everything one run needs.
type Session struct {
	Oracle     *pricing.Oracle
	Strategies *strategy.Registry
	Validators []*risk.Validator
	Engines    []*engine.Engine
}

// Build creates one engine per configured strategy and symbol. With
// sharedRisk every engine consults the same validators, which is what a live
// process wants. Backtests pass false: engines replay independently, so each
// gets private validators.
func Build(ctx context.Context, cfg *config.Config, ex exchange.Exchange, b *Backends, sharedRisk bool, log *slog.Logger) (*Session, error) {
	oracle := pricing.New(ex, cfg.Trading.PricingConfig(), log)
	reg, err := NewStrategies(cfg, oracle)
	if err != nil {
		return nil, err
	}
	s := &Session{Oracle: oracle, Strategies: reg}

	var shared map[string]*risk.Validator
	if sharedRisk {
		shared = NewValidators(cfg.Risk, b, log)
		for _, rp := range cfg.Risk {
			v := shared[rp.Name]
			if err := v.Init(ctx); err != nil {
				return nil, err
			}
			s.Validators = append(s.Validators, v)
		}
	}

	signals := Adapter[*domain.Signal](b, store.EntitySignal)
	for _, sc := range cfg.Strategies {
		strat, _ := reg.Get(sc.Name)
		for _, symbol := range cfg.SymbolsFor(sc) {
			validators := shared
			if !sharedRisk {
				validators = NewValidators(cfg.Risk, b, log)
				for _, rp := range cfg.Risk {
					s.Validators = append(s.Validators, validators[rp.Name])
				}
			}
			chain := make([]*risk.Validator, 0, len(sc.RiskProfiles))
			for _, name := range sc.RiskProfiles {
				chain = append(chain, validators[name])
			}

			e, err := engine.New(engine.Params{
				Symbol:   symbol,
				Strategy: strat,
				Oracle:   oracle,
				Risk:     risk.NewChain(chain...),
				Store:    signals,
				Config:   cfg.Trading.EngineConfig(),
				Log:      log,
			})
			if err != nil {
				return nil, err
			}
			s.Engines = append(s.Engines, e)
		}
	}
	if len(s.Engines) == 0 {
		return nil, fmt.Errorf("no engines configured: declare strategies and symbols")
	}
	return s, nil
}
