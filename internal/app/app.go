// Package app assembles the rule engine, store and evaluation service from configuration.
package app

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/liamcoop/campaignrules/campaigns"
	"github.com/liamcoop/campaignrules/evaluation"
	"github.com/liamcoop/campaignrules/internal/config"
	"github.com/liamcoop/campaignrules/internal/logger"
	"github.com/liamcoop/campaignrules/internal/metrics"
	"github.com/liamcoop/campaignrules/migrations"
	"github.com/liamcoop/campaignrules/rules"
)

// App holds the components shared by the server and the command line tool
type App struct {
	Config  *config.Config
	Engine  *rules.Engine
	Store   campaigns.Store
	Metrics *metrics.Metrics
	Service *evaluation.Service

	closeStore func()
}

// New builds every component. Rule configuration problems are returned
// before any store is opened.
func New(cfg *config.Config) (*App, error) {
	engine, err := BuildEngine(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("invalid rule configuration: %w", err)
	}

	store, closeStore, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	service := evaluation.NewService(engine, store,
		evaluation.WithLocation(cfg.Location()),
		evaluation.WithWorkers(cfg.EvaluationWorkers),
		evaluation.WithRecorder(m),
	)

	return &App{
		Config:     cfg,
		Engine:     engine,
		Store:      store,
		Metrics:    m,
		Service:    service,
		closeStore: closeStore,
	}, nil
}

// Close releases the store
func (a *App) Close() {
	if a.closeStore != nil {
		a.closeStore()
	}
}

// BuildEngine assembles the rule chain: the built-in rules plus any
// expression rules from rulesFile.
func BuildEngine(rulesFile string) (*rules.Engine, error) {
	registry, err := rules.DefaultRegistry()
	if err != nil {
		return nil, err
	}

	if rulesFile != "" {
		extra, err := rules.LoadExpressionRules(rulesFile)
		if err != nil {
			return nil, err
		}
		for _, rule := range extra {
			if err := registry.Register(rule); err != nil {
				return nil, err
			}
		}
		logger.Info("Loaded expression rules", "file", rulesFile, "count", len(extra))
	}

	return rules.NewEngine(registry)
}

// OpenStore returns the configured store and a function releasing it
func OpenStore(cfg *config.Config) (campaigns.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("Using the in-memory store, data is lost on restart")
		return campaigns.NewInMemoryStore(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.MigrateOnStart {
		applied, err := migrations.Up(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("Migrations checked", "applied", applied)
	}

	return campaigns.NewPostgresStore(db), func() { db.Close() }, nil
}
