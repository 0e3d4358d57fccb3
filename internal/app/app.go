package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/pcr-tracker-go/internal/api/handlers"
	"github.com/irfndi/pcr-tracker-go/internal/cache"
	"github.com/irfndi/pcr-tracker-go/internal/config"
	"github.com/irfndi/pcr-tracker-go/internal/database"
	"github.com/irfndi/pcr-tracker-go/internal/extractor"
	"github.com/irfndi/pcr-tracker-go/internal/locator"
	"github.com/irfndi/pcr-tracker-go/internal/models"
	"github.com/irfndi/pcr-tracker-go/internal/reconciler"
	"github.com/irfndi/pcr-tracker-go/internal/services"
	"github.com/irfndi/pcr-tracker-go/internal/sheet"
	"github.com/irfndi/pcr-tracker-go/internal/source"
)

const latestCacheTTL = 24 * time.Hour

// App is the wired update pipeline shared by the server and the CLI.
type App struct {
	Config     *config.Config
	Location   *time.Location
	Codec      sheet.Codec
	Store      sheet.Store
	Extractor  *extractor.Extractor
	Source     *source.Client
	Controller *services.UpdateCycleController
	Window     services.OperatingWindow

	checks  map[string]handlers.HealthChecker
	closers []func()
	logger  *slog.Logger
}

// Options override collaborators, mainly for tests.
type Options struct {
	Store   sheet.Store
	Fetcher services.Fetcher
	Now     func() time.Time
}

// Build connects the configured backends and assembles the controller.
// On error every connection opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, svcLogger *logrus.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Config: cfg,
		checks: map[string]handlers.HealthChecker{},
		logger: logger,
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Location, err = cfg.Location(); err != nil {
		return nil, err
	}
	layout, err := cfg.ColumnLayout()
	if err != nil {
		return nil, err
	}
	a.Codec = sheet.NewCodec(layout, a.Location)

	if a.Extractor, err = NewExtractor(cfg.Extractor); err != nil {
		return nil, err
	}
	rec, err := NewReconciler(cfg.Reconciler)
	if err != nil {
		return nil, err
	}

	a.Store = opts.Store
	if a.Store == nil {
		if a.Store, err = a.openStore(ctx, layout); err != nil {
			return nil, err
		}
	}
	a.checks["store"] = a.Store

	recovery := services.NewErrorRecoveryManager(svcLogger)
	breaker := services.NewCircuitBreaker("source_fetch", services.CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		OpenTimeout:      2 * time.Minute,
	}, svcLogger)

	deps := services.ControllerDeps{
		Extractor:  a.Extractor,
		Reconciler: rec,
		Store:      a.Store,
		Breaker:    breaker,
		Recovery:   recovery,
		Logger:     logger,
		Now:        opts.Now,
	}

	a.Source = source.NewClient(source.Config{
		URL:       cfg.Source.URL,
		UserAgent: cfg.Source.UserAgent,
		Timeout:   config.Duration(cfg.Source.Timeout, source.DefaultTimeout),
		Headers:   cfg.Source.Headers,
	})
	deps.Fetcher = a.Source
	if opts.Fetcher != nil {
		deps.Fetcher = opts.Fetcher
	}

	if cfg.Redis.Enabled {
		rc, err := database.NewRedisConnection(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rc.Close)
		a.checks["redis"] = rc
		deps.Guard = cache.NewRedisBucketGuard(rc.Client, 0, 0)
		deps.Latest = cache.NewRedisLatestCache(rc.Client, latestCacheTTL)
	} else {
		a.checks["redis"] = nil
	}

	if notifier := a.newNotifier(recovery); notifier != nil {
		deps.Notifier = notifier
	}

	a.Window, err = services.ParseOperatingWindow(cfg.Schedule.WindowStart, cfg.Schedule.WindowEnd, a.Location, cfg.Schedule.WeekdaysOnly)
	if err != nil {
		return nil, err
	}
	deps.Window = a.Window.Allows

	a.Controller, err = services.NewUpdateCycleController(services.ControllerConfig{
		Region: locator.Region{
			HeaderRow: cfg.Sheet.HeaderRow,
			FirstRow:  cfg.Sheet.DataStartRow,
			LastRow:   cfg.Sheet.DataEndRow,
		},
		Codec:      a.Codec,
		Backoff:    config.Duration(cfg.Schedule.Backoff, 30*time.Second),
		Location:   a.Location,
		SkipHeader: cfg.Sheet.HeaderRow == 0,
	}, deps)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Controller.Close)
	return a, nil
}

func (a *App) openStore(ctx context.Context, layout models.ColumnLayout) (sheet.Store, error) {
	cfg := a.Config
	switch cfg.Sheet.Backend {
	case config.BackendSheets:
		return sheet.NewSheetsStore(ctx, sheet.SheetsConfig{
			SpreadsheetID:   cfg.Sheet.SpreadsheetID,
			Worksheet:       cfg.Sheet.Worksheet,
			CredentialsFile: cfg.Sheet.CredentialsFile,
			Width:           layout.Width(),
			KeyColumn:       layout.Column(models.FieldTimestamp),
		})
	case config.BackendPostgres:
		db, err := database.NewPostgresConnection(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		store := sheet.NewPostgresStore(db.Pool, cfg.Sheet.Worksheet)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendMemory:
		a.logger.Warn("Using in-memory store, rows are lost on restart")
		return sheet.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown sheet backend %q", cfg.Sheet.Backend)
	}
}

func (a *App) newNotifier(recovery *services.ErrorRecoveryManager) services.TrendNotifier {
	cfg := a.Config
	if !cfg.Reconciler.NotifyChange || cfg.Telegram.BotToken == "" {
		return nil
	}
	n, err := services.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Source.Symbol, recovery)
	if err != nil {
		a.logger.Warn("Trend change alerts disabled", "error", err)
		return nil
	}
	return n
}

// HealthChecks returns the checkers for the health endpoint. Disabled
// services map to nil.
func (a *App) HealthChecks() map[string]handlers.HealthChecker {
	return a.checks
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// NewExtractor builds the extractor from the extractor section.
func NewExtractor(cfg config.ExtractorConfig) (*extractor.Extractor, error) {
	extra := make(map[models.Field][]string, len(cfg.ExtraPatterns))
	for name, patterns := range cfg.ExtraPatterns {
		extra[models.Field(name)] = patterns
	}
	return extractor.New(extractor.Config{
		Band:          extractor.Band{Min: cfg.PriceMin, Max: cfg.PriceMax},
		ExtraPatterns: extra,
	})
}

// NewReconciler builds the reconciler from the reconciler section.
func NewReconciler(cfg config.ReconcilerConfig) (*reconciler.Reconciler, error) {
	bearish, bullish, err := cfg.Thresholds()
	if err != nil {
		return nil, err
	}
	labels := make(map[models.TrendBasis]string, len(cfg.BasisLabels))
	for basis, label := range cfg.BasisLabels {
		labels[models.TrendBasis(basis)] = label
	}
	return reconciler.New(reconciler.Config{
		Basis:     models.TrendBasis(cfg.TrendBasis),
		BearishAt: bearish,
		BullishAt: bullish,
		Labels:    labels,
	})
}
