package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zhouzirui/commerce-router/internal/analysis/intent"
	"github.com/zhouzirui/commerce-router/internal/config"
	"github.com/zhouzirui/commerce-router/internal/logging"
	"github.com/zhouzirui/commerce-router/internal/metrics"
	"github.com/zhouzirui/commerce-router/internal/model/service"
	"github.com/zhouzirui/commerce-router/internal/service/completion"
	"github.com/zhouzirui/commerce-router/internal/service/conversation"
	"github.com/zhouzirui/commerce-router/internal/service/router"
	"github.com/zhouzirui/commerce-router/internal/store"
	"github.com/zhouzirui/commerce-router/internal/store/memstore"
	"github.com/zhouzirui/commerce-router/internal/store/mongostore"
	"github.com/zhouzirui/commerce-router/internal/store/redisstore"
	"github.com/zhouzirui/commerce-router/internal/store/sqlstore"
)

type app struct {
	cfg      *config.Config
	registry *service.Registry
	sessions store.SessionStore
	profiles store.ProfileStore
	health   map[string]store.Pinger
	promReg  *prometheus.Registry
	metrics  *metrics.Metrics
	router   *router.Router
	closers  []func() error
}

func loadRegistry(cfg *config.Config) (*service.Registry, error) {
	items, err := service.LoadFile(cfg.Registry.ServicesFile)
	if err != nil {
		return nil, err
	}
	return service.NewRegistry(items)
}

func wireApp(ctx context.Context, cfg *config.Config) (*app, error) {
	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("wire service registry: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	b := newBackends(cfg.Store, cfg.Session.Retention)
	a := &app{cfg: cfg, registry: registry, promReg: promReg, metrics: m, health: b.health}

	if a.sessions, err = b.sessionStore(ctx); err != nil {
		b.close()
		return nil, fmt.Errorf("wire session store: %w", err)
	}
	if a.profiles, err = b.profileStore(ctx); err != nil {
		b.close()
		return nil, fmt.Errorf("wire profile store: %w", err)
	}
	a.closers = b.closers

	completer, err := buildCompleter(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("wire completion provider: %w", err)
	}

	engine := conversation.NewEngine(completer, a.sessions, registry,
		conversation.WithTimeout(cfg.Session.CompletionTimeout),
		conversation.WithMetrics(m),
	)
	a.router = router.New(intent.NewClassifier(registry.List()), registry, a.sessions, a.profiles, engine,
		router.WithActiveWindow(cfg.Session.ActiveWindow),
		router.WithMetrics(m),
	)
	return a, nil
}

// Close releases store connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.For("main").WithError(err).Warn("failed to close backend")
		}
	}
	a.closers = nil
}

func buildCompleter(ctx context.Context, cfg *config.Config) (completion.Completer, error) {
	switch cfg.AI.Provider {
	case config.ProviderArk:
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			return nil, err
		}
		return completion.NewEino(ctx, chatModel,
			completion.WithToolDialer(completion.DialMCP(version)),
			completion.WithMaxToolIterations(cfg.AI.ToolMaxIterations),
		)
	default:
		if !cfg.Anthropic.Enabled() {
			return nil, errors.New("ANTHROPIC_KEY is required when LLM_PROVIDER=anthropic")
		}
		return completion.NewAnthropic(cfg.Anthropic), nil
	}
}

// backends opens each configured store once, sharing a connection when the
// session and profile backends are the same.
type backends struct {
	cfg       config.StoreConfig
	retention time.Duration
	sql       map[string]*sqlstore.DB
	mongo     *mongostore.Store
	health    map[string]store.Pinger
	closers   []func() error
}

func newBackends(cfg config.StoreConfig, retention time.Duration) *backends {
	return &backends{
		cfg:       cfg,
		retention: retention,
		sql:       make(map[string]*sqlstore.DB),
		health:    make(map[string]store.Pinger),
	}
}

func (b *backends) sessionStore(ctx context.Context) (store.SessionStore, error) {
	switch b.cfg.Backend {
	case config.BackendSQLite, config.BackendPostgres:
		return b.sqlDB(ctx, b.cfg.Backend)
	case config.BackendRedis:
		rs, err := redisstore.Dial(ctx, b.cfg.RedisURL, b.retention)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, rs.Close)
		b.health[config.BackendRedis] = rs
		return rs, nil
	case config.BackendMongo:
		return b.mongoStore(ctx)
	default:
		return memstore.NewSessionStore(b.retention), nil
	}
}

func (b *backends) profileStore(ctx context.Context) (store.ProfileStore, error) {
	switch b.cfg.ProfileBackend {
	case config.BackendSQLite, config.BackendPostgres:
		db, err := b.sqlDB(ctx, b.cfg.ProfileBackend)
		if err != nil {
			return nil, err
		}
		if err := importProfiles(ctx, db, b.cfg.ProfilesFile); err != nil {
			return nil, err
		}
		return db, nil
	case config.BackendMongo:
		if b.cfg.ProfilesFile != "" {
			logging.For("main").Warn("PROFILES_FILE is ignored for the mongo profile backend")
		}
		return b.mongoStore(ctx)
	default:
		return memstore.LoadProfiles(b.cfg.ProfilesFile)
	}
}

func (b *backends) sqlDB(ctx context.Context, backend string) (*sqlstore.DB, error) {
	if db, ok := b.sql[backend]; ok {
		return db, nil
	}
	dialect, dsn := sqlstore.SQLite, b.cfg.SQLitePath
	if backend == config.BackendPostgres {
		dialect, dsn = sqlstore.Postgres, b.cfg.DatabaseURL
	}
	db, err := sqlstore.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, err
	}
	b.sql[backend] = db
	b.closers = append(b.closers, db.Close)
	b.health[backend] = db
	return db, nil
}

func (b *backends) mongoStore(ctx context.Context) (*mongostore.Store, error) {
	if b.mongo != nil {
		return b.mongo, nil
	}
	ms, err := mongostore.Connect(ctx, b.cfg.MongoURI, b.cfg.MongoDB)
	if err != nil {
		return nil, err
	}
	b.mongo = ms
	b.closers = append(b.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ms.Close(ctx)
	})
	b.health[config.BackendMongo] = ms
	return ms, nil
}

func (b *backends) close() {
	(&app{closers: b.closers}).Close()
}

// importProfiles upserts the profiles file into a SQL profile table.
func importProfiles(ctx context.Context, db *sqlstore.DB, path string) error {
	items, err := memstore.ReadProfiles(path)
	if err != nil {
		return err
	}
	for _, p := range items {
		if err := db.PutProfile(ctx, p); err != nil {
			return fmt.Errorf("import profile %s: %w", p.ID, err)
		}
	}
	if len(items) > 0 {
		logging.For("main").WithField("count", len(items)).Info("profiles imported")
	}
	return nil
}
