// Package app wires configuration, storage, messaging and the domain services into one process.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/PatrickalKhouri/ingredient-manager/config"
	aliasrepo "github.com/PatrickalKhouri/ingredient-manager/internal/repositories/alias"
	catalogrepo "github.com/PatrickalKhouri/ingredient-manager/internal/repositories/catalog"
	"github.com/PatrickalKhouri/ingredient-manager/internal/repositories/matchrecord"
	"github.com/PatrickalKhouri/ingredient-manager/internal/repositories/product"
	"github.com/PatrickalKhouri/ingredient-manager/internal/repositories/productscore"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/catalog"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/curation"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/database"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/events"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/kafka"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/matching"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/products"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/redis"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/rematch"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/scoring"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/tracing"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/tracing/exporters"
	"github.com/jmoiron/sqlx"
)

// Services are the domain operations the commands drive.
type Services struct {
	Cache    *matching.CatalogCache
	Matching *matching.Service
	Curation *curation.Service
	Scoring  *scoring.Service
	Products *products.Service
	Catalog  *catalog.Service
	Rematch  *rematch.Orchestrator
}

type App struct {
	Config *config.Config
	Logger ectologger.Logger

	db       database.DB
	raw      *sqlx.DB
	redis    *redis.Client
	producer *kafka.Producer

	shutdownTracing func(context.Context) error
	services        *Services
}

func New(cfg *config.Config, logger ectologger.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger,
	}
}

// SetupTracing installs the tracer provider; spans are discarded unless OTLP export is enabled.
func (a *App) SetupTracing(ctx context.Context) error {
	otlp := exporters.DefaultOTLPConfig()
	otlp.Endpoint = a.Config.OTLPEndpoint
	otlp.Protocol = a.Config.OTLPProtocol
	otlp.Insecure = a.Config.OTLPInsecure

	shutdown, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     a.Config.OTLPEnabled,
		ServiceName: a.Config.AppName,
		OTLP:        otlp,
	})
	if err != nil {
		return errkind.Wrap(errkind.Fatal, err, "setup tracing")
	}
	a.shutdownTracing = shutdown
	return nil
}

func (a *App) connectionConfig() database.ConnectionConfig {
	return database.ConnectionConfig{
		Driver:          a.Config.DatabaseDriver,
		Host:            a.Config.DatabaseHost,
		Port:            a.Config.DatabasePort,
		User:            a.Config.DatabaseUserName,
		Password:        a.Config.DatabasePassword,
		Name:            a.Config.DatabaseName,
		SSLMode:         a.Config.DatabaseSSLMode,
		MaxOpenConns:    a.Config.DatabaseMaxOpenConns,
		MaxIdleConns:    a.Config.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.Config.DatabaseConnMaxLifetime,
	}
}

// ConnectDatabase opens the pool once; later calls are no-ops.
func (a *App) ConnectDatabase(ctx context.Context) error {
	if a.db != nil {
		return nil
	}
	db, raw, err := database.Open(ctx, a.connectionConfig(), a.Logger)
	if err != nil {
		return errkind.Wrap(errkind.Transient, err, "connect database")
	}
	a.db, a.raw = db, raw
	return nil
}

func (a *App) PingDatabase(ctx context.Context) error {
	if a.raw == nil {
		return errkind.New(errkind.Transient, "database is not connected")
	}
	return a.raw.PingContext(ctx)
}

// ConnectRedis connects when REDIS_ENABLED is set.
func (a *App) ConnectRedis(ctx context.Context) error {
	if !a.Config.RedisEnabled || a.redis != nil {
		return nil
	}
	client, err := redis.NewClient(ctx, redis.Config{
		Host:     a.Config.RedisHost,
		Port:     a.Config.RedisPort,
		Password: a.Config.RedisPassword,
		DB:       a.Config.RedisDB,
	}, a.Logger)
	if err != nil {
		return err
	}
	a.redis = client
	return nil
}

// ConnectKafka builds the event producer when brokers are configured.
func (a *App) ConnectKafka(ctx context.Context) error {
	brokers := a.Config.Brokers()
	if len(brokers) == 0 || a.producer != nil {
		return nil
	}
	cfg := kafka.DefaultProducerConfig()
	cfg.Brokers = brokers
	cfg.Topic = a.Config.KafkaEventsTopic
	cfg.Compression = a.Config.KafkaCompression
	a.producer = kafka.NewProducer(cfg, a.Logger)

	a.Logger.WithContext(ctx).WithFields(map[string]any{
		"brokers": brokers,
		"topic":   cfg.Topic,
	}).Info("Kafka producer ready")
	return nil
}

func (a *App) publisher() events.Publisher {
	if a.producer == nil {
		return events.NoopPublisher{}
	}
	return a.producer
}

func (a *App) locker() rematch.Locker {
	if a.redis == nil {
		return nil
	}
	return redis.NewLocker(a.redis)
}

// Services builds the domain services over the connected stores. The database must be connected.
func (a *App) Services() (*Services, error) {
	if a.services != nil {
		return a.services, nil
	}
	if a.db == nil {
		return nil, errkind.New(errkind.Fatal, "database is not connected")
	}

	keywords, err := catalog.LoadKeywords(a.Config.FunctionKeywordsPath)
	if err != nil {
		return nil, errkind.Wrap(errkind.InvalidArgument, err, "load function keywords")
	}
	r01, err := scoring.LoadR01Config(a.Config.R01ConfigPath)
	if err != nil {
		return nil, errkind.Wrap(errkind.InvalidArgument, err, "load R01 config")
	}
	exceptions, err := scoring.LoadExceptions(a.Config.ExceptionsPath)
	if err != nil {
		return nil, errkind.Wrap(errkind.InvalidArgument, err, "load exceptions dataset")
	}

	catalogs := catalogrepo.NewRepository(a.db, a.Logger)
	aliases := aliasrepo.NewRepository(a.db, a.Logger)
	matches := matchrecord.NewRepository(a.db, a.Logger)
	productStore := product.NewRepository(a.db, a.Logger)
	scores := productscore.NewRepository(a.db, a.Logger)
	publisher := a.publisher()

	cache := matching.NewCatalogCache(catalogs, a.Logger)
	matcher := matching.NewService(a.Logger, cache, aliases, matches, productStore, publisher, matching.DefaultConfig())

	a.services = &Services{
		Cache:    cache,
		Matching: matcher,
		Curation: curation.NewService(a.Logger, catalogs, aliases, matches, publisher),
		Scoring:  scoring.NewService(a.Logger, productStore, matches, catalogs, scores, publisher, r01, exceptions),
		Products: products.NewService(a.Logger, productStore, matches, catalogs, matcher),
		Catalog:  catalog.NewService(a.Logger, catalogs, keywords),
		Rematch:  rematch.NewOrchestrator(a.Logger, matcher, productStore, matches, a.locker()),
	}
	return a.services, nil
}

// Open connects every configured store and builds the services, for one-shot commands.
func (a *App) Open(ctx context.Context) (*Services, error) {
	if err := a.ConnectDatabase(ctx); err != nil {
		return nil, err
	}
	if err := a.ConnectRedis(ctx); err != nil {
		return nil, err
	}
	if err := a.ConnectKafka(ctx); err != nil {
		return nil, err
	}
	return a.Services()
}

// RematchOptions are the configured bulk defaults.
func (a *App) RematchOptions() rematch.Options {
	return rematch.Options{
		Concurrency:    a.Config.RematchConcurrency,
		Retries:        a.Config.RematchRetries,
		Timeout:        a.Config.RematchTimeout,
		ReportInterval: a.Config.RematchProgressInterval,
		LockTTL:        a.Config.RematchLockTTL,
	}
}

// Migrate applies the schema migrations from the configured folder.
func (a *App) Migrate(ctx context.Context) error {
	if err := a.ConnectDatabase(ctx); err != nil {
		return err
	}
	version := a.Config.DatabaseMigrationVersion
	if version < 0 {
		version = 0
	}
	migrations := database.NewMigrationService(a.Logger, &database.MigrationConfig{
		MigrationFolderPath: a.Config.DatabaseMigrationFolderPath,
		Version:             uint(version),
		Force:               a.Config.DatabaseMigrationForce,
		AutoRollback:        a.Config.DatabaseMigrationAutoRollback,
	})
	if err := migrations.MigratePostgres(a.raw.DB, a.Config.DatabaseName); err != nil {
		return errkind.Wrap(errkind.Fatal, err, "migrate database")
	}
	return nil
}

// Close releases every connection that was opened, flushing pending events and spans first.
func (a *App) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	if a.producer != nil {
		errs = append(errs, a.producer.Close())
		a.producer = nil
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
		a.redis = nil
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db, a.raw = nil, nil
	}
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(ctx))
		a.shutdownTracing = nil
	}
	return errors.Join(errs...)
}
