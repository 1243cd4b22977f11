package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/turtacn/rid-registry/internal/application/ingest"
	"github.com/turtacn/rid-registry/internal/config"
	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/database/postgres"
	"github.com/turtacn/rid-registry/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/rid-registry/internal/infrastructure/database/redis"
	"github.com/turtacn/rid-registry/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/rid-registry/internal/infrastructure/storage"
	"github.com/turtacn/rid-registry/internal/infrastructure/storage/minio"
	"github.com/turtacn/rid-registry/internal/infrastructure/tabular"
	"github.com/turtacn/rid-registry/internal/intelligence/entitykind"
	"github.com/turtacn/rid-registry/internal/interfaces/http/handlers"
)

// ObjectStore is the part of the object storage client the commands use.
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// Runtime holds the collaborators wired from configuration.  Optional
// integrations that are disabled stay nil.
type Runtime struct {
	Service   *ingest.Service
	Snapshots registry.SnapshotRepository
	Objects   ObjectStore
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.RegistryMetrics
	Checks    []handlers.HealthChecker

	closers []func() error
	logger  logging.Logger
}

func (r *Runtime) onClose(fn func() error) { r.closers = append(r.closers, fn) }

// Close releases connections in reverse order of acquisition.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn("close failed", logging.Err(err))
		}
	}
	r.closers = nil
}

// newRuntime is replaced in tests.
var newRuntime = buildRuntime

func buildRuntime(ctx context.Context, cfg *config.Config, log logging.Logger) (_ *Runtime, err error) {
	rt := &Runtime{logger: log}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	pool, err := postgres.NewConnectionPool(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	rt.onClose(func() error { postgres.Close(pool); return nil })
	rt.Checks = append(rt.Checks, handlers.CheckFunc("postgres", func(ctx context.Context) error {
		return postgres.HealthCheck(ctx, pool)
	}))

	repos := ingest.Repositories{
		Objects:       repositories.NewObjectRepository(pool, log),
		Persons:       repositories.NewPersonRepository(pool, log),
		Organizations: repositories.NewOrganizationRepository(pool, log),
		Countries:     repositories.NewCountryRepository(pool),
		Relations:     repositories.NewRelationRepository(pool, log),
		Snapshots:     repositories.NewSnapshotRepository(pool, log),
		Categories:    repositories.NewCategoryRepository(pool),
	}
	rt.Snapshots = repos.Snapshots

	classifier, err := entitykind.NewClassifier(
		entitykind.Config{MinLength: cfg.Ingest.ClassifierMinLength, CacheSize: cfg.Ingest.ClassifierCacheSize},
		entitykind.DefaultStrategies(cfg.Ingest.ClassifierMinLength, nil), log)
	if err != nil {
		return nil, err
	}

	deps := ingest.ServiceDeps{
		Repos:      repos,
		Loader:     tabular.NewLoader(tabular.WithLogger(log)),
		Classifier: classifier,
		Parser:     entitykind.WhitespaceNameParser{},
	}

	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		rt.onClose(rc.Close)
		rt.Checks = append(rt.Checks, handlers.CheckFunc("redis", rc.Ping))
		deps.Locker = redis.NewRunLocker(rc, cfg.Ingest.LockTTL, log)
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), log)
		if err != nil {
			return nil, err
		}
		rt.onClose(producer.Close)
		deps.Publisher = kafka.NewSnapshotPublisher(producer, cfg.Kafka.Topic, log)
	}

	var objects storage.ObjectOpener
	if cfg.MinIO.Enabled {
		mc, err := minio.NewClient(ctx, cfg.MinIO, log)
		if err != nil {
			return nil, err
		}
		rt.onClose(mc.Close)
		rt.Checks = append(rt.Checks, handlers.CheckFunc("minio", mc.HealthCheck))
		rt.Objects = mc
		objects = mc
	}
	deps.Source = storage.NewSource(objects, "", log)

	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			Subsystem:            cfg.Metrics.Subsystem,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, log)
		if err != nil {
			return nil, err
		}
		rt.Collector = collector
		rt.Metrics = prometheus.NewRegistryMetrics(collector)
		deps.Metrics = rt.Metrics
	}

	rt.Service, err = ingest.NewService(deps, serviceConfig(cfg.Ingest), log)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func serviceConfig(in config.IngestConfig) ingest.ServiceConfig {
	return ingest.ServiceConfig{
		Engine: ingest.EngineConfig{
			LookupBatchSize: in.LookupBatchSize,
			CreateBatchSize: in.CreateBatchSize,
			UpdateBatchSize: in.UpdateBatchSize,
			MaxLoggedErrors: in.MaxLoggedErrors,
		},
		Relations: ingest.RelationConfig{
			DeleteBatchSize: in.EdgeDeleteBatchSize,
			InsertBatchSize: in.EdgeInsertBatchSize,
		},
		ChunkSize:   in.EntityChunkSize,
		SlugRetries: in.SlugRetries,
	}
}

// openRuntime wires the runtime for the command's configuration.
func openRuntime(cmd *cobra.Command, cliCtx *CLIContext) (*Runtime, error) {
	return newRuntime(cmd.Context(), cliCtx.Config, cliCtx.Logger)
}
