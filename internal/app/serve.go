package app

import (
	"context"
	"time"

	"github.com/PatrickalKhouri/ingredient-manager/internal/server"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/health"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/kafka"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/rematch"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/startup"
)

// Version is stamped at build time with -ldflags "-X .../internal/app.Version=...".
var Version = "dev"

const shutdownTimeout = 15 * time.Second

// Serve runs the long-lived process: ops server, product event consumer and the scheduled rematch.
// It returns once ctx is cancelled and everything has been stopped.
func (a *App) Serve(ctx context.Context) error {
	probes := []health.Probe{{Name: "database", Check: a.PingDatabase}}
	if a.Config.RedisEnabled {
		probes = append(probes, health.Probe{Name: "redis", Optional: true, Check: func(ctx context.Context) error {
			if a.redis == nil {
				return errkind.New(errkind.Transient, "redis is not connected")
			}
			return a.redis.Ping(ctx)
		}})
	}
	checker := health.NewChecker(Version, probes...)

	deps := a.dependencies(checker)
	if err := deps.Start(ctx); err != nil {
		_ = a.Close(context.Background())
		return errkind.Wrap(errkind.Fatal, err, "startup")
	}
	checker.SetReady(true)
	a.Logger.WithContext(ctx).WithField("version", Version).Info("Service started")

	<-ctx.Done()
	checker.SetReady(false)
	a.Logger.Info("Shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stopErr := deps.Stop(stopCtx)
	if err := a.Close(stopCtx); err != nil && stopErr == nil {
		stopErr = err
	}
	return stopErr
}

// dependencies builds the startup graph. Connections come first, the services on top of them, and
// the consumers of the services last.
func (a *App) dependencies(checker *health.Checker) *startup.Startup {
	deps := startup.NewStartup(a.Logger, a.Config.StartupMaxAttempts)

	deps.AddDependency(startup.Func{Name: "database", StartFunc: a.ConnectDatabase})
	serviceParents := []string{"database"}

	if a.Config.RedisEnabled {
		deps.AddDependency(startup.Func{Name: "redis", StartFunc: a.ConnectRedis})
		serviceParents = append(serviceParents, "redis")
	}
	kafkaEnabled := len(a.Config.Brokers()) > 0
	if kafkaEnabled {
		deps.AddDependency(startup.Func{Name: "kafka-producer", StartFunc: a.ConnectKafka})
		serviceParents = append(serviceParents, "kafka-producer")
	}

	deps.AddDependency(startup.Func{
		Name:    "services",
		Parents: serviceParents,
		StartFunc: func(ctx context.Context) error {
			services, err := a.Services()
			if err != nil {
				return err
			}
			_, err = services.Cache.Snapshot(ctx)
			return err
		},
	})

	var consumer *kafka.Consumer
	if kafkaEnabled {
		deps.AddDependency(startup.Func{
			Name:    "kafka-consumer",
			Parents: []string{"services"},
			StartFunc: func(ctx context.Context) error {
				consumer = kafka.NewConsumer(kafka.ConsumerConfig{
					Brokers:       a.Config.Brokers(),
					Topic:         a.Config.KafkaProductTopic,
					ConsumerGroup: a.Config.KafkaConsumerGroup,
				}, a.Logger, a.services.Products)
				return consumer.Start(context.WithoutCancel(ctx))
			},
			StopFunc: func(ctx context.Context) error {
				return consumer.Stop()
			},
		})
	}

	if a.Config.RematchSchedule != "" {
		var scheduler *rematch.Scheduler
		deps.AddDependency(startup.Func{
			Name:    "rematch-scheduler",
			Parents: []string{"services"},
			StartFunc: func(ctx context.Context) error {
				var err error
				scheduler, err = rematch.NewScheduler(a.Logger, a.services.Rematch, a.Config.RematchSchedule, a.RematchOptions())
				if err != nil {
					return err
				}
				return scheduler.Start(ctx)
			},
			StopFunc: func(ctx context.Context) error {
				return scheduler.Stop(ctx)
			},
		})
	}

	var ops *server.Server
	deps.AddDependency(startup.Func{
		Name:    "ops-server",
		Parents: []string{"services"},
		StartFunc: func(ctx context.Context) error {
			ops = server.New(server.Config{
				AppName:      a.Config.AppName,
				Port:         a.Config.OpsPort,
				ReadTimeout:  time.Duration(a.Config.HttpServerReadTimeoutSeconds) * time.Second,
				WriteTimeout: time.Duration(a.Config.HttpServerWriteTimeoutSeconds) * time.Second,
			}, a.Logger, checker, a.services.Cache, a.services.Products)
			return ops.Start(ctx)
		},
		StopFunc: func(ctx context.Context) error {
			return ops.Stop(ctx)
		},
	})

	return deps
}
