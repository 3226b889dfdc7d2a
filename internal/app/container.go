package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/acme/lead-engagement/internal/api/handlers"
	"github.com/acme/lead-engagement/internal/config"
	"github.com/acme/lead-engagement/internal/crm"
	"github.com/acme/lead-engagement/internal/dedup"
	"github.com/acme/lead-engagement/internal/dispatcher"
	"github.com/acme/lead-engagement/internal/followup"
	"github.com/acme/lead-engagement/internal/infra/db"
	"github.com/acme/lead-engagement/internal/infra/redis"
	"github.com/acme/lead-engagement/internal/interpreter"
	"github.com/acme/lead-engagement/internal/lifecycle"
	"github.com/acme/lead-engagement/internal/notify"
	"github.com/acme/lead-engagement/internal/queue"
	"github.com/acme/lead-engagement/internal/repository"
	pgrepo "github.com/acme/lead-engagement/internal/repository/postgres"
	scyllarepo "github.com/acme/lead-engagement/internal/repository/scylla"
	"github.com/acme/lead-engagement/internal/resolver"
	callsvc "github.com/acme/lead-engagement/internal/service/call"
	"github.com/acme/lead-engagement/internal/telephony"
	telephonyhttp "github.com/acme/lead-engagement/internal/telephony/http"
	telephonymock "github.com/acme/lead-engagement/internal/telephony/mock"
	"github.com/acme/lead-engagement/internal/worker/event"
	"github.com/acme/lead-engagement/pkg/clock"
	apperrors "github.com/acme/lead-engagement/pkg/errors"
	"github.com/acme/lead-engagement/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		repositories *repositories
		services     *services
		providers    *providers
		publisher    *queue.EventPublisher
		timers       *followup.AsynqRegistry
	}
}

type repositories struct {
	Leads     repository.LeadRepository
	Schedules repository.JobScheduleRepository
	Calls     repository.CallStore

	callStore *scyllarepo.CallStore
}

type services struct {
	Call       *callsvc.Service
	Dispatcher *dispatcher.Dispatcher
	Followup   *followup.Scheduler
	Lifecycle  *lifecycle.Handler
	Notifier   *notify.Notifier
}

type providers struct {
	Telephony   telephony.Provider
	CRM         crm.Client
	Interpreter *interpreter.Interpreter
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		_ = pg.Close(ctx)
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		_ = scylla.Close()
		_ = pg.Close(ctx)
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		_ = redisClient.Close()
		_ = scylla.Close()
		_ = pg.Close(ctx)
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	container := &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}

	return container, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		cfg := c.Config
		loc := cfg.Scheduler.Location()

		callStore := scyllarepo.NewCallStore(c.Scylla.Session())
		repos := &repositories{
			Leads:     pgrepo.NewLeadRepository(c.Postgres.DB()),
			Schedules: pgrepo.NewJobScheduleRepository(c.Postgres.DB()),
			Calls:     callStore,
			callStore: callStore,
		}

		provs := &providers{
			Telephony:   c.newTelephony(),
			CRM:         c.newCRM(),
			Interpreter: interpreter.New(c.newModel()),
		}

		notifier := notify.New(
			notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password,
				cfg.SMTP.FromEmail, cfg.SMTP.FromName, cfg.SMTP.RequestTimeout),
			notify.NewHTTPSMSSender(cfg.SMS.BaseURL, cfg.SMS.AccountSID, cfg.SMS.AuthToken,
				cfg.SMS.FromNumber, cfg.SMS.RequestTimeout),
			dedup.NewRedis(c.Redis.Inner(), cfg.Dedup.KeyPrefix, cfg.Dedup.NotificationWindow),
			cfg.SMTP.VerifyURL,
			c.Logger,
		)

		calls := callsvc.NewService(repos.Leads, repos.Calls, provs.Telephony, provs.CRM, callsvc.Config{
			FromNumber:    cfg.CallProvider.FromNumber,
			DefaultRegion: cfg.CallProvider.DefaultRegion,
			Timeout:       cfg.CallProvider.RequestTimeout,
		}, clock.System{}, c.Logger)

		disp := dispatcher.New(repos.Leads, repos.Schedules, calls, provs.Telephony, dispatcher.Config{
			TickInterval:       cfg.Scheduler.TickInterval,
			MaxBatchSize:       cfg.Scheduler.MaxBatchSize,
			CallPacing:         cfg.Scheduler.CallPacing,
			CallbackLookBehind: cfg.Scheduler.CallbackLookBehind,
			Location:           loc,
			Prompts:            cfg.CallProvider.Prompts,
		}, clock.System{}, c.Logger)

		c.components.timers = followup.NewAsynqRegistry(c.Redis.AsynqOpt(), cfg.Asynq.Queue)
		scheduler := followup.New(repos.Schedules, c.components.timers, disp, loc, clock.System{}, c.Logger)

		params := resolver.Params{
			Location:             loc,
			FallbackHour:         cfg.Outcome.FallbackHour,
			BusyOffsetDays:       cfg.Outcome.BusyOffsetDays,
			RescheduleOffsetDays: cfg.Outcome.RescheduleOffsetDays,
		}
		handler := lifecycle.NewHandler(lifecycle.Deps{
			Leads:       repos.Leads,
			Calls:       repos.Calls,
			Schedules:   repos.Schedules,
			Events:      dedup.NewRedis(c.Redis.Inner(), cfg.Dedup.KeyPrefix, cfg.Dedup.EventWindow),
			Interpreter: provs.Interpreter,
			Notifier:    notifier,
			CRM:         provs.CRM,
			Params:      params,
			Clock:       clock.System{},
			Logger:      c.Logger,
		})

		c.components.repositories = repos
		c.components.providers = provs
		c.components.services = &services{
			Call:       calls,
			Dispatcher: disp,
			Followup:   scheduler,
			Lifecycle:  handler,
			Notifier:   notifier,
		}
		c.components.publisher = queue.NewEventPublisher(c.Kafka, cfg.Kafka.CallEventTopic)
	})
}

func (c *Container) newTelephony() telephony.Provider {
	cfg := c.Config.CallProvider
	if cfg.ProviderName == "" || cfg.ProviderName == "mock" {
		c.Logger.Warn("using mock call provider")
		return telephonymock.NewProvider()
	}
	return telephonyhttp.NewProvider(telephonyhttp.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.RequestTimeout,
		Agents:  cfg.Agents,
	})
}

func (c *Container) newCRM() crm.Client {
	cfg := c.Config.CRM
	if !cfg.Enabled {
		return crm.Noop{}
	}
	return crm.NewHTTPClient(cfg.BaseURL, cfg.APIKey, cfg.RequestTimeout)
}

func (c *Container) newModel() interpreter.Model {
	cfg := c.Config.LLM
	if cfg.APIKey == "" {
		c.Logger.Warn("llm api key not configured, every outcome uses the fallback")
		return unconfiguredModel{}
	}
	model, err := interpreter.NewGeminiModel(context.Background(), cfg.APIKey, cfg.Model, cfg.RequestTimeout)
	if err != nil {
		c.Logger.Error("llm client init failed, every outcome uses the fallback", zap.Error(err))
		return unconfiguredModel{}
	}
	return model
}

// unconfiguredModel fails every completion so the handler takes the fallback path.
type unconfiguredModel struct{}

func (unconfiguredModel) Complete(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("%w: llm not configured", apperrors.ErrUnavailable)
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Services exposes initialized services.
func (c *Container) Services() *services {
	c.initComponents()
	return c.components.services
}

// Providers exposes external providers.
func (c *Container) Providers() *providers {
	c.initComponents()
	return c.components.providers
}

// Publisher exposes the call event publisher.
func (c *Container) Publisher() *queue.EventPublisher {
	c.initComponents()
	return c.components.publisher
}

// HandlerSet builds HTTP handlers with dependencies.
func (c *Container) HandlerSet() *handlers.HandlerSet {
	repos, svc := c.Repositories(), c.Services()
	return handlers.NewHandlerSet(handlers.Deps{
		Events:    c.Publisher(),
		Schedules: repos.Schedules,
		Editor:    svc.Followup,
		Calls:     svc.Dispatcher,
		History:   repos.callStore,
		Health: map[string]handlers.HealthCheck{
			"postgres": c.Postgres.Ping,
			"redis":    c.Redis.Ping,
			"scylla":   func(context.Context) error { return c.Scylla.Ping() },
		},
		Logger: c.Logger,
	})
}

// EventWorker builds the Kafka consumer that feeds the lifecycle handler.
func (c *Container) EventWorker() *event.Worker {
	cfg := c.Config.Kafka
	reader := c.Kafka.NewReader(cfg.CallEventTopic, cfg.ConsumerGroupID+"-events")
	return event.New(reader, c.Services().Lifecycle, c.Logger)
}

// FollowupServer builds the asynq server that delivers job schedule timers.
func (c *Container) FollowupServer() (*asynq.Server, *asynq.ServeMux) {
	return followup.NewServer(c.Redis.AsynqOpt(), c.Config.Asynq.Queue, c.Config.Asynq.Concurrency, c.Services().Followup)
}

// EnsureSchema creates the Scylla tables. Postgres migrates on connect.
func (c *Container) EnsureSchema(ctx context.Context) error {
	return c.Repositories().callStore.EnsureSchema(ctx)
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	partitions := c.Config.Kafka.Partitions
	if partitions <= 0 {
		partitions = 12
	}
	return c.Kafka.EnsureTopics(ctx, []string{c.Config.Kafka.CallEventTopic}, partitions, 1)
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.components.publisher != nil {
		if err := c.components.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event publisher close: %w", err))
		}
	}
	if c.components.timers != nil {
		if err := c.components.timers.Close(); err != nil {
			errs = append(errs, fmt.Errorf("timer registry close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	return errors.Join(errs...)
}
