package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	domainaudit "github.com/scho1ar-go/internal/domain/audit"
	"github.com/scho1ar-go/internal/domain/cloudaccount"
	"github.com/scho1ar-go/internal/domain/job"
	"github.com/scho1ar-go/internal/services/api/handlers"
	"github.com/scho1ar-go/internal/services/api/rbac"
	auditsvc "github.com/scho1ar-go/internal/services/audit/service"
	accountrepo "github.com/scho1ar-go/internal/services/cloudaccounts/repository"
	accountsvc "github.com/scho1ar-go/internal/services/cloudaccounts/service"
	"github.com/scho1ar-go/internal/services/cloudaccounts/syncer"
	"github.com/scho1ar-go/internal/services/jobs/lifecycle"
	jobrepo "github.com/scho1ar-go/internal/services/jobs/repository"
	"github.com/scho1ar-go/internal/services/jobs/scheduler"
	"github.com/scho1ar-go/internal/services/jobs/worker"
	"github.com/scho1ar-go/pkg/audit"
	"github.com/scho1ar-go/pkg/auth/jwks"
	"github.com/scho1ar-go/pkg/config"
	"github.com/scho1ar-go/pkg/database"
	"github.com/scho1ar-go/pkg/events"
	"github.com/scho1ar-go/pkg/logger"
	"github.com/scho1ar-go/pkg/ratelimit"
	"github.com/scho1ar-go/pkg/telemetry"
)

// Version is reported by /health and the API banner.
const Version = "0.1.0"

type Server struct {
	config     *config.Config
	logger     logger.Logger
	httpServer *http.Server
	db         *database.DB
	redis      *redis.Client
	publisher  events.Publisher
	sink       *audit.AsyncSink
	pool       *worker.Pool
	scheduler  *scheduler.SyncScheduler
	telemetry  *telemetry.Telemetry
}

func New(cfg *config.Config, log logger.Logger) (*Server, error) {
	s := &Server{config: cfg, logger: log}

	tel, err := telemetry.New(cfg.ToTelemetryConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.telemetry = tel

	db, err := database.New(cfg.Database.ToDatabaseConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = db
	if err := db.Migrate(&cloudaccount.CloudAccount{}, &job.Job{}, &domainaudit.SecurityAuditEvent{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := db.RegisterPoolMetrics(prometheus.DefaultRegisterer, "scho1ar"); err != nil {
		log.Warn("failed to register database pool metrics", "error", err)
	}

	if cfg.Redis.Enabled {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := s.redis.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}

	if cfg.Kafka.Enabled {
		s.publisher = events.NewKafkaPublisher(cfg.Kafka.ToKafkaConfig())
	}
	s.sink = auditsvc.NewAuditSink(db, s.publisher, log)

	keys := jwks.NewKeyCache(
		jwks.NewHTTPProvider(cfg.Auth.JWKSURL, cfg.Auth.FetchTimeoutDuration(), log),
		cfg.Auth.KeyCacheDuration(),
		log,
	)
	verifier := jwks.NewVerifier(cfg.Auth.ToVerifierConfig(), keys, log)

	policy, err := rbac.NewPolicy(db, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load role policy: %w", err)
	}

	jobs := jobrepo.NewJobRepository(db)
	accounts := accountrepo.NewCloudAccountRepository(db)
	queue := worker.NewQueue(cfg.Jobs.QueueSize)
	manager := lifecycle.NewManager(jobs, queue, log)

	identity, err := syncer.NewSTSChecker(syncer.STSConfig{Region: cfg.AWS.Region, Endpoint: cfg.AWS.Endpoint})
	if err != nil {
		return nil, err
	}
	s.pool = worker.NewPool(worker.Config{
		Workers:     cfg.Jobs.Workers,
		TaskTimeout: cfg.Jobs.TaskTimeoutDuration(),
	}, queue, manager, log)
	s.pool.Register(job.KindCloudAccountSync, syncer.New(accounts, identity, log).Run)

	if cfg.Jobs.SyncSchedule != "" {
		s.scheduler, err = scheduler.NewSyncScheduler(cfg.Jobs.SyncSchedule, accounts, manager, jobs, queue, s.redis, log)
		if err != nil {
			return nil, err
		}
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		if s.redis != nil {
			limiter = ratelimit.NewRedisLimiter(s.redis, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		} else {
			limiter = ratelimit.NewTokenBucketLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		}
	}

	engine := NewRouter(Deps{
		Handlers:    handlers.NewHandlers(accountsvc.NewCloudAccountService(accounts, manager, s.sink, log), manager, db, Version, log),
		Verifier:    verifier,
		Sink:        s.sink,
		Policy:      policy,
		Limiter:     limiter,
		Telemetry:   tel,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      log,
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
	return s, nil
}

// Start runs the workers and the scheduler, then serves HTTP until Shutdown.
func (s *Server) Start() error {
	s.pool.Start()
	if s.scheduler != nil {
		s.scheduler.Start()
	}

	s.logger.Info("Starting HTTP server", "addr", s.httpServer.Addr, "job_workers", s.pool.Size())
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, lets running jobs finish, flushes the
// audit sink and closes connections. Jobs still queued stay pending.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	if s.scheduler != nil {
		s.scheduler.Stop(ctx)
	}
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to stop workers", "error", err)
	}
	if err := s.sink.Close(ctx); err != nil {
		s.logger.Error("Failed to flush audit events", "error", err)
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Error("Failed to close event publisher", "error", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close Redis", "error", err)
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", "error", err)
	}
	if err := s.telemetry.Close(ctx); err != nil {
		s.logger.Error("Failed to flush traces", "error", err)
	}
	return nil
}
