package main

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	artefactservice "kvault/internal/artefact/service"
	artefactstore "kvault/internal/artefact/store"
	"kvault/internal/blob"
	identityservice "kvault/internal/identity/service"
	"kvault/internal/identity/store/revocation"
	userstore "kvault/internal/identity/store/user"
	"kvault/internal/platform/config"
	"kvault/internal/platform/kafka"
	"kvault/internal/platform/postgres"
	"kvault/internal/platform/redis"
	"kvault/internal/ratelimit"
	regionservice "kvault/internal/region/service"
	regionstore "kvault/internal/region/store"
	httptransport "kvault/internal/transport/http"
	"kvault/pkg/platform/audit"
	auditmemory "kvault/pkg/platform/audit/store/memory"
	auditpostgres "kvault/pkg/platform/audit/store/postgres"
	"kvault/pkg/platform/audit/stream"
	"kvault/pkg/platform/circuit"
)

type tokenRevocations interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// infra holds every backing resource. Nil clients mean the in-memory
// fallback serves that concern.
type infra struct {
	db    *sql.DB
	redis *redis.Client
	kafka *kgo.Client

	regions     regionservice.Store
	users       identityservice.UserStore
	artefacts   artefactservice.Store
	revocations tokenRevocations
	purger      *revocation.PostgresTRL
	auditLog    audit.Store
	blobs       blob.Store
	rateLimits  ratelimit.Store
}

func openInfra(ctx context.Context, cfg config.Server, logger *slog.Logger) (*infra, error) {
	in := &infra{}
	var err error

	if in.db, err = postgres.Open(ctx, cfg.Database); err != nil {
		return nil, err
	}
	if in.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		in.close(logger)
		return nil, err
	}
	if in.kafka, err = kafka.New(cfg.Kafka); err != nil {
		in.close(logger)
		return nil, err
	}
	if in.blobs, err = openBlobs(ctx, cfg.Blob); err != nil {
		in.close(logger)
		return nil, err
	}

	if in.db != nil {
		in.regions = regionstore.NewPostgres(in.db)
		in.users = userstore.NewPostgres(in.db)
		in.artefacts = artefactstore.NewPostgres(in.db)
	} else {
		in.regions = regionstore.NewInMemory()
		in.users = userstore.NewInMemory()
		in.artefacts = artefactstore.NewInMemory()
	}

	switch {
	case in.redis != nil:
		in.revocations = revocation.NewRedisTRL(in.redis.Client)
		in.rateLimits = ratelimit.NewRedis(in.redis.Client)
	case in.db != nil:
		in.purger = revocation.NewPostgresTRL(in.db)
		in.revocations = in.purger
	default:
		in.revocations = revocation.NewInMemoryTRL(nil)
	}
	if in.rateLimits == nil {
		in.rateLimits = ratelimit.NewInMemory()
	}

	in.auditLog = in.openAudit(ctx, cfg, logger)

	logger.InfoContext(ctx, "backends selected",
		"postgres", in.db != nil,
		"redis", in.redis != nil,
		"kafka", in.kafka != nil,
		"s3", cfg.Blob.Bucket != "",
	)
	return in, nil
}

func openBlobs(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	if cfg.Bucket == "" {
		return blob.NewMemory(""), nil
	}
	return blob.NewS3(ctx, cfg)
}

// openAudit picks the store of record and, when brokers are configured,
// mirrors every entry onto Kafka behind a circuit breaker.
func (in *infra) openAudit(ctx context.Context, cfg config.Server, logger *slog.Logger) audit.Store {
	var primary audit.Store
	if in.db != nil {
		primary = auditpostgres.New(in.db)
	} else {
		primary = auditmemory.NewInMemoryStore()
	}
	if in.kafka == nil {
		return primary
	}

	if err := kafka.EnsureTopic(ctx, in.kafka, cfg.Kafka.AuditTopic, 3, 1); err != nil {
		logger.WarnContext(ctx, "could not ensure audit topic",
			"topic", cfg.Kafka.AuditTopic,
			"error", err,
		)
	}
	breaker := circuit.New("audit-stream",
		circuit.WithFailureThreshold(cfg.Audit.BreakerThreshold),
		circuit.WithCooldown(cfg.Audit.BreakerCooldown),
	)
	sink := stream.NewSink(in.kafka, cfg.Kafka.AuditTopic,
		stream.WithBreaker(breaker),
		stream.WithLogger(logger),
	)
	return audit.NewFanout(primary, logger, sink)
}

func (in *infra) healthChecks() map[string]httptransport.HealthCheck {
	checks := map[string]httptransport.HealthCheck{}
	if in.db != nil {
		checks["postgres"] = in.db.PingContext
	}
	if in.redis != nil {
		checks["redis"] = in.redis.Health
	}
	if in.kafka != nil {
		checks["kafka"] = in.kafka.Ping
	}
	return checks
}

func (in *infra) close(logger *slog.Logger) {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			logger.Warn("redis close failed", "error", err)
		}
	}
	if in.db != nil {
		if err := in.db.Close(); err != nil {
			logger.Warn("postgres close failed", "error", err)
		}
	}
}
