package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	artefacthandler "kvault/internal/artefact/handler"
	artefactmetrics "kvault/internal/artefact/metrics"
	artefactservice "kvault/internal/artefact/service"
	audithandler "kvault/internal/audit/handler"
	identityhandler "kvault/internal/identity/handler"
	identitymetrics "kvault/internal/identity/metrics"
	identityservice "kvault/internal/identity/service"
	"kvault/internal/identity/token"
	"kvault/internal/platform/config"
	"kvault/internal/platform/httpserver"
	"kvault/internal/platform/logger"
	"kvault/internal/platform/metrics"
	"kvault/internal/ratelimit"
	regionhandler "kvault/internal/region/handler"
	regionmetrics "kvault/internal/region/metrics"
	regionservice "kvault/internal/region/service"
	httptransport "kvault/internal/transport/http"
	"kvault/pkg/platform/audit/publisher"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = time.Hour
	// multipartOverhead leaves room for form fields around the file part.
	multipartOverhead = 1 << 20
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// run wires dependencies, serves until ctx is cancelled and then drains.
func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	in, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.close(log)

	auditLog := publisher.NewPublisher(in.auditLog,
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics()),
	)
	defer auditLog.Close()

	regions := regionservice.New(in.regions,
		regionservice.WithLogger(log),
		regionservice.WithAuditPublisher(auditLog),
		regionservice.WithMetrics(regionmetrics.New()),
	)
	tokens := token.NewService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.TTL)
	identity := identityservice.New(in.users, regions, tokens, in.revocations,
		identityservice.WithLogger(log),
		identityservice.WithAuditPublisher(auditLog),
		identityservice.WithMetrics(identitymetrics.New()),
	)
	artefacts := artefactservice.New(in.artefacts, in.blobs,
		artefactservice.WithLogger(log),
		artefactservice.WithAuditPublisher(auditLog),
		artefactservice.WithMetrics(artefactmetrics.New()),
		artefactservice.WithWriteRetries(cfg.WriteRetries),
		artefactservice.WithLimits(artefactservice.Limits{
			List:      cfg.Limits.ListPageSize,
			Tags:      cfg.Limits.TagLimit,
			Recommend: cfg.Limits.RecommendLimit,
		}),
	)

	if err := seed(ctx, cfg.Seed, regions, identity, log); err != nil {
		return err
	}

	limiter := ratelimit.New(in.rateLimits,
		ratelimit.Policy{Limit: cfg.Auth.Limit, Window: cfg.Auth.Window},
		log,
		ratelimit.WithMetrics(ratelimit.NewMetrics()),
		ratelimit.WithDisabled(cfg.Auth.Disabled),
	)

	identityHTTP := identityhandler.New(identity, log)
	regionHTTP := regionhandler.New(regions, log)
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:       log,
		HTTPMetrics:  metrics.NewHTTP(),
		Tokens:       token.NewMiddlewareAdapter(tokens),
		Revocations:  in.revocations,
		MaxBodyBytes: cfg.Limits.MaxUploadBytes + multipartOverhead,
		MetricsToken: cfg.MetricsToken,
		Checks:       in.healthChecks(),
		PublicLimit:  limiter.PerClient("public"),
		Public:       []httptransport.PublicRegistrar{identityHTTP, regionHTTP},
		Authenticated: []httptransport.Registrar{
			identityHTTP,
			artefacthandler.New(artefacts, log, cfg.Limits.MaxUploadBytes+multipartOverhead),
			audithandler.New(auditLog, log, cfg.Limits.AuditLimit),
		},
		AdminOnly: []httptransport.Registrar{regionHTTP},
	})
	srv := httpserver.New(cfg.Addr, router, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting kvault", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		log.Info("http server stopped")
		return nil
	})
	if in.purger != nil {
		g.Go(func() error {
			purgeRevocations(gctx, in.purger, log)
			return nil
		})
	}
	return g.Wait()
}

// seed creates the configured region and first admin on an empty deployment.
func seed(ctx context.Context, cfg config.SeedConfig, regions *regionservice.Service, identity *identityservice.Service, log *slog.Logger) error {
	if !cfg.Enabled() {
		return nil
	}
	region, err := regions.Ensure(ctx, cfg.RegionName)
	if err != nil {
		return fmt.Errorf("seed region: %w", err)
	}
	admin, err := identity.SeedAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword, region.ID)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.InfoContext(ctx, "seed applied", "region_id", region.ID, "admin_id", admin.ID)
	return nil
}

type expiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

func purgeRevocations(ctx context.Context, p expiredPurger, log *slog.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				log.WarnContext(ctx, "revocation purge failed", "error", err)
				continue
			}
			if n > 0 {
				log.InfoContext(ctx, "purged expired revocations", "count", n)
			}
		}
	}
}
