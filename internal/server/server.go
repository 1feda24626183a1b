package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/bookpost/internal/config"
	"github.com/smallbiznis/bookpost/internal/entitlement"
	entitlementdomain "github.com/smallbiznis/bookpost/internal/entitlement/domain"
	"github.com/smallbiznis/bookpost/internal/idempotency"
	"github.com/smallbiznis/bookpost/internal/ledgerclient"
	"github.com/smallbiznis/bookpost/internal/observability"
	obsmiddleware "github.com/smallbiznis/bookpost/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/bookpost/internal/observability/metrics"
	obstracing "github.com/smallbiznis/bookpost/internal/observability/tracing"
	"github.com/smallbiznis/bookpost/internal/posting"
	postingdomain "github.com/smallbiznis/bookpost/internal/posting/domain"
	"github.com/smallbiznis/bookpost/internal/ratelimit"
	"github.com/smallbiznis/bookpost/internal/usage"
	"github.com/smallbiznis/bookpost/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	entitlement.Module,
	usage.Module,
	idempotency.Module,
	ledgerclient.Module,
	ratelimit.Module,
	posting.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *telemetry.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(HTTPMetrics(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type engineParams struct {
	fx.In

	ObsCfg      observability.Config
	HTTPMetrics *telemetry.Metrics `optional:"true"`
}

func registerGin(p engineParams) *gin.Engine {
	return NewEngine(p.ObsCfg, p.HTTPMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	postingSvc postingdomain.Service
	gate       entitlementdomain.Gate
	limiter    *ratelimit.PostingLimiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	PostingSvc postingdomain.Service
	Gate       entitlementdomain.Gate
	Limiter    *ratelimit.PostingLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		postingSvc: p.PostingSvc,
		gate:       p.Gate,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")
	api.Use(TenantContext())

	api.POST("/postings", s.PostingRateLimit(), s.SubmitPostings)
	api.GET("/usage", s.GetUsage)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
