package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/inkfold/inkfold/internal/account"
	accountdomain "github.com/inkfold/inkfold/internal/account/domain"
	"github.com/inkfold/inkfold/internal/clock"
	"github.com/inkfold/inkfold/internal/config"
	"github.com/inkfold/inkfold/internal/credit"
	creditdomain "github.com/inkfold/inkfold/internal/credit/domain"
	"github.com/inkfold/inkfold/internal/generation"
	generationdomain "github.com/inkfold/inkfold/internal/generation/domain"
	"github.com/inkfold/inkfold/internal/observability"
	obsmiddleware "github.com/inkfold/inkfold/internal/observability/logger"
	obsmetrics "github.com/inkfold/inkfold/internal/observability/metrics"
	obstracing "github.com/inkfold/inkfold/internal/observability/tracing"
	"github.com/inkfold/inkfold/internal/payment"
	paymentdomain "github.com/inkfold/inkfold/internal/payment/domain"
	"github.com/inkfold/inkfold/internal/plan"
	"github.com/inkfold/inkfold/internal/ratelimit"
	"github.com/inkfold/inkfold/internal/usage"
	usagedomain "github.com/inkfold/inkfold/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	clock.Module,
	plan.Module,
	account.Module,
	credit.Module,
	payment.Module,
	generation.Module,
	usage.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
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
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	accountSvc accountdomain.Service
	creditSvc  creditdomain.Service
	usageSvc   usagedomain.Service
	webhookSvc paymentdomain.WebhookService
	generator  generationdomain.Generator
	limiter    *ratelimit.RequestLimiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	AccountSvc accountdomain.Service
	CreditSvc  creditdomain.Service
	UsageSvc   usagedomain.Service
	WebhookSvc paymentdomain.WebhookService
	Generator  generationdomain.Generator
	Limiter    *ratelimit.RequestLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("server"),
		genID:      p.GenID,
		accountSvc: p.AccountSvc,
		creditSvc:  p.CreditSvc,
		usageSvc:   p.UsageSvc,
		webhookSvc: p.WebhookSvc,
		generator:  p.Generator,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/accounts", s.ProvisionAccount)

	authed := v1.Group("")
	authed.Use(s.AccountRequired())

	authed.GET("/account/profile", s.GetProfile)
	authed.DELETE("/account", s.AnonymizeAccount)

	authed.GET("/credits/balance", s.GetBalance)
	authed.GET("/credits/history", s.GetHistory)
	authed.GET("/usage", s.GetUsage)

	authed.POST("/generations", s.RateLimit("generations"), s.CreateGeneration)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/payment/:provider", s.HandlePaymentWebhook)
}
