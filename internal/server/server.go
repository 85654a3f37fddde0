package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/planely/kassa/internal/config"
	"github.com/planely/kassa/internal/locker"
	"github.com/planely/kassa/internal/observability"
	obsmiddleware "github.com/planely/kassa/internal/observability/logger"
	obsmetrics "github.com/planely/kassa/internal/observability/metrics"
	obstracing "github.com/planely/kassa/internal/observability/tracing"
	"github.com/planely/kassa/internal/payment"
	paymentdomain "github.com/planely/kassa/internal/payment/domain"
	"github.com/planely/kassa/internal/subscription"
	subscriptiondomain "github.com/planely/kassa/internal/subscription/domain"
	"github.com/planely/kassa/internal/tkassa"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	tkassa.Module,
	locker.Module,
	payment.Module,
	subscription.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine          *gin.Engine
	cfg             config.Config
	paymentSvc      paymentdomain.Service
	subscriptionSvc subscriptiondomain.Service
	metrics         *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	PaymentSvc      paymentdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	Metrics         *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		paymentSvc:      p.PaymentSvc,
		subscriptionSvc: p.SubscriptionSvc,
		metrics:         p.Metrics,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	{
		api.POST("/payments", s.CreatePayment)
		api.GET("/payments", s.ListPayments)
		api.GET("/payments/:orderId", s.GetPayment)
		api.POST("/payments/:orderId/state", s.SyncPaymentState)
		api.POST("/payments/:orderId/cancel", s.CancelPayment)

		api.GET("/subscriptions/:userId", s.GetSubscription)
		api.POST("/subscriptions/:userId/cancel", s.CancelSubscriptionAtPeriodEnd)
	}
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/tkassa", s.HandlePaymentWebhook)
}
