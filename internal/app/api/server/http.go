package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/inkwell/paywall/docs"
	"github.com/inkwell/paywall/internal/app/api/handlers"
	"github.com/inkwell/paywall/internal/app/service/checkout"
	"github.com/inkwell/paywall/internal/app/service/dispatcher"
	"github.com/inkwell/paywall/internal/app/service/entitlement"
	eventlog "github.com/inkwell/paywall/internal/app/service/event_log"
	"github.com/inkwell/paywall/internal/app/service/gate"
	"github.com/inkwell/paywall/internal/app/service/verifier"
	stripepf "github.com/inkwell/paywall/internal/platform/stripe"
	cfgpkg "github.com/inkwell/paywall/pkg/config"

	mw "github.com/inkwell/paywall/internal/app/api/middleware"

	metrics "github.com/inkwell/paywall/pkg/metrics"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// The webhook contract promises 405 on non-POST.
	r.HandleMethodNotAllowed = true
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(
	r *gin.Engine,
	log *zap.SugaredLogger,
	cfg *cfgpkg.Config,
	provider stripepf.Provider,
	disp *dispatcher.Dispatcher,
	evlog *eventlog.Service,
	v *verifier.Service,
	co *checkout.Service,
	g *gate.Service,
	store entitlement.Store,
) {
	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}
	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Billing group. The webhook stays outside auth: Stripe authenticates
	// with its signature header, not a bearer token.
	billing := r.Group("/api/v1/billing")
	billing.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterBillingWebhookRoutes(billing, provider, disp, evlog, log)

	billingAuthed := billing.Group("/")
	billingAuthed.Use(mw.AuthMiddleware(cfg))
	handlers.RegisterBillingRoutes(billingAuthed, v, co, log)

	// Protected routes: authentication plus an active subscription.
	dashboard := r.Group("/api/v1/dashboard")
	dashboard.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(), mw.AuthMiddleware(cfg), mw.RequireSubscription(g, cfg.SubscribeURL()))
	handlers.RegisterDashboardRoutes(dashboard, store)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
