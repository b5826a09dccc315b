package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/simcore/internal/authorization"
	"github.com/smallbiznis/simcore/internal/clock"
	"github.com/smallbiznis/simcore/internal/config"
	notificationdomain "github.com/smallbiznis/simcore/internal/notification/domain"
	notificationservice "github.com/smallbiznis/simcore/internal/notification/service"
	"github.com/smallbiznis/simcore/internal/observability"
	obsmiddleware "github.com/smallbiznis/simcore/internal/observability/logger"
	obstracing "github.com/smallbiznis/simcore/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	plandomain "github.com/smallbiznis/simcore/internal/plan/domain"
	"github.com/smallbiznis/simcore/internal/provisioning"
	"github.com/smallbiznis/simcore/internal/simulation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

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

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// NotificationIntake is the webhook pipeline behind POST /webhooks/:source.
type NotificationIntake interface {
	Ingest(ctx context.Context, source, clientID string, payload []byte, headers http.Header) (notificationdomain.Result, error)
}

// OrderRecovery re-polls the partner for an order stuck in provisioning.
type OrderRecovery interface {
	Recover(ctx context.Context, order orderdomain.Order) (provisioning.Outcome, error)
}

// SimulationSource overlays a simulated lifecycle on test-account orders.
// Verify reads the owner's test flag from the account store.
type SimulationSource interface {
	Verify(ctx context.Context, userID snowflake.ID) (bool, error)
	Snapshot(ctx context.Context, order orderdomain.Order, plan plandomain.Plan, now time.Time) (simulation.Snapshot, bool, error)
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	clock      clock.Clock
	orders     orderdomain.Service
	plans      plandomain.Service
	recovery   OrderRecovery
	simulation SimulationSource
	intake     NotificationIntake
	authzSvc   authorization.Service
	validate   *validator.Validate
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Clock         clock.Clock
	Orders        orderdomain.Service
	Plans         plandomain.Service
	Provisioning  *provisioning.Service
	Simulator     *simulation.Simulator
	Notifications *notificationservice.Service
	AuthzSvc      authorization.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		clock:      p.Clock,
		orders:     p.Orders,
		plans:      p.Plans,
		recovery:   p.Provisioning,
		simulation: p.Simulator,
		intake:     p.Notifications,
		authzSvc:   p.AuthzSvc,
		validate:   validator.New(),
	}

	svc.registerWebhookRoutes()
	svc.registerOrderRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:source", s.HandleNotification)
}

func (s *Server) registerOrderRoutes() {
	orders := s.engine.Group("/orders", s.UserRequired())
	{
		orders.POST("", s.CreateOrder)
		orders.GET("/:id", s.GetOrder)
	}
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.ActorRequired())
	{
		admin.POST("/orders/:id/refund",
			s.authorizeAction(authorization.ObjectOrder, authorization.ActionOrderRefund),
			s.RefundOrder,
		)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
