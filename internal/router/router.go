// Package router assembles the middleware chain and mounts the route groups.
package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	adminhandler "github.com/diarisk/health-api/internal/handler/admin"
	authhandler "github.com/diarisk/health-api/internal/handler/auth"
	healthhandler "github.com/diarisk/health-api/internal/handler/health"
	logshandler "github.com/diarisk/health-api/internal/handler/logs"
	systemhandler "github.com/diarisk/health-api/internal/handler/system"
	"github.com/diarisk/health-api/internal/middleware"
	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/pkg/security"
)

type Config struct {
	RateLimit      rate.Limit
	RateBurst      int
	Timeout        time.Duration
	FrontendOrigin string
	MetricsPrefix  string
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	authH   *authhandler.Handler
	healthH *healthhandler.Handler
	adminH  *adminhandler.Handler
	logsH   *logshandler.Handler
	systemH *systemhandler.Handler
	metrics *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

func New(
	auth *middleware.AuthMiddleware,
	codec *security.Codec,
	authH *authhandler.Handler,
	healthH *healthhandler.Handler,
	adminH *adminhandler.Handler,
	logsH *logshandler.Handler,
	systemH *systemhandler.Handler,
	logger zerolog.Logger,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	model.RegisterValidations()
	engine := gin.New()

	r := &Router{
		engine:  engine,
		auth:    auth,
		authH:   authH,
		healthH: healthH,
		adminH:  adminH,
		logsH:   logsH,
		systemH: systemH,
		metrics: newRouterMetrics(config.MetricsPrefix),
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	corsConfig := middleware.DefaultCORSConfig()
	if config.FrontendOrigin != "" {
		corsConfig.AllowOrigins = []string{config.FrontendOrigin}
	}

	engine.Use(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		r.metricsMiddleware(),
		middleware.Timeout(middleware.TimeoutConfig{Duration: timeout}),
		middleware.SizeLimit(middleware.DefaultSizeLimitConfig()),
		middleware.CORS(corsConfig),
		middleware.EncryptedPayload(codec, logger),
	)

	if config.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(limiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	r.systemH.RegisterRoutes(r.engine.Group("/health"))
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.authH.RegisterRoutes(r.engine.Group("/auth"), r.auth)
	r.healthH.RegisterRoutes(r.engine.Group("/health"), r.auth)
	r.adminH.RegisterRoutes(r.engine.Group("/admin"), r.auth)
	r.logsH.RegisterRoutes(r.engine.Group("/logs"), r.auth)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func newRouterMetrics(prefix string) *routerMetrics {
	if prefix == "" {
		prefix = "health_api"
	}
	return &routerMetrics{
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// Route template, not the raw path, keeps label cardinality bounded.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).
			Observe(time.Since(start).Seconds())
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
