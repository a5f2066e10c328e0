package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mindgraph/backend/internal/agent"
	"mindgraph/backend/internal/metrics"
	"mindgraph/backend/internal/state"
)

// Service is the part of the orchestrator the HTTP surface drives
type Service interface {
	RunTurn(ctx context.Context, req agent.TurnRequest) (*agent.TurnResult, error)
	Generate(ctx context.Context, req agent.GenerateRequest) (state.Graph, error)
	CreateMap(ctx context.Context, ownerID string) (*state.MapRecord, error)
	ListMaps(ctx context.Context, ownerID string) ([]state.MapSummary, error)
	GetMap(ctx context.Context, ownerID, mapID string) (*state.MapRecord, error)
	SaveMap(ctx context.Context, req agent.SaveRequest) (int64, error)
}

// Options configures the router
type Options struct {
	Identity IdentityProvider
	Metrics  *metrics.Collector
	Logger   *zap.Logger
	// Release switches gin to release mode
	Release bool
}

// NewRouter builds the gin engine with all routes mounted
func NewRouter(svc Service, opts Options) *gin.Engine {
	if opts.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	identity := opts.Identity
	if identity == nil {
		identity = HeaderIdentity{}
	}

	h := &handlers{svc: svc, log: log}

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())
	router.Use(requestMetrics(opts.Metrics))
	router.Use(cors())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	api := router.Group("/api", RequireIdentity(identity))
	{
		api.POST("/maps", h.createMap)
		api.GET("/maps", h.listMaps)
		api.GET("/maps/:id", h.getMap)
		api.PUT("/maps/:id", h.saveMap)
		api.POST("/maps/:id/chat", h.chat)
		api.POST("/chat", h.chat)
		api.POST("/generate", h.generate)
	}

	return router
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-User-ID, X-User-Name")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestMetrics(m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()))
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
