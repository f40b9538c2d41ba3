package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mdgate/internal/cache"
	"mdgate/internal/config"
	"mdgate/internal/logging"
	"mdgate/internal/market"
	"mdgate/internal/router"
)

// MarketData is the router surface the handlers call. Declared here so
// tests can substitute a fake.
type MarketData interface {
	GetQuotes(ctx context.Context, symbols []string) ([]market.Quote, error)
	GetHistoricalBars(ctx context.Context, req market.BarsRequest) ([]market.Bar, error)
	GetNews(ctx context.Context, req market.NewsRequest) ([]market.NewsItem, error)
	GetOptionsChain(ctx context.Context, req market.ChainRequest) (*market.OptionsChain, error)
	SearchSymbols(ctx context.Context, query string) ([]market.Symbol, error)
	Health() map[market.VendorID]router.VendorHealth
}

// Server is the HTTP front door: thin JSON handlers over the router.
type Server struct {
	cfg        config.ServerConfig
	engine     *gin.Engine
	httpServer *http.Server
	md         MarketData
	cache      cache.Cache
	log        *logging.Logger
}

// NewServer builds the server and its routes.
func NewServer(cfg *config.Config, md MarketData, c cache.Cache, log *logging.Logger) *Server {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg.Server,
		engine: gin.New(),
		md:     md,
		cache:  c,
		log:    log.WithField("component", "api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestID())
	s.engine.Use(s.accessLog())

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/quotes", s.getQuotes)
		v1.GET("/bars/:symbol", s.getBars)
		v1.GET("/news", s.getNews)
		v1.GET("/options/:underlying", s.getOptionsChain)
		v1.GET("/search", s.searchSymbols)

		v1.GET("/cache/stats", s.getCacheStats)
		v1.DELETE("/cache/symbols/:symbol", s.invalidateSymbol)
	}

	s.engine.GET("/health", s.getHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// requestID tags each request with an ID carried through logs and echoed
// back in the X-Request-ID header.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		ctx := context.WithValue(c.Request.Context(), logging.RequestIDKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
		}).Info("request")
	}
}

// Handler exposes the gin engine for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.log.WithField("addr", s.cfg.Addr()).Info("api server listening")
	return s.httpServer.ListenAndServe()
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
