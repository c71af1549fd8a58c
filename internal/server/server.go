package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/smartsummary/config"
	"github.com/mohammad-safakhou/smartsummary/internal/analysis"
	"github.com/mohammad-safakhou/smartsummary/internal/conversation"
	"github.com/mohammad-safakhou/smartsummary/internal/memory"
	"github.com/mohammad-safakhou/smartsummary/internal/telemetry"
)

// Server is the HTTP boundary. It stays thin: request decoding, status
// mapping and response shaping; everything else lives in the components.
type Server struct {
	cfg       *config.Config
	echo      *echo.Echo
	orch      *analysis.Orchestrator
	chat      *conversation.Service
	index     *memory.Index
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// New wires the HTTP server around the given components
func New(cfg *config.Config, orch *analysis.Orchestrator, chat *conversation.Service, index *memory.Index, tele *telemetry.Telemetry) *Server {
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("10M"))
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			body := map[string]interface{}{"error": msg}
			if code == http.StatusInternalServerError {
				body["error"] = "Internal server error"
				body["details"] = msg
			}
			_ = c.JSON(code, body)
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	s := &Server{
		cfg:       cfg,
		echo:      e,
		orch:      orch,
		chat:      chat,
		index:     index,
		telemetry: tele,
		logger:    baseLogger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/analyze", s.handleAnalyze)
	s.echo.POST("/analyze/stream", s.handleAnalyzeStream)
	s.echo.POST("/chat", s.handleChat)
	s.echo.GET("/history", s.handleHistory)
	s.echo.GET("/connections/:urlHash", s.handleConnections)
}

// Run starts the server on the configured listen address and blocks.
func (s *Server) Run() error {
	s.logger.Printf("SmartSummary backend listening on %s", s.cfg.General.Listen)
	return s.echo.Start(s.cfg.General.Listen)
}

// Echo exposes the underlying router, used by tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
