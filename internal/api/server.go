// Package api exposes the operator HTTP surface: read-only state views
// plus the one mutating action the trading loop cannot take on its own,
// clearing a quarantined ticker.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"trade-agent/internal/database"
	"trade-agent/internal/ledger"
	"trade-agent/internal/risk"
)

// Agent is the loop surface the API reads from and clears quarantines
// through.
type Agent interface {
	RiskSnapshot() *risk.State
	Positions() []ledger.Position
	ClearQuarantine(ctx context.Context, ticker string) bool
}

// Config holds HTTP server settings.
type Config struct {
	Enabled      bool     `json:"enabled"`
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	AllowOrigins []string `json:"allow_origins"`
}

// DefaultConfig returns a localhost-only server.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Host:         "127.0.0.1",
		Port:         8090,
		AllowOrigins: []string{"http://localhost:5173"},
	}
}

// Server is the operator API server.
type Server struct {
	log        zerolog.Logger
	config     Config
	agent      Agent
	repo       *database.Repository
	router     *gin.Engine
	httpServer *http.Server
	startedAt  time.Time
}

// NewServer creates the server and registers routes.
func NewServer(config Config, agent Agent, repo *database.Repository, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = config.AllowOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:5173"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		log:       log,
		config:    config,
		agent:     agent,
		repo:      repo,
		router:    router,
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/positions", s.handlePositions)
		api.GET("/risk", s.handleRisk)
		api.GET("/trades", s.handleTrades)
		api.GET("/summary", s.handleSummary)
		api.POST("/quarantine/:ticker/clear", s.handleClearQuarantine)
	}
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("operator API listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handlePositions(c *gin.Context) {
	successResponse(c, s.agent.Positions())
}

func (s *Server) handleRisk(c *gin.Context) {
	state := s.agent.RiskSnapshot()
	successResponse(c, gin.H{
		"session_date":         state.SessionDate.Format("2006-01-02"),
		"session_start_equity": state.SessionStartEquity,
		"current_equity":       state.CurrentEquity,
		"drawdown_percent":     state.DrawdownPercent(),
		"consecutive_losses":   state.ConsecutiveLosses,
		"breaker_state":        string(state.BreakerState),
		"quarantined":          state.QuarantinedTickers(),
	})
}

func (s *Server) handleTrades(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	day := sessionDay(time.Now())
	records, err := s.repo.TradeRecordsBetween(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, records)
}

func (s *Server) handleSummary(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	day := sessionDay(time.Now())
	summary, err := s.repo.Summarize(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, summary)
}

func (s *Server) handleClearQuarantine(c *gin.Context) {
	ticker := c.Param("ticker")
	if ticker == "" {
		errorResponse(c, http.StatusBadRequest, "ticker required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if !s.agent.ClearQuarantine(ctx, ticker) {
		errorResponse(c, http.StatusNotFound, fmt.Sprintf("%s is not quarantined", ticker))
		return
	}
	successResponse(c, gin.H{"ticker": ticker, "cleared": true})
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func sessionDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
