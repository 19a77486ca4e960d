// Package api exposes the prediction service over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledgerstack/predict-engine/internal/config"
	"github.com/ledgerstack/predict-engine/internal/services"
)

// Server owns the HTTP listener and route table.
type Server struct {
	logger *slog.Logger
	http   *http.Server
}

// NewServer builds the router and binds it to the configured address.
func NewServer(logger *slog.Logger, cfg config.ServerConfig, svc *services.PredictionService) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	handlers := NewHandlers(logger, svc)
	registerRoutes(router, handlers)

	return &Server{
		logger: logger,
		http: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func registerRoutes(router *gin.Engine, h *Handlers) {
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/predictions", h.GeneratePrediction)
		v1.POST("/predictions/batch", h.GeneratePredictionBatch)
		v1.GET("/organizations/:orgId/cashflow", h.ForecastCashFlow)
		v1.GET("/organizations/:orgId/revenue", h.PredictRevenue)
		v1.POST("/fraud/scan", h.DetectFraud)
		v1.GET("/subjects/:subjectId/risk", h.ComputeRiskScore)
	}
}

// Start blocks serving requests until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("address", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
