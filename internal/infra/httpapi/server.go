package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"partner_report_engine/internal/app"
	"partner_report_engine/internal/domain/partner"
	"partner_report_engine/internal/domain/report"
	"partner_report_engine/internal/domain/request"
	"partner_report_engine/internal/domain/schedule"
	"partner_report_engine/internal/domain/token"
	"partner_report_engine/internal/infra/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type Sweeper interface {
	Run(ctx context.Context, name string, now time.Time) (app.SweepResult, error)
}

type ConfigRegistry interface {
	Upsert(ctx context.Context, c *report.Config, now time.Time) (*report.Config, error)
	SetStatus(ctx context.Context, configID uuid.UUID, status report.ConfigStatus, now time.Time) (*report.Config, error)
	RecomputeAll(ctx context.Context, now time.Time) (int, error)
}

type ReportGenerator interface {
	GenerateManual(ctx context.Context, params app.ManualReportParams) (*report.Generated, error)
}

type RequestService interface {
	CreateManualRequest(ctx context.Context, params app.ManualRequestParams) (*request.Request, error)
	MarkSubmitted(ctx context.Context, partnerID, reportID uuid.UUID) ([]*request.Request, error)
}

type TokenService interface {
	Issue(ctx context.Context, scope token.Scope, expiresInDays int) (*token.PartnerToken, error)
	Rotate(ctx context.Context, scope token.Scope, expiresInDays int) (*token.PartnerToken, error)
	Deactivate(ctx context.Context, partnerID uuid.UUID, tokenID uuid.NullUUID) (int64, error)
	Validate(ctx context.Context, secret string) (*token.PartnerToken, error)
}

// Deps are the operations served over HTTP.
type Deps struct {
	Sweeps   Sweeper
	Configs  ConfigRegistry
	Reports  ReportGenerator
	Requests RequestService
	Tokens   TokenService
	Clock    app.Clock
}

type Server struct {
	deps   Deps
	router *gin.Engine
	http   *http.Server
	logger *logrus.Entry
}

func NewServer(addr string, deps Deps, logger *logrus.Entry) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.GinMiddleware())

	s := &Server{
		deps:   deps,
		router: router,
		logger: logger.WithField("component", "http_api"),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api/v1")

	api.POST("/sweeps/:name", s.runSweep)

	configs := api.Group("/report-configs")
	{
		configs.POST("", s.upsertConfig)
		configs.POST("/recompute", s.recomputeConfigs)
		configs.POST("/:id/status", s.setConfigStatus)
	}

	api.POST("/reports", s.generateReport)
	api.POST("/report-requests", s.createRequest)

	partners := api.Group("/partners/:id")
	{
		partners.POST("/submissions", s.markSubmitted)
		partners.POST("/tokens", s.issueToken)
		partners.POST("/tokens/rotate", s.rotateToken)
		partners.DELETE("/tokens", s.deactivateTokens)
		partners.DELETE("/tokens/:tokenId", s.deactivateTokens)
	}

	api.GET("/tokens/:secret", s.validateToken)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.http.Addr).Info("HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, schedule.ErrInvalidRule):
		return http.StatusBadRequest
	case errors.Is(err, report.ErrConfigNotFound),
		errors.Is(err, report.ErrGeneratedNotFound),
		errors.Is(err, partner.ErrPartnerNotFound),
		errors.Is(err, request.ErrRequestNotFound),
		errors.Is(err, token.ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrSweepInProgress):
		return http.StatusConflict
	case errors.Is(err, token.ErrTokenInvalid):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
