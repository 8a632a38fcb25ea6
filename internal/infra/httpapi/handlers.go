package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"partner_report_engine/internal/app"
	"partner_report_engine/internal/domain/report"
	"partner_report_engine/internal/domain/schedule"
	"partner_report_engine/internal/domain/token"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (s *Server) runSweep(c *gin.Context) {
	name, known := app.SweepNameFor(c.Param("name"))
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown sweep %q", c.Param("name"))})
		return
	}
	res, err := s.deps.Sweeps.Run(c.Request.Context(), name, s.deps.Clock())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSweepView(res))
}

func (s *Server) upsertConfig(c *gin.Context) {
	var req struct {
		ID             uuid.NullUUID `json:"id"`
		OrganizationID uuid.NullUUID `json:"organizationId"`
		Name           string        `json:"name" binding:"required"`
		Period         string        `json:"period"`
		DayOfWeek      int           `json:"dayOfWeek"`
		DayOfMonth     int           `json:"dayOfMonth"`
		SendTime       string        `json:"sendTime" binding:"required"`
		Recipients     []string      `json:"recipients"`
		Status         string        `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	period, err := schedule.ParsePeriod(req.Period)
	if err != nil {
		s.fail(c, err)
		return
	}
	cfg := &report.Config{
		ID:             req.ID.UUID,
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Period:         period,
		DayOfWeek:      req.DayOfWeek,
		DayOfMonth:     req.DayOfMonth,
		SendTime:       req.SendTime,
		Recipients:     req.Recipients,
		Status:         report.ConfigStatus(req.Status),
	}
	saved, err := s.deps.Configs.Upsert(c.Request.Context(), cfg, s.deps.Clock())
	if err != nil {
		s.fail(c, err)
		return
	}
	status := http.StatusOK
	if !req.ID.Valid {
		status = http.StatusCreated
	}
	c.JSON(status, newConfigView(saved))
}

func (s *Server) setConfigStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := s.deps.Configs.SetStatus(c.Request.Context(), id, report.ConfigStatus(req.Status), s.deps.Clock())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newConfigView(cfg))
}

func (s *Server) recomputeConfigs(c *gin.Context) {
	n, err := s.deps.Configs.RecomputeAll(c.Request.Context(), s.deps.Clock())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recomputed": n})
}

func (s *Server) generateReport(c *gin.Context) {
	var req struct {
		Period         string        `json:"period"`
		Start          *time.Time    `json:"start"`
		End            *time.Time    `json:"end"`
		OrganizationID uuid.NullUUID `json:"organizationId"`
		OperatorID     uuid.NullUUID `json:"operatorId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	period, err := schedule.ParsePeriod(req.Period)
	if err != nil {
		s.fail(c, err)
		return
	}
	g, err := s.deps.Reports.GenerateManual(c.Request.Context(), app.ManualReportParams{
		Period:         period,
		Start:          req.Start,
		End:            req.End,
		OrganizationID: req.OrganizationID,
		OperatorID:     req.OperatorID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newGeneratedView(g))
}

func (s *Server) createRequest(c *gin.Context) {
	var req struct {
		PartnerID      uuid.UUID     `json:"partnerId" binding:"required"`
		OrganizationID uuid.NullUUID `json:"organizationId"`
		ProjectID      uuid.NullUUID `json:"projectId"`
		DeadlineDays   int           `json:"deadlineDays"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := s.deps.Requests.CreateManualRequest(c.Request.Context(), app.ManualRequestParams{
		PartnerID:      req.PartnerID,
		OrganizationID: req.OrganizationID,
		ProjectID:      req.ProjectID,
		DeadlineDays:   req.DeadlineDays,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRequestView(r))
}

func (s *Server) markSubmitted(c *gin.Context) {
	partnerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}
	var req struct {
		ReportID uuid.UUID `json:"reportId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	closed, err := s.deps.Requests.MarkSubmitted(c.Request.Context(), partnerID, req.ReportID)
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]requestView, 0, len(closed))
	for _, r := range closed {
		views = append(views, newRequestView(r))
	}
	c.JSON(http.StatusOK, gin.H{"closed": views})
}

type tokenBody struct {
	ProjectID     uuid.NullUUID `json:"projectId"`
	ExpiresInDays int           `json:"expiresInDays"`
}

// bindTokenBody accepts an empty body as the partner-wide scope with the default expiry.
func bindTokenBody(c *gin.Context, partnerID uuid.UUID) (token.Scope, int, error) {
	var body tokenBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			return token.Scope{}, 0, err
		}
	}
	return token.ScopeOf(partnerID, body.ProjectID), body.ExpiresInDays, nil
}

func (s *Server) issueToken(c *gin.Context) {
	s.mintToken(c, s.deps.Tokens.Issue)
}

func (s *Server) rotateToken(c *gin.Context) {
	s.mintToken(c, s.deps.Tokens.Rotate)
}

func (s *Server) mintToken(c *gin.Context, mint func(ctx context.Context, scope token.Scope, expiresInDays int) (*token.PartnerToken, error)) {
	partnerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}
	scope, days, err := bindTokenBody(c, partnerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := mint(c.Request.Context(), scope, days)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newTokenView(t, true))
}

func (s *Server) deactivateTokens(c *gin.Context) {
	partnerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}
	var tokenID uuid.NullUUID
	if raw := c.Param("tokenId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
			return
		}
		tokenID = uuid.NullUUID{UUID: id, Valid: true}
	}
	n, err := s.deps.Tokens.Deactivate(c.Request.Context(), partnerID, tokenID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deactivated": n})
}

func (s *Server) validateToken(c *gin.Context) {
	t, err := s.deps.Tokens.Validate(c.Request.Context(), c.Param("secret"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newTokenView(t, false))
}
