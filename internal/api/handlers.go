package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/leasehold/internal/core/escalation"
	"github.com/example/leasehold/internal/metrics"
	"github.com/example/leasehold/internal/ports/primary"
)

type runRequest struct {
	Now   *time.Time `json:"now,omitempty"`
	Limit int        `json:"limit,omitempty"`
}

type runResponse struct {
	RunID      string `json:"run_id"`
	Processed  int    `json:"processed"`
	Escalated  int    `json:"escalated"`
	Tickets    int    `json:"tickets"`
	Failed     int    `json:"failed"`
	Truncated  bool   `json:"truncated"`
	TimedOut   bool   `json:"timed_out"`
	Contended  bool   `json:"contended"`
	DurationMS int64  `json:"duration_ms"`
}

type escalationResponse struct {
	ID          string    `json:"id"`
	TicketID    string    `json:"ticket_id"`
	OrgID       string    `json:"org_id"`
	PropertyID  string    `json:"property_id"`
	Level       int       `json:"level"`
	Role        string    `json:"role"`
	TriggeredAt time.Time `json:"triggered_at"`
}

type tierResponse struct {
	Level              int     `json:"level"`
	Role               string  `json:"role"`
	HoursAfterDeadline float64 `json:"hours_after_deadline"`
}

type policyResponse struct {
	Scope string         `json:"scope"`
	Tiers []tierResponse `json:"tiers"`
}

// runEscalations handles POST /v1/escalations/run. The body is optional.
// A run skipped because another process holds the lease answers 409 with
// the (empty) summary.
func (s *Server) runEscalations(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		metrics.APITriggers.WithLabelValues("bad_request").Inc()
		respondBadRequest(c, "invalid run request: "+err.Error())
		return
	}
	if req.Limit < 0 {
		metrics.APITriggers.WithLabelValues("bad_request").Inc()
		respondBadRequest(c, "limit must not be negative")
		return
	}

	runReq := primary.RunRequest{Limit: req.Limit}
	if req.Now != nil {
		runReq.Now = req.Now.UTC()
	}

	summary, err := s.service.RunEscalations(c.Request.Context(), runReq)
	if err != nil {
		metrics.APITriggers.WithLabelValues("error").Inc()
		respondInternalError(c, "run escalations", err, s.logger)
		return
	}

	status := http.StatusOK
	outcome := "ok"
	if summary.Contended {
		status = http.StatusConflict
		outcome = "contended"
	}
	metrics.APITriggers.WithLabelValues(outcome).Inc()
	c.JSON(status, toRunResponse(summary))
}

// listEscalations handles GET /v1/tickets/:id/escalations.
func (s *Server) listEscalations(c *gin.Context) {
	ticketID := c.Param("id")

	escalations, err := s.service.ListEscalations(c.Request.Context(), ticketID)
	if err != nil {
		respondInternalError(c, "list escalations", err, s.logger)
		return
	}

	out := make([]escalationResponse, len(escalations))
	for i, e := range escalations {
		out[i] = escalationResponse{
			ID:          e.ID,
			TicketID:    e.TicketID,
			OrgID:       e.OrgID,
			PropertyID:  e.PropertyID,
			Level:       e.Level,
			Role:        e.Role,
			TriggeredAt: e.TriggeredAt.UTC(),
		}
	}
	c.JSON(http.StatusOK, out)
}

// resolvePolicy handles GET /v1/policies/resolve?property=&plan=&org=.
func (s *Server) resolvePolicy(c *gin.Context) {
	query := primary.PolicyQuery{
		PropertyID: c.Query("property"),
		PlanID:     c.Query("plan"),
		OrgID:      c.Query("org"),
	}
	if query.PropertyID == "" {
		respondBadRequest(c, "property is required")
		return
	}

	policy, err := s.service.ResolvePolicy(c.Request.Context(), query)
	if err != nil {
		var cfgErr *escalation.ConfigurationError
		var lookupErr *escalation.TransientLookupError
		switch {
		case errors.As(err, &cfgErr):
			respondUnprocessable(c, "escalation policy is malformed", err)
		case errors.As(err, &lookupErr), errors.Is(err, context.DeadlineExceeded):
			respondUnavailable(c, "policy lookup failed, retry later")
		default:
			respondInternalError(c, "resolve policy", err, s.logger)
		}
		return
	}

	resp := policyResponse{Scope: policy.Scope, Tiers: make([]tierResponse, len(policy.Tiers))}
	for i, t := range policy.Tiers {
		resp.Tiers[i] = tierResponse{Level: t.Level, Role: t.Role, HoursAfterDeadline: t.HoursAfterDeadline}
	}
	c.JSON(http.StatusOK, resp)
}

func toRunResponse(s *primary.RunSummary) runResponse {
	return runResponse{
		RunID:      s.RunID,
		Processed:  s.Processed,
		Escalated:  s.Escalated,
		Tickets:    s.Tickets,
		Failed:     s.Failed,
		Truncated:  s.Truncated,
		TimedOut:   s.TimedOut,
		Contended:  s.Contended,
		DurationMS: s.Duration.Milliseconds(),
	}
}
