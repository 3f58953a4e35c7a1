package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/example/leasehold/internal/config"
	"github.com/example/leasehold/internal/core/escalation"
	"github.com/example/leasehold/internal/ctxutil"
	"github.com/example/leasehold/internal/ports/primary"
)

type mockEscalationService struct {
	mock.Mock
}

func (m *mockEscalationService) RunEscalations(ctx context.Context, req primary.RunRequest) (*primary.RunSummary, error) {
	args := m.Called(ctx, req)
	summary, _ := args.Get(0).(*primary.RunSummary)
	return summary, args.Error(1)
}

func (m *mockEscalationService) ResolvePolicy(ctx context.Context, query primary.PolicyQuery) (*primary.ResolvedPolicy, error) {
	args := m.Called(ctx, query)
	policy, _ := args.Get(0).(*primary.ResolvedPolicy)
	return policy, args.Error(1)
}

func (m *mockEscalationService) ListEscalations(ctx context.Context, ticketID string) ([]*primary.Escalation, error) {
	args := m.Called(ctx, ticketID)
	escalations, _ := args.Get(0).([]*primary.Escalation)
	return escalations, args.Error(1)
}

func newTestServer(t *testing.T, token string) (*Server, *mockEscalationService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := &mockEscalationService{}
	s := NewServer(svc, config.ServerConfig{Addr: ":0", TriggerToken: token}, zaptest.NewLogger(t), true)
	return s, svc
}

func do(s *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, "")
	w := do(s, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, "")
	w := do(s, http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRunEscalations(t *testing.T) {
	s, svc := newTestServer(t, "")
	summary := &primary.RunSummary{RunID: "RUN-1", Processed: 3, Escalated: 4, Tickets: 2, Duration: 1500 * time.Millisecond}
	svc.On("RunEscalations", mock.Anything, primary.RunRequest{}).Return(summary, nil)

	w := do(s, http.MethodPost, "/v1/escalations/run", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp runResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, runResponse{RunID: "RUN-1", Processed: 3, Escalated: 4, Tickets: 2, DurationMS: 1500}, resp)
	svc.AssertExpectations(t)
}

func TestRunEscalations_WithBody(t *testing.T) {
	s, svc := newTestServer(t, "")
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.On("RunEscalations", mock.Anything, primary.RunRequest{Now: now, Limit: 25}).
		Return(&primary.RunSummary{RunID: "RUN-2"}, nil)

	w := do(s, http.MethodPost, "/v1/escalations/run", `{"now":"2026-03-10T13:00:00+01:00","limit":25}`, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	svc.AssertExpectations(t)
}

func TestRunEscalations_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"limit":`},
		{"negative limit", `{"limit":-1}`},
		{"bad timestamp", `{"now":"yesterday"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, svc := newTestServer(t, "")
			w := do(s, http.MethodPost, "/v1/escalations/run", tt.body, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			svc.AssertNotCalled(t, "RunEscalations", mock.Anything, mock.Anything)
		})
	}
}

func TestRunEscalations_Contended(t *testing.T) {
	s, svc := newTestServer(t, "")
	svc.On("RunEscalations", mock.Anything, mock.Anything).Return(&primary.RunSummary{RunID: "RUN-3", Contended: true}, nil)

	w := do(s, http.MethodPost, "/v1/escalations/run", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"contended":true`)
}

func TestRunEscalations_ServiceError(t *testing.T) {
	s, svc := newTestServer(t, "")
	svc.On("RunEscalations", mock.Anything, mock.Anything).Return(nil, errors.New("failed to fetch tickets: db down"))

	w := do(s, http.MethodPost, "/v1/escalations/run", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestRunEscalations_TriggerToken(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, svc := newTestServer(t, "s3cret")
			svc.On("RunEscalations", mock.Anything, mock.Anything).Return(&primary.RunSummary{}, nil)

			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			w := do(s, http.MethodPost, "/v1/escalations/run", "", headers)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				svc.AssertNotCalled(t, "RunEscalations", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestRunEscalations_ActorInContext(t *testing.T) {
	s, svc := newTestServer(t, "")
	var actor string
	svc.On("RunEscalations", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			actor = ctxutil.ActorFromContext(args.Get(0).(context.Context))
		}).
		Return(&primary.RunSummary{}, nil)

	do(s, http.MethodPost, "/v1/escalations/run", "", map[string]string{ActorHeader: "cron"})
	assert.Equal(t, "cron", actor)

	do(s, http.MethodPost, "/v1/escalations/run", "", nil)
	assert.Equal(t, "api", actor)
}

func TestListEscalations(t *testing.T) {
	s, svc := newTestServer(t, "")
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.On("ListEscalations", mock.Anything, "TKT-1").Return([]*primary.Escalation{
		{ID: "ESC-1", TicketID: "TKT-1", Level: 1, Role: "ADMIN", TriggeredAt: at},
		{ID: "ESC-2", TicketID: "TKT-1", Level: 2, Role: "MANAGER", TriggeredAt: at},
	}, nil)

	w := do(s, http.MethodGet, "/v1/tickets/TKT-1/escalations", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp []escalationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "ESC-2", resp[1].ID)
	assert.Equal(t, "MANAGER", resp[1].Role)
}

func TestListEscalations_Empty(t *testing.T) {
	s, svc := newTestServer(t, "")
	svc.On("ListEscalations", mock.Anything, "TKT-9").Return([]*primary.Escalation{}, nil)

	w := do(s, http.MethodGet, "/v1/tickets/TKT-9/escalations", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestResolvePolicy(t *testing.T) {
	s, svc := newTestServer(t, "")
	svc.On("ResolvePolicy", mock.Anything, primary.PolicyQuery{PropertyID: "PROP-1", OrgID: "ORG-1"}).
		Return(&primary.ResolvedPolicy{Scope: "plan:PLAN-PRO", Tiers: []primary.Tier{{Level: 1, Role: "ADMIN", HoursAfterDeadline: 0}}}, nil)

	w := do(s, http.MethodGet, "/v1/policies/resolve?property=PROP-1&org=ORG-1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"scope":"plan:PLAN-PRO","tiers":[{"level":1,"role":"ADMIN","hours_after_deadline":0}]}`, w.Body.String())
}

func TestResolvePolicy_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"malformed policy", &escalation.ConfigurationError{Scope: escalation.GlobalScope(), Reason: "duplicate level 1"}, http.StatusUnprocessableEntity},
		{"lookup failure", &escalation.TransientLookupError{Op: "find tiers", Key: "global", Err: errors.New("timeout")}, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, svc := newTestServer(t, "")
			svc.On("ResolvePolicy", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := do(s, http.MethodGet, "/v1/policies/resolve?property=PROP-1", "", nil)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestResolvePolicy_MissingProperty(t *testing.T) {
	s, svc := newTestServer(t, "")
	w := do(s, http.MethodGet, "/v1/policies/resolve?org=ORG-1", "", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "ResolvePolicy", mock.Anything, mock.Anything)
}

func TestListenAndServe_ShutsDownOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewServer(&mockEscalationService{}, config.ServerConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, zaptest.NewLogger(t), true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
