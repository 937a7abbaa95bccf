package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/interviewd-ai/interviewd-backend/api/middleware"
	interviewsvc "github.com/interviewd-ai/interviewd-backend/internal/interviews"
	"github.com/interviewd-ai/interviewd-backend/pkg/db/models"
	"github.com/interviewd-ai/interviewd-backend/pkg/enums"
	pkgerrors "github.com/interviewd-ai/interviewd-backend/pkg/errors"
	"github.com/interviewd-ai/interviewd-backend/pkg/logger"
)

type testInterviewService struct {
	createFn func(ctx context.Context, input interviewsvc.CreateInput) (*models.Interview, error)
	getFn    func(ctx context.Context, id uuid.UUID) (*models.Interview, error)
	listFn   func(ctx context.Context, filter interviewsvc.ListFilter) ([]models.Interview, int64, error)
	joinFn   func(ctx context.Context, id uuid.UUID, participantID string) (*interviewsvc.JoinResult, error)
	endFn    func(ctx context.Context, id uuid.UUID, reason string) (*models.Interview, error)
}

func (s *testInterviewService) Create(ctx context.Context, input interviewsvc.CreateInput) (*models.Interview, error) {
	if s.createFn != nil {
		return s.createFn(ctx, input)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *testInterviewService) Get(ctx context.Context, id uuid.UUID) (*models.Interview, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *testInterviewService) List(ctx context.Context, filter interviewsvc.ListFilter) ([]models.Interview, int64, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, 0, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *testInterviewService) Join(ctx context.Context, id uuid.UUID, participantID string) (*interviewsvc.JoinResult, error) {
	if s.joinFn != nil {
		return s.joinFn(ctx, id, participantID)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *testInterviewService) MarkRecording(ctx context.Context, id uuid.UUID) error {
	return nil
}

func (s *testInterviewService) End(ctx context.Context, id uuid.UUID, reason string) (*models.Interview, error) {
	if s.endFn != nil {
		return s.endFn(ctx, id, reason)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *testInterviewService) EndAllForOrg(ctx context.Context, orgID string) (int, error) {
	return 0, nil
}

func (s *testInterviewService) ExpireStale(ctx context.Context, limit int) (int, error) {
	return 0, nil
}

func (s *testInterviewService) ReapOverdue(ctx context.Context, limit int) (int, error) {
	return 0, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func sampleInterview(orgID *string) *models.Interview {
	now := time.Now().UTC()
	return &models.Interview{
		ID:               uuid.New(),
		OrgID:            orgID,
		Status:           enums.InterviewStatusCreated,
		DurationSec:      1800,
		QuotaReservedSec: 1800,
		RoomName:         "interview-room",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func withRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return envelope.Data
}

func decodeErrorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal error response: %v", err)
	}
	return envelope.Error.Code
}

func TestInterviewCreateUsesOrgContext(t *testing.T) {
	orgID := "org-1"
	var captured interviewsvc.CreateInput
	svc := &testInterviewService{
		createFn: func(ctx context.Context, input interviewsvc.CreateInput) (*models.Interview, error) {
			captured = input
			return sampleInterview(input.OrgID), nil
		},
	}

	body := bytes.NewBufferString(`{"duration_sec":1800,"prompt":"backend role"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/interviews", body)
	req = req.WithContext(middleware.WithOrgID(req.Context(), orgID))

	resp := httptest.NewRecorder()
	InterviewCreate(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if captured.OrgID == nil || *captured.OrgID != orgID {
		t.Fatalf("expected org %q forwarded, got %v", orgID, captured.OrgID)
	}
	if captured.DurationSec != 1800 {
		t.Fatalf("unexpected duration %d", captured.DurationSec)
	}
	data := decodeData(t, resp)
	if data["status"] != "created" {
		t.Fatalf("unexpected status field %v", data["status"])
	}
}

func TestInterviewCreateWithoutOrgIsLegacy(t *testing.T) {
	var captured interviewsvc.CreateInput
	svc := &testInterviewService{
		createFn: func(ctx context.Context, input interviewsvc.CreateInput) (*models.Interview, error) {
			captured = input
			return sampleInterview(nil), nil
		},
	}

	body := bytes.NewBufferString(`{"duration_sec":900}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/interviews", body)

	resp := httptest.NewRecorder()
	InterviewCreate(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if captured.OrgID != nil {
		t.Fatalf("expected nil org, got %v", *captured.OrgID)
	}
}

func TestInterviewCreateRejectsShortDuration(t *testing.T) {
	svc := &testInterviewService{}

	body := bytes.NewBufferString(`{"duration_sec":30}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/interviews", body)

	resp := httptest.NewRecorder()
	InterviewCreate(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected error code %s", code)
	}
}

func TestInterviewGetHidesForeignOrg(t *testing.T) {
	otherOrg := "org-other"
	svc := &testInterviewService{
		getFn: func(ctx context.Context, id uuid.UUID) (*models.Interview, error) {
			return sampleInterview(&otherOrg), nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/interviews/"+uuid.NewString(), nil)
	req = withRouteParam(req, "interviewId", uuid.NewString())
	req = req.WithContext(middleware.WithOrgID(req.Context(), "org-mine"))

	resp := httptest.NewRecorder()
	InterviewGet(svc, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestInterviewGetInvalidID(t *testing.T) {
	svc := &testInterviewService{}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/interviews/not-a-uuid", nil)
	req = withRouteParam(req, "interviewId", "not-a-uuid")

	resp := httptest.NewRecorder()
	InterviewGet(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestInterviewListForwardsFilter(t *testing.T) {
	orgID := "org-1"
	var captured interviewsvc.ListFilter
	svc := &testInterviewService{
		listFn: func(ctx context.Context, filter interviewsvc.ListFilter) ([]models.Interview, int64, error) {
			captured = filter
			return []models.Interview{*sampleInterview(&orgID)}, 1, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/interviews?status=completed&limit=10&offset=20", nil)
	req = req.WithContext(middleware.WithOrgID(req.Context(), orgID))

	resp := httptest.NewRecorder()
	InterviewList(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if captured.OrgID == nil || *captured.OrgID != orgID {
		t.Fatalf("expected org filter, got %v", captured.OrgID)
	}
	if captured.Status == nil || *captured.Status != enums.InterviewStatusCompleted {
		t.Fatalf("expected completed filter, got %v", captured.Status)
	}
	if captured.Limit != 10 || captured.Offset != 20 {
		t.Fatalf("unexpected paging %d/%d", captured.Limit, captured.Offset)
	}
	data := decodeData(t, resp)
	if data["total"] != float64(1) {
		t.Fatalf("unexpected total %v", data["total"])
	}
}

func TestInterviewListRejectsUnknownStatus(t *testing.T) {
	svc := &testInterviewService{}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/interviews?status=bogus", nil)

	resp := httptest.NewRecorder()
	InterviewList(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestInterviewJoinReturnsToken(t *testing.T) {
	id := uuid.New()
	svc := &testInterviewService{
		joinFn: func(ctx context.Context, gotID uuid.UUID, participantID string) (*interviewsvc.JoinResult, error) {
			if gotID != id {
				t.Fatalf("unexpected id %s", gotID)
			}
			if participantID != "Ada Lovelace" {
				t.Fatalf("unexpected participant %q", participantID)
			}
			interview := sampleInterview(nil)
			interview.ID = id
			return &interviewsvc.JoinResult{
				Interview:   interview,
				RoomName:    "interview-" + id.String(),
				AccessToken: "token-123",
			}, nil
		},
	}

	body := bytes.NewBufferString(`{"candidate_name":"Ada Lovelace"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/interviews/"+id.String()+"/join", body)
	req = withRouteParam(req, "interviewId", id.String())

	resp := httptest.NewRecorder()
	InterviewJoin(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	data := decodeData(t, resp)
	if data["access_token"] != "token-123" {
		t.Fatalf("missing access token: %v", data)
	}
	if data["room_name"] != "interview-"+id.String() {
		t.Fatalf("unexpected room %v", data["room_name"])
	}
}

func TestInterviewJoinAlreadyUsed(t *testing.T) {
	id := uuid.New()
	svc := &testInterviewService{
		joinFn: func(ctx context.Context, gotID uuid.UUID, participantID string) (*interviewsvc.JoinResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeAlreadyUsed, "interview link already used")
		},
	}

	body := bytes.NewBufferString(`{"candidate_name":"Ada"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/interviews/"+id.String()+"/join", body)
	req = withRouteParam(req, "interviewId", id.String())

	resp := httptest.NewRecorder()
	InterviewJoin(svc, testLogger())(resp, req)

	if resp.Code != http.StatusGone {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != string(pkgerrors.CodeAlreadyUsed) {
		t.Fatalf("unexpected error code %s", code)
	}
}

func TestInterviewEndForwardsReason(t *testing.T) {
	id := uuid.New()
	orgID := "org-1"
	var gotReason string
	svc := &testInterviewService{
		getFn: func(ctx context.Context, gotID uuid.UUID) (*models.Interview, error) {
			interview := sampleInterview(&orgID)
			interview.ID = id
			return interview, nil
		},
		endFn: func(ctx context.Context, gotID uuid.UUID, reason string) (*models.Interview, error) {
			gotReason = reason
			interview := sampleInterview(&orgID)
			interview.ID = id
			interview.Status = enums.InterviewStatusCompleted
			return interview, nil
		},
	}

	body := bytes.NewBufferString(`{"reason":"candidate finished early"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/interviews/"+id.String()+"/end", body)
	req = withRouteParam(req, "interviewId", id.String())
	req = req.WithContext(middleware.WithOrgID(req.Context(), orgID))

	resp := httptest.NewRecorder()
	InterviewEnd(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if gotReason != "candidate finished early" {
		t.Fatalf("unexpected reason %q", gotReason)
	}
	data := decodeData(t, resp)
	if data["status"] != "completed" {
		t.Fatalf("unexpected status %v", data["status"])
	}
}

func TestInterviewEndForeignOrg(t *testing.T) {
	id := uuid.New()
	otherOrg := "org-other"
	svc := &testInterviewService{
		getFn: func(ctx context.Context, gotID uuid.UUID) (*models.Interview, error) {
			return sampleInterview(&otherOrg), nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/interviews/"+id.String()+"/end", nil)
	req = withRouteParam(req, "interviewId", id.String())
	req = req.WithContext(middleware.WithOrgID(req.Context(), "org-mine"))

	resp := httptest.NewRecorder()
	InterviewEnd(svc, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}
