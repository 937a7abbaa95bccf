package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/interviewd-ai/interviewd-backend/api/middleware"
	"github.com/interviewd-ai/interviewd-backend/api/responses"
	"github.com/interviewd-ai/interviewd-backend/api/validators"
	interviewsvc "github.com/interviewd-ai/interviewd-backend/internal/interviews"
	"github.com/interviewd-ai/interviewd-backend/pkg/db/models"
	"github.com/interviewd-ai/interviewd-backend/pkg/enums"
	pkgerrors "github.com/interviewd-ai/interviewd-backend/pkg/errors"
	"github.com/interviewd-ai/interviewd-backend/pkg/logger"
)

type createInterviewRequest struct {
	DurationSec    int64   `json:"duration_sec" validate:"required,min=60,max=14400"`
	Prompt         *string `json:"prompt,omitempty" validate:"omitempty,max=10000"`
	OpeningMessage *string `json:"opening_message,omitempty" validate:"omitempty,max=2000"`
}

type joinInterviewRequest struct {
	CandidateName string `json:"candidate_name" validate:"required,min=1,max=200"`
}

type endInterviewRequest struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type interviewResponse struct {
	ID                string     `json:"id"`
	OrgID             *string    `json:"org_id,omitempty"`
	Status            string     `json:"status"`
	DurationSec       int64      `json:"duration_sec"`
	QuotaReservedSec  int64      `json:"quota_reserved_sec"`
	RoomName          string     `json:"room_name"`
	Prompt            *string    `json:"prompt,omitempty"`
	OpeningMessage    *string    `json:"opening_message,omitempty"`
	UsedAt            *time.Time `json:"used_at,omitempty"`
	CandidateJoinedAt *time.Time `json:"candidate_joined_at,omitempty"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	ActualDurationSec *int64     `json:"actual_duration_sec,omitempty"`
	FailureReason     *string    `json:"failure_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type joinInterviewResponse struct {
	InterviewID    string  `json:"interview_id"`
	RoomName       string  `json:"room_name"`
	AccessToken    string  `json:"access_token"`
	DurationSec    int64   `json:"duration_sec"`
	OpeningMessage *string `json:"opening_message,omitempty"`
}

type interviewListResponse struct {
	Interviews []interviewResponse `json:"interviews"`
	Total      int64               `json:"total"`
	Limit      int                 `json:"limit"`
	Offset     int                 `json:"offset"`
}

func toInterviewResponse(interview *models.Interview) interviewResponse {
	return interviewResponse{
		ID:                interview.ID.String(),
		OrgID:             interview.OrgID,
		Status:            interview.Status.String(),
		DurationSec:       interview.DurationSec,
		QuotaReservedSec:  interview.QuotaReservedSec,
		RoomName:          interview.RoomName,
		Prompt:            interview.Prompt,
		OpeningMessage:    interview.OpeningMessage,
		UsedAt:            interview.UsedAt,
		CandidateJoinedAt: interview.CandidateJoinedAt,
		EndedAt:           interview.EndedAt,
		ExpiresAt:         interview.ExpiresAt,
		ActualDurationSec: interview.ActualDurationSec,
		FailureReason:     interview.FailureReason,
		CreatedAt:         interview.CreatedAt,
		UpdatedAt:         interview.UpdatedAt,
	}
}

// InterviewCreate issues a single-use interview link, reserving quota when
// the caller belongs to an organization with a subscription.
func InterviewCreate(svc interviewsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "interview service unavailable"))
			return
		}

		var payload createInterviewRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		input := interviewsvc.CreateInput{
			DurationSec:    payload.DurationSec,
			Prompt:         payload.Prompt,
			OpeningMessage: payload.OpeningMessage,
		}
		if orgID := middleware.OrgIDFromContext(ctx); orgID != "" {
			input.OrgID = &orgID
		}

		interview, err := svc.Create(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toInterviewResponse(interview))
	}
}

// InterviewGet fetches one interview, scoped to the caller's organization.
func InterviewGet(svc interviewsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "interview service unavailable"))
			return
		}

		id, err := interviewIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		interview, err := svc.Get(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !orgCanAccess(ctx, interview) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "interview not found"))
			return
		}

		responses.WriteSuccess(w, toInterviewResponse(interview))
	}
}

// InterviewList pages through the caller's organization interviews.
func InterviewList(svc interviewsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "interview service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		filter := interviewsvc.ListFilter{Limit: limit, Offset: offset}
		if orgID := middleware.OrgIDFromContext(ctx); orgID != "" {
			filter.OrgID = &orgID
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, err := enums.ParseInterviewStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = &status
		}

		interviews, total, err := svc.List(ctx, filter)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items := make([]interviewResponse, 0, len(interviews))
		for i := range interviews {
			items = append(items, toInterviewResponse(&interviews[i]))
		}
		responses.WriteSuccess(w, interviewListResponse{
			Interviews: items,
			Total:      total,
			Limit:      limit,
			Offset:     offset,
		})
	}
}

// InterviewJoin redeems a link for a candidate. Public: candidates hold the
// link, not an account.
func InterviewJoin(svc interviewsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "interview service unavailable"))
			return
		}

		id, err := interviewIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload joinInterviewRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		identity := validators.SanitizeString(payload.CandidateName, 200)
		if identity == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "candidate name is required"))
			return
		}

		result, err := svc.Join(ctx, id, identity)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, joinInterviewResponse{
			InterviewID:    result.Interview.ID.String(),
			RoomName:       result.RoomName,
			AccessToken:    result.AccessToken,
			DurationSec:    result.Interview.DurationSec,
			OpeningMessage: result.Interview.OpeningMessage,
		})
	}
}

// InterviewEnd finalizes a session and settles its quota hold. Idempotent:
// ending a finished interview returns its current state.
func InterviewEnd(svc interviewsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "interview service unavailable"))
			return
		}

		id, err := interviewIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload endInterviewRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		existing, err := svc.Get(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !orgCanAccess(ctx, existing) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "interview not found"))
			return
		}

		interview, err := svc.End(ctx, id, deref(payload.Reason))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toInterviewResponse(interview))
	}
}

func interviewIDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "interviewId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid interview id")
	}
	return id, nil
}

// orgCanAccess hides interviews outside the caller's organization. Callers
// without an org scope (admins, legacy tokens) see everything.
func orgCanAccess(ctx context.Context, interview *models.Interview) bool {
	orgID := middleware.OrgIDFromContext(ctx)
	if orgID == "" {
		return true
	}
	return interview.OrgID != nil && *interview.OrgID == orgID
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
