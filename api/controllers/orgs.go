package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/interviewd-ai/interviewd-backend/api/middleware"
	"github.com/interviewd-ai/interviewd-backend/api/responses"
	"github.com/interviewd-ai/interviewd-backend/api/validators"
	"github.com/interviewd-ai/interviewd-backend/internal/quota"
	"github.com/interviewd-ai/interviewd-backend/pkg/db/models"
	"github.com/interviewd-ai/interviewd-backend/pkg/enums"
	pkgerrors "github.com/interviewd-ai/interviewd-backend/pkg/errors"
	"github.com/interviewd-ai/interviewd-backend/pkg/logger"
)

// QuotaService is the subscription surface the org controllers need.
type QuotaService interface {
	AssignPlan(ctx context.Context, orgID string, planID enums.PlanID, anchor time.Time) (*models.OrgSubscription, error)
	RemoveSubscription(ctx context.Context, orgID string) error
	SetOverageApproved(ctx context.Context, orgID string, approved bool) error
	Summary(ctx context.Context, orgID string) (*quota.UsageSummary, error)
}

type interviewEnder interface {
	EndAllForOrg(ctx context.Context, orgID string) (int, error)
}

type assignPlanRequest struct {
	PlanID        string     `json:"plan_id" validate:"required"`
	BillingAnchor *time.Time `json:"billing_anchor,omitempty"`
}

type overageApprovalRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

type subscriptionResponse struct {
	OrgID           string    `json:"org_id"`
	PlanID          string    `json:"plan_id"`
	BillingAnchor   time.Time `json:"billing_anchor"`
	CycleStart      time.Time `json:"cycle_start"`
	CycleEnd        time.Time `json:"cycle_end"`
	UsedSec         int64     `json:"used_sec"`
	ReservedSec     int64     `json:"reserved_sec"`
	OverageApproved bool      `json:"overage_approved"`
	RenewOnCycleEnd bool      `json:"renew_on_cycle_end"`
	MaxConcurrent   int       `json:"max_concurrent"`
}

func toSubscriptionResponse(sub *models.OrgSubscription) subscriptionResponse {
	return subscriptionResponse{
		OrgID:           sub.OrgID,
		PlanID:          sub.Plan.String(),
		BillingAnchor:   sub.BillingAnchor,
		CycleStart:      sub.CycleStart,
		CycleEnd:        sub.CycleEnd,
		UsedSec:         sub.UsedSeconds,
		ReservedSec:     sub.ReservedSeconds,
		OverageApproved: sub.OverageApproved,
		RenewOnCycleEnd: sub.RenewOnCycleEnd,
		MaxConcurrent:   quota.MaxConcurrent(sub),
	}
}

// AdminAssignPlan puts an organization on a subscription plan, anchoring its
// billing cycle at the given instant (default: now).
func AdminAssignPlan(svc QuotaService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quota service unavailable"))
			return
		}

		orgID, err := orgIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload assignPlanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		planID, err := enums.ParsePlanID(payload.PlanID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan id"))
			return
		}

		anchor := time.Now().UTC()
		if payload.BillingAnchor != nil {
			anchor = payload.BillingAnchor.UTC()
		}

		sub, err := svc.AssignPlan(ctx, orgID, planID, anchor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toSubscriptionResponse(sub))
	}
}

// AdminRemoveSubscription ends the organization's active interviews and then
// drops its subscription row.
func AdminRemoveSubscription(svc QuotaService, ender interviewEnder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quota service unavailable"))
			return
		}

		orgID, err := orgIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ended := 0
		if ender != nil {
			if ended, err = ender.EndAllForOrg(ctx, orgID); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		if err := svc.RemoveSubscription(ctx, orgID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"org_id": orgID, "interviews_ended": ended})
	}
}

// AdminSetOverageApproval flips the overage gate for an organization.
func AdminSetOverageApproval(svc QuotaService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quota service unavailable"))
			return
		}

		orgID, err := orgIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload overageApprovalRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.SetOverageApproved(ctx, orgID, *payload.Approved); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"org_id": orgID, "approved": *payload.Approved})
	}
}

// OrgUsageSummary returns the caller organization's current-cycle usage.
func OrgUsageSummary(svc QuotaService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quota service unavailable"))
			return
		}

		orgID := middleware.OrgIDFromContext(ctx)
		if orgID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "organization context missing"))
			return
		}

		summary, err := svc.Summary(ctx, orgID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, summary)
	}
}

func orgIDParam(r *http.Request) (string, error) {
	orgID := validators.SanitizeString(chi.URLParam(r, "orgId"), 100)
	if orgID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid organization id")
	}
	return orgID, nil
}
