package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/interviewd-ai/interviewd-backend/api/responses"
	roomswebhook "github.com/interviewd-ai/interviewd-backend/internal/webhooks/rooms"
	pkgerrors "github.com/interviewd-ai/interviewd-backend/pkg/errors"
	"github.com/interviewd-ai/interviewd-backend/pkg/logger"
)

type roomsWebhookService interface {
	HandleEvent(ctx context.Context, event *roomswebhook.Event) error
}

type roomsWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// RoomsWebhook ingests media-plane room and egress events. Delivery is
// at-least-once; the guard collapses redeliveries and is released when
// handling fails so the next attempt can retry.
func RoomsWebhook(svc roomsWebhookService, guard roomsWebhookGuard, signingSecret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if err := roomswebhook.VerifySignature(payload, r.Header.Get("X-Rooms-Signature"), signingSecret); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		event, err := roomswebhook.ParseEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			_ = guard.Delete(ctx, event.ID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("rooms event %s processed", event.ID))
		}
		responses.WriteSuccess(w, nil)
	}
}
