package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/interviewd-ai/interviewd-backend/api/controllers"
	webhookcontrollers "github.com/interviewd-ai/interviewd-backend/api/controllers/webhooks"
	"github.com/interviewd-ai/interviewd-backend/api/middleware"
	interviewsvc "github.com/interviewd-ai/interviewd-backend/internal/interviews"
	roomswebhook "github.com/interviewd-ai/interviewd-backend/internal/webhooks/rooms"
	"github.com/interviewd-ai/interviewd-backend/pkg/config"
	"github.com/interviewd-ai/interviewd-backend/pkg/db"
	"github.com/interviewd-ai/interviewd-backend/pkg/logger"
	"github.com/interviewd-ai/interviewd-backend/pkg/redis"
)

// NewRouter assembles the HTTP surface. Candidate joins and webhooks stay
// public; everything else sits behind bearer auth, with the org-management
// routes requiring the admin role.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	interviewService interviewsvc.Service,
	quotaService controllers.QuotaService,
	webhookService *roomswebhook.Service,
	webhookGuard *roomswebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbClient, redisClient))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/rooms", webhookcontrollers.RoomsWebhook(webhookService, webhookGuard, cfg.Rooms.WebhookSecret, logg))
	})

	// Candidates redeem links without an account.
	r.Post("/api/v1/interviews/{interviewId}/join", controllers.InterviewJoin(interviewService, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/interviews", func(r chi.Router) {
			r.Post("/", controllers.InterviewCreate(interviewService, logg))
			r.Get("/", controllers.InterviewList(interviewService, logg))
			r.Get("/{interviewId}", controllers.InterviewGet(interviewService, logg))
			r.Post("/{interviewId}/end", controllers.InterviewEnd(interviewService, logg))
		})

		r.Get("/orgs/me/usage", controllers.OrgUsageSummary(quotaService, logg))

		r.Route("/admin/orgs/{orgId}", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))
			r.Post("/plan", controllers.AdminAssignPlan(quotaService, logg))
			r.Delete("/plan", controllers.AdminRemoveSubscription(quotaService, interviewService, logg))
			r.Post("/overage", controllers.AdminSetOverageApproval(quotaService, logg))
		})
	})

	return r
}
