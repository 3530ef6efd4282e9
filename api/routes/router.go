package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/royaltyworks-backend/api/controllers"
	"github.com/angelmondragon/royaltyworks-backend/api/middleware"
	"github.com/angelmondragon/royaltyworks-backend/pkg/config"
	"github.com/angelmondragon/royaltyworks-backend/pkg/db"
	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	"github.com/angelmondragon/royaltyworks-backend/pkg/logger"
	"github.com/angelmondragon/royaltyworks-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	runsService controllers.RunsService,
	statementsService controllers.StatementsService,
	adjustmentsService controllers.AdjustmentsService,
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
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/ping", controllers.PrivatePing())

		r.Route("/royalty-runs", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRoles(logg, string(enums.ActorRoleAdmin), string(enums.ActorRoleFinance)))
				r.Get("/", controllers.RunList(runsService, logg))
				r.Get("/{runId}", controllers.RunDetail(runsService, logg))
				r.Get("/{runId}/statements", controllers.RunStatements(statementsService, logg))
			})
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRoles(logg, string(enums.ActorRoleAdmin)))
				r.Post("/", controllers.RunCreate(runsService, logg))
				r.Post("/{runId}/calculate", controllers.RunCalculate(runsService, logg))
				r.Post("/{runId}/lock", controllers.RunLock(runsService, logg))
				r.Post("/{runId}/rollback", controllers.RunRollback(runsService, logg))
			})
		})

		r.Route("/statements", func(r chi.Router) {
			r.Get("/{statementId}", controllers.StatementDetail(statementsService, logg))
			r.Post("/{statementId}/review", controllers.StatementReview(statementsService, logg))
			r.Post("/{statementId}/dispute", controllers.StatementDispute(statementsService, logg))
			r.With(middleware.RequireRoles(logg, string(enums.ActorRoleAdmin))).
				Post("/{statementId}/resolve", controllers.StatementResolve(statementsService, logg))
			r.With(middleware.RequireRoles(logg, string(enums.ActorRoleAdmin), string(enums.ActorRoleFinance))).
				Get("/{statementId}/adjustments", controllers.StatementAdjustments(adjustmentsService, logg))
		})

		r.Get("/creators/{creatorId}/statements", controllers.CreatorStatements(statementsService, logg))

		r.Route("/adjustments", func(r chi.Router) {
			r.Use(middleware.RequireRoles(logg, string(enums.ActorRoleAdmin), string(enums.ActorRoleFinance)))
			r.Post("/", controllers.AdjustmentRequest(adjustmentsService, logg))
			r.Post("/{adjustmentId}/approve", controllers.AdjustmentApprove(adjustmentsService, logg))
			r.Post("/{adjustmentId}/reject", controllers.AdjustmentReject(adjustmentsService, logg))
			r.Post("/{adjustmentId}/reverse", controllers.AdjustmentReverse(adjustmentsService, logg))
		})
	})

	return r
}
