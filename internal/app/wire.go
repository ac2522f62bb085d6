package app

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/snowfest/platform/internal/auth"
	"github.com/snowfest/platform/internal/handler"
	adminhandler "github.com/snowfest/platform/internal/handler/admin"
	"github.com/snowfest/platform/internal/infra"
	"github.com/snowfest/platform/internal/repository"
	"github.com/snowfest/platform/internal/reward"
	"github.com/snowfest/platform/internal/seasonpass"
	"github.com/snowfest/platform/internal/survey"
)

// Deps holds all dependencies needed by Build.
type Deps struct {
	Pool   *pgxpool.Pool
	JWTMgr *auth.JWTManager
	Clock  *infra.EventClock
	Logger *slog.Logger
}

// Services bundles the assembled service graph so cmd binaries and the
// scheduler can reach the pieces the router also uses.
type Services struct {
	Router  chi.Router
	Engine  *seasonpass.Engine
	Surveys *survey.Service
	Matcher *survey.Matcher
}

// Build assembles repositories, services, handlers and the chi router.
func Build(deps Deps) *Services {
	pool := deps.Pool
	jwtMgr := deps.JWTMgr
	clock := deps.Clock
	logger := deps.Logger

	// Repositories
	walletRepo := repository.NewWalletRepository()
	seasonRepo := repository.NewSeasonPassRepository()
	surveyRepo := repository.NewSurveyRepository()
	responseRepo := repository.NewSurveyResponseRepository()
	activityRepo := repository.NewActivityRepository()
	outboxRepo := repository.NewOutboxRepository()

	// Services
	deliverer := reward.NewService(walletRepo, outboxRepo, logger)
	engine := seasonpass.NewEngine(pool, seasonRepo, outboxRepo, activityRepo, deliverer, clock, logger)
	matcher := survey.NewMatcher(pool, surveyRepo, responseRepo, activityRepo, outboxRepo, clock, logger)
	engine.SetLevelUpListener(matcher)
	rewardAdapter := survey.NewRewardAdapter(pool, responseRepo, deliverer, logger)
	surveySvc := survey.NewService(pool, surveyRepo, responseRepo, outboxRepo, rewardAdapter, clock, logger)

	// Handlers
	seasonHandler := handler.NewSeasonPassHandler(engine)
	surveyHandler := handler.NewSurveyHandler(surveySvc)
	triggerHandler := handler.NewTriggerHandler(matcher)

	// Admin handlers
	tokenAdmin := adminhandler.NewGameTokenHandler(pool, walletRepo, outboxRepo)
	seasonAdmin := adminhandler.NewSeasonPassAdminHandler(engine)
	surveyAdmin := adminhandler.NewSurveyAdminHandler(matcher)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORS)
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(pool))

	// User-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticateUser(jwtMgr))

		r.Route("/season-pass", func(r chi.Router) {
			r.Get("/season", seasonHandler.GetSeason)
			r.Get("/status", seasonHandler.GetStatus)
			r.Post("/stamp", seasonHandler.Stamp)
			r.Post("/levels/{level}/claim", seasonHandler.Claim)
		})

		r.Route("/surveys", func(r chi.Router) {
			r.Get("/", surveyHandler.ListActive)
			r.Get("/{id}/session", surveyHandler.GetSession)
			r.Put("/responses/{id}/answers", surveyHandler.SaveAnswers)
			r.Post("/responses/{id}/complete", surveyHandler.Complete)
		})
	})

	// Internal service-to-service hooks. Admin realm: game backends hold
	// service tokens minted in that realm.
	r.Route("/internal", func(r chi.Router) {
		r.Use(auth.AuthenticateAdmin(jwtMgr))

		r.Post("/triggers/game-result", triggerHandler.GameResult)
	})

	// Admin-authenticated routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthenticateAdmin(jwtMgr))

		r.Route("/game-tokens", func(r chi.Router) {
			r.Use(auth.RequireRole("operator", "superadmin"))
			r.Post("/grant", tokenAdmin.Grant)
			r.Post("/revoke", tokenAdmin.Revoke)
			r.Get("/wallets", tokenAdmin.ListWallets)
		})

		r.Route("/season-pass", func(r chi.Router) {
			r.Use(auth.RequireRole("operator", "superadmin"))
			r.Post("/backfill", seasonAdmin.Backfill)
		})

		r.Route("/surveys", func(r chi.Router) {
			r.Use(auth.RequireRole("operator", "superadmin"))
			r.Post("/rules/{id}/push", surveyAdmin.PushRule)
		})
	})

	return &Services{
		Router:  r,
		Engine:  engine,
		Surveys: surveySvc,
		Matcher: matcher,
	}
}
