package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/stakepool-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса стейкинг-пула.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/deposits", h.CreateDeposit)
			r.Get("/deposits", h.GetDeposits)

			r.Get("/rewards", h.GetRewards)
			r.Post("/rewards/withdraw", h.Withdraw)
			r.Post("/rewards/compound", h.Compound)

			r.Post("/withdraw-all", h.WithdrawAll)
			r.Post("/emergency-withdraw", h.EmergencyWithdraw)

			r.Post("/auto-compound", h.SetAutoCompound)
		})
	})

	r.Route("/api/notifier", func(r chi.Router) {
		r.Use(custommiddleware.KeyAuth("X-Notifier-Key", h.notifierKey))

		r.Post("/skills/activate", h.ActivateSkill)
		r.Post("/skills/deactivate", h.DeactivateSkill)
		r.Post("/quest-rewards", h.QuestReward)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(custommiddleware.KeyAuth("X-Admin-Key", h.adminKey))

		r.Post("/pause", h.Pause)
		r.Post("/unpause", h.Unpause)
		r.Post("/ban", h.Ban)
		r.Post("/tiers", h.SetTier)
		r.Post("/pool/active", h.SetPoolActive)
		r.Get("/pool", h.PoolStatus)
		r.Post("/sweep", h.Sweep)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
