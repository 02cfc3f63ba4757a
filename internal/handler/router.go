package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mmeshcher/preorder-system/internal/middleware"
)

// NewRouter собирает маршрутизатор API сервиса предзаказов.
func NewRouter(h *Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger(logger))
	r.Use(middleware.GzipMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)
		r.Post("/payments/webhook", h.PaymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.CreateOrder)
				r.Get("/", h.ListOrders)
				r.Put("/{id}", h.UpdateOrder)
				r.Delete("/{id}", h.DeleteOrder)
			})

			r.Route("/payments", func(r chi.Router) {
				r.Post("/", h.CreatePayment)
				r.Get("/{code}", h.GetPayment)
				r.Get("/{code}/link", h.GetPaymentLink)
			})

			r.Route("/campaigns", func(r chi.Router) {
				r.Get("/", h.ListCampaigns)
				r.Post("/", h.CreateCampaign)
				r.Post("/{id}/publish", h.PublishCampaign)
				r.Post("/{id}/stages", h.CreateStage)
				r.Get("/{id}/stages", h.ListStages)
				r.Get("/{id}/history", h.StageHistory)
			})

			r.Route("/stages", func(r chi.Router) {
				r.Put("/{id}", h.UpdateStage)
				r.Delete("/{id}", h.DeleteStage)
			})
		})
	})

	return r
}
