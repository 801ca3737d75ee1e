package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bistrodesk/orderflow/api/controllers"
	ordercontrollers "github.com/bistrodesk/orderflow/api/controllers/orders"
	paymentcontrollers "github.com/bistrodesk/orderflow/api/controllers/payments"
	trackingcontrollers "github.com/bistrodesk/orderflow/api/controllers/tracking"
	"github.com/bistrodesk/orderflow/api/middleware"
	"github.com/bistrodesk/orderflow/internal/cart"
	"github.com/bistrodesk/orderflow/internal/orders"
	"github.com/bistrodesk/orderflow/internal/tracking"
	"github.com/bistrodesk/orderflow/pkg/config"
	"github.com/bistrodesk/orderflow/pkg/logger"
	"github.com/bistrodesk/orderflow/pkg/redis"
)

type pinger interface {
	Ping(context.Context) error
}

// Dependencies groups everything the HTTP surface is wired to.
type Dependencies struct {
	DB          pinger
	Redis       pinger
	Idempotency redis.IdempotencyStore
	Cart        cart.Service
	Orders      orders.Service
	Payments    paymentcontrollers.Service
	Tracking    tracking.Service
	Metrics     http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins, cfg.App.IsProd()),
	)

	idempotent := middleware.Idempotency(deps.Idempotency, logg, middleware.DefaultIdempotencyTTL)
	placeOnce := middleware.Idempotency(deps.Idempotency, logg, middleware.LongIdempotencyTTL)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.With(placeOnce).Post("/", ordercontrollers.Place(deps.Cart, logg))
		r.Get("/", ordercontrollers.List(deps.Orders, logg))

		r.Route("/{orderNumber}", func(r chi.Router) {
			r.Get("/", ordercontrollers.Detail(deps.Orders, logg))
			r.Patch("/status", ordercontrollers.UpdateStatus(deps.Orders, logg))

			r.Route("/payments", func(r chi.Router) {
				r.With(placeOnce).Post("/", paymentcontrollers.Record(deps.Payments, logg))
				r.Get("/", paymentcontrollers.History(deps.Payments, logg))
				r.Get("/latest", paymentcontrollers.Latest(deps.Payments, logg))
				r.Patch("/status", paymentcontrollers.UpdateStatus(deps.Payments, logg))
			})

			r.Route("/tracking", func(r chi.Router) {
				r.With(idempotent).Post("/", trackingcontrollers.Create(deps.Orders, deps.Tracking, logg))
				r.Get("/", trackingcontrollers.Get(deps.Tracking, logg))
				r.Patch("/status", trackingcontrollers.SetStatus(deps.Tracking, logg))
				r.With(idempotent).Post("/cancel", trackingcontrollers.Cancel(deps.Tracking, logg))
				r.Put("/estimated-time", trackingcontrollers.SetEstimatedTime(deps.Tracking, logg))
				r.With(idempotent).Post("/notes", trackingcontrollers.AddNote(deps.Tracking, logg))
				r.Put("/payment-method", trackingcontrollers.SetPaymentMethod(deps.Tracking, logg))
				r.Get("/qr", trackingcontrollers.QRCode(deps.Tracking, logg))
			})
		})
	})

	return r
}
