package http

import (
	"net/http"
	"time"

	"github.com/fjod/helmet-storefront/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	ServiceName    string
	RequestTimeout time.Duration
	Auth           *Authenticator
	Limiter        *CouponLimiter
	Checkout       *CheckoutHandler
	Orders         *OrdersHandler
	Cart           *CartHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(*logger.L()))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.Post("/logout", cfg.Checkout.Logout)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cfg.Cart.GetCart)
			r.Post("/items", cfg.Cart.AddItem)
			r.Delete("/items/{product_id}", cfg.Cart.RemoveItem)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", cfg.Checkout.Enter)
			r.Get("/addresses", cfg.Checkout.ListAddresses)
			r.Post("/addresses", cfg.Checkout.AddAddress)
			r.Post("/address", cfg.Checkout.SelectAddress)
			r.Post("/payment-method", cfg.Checkout.SelectPaymentMethod)
			r.Post("/step", cfg.Checkout.GoTo)
			r.With(cfg.Limiter.Middleware).Post("/coupon", cfg.Checkout.ApplyCoupon)
			r.Delete("/coupon", cfg.Checkout.RemoveCoupon)
			r.Post("/submit", cfg.Checkout.Submit)
			r.Post("/payment/callback", cfg.Checkout.PaymentCallback)
			r.Post("/payment/retry", cfg.Checkout.RetryPayment)
			r.Post("/leave", cfg.Checkout.Leave)
		})

		r.Route("/orders/{order_id}", func(r chi.Router) {
			r.Get("/", cfg.Orders.GetOrder)
			r.Get("/events", cfg.Orders.GetOrderEvents)
			r.Post("/retry-payment", cfg.Orders.RetryPayment)
			r.Post("/cancel", cfg.Orders.CancelOrder)
		})
	})

	return otelhttp.NewHandler(r, cfg.ServiceName)
}
