// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"mpesa-gateway/internal/handler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

func SetupRoutes(
	webhookHandler *handler.WebhookHandler,
	paymentHandler *handler.PaymentHandler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Provider-facing callback endpoint. Every callback arrives here; the
	// action query parameter selects the flow. GET is kept because the
	// payment-pending page drives the request action through it.
	r.Route("/wc-api", func(r chi.Router) {
		r.Post("/lipwa", webhookHandler.Handle)
		r.Get("/lipwa", webhookHandler.Handle)

		r.Get("/lipwa_receipt", paymentHandler.Receipt)
		r.Get("/lipwa_request", paymentHandler.LastRequest)
	})

	// Merchant-facing API
	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Post("/initiate", paymentHandler.Initiate)
		r.Post("/reverse", paymentHandler.Reverse)
	})

	return r
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()))
		})
	}
}
