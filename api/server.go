/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the front desk UI
  5. Actor:      X-Actor-ID header into the request context

ROUTE GROUPS:
  /api/reservations/*   Reservation lifecycle
  /api/rooms/*          Room status transitions
  /api/payments/*       Payment ledger
  /api/admin/*          Administrative escape hatches
  /api/numbers/*        Identifier parsing
  /health               Dependency health

SECURITY NOTE:
  The actor header is trusted as sent. Authentication sits in front of this
  service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// ActorHeader carries the acting staff member's id.
const ActorHeader = "X-Actor-ID"

type actorKey struct{}

// ActorMiddleware copies the actor header into the request context.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			r = r.WithContext(context.WithValue(r.Context(), actorKey{}, actor))
		}
		next.ServeHTTP(w, r)
	})
}

func actorFrom(r *http.Request) string {
	actor, _ := r.Context().Value(actorKey{}).(string)
	return actor
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		AllowCredentials: true,
	}))
	r.Use(ActorMiddleware)

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", h.CreateReservation)
			r.Get("/{id}", h.GetReservation)
			r.Delete("/{id}", h.DeleteReservation)
			r.Post("/{id}/cancel", h.CancelReservation)
			r.Get("/{id}/payments", h.ListReservationPayments)
			r.Get("/{id}/reconciliation", h.GetReconciliation)
		})

		r.Route("/rooms", func(r chi.Router) {
			r.Post("/{id}/check-in", h.CheckInRoom)
			r.Post("/{id}/check-out", h.CheckOutRoom)
			r.Post("/{id}/cancel", h.CancelRoom)
			r.Post("/{id}/no-show", h.MarkRoomNoShow)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.RecordPayment)
			r.Delete("/{id}", h.DeletePayment)
			r.Post("/{id}/refund", h.RefundPayment)
			r.Post("/{id}/cancel", h.CancelPayment)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Delete("/payments/{id}", h.HardDeletePayment)
		})

		r.Get("/numbers/{identifier}", h.ParseNumber)
	})

	return r
}
