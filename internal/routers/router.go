package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/api"
)

func New(h *api.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Get("/api/v1/healthz", h.Health)

	r.Get("/api/v1/rooms/{id}", h.RoomStatus)
	r.Post("/api/v1/rooms/{id}/review", h.ReviewRoom)

	r.Get("/ws/docs/{id}", h.CollabWS)

	return r
}
