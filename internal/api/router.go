package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the handler set into a chi router.
func NewRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", h.HandleHealth)
	r.Get("/accounts", h.HandleListAccounts)

	r.Route("/accounts/{ownerID}", func(r chi.Router) {
		r.Post("/login", h.HandleLogin)
		r.Post("/login/code", h.HandleLoginCode)
		r.Post("/attach", h.HandleAttach)
		r.Delete("/", h.HandleUnlink)

		r.Get("/chats", h.HandleListChats)

		r.Put("/draft", h.HandlePutDraft)
		r.Get("/draft", h.HandleGetDraft)
		r.Delete("/draft", h.HandleDeleteDraft)

		r.Post("/broadcasts", h.HandleBroadcast)
		r.Get("/broadcasts", h.HandleBroadcastHistory)

		r.Post("/joins", h.HandleJoin)
	})

	return r
}
