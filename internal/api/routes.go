package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// Routes assembles the chi router for the HTTP API. The realtime websocket
// handler is mounted separately by the server command.
func Routes(h *Handler, verifier TokenVerifier) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, render.M{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/signup", h.Signup)
		r.Post("/signin", h.Signin)
		r.Get("/avatars", h.ListAvatars)
		r.Get("/elements", h.ListElements)
		r.Get("/user/metadata/bulk", h.BulkMetadata)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(verifier))

			r.Post("/user/metadata", h.UpdateMetadata)

			r.Post("/space", h.CreateSpace)
			r.Get("/space/all", h.ListSpaces)
			r.Post("/space/element", h.AddSpaceElement)
			r.Delete("/space/element", h.RemoveSpaceElement)
			r.Get("/space/{spaceID}", h.GetSpace)
			r.Delete("/space/{spaceID}", h.DeleteSpace)

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Post("/element", h.CreateElement)
				r.Put("/element/{elementID}", h.UpdateElement)
				r.Post("/avatar", h.CreateAvatar)
				r.Post("/map", h.CreateMap)
			})
		})
	})

	return r
}
