// ABOUTME: HTTP route table for coco-gateway built on chi
// ABOUTME: Groups routes by the role they require: public, standard user, privileged

package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/2389/coco-gateway/internal/auth"
	"github.com/2389/coco-gateway/internal/store"
)

// routes builds the gateway's HTTP handler.
func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()

	// Public: health, password login, and the WebSocket (which authenticates in-band)
	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)
	r.Post("/login", g.handleLogin)
	r.Get("/coco", g.handleCoco)

	// Any authenticated user
	r.Group(func(r chi.Router) {
		r.Use(auth.HTTPAuthMiddleware(g.hub, store.RoleStandard, g.logger))

		r.Route("/types", func(r chi.Router) {
			r.Get("/", g.handleListTypes)
			r.Post("/", g.handleCreateType)
			r.Get("/{id}", g.handleGetType)
			r.Put("/{id}", g.handleUpdateType)
			r.Delete("/{id}", g.handleDeleteType)
		})

		r.Route("/items", func(r chi.Router) {
			r.Get("/", g.handleListItems)
			r.Post("/", g.handleCreateItem)
			r.Get("/{id}", g.handleGetItem)
			r.Put("/{id}", g.handleUpdateItem)
			r.Delete("/{id}", g.handleDeleteItem)
		})

		r.Get("/data/{item_id}", g.handleListReadings)
		r.Post("/data/{item_id}", g.handleRecordData)

		r.Route("/rules/{kind}", func(r chi.Router) {
			r.Get("/", g.handleListRules)
			r.Post("/", g.handleCreateRule)
			r.Get("/{id}", g.handleGetRule)
			r.Put("/{id}", g.handleUpdateRule)
			r.Delete("/{id}", g.handleDeleteRule)
		})
	})

	// Privileged only
	r.Group(func(r chi.Router) {
		r.Use(auth.HTTPAuthMiddleware(g.hub, store.RolePrivileged, g.logger))

		r.Route("/users", func(r chi.Router) {
			r.Get("/", g.handleListUsers)
			r.Post("/", g.handleCreateUser)
			r.Get("/{id}", g.handleGetUser)
			r.Put("/{id}", g.handleUpdateUser)
			r.Delete("/{id}", g.handleDeleteUser)
		})

		r.Post("/engine/events", g.handleEngineEvents)
	})

	return r
}
