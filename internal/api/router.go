package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "hookrelay/internal/api/context"
	"hookrelay/internal/api/handlers"
	"hookrelay/internal/api/middleware"
)

type Dependencies struct {
	HookHandler    *handlers.HookHandler
	EventHandler   *handlers.EventHandler
	HealthHandler  *handlers.HealthHandler
	MetricsHandler *handlers.MetricsHandler
	AuthMiddleware *middleware.AuthMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	router.GET("/health", chain(deps.HealthHandler.Check, middleware.Instrument("/health")))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	authMid := deps.AuthMiddleware

	// Hook subscriptions, scoped to the authenticated user
	router.POST("/api/v1/hooks",
		chain(deps.HookHandler.Create, middleware.Instrument("/api/v1/hooks"), authMid.Handle))
	router.GET("/api/v1/hooks",
		chain(deps.HookHandler.List, middleware.Instrument("/api/v1/hooks"), authMid.Handle))
	router.GET("/api/v1/hooks/:hook_id",
		chain(deps.HookHandler.Get, middleware.Instrument("/api/v1/hooks/:hook_id"), authMid.Handle))
	router.DELETE("/api/v1/hooks/:hook_id",
		chain(deps.HookHandler.Delete, middleware.Instrument("/api/v1/hooks/:hook_id"), authMid.Handle))

	// Event catalog and custom events
	router.GET("/api/v1/events",
		chain(deps.EventHandler.List, middleware.Instrument("/api/v1/events"), authMid.Handle))
	router.POST("/api/v1/events",
		chain(deps.EventHandler.Fire, middleware.Instrument("/api/v1/events"), authMid.Handle))

	// Lifecycle changes reported by the host application
	router.POST("/api/v1/notifications",
		chain(deps.EventHandler.Notify, middleware.Instrument("/api/v1/notifications"), authMid.Handle))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
