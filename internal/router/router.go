package router

import (
	"net/http"

	"github.com/renderyard/backend/internal/auth"
	"github.com/renderyard/backend/internal/credits"
	"github.com/renderyard/backend/internal/generation"
)

// Middleware wraps a handler, e.g. session auth.
type Middleware func(http.Handler) http.Handler

// New returns an http.Handler serving the API under /api/v1.
// requireSession rejects unauthenticated callers; optionalSession attaches
// the user when present and lets anonymous requests through (the free
// text-to-image endpoint needs that).
func New(
	authHandler *auth.Handler,
	genHandler *generation.Handler,
	creditsHandler *credits.Handler,
	requireSession Middleware,
	optionalSession Middleware,
) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc(base+"/auth/register", authHandler.Register)
	mux.HandleFunc(base+"/auth/login", authHandler.Login)

	mux.Handle("POST "+base+"/generate", optionalSession(http.HandlerFunc(genHandler.Generate)))
	mux.Handle("POST "+base+"/generate/landscape", requireSession(http.HandlerFunc(genHandler.GenerateLandscape)))

	mux.Handle("GET "+base+"/generations", requireSession(http.HandlerFunc(genHandler.ListGenerations)))
	mux.Handle("DELETE "+base+"/generations/{id}", requireSession(http.HandlerFunc(genHandler.DeleteGeneration)))

	mux.Handle("GET "+base+"/credits/balance", requireSession(http.HandlerFunc(creditsHandler.Balance)))
	mux.Handle("GET "+base+"/credits/ledger", requireSession(http.HandlerFunc(creditsHandler.Ledger)))

	return mux
}
