package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/fieldsync/pkg/types"
)

// CORS applies the backend's allowed origin policy. The session header is
// exposed so browser tooling can read a fresh token after sign-in.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-FS-Token", types.RequestIDHeader},
		ExposedHeaders:   []string{"X-FS-Token", types.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
