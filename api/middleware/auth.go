package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/fieldsync/api/responses"
	pkgAuth "github.com/angelmondragon/fieldsync/pkg/auth"
	"github.com/angelmondragon/fieldsync/pkg/config"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the rep.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.RepID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "token has no rep"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxRepID, claims.RepID)
			ctx = context.WithValue(ctx, ctxRepCode, claims.RepCode)
			if logg != nil {
				ctx = logg.WithRepID(ctx, claims.RepID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
