package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/fieldsync/api/middleware"
	"github.com/angelmondragon/fieldsync/api/responses"
	"github.com/angelmondragon/fieldsync/api/validators"
	"github.com/angelmondragon/fieldsync/internal/backend"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/logger"
)

// RepClients lists the clients assigned to the rep in the path. A rep may
// only read its own portfolio. active_only=true drops inactive clients.
func RepClients(svc backend.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repID := chi.URLParam(r, "repId")
		if repID != middleware.RepIDFromContext(r.Context()) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "token does not match rep"))
			return
		}
		activeOnly, err := validators.ParseQueryBool(r, "active_only", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		clients, err := svc.ClientsForRep(r.Context(), repID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if activeOnly {
			kept := clients[:0]
			for _, c := range clients {
				if c.Active {
					kept = append(kept, c)
				}
			}
			clients = kept
		}
		responses.WriteSuccess(w, clients)
	}
}

func Products(svc backend.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		products, err := svc.Products(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, products)
	}
}

func PaymentTables(svc backend.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly, err := validators.ParseQueryBool(r, "active_only", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tables, err := svc.PaymentTables(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if activeOnly {
			kept := tables[:0]
			for _, t := range tables {
				if t.Active {
					kept = append(kept, t)
				}
			}
			tables = kept
		}
		responses.WriteSuccess(w, tables)
	}
}
