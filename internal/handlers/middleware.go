package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/flaretrack/apiserver/internal/services"
	"github.com/flaretrack/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
)

// requireAdmin allows only admin accounts through.
func requireAdmin(users *services.UserService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := userIDFromContext(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			user, err := users.GetByID(r.Context(), subject)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				writeError(w, http.StatusInternalServerError, "failed to load user")
				return
			}
			if !user.IsAdmin {
				writeError(w, http.StatusForbidden, "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireAdminOrSelf allows the user named by the {userID} route parameter,
// or any admin.
func requireAdminOrSelf(users *services.UserService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := userIDFromContext(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			target, err := parseUserIDParam(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			if subject == target {
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.GetByID(r.Context(), subject)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				writeError(w, http.StatusInternalServerError, "failed to load user")
				return
			}
			if !user.IsAdmin {
				writeError(w, http.StatusForbidden, "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseUserIDParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid user id")
	}
	return id, nil
}

// parseItemIDParam accepts 0: the connect route uses the zero id as the
// create-then-assign sentinel.
func parseItemIDParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "itemID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		return 0, errors.New("invalid item id")
	}
	return id, nil
}
