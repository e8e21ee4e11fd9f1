package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/flaretrack/apiserver/internal/services"
	"github.com/flaretrack/apiserver/internal/store"
	"github.com/flaretrack/apiserver/types"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

type UserHandler struct {
	userService *services.UserService
	export      *services.ExportService
}

func NewUserHandler(userService *services.UserService, export *services.ExportService) *UserHandler {
	return &UserHandler{userService: userService, export: export}
}

// UserRouter registers account management routes. Listing is admin only,
// everything else is admin-or-self.
func UserRouter(
	r chi.Router,
	userService *services.UserService,
	export *services.ExportService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewUserHandler(userService, export)
	adminOrSelf := requireAdminOrSelf(userService)

	r.Use(authMiddleware)

	r.With(requireAdmin(userService)).Get("/", handler.List)
	r.Route("/{userID}", func(r chi.Router) {
		r.Use(adminOrSelf)
		r.Get("/", handler.Profile)
		r.Patch("/", handler.Edit)
		r.Delete("/", handler.Delete)
		r.Post("/export", handler.Export)
	})
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, UserListResponse{Users: users})
}

// Profile returns the user together with all their current assignments.
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	profile, err := h.userService.GetProfile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *UserHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UserPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Email == nil && req.Name == nil && req.Password == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email == "" {
			writeError(w, http.StatusBadRequest, "email must not be empty")
			return
		}
		if email != user.Email {
			if _, err := h.userService.GetByEmail(r.Context(), email); err == nil {
				writeError(w, http.StatusConflict, "there is already an account for "+email)
				return
			} else if !errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
		}
		user.Email = email
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Password != nil {
		if len(*req.Password) < 8 {
			writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		user.PasswordHash = string(hash)
	}

	updated, err := h.userService.Update(r.Context(), user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "there is already an account for "+user.Email)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.userService.Delete(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export writes the user's full tracking history to object storage as a
// CSV archive and returns the object key.
func (h *UserHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.export == nil || !h.export.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "export storage is not configured")
		return
	}

	userID, err := parseUserIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := h.export.Export(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusCreated, ExportResponse{Key: key})
}

type UserListResponse struct {
	Users []types.User `json:"users"`
}

type UserPatchRequest struct {
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Password *string `json:"password"`
}

type ExportResponse struct {
	Key string `json:"key"`
}
