package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/flaretrack/apiserver/internal/services"
	"github.com/flaretrack/apiserver/internal/store"
	"github.com/flaretrack/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// ItemHandler provides HTTP handlers for one catalog kind and its
// user-assignment subresources. The same handler serves diagnoses,
// symptoms, and medications; it is mounted once per kind.
type ItemHandler struct {
	kind        types.ItemKind
	catalog     *services.CatalogService
	assignments *services.AssignmentService
	users       *services.UserService
}

func NewItemHandler(kind types.ItemKind, catalog *services.CatalogService, assignments *services.AssignmentService, users *services.UserService) *ItemHandler {
	return &ItemHandler{
		kind:        kind,
		catalog:     catalog,
		assignments: assignments,
		users:       users,
	}
}

// ItemRouter registers catalog and assignment routes for one kind. All
// routes require authentication; catalog writes require admin, assignment
// routes require admin-or-self.
func ItemRouter(
	r chi.Router,
	kind types.ItemKind,
	catalog *services.CatalogService,
	assignments *services.AssignmentService,
	users *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewItemHandler(kind, catalog, assignments, users)
	admin := requireAdmin(users)
	adminOrSelf := requireAdminOrSelf(users)

	r.Use(authMiddleware)

	r.Get("/", handler.List)
	r.With(admin).Post("/", handler.Create)
	r.Route("/{itemID}", func(r chi.Router) {
		r.With(admin).Get("/", handler.Get)
		r.With(admin).Patch("/", handler.Edit)
		r.With(admin).Delete("/", handler.Delete)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Use(adminOrSelf)
			r.Post("/", handler.Connect)
			r.Get("/", handler.GetAssignment)
			r.Patch("/", handler.UpdateAssignment)
			r.Delete("/", handler.Disconnect)
		})
	})
}

func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.List(r.Context(), h.kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	writeJSON(w, http.StatusOK, ItemListResponse{Items: items})
}

func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseItemIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.catalog.Get(r.Context(), h.kind, id)
	if err != nil {
		h.writeItemError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ItemUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Synonyms) > 0 && h.kind != types.ItemDiagnosis {
		writeError(w, http.StatusBadRequest, "synonyms are only supported for diagnoses")
		return
	}

	item, err := h.catalog.Create(r.Context(), h.kind, req.Name, req.Synonyms)
	if err != nil {
		h.writeItemError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *ItemHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id, err := parseItemIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ItemPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Name == nil && req.Synonyms == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if req.Synonyms != nil && h.kind != types.ItemDiagnosis {
		writeError(w, http.StatusBadRequest, "synonyms are only supported for diagnoses")
		return
	}

	item, err := h.catalog.Edit(r.Context(), h.kind, id, services.ItemPatch{
		Name:     req.Name,
		Synonyms: req.Synonyms,
	})
	if err != nil {
		h.writeItemError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseItemIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.catalog.Delete(r.Context(), h.kind, id); err != nil {
		h.writeItemError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Connect enrolls a user with this item. An itemID of 0 creates the item
// first from the request body, then connects it.
func (h *ItemHandler) Connect(w http.ResponseWriter, r *http.Request) {
	itemID, err := parseItemIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := parseUserIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The body is optional when connecting an existing symptom, but a
	// malformed one must not silently drop metadata.
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	meta := services.AssignmentMetadata{
		Keywords:   req.Keywords,
		DosageNum:  req.DosageNum,
		DosageUnit: req.DosageUnit,
		TimesOfDay: req.TimeOfDay,
	}
	if !h.validMetadata(w, meta) {
		return
	}

	var assignment types.Assignment
	if itemID == 0 {
		if req.Item == nil || strings.TrimSpace(req.Item.Name) == "" {
			writeError(w, http.StatusBadRequest, "item name is required when item id is 0")
			return
		}
		assignment, err = h.assignments.ConnectNew(r.Context(), h.kind, userID, req.Item.Name, req.Item.Synonyms, meta)
	} else {
		assignment, err = h.assignments.Connect(r.Context(), h.kind, userID, itemID, meta)
	}
	if err != nil {
		h.writeItemError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, assignment)
}

func (h *ItemHandler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	itemID, err := parseItemIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := parseUserIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	assignment, err := h.assignments.Get(r.Context(), h.kind, userID, itemID)
	if err != nil {
		h.writeItemError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

// UpdateAssignment either repoints the assignment to a new item (body field
// new_item_id) or patches its metadata.
func (h *ItemHandler) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	itemID, err := parseItemIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := parseUserIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req AssignmentPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	var assignment types.Assignment
	if req.NewItemID != nil {
		if *req.NewItemID < 1 {
			writeError(w, http.StatusBadRequest, "invalid new item id")
			return
		}
		assignment, err = h.assignments.ChangeItem(r.Context(), h.kind, userID, itemID, *req.NewItemID)
	} else {
		// Symptom assignments carry no metadata, so a PATCH without
		// new_item_id has nothing to apply.
		if h.kind == types.ItemSymptom {
			writeError(w, http.StatusBadRequest, "symptom assignments accept only new_item_id")
			return
		}
		meta := services.AssignmentMetadata{
			Keywords:   req.Keywords,
			DosageNum:  req.DosageNum,
			DosageUnit: req.DosageUnit,
			TimesOfDay: req.TimeOfDay,
		}
		if !h.validMetadata(w, meta) {
			return
		}
		assignment, err = h.assignments.UpdateMetadata(r.Context(), h.kind, userID, itemID, meta)
	}
	if err != nil {
		h.writeItemError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

func (h *ItemHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	itemID, err := parseItemIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := parseUserIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.assignments.Disconnect(r.Context(), h.kind, userID, itemID); err != nil {
		h.writeItemError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validMetadata rejects metadata fields that do not belong to this kind and
// unknown medication time-of-day labels.
func (h *ItemHandler) validMetadata(w http.ResponseWriter, meta services.AssignmentMetadata) bool {
	if len(meta.Keywords) > 0 && h.kind != types.ItemDiagnosis {
		writeError(w, http.StatusBadRequest, "keywords are only supported for diagnoses")
		return false
	}
	if (meta.DosageNum != 0 || meta.DosageUnit != "" || len(meta.TimesOfDay) > 0) && h.kind != types.ItemMedication {
		writeError(w, http.StatusBadRequest, "dosage fields are only supported for medications")
		return false
	}
	for _, label := range meta.TimesOfDay {
		if !types.ValidBucket(types.ItemMedication, label) {
			writeError(w, http.StatusBadRequest, "invalid time of day "+label)
			return false
		}
	}
	return true
}

func (h *ItemHandler) writeItemError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type ItemListResponse struct {
	Items []types.Item `json:"items"`
}

type ItemUpsertRequest struct {
	Name     string   `json:"name"`
	Synonyms []string `json:"synonyms,omitempty"`
}

type ItemPatchRequest struct {
	Name     *string  `json:"name"`
	Synonyms []string `json:"synonyms"`
}

// ConnectRequest carries optional new-item data (for the id 0 sentinel) and
// kind-specific assignment metadata.
type ConnectRequest struct {
	Item       *ItemUpsertRequest `json:"item,omitempty"`
	Keywords   []string           `json:"keywords,omitempty"`
	DosageNum  float64            `json:"dosage_num,omitempty"`
	DosageUnit string             `json:"dosage_unit,omitempty"`
	TimeOfDay  []string           `json:"time_of_day,omitempty"`
}

type AssignmentPatchRequest struct {
	NewItemID  *int     `json:"new_item_id,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	DosageNum  float64  `json:"dosage_num,omitempty"`
	DosageUnit string   `json:"dosage_unit,omitempty"`
	TimeOfDay  []string `json:"time_of_day,omitempty"`
}
