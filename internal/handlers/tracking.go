package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/flaretrack/apiserver/internal/services"
	"github.com/flaretrack/apiserver/internal/store"
	"github.com/flaretrack/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// TrackingHandler serves the tracking ledger for one trackable kind.
// Diagnoses carry no ledger, so it is mounted for symptoms and
// medications only.
type TrackingHandler struct {
	kind     types.ItemKind
	tracking *services.TrackingService
	users    *services.UserService
}

func NewTrackingHandler(kind types.ItemKind, tracking *services.TrackingService, users *services.UserService) *TrackingHandler {
	return &TrackingHandler{kind: kind, tracking: tracking, users: users}
}

// TrackingRouter registers ledger routes under a per-user subtree. All
// routes require admin-or-self; the caller supplies authentication.
func TrackingRouter(r chi.Router, kind types.ItemKind, tracking *services.TrackingService, users *services.UserService) {
	handler := NewTrackingHandler(kind, tracking, users)

	r.Use(requireAdminOrSelf(users))

	r.Post("/", handler.Track)
	r.Get("/", handler.ListAll)
	r.Get("/day", handler.GetDay)
	r.Delete("/day", handler.DeleteDay)
	r.Patch("/", handler.EditValue)
	r.Delete("/", handler.DeleteOne)
	r.Get("/{recordID}", handler.GetOne)
}

func (h *TrackingHandler) Track(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if !h.validCell(w, req.ItemID, req.Date, req.Bucket, req.Value) {
		return
	}

	rec, err := h.tracking.Track(r.Context(), types.TrackingRecord{
		UserID: userID,
		ItemID: req.ItemID,
		Kind:   h.kind,
		Date:   req.Date,
		Bucket: req.Bucket,
		Value:  req.Value,
	})
	if err != nil {
		h.writeTrackingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *TrackingHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.tracking.GetAllForUser(r.Context(), h.kind, userID)
	if err != nil {
		h.writeTrackingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TrackingListResponse{Records: records})
}

func (h *TrackingHandler) GetDay(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, ok := h.dateQuery(w, r)
	if !ok {
		return
	}

	records, err := h.tracking.GetForDay(r.Context(), h.kind, userID, date)
	if err != nil {
		h.writeTrackingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TrackingListResponse{Records: records})
}

func (h *TrackingHandler) GetOne(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recordID, err := strconv.Atoi(chi.URLParam(r, "recordID"))
	if err != nil || recordID < 1 {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	rec, err := h.tracking.GetOne(r.Context(), h.kind, recordID, userID)
	if err != nil {
		h.writeTrackingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *TrackingHandler) EditValue(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if !h.validCell(w, req.ItemID, req.Date, req.Bucket, req.Value) {
		return
	}

	rec, err := h.tracking.EditValue(r.Context(), h.kind, userID, req.ItemID, req.Date, req.Bucket, req.Value)
	if err != nil {
		h.writeTrackingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *TrackingHandler) DeleteOne(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req DeleteCellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.ItemID < 1 {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	if _, err := parseDate(req.Date); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !types.ValidBucket(h.kind, req.Bucket) {
		writeError(w, http.StatusBadRequest, "invalid bucket "+req.Bucket)
		return
	}

	if err := h.tracking.DeleteOne(r.Context(), h.kind, userID, req.ItemID, req.Date, req.Bucket); err != nil {
		h.writeTrackingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TrackingHandler) DeleteDay(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, ok := h.dateQuery(w, r)
	if !ok {
		return
	}

	if err := h.tracking.DeleteDay(r.Context(), h.kind, userID, date); err != nil {
		h.writeTrackingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TrackingHandler) dateQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date query parameter is required")
		return "", false
	}
	if _, err := parseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return date, true
}

// validCell checks the shared cell coordinates plus the kind's value rule:
// symptom severity is an integer from 1 to 5, medication counts must be
// positive.
func (h *TrackingHandler) validCell(w http.ResponseWriter, itemID int, date, bucket string, value float64) bool {
	if itemID < 1 {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return false
	}
	if _, err := parseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if !types.ValidBucket(h.kind, bucket) {
		writeError(w, http.StatusBadRequest, "invalid bucket "+bucket)
		return false
	}
	switch h.kind {
	case types.ItemSymptom:
		if value != float64(int(value)) || value < 1 || value > 5 {
			writeError(w, http.StatusBadRequest, "severity must be an integer between 1 and 5")
			return false
		}
	case types.ItemMedication:
		if value <= 0 {
			writeError(w, http.StatusBadRequest, "number taken must be positive")
			return false
		}
	}
	return true
}

func (h *TrackingHandler) writeTrackingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type TrackRequest struct {
	ItemID int     `json:"item_id"`
	Date   string  `json:"date"`
	Bucket string  `json:"bucket"`
	Value  float64 `json:"value"`
}

type DeleteCellRequest struct {
	ItemID int    `json:"item_id"`
	Date   string `json:"date"`
	Bucket string `json:"bucket"`
}

type TrackingListResponse struct {
	Records []types.TrackingRecord `json:"records"`
}
