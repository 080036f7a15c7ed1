package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/comparo/internal/adapters/mq/queue"
)

// originHTTP tags jobs received through the batch endpoint.
const originHTTP = "http"

// ComparablesHandler handles comparable reads and imports.
type ComparablesHandler struct {
	deps ComparableDependencies
}

// NewComparablesHandler creates a new comparables handler.
func NewComparablesHandler(deps ComparableDependencies) *ComparablesHandler {
	return &ComparablesHandler{deps: deps}
}

// HandleList handles GET /v1/comparables. Query parameters mirror SearchFilters;
// lat and lng give the center.
func (h *ComparablesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_comparables"
	filters, err := parseFilters(r.URL.Query())
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	page, err := h.deps.QueryComparables(r.Context(), filters, nil)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleGet handles GET /v1/comparables/{id}.
func (h *ComparablesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_comparable"
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	c, err := h.deps.GetComparable(r.Context(), id)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleImport handles POST /v1/comparables, importing one record synchronously.
func (h *ComparablesHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	const op = "api.import_comparable"
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	c, err := h.deps.ImportRaw(r.Context(), body)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	w.Header().Set("Location", "/v1/comparables/"+c.ID)
	writeJSON(w, http.StatusCreated, c)
}

// HandleBatch handles POST /v1/comparables:batch. Records are queued for
// asynchronous import; a full queue answers 429 with what was accepted.
func (h *ComparablesHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.batch_comparables"
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	receipt, err := h.deps.EnqueueBatch(r.Context(), body, originHTTP)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, receipt)
	case errors.Is(err, queue.ErrFull):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, receipt)
	default:
		writeError(w, Wrap(op, err))
	}
}
