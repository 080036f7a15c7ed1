package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/comparo/internal/domain/compset"
	"github.com/okian/comparo/internal/domain/model"
)

// compSetRequest mirrors the OpenAPI schema for comp set writes.
type compSetRequest struct {
	Name            string   `json:"name"`
	CompIDs         []string `json:"compIds"`
	Client          *string  `json:"client,omitempty"`
	Notes           *string  `json:"notes,omitempty"`
	IsDefaultForAvm bool     `json:"isDefaultForAvm"`
}

func (c compSetRequest) input() compset.Input {
	return compset.Input{
		Name:            c.Name,
		CompIDs:         c.CompIDs,
		Client:          c.Client,
		Notes:           c.Notes,
		IsDefaultForAvm: c.IsDefaultForAvm,
	}
}

// CompSetsHandler handles comp set requests.
type CompSetsHandler struct {
	deps CompSetDependencies
}

// NewCompSetsHandler creates a new comp sets handler.
func NewCompSetsHandler(deps CompSetDependencies) *CompSetsHandler {
	return &CompSetsHandler{deps: deps}
}

func setETag(w http.ResponseWriter, cs model.CompSet) {
	w.Header().Set("ETag", strconv.Quote(strconv.Itoa(cs.Version)))
}

// ifMatch reads the expected version from If-Match, accepting "3", 3 and W/"3".
func ifMatch(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" {
		return 0, ErrPrecondition
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, model.NewValidationError("If-Match", "must carry the comp set version")
	}
	return v, nil
}

// HandleCreate handles POST /v1/compsets.
func (h *CompSetsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_compset"
	var req compSetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	cs, err := h.deps.CreateCompSet(r.Context(), req.input())
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	setETag(w, cs)
	w.Header().Set("Location", "/v1/compsets/"+cs.ID)
	writeJSON(w, http.StatusCreated, cs)
}

// HandleList handles GET /v1/compsets?client=.
func (h *CompSetsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_compsets"
	sets, err := h.deps.ListCompSets(r.Context(), r.URL.Query().Get("client"))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, sets)
}

// HandleGet handles GET /v1/compsets/{id}.
func (h *CompSetsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_compset"
	cs, err := h.deps.GetCompSet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	setETag(w, cs)
	writeJSON(w, http.StatusOK, cs)
}

// HandleUpdate handles PUT /v1/compsets/{id} with If-Match.
func (h *CompSetsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_compset"
	version, err := ifMatch(r)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	var req compSetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	cs, err := h.deps.UpdateCompSet(r.Context(), chi.URLParam(r, "id"), version, req.input())
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	setETag(w, cs)
	writeJSON(w, http.StatusOK, cs)
}

// HandleDelete handles DELETE /v1/compsets/{id} with If-Match.
func (h *CompSetsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_compset"
	version, err := ifMatch(r)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if err := h.deps.DeleteCompSet(r.Context(), chi.URLParam(r, "id"), version); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
