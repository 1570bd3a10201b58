package review

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-resolver/internal/model"
)

// NewRouter builds the review-queue read API. Triage happens in an external
// admin UI; this surface only lists, shows, and annotates entries.
func NewRouter(store Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	h := &apiHandler{store: store}
	r.Get("/health", h.health)
	r.Get("/review", h.list)
	r.Get("/review/{id}", h.get)
	r.Post("/review/{id}/resolve", h.resolve)
	return r
}

type apiHandler struct {
	store Store
}

func (h *apiHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *apiHandler) list(w http.ResponseWriter, r *http.Request) {
	f := Filter{Reason: model.ReviewReason(r.URL.Query().Get("reason"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, eris.New("review: invalid limit"))
			return
		}
		f.Limit = limit
	}

	entries, err := h.store.ListPending(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []model.ReviewEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *apiHandler) get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if eris.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *apiHandler) resolve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "review: decode body"))
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.store.Resolve(r.Context(), id, body.Notes); err != nil {
		if eris.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": model.ReviewResolved})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("review: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		zap.L().Error("review: request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": eris.ToString(err, false)})
}
