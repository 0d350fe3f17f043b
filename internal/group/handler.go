package group

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	myMiddleware "go-messenger/internal/middleware"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service *Service
	log     *slog.Logger
}

func NewHandler(s *Service, log *slog.Logger) *Handler {
	return &Handler{service: s, log: log}
}

// Routes mounts the group endpoints under /api/groups.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/groups", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/{groupID}", h.Get)
		r.Put("/{groupID}", h.Update)
		r.Post("/{groupID}/members", h.AddMember)
		r.Delete("/{groupID}/members/{userID}", h.RemoveMember)
		r.Put("/{groupID}/admins/{userID}", h.Promote)
		r.Delete("/{groupID}/admins/{userID}", h.Demote)
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g, err := h.service.Create(r.Context(), actorID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actorID, groupID, ok := h.scope(w, r)
	if !ok {
		return
	}
	g, err := h.service.Get(r.Context(), actorID, groupID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actorID, groupID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req UpdateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	g, err := h.service.Update(r.Context(), actorID, groupID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	actorID, groupID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.service.AddMember(r.Context(), actorID, groupID, req); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actorID, groupID, ok := h.scope(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveMember(r.Context(), actorID, groupID, chi.URLParam(r, "userID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	h.setAdmin(w, r, true)
}

func (h *Handler) Demote(w http.ResponseWriter, r *http.Request) {
	h.setAdmin(w, r, false)
}

func (h *Handler) setAdmin(w http.ResponseWriter, r *http.Request, admin bool) {
	actorID, groupID, ok := h.scope(w, r)
	if !ok {
		return
	}
	if err := h.service.SetAdmin(r.Context(), actorID, groupID, chi.URLParam(r, "userID"), admin); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// scope extracts the caller and the group id, answering the request itself on failure.
func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	actorID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", 0, false
	}
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid group id", http.StatusBadRequest)
		return "", 0, false
	}
	return actorID, groupID, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrGroupNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNotAdmin), errors.Is(err, ErrNotMember):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrAlreadyMember), errors.Is(err, ErrLastAdmin):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error("Group operation failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
