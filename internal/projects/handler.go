// handler.go -- HTTP handlers for /api/projects and /api/public/projects.
package projects

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MGallo-Code/dirshare/internal/auth"
	"github.com/MGallo-Code/dirshare/internal/store"
	"github.com/MGallo-Code/dirshare/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
)

// maxBodyBytes caps uploads; trees of large drives get big.
const maxBodyBytes = 16 << 20

type Handler struct {
	Svc *Service
}

// projectView is the owner's view of a project, with share links resolved.
type projectView struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Size      int64           `json:"size"`
	ItemCount int             `json:"itemCount"`
	ShortID   string          `json:"shortId,omitempty"`
	ShortURL  string          `json:"shortUrl,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (h *Handler) view(p *store.Project) projectView {
	return projectView{
		ID:        p.ID,
		Name:      p.Name,
		Size:      p.Size,
		ItemCount: p.ItemCount,
		ShortID:   p.ShortID,
		ShortURL:  h.Svc.ShortLink(p.ShortID),
		Data:      p.Data,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// writeError maps service errors to responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		web.NotFound(w, "project not found")
	case errors.Is(err, ErrEmptyName), errors.Is(err, ErrNameTooLong),
		errors.Is(err, ErrInvalidData), errors.Is(err, ErrNegative):
		web.BadRequest(w, err.Error())
	default:
		web.InternalServerError(w, r, err)
	}
}

// projectID parses the {id} URL param; a malformed id is reported as not found.
func projectID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		web.NotFound(w, "project not found")
		return uuid.Nil, false
	}
	return id, true
}

// owner returns the authenticated user id injected by the gateway.
func owner(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		web.InternalServerError(w, r, errors.New("missing session context"))
		return uuid.Nil, false
	}
	return userID, true
}

// Create handles POST /api/projects -- {name, size, itemCount, data} -> 201 {id, shortId, shortUrl}.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}

	var input struct {
		Name      string          `json:"name"`
		Size      int64           `json:"size"`
		ItemCount int             `json:"itemCount"`
		Data      json.RawMessage `json:"data"`
	}
	if err := web.DecodeJSONLimit(w, r, &input, maxBodyBytes); err != nil {
		web.LogWarn(r, "failed to decode project input", "error", err)
		web.BadRequest(w, "error decoding request body")
		return
	}

	p, err := h.Svc.Create(r.Context(), CreateInput{
		UserID:    userID,
		Name:      input.Name,
		Size:      input.Size,
		ItemCount: input.ItemCount,
		Data:      input.Data,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	web.LogInfo(r, "project created", "user_id", userID, "project_id", p.ID)
	web.JSON(w, http.StatusCreated, map[string]any{
		"id":       p.ID,
		"shortId":  p.ShortID,
		"shortUrl": h.Svc.ShortLink(p.ShortID),
	})
}

// List handles GET /api/projects -- metadata only, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	summaries, err := h.Svc.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]projectView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, projectView{
			ID:        s.ID,
			Name:      s.Name,
			Size:      s.Size,
			ItemCount: s.ItemCount,
			ShortID:   s.ShortID,
			ShortURL:  h.Svc.ShortLink(s.ShortID),
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		})
	}
	web.JSON(w, http.StatusOK, map[string]any{"projects": views})
}

// Get handles GET /api/projects/{id}. Projects of other users are 404.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	id, ok := projectID(w, r)
	if !ok {
		return
	}
	p, err := h.Svc.Get(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, h.view(p))
}

// Rename handles PATCH /api/projects/{id} -- {name}.
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	id, ok := projectID(w, r)
	if !ok {
		return
	}
	var input struct {
		Name string `json:"name"`
	}
	if err := web.DecodeJSON(w, r, &input); err != nil {
		web.BadRequest(w, "error decoding request body")
		return
	}
	p, err := h.Svc.Rename(r.Context(), userID, id, input.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view := h.view(p)
	view.Data = nil
	web.JSON(w, http.StatusOK, view)
}

// Delete handles DELETE /api/projects/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	id, ok := projectID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Delete(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	web.LogInfo(r, "project deleted", "user_id", userID, "project_id", id)
	web.JSON(w, http.StatusOK, map[string]any{"success": true})
}

// Public handles GET /api/public/projects/{id} -- read-only view, no session needed.
func (h *Handler) Public(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}
	p, err := h.Svc.GetPublic(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, toPublic(p))
}
