// handler.go -- HTTP handlers for POST /short-url and GET /s/{shortId}.
package shorturl

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/MGallo-Code/dirshare/internal/web"
	"github.com/go-chi/chi/v5"
)

// Handler holds dependencies for the short URL endpoints.
type Handler struct {
	Svc *Service
	// BaseURL prefixes the shortUrl returned on creation, e.g. https://share.example.com.
	BaseURL string
}

// Create handles POST /short-url -- {originalUrl} -> {shortId, shortUrl}.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var input struct {
		OriginalURL string `json:"originalUrl"`
	}
	if err := web.DecodeJSON(w, r, &input); err != nil {
		web.LogWarn(r, "failed to decode short url input", "error", err)
		web.BadRequest(w, "error decoding request body")
		return
	}
	if input.OriginalURL == "" {
		web.BadRequest(w, "originalUrl is required")
		return
	}

	id, err := h.Svc.Create(r.Context(), input.OriginalURL)
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}

	web.JSON(w, http.StatusOK, map[string]string{
		"shortId":  id,
		"shortUrl": h.ShortURL(id),
	})
}

// ShortURL returns the public link for id.
func (h *Handler) ShortURL(id string) string {
	return strings.TrimRight(h.BaseURL, "/") + "/s/" + id
}

// projectPath picks the project id out of links minted for shared projects.
var projectPath = regexp.MustCompile(`/projects/([^/?&#]+)`)

// Redirect handles GET /s/{shortId}. Project links land on the public viewer
// with the short id attached; anything else is a plain 302. Unknown and
// expired ids get the "link expired" page.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "shortId")

	target, err := h.Svc.Resolve(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			web.LogInfo(r, "short url not found", "short_id", id)
			renderExpired(w)
			return
		}
		web.InternalServerError(w, r, err)
		return
	}

	if m := projectPath.FindStringSubmatch(target); m != nil {
		target = "/public/projects/" + m[1] + "?shortId=" + url.QueryEscape(id)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

var expiredPage = template.Must(template.New("expired").Parse(`<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body>
<main>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
<a href="{{.HomeURL}}">{{.HomeLabel}}</a>
</main>
</body>
</html>
`))

func renderExpired(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	expiredPage.Execute(w, struct {
		Title, Message, HomeURL, HomeLabel string
	}{
		Title:     "链接已过期",
		Message:   "此链接已过期或不存在。",
		HomeURL:   "/",
		HomeLabel: "返回首页",
	})
}
