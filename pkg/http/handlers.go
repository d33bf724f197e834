package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"onelink/pkg/access"
	"onelink/pkg/blob"
	"onelink/pkg/logging"
	"onelink/pkg/middleware"
	"onelink/pkg/ratelimit"
	"onelink/pkg/service"
	"onelink/pkg/storage"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	maxBodyBytes      = 1 << 20
	downloadURLExpiry = time.Hour
)

type FileServeMode string

const (
	FileServeRedirect FileServeMode = "redirect"
	FileServeInline   FileServeMode = "inline"
)

// Services are the application operations behind the routes.
type Services struct {
	Links       *service.LinkService
	Resolver    *service.SlugResolver
	Uploads     *service.UploadService
	Accounts    *service.AccountService
	Browse      *service.BrowseService
	Maintenance *service.MaintenanceService
}

type Settings struct {
	FileServeMode FileServeMode
	CronSecret    string
	AdminSecret   string
	// Development opens the admin diagnostics without a secret.
	Development bool
}

type Handler struct {
	svc      Services
	gate     *access.Gate
	blobs    blob.Store
	logger   *logging.Logger
	settings Settings
	now      func() time.Time
}

func NewHandler(svc Services, gate *access.Gate, blobs blob.Store, logger *logging.Logger, settings Settings) *Handler {
	if settings.FileServeMode == "" {
		settings.FileServeMode = FileServeRedirect
	}
	return &Handler{svc: svc, gate: gate, blobs: blobs, logger: logger, settings: settings, now: time.Now}
}

// authorize runs the application rate-limit pass for class. It writes the response
// and returns false when the request must stop.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, class ratelimit.RouteClass) bool {
	d, err := h.gate.Authorize(r.Context(), class, r, middleware.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return false
	}
	d.WriteHeaders(w)
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps service errors to responses. Unknown errors are logged and
// reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		limited *access.RateLimitError
		invalid *service.ValidationError
	)
	switch {
	case errors.As(err, &limited):
		access.WriteDenied(w, limited.Decision)
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "Validation failed",
			"fields": invalid.Fields,
		})
	case errors.Is(err, service.ErrUnauthorized):
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, service.ErrForbidden):
		writeMessage(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, service.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Not found")
	case errors.Is(err, service.ErrExpired):
		writeMessage(w, http.StatusGone, "This link has expired")
	case errors.Is(err, service.ErrConflict):
		writeMessage(w, http.StatusConflict, "Username is already taken")
	default:
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request")
		return false
	}
	return true
}

func (h *Handler) linkID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, service.ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) ResolveSlug(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Resolver.Resolve(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ratelimit.ClassAPI) {
		return
	}

	_, file, err := h.svc.Resolver.ResolveFile(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if h.settings.FileServeMode == FileServeRedirect {
		signed, err := h.blobs.SignedDownloadURL(r.Context(), file.StorageKey, file.FileName, downloadURLExpiry)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		http.Redirect(w, r, signed, http.StatusFound)
		return
	}

	body, info, err := h.blobs.Open(r.Context(), file.StorageKey)
	if errors.Is(err, blob.ErrNotFound) {
		h.writeError(w, r, service.ErrNotFound)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer body.Close()

	contentType, disposition := "application/octet-stream", "attachment"
	if inlineSafe(file.MimeType) {
		contentType, disposition = file.MimeType, "inline"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": file.FileName}))
	w.Header().Set("Content-Security-Policy", "sandbox")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn(r.Context(), "file stream interrupted", "error", err)
	}
}

// inlineTypes are rendered by browsers without running script. Anything else,
// including SVG and HTML, is served as a download.
var inlineTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/gif":       true,
	"image/webp":      true,
	"image/avif":      true,
	"application/pdf": true,
	"text/plain":      true,
}

func inlineSafe(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	return err == nil && inlineTypes[mediaType]
}

func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ratelimit.ClassBrowse) {
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	result, err := h.svc.Browse.Browse(r.Context(), service.BrowseQuery{
		Page:  page,
		Limit: limit,
		Type:  q.Get("type"),
		Sort:  q.Get("sort"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ratelimit.ClassBrowse) {
		return
	}

	profile, err := h.svc.Accounts.Profile(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ratelimit.ClassAPI) {
		return
	}

	links, err := h.svc.Links.List(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if links == nil {
		links = []storage.OneLink{}
	}
	writeJSON(w, http.StatusOK, links)
}

func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ratelimit.ClassCreate) {
		return
	}

	var req service.LinkRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := h.svc.Links.Create(r.Context(), middleware.UserIDFromContext(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ratelimit.ClassAPI) {
		return
	}
	id, ok := h.linkID(w, r)
	if !ok {
		return
	}

	view, err := h.svc.Links.Get(r.Context(), middleware.UserIDFromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) EditLink(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ratelimit.ClassCreate) {
		return
	}
	id, ok := h.linkID(w, r)
	if !ok {
		return
	}

	var req service.LinkRequest
	if !decode(w, r, &req) {
		return
	}

	view, err := h.svc.Links.Edit(r.Context(), middleware.UserIDFromContext(r.Context()), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ratelimit.ClassCreate) {
		return
	}
	id, ok := h.linkID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Links.Delete(r.Context(), middleware.UserIDFromContext(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CleanupLinks(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ratelimit.ClassCreate) {
		return
	}

	result, err := h.svc.Links.CleanupOwnExpired(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) RequestUpload(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ratelimit.ClassUpload) {
		return
	}

	var req service.UploadRequest
	if !decode(w, r, &req) {
		return
	}

	ticket, err := h.svc.Uploads.RequestUpload(r.Context(), middleware.UserIDFromContext(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ratelimit.ClassCreate) {
		return
	}

	var req service.CompleteUploadRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := h.svc.Uploads.CompleteUpload(r.Context(), middleware.UserIDFromContext(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) UpdateUsername(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ratelimit.ClassStrict) {
		return
	}

	var req struct {
		Username string `json:"username"`
	}
	if !decode(w, r, &req) {
		return
	}

	if _, err := h.svc.Accounts.UpdateUsername(r.Context(), middleware.UserIDFromContext(r.Context()), req.Username); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UsernameAvailable(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ratelimit.ClassAPI) {
		return
	}

	ok, err := h.svc.Accounts.UsernameAvailable(r.Context(), middleware.UserIDFromContext(r.Context()), r.URL.Query().Get("username"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": ok})
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ratelimit.ClassStrict) {
		return
	}

	if err := h.svc.Accounts.DeleteAccount(r.Context(), middleware.UserIDFromContext(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func hasBearerSecret(r *http.Request, secret string) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

func (h *Handler) CronCleanup(w http.ResponseWriter, r *http.Request) {
	if !hasBearerSecret(r, h.settings.CronSecret) {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	result, err := h.svc.Links.SweepExpired(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"deleted":      result.Deleted,
		"filesDeleted": result.FilesDeleted,
		"timestamp":    h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) SecurityStatus(w http.ResponseWriter, r *http.Request) {
	if !h.settings.Development && !hasBearerSecret(r, h.settings.AdminSecret) {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	report, err := h.svc.Maintenance.SecurityStatus(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*service.SecurityReport
		Timestamp string `json:"timestamp"`
	}{true, report, h.now().UTC().Format(time.RFC3339)})
}
