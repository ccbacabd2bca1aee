package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"billingsync/internal/billing"
	"billingsync/internal/core"
	"billingsync/internal/types"
)

// AdminKeyHeader carries the operator key for /admin routes.
const AdminKeyHeader = "X-Admin-Key"

// CatalogAdmin exposes the live plan catalog to operators.
type CatalogAdmin interface {
	Current() *billing.Catalog
	Reload() (*billing.Catalog, error)
}

// AdminPlansHandler lists and hot-reloads the plan catalog.
type AdminPlansHandler struct {
	catalog CatalogAdmin
	keyHash types.SecretString
	logger  *slog.Logger
}

func NewAdminPlansHandler(catalog CatalogAdmin, keyHash types.SecretString, logger *slog.Logger) *AdminPlansHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminPlansHandler{catalog: catalog, keyHash: keyHash, logger: logger}
}

// RegisterRoutes mounts nothing when no key hash is configured, so the admin
// surface does not exist in that deployment.
func (h *AdminPlansHandler) RegisterRoutes(r chi.Router) {
	if h.keyHash.IsZero() {
		h.logger.Info("admin endpoints disabled: no admin key hash configured")
		return
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdminKey)
		r.Get("/plans", h.List)
		r.Post("/plans/reload", h.Reload)
	})
}

func (h *AdminPlansHandler) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(AdminKeyHeader)
		if key == "" {
			core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "admin key required", nil))
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(h.keyHash.Unmask()), []byte(key)); err != nil {
			h.logger.WarnContext(r.Context(), "admin key rejected",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "admin key invalid", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type catalogResponse struct {
	Source   string              `json:"source"`
	LoadedAt time.Time           `json:"loaded_at"`
	Plans    []billing.PlanEntry `json:"plans"`
}

func newCatalogResponse(c *billing.Catalog) catalogResponse {
	return catalogResponse{
		Source:   c.Source(),
		LoadedAt: c.LoadedAt(),
		Plans:    c.Entries(),
	}
}

// List returns the active snapshot.
func (h *AdminPlansHandler) List(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, newCatalogResponse(h.catalog.Current()))
}

// Reload re-reads the catalog file. A file that fails validation leaves the
// active snapshot in place and is reported as 400.
func (h *AdminPlansHandler) Reload(w http.ResponseWriter, r *http.Request) {
	next, err := h.catalog.Reload()
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "plan catalog reloaded by operator",
		"plans", len(next.Entries()),
		"request_id", types.GetRequestID(r.Context()),
	)
	core.JSON(w, r, http.StatusOK, newCatalogResponse(next))
}
