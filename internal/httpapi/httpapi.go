// Package httpapi is the HTTP transport layer: chi routes, request
// decoding, role gates, and response encoding for the ingest, download,
// signer, and extraction-state components. It owns multipart framing and
// identity resolution so that the engine packages underneath never touch
// an *http.Request.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/vaultfs/internal/audit"
	"github.com/hazyhaar/vaultfs/internal/download"
	"github.com/hazyhaar/vaultfs/internal/idgen"
	"github.com/hazyhaar/vaultfs/internal/ingest"
	"github.com/hazyhaar/vaultfs/internal/objectstore"
	"github.com/hazyhaar/vaultfs/internal/store"
	"github.com/hazyhaar/vaultfs/internal/tenantauth"
)

// API wires the component packages into HTTP handlers.
type API struct {
	Store    *store.Store
	Objects  *objectstore.Store
	Ingest   *ingest.Pipeline
	Download *download.Pipeline
	Auth     *tenantauth.Resolver
	Audit    *audit.Logger

	// SigningKey is the HMAC key for signed links. A nil key disables the
	// link endpoints: they answer with invalid_request instead of minting
	// tokens nobody could verify.
	SigningKey []byte

	// PublicBaseURL, when set, is used to build an absolute URL in link
	// responses.
	PublicBaseURL string

	tempName idgen.Generator
}

// New builds an API.
func New(st *store.Store, objs *objectstore.Store, ing *ingest.Pipeline, dl *download.Pipeline,
	auth *tenantauth.Resolver, auditLogger *audit.Logger, signingKey []byte, publicBaseURL string) *API {
	return &API{
		Store:         st,
		Objects:       objs,
		Ingest:        ing,
		Download:      dl,
		Auth:          auth,
		Audit:         auditLogger,
		SigningKey:    signingKey,
		PublicBaseURL: publicBaseURL,
		tempName:      idgen.UploadName(),
	}
}

// Router builds the chi mux for the service's routes. Ambient middleware
// (request ID, recovery, security headers) is applied by the caller
// (cmd/vaultfs), not here: this router only knows about vaultfs routes.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", a.handleHealth)
	r.Get("/readyz", a.handleReadyz)

	r.Route("/v1/files", func(r chi.Router) {
		r.Post("/", a.handleIngest)
		r.Get("/", a.handleList)
		r.Get("/pending_extract", a.handlePendingExtract)
		r.Get("/{file_id}/meta", a.handleMeta)
		r.Get("/{file_id}", a.handleDownload)
		r.Post("/{file_id}/link", a.handleCreateLink)
		r.Post("/{file_id}/annotations", a.handleAnnotations)
		r.Post("/{file_id}/extract_status", a.handleExtractStatus)
		r.Post("/{file_id}/tombstone", a.handleTombstone)
	})

	r.Route("/v1/public", func(r chi.Router) {
		r.Get("/download", a.handlePublicDownload)
	})

	return r
}

// fileID extracts the URL path parameter shared by every /v1/files/{file_id}/... route.
func fileID(r *http.Request) string { return chi.URLParam(r, "file_id") }

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.Store.Reinit(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// resolve resolves the caller's identity using hint as the tenant fallback
// (honored only in disabled-auth mode) and enforces min role.
func (a *API) resolve(r *http.Request, hint string, min tenantauth.Role) (tenantauth.Identity, error) {
	id, err := a.Auth.Resolve(r, hint)
	if err != nil {
		return tenantauth.Identity{}, err
	}
	if err := tenantauth.RequireRole(tenantauth.WithIdentity(r.Context(), id), min); err != nil {
		return tenantauth.Identity{}, err
	}
	return id, nil
}

func queryHint(r *http.Request) string { return r.URL.Query().Get("tenant_id") }

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	return n
}
