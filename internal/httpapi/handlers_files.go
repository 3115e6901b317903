package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/hazyhaar/vaultfs/internal/apperr"
	"github.com/hazyhaar/vaultfs/internal/store"
	"github.com/hazyhaar/vaultfs/internal/tenantauth"
)

type listResponse struct {
	OK    bool          `json:"ok"`
	Items []*store.File `json:"items"`
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	identity, err := a.resolve(r, queryHint(r), tenantauth.RoleReader)
	if err != nil {
		writeErr(w, err)
		return
	}

	q := r.URL.Query()
	filter := store.ListFilter{
		SessionID:     q.Get("session_id"),
		Mime:          q.Get("mime"),
		ExtractStatus: q.Get("extract_status"),
		Q:             q.Get("q"),
	}
	items, err := a.Store.List(r.Context(), identity.TenantID, filter, queryInt(r, "limit", 0))
	if err != nil {
		writeErr(w, apperr.Internal("httpapi: list", err))
		return
	}
	if items == nil {
		items = []*store.File{}
	}
	writeJSON(w, http.StatusOK, listResponse{OK: true, Items: items})
}

func (a *API) handlePendingExtract(w http.ResponseWriter, r *http.Request) {
	identity, err := a.resolve(r, queryHint(r), tenantauth.RoleReader)
	if err != nil {
		writeErr(w, err)
		return
	}

	items, err := a.Store.ListPending(r.Context(), identity.TenantID, queryInt(r, "limit", 0))
	if err != nil {
		writeErr(w, apperr.Internal("httpapi: list pending", err))
		return
	}
	if items == nil {
		items = []*store.File{}
	}
	writeJSON(w, http.StatusOK, listResponse{OK: true, Items: items})
}

func (a *API) handleMeta(w http.ResponseWriter, r *http.Request) {
	identity, err := a.resolve(r, queryHint(r), tenantauth.RoleReader)
	if err != nil {
		writeErr(w, err)
		return
	}

	f, err := a.Store.LookupLive(r.Context(), identity.TenantID, fileID(r))
	if err != nil {
		writeErr(w, apperr.Internal("httpapi: lookup live", err))
		return
	}
	if f == nil {
		writeErr(w, apperr.NotFound("httpapi: no such file"))
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (a *API) handleDownload(w http.ResponseWriter, r *http.Request) {
	identity, err := a.resolve(r, queryHint(r), tenantauth.RoleReader)
	if err != nil {
		writeErr(w, err)
		return
	}
	a.streamDownload(w, r, identity.TenantID, fileID(r))
}

// streamDownload is shared by the authenticated and public (signed-link)
// download routes: both resolve to a (tenant, file_id) pair and then
// behave identically.
func (a *API) streamDownload(w http.ResponseWriter, r *http.Request, tenant, id string) {
	meta, body, err := a.Download.Open(r.Context(), tenant, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	defer body.Close()

	disposition := strings.ReplaceAll(meta.Filename, `"`, "_")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, disposition))
	if meta.Mime != nil && *meta.Mime != "" {
		w.Header().Set("Content-Type", *meta.Mime)
	}
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, 64*1024)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return // client disconnected: stop draining the decrypt worker
			}
		}
		if rerr != nil {
			return // EOF, or a decrypt error surfaced mid-stream: body truncates
		}
	}
}
