package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/hazyhaar/vaultfs/internal/apperr"
	"github.com/hazyhaar/vaultfs/internal/audit"
	"github.com/hazyhaar/vaultfs/internal/tenantauth"
)

type upsertAnnotationsRequest struct {
	Annotations json.RawMessage `json:"annotations"`
	Source      string          `json:"source,omitempty"`
}

type annotationsResponse struct {
	OK bool `json:"ok"`
}

func (a *API) handleAnnotations(w http.ResponseWriter, r *http.Request) {
	identity, err := a.resolve(r, queryHint(r), tenantauth.RoleWriter)
	if err != nil {
		writeErr(w, err)
		return
	}
	id := fileID(r)

	var req upsertAnnotationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, apperr.InvalidRequest("httpapi: malformed json body: "+err.Error()))
		return
	}
	if len(req.Annotations) == 0 {
		// absent field: store an explicit JSON null, not an empty string
		req.Annotations = json.RawMessage("null")
	}

	n, err := a.Store.SetAnnotations(r.Context(), identity.TenantID, id, string(req.Annotations))
	if err != nil {
		writeErr(w, apperr.Internal("httpapi: set annotations", err))
		return
	}
	if n == 0 {
		writeErr(w, apperr.NotFound("httpapi: no such file"))
		return
	}

	source := req.Source
	if source == "" {
		source = "unknown"
	}
	a.Audit.Log(audit.Entry{
		Action:   "annotations_upsert",
		TenantID: identity.TenantID,
		KeyID:    identity.KeyID,
		FileID:   id,
		Extra:    map[string]any{"source": source},
	})

	writeJSON(w, http.StatusOK, annotationsResponse{OK: true})
}

type setExtractStatusRequest struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type extractStatusResponse struct {
	OK bool `json:"ok"`
}

func (a *API) handleExtractStatus(w http.ResponseWriter, r *http.Request) {
	identity, err := a.resolve(r, queryHint(r), tenantauth.RoleWriter)
	if err != nil {
		writeErr(w, err)
		return
	}
	id := fileID(r)

	var req setExtractStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, apperr.InvalidRequest("httpapi: malformed json body: "+err.Error()))
		return
	}
	if req.Status == "" {
		writeErr(w, apperr.InvalidRequest("httpapi: status must not be empty"))
		return
	}

	n, err := a.Store.SetExtractStatus(r.Context(), identity.TenantID, id, req.Status, req.Error)
	if err != nil {
		writeErr(w, apperr.Internal("httpapi: set extract status", err))
		return
	}
	if n == 0 {
		writeErr(w, apperr.NotFound("httpapi: no such file"))
		return
	}

	a.Audit.Log(audit.Entry{
		Action:   "extract_status",
		TenantID: identity.TenantID,
		KeyID:    identity.KeyID,
		FileID:   id,
		Extra:    map[string]any{"status": req.Status, "has_error": req.Error != ""},
	})

	writeJSON(w, http.StatusOK, extractStatusResponse{OK: true})
}

type tombstoneRequest struct {
	Reason string `json:"reason,omitempty"`
}

type tombstoneResponse struct {
	OK bool `json:"ok"`
}

func (a *API) handleTombstone(w http.ResponseWriter, r *http.Request) {
	identity, err := a.resolve(r, queryHint(r), tenantauth.RoleWriter)
	if err != nil {
		writeErr(w, err)
		return
	}
	id := fileID(r)

	var req tombstoneRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, apperr.InvalidRequest("httpapi: malformed json body: "+err.Error()))
			return
		}
	}

	changed, err := a.Store.Tombstone(r.Context(), identity.TenantID, id)
	if err != nil {
		writeErr(w, apperr.Internal("httpapi: tombstone", err))
		return
	}
	if !changed {
		writeErr(w, apperr.NotFound("httpapi: no such file"))
		return
	}

	a.Audit.Log(audit.Entry{
		Action:   "tombstone",
		TenantID: identity.TenantID,
		KeyID:    identity.KeyID,
		FileID:   id,
		Extra:    map[string]any{"reason": req.Reason},
	})

	writeJSON(w, http.StatusOK, tombstoneResponse{OK: true})
}
