package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hazyhaar/vaultfs/internal/apperr"
	"github.com/hazyhaar/vaultfs/internal/audit"
	"github.com/hazyhaar/vaultfs/internal/signer"
	"github.com/hazyhaar/vaultfs/internal/tenantauth"
)

type createLinkRequest struct {
	TTLSeconds int `json:"ttl_seconds"`
}

type linkResponse struct {
	OK        bool   `json:"ok"`
	Token     string `json:"token"`
	Path      string `json:"path"`
	URL       string `json:"url,omitempty"`
	ExpiresAt int64  `json:"expires_at_ms"`
}

func (a *API) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	if len(a.SigningKey) == 0 {
		writeErr(w, apperr.InvalidRequest("httpapi: signed links are disabled (no SIGNING_KEY configured)"))
		return
	}

	identity, err := a.resolve(r, queryHint(r), tenantauth.RoleWriter)
	if err != nil {
		writeErr(w, err)
		return
	}
	id := fileID(r)

	f, err := a.Store.LookupLive(r.Context(), identity.TenantID, id)
	if err != nil {
		writeErr(w, apperr.Internal("httpapi: lookup live", err))
		return
	}
	if f == nil {
		writeErr(w, apperr.NotFound("httpapi: no such file"))
		return
	}

	var req createLinkRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, apperr.InvalidRequest("httpapi: malformed json body: "+err.Error()))
			return
		}
	}

	ttl := signer.ClampTTL(req.TTLSeconds)
	exp := time.Now().Add(ttl)
	token, err := signer.Sign(a.SigningKey, identity.TenantID, id, exp)
	if err != nil {
		writeErr(w, apperr.Internal("httpapi: sign token", err))
		return
	}

	path := "/v1/public/download?token=" + token
	resp := linkResponse{OK: true, Token: token, Path: path, ExpiresAt: exp.UnixMilli()}
	if a.PublicBaseURL != "" {
		resp.URL = a.PublicBaseURL + path
	}

	a.Audit.Log(audit.Entry{
		Action:   "link_create",
		TenantID: identity.TenantID,
		KeyID:    identity.KeyID,
		FileID:   id,
		Extra:    map[string]any{"ttl_seconds": int(ttl.Seconds())},
	})

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handlePublicDownload(w http.ResponseWriter, r *http.Request) {
	if len(a.SigningKey) == 0 {
		writeErr(w, apperr.InvalidRequest("httpapi: signed links are disabled (no SIGNING_KEY configured)"))
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		writeErr(w, apperr.InvalidRequest("httpapi: missing token"))
		return
	}

	payload, err := signer.Verify(a.SigningKey, token, time.Now())
	if err != nil {
		writeErr(w, err)
		return
	}

	a.Audit.Log(audit.Entry{
		Action:   "public_download",
		TenantID: payload.TenantID,
		FileID:   payload.FileID,
	})

	a.streamDownload(w, r, payload.TenantID, payload.FileID)
}
