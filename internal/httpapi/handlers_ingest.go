package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/hazyhaar/vaultfs/internal/apperr"
	"github.com/hazyhaar/vaultfs/internal/ingest"
	"github.com/hazyhaar/vaultfs/internal/tenantauth"
)

// maxTextField bounds how much of a non-file multipart field this handler
// will buffer in memory — generous for tenant_id/session_id/source, which
// are short tags, not user content.
const maxTextField = 4096

type ingestResponse struct {
	OK        bool   `json:"ok"`
	FileID    string `json:"file_id"`
	SHA256    string `json:"sha256"`
	Size      int64  `json:"size"`
	Encrypted bool   `json:"encrypted"`
}

// handleIngest owns the multipart field loop — streaming the file part to
// a temp file while hashing — and then hands the completed stream to
// ingest.Pipeline.Commit.
func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := a.Objects.EnsureTmpDir(); err != nil {
		writeErr(w, apperr.Internal("httpapi: ensure tmp dir", err))
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeErr(w, apperr.InvalidRequest("httpapi: expected multipart/form-data: "+err.Error()))
		return
	}

	var tenantHint, sessionID, source, filename, mimeType string
	var tempPath, sha256hex string
	var size int64
	haveFile := false

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeErr(w, apperr.InvalidRequest("httpapi: bad multipart body: "+err.Error()))
			return
		}

		switch part.FormName() {
		case "file":
			filename = part.FileName()
			if filename == "" {
				filename = "file"
			}
			mimeType = part.Header.Get("Content-Type")
			tempPath, sha256hex, size, err = a.streamUpload(part)
			part.Close()
			if err != nil {
				writeErr(w, apperr.Internal("httpapi: stream upload", err))
				return
			}
			haveFile = true
		case "tenant_id":
			tenantHint = readTextField(part)
			part.Close()
		case "session_id":
			sessionID = readTextField(part)
			part.Close()
		case "source":
			source = readTextField(part)
			part.Close()
		default:
			// unknown fields are drained and ignored
			io.Copy(io.Discard, io.LimitReader(part, maxTextField))
			part.Close()
		}
	}

	if !haveFile {
		writeErr(w, apperr.InvalidRequest("httpapi: file field is required"))
		return
	}

	identity, err := a.resolve(r, tenantHint, tenantauth.RoleWriter)
	if err != nil {
		writeErr(w, err)
		return
	}

	result, err := a.Ingest.Commit(r.Context(), ingest.Params{
		TenantID:  identity.TenantID,
		KeyID:     identity.KeyID,
		SessionID: sessionID,
		Source:    source,
		Filename:  filename,
		Mime:      mimeType,
		TempPath:  tempPath,
		SHA256:    sha256hex,
		Size:      size,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		OK:        true,
		FileID:    result.FileID,
		SHA256:    result.SHA256,
		Size:      result.Size,
		Encrypted: result.Encrypted,
	})
}

// streamUpload copies part to a fresh temp file while simultaneously
// hashing and counting its bytes.
func (a *API) streamUpload(part *multipart.Part) (tempPath, sha256hex string, size int64, err error) {
	tempPath = a.Objects.NewTmpPath(a.tempName())
	f, err := os.Create(tempPath)
	if err != nil {
		return "", "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), part)
	if err != nil {
		return "", "", 0, err
	}
	return tempPath, hex.EncodeToString(h.Sum(nil)), n, nil
}

func readTextField(part *multipart.Part) string {
	data, _ := io.ReadAll(io.LimitReader(part, maxTextField))
	return strings.TrimSpace(string(data))
}
