package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/vaultfs/internal/audit"
	"github.com/hazyhaar/vaultfs/internal/dbopen"
	"github.com/hazyhaar/vaultfs/internal/download"
	"github.com/hazyhaar/vaultfs/internal/httpapi"
	"github.com/hazyhaar/vaultfs/internal/ingest"
	"github.com/hazyhaar/vaultfs/internal/objectstore"
	"github.com/hazyhaar/vaultfs/internal/signer"
	"github.com/hazyhaar/vaultfs/internal/store"
	"github.com/hazyhaar/vaultfs/internal/tenantauth"

	_ "modernc.org/sqlite"
)

const helloID = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

type env struct {
	srv     *httptest.Server
	store   *store.Store
	objects *objectstore.Store
	dataDir string
}

type envConfig struct {
	passphrase string
	signingKey []byte
	authKeys   []tenantauth.Key // non-nil enables auth
	auditPath  string
}

func newEnv(t *testing.T, cfg envConfig) *env {
	t.Helper()
	dataDir := t.TempDir()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	st := &store.Store{DB: db}
	objs := objectstore.New(dataDir)
	if err := objs.EnsureTmpDir(); err != nil {
		t.Fatal(err)
	}

	auditLogger := audit.New(cfg.auditPath)
	resolver := tenantauth.New(cfg.authKeys != nil, cfg.authKeys)

	api := httpapi.New(
		st,
		objs,
		&ingest.Pipeline{Store: st, Objects: objs, Audit: auditLogger, Passphrase: cfg.passphrase},
		&download.Pipeline{Store: st, Objects: objs, Passphrase: cfg.passphrase},
		resolver,
		auditLogger,
		cfg.signingKey,
		"",
	)

	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return &env{srv: srv, store: st, objects: objs, dataDir: dataDir}
}

func (e *env) upload(t *testing.T, body []byte, fields map[string]string, headers map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := w.CreateFormFile("file", "hello.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(body); err != nil {
		t.Fatal(err)
	}
	w.Close()

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/v1/files", &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

type ingestResp struct {
	OK        bool   `json:"ok"`
	FileID    string `json:"file_id"`
	SHA256    string `json:"sha256"`
	Size      int64  `json:"size"`
	Encrypted bool   `json:"encrypted"`
}

type listResp struct {
	OK    bool          `json:"ok"`
	Items []*store.File `json:"items"`
}

type linkResp struct {
	OK        bool   `json:"ok"`
	Token     string `json:"token"`
	Path      string `json:"path"`
	ExpiresAt int64  `json:"expires_at_ms"`
}

func TestHealthAndReadyz(t *testing.T) {
	e := newEnv(t, envConfig{})
	for _, path := range []string{"/health", "/readyz"} {
		resp := e.do(t, http.MethodGet, path, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %d", path, resp.StatusCode)
		}
		body := decode[map[string]bool](t, resp)
		if !body["ok"] {
			t.Fatalf("%s: body %v", path, body)
		}
	}
}

func TestUploadAndDownload_Plaintext(t *testing.T) {
	e := newEnv(t, envConfig{})

	resp := e.upload(t, []byte("hello"), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status %d", resp.StatusCode)
	}
	ir := decode[ingestResp](t, resp)
	if ir.FileID != helloID || ir.Size != 5 || ir.Encrypted {
		t.Fatalf("unexpected ingest response: %+v", ir)
	}

	if _, err := os.Stat(filepath.Join(e.dataDir, "objects", "default", helloID)); err != nil {
		t.Fatalf("blob not on disk: %v", err)
	}

	dl := e.do(t, http.MethodGet, "/v1/files/"+helloID, nil, nil)
	defer dl.Body.Close()
	if dl.StatusCode != http.StatusOK {
		t.Fatalf("download status %d", dl.StatusCode)
	}
	if cd := dl.Header.Get("Content-Disposition"); !strings.Contains(cd, `filename="hello.txt"`) {
		t.Fatalf("content-disposition = %q", cd)
	}
	got, _ := io.ReadAll(dl.Body)
	if string(got) != "hello" {
		t.Fatalf("download body = %q", got)
	}
}

func TestUpload_DedupIsIdempotent(t *testing.T) {
	e := newEnv(t, envConfig{})

	first := decode[ingestResp](t, e.upload(t, []byte("hello"), nil, nil))
	second := decode[ingestResp](t, e.upload(t, []byte("hello"), nil, nil))
	if first.FileID != second.FileID {
		t.Fatalf("dedup mismatch: %q vs %q", first.FileID, second.FileID)
	}

	lr := decode[listResp](t, e.do(t, http.MethodGet, "/v1/files?q=hel", nil, nil))
	if len(lr.Items) != 1 {
		t.Fatalf("list returned %d items, want 1", len(lr.Items))
	}
}

func TestUpload_MissingFileField(t *testing.T) {
	e := newEnv(t, envConfig{})
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("session_id", "s1")
	w.Close()

	req, _ := http.NewRequest(http.MethodPost, e.srv.URL+"/v1/files", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

func TestUpload_MissingFilenameFallsBack(t *testing.T) {
	e := newEnv(t, envConfig{})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"`)
	h.Set("Content-Type", "application/octet-stream")
	fw, err := w.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	w.Close()

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/v1/files", &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	ir := decode[ingestResp](t, resp)

	meta := decode[store.File](t, e.do(t, http.MethodGet, "/v1/files/"+ir.FileID+"/meta", nil, nil))
	if meta.Filename != "file" {
		t.Fatalf("filename = %q, want the \"file\" fallback", meta.Filename)
	}
}

func TestUploadAndDownload_Encrypted(t *testing.T) {
	e := newEnv(t, envConfig{passphrase: "passw"})

	ir := decode[ingestResp](t, e.upload(t, []byte("secret"), nil, nil))
	if !ir.Encrypted {
		t.Fatal("expected encrypted=true")
	}

	cipherPath := filepath.Join(e.dataDir, "objects", "default", ir.FileID+".age")
	cipher, err := os.ReadFile(cipherPath)
	if err != nil {
		t.Fatalf("ciphertext not on disk: %v", err)
	}
	if bytes.Contains(cipher, []byte("secret")) {
		t.Fatal("ciphertext contains plaintext")
	}

	dl := e.do(t, http.MethodGet, "/v1/files/"+ir.FileID, nil, nil)
	defer dl.Body.Close()
	got, _ := io.ReadAll(dl.Body)
	if string(got) != "secret" {
		t.Fatalf("download body = %q", got)
	}
}

func TestSignedLink_RoundTripAndExpiry(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	e := newEnv(t, envConfig{signingKey: key})

	ir := decode[ingestResp](t, e.upload(t, []byte("hello"), nil, nil))

	link := decode[linkResp](t, e.do(t, http.MethodPost, "/v1/files/"+ir.FileID+"/link",
		map[string]int{"ttl_seconds": 30}, nil))
	if link.Token == "" || !strings.HasPrefix(link.Path, "/v1/public/download?token=") {
		t.Fatalf("unexpected link response: %+v", link)
	}

	dl := e.do(t, http.MethodGet, link.Path, nil, nil)
	got, _ := io.ReadAll(dl.Body)
	dl.Body.Close()
	if dl.StatusCode != http.StatusOK || string(got) != "hello" {
		t.Fatalf("public download: status %d body %q", dl.StatusCode, got)
	}

	// A token minted already-expired is rejected.
	expired, err := signer.Sign(key, "default", ir.FileID, time.Now().Add(-time.Second))
	if err != nil {
		t.Fatal(err)
	}
	resp := e.do(t, http.MethodGet, "/v1/public/download?token="+expired, nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expired token: status %d, want 401", resp.StatusCode)
	}

	// Any bit flip in the token is rejected.
	tampered := []byte(link.Token)
	tampered[len(tampered)-1] ^= 1
	resp = e.do(t, http.MethodGet, "/v1/public/download?token="+string(tampered), nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("tampered token: status %d, want 401", resp.StatusCode)
	}
}

func TestSignedLink_DisabledWithoutKey(t *testing.T) {
	e := newEnv(t, envConfig{})
	ir := decode[ingestResp](t, e.upload(t, []byte("hello"), nil, nil))

	resp := e.do(t, http.MethodPost, "/v1/files/"+ir.FileID+"/link", map[string]int{}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("link without signing key: status %d, want 400", resp.StatusCode)
	}
}

func TestExtractStatus_AttemptCounter(t *testing.T) {
	e := newEnv(t, envConfig{})
	ir := decode[ingestResp](t, e.upload(t, []byte("hello"), nil, nil))

	for range 2 {
		resp := e.do(t, http.MethodPost, "/v1/files/"+ir.FileID+"/extract_status",
			map[string]string{"status": "error", "error": "boom"}, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("extract_status: %d", resp.StatusCode)
		}
	}

	meta := decode[store.File](t, e.do(t, http.MethodGet, "/v1/files/"+ir.FileID+"/meta", nil, nil))
	if meta.ExtractStatus == nil || *meta.ExtractStatus != "error" {
		t.Fatalf("extract_status = %v", meta.ExtractStatus)
	}
	if meta.ExtractAttempt != 2 {
		t.Fatalf("extract_attempt = %d, want 2", meta.ExtractAttempt)
	}
	if meta.ExtractError == nil || *meta.ExtractError != "boom" {
		t.Fatalf("extract_error = %v", meta.ExtractError)
	}
}

func TestExtractStatus_EmptyStatusRejected(t *testing.T) {
	e := newEnv(t, envConfig{})
	ir := decode[ingestResp](t, e.upload(t, []byte("hello"), nil, nil))

	resp := e.do(t, http.MethodPost, "/v1/files/"+ir.FileID+"/extract_status",
		map[string]string{"status": ""}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

func TestPendingExtract_Lifecycle(t *testing.T) {
	e := newEnv(t, envConfig{})
	ir := decode[ingestResp](t, e.upload(t, []byte("hello"), nil, nil))

	lr := decode[listResp](t, e.do(t, http.MethodGet, "/v1/files/pending_extract", nil, nil))
	if len(lr.Items) != 1 || lr.Items[0].FileID != ir.FileID {
		t.Fatalf("pending list: %+v", lr.Items)
	}

	resp := e.do(t, http.MethodPost, "/v1/files/"+ir.FileID+"/extract_status",
		map[string]string{"status": "done"}, nil)
	resp.Body.Close()

	lr = decode[listResp](t, e.do(t, http.MethodGet, "/v1/files/pending_extract", nil, nil))
	if len(lr.Items) != 0 {
		t.Fatalf("done file still pending: %+v", lr.Items)
	}
}

func TestAnnotations_Upsert(t *testing.T) {
	e := newEnv(t, envConfig{})
	ir := decode[ingestResp](t, e.upload(t, []byte("hello"), nil, nil))

	resp := e.do(t, http.MethodPost, "/v1/files/"+ir.FileID+"/annotations",
		map[string]any{"annotations": map[string]any{"lang": "en"}, "source": "worker-1"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("annotations: %d", resp.StatusCode)
	}

	meta := decode[store.File](t, e.do(t, http.MethodGet, "/v1/files/"+ir.FileID+"/meta", nil, nil))
	var ann map[string]string
	if err := json.Unmarshal(meta.Annotations, &ann); err != nil {
		t.Fatalf("annotations not json: %v", err)
	}
	if ann["lang"] != "en" {
		t.Fatalf("annotations = %v", ann)
	}

	resp = e.do(t, http.MethodPost, "/v1/files/nope/annotations",
		map[string]any{"annotations": 1}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown file: %d, want 404", resp.StatusCode)
	}
}

func TestTombstone_HidesEverywhere(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	e := newEnv(t, envConfig{signingKey: key})
	ir := decode[ingestResp](t, e.upload(t, []byte("hello"), nil, nil))

	resp := e.do(t, http.MethodPost, "/v1/files/"+ir.FileID+"/tombstone", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tombstone: %d", resp.StatusCode)
	}

	for _, path := range []string{
		"/v1/files/" + ir.FileID + "/meta",
		"/v1/files/" + ir.FileID,
	} {
		resp := e.do(t, http.MethodGet, path, nil, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("GET %s after tombstone: %d, want 404", path, resp.StatusCode)
		}
	}
	resp = e.do(t, http.MethodPost, "/v1/files/"+ir.FileID+"/link", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("link after tombstone: %d, want 404", resp.StatusCode)
	}

	lr := decode[listResp](t, e.do(t, http.MethodGet, "/v1/files", nil, nil))
	if len(lr.Items) != 0 {
		t.Fatalf("tombstoned file still listed: %+v", lr.Items)
	}

	// Second tombstone of the same record is NotFound, not a second delete.
	resp = e.do(t, http.MethodPost, "/v1/files/"+ir.FileID+"/tombstone", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("double tombstone: %d, want 404", resp.StatusCode)
	}

	// Re-ingest creates a fresh record, invisible to the tombstone.
	again := decode[ingestResp](t, e.upload(t, []byte("hello"), nil, nil))
	if again.FileID != ir.FileID {
		t.Fatalf("content address changed: %q", again.FileID)
	}
	meta := decode[store.File](t, e.do(t, http.MethodGet, "/v1/files/"+ir.FileID+"/meta", nil, nil))
	if meta.DeletedAtMs != nil {
		t.Fatal("fresh record carries tombstone")
	}
}

func TestAuthEnabled_KeysAndRoles(t *testing.T) {
	e := newEnv(t, envConfig{authKeys: []tenantauth.Key{
		{Key: "writer-key", TenantID: "acme", Role: "writer"},
		{Key: "reader-key", TenantID: "acme", Role: "reader"},
	}})

	// Missing key.
	resp := e.do(t, http.MethodGet, "/v1/files", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing key: %d, want 401", resp.StatusCode)
	}

	// Unknown key.
	resp = e.do(t, http.MethodGet, "/v1/files", nil, map[string]string{"x-api-key": "bogus"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown key: %d, want 401", resp.StatusCode)
	}

	// Writer can upload; the body tenant hint is ignored in favor of the key's tenant.
	ir := decode[ingestResp](t, e.upload(t, []byte("hello"),
		map[string]string{"tenant_id": "evil"}, map[string]string{"x-api-key": "writer-key"}))
	f, err := e.store.LookupLive(t.Context(), "acme", ir.FileID)
	if err != nil || f == nil {
		t.Fatalf("record not under key tenant: %v %v", f, err)
	}
	if hijacked, _ := e.store.LookupLive(t.Context(), "evil", ir.FileID); hijacked != nil {
		t.Fatal("body tenant hint was honored in enabled-auth mode")
	}

	// Reader can read but not mutate.
	resp = e.do(t, http.MethodGet, "/v1/files", nil, map[string]string{"x-api-key": "reader-key"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reader list: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do(t, http.MethodPost, "/v1/files/"+ir.FileID+"/tombstone", nil,
		map[string]string{"x-api-key": "reader-key"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("reader tombstone: %d, want 403", resp.StatusCode)
	}

	resp2 := e.upload(t, []byte("other"), nil, map[string]string{"x-api-key": "reader-key"})
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusForbidden {
		t.Fatalf("reader upload: %d, want 403", resp2.StatusCode)
	}
}

func TestTenantIsolation_DisabledAuthHints(t *testing.T) {
	e := newEnv(t, envConfig{})

	decode[ingestResp](t, e.upload(t, []byte("hello"), map[string]string{"tenant_id": "t1"}, nil))
	decode[ingestResp](t, e.upload(t, []byte("hello"), map[string]string{"tenant_id": "t2"}, nil))

	for _, tenant := range []string{"t1", "t2"} {
		lr := decode[listResp](t, e.do(t, http.MethodGet, "/v1/files?tenant_id="+tenant, nil, nil))
		if len(lr.Items) != 1 {
			t.Fatalf("tenant %s sees %d items, want 1", tenant, len(lr.Items))
		}
		if lr.Items[0].TenantID != tenant {
			t.Fatalf("tenant %s sees foreign record %+v", tenant, lr.Items[0])
		}
	}
}

func TestDownload_MissingBlobIsNotFound(t *testing.T) {
	e := newEnv(t, envConfig{})
	ir := decode[ingestResp](t, e.upload(t, []byte("hello"), nil, nil))

	if err := os.Remove(filepath.Join(e.dataDir, "objects", "default", ir.FileID)); err != nil {
		t.Fatal(err)
	}
	resp := e.do(t, http.MethodGet, "/v1/files/"+ir.FileID, nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing blob: %d, want 404", resp.StatusCode)
	}
}

func TestDownload_DecryptErrorTruncatesBody(t *testing.T) {
	e := newEnv(t, envConfig{passphrase: "passw"})

	// Several 64 KiB cipher chunks, so the early chunks stream out before
	// the corrupted final one fails authentication.
	plain := bytes.Repeat([]byte("0123456789abcdef"), 10_000)
	ir := decode[ingestResp](t, e.upload(t, plain, nil, nil))

	cipherPath := filepath.Join(e.dataDir, "objects", "default", ir.FileID+".age")
	cipher, err := os.ReadFile(cipherPath)
	if err != nil {
		t.Fatal(err)
	}
	cipher[len(cipher)-16] ^= 0xff
	if err := os.WriteFile(cipherPath, cipher, 0o644); err != nil {
		t.Fatal(err)
	}

	resp := e.do(t, http.MethodGet, "/v1/files/"+ir.FileID, nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: headers are on the wire before the decrypt error can surface", resp.StatusCode)
	}
	got, _ := io.ReadAll(resp.Body) // a read error here is also a valid truncation signal
	if len(got) >= len(plain) {
		t.Fatalf("body length %d, want truncation below %d", len(got), len(plain))
	}
	if !bytes.Equal(got, plain[:len(got)]) {
		t.Fatal("delivered prefix diverges from the plaintext")
	}
}

func TestAuditTrail_RecordsMutations(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	e := newEnv(t, envConfig{auditPath: auditPath})

	ir := decode[ingestResp](t, e.upload(t, []byte("hello"), nil, nil))
	resp := e.do(t, http.MethodPost, "/v1/files/"+ir.FileID+"/tombstone", nil, nil)
	resp.Body.Close()

	data, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("audit log missing: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("audit lines = %d, want 2", len(lines))
	}
	var first audit.Entry
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first.Action != "ingest" || first.FileID != ir.FileID {
		t.Fatalf("first audit entry: %+v", first)
	}
}
