// Entry point for the vaultfs HTTP service — chi router, API-key tenants,
// content-addressed blob storage with optional at-rest encryption.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/vaultfs/internal/audit"
	"github.com/hazyhaar/vaultfs/internal/download"
	"github.com/hazyhaar/vaultfs/internal/horosafe"
	"github.com/hazyhaar/vaultfs/internal/httpapi"
	"github.com/hazyhaar/vaultfs/internal/ingest"
	"github.com/hazyhaar/vaultfs/internal/objectstore"
	"github.com/hazyhaar/vaultfs/internal/shield"
	"github.com/hazyhaar/vaultfs/internal/store"
	"github.com/hazyhaar/vaultfs/internal/tenantauth"
)

func main() {
	port := env("PORT", "8099")
	dataDir := env("DATA_DIR", "/data")
	dbPath := env("DB_PATH", filepath.Join(dataDir, "meta.db"))
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	requireKey := boolEnv("REQUIRE_API_KEY", true)
	keys := parseAPIKeys(os.Getenv("API_KEYS_JSON"))
	masterKey := os.Getenv("MASTER_KEY")
	publicBaseURL := os.Getenv("PUBLIC_BASE_URL")
	auditPath := os.Getenv("AUDIT_LOG_PATH")

	var signingKey []byte
	if s := os.Getenv("SIGNING_KEY"); s != "" {
		signingKey = []byte(s)
		if err := horosafe.ValidateSecret(signingKey); err != nil {
			slog.Warn("SIGNING_KEY is short", "error", err)
		}
	}

	// Metadata store.
	st, err := store.Open(dbPath)
	if err != nil {
		slog.Error("open metadata store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Object store.
	objs := objectstore.New(dataDir)
	if err := objs.EnsureTmpDir(); err != nil {
		slog.Error("create tmp dir", "error", err)
		os.Exit(1)
	}

	auditLogger := audit.New(auditPath)
	resolver := tenantauth.New(requireKey, keys)

	api := httpapi.New(
		st,
		objs,
		&ingest.Pipeline{Store: st, Objects: objs, Audit: auditLogger, Passphrase: masterKey},
		&download.Pipeline{Store: st, Objects: objs, Passphrase: masterKey},
		resolver,
		auditLogger,
		signingKey,
		publicBaseURL,
	)

	// Router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	for _, mw := range shield.Stack() {
		r.Use(mw)
	}
	r.Mount("/", api.Router())

	slog.Info("vaultfs starting",
		"port", port,
		"data_dir", dataDir,
		"db_path", dbPath,
		"encryption", masterKey != "",
		"require_api_key", requireKey,
		"api_keys", len(keys),
		"signed_links", len(signingKey) > 0,
		"audit_log", auditPath != "",
	)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// boolEnv treats "true" and "1" as true, any other non-empty value as
// false, and absence as def.
func boolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1"
}

// parseAPIKeys decodes API_KEYS_JSON. Invalid or empty input yields an
// empty table rather than a startup failure: the service then answers 401
// to everything, which is the safer direction to fail in.
func parseAPIKeys(raw string) []tenantauth.Key {
	if raw == "" {
		return nil
	}
	var keys []tenantauth.Key
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		slog.Warn("API_KEYS_JSON is not a valid key array", "error", err)
		return nil
	}
	return keys
}
