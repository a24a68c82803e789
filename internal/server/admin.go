package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/UnknownOlympus/cookiejar/internal/cookie"
	"github.com/UnknownOlympus/cookiejar/internal/jarstore"
	"github.com/UnknownOlympus/cookiejar/internal/lib/logger/sl"
)

// JarStore is the part of the jar store the debug surface needs.
type JarStore interface {
	PeekJar(ctx context.Context, id string) *cookie.Jar
	FlushJar(ctx context.Context, id string) error
	ClearJar(ctx context.Context, id string)
}

type jarCookies struct {
	Jar     string          `json:"jar"`
	Cookies []cookie.Cookie `json:"cookies"`
}

// AdminHandler serves the jar debug endpoints.
type AdminHandler struct {
	store JarStore
	log   *slog.Logger
	now   func() time.Time
}

func NewAdminHandler(store JarStore, log *slog.Logger) *AdminHandler {
	return &AdminHandler{store: store, log: log, now: time.Now}
}

// Register mounts the debug routes on mux.
func (a *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug/jars/{id}/cookies", a.listCookies)
	mux.HandleFunc("POST /debug/jars/{id}/flush", a.flushJar)
	mux.HandleFunc("DELETE /debug/jars/{id}", a.deleteJar)
}

func (a *AdminHandler) listCookies(writer http.ResponseWriter, req *http.Request) {
	id := jarstore.SanitizeID(req.PathValue("id"))
	jar := a.store.PeekJar(req.Context(), id)

	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(jarCookies{Jar: id, Cookies: jar.Active(a.now())}); err != nil {
		a.log.ErrorContext(req.Context(), "Failed to write cookie listing", sl.Jar(id), sl.Err(err))
	}
}

func (a *AdminHandler) flushJar(writer http.ResponseWriter, req *http.Request) {
	id := jarstore.SanitizeID(req.PathValue("id"))

	if err := a.store.FlushJar(req.Context(), id); err != nil {
		a.log.ErrorContext(req.Context(), "Failed to flush jar", sl.Jar(id), sl.Err(err))
		http.Error(writer, "failed to flush jar", http.StatusInternalServerError)
		return
	}

	writer.WriteHeader(http.StatusNoContent)
}

func (a *AdminHandler) deleteJar(writer http.ResponseWriter, req *http.Request) {
	id := jarstore.SanitizeID(req.PathValue("id"))

	a.store.ClearJar(req.Context(), id)
	a.log.InfoContext(req.Context(), "Jar deleted via debug endpoint", sl.Jar(id))

	writer.WriteHeader(http.StatusNoContent)
}
