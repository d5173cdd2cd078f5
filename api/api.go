// Package api serves the status page and the admin HTTP endpoints: recent
// query events, cache statistics and the reload/filter/heuristic/dump
// verbs the console also exposes.
package api

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/semihalev/zlog/v2"

	"github.com/dnsgate/dnsgate/server"
)

// API type
type API struct {
	addr string
	srv  *server.Server
}

// New return new api
func New(addr string, srv *server.Server) *API {
	return &API{addr: addr, srv: srv}
}

// Run starts the HTTP server until ctx is cancelled. A blank address
// disables the API.
func (a *API) Run(ctx context.Context) {
	if a.addr == "" {
		return
	}

	r := mux.NewRouter()
	r.HandleFunc("/", a.statusPage).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/events", a.getEvents).Methods(http.MethodGet)
	v1.HandleFunc("/cache/stats", a.getCacheStats).Methods(http.MethodGet)
	v1.HandleFunc("/cache/purge", a.purgeCache).Methods(http.MethodPost)
	v1.HandleFunc("/cache/dump", a.dumpCache).Methods(http.MethodPost)
	v1.HandleFunc("/filter/enable", a.setFiltering(true)).Methods(http.MethodPost)
	v1.HandleFunc("/filter/disable", a.setFiltering(false)).Methods(http.MethodPost)
	v1.HandleFunc("/heuristic/enable", a.setHeuristics(true)).Methods(http.MethodPost)
	v1.HandleFunc("/heuristic/disable", a.setHeuristics(false)).Methods(http.MethodPost)
	v1.HandleFunc("/reload", a.reload).Methods(http.MethodPost)

	httpSrv := &http.Server{
		Addr:         a.addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	go func() {
		zlog.Info("API server listening...", "addr", a.addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Error("API listener failed", "addr", a.addr, "error", err.Error())
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) getEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.srv.Events())
}

func (a *API) getCacheStats(w http.ResponseWriter, _ *http.Request) {
	length, limit := a.srv.CacheStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"length":     length,
		"limit":      limit,
		"filtering":  a.srv.Filtering(),
		"heuristics": a.srv.Heuristics(),
	})
}

func (a *API) purgeCache(w http.ResponseWriter, _ *http.Request) {
	a.srv.ResetCache()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) dumpCache(w http.ResponseWriter, _ *http.Request) {
	if err := a.srv.DumpCache(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) setFiltering(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		a.srv.SetFiltering(on)
		writeJSON(w, http.StatusOK, map[string]any{"filtering": on})
	}
}

func (a *API) setHeuristics(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		a.srv.SetHeuristics(on)
		writeJSON(w, http.StatusOK, map[string]any{"heuristics": on})
	}
}

func (a *API) reload(w http.ResponseWriter, _ *http.Request) {
	if err := a.srv.Reload(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

var statusTemplate = template.Must(template.New("status").Parse(`<html>
<head><title>dnsgate</title>
<style type='text/css'>td, th {border: 1px solid #666; padding: .2em; font-family: monospace}</style>
</head><body>
<table>
<tr><th>Time</th><th>Client</th><th>Status</th><th>T</th><th>Resolver</th><th>Address</th><th>Host</th></tr>
{{range .}}<tr><td>{{.Time.Format "15:04:05"}}</td><td>{{.Client}}</td><td>{{.Status}}</td><td>{{.Proto}}</td><td>{{.Resolver}}</td><td>{{.Address}}</td><td>{{.Host}}</td></tr>
{{end}}</table>
</body></html>`))

func (a *API) statusPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if err := statusTemplate.Execute(w, a.srv.Events()); err != nil {
		zlog.Warn("Status page render failed", "error", err.Error())
	}
}
