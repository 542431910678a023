// ABOUTME: HTTP server exposing sync APIs and a read-only status page
// ABOUTME: JSON endpoints for triggering syncs, run history, and watermarks
package web

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/harperreed/corral/db"
	"github.com/harperreed/corral/models"
	"github.com/harperreed/corral/sync"
)

//go:embed templates/*
var templatesFS embed.FS

type Server struct {
	db        *sql.DB
	engine    *sync.Engine
	templates *template.Template

	// BuildAdapter creates the adapter for a (source, object_type) pair.
	// Injected so the server stays testable without live credentials.
	BuildAdapter func(source, objectType string) (sync.Adapter, error)
}

func NewServer(database *sql.DB) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &Server{
		db:        database,
		engine:    sync.NewEngine(database),
		templates: tmpl,
	}, nil
}

func (s *Server) Start(port int) error {
	http.HandleFunc("/", s.handleStatus)
	http.HandleFunc("/api/sync", s.handleSync)
	http.HandleFunc("/api/runs", s.handleRuns)
	http.HandleFunc("/api/status", s.handleAPIStatus)

	addr := fmt.Sprintf(":%d", port)
	log.Printf("Starting web server at http://localhost%s", addr)
	return http.ListenAndServe(addr, nil)
}

type syncRequest struct {
	Source     string `json:"source"`
	ObjectType string `json:"object_type"`
	Mode       string `json:"mode,omitempty"`
}

type syncResponse struct {
	RunID         string `json:"run_id"`
	Status        string `json:"status"`
	RowsProcessed int    `json:"rows_processed"`
	RowsFailed    int    `json:"rows_failed"`
	Error         string `json:"error,omitempty"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.BuildAdapter == nil {
		http.Error(w, "sync adapters not configured", http.StatusServiceUnavailable)
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Source == "" || req.ObjectType == "" {
		http.Error(w, "source and object_type are required", http.StatusBadRequest)
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = models.ModeIncremental
	}
	if mode != models.ModeIncremental && mode != models.ModeFull {
		http.Error(w, "mode must be incremental or full", http.StatusBadRequest)
		return
	}

	adapter, err := s.BuildAdapter(req.Source, req.ObjectType)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, err := s.engine.Run(r.Context(), adapter, mode)
	if errors.Is(err, sync.ErrSyncInProgress) {
		http.Error(w, "sync already running for this stream", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := syncResponse{
		RunID:         run.ID,
		Status:        run.Status,
		RowsProcessed: run.RowsProcessed,
		RowsFailed:    run.RowsFailed,
	}
	if run.ErrorMessage != nil {
		resp.Error = *run.ErrorMessage
	}
	writeJSON(w, resp)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := db.RecentRuns(s.db, 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

type streamStatus struct {
	Source     string          `json:"source"`
	ObjectType string          `json:"object_type"`
	Watermark  string          `json:"watermark"`
	LastRun    *models.SyncRun `json:"last_run,omitempty"`
}

func (s *Server) streamStatuses() ([]streamStatus, error) {
	watermarks, err := db.AllWatermarks(s.db)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(watermarks))
	for key := range watermarks {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	statuses := make([]streamStatus, 0, len(keys))
	for _, key := range keys {
		source, objectType := splitStreamKey(key)
		status := streamStatus{Source: source, ObjectType: objectType, Watermark: watermarks[key]}
		if run, err := db.LastRun(s.db, source, objectType); err == nil {
			status.LastRun = run
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.streamStatuses()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, statuses)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	statuses, err := s.streamStatuses()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"Streams":     statuses,
		"GeneratedAt": time.Now().Format("2006-01-02 15:04:05"),
	}
	if err := s.templates.ExecuteTemplate(w, "status.html", data); err != nil {
		log.Printf("Template error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("JSON encode error: %v", err)
	}
}

func splitStreamKey(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
