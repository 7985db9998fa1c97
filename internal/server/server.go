package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/talkcomms/internal/ledger"
	"github.com/TobiSchelling/talkcomms/internal/pipeline"
	"github.com/TobiSchelling/talkcomms/internal/talk"
	"github.com/TobiSchelling/talkcomms/internal/tracker"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

const maxBody = 1 << 20

// Options wire the server to a running pipeline.
type Options struct {
	Service *pipeline.Service
	Ledger  *ledger.Adapter
	// Journal serves runs that are no longer in memory. May be nil.
	Journal *tracker.DBJournal
	// DocID, when set, rejects webhooks addressed to another ledger document.
	DocID  string
	Logger *slog.Logger
}

// Server accepts run requests and reports run status.
type Server struct {
	opts   Options
	pages  map[string]*template.Template
	mux    *http.ServeMux
	logger *slog.Logger
}

// New creates a new Server.
func New(opts Options) (*Server, error) {
	if opts.Service == nil || opts.Ledger == nil {
		return nil, errors.New("server needs a pipeline service and a ledger")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"ago": func(t time.Time) string {
			return time.Since(t).Round(time.Second).String()
		},
		"last": func(lines []string) string {
			if len(lines) == 0 {
				return ""
			}
			return lines[len(lines)-1]
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so {{define "content"}} does not collide.
	pageNames := []string{"index.html", "record.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{opts: opts, pages: pages, mux: http.NewServeMux(), logger: logger}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /records/{id...}", s.handleRecord)

	s.mux.HandleFunc("POST /runs", s.handleCreateRun)
	s.mux.HandleFunc("GET /runs", s.handleListRuns)
	s.mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	s.mux.HandleFunc("GET /status/{id...}", s.handleRecordStatus)
	s.mux.HandleFunc("POST /webhook/{function}", s.handleWebhook)
}

type runRequest struct {
	ContentType string       `json:"content_type"`
	RecordID    string       `json:"record_id"`
	Record      *talk.Record `json:"record,omitempty"`
	Force       bool         `json:"force,omitempty"`
}

// webhookRequest is the ledger button payload.
type webhookRequest struct {
	ThisRow string `json:"thisRow"`
	DocID   string `json:"docId"`
	Speaker string `json:"speaker"`
}

type runAccepted struct {
	RunID    string         `json:"run_id"`
	RecordID string         `json:"record_id"`
	Status   tracker.Status `json:"status"`
}

type recordStatus struct {
	RecordID string       `json:"record_id"`
	Status   string       `json:"status"`
	Progress string       `json:"progress"`
	Run      *tracker.Run `json:"run,omitempty"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ct, err := talk.ParseContentType(req.ContentType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recordID := req.RecordID
	if recordID == "" && req.Record != nil {
		recordID = req.Record.ID
	}
	s.launch(w, pipeline.Request{ContentType: ct, RecordID: recordID, Record: req.Record, Force: req.Force})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ct, err := talk.ParseContentType(r.PathValue("function"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req webhookRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.opts.DocID != "" && req.DocID != "" && req.DocID != s.opts.DocID {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown document %q", req.DocID))
		return
	}
	s.logger.Info("webhook received", "function", ct, "row", req.ThisRow, "speaker", req.Speaker)

	var payload *talk.Record
	if req.Speaker != "" {
		payload = &talk.Record{ID: req.ThisRow, Speaker: req.Speaker}
	}
	s.launch(w, pipeline.Request{ContentType: ct, RecordID: req.ThisRow, Record: payload})
}

func (s *Server) launch(w http.ResponseWriter, req pipeline.Request) {
	run, err := s.opts.Service.Launch(req)
	switch {
	case errors.Is(err, pipeline.ErrRunInFlight):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, runAccepted{RunID: run.ID, RecordID: run.RecordID, Status: run.Status})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(r.Context(), r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.recentRuns(r.Context(), 50))
}

func (s *Server) handleRecordStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	row, err := s.opts.Ledger.Read(r.Context(), id, []string{ledger.ColStatus, ledger.ColProgress})
	if err != nil {
		s.logger.Error("ledger read failed", "record_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "ledger unavailable")
		return
	}
	out := recordStatus{RecordID: id, Status: row[ledger.ColStatus], Progress: row[ledger.ColProgress]}
	if run, ok := s.latestRun(r.Context(), id); ok {
		out.Run = &run
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, "index.html", map[string]any{
		"Runs": s.recentRuns(r.Context(), 50),
	})
}

type column struct {
	Name  string
	Value string
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(r.PathValue("id"), "/")
	if id == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	row, err := s.opts.Ledger.Read(r.Context(), id, ledger.AllColumns())
	if err != nil {
		s.logger.Error("ledger read failed", "record_id", id, "error", err)
		http.Error(w, "Ledger unavailable", http.StatusBadGateway)
		return
	}
	var cols []column
	for _, name := range ledger.AllColumns() {
		if row[name] != "" {
			cols = append(cols, column{Name: name, Value: row[name]})
		}
	}
	data := map[string]any{"RecordID": id, "Columns": cols}
	if run, ok := s.latestRun(r.Context(), id); ok {
		data["Run"] = run
	}
	s.render(w, "record.html", data)
}

func (s *Server) lookupRun(ctx context.Context, id string) (tracker.Run, bool) {
	if run, err := s.opts.Service.Tracker().Get(id); err == nil {
		return run, true
	}
	if s.opts.Journal == nil {
		return tracker.Run{}, false
	}
	run, err := s.opts.Journal.Load(ctx, id)
	if err != nil || run == nil {
		return tracker.Run{}, false
	}
	return *run, true
}

func (s *Server) latestRun(ctx context.Context, recordID string) (tracker.Run, bool) {
	if run, ok := s.opts.Service.Tracker().Latest(recordID); ok {
		return run, true
	}
	if s.opts.Journal == nil {
		return tracker.Run{}, false
	}
	run, err := s.opts.Journal.LoadLatest(ctx, recordID)
	if err != nil || run == nil {
		return tracker.Run{}, false
	}
	return *run, true
}

func (s *Server) recentRuns(ctx context.Context, limit int) []tracker.Run {
	runs := s.opts.Service.Tracker().Recent(limit)
	if len(runs) > 0 || s.opts.Journal == nil {
		return runs
	}
	journaled, err := s.opts.Journal.LoadRecent(ctx, limit)
	if err != nil {
		s.logger.Warn("loading journaled runs failed", "error", err)
		return runs
	}
	return journaled
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("template not found", "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.logger.Error("rendering template failed", "template", name, "error", err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// Serve starts the HTTP server on the given port.
func Serve(opts Options, port int) error {
	srv, err := New(opts)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv.logger.Info("server listening", "url", "http://"+addr)
	return http.ListenAndServe(addr, srv.Handler())
}
