package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/TobiSchelling/linkscope/internal/database"
	"github.com/TobiSchelling/linkscope/internal/events"
	"github.com/TobiSchelling/linkscope/internal/pipeline"
	"github.com/TobiSchelling/linkscope/internal/report"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

const maxRequestBytes = 20 << 20

// Runner executes pipeline operations. *pipeline.Pipeline implements it.
type Runner interface {
	Analyze(ctx context.Context, req pipeline.AnalyzeRequest, em *events.Emitter) (*pipeline.Report, error)
	AnalyzePage(ctx context.Context, req pipeline.PageRequest, em *events.Emitter) (*pipeline.PageAnalysis, error)
	BuildRoadmap(ctx context.Context, req pipeline.RoadmapRequest, em *events.Emitter) (*pipeline.Roadmap, error)
	Replicate(ctx context.Context, req pipeline.ReplicateRequest, em *events.Emitter) (*pipeline.Roadmap, error)
}

// Server is the HTTP server for running analyses and browsing stored runs.
type Server struct {
	db     *database.DB
	runner Runner
	pages  map[string]*template.Template
	mux    *http.ServeMux
}

// New creates a new Server. runner may be nil to serve stored reports only.
func New(db *database.DB, runner Runner) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone so {{define "content"}} does not collide.
	pageNames := []string{"index.html", "report.html"}
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

	s := &Server{db: db, runner: runner, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/reports/", s.handleReport)
	s.mux.HandleFunc("GET /api/runs", s.handleListRuns)
	s.mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	s.mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	s.mux.HandleFunc("POST /api/page", s.handlePage)
	s.mux.HandleFunc("POST /api/roadmap", s.handleRoadmap)
	s.mux.HandleFunc("POST /api/replicate", s.handleReplicate)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	runs, err := s.db.ListRuns(100)
	if err != nil {
		zap.L().Error("listing runs", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Runs": runs,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/reports/")
	if id == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	run, result, err := report.Load(s.db, id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	body, err := report.Render(run, result)
	if err != nil {
		zap.L().Error("rendering report", zap.String("id", id), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "report.html", map[string]any{
		"Run":  run,
		"Body": body,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.ListRuns(100)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.db.GetRun(r.PathValue("id"))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		writeJSONError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req pipeline.AnalyzeRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.stream(w, r, database.KindAnalysis, req.SiteURL, func(ctx context.Context, em *events.Emitter) (any, error) {
		return s.runner.Analyze(ctx, req, em)
	})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	var req pipeline.PageRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.stream(w, r, database.KindPage, req.SiteURL, func(ctx context.Context, em *events.Emitter) (any, error) {
		return s.runner.AnalyzePage(ctx, req, em)
	})
}

func (s *Server) handleRoadmap(w http.ResponseWriter, r *http.Request) {
	var req pipeline.RoadmapRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.stream(w, r, database.KindRoadmap, req.SiteURL, func(ctx context.Context, em *events.Emitter) (any, error) {
		return s.runner.BuildRoadmap(ctx, req, em)
	})
}

// replicateRequest accepts either an inline roadmap or the ID of a stored one.
type replicateRequest struct {
	RunID    string            `json:"runId"`
	Roadmap  *pipeline.Roadmap `json:"roadmap"`
	Location string            `json:"location"`
}

func (s *Server) handleReplicate(w http.ResponseWriter, r *http.Request) {
	var body replicateRequest
	if !s.decode(w, r, &body) {
		return
	}
	req := pipeline.ReplicateRequest{Roadmap: body.Roadmap, Location: body.Location}
	if body.RunID != "" {
		rm, err := report.LoadRoadmap(s.db, body.RunID)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Roadmap = rm
	}

	var siteURL string
	if req.Roadmap != nil {
		siteURL = req.Roadmap.SiteURL
	}
	s.stream(w, r, database.KindReplication, siteURL, func(ctx context.Context, em *events.Emitter) (any, error) {
		return s.runner.Replicate(ctx, req, em)
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if s.runner == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no text-generation provider configured")
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// stream runs op and writes its events as NDJSON. The run is detached from
// the request context: a client that goes away stops receiving events but the
// run finishes and is stored. Validation failures are answered with 400
// before any event is written.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, kind database.Kind, siteURL string,
	op func(context.Context, *events.Emitter) (any, error)) {
	sink := &responseSink{w: w}
	em := events.NewEmitter(sink)

	result, err := op(context.WithoutCancel(r.Context()), em)

	if err != nil && pipeline.IsInputError(err) && !sink.started {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	sink.flush()

	if err != nil {
		zap.L().Warn("run failed", zap.String("kind", string(kind)), zap.String("site", siteURL), zap.Error(err))
		if _, saveErr := report.SaveFailure(s.db, kind, siteURL, err); saveErr != nil {
			zap.L().Error("storing failed run", zap.Error(saveErr))
		}
		return
	}

	id, saveErr := report.Save(s.db, kind, result)
	if saveErr != nil {
		zap.L().Error("storing run", zap.String("kind", string(kind)), zap.Error(saveErr))
		return
	}
	zap.L().Info("run stored", zap.String("id", id), zap.String("kind", string(kind)), zap.String("site", siteURL))
}

// responseSink writes NDJSON lazily. A leading error event is held back so a
// validation failure can still become a plain 400 response.
type responseSink struct {
	w       http.ResponseWriter
	out     *events.NDJSONSink
	held    *events.Event
	started bool
}

func (s *responseSink) Send(ev events.Event) error {
	if !s.started && s.held == nil && ev.Type == events.TypeError {
		s.held = &ev
		return nil
	}
	if err := s.start(); err != nil {
		return err
	}
	return s.out.Send(ev)
}

func (s *responseSink) start() error {
	if s.started {
		return nil
	}
	s.started = true
	s.w.Header().Set("Content-Type", "application/x-ndjson")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("X-Content-Type-Options", "nosniff")
	s.w.WriteHeader(http.StatusOK)
	s.out = events.NewNDJSONSink(s.w)
	if s.held != nil {
		held := *s.held
		s.held = nil
		return s.out.Send(held)
	}
	return nil
}

// flush writes a held event once the run is known not to be a validation failure.
func (s *responseSink) flush() {
	if s.held == nil {
		return
	}
	if err := s.start(); err != nil {
		zap.L().Debug("client disconnected", zap.Error(err))
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		zap.L().Error("template not found", zap.String("name", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		zap.L().Error("rendering template", zap.String("name", name), zap.Error(err))
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("writing response", zap.Error(err))
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, runner Runner, port int) error {
	srv, err := New(db, runner)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	zap.L().Info("server listening", zap.String("url", "http://"+addr))
	return http.ListenAndServe(addr, srv.Handler())
}
