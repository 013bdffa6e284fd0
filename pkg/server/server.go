// Package server exposes a render pipeline over HTTP for local development.
//
// Routes:
//
//	GET  /healthz           liveness probe
//	GET  /render/{entry}    render with ?data=<json> props
//	POST /render/{entry}    render with the request body as props
//	GET  /issues            recent issues (when a store is configured)
//	GET  /issues/{id}       one issue
//
// A render that fails inside the worker still answers 200 with the fallback
// page; the page is the response. Only broken builds and bad requests map to
// error statuses.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/matzehuels/prerender/pkg/buildinfo"
	"github.com/matzehuels/prerender/pkg/errors"
	"github.com/matzehuels/prerender/pkg/fs"
	"github.com/matzehuels/prerender/pkg/issue"
	"github.com/matzehuels/prerender/pkg/manifest"
	"github.com/matzehuels/prerender/pkg/pipeline"
)

// DefaultMaxBody bounds POST bodies.
const DefaultMaxBody = 1 << 20

// Response headers.
const (
	HeaderRequestID = "X-Request-Id"
	HeaderCache     = "X-Prerender-Cache"
	HeaderIssue     = "X-Prerender-Issue"
)

// Renderer is the part of pipeline.Runner the server needs.
type Renderer interface {
	Render(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Options configures the handler.
type Options struct {
	// OutputRoot is the directory entries are emitted under; each entry
	// renders from manifest.RootFor(OutputRoot, entry).
	OutputRoot fs.Path

	// RuntimeEntries load before every entry.
	RuntimeEntries []string

	// Issues serves /issues. Nil disables the issue routes.
	Issues *issue.Store

	MaxBody int64
	Logger  *log.Logger
}

type handler struct {
	renderer Renderer
	opts     Options
}

// New returns the HTTP handler for renderer.
func New(renderer Renderer, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = DefaultMaxBody
	}
	h := &handler{renderer: renderer, opts: opts}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Get("/render/*", h.render)
	r.Post("/render/*", h.render)
	r.Route("/issues", func(r chi.Router) {
		r.Get("/", h.listIssues)
		r.Get("/{id}", h.getIssue)
	})
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		w.Header().Set("Server", buildinfo.UserAgent())
		next.ServeHTTP(w, r)
	})
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.opts.Logger.Debug("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", w.Header().Get(HeaderRequestID),
			"duration", time.Since(start))
	})
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok "+buildinfo.Version+"\n")
}

func (h *handler) render(w http.ResponseWriter, r *http.Request) {
	entry := chi.URLParam(r, "*")
	if err := errors.ValidateEntryName(entry); err != nil {
		writeError(w, err)
		return
	}
	data, err := h.props(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/" + entry
	}

	req := pipeline.Request{
		Path:           path,
		Entry:          entry,
		RuntimeEntries: h.opts.RuntimeEntries,
		OutputRoot:     manifest.RootFor(h.opts.OutputRoot, entry),
		NoCache:        r.URL.Query().Has("nocache"),
	}
	if data != nil {
		req.Data = data
	}
	res, err := h.renderer.Render(r.Context(), req)
	if err != nil {
		h.opts.Logger.Error("render failed", "entry", entry, "err", err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	if res.Cached {
		w.Header().Set(HeaderCache, "hit")
	} else {
		w.Header().Set(HeaderCache, "miss")
	}
	if res.Issue != nil {
		w.Header().Set(HeaderIssue, res.Issue.ID)
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, res.HTML)
}

// props returns the render data as raw JSON, or nil when none was sent.
func (h *handler) props(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	var raw []byte
	if r.Method == http.MethodPost {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if stderrors.As(err, &tooLarge) {
				return nil, errors.New(errors.ErrCodeInvalidInput, "request body exceeds %d bytes", tooLarge.Limit)
			}
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read request body")
		}
		raw = body
	} else if q := r.URL.Query().Get("data"); q != "" {
		raw = []byte(q)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "render data is not valid JSON")
	}
	return raw, nil
}

func (h *handler) listIssues(w http.ResponseWriter, r *http.Request) {
	if h.opts.Issues == nil {
		writeError(w, errors.New(errors.ErrCodeNotFound, "no issue store configured"))
		return
	}
	opts := issue.ListOptions{Context: r.URL.Query().Get("context")}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid limit %q", s))
			return
		}
		opts.Limit = n
	}
	issues, err := h.opts.Issues.List(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	if issues == nil {
		issues = []issue.Issue{}
	}
	writeJSON(w, http.StatusOK, issues)
}

func (h *handler) getIssue(w http.ResponseWriter, r *http.Request) {
	if h.opts.Issues == nil {
		writeError(w, errors.New(errors.ErrCodeNotFound, "no issue store configured"))
		return
	}
	is, err := h.opts.Issues.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, is)
}

type errorBody struct {
	Error string      `json:"error"`
	Code  errors.Code `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: errors.UserMessage(err), Code: errors.GetCode(err)})
}

func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidPath:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound, errors.ErrCodeUnknownEntry:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "listen %s", addr)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	logger.Info("serving", "addr", "http://"+ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
