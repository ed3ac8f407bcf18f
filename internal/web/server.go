package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"statuspage/internal/config"
	"statuspage/internal/models"
)

//go:embed templates/*.html
var webFS embed.FS

// StatusSource produces the page data; the rollup service in production.
type StatusSource interface {
	GetStatus(ctx context.Context) (models.StatusPageResponse, error)
}

// Pinger reports storage readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	status   StatusSource
	store    Pinger
	opts     *config.Holder
	base     string
	log      *slog.Logger
	tpl      *template.Template
	upgrader websocket.Upgrader
}

// NewServer mounts the page under basePath ("" for the site root).
func NewServer(status StatusSource, store Pinger, opts *config.Holder, basePath string, logger *slog.Logger) *Server {
	tpl := template.Must(template.New("all").Funcs(template.FuncMap{
		"pct": func(v float64) string { return fmt.Sprintf("%.2f%%", v) },
	}).ParseFS(webFS, "templates/*.html"))
	return &Server{
		status: status,
		store:  store,
		opts:   opts,
		base:   basePath,
		log:    logger,
		tpl:    tpl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 8192,
		},
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	if s.base == "" {
		mux.HandleFunc("/", s.handleIndex)
	} else {
		mux.HandleFunc(s.base, s.handleIndex)
		mux.HandleFunc(s.base+"/{$}", s.handleIndex)
	}
	mux.HandleFunc(s.base+"/api", noCache(s.handleAPI))
	mux.HandleFunc(s.base+"/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	return logMiddleware(mux, s.log)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.base && r.URL.Path != s.base+"/" {
		http.NotFound(w, r)
		return
	}
	resp, err := s.status.GetStatus(r.Context())
	if err != nil {
		s.log.Error("build status page", "err", err)
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}
	view := newPageView(resp, s.opts.Current(), s.base)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.ExecuteTemplate(w, "status.html", view); err != nil {
		s.log.Error("render status page", "err", err)
	}
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp, err := s.status.GetStatus(r.Context())
	if err != nil {
		s.log.Error("build status response", "err", err)
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, resp)
}

// handleWS pushes a fresh response right away and then once per poll
// interval until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Reading is required to notice close frames.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		resp, err := s.status.GetStatus(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("push status", "err", err)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "status unavailable"),
				time.Now().Add(time.Second))
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
		timer := time.NewTimer(s.opts.Current().PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		http.Error(w, "store not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
