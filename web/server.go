package web

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"guestbook/logger"
	"guestbook/metrics"
	"guestbook/models"
)

// Forwarder sends one submission toward the relay. Fire-and-forget: no
// acknowledgment exists and none is awaited.
type Forwarder interface {
	Forward(payload []byte) error
}

// RecordReader is the read-only slice of the store the HTTP side uses for
// the listing endpoint and the live feed.
type RecordReader interface {
	Recent(ctx context.Context, limit int64) ([]models.Record, error)
	Since(ctx context.Context, ts string, limit int64) ([]models.Record, error)
}

const recentLimit = 100

type Server struct {
	mux          *http.ServeMux
	hub          *Hub
	fwd          Forwarder
	reader       RecordReader
	templatesDir string
	staticDir    string
	maxMsgLen    int
}

func NewServer(templatesDir, staticDir string, maxMsgLen int, fwd Forwarder, reader RecordReader) *Server {
	s := &Server{
		mux:          http.NewServeMux(),
		hub:          NewHub(),
		fwd:          fwd,
		reader:       reader,
		templatesDir: templatesDir,
		staticDir:    staticDir,
		maxMsgLen:    maxMsgLen,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/message", s.handleForm)
	s.mux.HandleFunc("/message.html", s.handleForm)
	s.mux.HandleFunc("/favicon.ico", s.handleFavicon)
	s.mux.HandleFunc("/static/", s.handleStatic)
	s.mux.HandleFunc("/submit", s.handleSubmit)
	s.mux.HandleFunc("/messages", s.handleMessages)
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/metrics", metrics.Handler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTPRequests()
	s.mux.ServeHTTP(w, r)
}

// Hub exposes the websocket hub so the feed can broadcast into it.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// The root pattern catches every otherwise-unmatched path.
	if r.Method != http.MethodGet || (r.URL.Path != "/" && r.URL.Path != "/index.html") {
		s.notFound(w)
		return
	}
	s.servePage(w, "index.html", http.StatusOK)
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.notFound(w)
		return
	}
	s.servePage(w, "message.html", http.StatusOK)
}

func (s *Server) handleFavicon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.notFound(w)
		return
	}
	s.serveFile(w, filepath.Join(s.staticDir, "favicon.ico"))
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.notFound(w)
		return
	}
	rel := strings.TrimPrefix(r.URL.Path, "/static/")
	// Clean against the root so ".." cannot escape the static dir.
	target := filepath.Join(s.staticDir, filepath.Clean("/"+rel))
	s.serveFile(w, target)
}

// handleSubmit parses the form, validates it and forwards one UDP datagram
// to the relay. Invalid submissions are dropped without forwarding; the
// sender gets the same redirect either way.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.notFound(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		metrics.IncSubmissionsRejected()
		logger.Debug("submission body malformed", logger.FieldKV("error", err.Error()))
		http.Redirect(w, r, "/message.html", http.StatusSeeOther)
		return
	}

	rec := models.Record{
		MessageID: uuid.NewString(),
		Username:  strings.TrimSpace(r.PostForm.Get("username")),
		Message:   strings.TrimSpace(r.PostForm.Get("message")),
	}
	if err := rec.Validate(s.maxMsgLen); err != nil {
		metrics.IncSubmissionsRejected()
		logger.Debug("submission dropped", logger.FieldKV("reason", err.Error()))
		http.Redirect(w, r, "/message.html", http.StatusSeeOther)
		return
	}

	if err := s.fwd.Forward(models.EncodeForm(rec)); err != nil {
		// Best-effort hop: the client still gets its redirect.
		logger.Error("udp forward failed", err, logger.FieldKV("message_id", rec.MessageID))
	} else {
		metrics.IncSubmissionsForwarded()
		logger.Info("submission forwarded", logger.FieldKV("message_id", rec.MessageID))
	}
	http.Redirect(w, r, "/message.html?status=ok", http.StatusSeeOther)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.notFound(w)
		return
	}
	list, err := s.reader.Recent(r.Context(), recentLimit)
	if err != nil {
		logger.Error("fetch messages failed", err)
		http.Error(w, "fetch failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []models.Record{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// servePage sends an HTML file from the templates dir.
func (s *Server) servePage(w http.ResponseWriter, name string, status int) {
	content, err := os.ReadFile(filepath.Join(s.templatesDir, name))
	if err != nil {
		s.notFound(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", fmt.Sprint(len(content)))
	w.WriteHeader(status)
	_, _ = w.Write(content)
}

// serveFile sends a static file with an inferred content type.
func (s *Server) serveFile(w http.ResponseWriter, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		s.notFound(w)
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		s.notFound(w)
		return
	}
	w.Header().Set("Content-Type", contentType(path, content))
	w.Header().Set("Content-Length", fmt.Sprint(len(content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// contentType infers from the extension first (sniffing cannot tell CSS from
// plain text), falling back to content detection for extensionless files.
func contentType(path string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return mimetype.Detect(data).String()
}

// notFound serves the error page with a 404 status, with a plain-text
// fallback when the page itself is unreadable.
func (s *Server) notFound(w http.ResponseWriter) {
	content, err := os.ReadFile(filepath.Join(s.templatesDir, "error.html"))
	if err != nil {
		http.Error(w, "404 Not Found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", fmt.Sprint(len(content)))
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write(content)
}
