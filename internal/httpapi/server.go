// Package httpapi is the HTTP adapter over the update manager. It owns
// request parsing, URL construction and status-code mapping; all version
// and token logic lives in internal/update.
package httpapi

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/lordkekz/KosmikAutoUpdate/internal/update"
)

// Server serves the update API:
//
//	POST /GET_CHANNELS            list channels
//	POST /GET_VERSION             resolve a channel or version id to a manifest
//	GET  /dl/hashed_files/{name}  token-gated blob download
//	GET  /dl/version_zips/{name}  token-gated archive download
type Server struct {
	mux     *http.ServeMux
	manager *update.Manager
	store   update.Store
	dlHost  string
	log     *slog.Logger
}

// New creates a Server. dlHost is the public prefix for download URLs,
// e.g. "https://updates.example.com/dl/".
func New(manager *update.Manager, store update.Store, dlHost string, log *slog.Logger) *Server {
	if !strings.HasSuffix(dlHost, "/") {
		dlHost += "/"
	}
	s := &Server{
		mux:     http.NewServeMux(),
		manager: manager,
		store:   store,
		dlHost:  dlHost,
		log:     log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /GET_CHANNELS", s.handleChannels)
	s.mux.HandleFunc("POST /GET_VERSION", s.handleVersion)
	s.mux.HandleFunc("GET /dl/hashed_files/{name}", s.handleDownload)
	s.mux.HandleFunc("GET /dl/version_zips/{name}", s.handleDownload)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// clientIP returns the host part of the request's remote address. Tokens
// are bound to this address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
