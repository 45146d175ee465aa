// Copyright 2020 The go-ethereum Authors
// Copyright 2025 The ensis Authors
// This file is part of the ensis library.
//
// The ensis library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ensis library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ensis library. If not, see <http://www.gnu.org/licenses/>.

package gateway

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
	"golang.org/x/time/rate"
)

// Server is the HTTP front of the gateway. It mounts the read endpoint, the
// write endpoint when a Writer is given, and a health check.
type Server struct {
	config HTTPConfig
	log    log.Logger

	handler http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener // non-nil when server is running
	endpoint string
}

// NewServer assembles the handler stack. The writer may be nil, in which case
// the write endpoint is not served.
func NewServer(config HTTPConfig, reader *Reader, writer *Writer) (*Server, error) {
	if reader == nil {
		return nil, errors.New("gateway: reader is required")
	}
	readPrefix, writePrefix := cleanPrefix(config.ReadPrefix), cleanPrefix(config.WritePrefix)
	if writer != nil && readPrefix == writePrefix {
		return nil, fmt.Errorf("gateway: read and write endpoints share the prefix %q", readPrefix)
	}
	var jwtSecret []byte
	if config.JWTSecret != "" {
		secret, err := LoadJWTSecret(config.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("gateway: %w", err)
		}
		jwtSecret = secret
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mount(mux, readPrefix, NewReadHandler(reader, config.BodyLimit))
	if writer != nil {
		var h http.Handler = NewWriteHandler(writer, config.BodyLimit)
		if len(jwtSecret) != 0 {
			// Wrong methods are refused before authentication.
			h = newMethodHandler(newJWTHandler(jwtSecret, h), http.MethodPost)
		}
		mount(mux, writePrefix, h)
	}
	if readPrefix != "" && (writer == nil || writePrefix != "") {
		mux.HandleFunc("/", notFoundHandler)
	}
	return &Server{
		config:  config,
		log:     log.New("component", "http"),
		handler: NewHTTPHandlerStack(mux, config.Cors, config.VirtualHosts, config.RateLimit, config.RateBurst),
	}, nil
}

func cleanPrefix(prefix string) string {
	prefix = "/" + strings.Trim(prefix, "/")
	if prefix == "/" {
		return ""
	}
	return prefix
}

// mount registers h for every path below prefix, with the prefix stripped.
func mount(mux *http.ServeMux, prefix string, h http.Handler) {
	if prefix == "" {
		mux.Handle("/", h)
		return
	}
	stripped := http.StripPrefix(prefix, h)
	mux.Handle(prefix, stripped)
	mux.Handle(prefix+"/", stripped)
}

// Handler returns the complete handler stack, for embedding the gateway in
// another server or a serverless runtime.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves requests in the
// background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil // already running
	}
	if s.config.Host == "" {
		return errors.New("gateway: HTTP host not configured")
	}
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.endpoint = listener.Addr().String()
	s.server = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.config.Timeouts.ReadTimeout,
		ReadHeaderTimeout: s.config.Timeouts.ReadHeaderTimeout,
		WriteTimeout:      s.config.Timeouts.WriteTimeout,
		IdleTimeout:       s.config.Timeouts.IdleTimeout,
	}
	go s.server.Serve(listener)

	s.log.Info("HTTP server started",
		"endpoint", s.endpoint,
		"read", "http://"+s.endpoint+cleanPrefix(s.config.ReadPrefix),
		"cors", strings.Join(s.config.Cors, ","),
		"vhosts", strings.Join(s.config.VirtualHosts, ","),
	)
	return nil
}

// Addr returns the listening address of the server, or "" when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// Stop shuts the server down, waiting up to timeout for in-flight requests.
func (s *Server) Stop(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return // not running
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Warn("HTTP server did not shut down cleanly", "err", err)
		s.server.Close()
	}
	s.listener.Close()
	s.log.Info("HTTP server stopped", "endpoint", s.endpoint)

	s.server, s.listener, s.endpoint = nil, nil, ""
}

// NewHTTPHandlerStack returns wrapped http-related handlers
func NewHTTPHandlerStack(srv http.Handler, cors []string, vhosts []string, limit float64, burst int) http.Handler {
	// Wrap the CORS-handler within a host-handler
	handler := newCorsHandler(srv, cors)
	handler = newVHostHandler(vhosts, handler)
	handler = newRateLimitHandler(limit, burst, handler)
	return newGzipHandler(handler)
}

func newCorsHandler(srv http.Handler, allowedOrigins []string) http.Handler {
	// disable CORS support if user has not specified a custom CORS configuration
	if len(allowedOrigins) == 0 {
		return srv
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodGet},
		AllowedHeaders: []string{"*"},
		MaxAge:         600,
	})
	return c.Handler(srv)
}

// virtualHostHandler is a handler which validates the Host-header of incoming requests.
// Using virtual hosts can help prevent DNS rebinding attacks, where a 'random' domain name points to
// the service ip address (but without CORS headers). By verifying the targeted virtual host, we can
// ensure that it's a destination that the node operator has defined.
type virtualHostHandler struct {
	vhosts mapset.Set[string]
	next   http.Handler
}

func newVHostHandler(vhosts []string, next http.Handler) http.Handler {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, allowedHost := range vhosts {
		set.Add(strings.ToLower(allowedHost))
	}
	return &virtualHostHandler{set, next}
}

// ServeHTTP forwards requests whose Host header names an allowed virtual host
// or an IP address, and answers 403 otherwise.
func (h *virtualHostHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// if r.Host is not set, we can continue serving since a browser would set the Host header
	if r.Host == "" {
		h.next.ServeHTTP(w, r)
		return
	}
	host, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		// Either invalid (too many colons) or no port specified
		host = r.Host
	}
	if ipAddr := net.ParseIP(host); ipAddr != nil {
		// It's an IP address, we can serve that
		h.next.ServeHTTP(w, r)
		return
	}
	// Not an IP address, but a hostname. Need to validate
	if h.vhosts.Contains("*") || h.vhosts.Contains(strings.ToLower(host)) {
		h.next.ServeHTTP(w, r)
		return
	}
	writeJSON(w, http.StatusForbidden, errorResponse{Error: "invalid host specified"})
}

type rateLimitHandler struct {
	limiter *rate.Limiter
	next    http.Handler
}

func newRateLimitHandler(limit float64, burst int, next http.Handler) http.Handler {
	if limit <= 0 {
		return next
	}
	if burst <= 0 {
		burst = int(limit) + 1
	}
	return &rateLimitHandler{limiter: rate.NewLimiter(rate.Limit(limit), burst), next: next}
}

func (h *rateLimitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
		return
	}
	h.next.ServeHTTP(w, r)
}

var gzPool = sync.Pool{
	New: func() interface{} {
		w := gzip.NewWriter(io.Discard)
		return w
	},
}

type gzipResponseWriter struct {
	resp http.ResponseWriter

	gz            *gzip.Writer
	contentLength uint64 // total length of the uncompressed response
	written       uint64 // amount of written bytes from the uncompressed response
	hasLength     bool   // true if uncompressed response had Content-Length
	inited        bool   // true after init was called for the first time
}

// init runs just before response headers are written and starts the gzip stream.
func (w *gzipResponseWriter) init() {
	if w.inited {
		return
	}
	w.inited = true

	hdr := w.resp.Header()
	length := hdr.Get("content-length")
	if len(length) > 0 {
		if n, err := strconv.ParseUint(length, 10, 64); err == nil {
			w.hasLength = true
			w.contentLength = n
		}
	}

	w.gz = gzPool.Get().(*gzip.Writer)
	w.gz.Reset(w.resp)
	hdr.Del("content-length")
	hdr.Set("content-encoding", "gzip")
}

func (w *gzipResponseWriter) Header() http.Header {
	return w.resp.Header()
}

func (w *gzipResponseWriter) WriteHeader(status int) {
	w.init()
	w.resp.WriteHeader(status)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	w.init()

	n, err := w.gz.Write(b)
	w.written += uint64(n)
	if w.hasLength && w.written >= w.contentLength {
		// The HTTP handler has finished writing the entire uncompressed response. Close
		// the gzip stream to ensure the footer will be seen by the client in case the
		// response is flushed after this call to write.
		err = w.gz.Close()
	}
	return n, err
}

func (w *gzipResponseWriter) Flush() {
	if w.gz != nil {
		w.gz.Flush()
	}
	if f, ok := w.resp.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *gzipResponseWriter) close() {
	if w.gz == nil {
		return
	}
	w.gz.Close()
	gzPool.Put(w.gz)
	w.gz = nil
}

func newGzipHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("accept-encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		wrapper := &gzipResponseWriter{resp: w}
		defer wrapper.close()

		next.ServeHTTP(wrapper, r)
	})
}
