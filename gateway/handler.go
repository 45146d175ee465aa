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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/google/uuid"
)

// ErrInvalidPath is returned for request paths that do not consist of exactly
// a contract address and a function name.
var ErrInvalidPath = errors.New("Invalid URL format. Expected: /<contract-address>/<function-name>")

const requestIDHeader = "X-Request-Id"

type errorResponse struct {
	Error string `json:"error"`
}

// endpoint adapts a service call to HTTP. Every failure is reported as a 400
// response carrying the error message.
type endpoint struct {
	name      string
	bodyLimit int64
	call      func(ctx context.Context, req *Request) (interface{}, error)

	requests *metrics.Meter
	failures *metrics.Meter
	duration *metrics.ResettingTimer
}

func newEndpoint(name string, bodyLimit int64, call func(ctx context.Context, req *Request) (interface{}, error)) *endpoint {
	return &endpoint{
		name:      name,
		bodyLimit: bodyLimit,
		call:      call,
		requests:  metrics.GetOrRegisterMeter("gateway/"+name+"/requests", nil),
		failures:  metrics.GetOrRegisterMeter("gateway/"+name+"/errors", nil),
		duration:  metrics.GetOrRegisterResettingTimer("gateway/"+name+"/duration", nil),
	}
}

// NewReadHandler returns the HTTP handler of the read endpoint. It expects the
// path /<contract-address>/<function-name> and a JSON array of arguments.
func NewReadHandler(r *Reader, bodyLimit int64) http.Handler {
	return newEndpoint("read", bodyLimit, func(ctx context.Context, req *Request) (interface{}, error) {
		return r.Call(ctx, req)
	})
}

// NewWriteHandler returns the HTTP handler of the write endpoint. It expects
// the path /<contract-address>/<function-name> and a JSON object of arguments
// keyed by parameter name, and responds with the transaction receipt.
func NewWriteHandler(w *Writer, bodyLimit int64) http.Handler {
	return newEndpoint("write", bodyLimit, func(ctx context.Context, req *Request) (interface{}, error) {
		return w.Execute(ctx, req)
	})
}

func (e *endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	start := time.Now()
	e.requests.Mark(1)
	defer e.duration.UpdateSince(start)

	reqID := r.Header.Get(requestIDHeader)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, reqID)
	logger := log.New("reqid", reqID, "endpoint", e.name)

	result, err := e.handle(w, r)
	if err != nil {
		e.failures.Mark(1)
		logger.Debug("Request failed", "path", r.URL.Path, "err", err, "elapsed", time.Since(start))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	logger.Debug("Served request", "path", r.URL.Path, "elapsed", time.Since(start))
	writeJSON(w, http.StatusOK, result)
}

func (e *endpoint) handle(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	target, function, err := splitPath(r.URL.Path)
	if err != nil {
		return nil, err
	}
	body := io.Reader(r.Body)
	if e.bodyLimit > 0 {
		body = http.MaxBytesReader(w, r.Body, e.bodyLimit)
	}
	blob, err := io.ReadAll(body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return nil, err
	}
	req := &Request{Target: target, Function: function, Body: blob}
	if returns := r.URL.Query().Get("returns"); returns != "" {
		req.Returns = strings.Split(returns, ",")
	}
	return e.call(r.Context(), req)
}

// splitPath extracts the contract address and function name from path. Empty
// segments are ignored.
func splitPath(path string) (target, function string, err error) {
	var parts []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) != 2 {
		return "", "", ErrInvalidPath
	}
	return parts[0], parts[1], nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("Failed to write response", "err", err)
	}
}

// allowMethod reports whether r uses one of methods, answering 405 otherwise.
func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	return false
}

// newMethodHandler rejects requests with other methods before they reach next.
func newMethodHandler(next http.Handler, methods ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowMethod(w, r, methods...) {
			next.ServeHTTP(w, r)
		}
	})
}

// healthHandler reports liveness.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// notFoundHandler answers paths outside the mounted endpoints.
func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
}
