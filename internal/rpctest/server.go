// Package rpctest provides an in-process JSON-RPC node for tests.
package rpctest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Error is returned by a handler to produce a JSON-RPC error object
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Handler answers one method. params holds the raw positional parameters.
type Handler func(params []json.RawMessage) (interface{}, error)

type request struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result"`
	Error   *Error          `json:"error,omitempty"`
}

// Server is a fake node served over HTTP
type Server struct {
	*httptest.Server

	mutex    sync.Mutex
	handlers map[string]Handler
	calls    map[string]int
	batches  int
	status   []int
}

// NewServer starts a server that is closed when the test ends
func NewServer(t testing.TB) *Server {
	s := &Server{
		handlers: make(map[string]Handler),
		calls:    make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.Close)
	return s
}

// Handle registers the handler for method
func (s *Server) Handle(method string, h Handler) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.handlers[method] = h
}

// Result registers a handler that always returns result
func (s *Server) Result(method string, result interface{}) {
	s.Handle(method, func([]json.RawMessage) (interface{}, error) { return result, nil })
}

// FailNext makes the next len(codes) HTTP requests fail with the given status codes
func (s *Server) FailNext(codes ...int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.status = append(s.status, codes...)
}

// Calls returns how many times method was called
func (s *Server) Calls(method string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.calls[method]
}

// Batches returns the number of batch requests received
func (s *Server) Batches() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.batches
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	if len(s.status) > 0 {
		code := s.status[0]
		s.status = s.status[1:]
		s.mutex.Unlock()
		http.Error(w, http.StatusText(code), code)
		return
	}
	s.mutex.Unlock()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	body = bytes.TrimSpace(body)

	w.Header().Set("Content-Type", "application/json")
	if len(body) > 0 && body[0] == '[' {
		var reqs []request
		if err := json.Unmarshal(body, &reqs); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mutex.Lock()
		s.batches++
		s.mutex.Unlock()

		resps := make([]response, len(reqs))
		for i, req := range reqs {
			resps[i] = s.dispatch(req)
		}
		_ = json.NewEncoder(w).Encode(resps)
		return
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(s.dispatch(req))
}

func (s *Server) dispatch(req request) response {
	s.mutex.Lock()
	s.calls[req.Method]++
	h, ok := s.handlers[req.Method]
	s.mutex.Unlock()

	resp := response{JSONRPC: "2.0", ID: req.ID}
	if !ok {
		resp.Error = &Error{Code: -32601, Message: fmt.Sprintf("the method %s does not exist/is not available", req.Method)}
		return resp
	}

	result, err := h(req.Params)
	if err != nil {
		rpcErr, ok := err.(*Error)
		if !ok {
			rpcErr = &Error{Code: -32000, Message: err.Error()}
		}
		resp.Error = rpcErr
		return resp
	}
	resp.Result = result
	return resp
}
