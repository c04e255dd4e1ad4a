package transporttest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/mcoot/relsync/internal/transport"
)

// Server is an HTTP remote speaking the request envelope and the push
// event stream. Requests are answered by the embedded Fake's responders.
type Server struct {
	*Fake
	*httptest.Server

	mu      sync.Mutex
	streams map[chan string]struct{}
	tokens  []string
}

// NewServer starts a Server; close it with Close
func NewServer() *Server {
	s := &Server{
		Fake:    New(),
		streams: make(map[chan string]struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/request", s.handleRequest)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	s.Server = httptest.NewServer(mux)
	return s
}

// Tokens returns the bearer tokens seen on requests, in order
func (s *Server) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.tokens...)
}

// Connected returns the number of open event streams
func (s *Server) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

// Push sends an event to every open stream
func (s *Server) Push(kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	frame := fmt.Sprintf("event: %s\ndata: %s\n\n", kind, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.streams {
		ch <- frame
	}
}

// DropStreams ends every open event stream
func (s *Server) DropStreams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.streams {
		close(ch)
		delete(s.streams, ch)
	}
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.tokens = append(s.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	s.mu.Unlock()

	var env struct {
		MessageID string          `json:"messageId"`
		CommandID string          `json:"commandId"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "bad envelope", http.StatusBadRequest)
		return
	}
	if len(env.Data) == 0 {
		env.Data = json.RawMessage("null")
	}

	resp := transport.ResponseEnvelope{
		MessageID: env.MessageID,
		CommandID: env.CommandID,
		Status:    transport.StatusSuccess,
	}
	var out json.RawMessage
	if err := s.Fake.Request(r.Context(), env.CommandID, env.Data, &out); err != nil {
		resp.Status = transport.StatusFailed
		resp.Reason = err.Error()
		var terr *transport.Error
		if errors.As(err, &terr) {
			resp.Reason = terr.Reason
		}
	} else {
		resp.Data = out
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan string, 64)
	s.mu.Lock()
	s.streams[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if _, ok := s.streams[ch]; ok {
			delete(s.streams, ch)
		}
		s.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte(frame))
			flusher.Flush()
		}
	}
}

// Close ends open event streams and shuts the server down
func (s *Server) Close() {
	s.DropStreams()
	s.Server.Close()
}
