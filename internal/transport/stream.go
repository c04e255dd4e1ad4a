package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

const (
	eventsPath = "/api/v1/events"

	// maxFrameSize bounds a single data line of the event stream
	maxFrameSize = 1 << 20
)

// Stream reads server-sent push events and dispatches them, in delivery
// order, to the handlers registered for each kind
type Stream struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.RWMutex
	token     string
	handlers  map[string][]Handler
	onConnect []func(ctx context.Context)
}

// Ensure Stream implements EventSource
var _ EventSource = (*Stream)(nil)

// NewStream creates a push event stream for the given server
func NewStream(baseURL string, logger *slog.Logger) *Stream {
	return &Stream{
		url: strings.TrimSuffix(baseURL, "/") + eventsPath,
		httpClient: &http.Client{
			Timeout: 0, // No timeout for SSE
		},
		logger:   logger.With(slog.String("component", "event-stream")),
		handlers: make(map[string][]Handler),
	}
}

// SetToken updates the bearer token sent when connecting
func (s *Stream) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// OnEvent registers a handler for events of kind
func (s *Stream) OnEvent(kind string, handler Handler) {
	s.mu.Lock()
	s.handlers[kind] = append(s.handlers[kind], handler)
	s.mu.Unlock()
}

// OnConnect registers a hook run each time the stream (re)connects,
// before any event of that connection is dispatched
func (s *Stream) OnConnect(fn func(ctx context.Context)) {
	s.mu.Lock()
	s.onConnect = append(s.onConnect, fn)
	s.mu.Unlock()
}

// Run connects and dispatches events until the stream ends or ctx is
// cancelled. Cancellation returns nil.
func (s *Stream) Run(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	s.mu.RLock()
	token := s.token
	hooks := append([]func(context.Context){}, s.onConnect...)
	s.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	s.logger.Info("event stream connected", slog.String("url", s.url))
	for _, hook := range hooks {
		hook(ctx)
	}

	err = s.read(ctx, bufio.NewScanner(resp.Body))
	if ctx.Err() != nil {
		// Context cancellation is expected
		return nil
	}
	if err != nil {
		return fmt.Errorf("stream error: %w", err)
	}

	s.logger.Info("event stream closed by server")
	return nil
}

func (s *Stream) read(ctx context.Context, scanner *bufio.Scanner) error {
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	var currentEvent string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, ":"):
			// Comment line, used for keepalives
		case strings.HasPrefix(line, "event:"):
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case line == "":
			// End of event
			if currentEvent != "" {
				s.dispatch(ctx, currentEvent, strings.Join(dataLines, "\n"))
			}
			currentEvent = ""
			dataLines = nil
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Stream) dispatch(ctx context.Context, kind, data string) {
	s.mu.RLock()
	handlers := s.handlers[kind]
	s.mu.RUnlock()

	if len(handlers) == 0 {
		s.logger.Debug("ignoring event with no handler", slog.String("kind", kind))
		return
	}

	payload := json.RawMessage(data)
	for _, h := range handlers {
		h(ctx, payload)
	}
}
