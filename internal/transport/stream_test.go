package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/relsync/internal/testutil"
)

func sseServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != eventsPath {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamDispatchesInOrder(t *testing.T) {
	body := "event: relationship/requestReceived\ndata: {\"from\":\"1\"}\n\n" +
		": keepalive\n\n" +
		"event: unknown\ndata: {}\n\n" +
		"event: relationship/requestAccepted\ndata: {\"from\":\n" +
		"data: \"1\"}\n\n"
	srv := sseServer(t, body)

	s := NewStream(srv.URL, testutil.NopLogger())
	s.SetToken("tok")

	var got []string
	record := func(kind string) Handler {
		return func(ctx context.Context, payload json.RawMessage) {
			got = append(got, kind+" "+string(payload))
		}
	}
	s.OnEvent("relationship/requestReceived", record("received"))
	s.OnEvent("relationship/requestAccepted", record("accepted"))
	s.OnConnect(func(ctx context.Context) { got = append(got, "connected") })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, []string{
		"connected",
		`received {"from":"1"}`,
		"accepted {\"from\":\n\"1\"}",
	}, got)
}

func TestStreamRejectsNonOKStatus(t *testing.T) {
	srv := sseServer(t, "")

	s := NewStream(srv.URL, testutil.NopLogger())
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestStreamCancelledContextReturnsNil(t *testing.T) {
	srv := sseServer(t, "")

	s := NewStream(srv.URL, testutil.NopLogger())
	s.SetToken("tok")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}
