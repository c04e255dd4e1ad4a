package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captured holds what the test server saw of the last request
type captured struct {
	path          string
	authorization string
}

func newEchoServer(t *testing.T, respond func(req RequestEnvelope) (int, ResponseEnvelope)) (*httptest.Server, *captured) {
	t.Helper()
	last := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		last.path = r.URL.Path
		last.authorization = r.Header.Get("Authorization")
		var req RequestEnvelope
		_ = json.NewDecoder(r.Body).Decode(&req)
		status, resp := respond(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, last
}

func TestClientRequestSuccess(t *testing.T) {
	var seen RequestEnvelope
	srv, last := newEchoServer(t, func(req RequestEnvelope) (int, ResponseEnvelope) {
		seen = req
		return http.StatusOK, ResponseEnvelope{
			MessageID: req.MessageID,
			CommandID: req.CommandID,
			Status:    StatusSuccess,
			Data:      json.RawMessage(`{"username":"alice"}`),
		}
	})

	c := NewClient(srv.URL+"/", 0)
	c.SetToken("tok")

	var out struct {
		Username string `json:"username"`
	}
	err := c.Request(context.Background(), MethodPeerInfo, map[string]string{"userId": "1"}, &out)
	require.NoError(t, err)

	assert.Equal(t, "alice", out.Username)
	assert.Equal(t, MethodPeerInfo, seen.CommandID)
	assert.NotEmpty(t, seen.MessageID)
	assert.Equal(t, requestPath, last.path)
	assert.Equal(t, "Bearer tok", last.authorization)
}

func TestClientRequestFailures(t *testing.T) {
	tests := []struct {
		name    string
		respond func(req RequestEnvelope) (int, ResponseEnvelope)
		reason  string
	}{
		{
			name: "remote failure status",
			respond: func(req RequestEnvelope) (int, ResponseEnvelope) {
				return http.StatusOK, ResponseEnvelope{MessageID: req.MessageID, Status: StatusFailed, Reason: "unknown_user"}
			},
			reason: "unknown_user",
		},
		{
			name: "http error",
			respond: func(req RequestEnvelope) (int, ResponseEnvelope) {
				return http.StatusBadGateway, ResponseEnvelope{}
			},
			reason: "HTTP 502",
		},
		{
			name: "mismatched message id",
			respond: func(req RequestEnvelope) (int, ResponseEnvelope) {
				return http.StatusOK, ResponseEnvelope{MessageID: "other", Status: StatusSuccess}
			},
			reason: "response for message other",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newEchoServer(t, tt.respond)
			c := NewClient(srv.URL, 0)

			err := c.Request(context.Background(), MethodRelationshipList, nil, nil)
			require.Error(t, err)

			var terr *Error
			require.True(t, errors.As(err, &terr))
			assert.Equal(t, MethodRelationshipList, terr.Method)
			assert.Contains(t, terr.Reason, tt.reason)
		})
	}
}

func TestClientRequestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := NewClient(srv.URL, 0)
	err := c.Request(context.Background(), MethodSubscribeUpdates, nil, nil)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "request failed", terr.Reason)
	assert.NotNil(t, terr.Unwrap())
}
