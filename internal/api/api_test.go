package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/relsync/internal/api"
	"github.com/mcoot/relsync/internal/api/apierr"
	"github.com/mcoot/relsync/internal/api/response"
	"github.com/mcoot/relsync/internal/factory"
	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/testutil"
	"github.com/mcoot/relsync/internal/transport"
)

// testServer wires the router to a test app
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()

	app := factory.NewTestApp()
	go app.Hub.Run()
	t.Cleanup(app.Hub.Close)

	router := api.NewRouter(api.RouterConfig{
		Logger: testutil.NopLogger(),
		Engine: app.Engine,
		Hub:    app.Hub,
		APIKey: apiKey,
	})

	return &testServer{handler: router, app: app}
}

func (ts *testServer) request(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[apierr.ErrorResponse](t, rr).Error.Code
}

func (ts *testServer) replyList(friends, outgoing, incoming []string) {
	entries := func(key string, ids []string) []map[string]string {
		out := []map[string]string{}
		for _, id := range ids {
			out = append(out, map[string]string{key: id})
		}
		return out
	}
	ts.app.Remote.Reply(transport.MethodRelationshipList, map[string]any{
		"friends":                 entries("userId", friends),
		"outgoingPendingRequests": entries("to", outgoing),
		"incomingPendingRequests": entries("from", incoming),
	})
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, "")

	rr := ts.request(http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	resp := decode[response.Health](t, rr)
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, resp.Initialized)
	assert.False(t, resp.Authenticated)
}

func TestHealthIgnoresAPIKey(t *testing.T) {
	ts := newTestServer(t, "key")

	rr := ts.request(http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	ts := newTestServer(t, "key")

	rr := ts.request(http.MethodGet, "/api/v1/me", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeUnauthorized, errorCode(t, rr))

	rr = ts.request(http.MethodGet, "/api/v1/me", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/me", "key")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/me?access_token=key", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMe(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()
	ts.app.Remote.Emit(ctx, string(model.EventRequestReceived), map[string]string{"from": "9"})

	rr := ts.request(http.MethodGet, "/api/v1/me", "")
	require.Equal(t, http.StatusOK, rr.Code)

	snap := decode[model.StateSnapshot](t, rr)
	assert.True(t, snap.Self.Relationships.Incoming.Has(9))
	assert.Equal(t, uint64(1), snap.Version)
}

func TestRelationships(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()
	ts.app.Remote.Emit(ctx, string(model.EventRequestReceived), map[string]string{"from": "9"})
	ts.app.Remote.Emit(ctx, string(model.EventRequestAccepted), map[string]string{"from": "4"})
	ts.app.Remote.Emit(ctx, string(model.EventRequestAccepted), map[string]string{"from": "2"})

	rr := ts.request(http.MethodGet, "/api/v1/relationships", "")
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[response.Relationships](t, rr)
	assert.Equal(t, []model.PeerID{2, 4}, resp.Friends)
	assert.Empty(t, resp.Outgoing)
	assert.Equal(t, []model.PeerID{9}, resp.Incoming)
}

func TestProfile(t *testing.T) {
	ts := newTestServer(t, "")
	require.NoError(t, ts.app.Memory.PutProfile(context.Background(), &model.PeerProfile{
		ID:       7,
		Username: "seven",
		Status:   model.StatusOffline,
	}))

	t.Run("cached", func(t *testing.T) {
		rr := ts.request(http.MethodGet, "/api/v1/profiles/7", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "seven", decode[model.PeerProfile](t, rr).Username)
	})

	t.Run("unknown peer", func(t *testing.T) {
		rr := ts.request(http.MethodGet, "/api/v1/profiles/8", "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, apierr.CodePeerNotFound, errorCode(t, rr))
	})

	t.Run("invalid id", func(t *testing.T) {
		rr := ts.request(http.MethodGet, "/api/v1/profiles/abc", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, apierr.CodeInvalidRequest, errorCode(t, rr))
	})
}

func TestReconcile(t *testing.T) {
	ts := newTestServer(t, "")
	ts.replyList([]string{"7"}, nil, []string{"9"})
	ts.app.Remote.Reply(transport.MethodPeerInfo, map[string]any{"userId": "7", "username": "peer"})

	rr := ts.request(http.MethodPost, "/api/v1/reconcile", "")
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[response.Reconcile](t, rr)
	assert.Equal(t, 2, resp.Peers)
	assert.Equal(t, 2, resp.Fetched)
	assert.Empty(t, resp.Failed)

	rel := ts.app.Engine.Self().Relationships
	assert.True(t, rel.Friends.Has(7))
	assert.True(t, rel.Incoming.Has(9))
}

func TestReconcileSnapshotUnavailable(t *testing.T) {
	ts := newTestServer(t, "")
	ts.app.Remote.Fail(transport.MethodRelationshipList, "remote down")

	rr := ts.request(http.MethodPost, "/api/v1/reconcile", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, apierr.CodeSnapshotUnavailable, errorCode(t, rr))
}

func TestReconcileWrongMethod(t *testing.T) {
	ts := newTestServer(t, "")

	rr := ts.request(http.MethodGet, "/api/v1/reconcile", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestSessionLogin(t *testing.T) {
	t.Run("no credentials", func(t *testing.T) {
		ts := newTestServer(t, "")

		rr := ts.request(http.MethodPost, "/api/v1/session/login", "")
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, apierr.CodeNoCredentials, errorCode(t, rr))
	})

	t.Run("rejected", func(t *testing.T) {
		ts := newTestServer(t, "")
		require.NoError(t, ts.app.Tokens.Save("tok"))
		ts.app.Remote.Fail(transport.MethodLogin, "expired")

		rr := ts.request(http.MethodPost, "/api/v1/session/login", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, apierr.CodeNotAuthenticated, errorCode(t, rr))
		assert.False(t, ts.app.Engine.Authenticated())
	})

	t.Run("accepted", func(t *testing.T) {
		ts := newTestServer(t, "")
		require.NoError(t, ts.app.Tokens.Save("tok"))
		ts.app.Remote.Reply(transport.MethodLogin, map[string]any{"userId": "3"})

		rr := ts.request(http.MethodPost, "/api/v1/session/login", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, decode[response.Session](t, rr).Authenticated)
		assert.Equal(t, model.PeerID(3), ts.app.Engine.Self().ID)
	})
}

func TestSessionLogoutAndOffline(t *testing.T) {
	ts := newTestServer(t, "")
	require.NoError(t, ts.app.Tokens.Save("tok"))
	ts.app.Remote.Reply(transport.MethodLogin, map[string]any{"userId": "3"})

	for _, path := range []string{"/api/v1/session/logout", "/api/v1/session/offline"} {
		rr := ts.request(http.MethodPost, "/api/v1/session/login", "")
		require.Equal(t, http.StatusOK, rr.Code)

		rr = ts.request(http.MethodPost, path, "")
		require.Equal(t, http.StatusOK, rr.Code, path)
		assert.False(t, decode[response.Session](t, rr).Authenticated, path)
	}

	// Local only: the token survives and no remote logout is sent
	token, err := ts.app.Tokens.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
	assert.Empty(t, ts.app.Remote.Calls(transport.MethodLogout))
}

func TestSessionChangeAccount(t *testing.T) {
	ts := newTestServer(t, "")
	require.NoError(t, ts.app.Tokens.Save("tok"))
	ts.app.Remote.Reply(transport.MethodLogout, map[string]any{})

	rr := ts.request(http.MethodPost, "/api/v1/session/change-account", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[response.Session](t, rr).Authenticated)

	assert.Len(t, ts.app.Remote.Calls(transport.MethodLogout), 1)
	token, err := ts.app.Tokens.Load()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestEventsStreamsState(t *testing.T) {
	ts := newTestServer(t, "")
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ts.app.Broadcaster.Run(ctx, ts.app.Engine)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := make(chan model.StateSnapshot, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var snap model.StateSnapshot
				if json.Unmarshal([]byte(data), &snap) == nil {
					frames <- snap
				}
			}
		}
	}()

	select {
	case snap := <-frames:
		assert.Equal(t, uint64(0), snap.Version)
	case <-time.After(time.Second):
		t.Fatal("no initial state")
	}

	require.Eventually(t, func() bool { return ts.app.Hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	ts.app.Remote.Emit(ctx, string(model.EventRequestAccepted), map[string]string{"from": "5"})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-frames:
			if snap.Self.Relationships.Friends.Has(5) {
				return
			}
		case <-deadline:
			t.Fatal("state change was not streamed")
		}
	}
}
