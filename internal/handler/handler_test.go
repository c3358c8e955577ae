package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/internal/session"
	"github.com/weiawesome/wes-io-live/viewer/pkg/response"
)

type fakeSessions struct {
	mu         sync.Mutex
	opened     []domain.PartialIdentity
	openErr    error
	closeErr   error
	foreground []bool
	snap       domain.Snapshot
	updates    chan domain.Snapshot
}

func (f *fakeSessions) Open(_ context.Context, p domain.PartialIdentity) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return "", f.openErr
	}
	f.opened = append(f.opened, p)
	return "01HSESSION", nil
}

func (f *fakeSessions) Close() error { return f.closeErr }

func (f *fakeSessions) SetForeground(fg bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.foreground = append(f.foreground, fg)
}

func (f *fakeSessions) Snapshot() domain.Snapshot { return f.snap }

func (f *fakeSessions) Watch(ctx context.Context) <-chan domain.Snapshot {
	out := make(chan domain.Snapshot, 1)
	out <- f.snap
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-f.updates:
				out <- s
			}
		}
	}()
	return out
}

func newRouter(f *fakeSessions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(f, NewWSHandler(f, WSConfig{})).RegisterRoutes(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestOpenSession(t *testing.T) {
	f := &fakeSessions{}
	r := newRouter(f)

	w := do(r, http.MethodPost, "/api/v1/session", `{"live_stream_id": 42}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"session_id":"01HSESSION"`)
	require.Len(t, f.opened, 1)
	require.NotNil(t, f.opened[0].LiveStreamID)
	assert.Equal(t, int64(42), *f.opened[0].LiveStreamID)
}

func TestOpenSessionErrors(t *testing.T) {
	f := &fakeSessions{openErr: session.ErrEmptyIdentity}
	r := newRouter(f)

	w := do(r, http.MethodPost, "/api/v1/session", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, decode(t, w).Success)

	w = do(r, http.MethodPost, "/api/v1/session", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAndCloseSession(t *testing.T) {
	f := &fakeSessions{snap: domain.Snapshot{SessionID: "s1", State: domain.StateConnected}}
	r := newRouter(f)

	w := do(r, http.MethodGet, "/api/v1/session", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"connected"`)

	w = do(r, http.MethodDelete, "/api/v1/session", "")
	assert.Equal(t, http.StatusOK, w.Code)

	f.closeErr = session.ErrNoSession
	w = do(r, http.MethodDelete, "/api/v1/session", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetAppState(t *testing.T) {
	f := &fakeSessions{}
	r := newRouter(f)

	w := do(r, http.MethodPost, "/api/v1/session/app-state", `{"foreground": false}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []bool{false}, f.foreground)

	w = do(r, http.MethodPost, "/api/v1/session/app-state", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebSocketStreamsSnapshots(t *testing.T) {
	f := &fakeSessions{
		snap:    domain.Snapshot{SessionID: "s1", State: domain.StateResolving},
		updates: make(chan domain.Snapshot),
	}
	srv := httptest.NewServer(newRouter(f))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() domain.Snapshot {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var snap domain.Snapshot
		require.NoError(t, conn.ReadJSON(&snap))
		return snap
	}

	assert.Equal(t, domain.StateResolving, read().State)
	f.updates <- domain.Snapshot{SessionID: "s1", State: domain.StateConnected}
	assert.Equal(t, domain.StateConnected, read().State)
}
