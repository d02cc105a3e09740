package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go-openclaw-autoapply/internal/automation"
	"go-openclaw-autoapply/internal/config"
	"go-openclaw-autoapply/internal/evidence"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/notify"
	"go-openclaw-autoapply/internal/scheduler"
	"go-openclaw-autoapply/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, string) error { return nil }

type testAPI struct {
	router   *gin.Engine
	store    *store.Badger
	evidence *evidence.Store
	hub      *notify.Hub
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()

	st, err := store.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.SaveJob(context.Background(), &models.Job{ID: "j1", Title: "Go Engineer", Company: "Acme", URL: "https://jobs.acme.dev/42"}))

	ev, err := evidence.New(t.TempDir(), 20, log)
	require.NoError(t, err)

	hub := notify.NewHub(log, 0)
	t.Cleanup(hub.Close)

	reg := prometheus.NewRegistry()
	sched := scheduler.New(st, st, nopDispatcher{}, hub, automation.DefaultPolicy(),
		config.SchedulerConfig{StaleAfter: 30 * time.Minute, DispatchGrace: 2 * time.Minute},
		scheduler.NewMetrics(reg), log)

	return &testAPI{
		router:   NewRouter(NewHandler(sched, ev, hub, log), reg, log),
		store:    st,
		evidence: ev,
		hub:      hub,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

// failedApp stores an application whose single attempt failed with a timeout
func (a *testAPI) failedApp(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.store.Create(ctx, models.NewApplication(id, "u1", "j1", time.Now().UTC())))
	_, err := a.store.Transition(ctx, id, []models.ApplicationStatus{models.StatusPending}, func(app *models.Application) error {
		now := time.Now().UTC()
		app.BeginAttempt(now)
		app.FailAttempt("timeout: fill: deadline exceeded", string(automation.CategoryTimeout), true, nil, now)
		return nil
	})
	require.NoError(t, err)
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	w, body := a.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestQueue(t *testing.T) {
	a := newTestAPI(t)

	w, body := a.do(t, http.MethodPost, "/api/applications/queue", gin.H{"user_id": "u1", "job_id": "j1"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "pending", body["status"])
	id, _ := body["application_id"].(string)
	assert.NotEmpty(t, id)

	w, body = a.do(t, http.MethodGet, "/api/applications/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", body["user_id"])
	assert.Equal(t, float64(0), body["total_attempts"])

	w, _ = a.do(t, http.MethodPost, "/api/applications/queue", gin.H{"user_id": "u1", "job_id": "j1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = a.do(t, http.MethodPost, "/api/applications/queue", gin.H{"user_id": "u1", "job_id": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = a.do(t, http.MethodPost, "/api/applications/queue", gin.H{"user_id": "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetryAndCancel(t *testing.T) {
	a := newTestAPI(t)
	a.failedApp(t, "a1")

	w, _ := a.do(t, http.MethodPost, "/api/applications/a1/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body := a.do(t, http.MethodPost, "/api/applications/a1/retry", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "queued", body["status"])

	w, body = a.do(t, http.MethodPost, "/api/applications/a1/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "application is not retryable", body["error"])

	w, body = a.do(t, http.MethodPost, "/api/applications/a1/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", body["status"])

	w, _ = a.do(t, http.MethodPost, "/api/applications/nope/retry", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEvidenceEndpoints(t *testing.T) {
	a := newTestAPI(t)
	a.failedApp(t, "a1")

	rec := a.evidence.Recorder("a1", 1)
	rec.Logf("opening %s", "https://jobs.acme.dev/42")
	rec.Screenshot("loaded", []byte("png-bytes"))

	w, body := a.do(t, http.MethodGet, "/api/applications/a1/attempts/1/screenshots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"a1/1/01_loaded.png"}, body["screenshots"])

	w, body = a.do(t, http.MethodGet, "/api/applications/a1/attempts/1/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	lines, _ := body["lines"].([]any)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "opening https://jobs.acme.dev/42")

	w, _ = a.do(t, http.MethodGet, "/api/applications/a1/attempts/1/screenshots/loaded", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png-bytes", w.Body.String())

	w, _ = a.do(t, http.MethodGet, "/api/applications/a1/attempts/1/screenshots/after_submit", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = a.do(t, http.MethodGet, "/api/applications/a1/attempts/2/logs", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = a.do(t, http.MethodGet, "/api/applications/a1/attempts/zero/logs", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodPost, "/api/applications/queue", gin.H{"user_id": "u1", "job_id": "j1"})

	w, _ := a.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `autoapply_scheduler_events_total{event="enqueued"} 1`)
}

func TestWebSocketReceivesQueuedEvent(t *testing.T) {
	a := newTestAPI(t)
	server := httptest.NewServer(a.router)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?user_id=u1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	read := func() notify.Message {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg notify.Message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}
	assert.Equal(t, notify.TypeConnectionEstablished, read().Type)

	resp, err := http.Post(server.URL+"/api/applications/queue", "application/json",
		strings.NewReader(`{"user_id":"u1","job_id":"j1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	msg := read()
	assert.Equal(t, notify.TypeQueued, msg.Type)
	assert.Equal(t, "Acme", msg.Data["company"])
}

func TestWebSocketRequiresUser(t *testing.T) {
	a := newTestAPI(t)
	w, _ := a.do(t, http.MethodGet, "/ws", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
