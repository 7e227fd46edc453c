package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cdr-graph/backend/internal/adapter"
	"cdr-graph/backend/internal/constants"
	"cdr-graph/backend/internal/graph"
	"cdr-graph/backend/internal/ingest"
	"cdr-graph/backend/internal/metrics"
	"cdr-graph/backend/internal/session"
	"cdr-graph/backend/internal/tabular"
	apperrors "cdr-graph/backend/pkg/errors"
)

const cdrCSV = "A PARTY,B PARTY,CALL TYPE,IMEI A,IMSI A,DURATION\n" +
	"100,200,OUT,111,999,10\n" +
	"100,200,OUT,111,999,20\n"

type fakeAssistant struct {
	err         error
	lastContext adapter.SessionContext
}

func (f *fakeAssistant) ExplainFileType(ctx context.Context, fileType string, columns []string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return fileType + " explained (" + strings.Join(columns, ",") + ")", nil
}

func (f *fakeAssistant) AnalyzeSession(ctx context.Context, sc adapter.SessionContext) (string, error) {
	f.lastContext = sc
	return "analysis", f.err
}

func (f *fakeAssistant) Answer(ctx context.Context, question string, sc adapter.SessionContext) (string, error) {
	f.lastContext = sc
	return "answer to " + question, f.err
}

func (f *fakeAssistant) Suggest(ctx context.Context, sc adapter.SessionContext) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []string{"one", "two"}, nil
}

type failingIngester struct{ err error }

func (f failingIngester) Ingest(ctx context.Context, table *tabular.Table) (*ingest.Result, error) {
	return nil, f.err
}

type testEnv struct {
	router   *gin.Engine
	store    *graph.MemoryStore
	sessions *session.Manager
	ai       *fakeAssistant
	metrics  *metrics.Registry
}

func newTestEnv(t *testing.T, withAI bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		store:    graph.NewMemoryStore(),
		sessions: session.NewManager(session.WithLogger(zap.NewNop())),
		metrics:  metrics.NewRegistry(),
	}
	writer := graph.NewWriter(env.store, graph.WriterOptions{Timeout: time.Second, Logger: zap.NewNop()})
	deps := Deps{
		Ingest:   ingest.NewService(writer, ingest.Options{Workers: 2, Metrics: env.metrics, Logger: zap.NewNop()}),
		Sessions: env.sessions,
		Graph:    env.store,
		Metrics:  env.metrics,
		Logger:   zap.NewNop(),
	}
	if withAI {
		env.ai = &fakeAssistant{}
		deps.AI = env.ai
	}
	env.router = NewRouter(deps)
	return env
}

func upload(t *testing.T, filename, body, sessionID string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile(constants.UploadField, filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/parse-data", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if sessionID != "" {
		req.Header.Set(constants.SessionHeader, sessionID)
	}
	return req
}

func (env *testEnv) do(req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func jsonRequest(method, path, sessionID, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.Header.Set(constants.SessionHeader, sessionID)
	}
	return req
}

func TestCheck(t *testing.T) {
	env := newTestEnv(t, false)
	w, body := env.do(httptest.NewRequest(http.MethodGet, "/check", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "working", body["success"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)
	w, body := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "connected", body["neo4j"])
}

func TestParseData_CDR(t *testing.T) {
	env := newTestEnv(t, true)

	w, body := env.do(upload(t, "calls.csv", cdrCSV, "s1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "CDR", body["file_type"])
	assert.Equal(t, "s1", body["session_id"])
	assert.Equal(t, float64(2), body["record_count"])
	assert.Equal(t, float64(4), body["nodes"])
	assert.Equal(t, float64(6), body["relationships"])
	assert.Contains(t, body["ai_explanation"], "CDR explained")

	props, ok := env.store.Relationship(graph.EdgeKey{FromLabel: graph.LabelParty, RelType: graph.RelCall, ToLabel: graph.LabelParty}, "100", "200")
	require.True(t, ok)
	assert.Equal(t, "20", props["duration"])

	stats, err := env.sessions.Stats("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesProcessed)
	assert.Equal(t, 2, stats.TotalRecords)
	assert.Equal(t, 4, stats.ConversationMessages, "upload exchange plus explanation exchange")
}

func TestParseData_CreatesSession(t *testing.T) {
	env := newTestEnv(t, false)

	w, body := env.do(upload(t, "calls.csv", cdrCSV, ""))
	require.Equal(t, http.StatusOK, w.Code)

	id, _ := body["session_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, id, w.Header().Get(constants.SessionHeader))
	assert.True(t, env.sessions.Exists(id))
	assert.Equal(t, "", body["ai_explanation"])
}

func TestParseData_UnknownFileType(t *testing.T) {
	env := newTestEnv(t, false)

	w, body := env.do(upload(t, "people.csv", "name,age\nbob,3\n", "s1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Unknown file type", body["error"])
	assert.Equal(t, []any{"NAME", "AGE"}, body["detected_columns"])

	msgs, err := env.sessions.Messages("s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Error processing people.csv", msgs[0].Content)
}

func TestParseData_BadRequests(t *testing.T) {
	env := newTestEnv(t, false)

	w, body := env.do(upload(t, "", "", "s1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No file part in the request", body["error"])

	w, body = env.do(upload(t, "notes.txt", "a,b\n", "s1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "unsupported file extension")
	assert.Equal(t, false, body["retryable"])

	msgs, err := env.sessions.Messages("s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Error processing notes.txt", msgs[0].Content)
}

func TestParseData_WriteFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sessions := session.NewManager(session.WithLogger(zap.NewNop()))
	router := NewRouter(Deps{
		Ingest:   failingIngester{err: apperrors.NewGraphWriteFailed(graph.PhaseNodes, graph.LabelParty, false, true, errors.New("connection refused"))},
		Sessions: sessions,
		Logger:   zap.NewNop(),
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, upload(t, "calls.csv", cdrCSV, "s1"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["retryable"])
	assert.Equal(t, "s1", body["session_id"])
}

func TestSessionRoutes(t *testing.T) {
	env := newTestEnv(t, false)
	env.do(upload(t, "calls.csv", cdrCSV, "s1"))

	w, _ := env.do(jsonRequest(http.MethodGet, "/session/history", "", ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(jsonRequest(http.MethodGet, "/session/history", "nope", ""))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := env.do(jsonRequest(http.MethodGet, "/session/history", "s1", ""))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["file_history"], 1)
	ctx, _ := body["processing_context"].(map[string]any)
	assert.Equal(t, "CDR", ctx["last_file_type"])
	assert.Equal(t, float64(1), ctx["total_files_processed"])

	w, body = env.do(jsonRequest(http.MethodGet, "/session/stats", "s1", ""))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["total_records"])

	w, body = env.do(jsonRequest(http.MethodGet, "/session/memory", "fresh", ""))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fresh", body["session_id"])
	assert.True(t, env.sessions.Exists("fresh"))
}

func TestCleanup(t *testing.T) {
	env := newTestEnv(t, false)
	env.sessions.GetOrCreate("a")

	w, body := env.do(jsonRequest(http.MethodPost, "/session/cleanup", "", `{"max_age_hours": 24}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["cleaned_sessions"])

	time.Sleep(2 * time.Millisecond)
	w, body = env.do(jsonRequest(http.MethodPost, "/session/cleanup", "", `{"max_age_hours": 0}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["cleaned_sessions"])

	w, _ = env.do(jsonRequest(http.MethodPost, "/session/cleanup", "", `{"max_age_hours": -1}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.sessions.GetOrCreate("b")
	w, _ = env.do(jsonRequest(http.MethodPost, "/session/cleanup", "", `{"max_age_hours": 1e300}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, env.sessions.Exists("b"), "an oversized age must not wrap into a cleanup of everything")
}

func TestAIRoutes_Disabled(t *testing.T) {
	env := newTestEnv(t, false)
	env.sessions.GetOrCreate("s1")

	w, _ := env.do(jsonRequest(http.MethodGet, "/session/ai/analysis", "s1", ""))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAIRoutes(t *testing.T) {
	env := newTestEnv(t, true)
	env.do(upload(t, "calls.csv", cdrCSV, "s1"))

	w, body := env.do(jsonRequest(http.MethodGet, "/session/ai/analysis", "s1", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "analysis", body["analysis"])
	assert.Equal(t, 1, env.ai.lastContext.FilesProcessed)
	assert.Equal(t, map[string]int{"CDR": 1}, env.ai.lastContext.FileTypes)
	assert.Len(t, env.ai.lastContext.Recent, 4)
	assert.Equal(t, session.RoleHuman, env.ai.lastContext.Recent[0].Role)

	w, body = env.do(jsonRequest(http.MethodPost, "/session/ai/ask", "s1", `{"question":"who called most?"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "answer to who called most?", body["answer"])

	w, _ = env.do(jsonRequest(http.MethodPost, "/session/ai/ask", "s1", `{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = env.do(jsonRequest(http.MethodPost, "/session/ai/chat", "s1", `{"message":"hi"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "answer to hi", body["response"])

	w, body = env.do(jsonRequest(http.MethodGet, "/session/ai/suggestions", "s1", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"one", "two"}, body["suggestions"])

	w, body = env.do(jsonRequest(http.MethodGet, "/session/ai/explain/ipdr?columns=SOURCE_IP_ADDRESS&columns=SESSION_DURATION", "s1", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "IPDR", body["file_type"])
	assert.Equal(t, "IPDR explained (SOURCE_IP_ADDRESS,SESSION_DURATION)", body["explanation"])

	msgs, err := env.sessions.Messages("s1")
	require.NoError(t, err)
	assert.Equal(t, constants.SuggestionsQuestion, msgs[len(msgs)-4].Content)
	assert.Equal(t, "Here are my suggestions:\n• one\n• two", msgs[len(msgs)-3].Content)

	w, _ = env.do(jsonRequest(http.MethodGet, "/session/ai/analysis", "unknown", ""))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAIRoutes_Failure(t *testing.T) {
	env := newTestEnv(t, true)
	env.sessions.GetOrCreate("s1")
	env.ai.err = apperrors.NewAgentLLMFailed("m", 3, true, errors.New("503"))

	w, body := env.do(jsonRequest(http.MethodGet, "/session/ai/analysis", "s1", ""))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, true, body["retryable"])
}

func TestGraphStatsAndMetrics(t *testing.T) {
	env := newTestEnv(t, false)
	env.do(upload(t, "calls.csv", cdrCSV, "s1"))

	w, body := env.do(httptest.NewRequest(http.MethodGet, "/graph/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	nodes, _ := body["nodes"].(map[string]any)
	assert.Equal(t, float64(2), nodes["Party"])
	rels, _ := body["relationships"].(map[string]any)
	assert.Equal(t, float64(1), rels["CALL"])

	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `cdrgraph_ingest_rows_total{file_type="CDR"} 2`)
	assert.Contains(t, w.Body.String(), `cdrgraph_http_requests_total{method="POST",path="/parse-data",status="200"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, false)
	w, _ := env.do(httptest.NewRequest(http.MethodOptions, "/parse-data", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
