package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/video-compiler/internal/compile"
	"github.com/maauso/video-compiler/internal/job"
)

// mockService implements CompileService for testing.
type mockService struct {
	mock.Mock
}

func (m *mockService) Compile(ctx context.Context, req compile.Request) compile.Response {
	args := m.Called(ctx, req)
	return args.Get(0).(compile.Response)
}

func (m *mockService) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandlers(t *testing.T) (*Handlers, *mockService) {
	t.Helper()
	svc := &mockService{}
	return NewHandlers(svc, quiet()), svc
}

const compileBody = `{"userId":"u1","jobId":"job-1","clips":[{"id":"c1","sourcePath":"u1/c1.mp4","order":1}]}`

func TestHealth(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestCompile_Success(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("Compile", mock.Anything, mock.MatchedBy(func(r compile.Request) bool {
		return r.UserID == "u1" && r.JobID == "job-1" && len(r.Clips) == 1
	})).Return(compile.Response{
		StatusCode: http.StatusOK,
		Body: compile.ResponseBody{
			Message:    "Video compilation completed successfully",
			JobID:      "job-1",
			OutputPath: "final_videos/u1/job-1.mp4",
			Stats:      &job.Stats{ClipCount: 1, Tier: "full", Attempts: 1},
		},
	}).Once()

	req := httptest.NewRequest(http.MethodPost, "/compile", strings.NewReader(compileBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.Compile(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp compile.ResponseBody
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, "final_videos/u1/job-1.mp4", resp.OutputPath)
	require.NotNil(t, resp.Stats)
	assert.Equal(t, "full", resp.Stats.Tier)
	svc.AssertExpectations(t)
}

func TestCompile_AcceptsGatewayEnvelope(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("Compile", mock.Anything, mock.MatchedBy(func(r compile.Request) bool {
		return r.UserID == "u1"
	})).Return(compile.Response{StatusCode: http.StatusOK}).Once()

	envelope, err := json.Marshal(map[string]string{"body": compileBody})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/compile", bytes.NewReader(envelope))
	rec := httptest.NewRecorder()
	h.Compile(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestCompile_PropagatesStatus(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("Compile", mock.Anything, mock.Anything).Return(compile.Response{
		StatusCode: http.StatusInternalServerError,
		Body:       compile.ResponseBody{Error: "Video compilation failed: boom", JobID: "job-1"},
	}).Once()

	req := httptest.NewRequest(http.MethodPost, "/compile", strings.NewReader(compileBody))
	rec := httptest.NewRecorder()
	h.Compile(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp compile.ResponseBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Video compilation failed: boom", resp.Error)
}

func TestCompile_InvalidJSON(t *testing.T) {
	h, svc := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/compile", strings.NewReader("invalid json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.Compile(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "INVALID_JSON", resp.Code)
	svc.AssertNotCalled(t, "Compile", mock.Anything, mock.Anything)
}

func TestCompile_BodyTooLarge(t *testing.T) {
	h, svc := newTestHandlers(t)

	big := `{"userId":"` + strings.Repeat("x", maxRequestBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/compile", strings.NewReader(big))
	rec := httptest.NewRecorder()

	h.Compile(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "INVALID_BODY", resp.Code)
	svc.AssertNotCalled(t, "Compile", mock.Anything, mock.Anything)
}

func TestGetJob_Success(t *testing.T) {
	h, svc := newTestHandlers(t)

	testJob := job.NewWithID("job-1", "u1")
	testJob.ClipIDs = []string{"c1", "c2"}
	require.NoError(t, testJob.Start())
	require.NoError(t, testJob.Complete("final_videos/u1/job-1.mp4", job.Stats{ClipCount: 2, Tier: "basic"}))
	svc.On("GetJob", mock.Anything, "job-1").Return(testJob, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil)
	req.SetPathValue("id", "job-1")
	rec := httptest.NewRecorder()

	h.GetJob(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "job-1", resp.ID)
	assert.Equal(t, "u1", resp.UserID)
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, []string{"c1", "c2"}, resp.ClipIDs)
	assert.Equal(t, "final_videos/u1/job-1.mp4", resp.OutputPath)
	require.NotNil(t, resp.Stats)
	assert.Equal(t, "basic", resp.Stats.Tier)
}

func TestGetJob_NotFound(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("GetJob", mock.Anything, "nonexistent").Return(nil, job.ErrJobNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/jobs/nonexistent", nil)
	req.SetPathValue("id", "nonexistent")
	rec := httptest.NewRecorder()

	h.GetJob(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "JOB_NOT_FOUND", resp.Code)
}

func TestGetJob_RepositoryError(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("GetJob", mock.Anything, "job-1").Return(nil, errors.New("throttled")).Once()

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil)
	req.SetPathValue("id", "job-1")
	rec := httptest.NewRecorder()

	h.GetJob(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "JOB_FETCH_FAILED", resp.Code)
}

func TestGetJob_MissingID(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs/", nil)
	rec := httptest.NewRecorder()

	h.GetJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "MISSING_JOB_ID", resp.Code)
}

func TestRouter_Integration(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("Compile", mock.Anything, mock.Anything).
		Return(compile.Response{StatusCode: http.StatusOK, Body: compile.ResponseBody{JobID: "job-1"}}).Once()
	svc.On("GetJob", mock.Anything, "job-1").Return(job.NewWithID("job-1", "u1"), nil).Once()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "video_compiler_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	cfg := DefaultConfig()
	cfg.Gatherer = reg
	router := NewRouter(h, quiet(), cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/compile", strings.NewReader(compileBody))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "video_compiler_test_total 1")

	req = httptest.NewRequest(http.MethodGet, "/compile", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	svc.AssertExpectations(t)
}

func TestRouter_NoMetricsWithoutGatherer(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := NewRouter(h, quiet(), DefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	h, _ := newTestHandlers(t)

	cfg := Config{AllowedOrigins: []string{"https://example.com"}}
	router := NewRouter(h, quiet(), cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/compile", nil)
	req.Header.Set("Origin", "https://example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware(quiet())(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
}

func TestLoggingMiddleware_RecordsStatusAndSize(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/compile", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http request", entry["msg"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.Equal(t, "15 B", entry["size"])
}
