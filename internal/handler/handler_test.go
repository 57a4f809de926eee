package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/handler"
	"github.com/xxxsen/docqa/internal/middleware"
	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/errcode"
	"github.com/xxxsen/docqa/internal/pkg/jwt"
	"github.com/xxxsen/docqa/internal/pkg/retry"
	"github.com/xxxsen/docqa/internal/service"
	"github.com/xxxsen/docqa/internal/vectorstore"
)

type letterEmbedder struct{}

// Embed counts the letters a to e.
func (letterEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	vec := make([]float32, 6)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'e' {
			vec[r-'a']++
		}
	}
	vec[5] = 1
	return vec, nil
}

func (letterEmbedder) ModelName() string {
	return "fake:letters"
}

type echoGenerator struct {
	err error
}

func (g echoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "generated answer", nil
}

type apiResult struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func setupRouter(t *testing.T, secret []byte) http.Handler {
	t.Helper()
	return setupRouterWithGenerator(t, secret, echoGenerator{})
}

func setupRouterWithGenerator(t *testing.T, secret []byte, gen ai.IGenerator) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := vectorstore.NewMemoryStore(model.MetricCosine)
	retryCfg := retry.Config{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	ingest := service.NewIngestService(store, letterEmbedder{}, service.IngestOptions{ChunkSize: 256, ConcurrencyLimit: 2, Retry: retryCfg})
	query := service.NewQueryService(store, letterEmbedder{}, ai.NewSynthesizer(gen, time.Second), service.QueryOptions{TopK: 2, Retry: retryCfg})

	deps := handler.RouterDeps{
		Collections: handler.NewCollectionHandler(ingest, query, nil),
		JWTSecret:   secret,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)
	return engine
}

func call(t *testing.T, router http.Handler, method, path, body, token string) apiResult {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var result apiResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	return result
}

const ingestBody = `{"documents":[
	{"id":"a.txt","text":"aaaa aaaa","metadata":{"lang":"en"}},
	{"id":"b.txt","text":"bbbb bbbb"},
	{"id":"c.txt","text":"cccc cccc"}
]}`

func TestCollectionFlow(t *testing.T) {
	router := setupRouter(t, nil)

	res := call(t, router, http.MethodPost, "/api/v1/collections/docs/ingest", ingestBody, "")
	var report service.IngestReport
	require.NoError(t, json.Unmarshal(res.Data, &report))
	require.Equal(t, 3, report.Succeeded)
	require.Equal(t, "docs", report.Collection)

	res = call(t, router, http.MethodPost, "/api/v1/collections/docs/search", `{"query":"bb","top_k":1}`, "")
	var search struct {
		Results []model.ScoredChunk `json:"results"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &search))
	require.Len(t, search.Results, 1)
	require.Equal(t, "b.txt", search.Results[0].DocumentID)

	res = call(t, router, http.MethodPost, "/api/v1/collections/docs/search", `{"query":"aa","filter":{"lang":"en"}}`, "")
	require.NoError(t, json.Unmarshal(res.Data, &search))
	require.Len(t, search.Results, 1)
	require.Equal(t, "a.txt", search.Results[0].DocumentID)

	res = call(t, router, http.MethodPost, "/api/v1/collections/docs/answer", `{"query":"cc"}`, "")
	var answer service.Answer
	require.NoError(t, json.Unmarshal(res.Data, &answer))
	require.Equal(t, "generated answer", answer.Text)
	require.Len(t, answer.SourceIDs, 2)
	require.Equal(t, "c.txt#00000000", answer.SourceIDs[0])

	call(t, router, http.MethodDelete, "/api/v1/collections/docs/documents?id=c.txt", "", "")
	res = call(t, router, http.MethodPost, "/api/v1/collections/docs/search", `{"query":"cc","top_k":5}`, "")
	require.NoError(t, json.Unmarshal(res.Data, &search))
	require.Len(t, search.Results, 2)
	for _, item := range search.Results {
		require.NotEqual(t, "c.txt", item.DocumentID)
	}
}

func TestCollectionErrors(t *testing.T) {
	router := setupRouter(t, nil)

	res := call(t, router, http.MethodPost, "/api/v1/collections/missing/search", `{"query":"aa"}`, "")
	require.Equal(t, errcode.ErrCollectionNotFound, res.Code)

	call(t, router, http.MethodPost, "/api/v1/collections/docs/ingest", ingestBody, "")
	res = call(t, router, http.MethodPost, "/api/v1/collections/docs/search", `{"query":"aa","top_k":-1}`, "")
	require.Equal(t, errcode.ErrInvalidTopK, res.Code)

	res = call(t, router, http.MethodPost, "/api/v1/collections/bad-name/search", `{"query":"aa"}`, "")
	require.Equal(t, errcode.ErrConfiguration, res.Code)

	res = call(t, router, http.MethodPost, "/api/v1/collections/docs/answer", `{"query":"aa","filter":{"lang":"fr"},"require_results":true}`, "")
	require.Equal(t, errcode.ErrNoResults, res.Code)

	res = call(t, router, http.MethodDelete, "/api/v1/collections/docs/documents", "", "")
	require.Equal(t, errcode.ErrInvalid, res.Code)

	res = call(t, router, http.MethodPost, "/api/v1/collections/docs/ingest", "", "")
	require.Equal(t, errcode.ErrInvalid, res.Code)

	res = call(t, router, http.MethodPost, "/api/v1/collections/docs/ingest", `{"documents":[{"id":"x.pdf","text":"t","format":"pdf"}]}`, "")
	require.Equal(t, errcode.ErrInvalid, res.Code)

	res = call(t, router, http.MethodPost, "/api/v1/collections/docs/search", `{"query":`, "")
	require.Equal(t, errcode.ErrInvalid, res.Code)
}

func TestCollectionAuth(t *testing.T) {
	secret := []byte("test-secret")
	router := setupRouter(t, secret)

	res := call(t, router, http.MethodPost, "/api/v1/collections/docs/ingest", ingestBody, "")
	require.Equal(t, errcode.ErrUnauthorized, res.Code)

	res = call(t, router, http.MethodPost, "/api/v1/collections/docs/ingest", ingestBody, "garbage")
	require.Equal(t, errcode.ErrUnauthorized, res.Code)

	token, err := jwt.GenerateToken("tester", secret, time.Hour)
	require.NoError(t, err)
	res = call(t, router, http.MethodPost, "/api/v1/collections/docs/ingest", ingestBody, token)
	var report service.IngestReport
	require.NoError(t, json.Unmarshal(res.Data, &report))
	require.Equal(t, 3, report.Succeeded)
}

func TestAnswerHidesProviderError(t *testing.T) {
	router := setupRouterWithGenerator(t, nil, echoGenerator{err: errors.New("upstream said: key sk-live-123 rejected")})
	call(t, router, http.MethodPost, "/api/v1/collections/docs/ingest", ingestBody, "")

	res := call(t, router, http.MethodPost, "/api/v1/collections/docs/answer", `{"query":"aa"}`, "")
	require.Equal(t, errcode.ErrSynthesisService, res.Code)
	require.NotContains(t, res.Msg, "sk-live-123")
	require.Equal(t, "answer synthesis unavailable", res.Msg)
}
