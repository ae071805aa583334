package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/refine-cli/internal/model"
	"github.com/sells-group/refine-cli/internal/store"
)

func newTestServeEnv(t *testing.T) *refineEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return &refineEnv{Store: st}
}

func TestServeMux_Health(t *testing.T) {
	env := newTestServeEnv(t)
	mux := buildServeMux(context.Background(), env)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestServeMux_RefineBadBody(t *testing.T) {
	env := newTestServeEnv(t)
	mux := buildServeMux(context.Background(), env)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refine", strings.NewReader("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeMux_RefineMissingTicker(t *testing.T) {
	env := newTestServeEnv(t)
	mux := buildServeMux(context.Background(), env)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refine", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ticker or artifact is required")
}

func TestServeMux_RefineNoDraft(t *testing.T) {
	env := newTestServeEnv(t)
	mux := buildServeMux(context.Background(), env)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refine", strings.NewReader(`{"ticker":"AAPL"}`)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeMux_ArtifactNotFound(t *testing.T) {
	env := newTestServeEnv(t)
	mux := buildServeMux(context.Background(), env)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/artifacts/AAPL", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeMux_ArtifactFound(t *testing.T) {
	env := newTestServeEnv(t)
	ctx := context.Background()

	run, err := env.Store.CreateRun(ctx, "AAPL")
	require.NoError(t, err)
	_, err = env.Store.SaveArtifact(ctx, run.ID, &model.FinalArtifact{
		Artifact: &model.Artifact{
			Ticker:    "AAPL",
			Narrative: []model.Section{{Name: "Valuation", Body: "v"}},
		},
		Approved:    true,
		FinalScore:  88,
		Terminal:    "approved",
		CompletedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	mux := buildServeMux(ctx, env)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/artifacts/AAPL", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"final_score":88`)
	assert.Contains(t, rec.Body.String(), "Valuation")
}

func TestServeMux_ListRuns(t *testing.T) {
	env := newTestServeEnv(t)
	ctx := context.Background()

	_, err := env.Store.CreateRun(ctx, "AAPL")
	require.NoError(t, err)
	_, err = env.Store.CreateRun(ctx, "MSFT")
	require.NoError(t, err)

	mux := buildServeMux(ctx, env)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?ticker=AAPL", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AAPL")
	assert.NotContains(t, rec.Body.String(), "MSFT")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?limit=nope", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeMux_MethodRouting(t *testing.T) {
	env := newTestServeEnv(t)
	mux := buildServeMux(context.Background(), env)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/refine", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
