package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sqlscout/sqlscout/internal/ask"
	"github.com/sqlscout/sqlscout/internal/auth"
	"github.com/sqlscout/sqlscout/internal/config"
	"github.com/sqlscout/sqlscout/internal/nouns"
	"github.com/sqlscout/sqlscout/internal/query"
	"github.com/sqlscout/sqlscout/internal/schema"
	"github.com/sqlscout/sqlscout/internal/selector"
)

type fakeSchema struct {
	tables []schema.Table
	err    error
}

func (f *fakeSchema) ListTables(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	names := make([]string, 0, len(f.tables))
	for _, table := range f.tables {
		names = append(names, table.Name)
	}
	return names, nil
}

func (f *fakeSchema) Tables(context.Context) ([]schema.Table, error) {
	return f.tables, f.err
}

type fakeSelector struct {
	selection selector.Selection
	err       error
}

func (f *fakeSelector) Select(context.Context, string, []string) (selector.Selection, error) {
	return f.selection, f.err
}

type fakeNouns struct {
	matches []nouns.Match
	indexed int
	topK    int
	err     error
}

func (f *fakeNouns) Search(_ context.Context, _ string, topK int) ([]nouns.Match, error) {
	f.topK = topK
	return f.matches, f.err
}

func (f *fakeNouns) Reindex(context.Context) (int, error) {
	return f.indexed, f.err
}

type fakeAsk struct {
	response ask.Response
	err      error
}

func (f *fakeAsk) Ask(context.Context, ask.Request) (ask.Response, error) {
	return f.response, f.err
}

type fakeEngine struct {
	requests []query.Request
	result   query.Result
	err      error
}

func (f *fakeEngine) Execute(_ context.Context, request query.Request) (query.Result, error) {
	f.requests = append(f.requests, request)
	return f.result, f.err
}

func testConfig() config.Config {
	return config.Config{
		Service: config.ServiceConfig{Name: "sqlscout-test"},
	}
}

func testDependencies() Dependencies {
	return Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Schema: &fakeSchema{tables: []schema.Table{
			{Name: "customers", Columns: []schema.Column{{Name: "id", DataType: "integer"}}},
		}},
		Selector: &fakeSelector{selection: selector.Selection{Tables: []string{"customers"}, UsedModel: true}},
		Nouns:    &fakeNouns{matches: []nouns.Match{{Value: "Brazil", Table: "customers", Column: "country", Score: 0.9}}, indexed: 42},
		Ask:      &fakeAsk{response: ask.Response{SQL: "SELECT 1", RowCount: 1}},
		QueryEngine: &fakeEngine{result: query.Result{
			Columns: []string{"one"},
			Rows:    [][]any{{int64(1)}},
		}},
		RowLimit: 100,
	}
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(), testDependencies())
	recorder := doRequest(t, handler, http.MethodGet, "/v1/health", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	if payload["service"] != "sqlscout-test" {
		t.Fatalf("service = %v", payload["service"])
	}
}

func TestReadyEndpointReportsFailure(t *testing.T) {
	deps := testDependencies()
	deps.Readiness = func(context.Context) error { return errors.New("warehouse unreachable") }
	handler := NewHandler(testConfig(), deps)

	recorder := doRequest(t, handler, http.MethodGet, "/v1/ready", "")
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	if payload["error_code"] != "NOT_READY" {
		t.Fatalf("error_code = %v", payload["error_code"])
	}
}

func TestSchemaEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(), testDependencies())
	recorder := doRequest(t, handler, http.MethodGet, "/v1/schema", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	if payload["count"] != float64(1) {
		t.Fatalf("count = %v", payload["count"])
	}
}

func TestAskEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(), testDependencies())
	recorder := doRequest(t, handler, http.MethodPost, "/v1/ask", `{"question":"how many customers?"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["sql"] != "SELECT 1" {
		t.Fatalf("sql = %v", payload["sql"])
	}
}

func TestAskEndpointRejectsEmptyQuestion(t *testing.T) {
	handler := NewHandler(testConfig(), testDependencies())
	recorder := doRequest(t, handler, http.MethodPost, "/v1/ask", `{"question":"  "}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestAskEndpointMapsRejectedSQL(t *testing.T) {
	deps := testDependencies()
	deps.Ask = &fakeAsk{err: fmt.Errorf("%w: keyword \"drop\" is not allowed", ask.ErrSQLRejected)}
	handler := NewHandler(testConfig(), deps)

	recorder := doRequest(t, handler, http.MethodPost, "/v1/ask", `{"question":"q"}`)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	if payload["error_code"] != "SQL_REJECTED" {
		t.Fatalf("error_code = %v", payload["error_code"])
	}
}

func TestSelectTablesEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(), testDependencies())
	recorder := doRequest(t, handler, http.MethodPost, "/v1/tables/select", `{"question":"top customers?"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	tables, ok := payload["tables"].([]any)
	if !ok || len(tables) != 1 || tables[0] != "customers" {
		t.Fatalf("tables = %v", payload["tables"])
	}
}

func TestNounSearchEndpoint(t *testing.T) {
	deps := testDependencies()
	fake := deps.Nouns.(*fakeNouns)
	handler := NewHandler(testConfig(), deps)

	recorder := doRequest(t, handler, http.MethodPost, "/v1/nouns/search", `{"term":"brasil","top_k":3}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	if payload["count"] != float64(1) {
		t.Fatalf("count = %v", payload["count"])
	}
	if fake.topK != 3 {
		t.Fatalf("topK = %d", fake.topK)
	}
}

func TestNounEndpointsUnavailableWithoutIndex(t *testing.T) {
	deps := testDependencies()
	deps.Nouns = nil
	handler := NewHandler(testConfig(), deps)

	for _, tc := range []struct{ path, body string }{
		{path: "/v1/nouns/search", body: `{"term":"x"}`},
		{path: "/v1/nouns/reindex", body: ""},
	} {
		recorder := doRequest(t, handler, http.MethodPost, tc.path, tc.body)
		if recorder.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s status = %d", tc.path, recorder.Code)
		}
	}
}

func TestNounReindexEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(), testDependencies())
	recorder := doRequest(t, handler, http.MethodPost, "/v1/nouns/reindex", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	if payload["indexed"] != float64(42) {
		t.Fatalf("indexed = %v", payload["indexed"])
	}
}

func TestNounReindexRequiresAdminRole(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Required = true

	validator, err := auth.NewStaticAPIKeyValidator("reader-key:analyst:reader,admin-key:operator:admin")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	deps := testDependencies()
	deps.AuthMiddleware = auth.Middleware(deps.Logger, validator)
	handler := NewHandler(cfg, deps)

	request := httptest.NewRequest(http.MethodPost, "/v1/nouns/reindex", nil)
	request.Header.Set("X-API-Key", "reader-key")
	denied := httptest.NewRecorder()
	handler.ServeHTTP(denied, request)
	if denied.Code != http.StatusForbidden {
		t.Fatalf("reader status = %d", denied.Code)
	}

	request = httptest.NewRequest(http.MethodPost, "/v1/nouns/reindex", nil)
	request.Header.Set("X-API-Key", "admin-key")
	allowed := httptest.NewRecorder()
	handler.ServeHTTP(allowed, request)
	if allowed.Code != http.StatusOK {
		t.Fatalf("admin status = %d, body = %s", allowed.Code, allowed.Body.String())
	}
}

func TestQueryEndpointEnforcesReadOnly(t *testing.T) {
	handler := NewHandler(testConfig(), testDependencies())
	recorder := doRequest(t, handler, http.MethodPost, "/v1/query", `{"sql":"DROP TABLE customers"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	if payload["error_code"] != "SQL_NOT_ALLOWED" {
		t.Fatalf("error_code = %v", payload["error_code"])
	}
}

func TestQueryEndpointClampsRowLimit(t *testing.T) {
	deps := testDependencies()
	engine := &fakeEngine{result: query.Result{Columns: []string{"one"}, Rows: [][]any{{int64(1)}}}}
	deps.QueryEngine = engine
	handler := NewHandler(testConfig(), deps)

	recorder := doRequest(t, handler, http.MethodPost, "/v1/query", `{"sql":"SELECT 1","row_limit":100000}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if len(engine.requests) != 1 || engine.requests[0].RowLimit != 100 {
		t.Fatalf("requests = %+v", engine.requests)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Required = true

	validator, err := auth.NewStaticAPIKeyValidator("secret-key:analyst:reader")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	deps := testDependencies()
	deps.AuthMiddleware = auth.Middleware(deps.Logger, validator)
	handler := NewHandler(cfg, deps)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/schema"},
		{http.MethodPost, "/v1/ask"},
		{http.MethodPost, "/v1/tables/select"},
		{http.MethodPost, "/v1/nouns/search"},
		{http.MethodPost, "/v1/nouns/reindex"},
		{http.MethodPost, "/v1/query"},
	} {
		recorder := doRequest(t, handler, tc.method, tc.path, "")
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s status = %d", tc.method, tc.path, recorder.Code)
		}
	}

	request := httptest.NewRequest(http.MethodGet, "/v1/schema", nil)
	request.Header.Set("X-API-Key", "secret-key")
	authed := httptest.NewRecorder()
	handler.ServeHTTP(authed, request)
	if authed.Code != http.StatusOK {
		t.Fatalf("authed status = %d", authed.Code)
	}

	open := doRequest(t, handler, http.MethodGet, "/v1/health", "")
	if open.Code != http.StatusOK {
		t.Fatalf("health status = %d", open.Code)
	}
}
