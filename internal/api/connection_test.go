package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/export"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/schema"
)

func TestExecuteReturnsRows(t *testing.T) {
	conn := &fakeConnector{result: connector.Result{
		Columns: []string{"id", "name"},
		Rows:    []map[string]any{{"id": int64(1), "name": "ada"}},
	}}
	resolver := &fakeResolver{conn: conn}
	h := NewHandler(loadConfig(t, nil), Dependencies{Connectors: resolver})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/connection/execute", strings.NewReader(mysqlBody(`,"db":"shop","statement":"SELECT id, name FROM users"`))))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	rows, ok := body["data"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("data = %v", body["data"])
	}
	if row := rows[0].(map[string]any); row["name"] != "ada" || row["id"] != float64(1) {
		t.Fatalf("row = %v", row)
	}
	if _, ok := body["message"]; ok {
		t.Fatalf("unexpected message in success body: %v", body)
	}
	if conn.statements[0] != "SELECT id, name FROM users" || conn.databaseOf[0] != "shop" {
		t.Fatalf("executed %q on %q", conn.statements[0], conn.databaseOf[0])
	}
	if resolver.got[0].EngineType != connector.EngineMySQL || resolver.got[0].Host != "db.internal" {
		t.Fatalf("connection = %#v", resolver.got[0])
	}
}

func TestExecuteNullDatabase(t *testing.T) {
	conn := &fakeConnector{}
	h := NewHandler(loadConfig(t, nil), Dependencies{Connectors: &fakeResolver{conn: conn}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/connection/execute", strings.NewReader(mysqlBody(`,"db":null,"statement":"SHOW DATABASES"`))))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if conn.databaseOf[0] != "" {
		t.Fatalf("database = %q, want empty", conn.databaseOf[0])
	}
	if body := decodeBody(t, rr); body["data"] == nil {
		t.Fatalf("data should be an empty list, body = %v", body)
	}
}

func TestExecuteQueryErrorPassesMessageThrough(t *testing.T) {
	engineMessage := "You have an error in your SQL syntax; check the manual near 'SELEC' at line 1"
	conn := &fakeConnector{err: connector.Wrap(connector.KindQuery, connector.EngineMySQL, "execute", errors.New(engineMessage))}
	h := NewHandler(loadConfig(t, nil), Dependencies{Connectors: &fakeResolver{conn: conn}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/connection/execute", strings.NewReader(mysqlBody(`,"db":"shop","statement":"SELEC 1"`))))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["message"] != engineMessage {
		t.Fatalf("message = %v", body["message"])
	}
	if _, ok := body["data"]; ok {
		t.Fatalf("unexpected data in failure body: %v", body)
	}
}

func TestConnectionErrorMapsToBadGateway(t *testing.T) {
	conn := &fakeConnector{testErr: connector.Wrap(connector.KindConnection, connector.EngineMySQL, "test_connection", errors.New("dial tcp: connection refused"))}
	h := NewHandler(loadConfig(t, nil), Dependencies{Connectors: &fakeResolver{conn: conn}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/connection/test", strings.NewReader(mysqlBody(""))))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["message"] != "dial tcp: connection refused" {
		t.Fatalf("body = %v", body)
	}
}

func TestUnsupportedEngine(t *testing.T) {
	resolver := &fakeResolver{err: connector.ErrUnsupportedEngine}
	h := NewHandler(loadConfig(t, nil), Dependencies{Connectors: resolver})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/connection/test", strings.NewReader(`{"connection":{"engineType":"ORACLE","host":"x"}}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestTestConnectionSuccess(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Connectors: &fakeResolver{conn: &fakeConnector{}}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/connection/test", strings.NewReader(mysqlBody(""))))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["data"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestListTablesRequiresDatabase(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Connectors: &fakeResolver{conn: &fakeConnector{}}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/connection/tables", strings.NewReader(mysqlBody(""))))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["message"] != "db is required" {
		t.Fatalf("body = %v", body)
	}
}

func TestListTables(t *testing.T) {
	conn := &fakeConnector{tables: []string{"orders", "users"}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Connectors: &fakeResolver{conn: conn}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/connection/tables", strings.NewReader(mysqlBody(`,"db":"shop"`))))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	data := decodeBody(t, rr)["data"].([]any)
	if len(data) != 2 || data[0] != "orders" {
		t.Fatalf("data = %v", data)
	}
}

func TestRejectsMissingConnectionAndUnknownFields(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Connectors: &fakeResolver{conn: &fakeConnector{}}})
	for _, payload := range []string{`{}`, `{"connection":{"engineType":"MYSQL"},"extra":1}`, `not json`} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/connection/databases", strings.NewReader(payload)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("payload %s: status = %d", payload, rr.Code)
		}
	}
}

func TestSchemaRefreshInvalidatesFirst(t *testing.T) {
	cache := &fakeSchemaCache{tables: []schema.TableStructure{{Name: "users", Structure: "CREATE TABLE users (id int)"}}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Schemas: cache})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/connection/schema", strings.NewReader(mysqlBody(`,"db":"shop","refresh":true`))))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "mysql://app@db.internal:3306/shop" {
		t.Fatalf("invalidated = %v", cache.invalidated)
	}
	data := decodeBody(t, rr)["data"].([]any)
	if table := data[0].(map[string]any); table["name"] != "users" {
		t.Fatalf("table = %v", table)
	}
}

func TestExportEndpoints(t *testing.T) {
	key := "exports/2026/03/08/export-1.parquet"
	exporter := &fakeExporter{
		exported: export.Export{Key: key, Size: 4, Rows: 1, Columns: []string{"n"}},
		objects:  map[string][]byte{key: []byte("PAR1")},
	}
	conn := &fakeConnector{}
	h := NewHandler(loadConfig(t, nil), Dependencies{Connectors: &fakeResolver{conn: conn}, Exports: exporter})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/connection/export", strings.NewReader(mysqlBody(`,"db":"shop","statement":"SELECT 1 AS n"`))))
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if data := decodeBody(t, rr)["data"].(map[string]any); data["key"] != key {
		t.Fatalf("data = %v", data)
	}
	if len(conn.statements) != 1 {
		t.Fatalf("statements = %v", conn.statements)
	}

	download := httptest.NewRecorder()
	h.ServeHTTP(download, httptest.NewRequest(http.MethodGet, "/api/exports/"+key, nil))
	if download.Code != http.StatusOK || download.Body.String() != "PAR1" {
		t.Fatalf("download = %d %q", download.Code, download.Body.String())
	}
	if got := download.Header().Get("Content-Type"); got != export.ContentType {
		t.Fatalf("Content-Type = %q", got)
	}

	missing := httptest.NewRecorder()
	h.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/api/exports/exports/2026/03/08/other.parquet", nil))
	if missing.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", missing.Code)
	}

	invalid := httptest.NewRecorder()
	h.ServeHTTP(invalid, httptest.NewRequest(http.MethodGet, "/api/exports/secrets.txt", nil))
	if invalid.Code != http.StatusBadRequest {
		t.Fatalf("invalid status = %d", invalid.Code)
	}

	removed := httptest.NewRecorder()
	h.ServeHTTP(removed, httptest.NewRequest(http.MethodDelete, "/api/exports/"+key, nil))
	if removed.Code != http.StatusNoContent || len(exporter.removed) != 1 {
		t.Fatalf("delete status = %d, removed = %v", removed.Code, exporter.removed)
	}
}

func TestExportDisabled(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Connectors: &fakeResolver{conn: &fakeConnector{}}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/connection/export", strings.NewReader(mysqlBody(`,"statement":"SELECT 1"`))))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}
