package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector"
)

func TestConnectorReadsCatalogFromFile(t *testing.T) {
	path := seedDatabase(t)
	c := New(connector.Connection{EngineType: connector.EngineDuckDB, Host: path}, connector.Options{})
	ctx := context.Background()

	databases, err := c.GetDatabases(ctx)
	if err != nil {
		t.Fatalf("GetDatabases() error = %v", err)
	}
	if strings.Join(databases, ",") != "shop" {
		t.Fatalf("databases = %#v", databases)
	}

	tables, err := c.GetTables(ctx, "shop")
	if err != nil {
		t.Fatalf("GetTables() error = %v", err)
	}
	if strings.Join(tables, ",") != "orders,users" {
		t.Fatalf("tables = %#v", tables)
	}

	structure, err := c.GetTableStructure(ctx, "shop", "users")
	if err != nil {
		t.Fatalf("GetTableStructure() error = %v", err)
	}
	if !strings.HasPrefix(structure, "CREATE TABLE") || !strings.Contains(structure, "email") {
		t.Fatalf("structure = %q", structure)
	}

	if _, err := c.GetTableStructure(ctx, "shop", "ghost"); !errors.Is(err, connector.ErrConsistency) {
		t.Fatalf("expected ErrConsistency, got %v", err)
	}
}

func TestExecuteUsesRequestedCatalog(t *testing.T) {
	path := seedDatabase(t)
	c := New(connector.Connection{Host: path}, connector.Options{})

	result, err := c.Execute(context.Background(), "shop", "SELECT COUNT(*) AS c FROM users;")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 1 || result.Rows[0]["c"] != int64(2) {
		t.Fatalf("rows = %#v", result.Rows)
	}
	if len(result.Columns) != 1 || result.Columns[0] != "c" {
		t.Fatalf("columns = %#v", result.Columns)
	}

	if _, err := c.Execute(context.Background(), "shop", "SELECT * FROM nope"); !errors.Is(err, connector.ErrQuery) {
		t.Fatalf("expected ErrQuery, got %v", err)
	}
}

func TestEmptyHostIsConnectionError(t *testing.T) {
	c := New(connector.Connection{EngineType: connector.EngineDuckDB}, connector.Options{})
	ctx := context.Background()

	if err := c.TestConnection(ctx); !errors.Is(err, connector.ErrConnection) {
		t.Fatalf("TestConnection() error = %v, want ErrConnection", err)
	}
	if _, err := c.GetDatabases(ctx); !errors.Is(err, connector.ErrConnection) {
		t.Fatalf("GetDatabases() error = %v, want ErrConnection", err)
	}
	if _, err := c.Execute(ctx, "", "SELECT 1"); !errors.Is(err, connector.ErrConnection) {
		t.Fatalf("Execute() error = %v, want ErrConnection", err)
	}
}

func seedDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop.duckdb")
	db, err := sql.Open("duckdb", path)
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	defer func() { _ = db.Close() }()

	statements := []string{
		`CREATE TABLE users (id INTEGER, email VARCHAR NOT NULL)`,
		`CREATE TABLE orders (id INTEGER, user_id INTEGER, total DOUBLE)`,
		`INSERT INTO users VALUES (1, 'ada@example.com'), (2, 'grace@example.com')`,
	}
	for _, statement := range statements {
		if _, err := db.Exec(statement); err != nil {
			t.Fatalf("seed %q: %v", statement, err)
		}
	}
	return path
}
