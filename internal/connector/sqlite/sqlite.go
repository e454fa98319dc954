package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector"
)

const defaultSchema = "main"

// Connector reads a SQLite database file. Connection.Host carries the file
// path; attached schemas play the role of databases.
type Connector struct {
	conn    connector.Connection
	session connector.Session
}

func New(conn connector.Connection, opts connector.Options) *Connector {
	return &Connector{conn: conn, session: connector.NewSession(connector.EngineSQLite, "sqlite3", opts)}
}

func (c *Connector) TestConnection(ctx context.Context) error {
	dsn, err := c.dsn()
	if err != nil {
		return connector.Wrap(connector.KindConnection, connector.EngineSQLite, "test", err)
	}
	return c.session.Do(ctx, "test", dsn, func(context.Context, *sql.DB) error { return nil })
}

func (c *Connector) GetDatabases(ctx context.Context) ([]string, error) {
	dsn, err := c.dsn()
	if err != nil {
		return nil, connector.Wrap(connector.KindConnection, connector.EngineSQLite, "databases", err)
	}
	var databases []string
	err = c.session.Do(ctx, "databases", dsn, func(ctx context.Context, db *sql.DB) error {
		result, err := connector.QueryResult(ctx, db, `PRAGMA database_list`)
		if err != nil {
			return err
		}
		databases = make([]string, 0, len(result.Rows))
		for _, row := range result.Rows {
			name, ok := connector.StringValue(row["name"])
			if !ok || name == "temp" {
				continue
			}
			databases = append(databases, name)
		}
		return nil
	})
	return databases, err
}

func (c *Connector) GetTables(ctx context.Context, databaseName string) ([]string, error) {
	dsn, err := c.dsn()
	if err != nil {
		return nil, connector.Wrap(connector.KindConnection, connector.EngineSQLite, "tables", err)
	}
	var tables []string
	err = c.session.Do(ctx, "tables", dsn, func(ctx context.Context, db *sql.DB) error {
		query := fmt.Sprintf(`SELECT name FROM %s.sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%%' ORDER BY name`, connector.QuoteIdent(schemaName(databaseName)))
		var err error
		tables, err = connector.QueryStrings(ctx, db, query)
		return err
	})
	return tables, err
}

func (c *Connector) GetTableStructure(ctx context.Context, databaseName, tableName string) (string, error) {
	dsn, err := c.dsn()
	if err != nil {
		return "", connector.Wrap(connector.KindConnection, connector.EngineSQLite, "structure", err)
	}
	var structure string
	err = c.session.Do(ctx, "structure", dsn, func(ctx context.Context, db *sql.DB) error {
		query := fmt.Sprintf(`SELECT sql FROM %s.sqlite_master WHERE type = 'table' AND name = ?`, connector.QuoteIdent(schemaName(databaseName)))
		rows, err := connector.QueryStrings(ctx, db, query, tableName)
		if err != nil {
			return err
		}
		if len(rows) != 1 {
			return c.session.Consistency("structure", "expected one structure row for table %q, got %d", tableName, len(rows))
		}
		structure = rows[0]
		return nil
	})
	return structure, err
}

func (c *Connector) Execute(ctx context.Context, databaseName, statement string) (connector.Result, error) {
	if err := connector.ValidateStatement(statement); err != nil {
		return connector.Result{}, connector.Wrap(connector.KindQuery, connector.EngineSQLite, "execute", err)
	}
	dsn, err := c.dsn()
	if err != nil {
		return connector.Result{}, connector.Wrap(connector.KindConnection, connector.EngineSQLite, "execute", err)
	}
	var result connector.Result
	err = c.session.Do(ctx, "execute", dsn, func(ctx context.Context, db *sql.DB) error {
		var err error
		result, err = connector.QueryResult(ctx, db, statement)
		return err
	})
	return result, err
}

func (c *Connector) dsn() (string, error) {
	path := strings.TrimSpace(c.conn.Host)
	if path == "" {
		return "", fmt.Errorf("database file path is required")
	}
	return "file:" + path + "?mode=rw", nil
}

func schemaName(databaseName string) string {
	if strings.TrimSpace(databaseName) == "" {
		return defaultSchema
	}
	return databaseName
}
