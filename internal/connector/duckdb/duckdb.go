package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector"
)

const defaultSchema = "main"

var systemDatabases = []string{"system", "temp"}

// Connector reads a DuckDB database file named by Connection.Host. Attached
// catalogs are reported as databases.
type Connector struct {
	conn    connector.Connection
	session connector.Session
}

func New(conn connector.Connection, opts connector.Options) *Connector {
	return &Connector{conn: conn, session: connector.NewSession(connector.EngineDuckDB, "duckdb", opts)}
}

func (c *Connector) TestConnection(ctx context.Context) error {
	dsn, err := c.dsn()
	if err != nil {
		return connector.Wrap(connector.KindConnection, connector.EngineDuckDB, "test", err)
	}
	return c.session.Do(ctx, "test", dsn, func(context.Context, *sql.DB) error { return nil })
}

func (c *Connector) GetDatabases(ctx context.Context) ([]string, error) {
	dsn, err := c.dsn()
	if err != nil {
		return nil, connector.Wrap(connector.KindConnection, connector.EngineDuckDB, "databases", err)
	}
	var databases []string
	err = c.session.Do(ctx, "databases", dsn, func(ctx context.Context, db *sql.DB) error {
		query := fmt.Sprintf(`SELECT database_name FROM duckdb_databases() WHERE database_name NOT IN (%s) ORDER BY database_name`, connector.Placeholders(len(systemDatabases), false))
		var err error
		databases, err = connector.QueryStrings(ctx, db, query, connector.StringArgs(systemDatabases)...)
		return err
	})
	return databases, err
}

func (c *Connector) GetTables(ctx context.Context, databaseName string) ([]string, error) {
	dsn, err := c.dsn()
	if err != nil {
		return nil, connector.Wrap(connector.KindConnection, connector.EngineDuckDB, "tables", err)
	}
	var tables []string
	err = c.session.Do(ctx, "tables", dsn, func(ctx context.Context, db *sql.DB) error {
		var err error
		tables, err = connector.QueryStrings(ctx, db,
			`SELECT table_name FROM duckdb_tables() WHERE database_name = ? AND schema_name = ? AND NOT internal ORDER BY table_name`,
			databaseName, defaultSchema,
		)
		return err
	})
	return tables, err
}

func (c *Connector) GetTableStructure(ctx context.Context, databaseName, tableName string) (string, error) {
	dsn, err := c.dsn()
	if err != nil {
		return "", connector.Wrap(connector.KindConnection, connector.EngineDuckDB, "structure", err)
	}
	var structure string
	err = c.session.Do(ctx, "structure", dsn, func(ctx context.Context, db *sql.DB) error {
		rows, err := connector.QueryStrings(ctx, db,
			`SELECT sql FROM duckdb_tables() WHERE database_name = ? AND schema_name = ? AND table_name = ?`,
			databaseName, defaultSchema, tableName,
		)
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

// Execute runs statement with databaseName as the default catalog.
func (c *Connector) Execute(ctx context.Context, databaseName, statement string) (connector.Result, error) {
	if err := connector.ValidateStatement(statement); err != nil {
		return connector.Result{}, connector.Wrap(connector.KindQuery, connector.EngineDuckDB, "execute", err)
	}
	dsn, err := c.dsn()
	if err != nil {
		return connector.Result{}, connector.Wrap(connector.KindConnection, connector.EngineDuckDB, "execute", err)
	}
	var result connector.Result
	err = c.session.Do(ctx, "execute", dsn, func(ctx context.Context, db *sql.DB) error {
		conn, err := db.Conn(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = conn.Close() }()

		if strings.TrimSpace(databaseName) != "" {
			if _, err := conn.ExecContext(ctx, "USE "+connector.QuoteIdent(databaseName)); err != nil {
				return err
			}
		}
		result, err = connector.QueryResult(ctx, conn, statement)
		return err
	})
	return result, err
}

func (c *Connector) dsn() (string, error) {
	path := strings.TrimSpace(c.conn.Host)
	if path == "" {
		return "", fmt.Errorf("database file path is required")
	}
	return path, nil
}
