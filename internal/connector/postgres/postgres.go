package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector"
)

const (
	defaultPort     = 5432
	defaultDatabase = "postgres"
)

var systemDatabases = []string{"postgres", "template0", "template1"}

const tableStructureQuery = `SELECT format('CREATE TABLE %I (%s);', c.table_name, string_agg(format('%I %s%s%s', c.column_name, c.data_type, CASE WHEN c.is_nullable = 'NO' THEN ' NOT NULL' ELSE '' END, CASE WHEN c.column_default IS NOT NULL THEN ' DEFAULT ' || c.column_default ELSE '' END), ', ' ORDER BY c.ordinal_position)) AS structure
FROM information_schema.columns c
WHERE c.table_schema = 'public' AND c.table_name = $1
GROUP BY c.table_name`

type Connector struct {
	conn    connector.Connection
	session connector.Session
}

func New(conn connector.Connection, opts connector.Options) *Connector {
	return &Connector{conn: conn, session: connector.NewSession(connector.EnginePostgres, "pgx", opts)}
}

func (c *Connector) TestConnection(ctx context.Context) error {
	dsn, err := c.dsn(c.conn.Database)
	if err != nil {
		return connector.Wrap(connector.KindConnection, connector.EnginePostgres, "test", err)
	}
	return c.session.Do(ctx, "test", dsn, func(context.Context, *sql.DB) error { return nil })
}

func (c *Connector) GetDatabases(ctx context.Context) ([]string, error) {
	dsn, err := c.dsn(c.conn.Database)
	if err != nil {
		return nil, connector.Wrap(connector.KindConnection, connector.EnginePostgres, "databases", err)
	}
	var databases []string
	err = c.session.Do(ctx, "databases", dsn, func(ctx context.Context, db *sql.DB) error {
		query := fmt.Sprintf(`SELECT datname FROM pg_database WHERE datistemplate = false AND datname NOT IN (%s) ORDER BY datname`, connector.Placeholders(len(systemDatabases), true))
		var err error
		databases, err = connector.QueryStrings(ctx, db, query, connector.StringArgs(systemDatabases)...)
		return err
	})
	return databases, err
}

// GetTables lists base tables in the public schema of databaseName.
// PostgreSQL scopes catalogs per database, so the session connects to it directly.
func (c *Connector) GetTables(ctx context.Context, databaseName string) ([]string, error) {
	dsn, err := c.dsn(databaseName)
	if err != nil {
		return nil, connector.Wrap(connector.KindConnection, connector.EnginePostgres, "tables", err)
	}
	var tables []string
	err = c.session.Do(ctx, "tables", dsn, func(ctx context.Context, db *sql.DB) error {
		var err error
		tables, err = connector.QueryStrings(ctx, db,
			`SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name`,
		)
		return err
	})
	return tables, err
}

func (c *Connector) GetTableStructure(ctx context.Context, databaseName, tableName string) (string, error) {
	dsn, err := c.dsn(databaseName)
	if err != nil {
		return "", connector.Wrap(connector.KindConnection, connector.EnginePostgres, "structure", err)
	}
	var structure string
	err = c.session.Do(ctx, "structure", dsn, func(ctx context.Context, db *sql.DB) error {
		rows, err := connector.QueryStrings(ctx, db, tableStructureQuery, tableName)
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
		return connector.Result{}, connector.Wrap(connector.KindQuery, connector.EnginePostgres, "execute", err)
	}
	dsn, err := c.dsn(databaseName)
	if err != nil {
		return connector.Result{}, connector.Wrap(connector.KindConnection, connector.EnginePostgres, "execute", err)
	}
	var result connector.Result
	err = c.session.Do(ctx, "execute", dsn, func(ctx context.Context, db *sql.DB) error {
		var err error
		result, err = connector.QueryResult(ctx, db, statement)
		return err
	})
	return result, err
}

func (c *Connector) dsn(database string) (string, error) {
	addr, err := c.conn.Address(defaultPort)
	if err != nil {
		return "", err
	}
	if database == "" {
		database = c.conn.Database
	}
	if database == "" {
		database = defaultDatabase
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   addr,
		Path:   "/" + database,
	}
	if c.conn.Username != "" {
		u.User = url.UserPassword(c.conn.Username, c.conn.Password)
	}
	q := u.Query()
	q.Set("connect_timeout", "10")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
