package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector"
)

const defaultPort = 3306

var systemDatabases = []string{"information_schema", "mysql", "performance_schema", "sys"}

type Connector struct {
	conn    connector.Connection
	session connector.Session
}

func New(conn connector.Connection, opts connector.Options) *Connector {
	return &Connector{conn: conn, session: connector.NewSession(connector.EngineMySQL, "mysql", opts)}
}

func (c *Connector) TestConnection(ctx context.Context) error {
	dsn, err := c.dsn(c.conn.Database)
	if err != nil {
		return connector.Wrap(connector.KindConnection, connector.EngineMySQL, "test", err)
	}
	return c.session.Do(ctx, "test", dsn, func(context.Context, *sql.DB) error { return nil })
}

func (c *Connector) GetDatabases(ctx context.Context) ([]string, error) {
	dsn, err := c.dsn(c.conn.Database)
	if err != nil {
		return nil, connector.Wrap(connector.KindConnection, connector.EngineMySQL, "databases", err)
	}
	var databases []string
	err = c.session.Do(ctx, "databases", dsn, func(ctx context.Context, db *sql.DB) error {
		query := fmt.Sprintf(`SELECT SCHEMA_NAME FROM information_schema.SCHEMATA WHERE SCHEMA_NAME NOT IN (%s) ORDER BY SCHEMA_NAME`, connector.Placeholders(len(systemDatabases), false))
		var err error
		databases, err = connector.QueryStrings(ctx, db, query, connector.StringArgs(systemDatabases)...)
		return err
	})
	return databases, err
}

func (c *Connector) GetTables(ctx context.Context, databaseName string) ([]string, error) {
	dsn, err := c.dsn(c.conn.Database)
	if err != nil {
		return nil, connector.Wrap(connector.KindConnection, connector.EngineMySQL, "tables", err)
	}
	var tables []string
	err = c.session.Do(ctx, "tables", dsn, func(ctx context.Context, db *sql.DB) error {
		var err error
		tables, err = connector.QueryStrings(ctx, db,
			`SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`,
			databaseName,
		)
		return err
	})
	return tables, err
}

func (c *Connector) GetTableStructure(ctx context.Context, databaseName, tableName string) (string, error) {
	dsn, err := c.dsn(c.conn.Database)
	if err != nil {
		return "", connector.Wrap(connector.KindConnection, connector.EngineMySQL, "structure", err)
	}
	var structure string
	err = c.session.Do(ctx, "structure", dsn, func(ctx context.Context, db *sql.DB) error {
		result, err := connector.QueryResult(ctx, db, fmt.Sprintf("SHOW CREATE TABLE %s.%s", connector.QuoteBacktick(databaseName), connector.QuoteBacktick(tableName)))
		if err != nil {
			return err
		}
		if len(result.Rows) != 1 {
			return c.session.Consistency("structure", "expected one structure row for table %q, got %d", tableName, len(result.Rows))
		}
		text, ok := connector.StringValue(result.Rows[0]["Create Table"])
		if !ok {
			return c.session.Consistency("structure", "structure row for table %q has no Create Table column", tableName)
		}
		structure = text
		return nil
	})
	return structure, err
}

func (c *Connector) Execute(ctx context.Context, databaseName, statement string) (connector.Result, error) {
	if err := connector.ValidateStatement(statement); err != nil {
		return connector.Result{}, connector.Wrap(connector.KindQuery, connector.EngineMySQL, "execute", err)
	}
	database := databaseName
	if database == "" {
		database = c.conn.Database
	}
	dsn, err := c.dsn(database)
	if err != nil {
		return connector.Result{}, connector.Wrap(connector.KindConnection, connector.EngineMySQL, "execute", err)
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
	cfg := gomysql.NewConfig()
	cfg.User = c.conn.Username
	cfg.Passwd = c.conn.Password
	cfg.Net = "tcp"
	cfg.Addr = addr
	cfg.DBName = database
	cfg.Timeout = 10 * time.Second
	return cfg.FormatDSN(), nil
}
