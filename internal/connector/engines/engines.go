// Package engines wires every supported database engine into a connector registry.
package engines

import (
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector/duckdb"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector/mysql"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector/postgres"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector/sqlite"
)

func NewRegistry(opts connector.Options) *connector.Registry {
	registry := connector.NewRegistry(opts)
	registry.Register(connector.EngineMySQL, func(conn connector.Connection, opts connector.Options) connector.Connector {
		return mysql.New(conn, opts)
	})
	registry.Register(connector.EnginePostgres, func(conn connector.Connection, opts connector.Options) connector.Connector {
		return postgres.New(conn, opts)
	})
	registry.Register(connector.EngineSQLite, func(conn connector.Connection, opts connector.Options) connector.Connector {
		return sqlite.New(conn, opts)
	})
	registry.Register(connector.EngineDuckDB, func(conn connector.Connection, opts connector.Options) connector.Connector {
		return duckdb.New(conn, opts)
	})
	return registry
}
