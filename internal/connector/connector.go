package connector

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

type EngineType string

const (
	EngineMySQL    EngineType = "MYSQL"
	EnginePostgres EngineType = "POSTGRESQL"
	EngineSQLite   EngineType = "SQLITE"
	EngineDuckDB   EngineType = "DUCKDB"
)

// ParseEngineType accepts engine names case-insensitively and a few common aliases.
func ParseEngineType(raw string) (EngineType, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "MYSQL", "MARIADB":
		return EngineMySQL, nil
	case "POSTGRESQL", "POSTGRES", "PG":
		return EnginePostgres, nil
	case "SQLITE", "SQLITE3":
		return EngineSQLite, nil
	case "DUCKDB":
		return EngineDuckDB, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedEngine, raw)
	}
}

// Connection describes how to reach one database server. It carries no live
// resources; every connector operation acquires and releases its own.
type Connection struct {
	ID         string     `json:"id,omitempty"`
	Title      string     `json:"title,omitempty"`
	EngineType EngineType `json:"engineType"`
	Host       string     `json:"host"`
	Port       string     `json:"port,omitempty"`
	Username   string     `json:"username,omitempty"`
	Password   string     `json:"password,omitempty"`
	Database   string     `json:"database,omitempty"`
}

// Identity is the stable key used to address cached metadata for the connection.
func (c Connection) Identity() string {
	if id := strings.TrimSpace(c.ID); id != "" {
		return id
	}
	return fmt.Sprintf("%s://%s@%s", strings.ToLower(string(c.EngineType)), c.Username, net.JoinHostPort(c.Host, c.Port))
}

// Address joins host and port, falling back to defaultPort when the
// connection does not name one.
func (c Connection) Address(defaultPort int) (string, error) {
	host := strings.TrimSpace(c.Host)
	if host == "" {
		return "", fmt.Errorf("host is required")
	}
	port := strings.TrimSpace(c.Port)
	if port == "" {
		return net.JoinHostPort(host, strconv.Itoa(defaultPort)), nil
	}
	value, err := strconv.Atoi(port)
	if err != nil || value <= 0 || value > 65535 {
		return "", fmt.Errorf("invalid port %q", c.Port)
	}
	return net.JoinHostPort(host, strconv.Itoa(value)), nil
}

// Result holds the rows of an executed statement. Rows are keyed by column name;
// Columns keeps the order the engine reported them in.
type Result struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

type Connector interface {
	TestConnection(ctx context.Context) error
	GetDatabases(ctx context.Context) ([]string, error)
	GetTables(ctx context.Context, databaseName string) ([]string, error)
	GetTableStructure(ctx context.Context, databaseName, tableName string) (string, error)
	Execute(ctx context.Context, databaseName, statement string) (Result, error)
}

type Options struct {
	OpTimeout time.Duration
	Open      Opener
}
