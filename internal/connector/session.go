package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/observability"
)

const defaultPingTimeout = 5 * time.Second

// Opener returns a ready *sql.DB. The caller owns it and must close it.
type Opener func(ctx context.Context, driverName, dsn string) (*sql.DB, error)

// OpenSQL opens a single-connection handle and verifies it with a ping.
func OpenSQL(ctx context.Context, driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Session scopes one connector operation: open, run, close. The handle is
// released on every exit path, including panics in fn.
type Session struct {
	Engine  EngineType
	Driver  string
	Timeout time.Duration
	Open    Opener
}

func NewSession(engine EngineType, driverName string, opts Options) Session {
	return Session{Engine: engine, Driver: driverName, Timeout: opts.OpTimeout, Open: opts.Open}
}

func (s Session) Do(ctx context.Context, op, dsn string, fn func(ctx context.Context, db *sql.DB) error) (err error) {
	start := time.Now()
	defer func() {
		observability.ObserveConnectorOp(string(s.Engine), op, outcome(err), time.Since(start))
	}()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Wrap(KindConnection, s.Engine, op, ctxErr)
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	open := s.Open
	if open == nil {
		open = OpenSQL
	}
	db, err := open(ctx, s.Driver, dsn)
	if err != nil {
		return Wrap(KindConnection, s.Engine, op, err)
	}
	defer func() { _ = db.Close() }()

	return Wrap(KindQuery, s.Engine, op, fn(ctx, db))
}

// Consistency builds the error for metadata that came back in an unexpected shape.
func (s Session) Consistency(op string, format string, args ...any) error {
	return &Error{Kind: KindConsistency, Engine: s.Engine, Op: op, Err: fmt.Errorf(format, args...)}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

// Queryer is satisfied by *sql.DB and *sql.Conn.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// QueryStrings runs a query whose first column is text and collects it in order.
func QueryStrings(ctx context.Context, db Queryer, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	values := make([]string, 0)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// QueryResult runs statement and materializes every row keyed by column name.
func QueryResult(ctx context.Context, db Queryer, statement string, args ...any) (Result, error) {
	rows, err := db.QueryContext(ctx, statement, args...)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}

	result := Result{Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, err
		}
		row := make(map[string]any, len(columns))
		for i, value := range normalizeValues(values) {
			row[columns[i]] = value
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	return result, nil
}

// StringValue renders a scanned column value as text.
func StringValue(value any) (string, bool) {
	switch typed := value.(type) {
	case string:
		return typed, true
	case []byte:
		return string(typed), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(typed), true
	}
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

// QuoteIdent quotes an identifier with double quotes.
func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// QuoteBacktick quotes an identifier the way MySQL expects.
func QuoteBacktick(value string) string {
	return "`" + strings.ReplaceAll(value, "`", "``") + "`"
}

// Placeholders renders n bind markers. Numbered markers start at $1.
func Placeholders(n int, numbered bool) string {
	markers := make([]string, n)
	for i := range markers {
		if numbered {
			markers[i] = fmt.Sprintf("$%d", i+1)
		} else {
			markers[i] = "?"
		}
	}
	return strings.Join(markers, ", ")
}

// StringArgs converts values for use as variadic query args.
func StringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, value := range values {
		args[i] = value
	}
	return args
}

var errEmptyStatement = errors.New("statement is required")

// ValidateStatement rejects blank statements before a connection is opened.
func ValidateStatement(statement string) error {
	if strings.TrimSpace(statement) == "" {
		return errEmptyStatement
	}
	return nil
}
