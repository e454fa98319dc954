// Package schema caches the table structures of (connection, database) pairs.
package schema

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/observability"
)

type TableStructure struct {
	Name      string `json:"name"`
	Structure string `json:"structure"`
}

type Key struct {
	Connection string
	Database   string
}

func KeyFor(conn connector.Connection, databaseName string) Key {
	return Key{Connection: conn.Identity(), Database: databaseName}
}

func (k Key) String() string {
	return k.Connection + "/" + k.Database
}

// Backend stores complete schemas. Entries are never partially written.
type Backend interface {
	Get(ctx context.Context, key Key) ([]TableStructure, bool, error)
	Put(ctx context.Context, key Key, tables []TableStructure) error
	Delete(ctx context.Context, key Key) error
}

type ConnectorSource interface {
	For(conn connector.Connection) (connector.Connector, error)
}

// DefaultFetchTimeout bounds one shared schema fetch across all its queries.
const DefaultFetchTimeout = 2 * time.Minute

type Cache struct {
	// FetchTimeout bounds a shared fetch. Zero means DefaultFetchTimeout.
	FetchTimeout time.Duration

	source  ConnectorSource
	backend Backend
	logger  *zap.Logger
	group   singleflight.Group
}

func NewCache(source ConnectorSource, backend Backend, logger *zap.Logger) *Cache {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	return &Cache{source: source, backend: backend, logger: observability.LoggerOrNop(logger)}
}

// GetOrFetch returns the cached schema for the pair, fetching it from the
// database on a miss. Concurrent misses for one key share a single fetch.
// A failed fetch leaves the cache untouched.
func (c *Cache) GetOrFetch(ctx context.Context, conn connector.Connection, databaseName string) ([]TableStructure, error) {
	key := KeyFor(conn, databaseName)

	tables, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		observability.ObserveSchemaCacheLookup("error")
		c.logger.Warn("schema cache read failed", zap.String("key", key.String()), zap.Error(err))
	} else if ok {
		observability.ObserveSchemaCacheLookup("hit")
		return cloneTables(tables), nil
	}
	observability.ObserveSchemaCacheLookup("miss")

	// The shared fetch outlives any single caller; each caller stops waiting
	// when its own ctx ends.
	results := c.group.DoChan(key.String(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout())
		defer cancel()
		fetched, err := c.fetch(fetchCtx, conn, databaseName)
		if err != nil {
			return nil, err
		}
		if err := c.backend.Put(fetchCtx, key, fetched); err != nil {
			return nil, fmt.Errorf("store schema %s: %w", key, err)
		}
		c.logger.Debug("schema cached", zap.String("key", key.String()), zap.Int("tables", len(fetched)))
		return fetched, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneTables(res.Val.([]TableStructure)), nil
	}
}

func (c *Cache) Invalidate(ctx context.Context, conn connector.Connection, databaseName string) error {
	key := KeyFor(conn, databaseName)
	if err := c.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("invalidate schema %s: %w", key, err)
	}
	return nil
}

func (c *Cache) fetch(ctx context.Context, conn connector.Connection, databaseName string) ([]TableStructure, error) {
	db, err := c.source.For(conn)
	if err != nil {
		return nil, err
	}
	names, err := db.GetTables(ctx, databaseName)
	if err != nil {
		return nil, err
	}
	tables := make([]TableStructure, 0, len(names))
	for _, name := range names {
		structure, err := db.GetTableStructure(ctx, databaseName, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, TableStructure{Name: name, Structure: structure})
	}
	return tables, nil
}

func (c *Cache) fetchTimeout() time.Duration {
	if c.FetchTimeout > 0 {
		return c.FetchTimeout
	}
	return DefaultFetchTimeout
}

func cloneTables(tables []TableStructure) []TableStructure {
	out := make([]TableStructure, len(tables))
	copy(out, tables)
	return out
}
