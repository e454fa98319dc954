// Package export writes statement results to parquet objects in the
// configured object store.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/observability"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/storage"
)

const ContentType = "application/vnd.apache.parquet"

// Cell is one value of a result in long format. Row is zero-based and Value
// is nil for SQL NULL.
type Cell struct {
	Row    int64   `parquet:"row"`
	Column string  `parquet:"column"`
	Value  *string `parquet:"value,optional"`
}

type Executor interface {
	Execute(ctx context.Context, databaseName, statement string) (connector.Result, error)
}

type Export struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	Rows      int64     `json:"rows"`
	Columns   []string  `json:"columns"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	store  storage.Store
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewService(store storage.Store, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: observability.LoggerOrNop(logger),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Run executes statement and uploads its result set. Statement errors are
// returned unchanged so callers can classify them.
func (s *Service) Run(ctx context.Context, executor Executor, databaseName, statement string) (Export, error) {
	result, err := executor.Execute(ctx, databaseName, statement)
	if err != nil {
		return Export{}, err
	}
	payload, err := Encode(result)
	if err != nil {
		return Export{}, err
	}

	createdAt := s.now()
	key, err := storage.ExportKey(createdAt, s.newID())
	if err != nil {
		return Export{}, err
	}
	obj, err := s.store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), ContentType)
	if err != nil {
		return Export{}, fmt.Errorf("upload export: %w", err)
	}
	s.logger.Info("result exported",
		zap.String("key", key),
		zap.Int("rows", len(result.Rows)),
		zap.Int64("bytes", obj.Size),
	)
	return Export{
		Key:       key,
		Size:      int64(len(payload)),
		Rows:      int64(len(result.Rows)),
		Columns:   append([]string(nil), result.Columns...),
		CreatedAt: createdAt,
	}, nil
}

func (s *Service) Open(ctx context.Context, key string) (io.ReadCloser, storage.Object, error) {
	if err := storage.ValidateExportKey(key); err != nil {
		return nil, storage.Object{}, err
	}
	return s.store.Open(ctx, key)
}

func (s *Service) Remove(ctx context.Context, key string) error {
	if err := storage.ValidateExportKey(key); err != nil {
		return err
	}
	return s.store.Remove(ctx, key)
}

// Encode flattens result into one Cell per row and column, in column order.
func Encode(result connector.Result) ([]byte, error) {
	cells := make([]Cell, 0, len(result.Rows)*len(result.Columns))
	for i, row := range result.Rows {
		for _, column := range result.Columns {
			cells = append(cells, Cell{Row: int64(i), Column: column, Value: cellValue(row[column])})
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Cell](buf)
	if _, err := writer.Write(cells); err != nil {
		return nil, fmt.Errorf("write parquet cells: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func cellValue(value any) *string {
	var text string
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		text = v
	case []byte:
		text = string(v)
	case time.Time:
		text = v.UTC().Format(time.RFC3339Nano)
	default:
		text = fmt.Sprint(v)
	}
	return &text
}
