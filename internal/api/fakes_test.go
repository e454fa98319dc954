package api

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/chat"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/export"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/prompt"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/schema"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/storage"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/transcript"
)

type fakeResolver struct {
	conn connector.Connector
	err  error
	got  []connector.Connection
}

func (f *fakeResolver) For(conn connector.Connection) (connector.Connector, error) {
	f.got = append(f.got, conn)
	return f.conn, f.err
}

type fakeConnector struct {
	testErr    error
	databases  []string
	tables     []string
	result     connector.Result
	err        error
	statements []string
	databaseOf []string
}

func (f *fakeConnector) TestConnection(context.Context) error { return f.testErr }

func (f *fakeConnector) GetDatabases(context.Context) ([]string, error) {
	return f.databases, f.err
}

func (f *fakeConnector) GetTables(_ context.Context, databaseName string) ([]string, error) {
	f.databaseOf = append(f.databaseOf, databaseName)
	return f.tables, f.err
}

func (f *fakeConnector) GetTableStructure(context.Context, string, string) (string, error) {
	return "", f.err
}

func (f *fakeConnector) Execute(_ context.Context, databaseName, statement string) (connector.Result, error) {
	f.databaseOf = append(f.databaseOf, databaseName)
	f.statements = append(f.statements, statement)
	return f.result, f.err
}

type fakeSchemaCache struct {
	tables      []schema.TableStructure
	err         error
	invalidated []string
}

func (f *fakeSchemaCache) GetOrFetch(_ context.Context, conn connector.Connection, databaseName string) ([]schema.TableStructure, error) {
	return f.tables, f.err
}

func (f *fakeSchemaCache) Invalidate(_ context.Context, conn connector.Connection, databaseName string) error {
	f.invalidated = append(f.invalidated, schema.KeyFor(conn, databaseName).String())
	return nil
}

type fakeStreamer struct {
	chunks []string
	err    error
	turns  []prompt.Turn
}

func (f *fakeStreamer) Stream(_ context.Context, turns []prompt.Turn, onChunk func([]byte) error) error {
	f.turns = turns
	for _, chunk := range f.chunks {
		if err := onChunk([]byte(chunk)); err != nil {
			return err
		}
	}
	return f.err
}

type fakeOrchestrator struct {
	mu     sync.Mutex
	turns  []chat.Turn
	reply  transcript.Message
	err    error
	status chat.Status
}

func (f *fakeOrchestrator) Send(_ context.Context, turn chat.Turn) (transcript.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, turn)
	return f.reply, f.err
}

func (f *fakeOrchestrator) State(string) chat.Status {
	if f.status.State == "" {
		return chat.Status{State: chat.StateIdle}
	}
	return f.status
}

type fakeExporter struct {
	exported export.Export
	objects  map[string][]byte
	removed  []string
}

func (f *fakeExporter) Run(ctx context.Context, executor export.Executor, databaseName, statement string) (export.Export, error) {
	if _, err := executor.Execute(ctx, databaseName, statement); err != nil {
		return export.Export{}, err
	}
	return f.exported, nil
}

func (f *fakeExporter) Open(_ context.Context, key string) (io.ReadCloser, storage.Object, error) {
	if err := storage.ValidateExportKey(key); err != nil {
		return nil, storage.Object{}, err
	}
	raw, ok := f.objects[key]
	if !ok {
		return nil, storage.Object{}, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), storage.Object{Key: key, Size: int64(len(raw)), ContentType: export.ContentType}, nil
}

func (f *fakeExporter) Remove(_ context.Context, key string) error {
	if err := storage.ValidateExportKey(key); err != nil {
		return err
	}
	f.removed = append(f.removed, key)
	return nil
}
