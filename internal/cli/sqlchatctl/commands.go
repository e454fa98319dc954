package sqlchatctl

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/schema"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/transcript"
)

type globalFlags struct {
	baseURL  string
	apiKey   string
	timeout  time.Duration
	engine   string
	host     string
	port     string
	user     string
	password string
	database string
}

func (g *globalFlags) client(defaults Options) *client {
	httpClient := defaults.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: g.timeout}
	}
	return &client{baseURL: g.baseURL, apiKey: g.apiKey, http: httpClient}
}

func (g *globalFlags) connection() (*connector.Connection, error) {
	if strings.TrimSpace(g.engine) == "" {
		return nil, fmt.Errorf("--engine is required")
	}
	engine, err := connector.ParseEngineType(g.engine)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(g.host) == "" {
		return nil, fmt.Errorf("--host is required")
	}
	return &connector.Connection{
		EngineType: engine,
		Host:       g.host,
		Port:       g.port,
		Username:   g.user,
		Password:   g.password,
		Database:   g.database,
	}, nil
}

type connectionPayload struct {
	Connection *connector.Connection `json:"connection"`
	DB         *string               `json:"db,omitempty"`
	Statement  string                `json:"statement,omitempty"`
	Refresh    bool                  `json:"refresh,omitempty"`
}

func newRootCommand(defaults Options, stdout io.Writer) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "sqlchatctl",
		Short:         "Command-line client for the sqlchat API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			return fmt.Errorf("command is required")
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "sqlchat API base URL")
	pf.StringVar(&flags.apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	pf.DurationVar(&flags.timeout, "timeout", durationOr(defaults.Timeout, 2*time.Minute), "HTTP timeout (e.g. 30s)")
	pf.StringVar(&flags.engine, "engine", "", "database engine: mysql, postgresql, sqlite, duckdb")
	pf.StringVar(&flags.host, "host", "", "database host, or file path for sqlite and duckdb")
	pf.StringVar(&flags.port, "port", "", "database port")
	pf.StringVar(&flags.user, "user", "", "database user")
	pf.StringVar(&flags.password, "password", "", "database password")
	pf.StringVar(&flags.database, "database", "", "database name")

	root.AddCommand(
		&cobra.Command{
			Use:   "health",
			Short: "GET /api/health",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				raw, err := flags.client(defaults).do(cmd.Context(), http.MethodGet, "/api/health", nil)
				if err != nil {
					return err
				}
				printRaw(stdout, raw)
				return nil
			},
		},
		&cobra.Command{
			Use:   "test",
			Short: "Check that the connection can be opened",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				conn, err := flags.connection()
				if err != nil {
					return err
				}
				if _, err := flags.client(defaults).do(cmd.Context(), http.MethodPost, "/api/connection/test", connectionPayload{Connection: conn}); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(stdout, "connection ok")
				return nil
			},
		},
		&cobra.Command{
			Use:   "databases",
			Short: "List user databases",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return listNames(cmd, flags, defaults, stdout, "/api/connection/databases", false)
			},
		},
		&cobra.Command{
			Use:   "tables",
			Short: "List tables of --database",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return listNames(cmd, flags, defaults, stdout, "/api/connection/tables", true)
			},
		},
		newSchemaCommand(flags, defaults, stdout),
		newExecCommand(flags, defaults, stdout),
		newAskCommand(flags, defaults, stdout),
		newHistoryCommand(flags, defaults, stdout),
	)
	return root
}

func listNames(cmd *cobra.Command, flags *globalFlags, defaults Options, stdout io.Writer, path string, needDB bool) error {
	conn, err := flags.connection()
	if err != nil {
		return err
	}
	payload := connectionPayload{Connection: conn}
	if needDB {
		if flags.database == "" {
			return fmt.Errorf("--database is required")
		}
		payload.DB = &flags.database
	}
	raw, err := flags.client(defaults).do(cmd.Context(), http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	var resp struct {
		Data []string `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return &requestError{err: fmt.Errorf("decode response: %w", err)}
	}
	for _, name := range resp.Data {
		_, _ = fmt.Fprintln(stdout, name)
	}
	return nil
}

func newSchemaCommand(flags *globalFlags, defaults Options, stdout io.Writer) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the cached table structures of --database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := flags.connection()
			if err != nil {
				return err
			}
			if flags.database == "" {
				return fmt.Errorf("--database is required")
			}
			raw, err := flags.client(defaults).do(cmd.Context(), http.MethodPost, "/api/connection/schema", connectionPayload{
				Connection: conn,
				DB:         &flags.database,
				Refresh:    refresh,
			})
			if err != nil {
				return err
			}
			var resp struct {
				Data []schema.TableStructure `json:"data"`
			}
			if err := json.Unmarshal(raw, &resp); err != nil {
				return &requestError{err: fmt.Errorf("decode response: %w", err)}
			}
			for _, table := range resp.Data {
				_, _ = fmt.Fprintf(stdout, "%s\n\n", table.Structure)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "drop the cached schema before reading it")
	return cmd
}

func newExecCommand(flags *globalFlags, defaults Options, stdout io.Writer) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "exec <statement>",
		Short: "Run a statement and print the rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := flags.connection()
			if err != nil {
				return err
			}
			payload := connectionPayload{Connection: conn, Statement: args[0]}
			if flags.database != "" {
				payload.DB = &flags.database
			}
			raw, err := flags.client(defaults).do(cmd.Context(), http.MethodPost, "/api/connection/execute", payload)
			if err != nil {
				return err
			}
			if asJSON {
				printRaw(stdout, raw)
				return nil
			}
			var resp struct {
				Data    []map[string]any `json:"data"`
				Columns []string         `json:"columns"`
			}
			if err := json.Unmarshal(raw, &resp); err != nil {
				return &requestError{err: fmt.Errorf("decode response: %w", err)}
			}
			return renderRows(stdout, resp.Columns, resp.Data)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON response")
	return cmd
}

func renderRows(w io.Writer, columns []string, rows []map[string]any) error {
	if len(columns) == 0 && len(rows) > 0 {
		for column := range rows[0] {
			columns = append(columns, column)
		}
		sort.Strings(columns)
	}
	if len(columns) == 0 {
		_, _ = fmt.Fprintln(w, "(no rows)")
		return nil
	}
	data := pterm.TableData{columns}
	for _, row := range rows {
		line := make([]string, len(columns))
		for i, column := range columns {
			if value := row[column]; value != nil {
				line[i] = fmt.Sprint(value)
			} else {
				line[i] = "NULL"
			}
		}
		data = append(data, line)
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "%s\n(%d rows)\n", table, len(rows))
	return nil
}

func newAskCommand(flags *globalFlags, defaults Options, stdout io.Writer) *cobra.Command {
	var chatID, assistantID string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Send a message to a chat and print the assistant reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(chatID) == "" {
				return fmt.Errorf("--chat is required")
			}
			payload := map[string]any{"content": args[0]}
			if assistantID != "" {
				payload["assistantId"] = assistantID
			}
			if flags.engine != "" {
				conn, err := flags.connection()
				if err != nil {
					return err
				}
				payload["connection"] = conn
				payload["databaseName"] = flags.database
			}
			raw, err := flags.client(defaults).do(cmd.Context(), http.MethodPost, chatPath(chatID, "/messages"), payload)
			if err != nil {
				return err
			}
			var resp struct {
				Message transcript.Message `json:"message"`
			}
			if err := json.Unmarshal(raw, &resp); err != nil {
				return &requestError{err: fmt.Errorf("decode response: %w", err)}
			}
			_, _ = fmt.Fprintln(stdout, resp.Message.Content)
			if !resp.Message.IsGenerated {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "warning: reply was interrupted before completion")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "chat id")
	cmd.Flags().StringVar(&assistantID, "assistant", "", "assistant id")
	return cmd
}

func newHistoryCommand(flags *globalFlags, defaults Options, stdout io.Writer) *cobra.Command {
	var chatID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the transcript of a chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(chatID) == "" {
				return fmt.Errorf("--chat is required")
			}
			raw, err := flags.client(defaults).do(cmd.Context(), http.MethodGet, chatPath(chatID, "/messages"), nil)
			if err != nil {
				return err
			}
			var resp struct {
				Messages []transcript.Message `json:"messages"`
			}
			if err := json.Unmarshal(raw, &resp); err != nil {
				return &requestError{err: fmt.Errorf("decode response: %w", err)}
			}
			for _, msg := range resp.Messages {
				marker := ""
				if !msg.IsGenerated {
					marker = " (incomplete)"
				}
				_, _ = fmt.Fprintf(stdout, "[%s] %s%s: %s\n", msg.CreatedAt.Format(time.RFC3339), msg.CreatorRole, marker, msg.Content)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "chat id")
	return cmd
}
