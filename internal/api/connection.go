package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/auth"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/storage"
)

type connectionRequest struct {
	Connection *connector.Connection `json:"connection"`
	DB         *string               `json:"db"`
	Statement  string                `json:"statement"`
	Refresh    bool                  `json:"refresh"`
}

func (r connectionRequest) database() string {
	if r.DB == nil {
		return ""
	}
	return strings.TrimSpace(*r.DB)
}

// dataResponse is the contract of the connection endpoints: data on success,
// message on failure.
type dataResponse struct {
	Data    any      `json:"data,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Message string   `json:"message,omitempty"`
}

func handleTestConnection(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	_, conn, ok := resolveConnector(deps, w, r, false)
	if !ok {
		return
	}
	if err := conn.TestConnection(r.Context()); err != nil {
		writeConnectorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: true})
}

func handleListDatabases(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	_, conn, ok := resolveConnector(deps, w, r, false)
	if !ok {
		return
	}
	names, err := conn.GetDatabases(r.Context())
	if err != nil {
		writeConnectorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: nonNil(names)})
}

func handleListTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	req, conn, ok := resolveConnector(deps, w, r, true)
	if !ok {
		return
	}
	names, err := conn.GetTables(r.Context(), req.database())
	if err != nil {
		writeConnectorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: nonNil(names)})
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schemas == nil {
		writeJSON(w, http.StatusNotImplemented, dataResponse{Message: "schema cache is not configured"})
		return
	}
	req, ok := decodeConnectionRequest(w, r, true)
	if !ok {
		return
	}
	if req.Refresh {
		if err := deps.Schemas.Invalidate(r.Context(), *req.Connection, req.database()); err != nil {
			writeJSON(w, http.StatusInternalServerError, dataResponse{Message: err.Error()})
			return
		}
	}
	tables, err := deps.Schemas.GetOrFetch(r.Context(), *req.Connection, req.database())
	if err != nil {
		writeConnectorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: tables})
}

func handleExecute(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	req, conn, ok := resolveConnector(deps, w, r, false)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Statement) == "" {
		writeJSON(w, http.StatusBadRequest, dataResponse{Message: "statement is required"})
		return
	}
	result, err := conn.Execute(r.Context(), req.database(), req.Statement)
	if err != nil {
		writeConnectorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: nonNil(result.Rows), Columns: nonNil(result.Columns)})
}

func handleExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exports == nil {
		writeJSON(w, http.StatusNotImplemented, dataResponse{Message: "result export is not enabled"})
		return
	}
	req, conn, ok := resolveConnector(deps, w, r, false)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Statement) == "" {
		writeJSON(w, http.StatusBadRequest, dataResponse{Message: "statement is required"})
		return
	}
	exported, err := deps.Exports.Run(r.Context(), conn, req.database(), req.Statement)
	if err != nil {
		writeConnectorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: exported})
}

func handleDownloadExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exports == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "result export is not enabled", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleExecute); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	key := r.PathValue("key")
	body, obj, err := deps.Exports.Open(r.Context(), key)
	if err != nil {
		writeExportError(w, r, key, err)
		return
	}
	defer func() { _ = body.Close() }()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", key[strings.LastIndex(key, "/")+1:]))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func handleDeleteExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exports == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "result export is not enabled", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleExecute); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	key := r.PathValue("key")
	if err := deps.Exports.Remove(r.Context(), key); err != nil {
		writeExportError(w, r, key, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeExportError(w http.ResponseWriter, r *http.Request, key string, err error) {
	if errors.Is(err, storage.ErrObjectNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, "EXPORT_NOT_FOUND", "export was not found", false, map[string]any{"key": key})
		return
	}
	if storage.ValidateExportKey(key) != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_EXPORT_KEY", err.Error(), false, nil)
		return
	}
	writeError(r.Context(), w, http.StatusBadGateway, "OBJECT_STORE_ERROR", "object store request failed", true, map[string]any{"details": err.Error()})
}

func decodeConnectionRequest(w http.ResponseWriter, r *http.Request, requireDB bool) (connectionRequest, bool) {
	if err := requireRole(r, auth.RoleExecute); err != nil {
		writeJSON(w, http.StatusForbidden, dataResponse{Message: err.Error()})
		return connectionRequest{}, false
	}
	var req connectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, dataResponse{Message: "invalid request body: " + err.Error()})
		return connectionRequest{}, false
	}
	if req.Connection == nil {
		writeJSON(w, http.StatusBadRequest, dataResponse{Message: "connection is required"})
		return connectionRequest{}, false
	}
	if requireDB && req.database() == "" {
		writeJSON(w, http.StatusBadRequest, dataResponse{Message: "db is required"})
		return connectionRequest{}, false
	}
	return req, true
}

func resolveConnector(deps Dependencies, w http.ResponseWriter, r *http.Request, requireDB bool) (connectionRequest, connector.Connector, bool) {
	if deps.Connectors == nil {
		writeJSON(w, http.StatusNotImplemented, dataResponse{Message: "connectors are not configured"})
		return connectionRequest{}, nil, false
	}
	req, ok := decodeConnectionRequest(w, r, requireDB)
	if !ok {
		return connectionRequest{}, nil, false
	}
	conn, err := deps.Connectors.For(*req.Connection)
	if err != nil {
		writeConnectorError(w, err)
		return connectionRequest{}, nil, false
	}
	return req, conn, true
}

// writeConnectorError passes the engine message through unchanged.
func writeConnectorError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, connector.ErrUnsupportedEngine), errors.Is(err, connector.ErrQuery):
		status = http.StatusBadRequest
	case errors.Is(err, connector.ErrConnection):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, dataResponse{Message: err.Error()})
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
