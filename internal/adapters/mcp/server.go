// Package mcpadapter exposes the upload and read model over the Model
// Context Protocol.
package mcpadapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
	"github.com/kirillkom/mvne-doc-ingest/internal/core/ports"
)

const (
	serverName    = "mvne-doc-ingest"
	serverVersion = "0.1.0"
)

type Server struct {
	ingest ports.FileIngestor
	files  ports.FileReader
}

func New(ingest ports.FileIngestor, files ports.FileReader) *Server {
	return &Server{ingest: ingest, files: files}
}

func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	srv.AddTool(
		mcp.NewTool(
			"upload_file",
			mcp.WithDescription("Upload a file into the ingestion pipeline and return its record."),
			mcp.WithString("filename", mcp.Required(), mcp.Description("Original file name including extension")),
			mcp.WithString("content_base64", mcp.Required(), mcp.Description("File content, standard base64")),
			mcp.WithString("mime_type", mcp.Description("Declared MIME type")),
		),
		s.handleUpload,
	)
	srv.AddTool(
		mcp.NewTool(
			"get_file_record",
			mcp.WithDescription("Get the current record of an uploaded file, including pipeline results."),
			mcp.WithString("id", mcp.Required(), mcp.Description("File record id")),
		),
		s.handleGet,
	)
	srv.AddTool(
		mcp.NewTool(
			"list_file_records",
			mcp.WithDescription("List file records, newest first."),
			mcp.WithString("status", mcp.Description("Comma separated statuses: uploading, processing, quarantined, validated, stored, failed")),
			mcp.WithString("query", mcp.Description("Case-insensitive match on file name or document type")),
			mcp.WithNumber("limit", mcp.Description("Max records (default 50)")),
			mcp.WithNumber("offset", mcp.Description("Records to skip")),
		),
		s.handleList,
	)
	return srv
}

// Serve runs the stdio transport until stdin closes.
func (s *Server) Serve() error {
	return server.ServeStdio(s.MCPServer())
}

func (s *Server) handleUpload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	filename, _ := args["filename"].(string)
	encoded, _ := args["content_base64"].(string)
	mimeType, _ := args["mime_type"].(string)
	if strings.TrimSpace(filename) == "" || encoded == "" {
		return mcp.NewToolResultError("filename and content_base64 arguments required"), nil
	}

	content, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("content_base64 is not valid base64: %v", err)), nil
	}

	rec, err := s.ingest.Upload(ctx, filename, mimeType, bytes.NewReader(content))
	if err != nil {
		return toolError("upload failed", err), nil
	}
	return jsonResult(rec)
}

func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := request.GetArguments()["id"].(string)
	if strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("id argument required"), nil
	}
	rec, err := s.files.GetByID(ctx, id)
	if err != nil {
		return toolError("get failed", err), nil
	}
	return jsonResult(rec)
}

func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	var filter domain.FileFilter
	if raw, ok := args["status"].(string); ok {
		for _, st := range strings.Split(raw, ",") {
			st = strings.ToLower(strings.TrimSpace(st))
			if st != "" {
				filter.Statuses = append(filter.Statuses, domain.FileStatus(st))
			}
		}
	}
	filter.Query, _ = args["query"].(string)
	if l, ok := args["limit"].(float64); ok {
		filter.Limit = int(l)
	}
	if o, ok := args["offset"].(float64); ok {
		filter.Offset = int(o)
	}

	records, err := s.files.List(ctx, filter)
	if err != nil {
		return toolError("list failed", err), nil
	}
	return jsonResult(records)
}

func toolError(prefix string, err error) *mcp.CallToolResult {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrFileNotFound),
		domain.IsKind(err, domain.ErrTemporary):
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
	default:
		return mcp.NewToolResultError(prefix + ": internal error")
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("failed to marshal result"), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
