// Package mcptool exposes text extraction as an MCP tool.
package mcptool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MeKo-Tech/ocrnlp/internal/document"
	"github.com/MeKo-Tech/ocrnlp/internal/extract"
)

// ToolName is the name clients call.
const ToolName = "ocr_extract"

// Extractor runs one extraction. *extract.Extractor implements it.
type Extractor interface {
	Extract(ctx context.Context, doc document.RawDocument) (*extract.Result, error)
}

// Options configure the tool.
type Options struct {
	// MaxBytes caps documents read from disk or sent inline. 0 means no cap.
	MaxBytes int64
	Logger   *slog.Logger
}

type extractArgs struct {
	Path        string `json:"path,omitempty"`
	Data        []byte `json:"data,omitempty"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

func inputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":         map[string]any{"type": "string", "description": "Path of an image or PDF file to read"},
			"data":         map[string]any{"type": "string", "description": "Base64 document bytes, used instead of path"},
			"filename":     map[string]any{"type": "string", "description": "Original file name, a format hint for data"},
			"content_type": map[string]any{"type": "string", "description": "MIME type, a format hint for data"},
		},
	}
}

// NewServer creates an MCP server with the extraction tool registered.
func NewServer(x Extractor, version string, opts Options) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "ocrnlp", Version: version}, nil)
	Register(srv, x, opts)
	return srv
}

// Register adds the ocr_extract tool to srv.
func Register(srv *mcp.Server, x Extractor, opts Options) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tool := &mcp.Tool{
		Name: ToolName,
		Description: "Extract text blocks (text, bounding box, confidence, page) from an image or PDF. " +
			"Pass either a file path or base64 data.",
		InputSchema: inputSchema(),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args extractArgs
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}

		doc, err := args.document(opts.MaxBytes)
		if err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
		}

		res, err := x.Extract(ctx, doc)
		if err != nil {
			logger.Warn("MCP extraction failed", "filename", doc.Filename, "error", err)
			if xerr, ok := extract.AsError(err); ok {
				return toolError(fmt.Errorf("%s: %s", xerr.Kind, xerr.Detail())), nil
			}
			return toolError(errors.New("extraction failed")), nil
		}

		data, err := json.Marshal(res)
		if err != nil {
			return toolError(fmt.Errorf("marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func (a extractArgs) document(maxBytes int64) (document.RawDocument, error) {
	switch {
	case a.Path != "" && len(a.Data) > 0:
		return document.RawDocument{}, errors.New("pass either path or data, not both")
	case a.Path != "":
		info, err := os.Stat(a.Path)
		if err != nil {
			return document.RawDocument{}, err
		}
		if info.IsDir() {
			return document.RawDocument{}, fmt.Errorf("%s is a directory", a.Path)
		}
		if maxBytes > 0 && info.Size() > maxBytes {
			return document.RawDocument{}, fmt.Errorf("file is %d bytes, limit is %d", info.Size(), maxBytes)
		}
		data, err := os.ReadFile(a.Path)
		if err != nil {
			return document.RawDocument{}, err
		}
		filename := a.Filename
		if filename == "" {
			filename = filepath.Base(a.Path)
		}
		return document.RawDocument{Data: data, ContentType: a.ContentType, Filename: filename}, nil
	case a.Data != nil:
		if maxBytes > 0 && int64(len(a.Data)) > maxBytes {
			return document.RawDocument{}, fmt.Errorf("data is %d bytes, limit is %d", len(a.Data), maxBytes)
		}
		return document.RawDocument{Data: a.Data, ContentType: a.ContentType, Filename: a.Filename}, nil
	default:
		return document.RawDocument{}, errors.New("path or data is required")
	}
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}

// ServeStdio runs srv over stdin/stdout until ctx is canceled or the client
// disconnects.
func ServeStdio(ctx context.Context, srv *mcp.Server) error {
	return srv.Run(ctx, &mcp.StdioTransport{})
}
