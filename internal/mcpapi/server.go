// Package mcpapi implements the MCP Facade (C8): JSON-RPC tools for
// execute/read-file/write-file/list-files exposed over a streamable
// HTTP transport at POST /mcp (spec §4.8). Built on mark3labs/mcp-go,
// the real MCP SDK attested in the teacher's tools/flights/go.mod;
// request/response plumbing is grounded in the teacher's standalone
// tools/exec and tools/file_read binaries, generalized from one-shot
// CLI tools into long-lived MCP tool handlers.
package mcpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/apify/actor-sandbox/internal/codeexec"
	"github.com/apify/actor-sandbox/internal/procexec"
	"github.com/apify/actor-sandbox/internal/sandboxfs"
)

const serverName = "actor-sandbox"
const serverVersion = "1.0.0"

// toolNames lists the stable tool names exposed over MCP (spec §4.8),
// used to drive both tool registration and the llms.txt tool catalog.
var toolNames = []string{"execute", "write-file", "read-file", "list-files"}

// Facade builds a fresh MCP server + streamable HTTP transport per
// request, as spec §4.8 requires ("constructed per request and torn
// down on connection close").
type Facade struct {
	fileOps  *sandboxfs.FileOps
	resolver *sandboxfs.Resolver
	executor *codeexec.Executor
	runner   *procexec.Runner
}

// New builds a Facade bound to the sandbox root.
func New(root string, runner *procexec.Runner, resolver *sandboxfs.Resolver, executor *codeexec.Executor) *Facade {
	return &Facade{
		fileOps:  sandboxfs.NewFileOps(resolver),
		resolver: resolver,
		executor: executor,
		runner:   runner,
	}
}

// ToolNames returns the stable tool name list, used by the HTTP
// facade to render /llms.txt from the live tool catalog.
func (f *Facade) ToolNames() []string { return toolNames }

// ServeHTTP builds a new MCP server instance and streamable HTTP
// transport for this single request, handing it the request directly.
func (f *Facade) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mcpServer := server.NewMCPServer(serverName, serverVersion)
	f.registerTools(mcpServer)

	httpServer := server.NewStreamableHTTPServer(mcpServer)
	httpServer.ServeHTTP(w, r)
}

func (f *Facade) registerTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("execute",
		mcp.WithDescription("Run a shell command or a js/ts/py code snippet in the sandbox"),
		mcp.WithString("command", mcp.Required(), mcp.Description("shell command, or source code when language is set")),
		mcp.WithString("language", mcp.Description("js|ts|py — when set, command is treated as source code")),
		mcp.WithString("cwd", mcp.Description("working directory, confined under the sandbox root")),
		mcp.WithNumber("timeoutSecs", mcp.Description("execution timeout in seconds")),
	), f.handleExecute)

	s.AddTool(mcp.NewTool("write-file",
		mcp.WithDescription("Write content to a file under the sandbox root, replacing any existing contents"),
		mcp.WithString("path", mcp.Required()),
		mcp.WithString("content", mcp.Required()),
		mcp.WithString("mode", mcp.Description("octal file mode, e.g. \"644\"")),
	), f.handleWriteFile)

	s.AddTool(mcp.NewTool("read-file",
		mcp.WithDescription("Read a file's contents from under the sandbox root"),
		mcp.WithString("path", mcp.Required()),
	), f.handleReadFile)

	s.AddTool(mcp.NewTool("list-files",
		mcp.WithDescription("List one directory's immediate children under the sandbox root"),
		mcp.WithString("path", mcp.Description("defaults to the sandbox root")),
	), f.handleListFiles)
}

func (f *Facade) handleExecute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	command, _ := args["command"].(string)
	if command == "" {
		return textResult(map[string]any{"error": "command is required"}, true), nil
	}
	languageRaw, _ := args["language"].(string)
	cwd, _ := args["cwd"].(string)

	timeout := procexec.DefaultTimeout
	if raw, ok := args["timeoutSecs"]; ok {
		if secs, ok := toFloat(raw); ok && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}

	if languageRaw == "" {
		if cwd != "" {
			resolved, err := f.resolver.Resolve(cwd)
			if err != nil {
				payload := map[string]any{"stdout": "", "stderr": fmt.Sprintf("sandbox escape: cwd %q resolves outside the sandbox root", cwd), "exitCode": 1, "language": "shell"}
				return textResult(payload, true), nil
			}
			cwd = resolved
		}
		res, err := f.runner.Run(ctx, command, cwd, timeout)
		if err != nil {
			return textResult(map[string]any{"error": err.Error()}, true), nil
		}
		payload := map[string]any{"stdout": res.Stdout, "stderr": res.Stderr, "exitCode": res.ExitCode, "language": "shell"}
		return textResult(payload, res.ExitCode != 0), nil
	}

	lang, ok := codeexec.NormalizeLang(languageRaw)
	if !ok {
		return textResult(map[string]any{"error": "invalid language"}, true), nil
	}
	res, err := f.executor.Execute(ctx, command, lang, cwd, timeout)
	if err != nil {
		return textResult(map[string]any{"error": err.Error()}, true), nil
	}
	payload := map[string]any{"stdout": res.Stdout, "stderr": res.Stderr, "exitCode": res.ExitCode, "language": res.Language}
	return textResult(payload, res.ExitCode != 0), nil
}

func (f *Facade) handleWriteFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return textResult(map[string]any{"error": "path is required"}, true), nil
	}

	mode := defaultWriteMode
	if modeRaw, ok := args["mode"].(string); ok && modeRaw != "" {
		if parsed, err := parseOctalMode(modeRaw); err == nil {
			mode = parsed
		}
	}

	size, err := f.fileOps.WriteText(path, content, mode)
	if err != nil {
		return textResult(map[string]any{"error": err.Error()}, true), nil
	}
	return textResult(map[string]any{"success": true, "path": path, "size": size}, false), nil
}

func (f *Facade) handleReadFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return textResult(map[string]any{"error": "path is required"}, true), nil
	}

	content, mimeType, err := f.fileOps.ReadBinary(path)
	if err != nil {
		return textResult(map[string]any{"error": err.Error()}, true), nil
	}
	return textResult(map[string]any{"path": path, "content": string(content), "contentType": mimeType}, false), nil
}

func (f *Facade) handleListFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	path, _ := args["path"].(string)

	listing, err := f.fileOps.ListDetailed(path)
	if err != nil {
		return textResult(map[string]any{"error": err.Error()}, true), nil
	}
	return textResult(listing, false), nil
}

func textResult(payload any, isError bool) *mcp.CallToolResult {
	b, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	if isError {
		return mcp.NewToolResultError(string(b))
	}
	return mcp.NewToolResultText(string(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

const defaultWriteMode os.FileMode = 0o644

func parseOctalMode(s string) (os.FileMode, error) {
	var mode uint32
	_, err := fmt.Sscanf(s, "%o", &mode)
	return os.FileMode(mode), err
}
