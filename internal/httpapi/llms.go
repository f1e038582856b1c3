package httpapi

import (
	"fmt"
	"strings"
)

// llmsTxtFor renders the /llms.txt catalog from the live MCP tool
// list rather than a hand-maintained copy (SPEC_FULL.md §C resolves
// this from spec §9's silence on the document's exact content).
func llmsTxtFor(mcp MCPHandler) string {
	var b strings.Builder
	b.WriteString("# actor-sandbox\n\n")
	b.WriteString("HTTP endpoints: GET /health, GET /, POST /exec, GET/PUT/POST/DELETE /fs/{path}, ALL /shell*, POST /mcp.\n\n")

	if mcp == nil {
		return b.String()
	}

	b.WriteString("## MCP tools (POST /mcp)\n\n")
	for _, name := range mcp.ToolNames() {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return b.String()
}
