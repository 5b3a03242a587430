// Package example contains self-contained programs that demonstrate the
// proxy against a real counterpart.
//
// The stdioserver sub-directory holds a minimal MCP server speaking newline
// delimited JSON-RPC on its standard streams; point the stdio bridge at it to
// exercise the whole chain:
//
//	mcp-proxy --mode stdio --command stdioserver --port 8000
package example
