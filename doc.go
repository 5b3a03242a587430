// Package proxy translates between Model Context Protocol (MCP) transports.
//
// An MCP server speaks JSON-RPC over one of two transports: newline-delimited
// frames on stdio, or HTTP Server-Sent Events paired with an HTTP message
// endpoint. The proxy sits between a client on one transport and a server on
// the other and forwards frames without interpreting them, beyond the minimum
// needed for routing. Three engines cover the useful pairings:
//  1. stdio – spawns a stdio MCP server as a child process and exposes it
//     to any number of SSE clients,
//  2. sse-client – connects to a remote SSE MCP server and exposes it on
//     the proxy's own stdio, and
//  3. sse-relay – connects to a remote SSE MCP server and re-exposes it to
//     local SSE clients, reconnecting with backoff when the upstream drops.
//
// The Options structure can be populated from CLI flags or from a YAML
// config document; Run wires flags, signals and the selected engine together
// for the mcp-proxy command.
//
// Example:
//
//	eng, _ := proxy.New(ctx, &proxy.Options{Mode: "stdio", Command: "my-mcp-server"})
//	_ = eng.Run(ctx)
//
// See the README for a more complete introduction.
package proxy
