package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/mcp-protocol/schema"
	proxy "github.com/viant/mcp-proxy"
	"github.com/viant/mcp-proxy/codec"
	"github.com/viant/mcp-proxy/upstream"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: docs <command> [args...]")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge the stdio MCP server named on the command line to an SSE port
	eng, err := proxy.New(ctx, &proxy.Options{
		Mode:      "stdio",
		Command:   os.Args[1],
		Arguments: os.Args[2:],
		Port:      4987,
	})
	if err != nil {
		log.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		done <- eng.Run(ctx)
	}()

	// Probe the bridge as a regular SSE client
	entry := logrus.NewEntry(logrus.StandardLogger())
	var conn *upstream.Conn
	for i := 0; i < 50; i++ {
		if conn, err = upstream.Dial(ctx, entry, "http://127.0.0.1:4987/sse", time.Second); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	request, err := codec.NewRequest(1, schema.MethodInitialize, &schema.InitializeRequestParams{
		Capabilities:    schema.ClientCapabilities{},
		ClientInfo:      schema.Implementation{Name: "docs", Version: "1.0"},
		ProtocolVersion: schema.LatestProtocolVersion,
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := conn.Send(ctx, request); err != nil {
		log.Fatal(err)
	}
	for payload := range conn.Events() {
		message, err := codec.Decode(payload)
		if err != nil || !message.IsResponse() {
			continue
		}
		if message.Error != nil {
			log.Fatalf("initialize rejected: %v", message.Error.Message)
		}
		var result schema.InitializeResult
		if err := json.Unmarshal(message.Result, &result); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("bridged %v %v at http://127.0.0.1:4987/sse\n", result.ServerInfo.Name, result.ServerInfo.Version)
		conn.Close()
		cancel()
		if err := <-done; err != nil {
			log.Fatal(err)
		}
		return
	}
	log.Fatal("stream ended before the initialize response")
}
