// Command stdioserver is a minimal MCP server for exercising the proxy: it
// speaks newline delimited JSON-RPC on stdio and exposes a single "add" tool.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/viant/jsonrpc"
	"github.com/viant/mcp-protocol/schema"
	"github.com/viant/mcp-proxy/codec"
)

func main() {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	srv := &server{out: os.Stdout, log: logrus.NewEntry(logger)}
	framer := codec.NewFramer(codec.MaxFrameSize)
	if err := codec.Pump(os.Stdin, framer, srv.handle, nil); err != nil {
		logger.WithError(err).Fatal("stdin failed")
	}
}

type server struct {
	out *os.File
	log *logrus.Entry
}

func (s *server) handle(frame []byte) {
	message, err := codec.Decode(frame)
	if err != nil {
		s.log.WithError(err).Warn("skipping unparseable frame")
		return
	}
	if message.IsNotification() {
		if message.Method != schema.MethodNotificationInitialized {
			s.log.WithField("method", message.Method).Debug("ignoring notification")
		}
		return
	}
	if !message.IsRequest() {
		return
	}
	switch message.Method {
	case schema.MethodInitialize:
		s.reply(message.Id, &schema.InitializeResult{
			ProtocolVersion: schema.LatestProtocolVersion,
			Capabilities:    schema.ServerCapabilities{Tools: &schema.ServerCapabilitiesTools{}},
			ServerInfo:      schema.Implementation{Name: "adder", Version: "1.0"},
		})
	case schema.MethodToolsList:
		description := "Add two integers"
		s.reply(message.Id, &schema.ListToolsResult{
			Tools: []schema.Tool{{Name: "add", Description: &description, InputSchema: schema.ToolInputSchema{Type: "object"}}},
		})
	case schema.MethodToolsCall:
		s.call(message)
	case schema.MethodPing:
		s.reply(message.Id, map[string]interface{}{})
	default:
		s.fail(message.Id, jsonrpc.NewMethodNotFound(fmt.Sprintf("method %v not found", message.Method), nil))
	}
}

func (s *server) call(message *codec.Message) {
	params := struct {
		Name      string `json:"name"`
		Arguments struct {
			A int `json:"a"`
			B int `json:"b"`
		} `json:"arguments"`
	}{}
	if err := json.Unmarshal(message.Params, &params); err != nil {
		s.fail(message.Id, jsonrpc.NewInvalidParamsError(err.Error(), nil))
		return
	}
	if params.Name != "add" {
		s.fail(message.Id, jsonrpc.NewMethodNotFound(fmt.Sprintf("tool %v not found", params.Name), nil))
		return
	}
	sum := params.Arguments.A + params.Arguments.B
	s.reply(message.Id, &schema.CallToolResult{
		Content: []schema.CallToolResultContentElem{schema.TextContent{Type: "text", Text: strconv.Itoa(sum)}},
	})
}

func (s *server) reply(id json.RawMessage, result interface{}) {
	raw, err := json.Marshal(result)
	if err != nil {
		s.fail(id, jsonrpc.NewInternalError(err.Error(), nil))
		return
	}
	s.write(&codec.Message{Jsonrpc: jsonrpc.Version, Id: id, Result: raw})
}

func (s *server) fail(id json.RawMessage, rpcErr *jsonrpc.Error) {
	s.write(&codec.Message{Jsonrpc: jsonrpc.Version, Id: id, Error: rpcErr})
}

func (s *server) write(message *codec.Message) {
	data, err := message.Encode()
	if err != nil {
		s.log.WithError(err).Error("failed to encode response")
		return
	}
	_, _ = s.out.Write(append(data, '\n'))
}
