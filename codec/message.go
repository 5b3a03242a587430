package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/viant/jsonrpc"
)

// ServerError is the default code for locally synthesized error responses
// when the upstream failure carried no code of its own.
const ServerError = -32000

var nullValue = []byte("null")

// Message is a transport level JSON-RPC envelope. Payload members stay raw
// so that frames can pass through the proxy byte for byte; the proxy only
// ever inspects the routing members (method and id).
type Message struct {
	Jsonrpc string          `json:"jsonrpc,omitempty"`
	Id      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpc.Error  `json:"error,omitempty"`
}

// Decode parses a single frame into a Message. A frame that is well formed
// JSON but carries neither a method nor an id is rejected, so that stray
// output on a shared stream is skipped rather than forwarded.
func Decode(data []byte) (*Message, error) {
	message := &Message{}
	if err := json.Unmarshal(data, message); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	if message.Method == "" && !message.HasId() {
		return nil, fmt.Errorf("frame is not a JSON-RPC message")
	}
	return message, nil
}

// HasId reports whether the envelope carries a non null id member.
func (m *Message) HasId() bool {
	return len(m.Id) > 0 && !bytes.Equal(bytes.TrimSpace(m.Id), nullValue)
}

// IsRequest reports whether the message expects a correlated response.
func (m *Message) IsRequest() bool {
	return m.Method != "" && m.HasId()
}

// IsNotification reports whether the message is a fire and forget call.
func (m *Message) IsNotification() bool {
	return m.Method != "" && !m.HasId()
}

// IsResponse reports whether the message answers a previously issued request.
func (m *Message) IsResponse() bool {
	return m.Method == "" && m.HasId() && (len(m.Result) > 0 || m.Error != nil)
}

// Encode renders the envelope as a single unframed JSON document.
func (m *Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// IdKey returns a stable correlation key for a raw id value. Numeric ids
// match regardless of their textual encoding, so a response carrying 1.0
// still completes a request sent with 1; integral values beyond float64
// precision are preserved exactly.
func IdKey(id json.RawMessage) string {
	decoder := json.NewDecoder(bytes.NewReader(id))
	decoder.UseNumber()
	var value interface{}
	if err := decoder.Decode(&value); err != nil {
		return string(bytes.TrimSpace(id))
	}
	switch actual := value.(type) {
	case json.Number:
		if i, err := actual.Int64(); err == nil {
			return "n:" + strconv.FormatInt(i, 10)
		}
		if f, err := actual.Float64(); err == nil {
			return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
		}
		return "n:" + actual.String()
	case string:
		return "s:" + actual
	default:
		return string(bytes.TrimSpace(id))
	}
}

// NewRequest builds a request frame with the supplied numeric id. A nil
// params value leaves the params member out entirely.
func NewRequest(id int, method string, params interface{}) ([]byte, error) {
	message := &Message{
		Jsonrpc: jsonrpc.Version,
		Id:      json.RawMessage(strconv.Itoa(id)),
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %v params: %w", method, err)
		}
		message.Params = raw
	}
	return message.Encode()
}

// NewNotification builds a notification frame.
func NewNotification(method string, params interface{}) ([]byte, error) {
	message := &Message{
		Jsonrpc: jsonrpc.Version,
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %v params: %w", method, err)
		}
		message.Params = raw
	}
	return message.Encode()
}

// ErrorResponse builds a response frame carrying rpcErr for the given raw id,
// so that a caller sees a well formed answer to its original request even
// when the backend never produced one.
func ErrorResponse(id json.RawMessage, rpcErr *jsonrpc.Error) []byte {
	message := &Message{
		Jsonrpc: jsonrpc.Version,
		Id:      id,
		Error:   rpcErr,
	}
	data, err := json.Marshal(message)
	if err != nil {
		data = []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"failed to encode error response"}}`)
	}
	return data
}

var mcpErrorPrefix = regexp.MustCompile(`^MCP error\s+-?\d+:\s*`)

// CleanErrorMessage strips the transport level "MCP error <code>:" prefix
// some backends prepend to error text, leaving the original message.
func CleanErrorMessage(message string) string {
	return mcpErrorPrefix.ReplaceAllString(message, "")
}
