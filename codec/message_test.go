package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/jsonrpc"
)

func TestDecode(t *testing.T) {
	testCases := []struct {
		description    string
		input          string
		expectErr      bool
		isRequest      bool
		isNotification bool
		isResponse     bool
	}{
		{
			description: "request with id and method",
			input:       `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
			isRequest:   true,
		},
		{
			description:    "notification without id",
			input:          `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			isNotification: true,
		},
		{
			description: "response with result",
			input:       `{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`,
			isResponse:  true,
		},
		{
			description: "response with error",
			input:       `{"jsonrpc":"2.0","id":"abc","error":{"code":-32000,"message":"boom"}}`,
			isResponse:  true,
		},
		{
			description: "null id counts as absent",
			input:       `{"jsonrpc":"2.0","id":null,"method":"ping"}`,
			isRequest:   false,

			isNotification: true,
		},
		{
			description: "well formed JSON that is not JSON-RPC",
			input:       `{"status":"accepted"}`,
			expectErr:   true,
		},
		{
			description: "invalid JSON",
			input:       `not json at all`,
			expectErr:   true,
		},
	}

	for _, testCase := range testCases {
		message, err := Decode([]byte(testCase.input))
		if testCase.expectErr {
			assert.Error(t, err, testCase.description)
			continue
		}
		if !assert.NoError(t, err, testCase.description) {
			continue
		}
		assert.Equal(t, testCase.isRequest, message.IsRequest(), testCase.description)
		assert.Equal(t, testCase.isNotification, message.IsNotification(), testCase.description)
		assert.Equal(t, testCase.isResponse, message.IsResponse(), testCase.description)
	}
}

func TestIdKey(t *testing.T) {
	// Numeric ids correlate across textual encodings, string ids stay
	// distinct from numbers with the same digits.
	assert.Equal(t, IdKey(json.RawMessage(`1`)), IdKey(json.RawMessage(`1.0`)))
	assert.Equal(t, IdKey(json.RawMessage(`42`)), IdKey(json.RawMessage(`42`)))
	assert.NotEqual(t, IdKey(json.RawMessage(`42`)), IdKey(json.RawMessage(`"42"`)))
	assert.NotEqual(t, IdKey(json.RawMessage(`"a"`)), IdKey(json.RawMessage(`"b"`)))

	// Large integral ids beyond float64 precision stay exact.
	assert.NotEqual(t, IdKey(json.RawMessage(`9007199254740993`)), IdKey(json.RawMessage(`9007199254740992`)))
}

func TestNewRequest(t *testing.T) {
	frame, err := NewRequest(7, "initialize", map[string]string{"k": "v"})
	require.NoError(t, err)
	message, err := Decode(frame)
	require.NoError(t, err)
	assert.True(t, message.IsRequest())
	assert.Equal(t, jsonrpc.Version, message.Jsonrpc)
	assert.Equal(t, "initialize", message.Method)
	assert.Equal(t, "n:7", IdKey(message.Id))
	assert.JSONEq(t, `{"k":"v"}`, string(message.Params))
}

func TestNewNotification(t *testing.T) {
	frame, err := NewNotification("notifications/initialized", nil)
	require.NoError(t, err)
	message, err := Decode(frame)
	require.NoError(t, err)
	assert.True(t, message.IsNotification())
	assert.Empty(t, message.Params)
}

func TestErrorResponse(t *testing.T) {
	frame := ErrorResponse(json.RawMessage(`"42"`), jsonrpc.NewError(-32001, "boom", nil))
	message, err := Decode(frame)
	require.NoError(t, err)
	assert.True(t, message.IsResponse())
	assert.Equal(t, `"42"`, string(message.Id))
	require.NotNil(t, message.Error)
	assert.Equal(t, -32001, message.Error.Code)
	assert.Equal(t, "boom", message.Error.Message)
}

func TestCleanErrorMessage(t *testing.T) {
	testCases := []struct {
		input  string
		expect string
	}{
		{"MCP error -32001: boom", "boom"},
		{"MCP error 100: no space left", "no space left"},
		{"boom", "boom"},
		{"error -32001: boom", "error -32001: boom"},
		{"MCP error -32001:", ""},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.expect, CleanErrorMessage(testCase.input), testCase.input)
	}
}
