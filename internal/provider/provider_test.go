package provider

import (
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/pellucid/hearth/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestParseModelString(t *testing.T) {
	tests := []struct {
		input        string
		wantProvider string
		wantModel    string
	}{
		{"anthropic/claude-3-opus", "anthropic", "claude-3-opus"},
		{"openai/gpt-4o", "openai", "gpt-4o"},
		{"claude-3-opus", "", "claude-3-opus"},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			provider, model := ParseModelString(tt.input)
			assert.Equal(t, tt.wantProvider, provider)
			assert.Equal(t, tt.wantModel, model)
		})
	}
}

func TestModelPriority(t *testing.T) {
	tests := []struct {
		modelID        string
		wantHigherThan string
	}{
		{"gpt-5-turbo", "claude-sonnet-4-latest"},
		{"claude-sonnet-4-20250514", "gpt-4o-2024"},
		{"claude-opus-4", "gpt-4o"},
		{"gpt-4o-latest", "claude-3-5-sonnet"},
	}

	for _, tt := range tests {
		t.Run(tt.modelID+" > "+tt.wantHigherThan, func(t *testing.T) {
			assert.Greater(t, modelPriority(tt.modelID), modelPriority(tt.wantHigherThan))
		})
	}
}

func TestConvertToEinoTools(t *testing.T) {
	tools := []ToolInfo{
		{
			Name:        "send_email",
			Description: "Sends an email",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"to": {"type": "string", "description": "Recipient"},
					"attempts": {"type": "integer", "description": "Retry count"}
				},
				"required": ["to"]
			}`),
		},
	}

	result := ConvertToEinoTools(tools)

	require := assert.New(t)
	require.Len(result, 1)
	require.Equal("send_email", result[0].Name)
	require.Equal("Sends an email", result[0].Desc)
}

func TestParseJSONSchemaToParams(t *testing.T) {
	schemaJSON := json.RawMessage(`{
		"type": "object",
		"properties": {
			"stringParam": {"type": "string", "description": "A string"},
			"intParam": {"type": "integer", "description": "An integer"},
			"boolParam": {"type": "boolean", "description": "A boolean"}
		},
		"required": ["stringParam", "intParam"]
	}`)

	params := parseJSONSchemaToParams(schemaJSON)
	require := assert.New(t)
	require.NotNil(params)

	require.Equal(schema.String, params["stringParam"].Type)
	require.True(params["stringParam"].Required)

	require.Equal(schema.Integer, params["intParam"].Type)
	require.True(params["intParam"].Required)

	require.Equal(schema.Boolean, params["boolParam"].Type)
	require.False(params["boolParam"].Required)
}

func TestParseJSONSchemaToParamsInvalidJSON(t *testing.T) {
	result := parseJSONSchemaToParams(json.RawMessage(`invalid json`))
	assert.Nil(t, result)
}

func TestParseJSONSchemaToParamsEmptySchema(t *testing.T) {
	result := parseJSONSchemaToParams(json.RawMessage(`{}`))
	assert.NotNil(t, result)
	assert.Empty(t, result)
}

func TestToEinoMessage(t *testing.T) {
	cases := []struct {
		role types.MessageRole
		want schema.RoleType
	}{
		{types.RoleUser, schema.User},
		{types.RoleAssistant, schema.Assistant},
		{types.RoleSystem, schema.System},
	}
	for _, c := range cases {
		m := ToEinoMessage(types.Message{Role: c.role, Content: "hi"})
		assert.Equal(t, c.want, m.Role)
		assert.Equal(t, "hi", m.Content)
	}
}

func TestToEinoMessagesPrependsSystemPrompt(t *testing.T) {
	messages := []types.Message{
		{Role: types.RoleUser, Content: "hello"},
		{Role: types.RoleAssistant, Content: "hi there"},
	}

	result := ToEinoMessages("be nice", messages)

	require := assert.New(t)
	require.Len(result, 3)
	require.Equal(schema.System, result[0].Role)
	require.Equal("be nice", result[0].Content)
	require.Equal(schema.User, result[1].Role)
	require.Equal(schema.Assistant, result[2].Role)
}

func TestToEinoMessagesNoSystemPrompt(t *testing.T) {
	result := ToEinoMessages("", []types.Message{{Role: types.RoleUser, Content: "hi"}})
	assert.Len(t, result, 1)
}

func TestToolResultMessage(t *testing.T) {
	m := ToolResultMessage("call-123", "42 degrees")
	assert.Equal(t, schema.Tool, m.Role)
	assert.Equal(t, "call-123", m.ToolCallID)
	assert.Equal(t, "42 degrees", m.Content)
}
