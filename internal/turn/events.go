package turn

import (
	"errors"

	"github.com/pellucid/hearth/internal/apperr"
)

// Event is the single shape serialized as one SSE `data: <json>` frame.
// Only the fields relevant to a given frame are populated; the others are
// omitted from JSON via omitempty. This mirrors the teacher's SDKEvent
// wrapper in internal/server/sse.go, simplified to one flat struct since
// this domain's frame kinds (content/tool_call/tool_result/info/
// memory_task/error) carry far fewer variants than the TUI's part types.
type Event struct {
	// ID is a monotonic ulid the transport stamps on each frame so a
	// client buffering out-of-order deliveries (e.g. over a reconnecting
	// transport) can re-sort by arrival order. Orchestrator code never
	// sets this; only the SSE writer does, right before serializing.
	ID string `json:"id,omitempty"`

	// Content frames omit Type entirely — {"content": "..."}.
	Content string `json:"content,omitempty"`

	Type string `json:"type,omitempty"`

	ToolCall *ToolCallPayload `json:"toolCall,omitempty"`

	ToolName string         `json:"toolName,omitempty"`
	Result   string         `json:"result,omitempty"`
	ServerID string         `json:"serverId,omitempty"`
	Accounts []string       `json:"accounts,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	Message string `json:"message,omitempty"`

	Status string `json:"status,omitempty"`
	Count  *int   `json:"count,omitempty"`
}

// ToolCallPayload is the {name, args} shape of a tool_call frame.
type ToolCallPayload struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

func ContentEvent(content string) Event {
	return Event{Content: content}
}

func ToolCallEvent(name string, args map[string]any) Event {
	return Event{Type: "tool_call", ToolCall: &ToolCallPayload{Name: name, Args: args}}
}

func ToolResultEvent(toolName, result, serverID string, accounts []string, metadata map[string]any) Event {
	return Event{
		Type:     "tool_result",
		ToolName: toolName,
		Result:   result,
		ServerID: serverID,
		Accounts: accounts,
		Metadata: metadata,
	}
}

func InfoEvent(message string) Event {
	return Event{Type: "info", Message: message}
}

func MemoryTaskStarted() Event {
	return Event{Type: "memory_task", Status: "started"}
}

func MemoryTaskCompleted(count int) Event {
	return Event{Type: "memory_task", Status: "completed", Count: &count}
}

// ErrorEvent builds the terminal `error` SSE frame. spec.md §7 lists error
// kinds as the values that "surface in error.message or SSE error frames",
// so an *apperr.Error's machine-readable Kind is what fills Message (e.g.
// "role_busy"), not its human-readable prose — a client branches on this
// string without parsing free text. Any underlying detail is still
// available to the caller via the returned error from Run itself; errors
// that aren't an *apperr.Error (which shouldn't happen in practice, since
// every orchestrator failure is constructed via the apperr package) fall
// back to their own Error() text.
func ErrorEvent(err error) Event {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return Event{Type: "error", Message: string(ae.Kind)}
	}
	return Event{Type: "error", Message: err.Error()}
}
