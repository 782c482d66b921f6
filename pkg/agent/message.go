package agent

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageKind tags the variants of Message.
type MessageKind string

const (
	KindSystem    MessageKind = "system"
	KindAssistant MessageKind = "assistant"
	KindUser      MessageKind = "user"
	KindResult    MessageKind = "result"
	KindUnknown   MessageKind = "unknown"
)

// Message is one typed event of a session stream.
type Message interface {
	Kind() MessageKind
}

// SystemMessage carries runtime notices such as the session init record.
type SystemMessage struct {
	Subtype string
	Data    map[string]any
}

// AssistantMessage is one model turn.
type AssistantMessage struct {
	Model   string
	Content []Block
}

// UserMessage echoes user input or tool results back into the stream.
type UserMessage struct {
	Content []Block
}

// ResultMessage terminates a session.
type ResultMessage struct {
	Subtype      string   `json:"subtype"`
	SessionID    string   `json:"session_id"`
	TotalCostUSD *float64 `json:"total_cost_usd"`
	NumTurns     int      `json:"num_turns"`
	IsError      bool     `json:"is_error"`
	DurationMS   int64    `json:"duration_ms"`
	Result       string   `json:"result"`
}

// UnknownMessage is any message type this package does not model.
type UnknownMessage struct {
	Type string
	Raw  json.RawMessage
}

func (SystemMessage) Kind() MessageKind    { return KindSystem }
func (AssistantMessage) Kind() MessageKind { return KindAssistant }
func (UserMessage) Kind() MessageKind      { return KindUser }
func (ResultMessage) Kind() MessageKind    { return KindResult }
func (UnknownMessage) Kind() MessageKind   { return KindUnknown }

// Block is one content block of an assistant or user message.
type Block interface {
	BlockType() string
}

// TextBlock is plain model text.
type TextBlock struct {
	Text string
}

// ThinkingBlock is model reasoning text.
type ThinkingBlock struct {
	Thinking string
}

// ToolUseBlock is a tool invocation requested by the model.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResultBlock is the result of a previous tool invocation.
type ToolResultBlock struct {
	ToolUseID string
	Content   any
	IsError   bool
}

func (TextBlock) BlockType() string       { return "text" }
func (ThinkingBlock) BlockType() string   { return "thinking" }
func (ToolUseBlock) BlockType() string    { return "tool_use" }
func (ToolResultBlock) BlockType() string { return "tool_result" }

// SkillName returns the skill referenced by a Skill tool invocation, or ""
// when b is not a skill invocation.
func (b ToolUseBlock) SkillName() string {
	if b.Name != SkillTool {
		return ""
	}
	s, _ := b.Input["skill"].(string)
	return s
}

type wireMessage struct {
	Type    string          `json:"type"`
	Subtype string          `json:"subtype"`
	Message json.RawMessage `json:"message"`
}

type wireContent struct {
	Model   string      `json:"model"`
	Content []wireBlock `json:"content"`
}

type wireBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text"`
	Thinking  string         `json:"thinking"`
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
	ToolUseID string         `json:"tool_use_id"`
	Content   any            `json:"content"`
	IsError   bool           `json:"is_error"`
}

// ParseMessage decodes one line of the runtime's stream-json output.
func ParseMessage(line []byte) (Message, error) {
	var wm wireMessage
	if err := json.Unmarshal(line, &wm); err != nil {
		return nil, fmt.Errorf("decoding stream message: %w", err)
	}

	switch MessageKind(wm.Type) {
	case KindSystem:
		var data map[string]any
		if err := json.Unmarshal(line, &data); err != nil {
			return nil, fmt.Errorf("decoding system message: %w", err)
		}
		return SystemMessage{Subtype: wm.Subtype, Data: data}, nil

	case KindAssistant:
		c, err := decodeContent(wm.Message)
		if err != nil {
			return nil, fmt.Errorf("decoding assistant message: %w", err)
		}
		return AssistantMessage{Model: c.Model, Content: convertBlocks(c.Content)}, nil

	case KindUser:
		c, err := decodeContent(wm.Message)
		if err != nil {
			return nil, fmt.Errorf("decoding user message: %w", err)
		}
		return UserMessage{Content: convertBlocks(c.Content)}, nil

	case KindResult:
		var rm ResultMessage
		if err := json.Unmarshal(line, &rm); err != nil {
			return nil, fmt.Errorf("decoding result message: %w", err)
		}
		return rm, nil

	case "":
		return nil, errors.New("stream message has no type")

	default:
		raw := make(json.RawMessage, len(line))
		copy(raw, line)
		return UnknownMessage{Type: wm.Type, Raw: raw}, nil
	}
}

func decodeContent(raw json.RawMessage) (wireContent, error) {
	var c wireContent
	if len(raw) == 0 {
		return c, errors.New("missing message body")
	}
	var body struct {
		Model   string          `json:"model"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return c, err
	}
	c.Model = body.Model
	if len(body.Content) == 0 {
		return c, nil
	}
	// User messages may carry a bare string instead of content blocks.
	if body.Content[0] == '"' {
		var text string
		if err := json.Unmarshal(body.Content, &text); err != nil {
			return c, err
		}
		c.Content = []wireBlock{{Type: "text", Text: text}}
		return c, nil
	}
	if err := json.Unmarshal(body.Content, &c.Content); err != nil {
		return c, err
	}
	return c, nil
}

func convertBlocks(in []wireBlock) []Block {
	out := make([]Block, 0, len(in))
	for _, b := range in {
		switch b.Type {
		case "text":
			out = append(out, TextBlock{Text: b.Text})
		case "thinking":
			out = append(out, ThinkingBlock{Thinking: b.Thinking})
		case "tool_use":
			out = append(out, ToolUseBlock{ID: b.ID, Name: b.Name, Input: b.Input})
		case "tool_result":
			out = append(out, ToolResultBlock{ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError})
		}
	}
	return out
}
