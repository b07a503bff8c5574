// ABOUTME: Transcript export rendering for chats
// ABOUTME: Supports text, markdown, JSON, and HTML output formats

package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/mcpconnect/internal/store"
)

// Format identifies a transcript output format.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
)

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "html":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unknown export format: %q", s)
	}
}

// ContentType returns the MIME type for HTTP responses in this format.
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Extension returns the file extension (without dot) for this format.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatJSON:
		return "json"
	case FormatHTML:
		return "html"
	default:
		return "txt"
	}
}

// Transcript bundles everything needed to render an export of one chat.
type Transcript struct {
	Connection *store.Connection
	Chat       store.Chat
	Messages   []store.Message
	Usage      *store.ChatUsage
}

// Render produces the transcript in the requested format.
func Render(format Format, t Transcript) ([]byte, error) {
	switch format {
	case FormatText:
		return renderText(t), nil
	case FormatMarkdown:
		return renderMarkdown(t), nil
	case FormatJSON:
		return renderJSON(t)
	case FormatHTML:
		return renderHTML(t)
	default:
		return nil, fmt.Errorf("unknown export format: %q", format)
	}
}

func speakerLabel(m store.Message) string {
	if m.IsUser {
		return "User"
	}
	switch m.Kind {
	case store.MessageKindTool:
		return "Tool"
	case store.MessageKindError:
		return "Error"
	default:
		return "Assistant"
	}
}

func renderText(t Transcript) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Chat: %s\n", t.Chat.Title)
	if t.Connection != nil {
		fmt.Fprintf(&b, "Connection: %s\n", t.Connection.Name)
	}
	fmt.Fprintf(&b, "Exported: %s\n", time.Now().UTC().Format(time.RFC3339))
	b.WriteString("\n")

	for _, m := range t.Messages {
		fmt.Fprintf(&b, "[%s] %s\n", speakerLabel(m), m.Content)
		if m.Kind == store.MessageKindTool && m.ToolName != "" {
			fmt.Fprintf(&b, "    tool: %s (%s)\n", m.ToolName, m.ToolStatus)
		}
		b.WriteString("\n")
	}

	if t.Usage != nil {
		fmt.Fprintf(&b, "Tokens: %d prompt, %d completion, %d total\n",
			t.Usage.PromptTokens, t.Usage.CompletionTokens, t.Usage.TotalTokens)
	}
	return []byte(b.String())
}

func renderMarkdown(t Transcript) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", t.Chat.Title)
	if t.Connection != nil {
		fmt.Fprintf(&b, "**Connection:** %s\n\n", t.Connection.Name)
	}
	fmt.Fprintf(&b, "_Exported %s_\n\n", time.Now().UTC().Format(time.RFC3339))

	for _, m := range t.Messages {
		fmt.Fprintf(&b, "## %s\n\n", speakerLabel(m))
		b.WriteString(m.Content)
		b.WriteString("\n\n")
		if m.Kind == store.MessageKindTool && m.ToolName != "" {
			fmt.Fprintf(&b, "> Tool `%s` (%s)\n\n", m.ToolName, m.ToolStatus)
			if m.ToolResult != "" {
				fmt.Fprintf(&b, "```json\n%s\n```\n\n", m.ToolResult)
			}
		}
	}

	if t.Usage != nil {
		fmt.Fprintf(&b, "---\n\nTokens: %d prompt / %d completion / %d total\n",
			t.Usage.PromptTokens, t.Usage.CompletionTokens, t.Usage.TotalTokens)
	}
	return []byte(b.String())
}

// jsonExport is the stable JSON shape for exported transcripts.
type jsonExport struct {
	Chat       store.Chat        `json:"chat"`
	Connection *store.Connection `json:"connection,omitempty"`
	Messages   []store.Message   `json:"messages"`
	Usage      *store.ChatUsage  `json:"usage,omitempty"`
	ExportedAt time.Time         `json:"exported_at"`
}

func renderJSON(t Transcript) ([]byte, error) {
	out := jsonExport{
		Chat:       t.Chat,
		Connection: t.Connection,
		Messages:   t.Messages,
		Usage:      t.Usage,
		ExportedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling transcript: %w", err)
	}
	return data, nil
}

func renderHTML(t Transcript) ([]byte, error) {
	// Render the markdown form, then convert the message bodies to HTML.
	var body bytes.Buffer
	if err := goldmark.Convert(renderMarkdown(t), &body); err != nil {
		return nil, fmt.Errorf("converting markdown: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(t.Chat.Title))
	b.WriteString("<meta charset=\"utf-8\">\n</head>\n<body>\n")
	b.Write(body.Bytes())
	b.WriteString("</body>\n</html>\n")
	return b.Bytes(), nil
}
