package session

import (
	"fmt"
	"html/template"
	"io"
	"strings"
)

// Export formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// ExportFormats lists the formats accepted by Export.
var ExportFormats = []string{FormatJSON, FormatMarkdown, FormatHTML}

// Export loads the session with the given id and writes it to w in format.
func (s *FileStore) Export(id, format string, w io.Writer) error {
	sess, err := s.Load(id)
	if err != nil {
		return err
	}
	return Write(sess, format, w)
}

// Write renders sess to w in the given format.
func Write(sess *Session, format string, w io.Writer) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		data, err := Marshal(sess)
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	case FormatMarkdown, "md":
		return writeMarkdown(sess, w)
	case FormatHTML:
		return htmlTemplate.Execute(w, sess)
	}
	return fmt.Errorf("unknown export format %q (want one of %s)", format, strings.Join(ExportFormats, ", "))
}

// Label returns the display label for a message kind.
func (k Kind) Label() string {
	switch k {
	case KindUser:
		return "User"
	case KindAssistant:
		return "Assistant"
	case KindToolUse:
		return "Tool use"
	case KindToolResult:
		return "Tool result"
	case KindResult:
		return "Result"
	default:
		return "System"
	}
}

func writeMarkdown(sess *Session, w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", sess.Title)
	fmt.Fprintf(&b, "Created: %s\n", sess.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Updated: %s\n", sess.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Cost: $%.4f · Turns: %d\n\n", sess.TotalCost, sess.TotalTurns)

	for _, m := range sess.Messages {
		fmt.Fprintf(&b, "## %s\n\n", m.Kind.Label())
		switch m.Kind {
		case KindToolUse:
			if m.Tool != nil {
				fmt.Fprintf(&b, "`%s`\n\n```json\n%s\n```\n\n", m.Tool.Name, string(m.Tool.Input))
			}
		case KindToolResult:
			if m.Tool != nil {
				fmt.Fprintf(&b, "```\n%s\n```\n\n", m.Tool.Output)
			}
		default:
			if m.Content != "" {
				fmt.Fprintf(&b, "%s\n\n", m.Content)
			}
		}
		fmt.Fprintf(&b, "*%s*\n\n---\n\n", m.Timestamp.Local().Format("15:04:05"))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

var htmlTemplate = template.Must(template.New("session").Funcs(template.FuncMap{
	"clock": func(m Message) string { return m.Timestamp.Local().Format("15:04:05") },
	"stamp": func(s *Session, updated bool) string {
		if updated {
			return s.UpdatedAt.Local().Format("2006-01-02 15:04:05")
		}
		return s.CreatedAt.Local().Format("2006-01-02 15:04:05")
	},
	"input": func(m Message) string {
		if m.Tool == nil {
			return ""
		}
		return string(m.Tool.Input)
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: sans-serif; max-width: 800px; margin: 0 auto; padding: 20px; }
        .message { margin: 20px 0; padding: 15px; border-radius: 10px; white-space: pre-wrap; }
        .user { background-color: #e3f2fd; }
        .assistant { background-color: #f5f5f5; }
        .tool_use, .tool_result { background-color: #fff8e1; font-family: monospace; }
        .system, .result { color: #666; }
        .timestamp { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <h1>{{.Title}}</h1>
    <p>Created: {{stamp . false}}</p>
    <p>Updated: {{stamp . true}}</p>
    <p>Cost: ${{printf "%.4f" .TotalCost}} · Turns: {{.TotalTurns}}</p>
    <hr>
{{- range .Messages}}
    <div class="message {{.Kind}}">
        <strong>{{.Kind.Label}}</strong>
        {{- if .Tool}}{{if .Tool.Name}}
        <p>{{.Tool.Name}} {{input .}}</p>{{end}}{{if .Tool.Output}}
        <p>{{.Tool.Output}}</p>{{end}}{{end}}
        {{- if .Content}}
        <p>{{.Content}}</p>{{end}}
        <span class="timestamp">{{clock .}}</span>
    </div>
{{- end}}
</body>
</html>
`))
