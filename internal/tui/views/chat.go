// Package views provides TUI view components for the skiff application.
package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/berth-dev/skiff/internal/bridge"
	"github.com/berth-dev/skiff/internal/session"
	"github.com/berth-dev/skiff/internal/tui"
)

// maxToolOutputLines limits how much of a tool result is shown inline.
const maxToolOutputLines = 8

// ============================================================================
// Message Types
// ============================================================================

// SendChatMsg is sent when the user submits a prompt.
type SendChatMsg struct {
	Content string
}

// ============================================================================
// ChatModel
// ============================================================================

// ChatModel is the view model for the conversation screen.
type ChatModel struct {
	messages []session.Message
	title    string
	mode     string
	theme    string

	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	rendered map[string]string // assistant message id -> rendered markdown

	isLoading bool
	width     int
	height    int
}

// NewChatModel creates a ChatModel showing sess.
func NewChatModel(sess *session.Session, theme string, width, height int) ChatModel {
	ta := textarea.New()
	ta.Placeholder = "Ask anything... (Enter to send)"
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(3)

	// Enter submits; ctrl+j inserts a newline.
	keyMap := ta.KeyMap
	keyMap.InsertNewline = tui.DefaultKeyMap.NewLine
	ta.KeyMap = keyMap
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED"))

	m := ChatModel{
		theme:    theme,
		textarea: ta,
		viewport: viewport.New(width, height),
		spinner:  sp,
		rendered: make(map[string]string),
	}
	m.SetSession(sess)
	m.resize(width, height)
	return m
}

// Init returns the initial command for the chat view.
func (m ChatModel) Init() tea.Cmd {
	return textarea.Blink
}

// SetSession replaces the transcript with a snapshot of sess.
func (m *ChatModel) SetSession(sess *session.Session) {
	m.title = sess.Title
	m.mode = sess.Settings.PermissionMode
	m.messages = append([]session.Message(nil), sess.Messages...)
	m.refresh()
}

// SetMode updates the permission mode badge.
func (m *ChatModel) SetMode(mode string) {
	m.mode = mode
}

// SetLoading toggles the in-flight indicator. While loading the prompt is
// not editable.
func (m *ChatModel) SetLoading(loading bool) tea.Cmd {
	m.isLoading = loading
	if loading {
		m.textarea.Blur()
		return m.spinner.Tick
	}
	return m.textarea.Focus()
}

// Loading reports whether a query is in flight.
func (m ChatModel) Loading() bool {
	return m.isLoading
}

// AddPrompt shows a submitted prompt before the bridge echoes any output.
func (m *ChatModel) AddPrompt(text string) {
	m.messages = append(m.messages, session.Message{Kind: session.KindUser, Content: text})
	m.refresh()
}

// AddUpdates appends streamed messages in arrival order.
func (m *ChatModel) AddUpdates(updates []bridge.Update) {
	for _, u := range updates {
		m.messages = append(m.messages, u.Message)
	}
	m.refresh()
}

// LastAssistantText returns the most recent assistant reply shown.
func (m ChatModel) LastAssistantText() string {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Kind == session.KindAssistant {
			return m.messages[i].Content
		}
	}
	return ""
}

// Update handles messages for the chat view.
func (m ChatModel) Update(msg tea.Msg) (ChatModel, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == tui.KeyEnter && !m.isLoading {
			content := strings.TrimSpace(m.textarea.Value())
			if content == "" {
				return m, nil
			}
			m.textarea.Reset()
			return m, func() tea.Msg { return SendChatMsg{Content: content} }
		}
		if key.Matches(msg, tui.DefaultKeyMap.Up, tui.DefaultKeyMap.Down) && m.isLoading {
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	}

	if !m.isLoading {
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// View renders the chat view.
func (m ChatModel) View() string {
	var b strings.Builder

	header := lipgloss.JoinHorizontal(lipgloss.Center,
		tui.TitleStyle.Render(m.title), " ", tui.ModeBadge(m.mode))
	b.WriteString(header)
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.isLoading {
		b.WriteString(fmt.Sprintf("%s Working... %s", m.spinner.View(), tui.DimStyle.Render("(esc to cancel)")))
		b.WriteString("\n")
		b.WriteString(tui.DimStyle.Render(m.textarea.View()))
	} else {
		b.WriteString("\n")
		b.WriteString(m.textarea.View())
	}
	b.WriteString("\n")
	b.WriteString(tui.DimStyle.Render(helpLine(tui.DefaultKeyMap.ChatHelp())))
	return b.String()
}

func (m *ChatModel) resize(width, height int) {
	m.width = width
	m.height = height

	// header (2), status (1), textarea (3), help (1), spacing (2)
	vpHeight := height - 9
	if vpHeight < 3 {
		vpHeight = 3
	}
	vpWidth := width
	if vpWidth < 20 {
		vpWidth = 20
	}
	m.viewport.Width = vpWidth
	m.viewport.Height = vpHeight
	m.textarea.SetWidth(vpWidth)

	m.renderer = newRenderer(m.theme, vpWidth-2)
	clear(m.rendered)
	m.refresh()
}

func (m *ChatModel) refresh() {
	atBottom := m.viewport.AtBottom() || m.viewport.TotalLineCount() == 0
	m.viewport.SetContent(FormatTranscript(m.messages, m.markdown))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *ChatModel) markdown(msg session.Message) string {
	if m.renderer == nil || msg.ID == "" {
		return msg.Content
	}
	if out, ok := m.rendered[msg.ID]; ok {
		return out
	}
	out, err := m.renderer.Render(msg.Content)
	if err != nil {
		return msg.Content
	}
	out = strings.Trim(out, "\n")
	m.rendered[msg.ID] = out
	return out
}

func newRenderer(theme string, width int) *glamour.TermRenderer {
	style := glamour.WithAutoStyle()
	if theme == "light" || theme == "dark" {
		style = glamour.WithStandardStyle(theme)
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return nil
	}
	return r
}

// FormatTranscript renders messages for the viewport. render formats
// assistant text; nil leaves it as is.
func FormatTranscript(messages []session.Message, render func(session.Message) string) string {
	if len(messages) == 0 {
		return tui.DimStyle.Render("No messages yet. Start the conversation!")
	}

	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch msg.Kind {
		case session.KindUser:
			b.WriteString(tui.UserStyle.Render("You: "))
			b.WriteString(msg.Content)

		case session.KindAssistant:
			b.WriteString(tui.AssistantStyle.Render("Claude:"))
			b.WriteString("\n")
			if render != nil {
				b.WriteString(render(msg))
			} else {
				b.WriteString(msg.Content)
			}

		case session.KindToolUse:
			name, input := msg.Content, ""
			if msg.Tool != nil {
				name, input = msg.Tool.Name, string(msg.Tool.Input)
			}
			b.WriteString(tui.ToolStyle.Render("⚙ " + name))
			if input != "" && input != "{}" {
				b.WriteString(" ")
				b.WriteString(tui.DimStyle.Render(input))
			}

		case session.KindToolResult:
			style := tui.DimStyle
			if msg.Tool != nil && msg.Tool.IsError {
				style = tui.ErrorStyle
			}
			b.WriteString(style.Render(indent(truncateLines(msg.Content, maxToolOutputLines), "  ↳ ", "    ")))

		case session.KindResult:
			b.WriteString(resultLine(msg))

		default:
			b.WriteString(tui.DimStyle.Render("· " + msg.Content))
		}
	}
	return b.String()
}

func resultLine(msg session.Message) string {
	if msg.Usage == nil {
		return tui.SuccessStyle.Render("✓ done")
	}
	u := msg.Usage
	parts := []string{fmt.Sprintf("$%.4f", u.CostUSD), humanize.Comma(int64(u.Turns)) + " turns"}
	if u.Tokens > 0 {
		parts = append(parts, humanize.Comma(int64(u.Tokens))+" tokens")
	}
	if u.IsError {
		return tui.ErrorStyle.Render("✗ failed · " + strings.Join(parts, " · "))
	}
	return tui.SuccessStyle.Render("✓ done · " + strings.Join(parts, " · "))
}

func truncateLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n… %d more lines", len(lines)-n)
}

func indent(s, first, rest string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		if i == 0 {
			lines[i] = first + lines[i]
		} else {
			lines[i] = rest + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}

func helpLine(bindings []key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+": "+h.Desc)
	}
	return strings.Join(parts, " · ")
}
