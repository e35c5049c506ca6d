package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mwiater/supportbot/internal/inference"
)

type chatMessage struct {
	Role    string
	Content string
}

// responseMsg carries a completed answer back to the UI.
type responseMsg struct {
	content string
	latency time.Duration
}

// chatErrMsg ends the session with a chat failure.
type chatErrMsg struct{ error }

// model is the Bubble Tea model for the demo chat.
type model struct {
	ctx              context.Context
	chatter          inference.Chatter
	modelName        string
	textArea         textarea.Model
	viewport         viewport.Model
	spinner          spinner.Model
	chatHistory      []chatMessage
	isLoading        bool
	lastLatency      time.Duration
	err              error
	width, height    int
	requestStartTime time.Time
}

func initialModel(ctx context.Context, chatter inference.Chatter, modelName string) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ta := textarea.New()
	ta.Placeholder = "Describe your issue..."
	ta.Focus()
	ta.Prompt = "You: "
	ta.ShowLineNumbers = false
	ta.CharLimit = -1
	ta.SetHeight(1)
	ta.KeyMap.InsertNewline.SetEnabled(false)

	return &model{
		ctx:       ctx,
		chatter:   chatter,
		modelName: modelName,
		textArea:  ta,
		viewport:  viewport.New(100, 5),
		spinner:   s,
	}
}

func chatCmd(ctx context.Context, chatter inference.Chatter, question string) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		response, err := chatter.Chat(ctx, question)
		if err != nil {
			return chatErrMsg{err}
		}
		return responseMsg{content: response, latency: time.Since(start)}
	}
}

func (m *model) Init() tea.Cmd {
	return textarea.Blink
}

// Update is the central update function for the Bubble Tea model.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.isLoading {
				return m, nil
			}
			question := strings.TrimSpace(m.textArea.Value())
			m.textArea.Reset()
			if question == "" {
				return m, nil
			}
			if IsExitCommand(question) {
				return m, tea.Quit
			}
			m.chatHistory = append(m.chatHistory, chatMessage{Role: "user", Content: question})
			m.isLoading = true
			m.requestStartTime = time.Now()
			m.textArea.Blur()
			m.viewport.GotoBottom()
			return m, tea.Batch(m.spinner.Tick, chatCmd(m.ctx, m.chatter, question))
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.textArea.SetWidth(msg.Width - 3)
		headerHeight := 3
		footerHeight := 3
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-footerHeight, 1)

	case responseMsg:
		m.chatHistory = append(m.chatHistory, chatMessage{Role: "assistant", Content: msg.content})
		m.lastLatency = msg.latency
		m.isLoading = false
		m.textArea.Focus()
		m.viewport.GotoBottom()
		return m, nil

	case chatErrMsg:
		m.isLoading = false
		m.err = msg.error
		return m, tea.Quit

	case spinner.TickMsg:
		if !m.isLoading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if !m.isLoading {
		m.textArea, cmd = m.textArea.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}
	if m.err != nil {
		errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(1)
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	var builder strings.Builder
	headerStyle := lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230")).Padding(0, 1)
	help := lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render(" (type quit or press esc to exit)")
	builder.WriteString(headerStyle.Render("Customer Support: "+m.modelName) + help + "\n\n")

	var history strings.Builder
	userStyle := lipgloss.NewStyle().Bold(true)
	assistantStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))
	for _, msg := range m.chatHistory {
		role := userStyle.Render("You: ")
		if msg.Role == "assistant" {
			role = assistantStyle.Render("Assistant: ")
		}
		wrapped := lipgloss.NewStyle().Width(max(m.width-lipgloss.Width(role)-2, 10)).Render(msg.Content)
		history.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, role, wrapped) + "\n")
	}
	m.viewport.SetContent(history.String())
	builder.WriteString(m.viewport.View())

	if m.isLoading {
		timer := fmt.Sprintf("%.1f", time.Since(m.requestStartTime).Seconds())
		builder.WriteString("\n" + m.spinner.View() + fmt.Sprintf(" Assistant is thinking... %ss", timer))
	} else {
		builder.WriteString("\n" + m.textArea.View())
		if m.lastLatency > 0 {
			latencyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
			builder.WriteString("\n" + latencyStyle.Render(fmt.Sprintf("  >>> last answer in %.0fms", float64(m.lastLatency.Microseconds())/1000)))
		}
	}
	return builder.String()
}

// RunTUI runs the Bubble Tea chat until the user exits. A chat failure ends the session and is returned.
func RunTUI(ctx context.Context, chatter inference.Chatter, opts Options) error {
	m := initialModel(ctx, chatter, opts.ModelName)
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(opts.In),
		tea.WithOutput(opts.Out),
	)

	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running program: %w", err)
	}
	if fm, ok := final.(*model); ok && fm.err != nil {
		return fm.err
	}
	return ctx.Err()
}
