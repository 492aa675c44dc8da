// Package tui is the terminal chat client: it indexes one CSV file and then
// answers questions about it.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/0xcro3dile/lograg-go/internal/domain/entities"
	"github.com/0xcro3dile/lograg-go/internal/domain/usecases"
)

// SessionPort is the TUI-facing subset of the session.
type SessionPort interface {
	UploadFile(ctx context.Context, path string) error
	Ask(ctx context.Context, question string) (*entities.ChatTurn, error)
	Snapshot() usecases.Snapshot
}

const pollInterval = 200 * time.Millisecond

type (
	ingestDoneMsg struct{ err error }
	answerMsg     struct {
		question string
		turn     *entities.ChatTurn
		err      error
	}
	tickMsg time.Time
)

type entry struct {
	question string
	answer   string
	rows     entities.RetrievalResult
	err      error
}

// Model is the Bubble Tea model for the chat client.
type Model struct {
	ctx      context.Context
	session  SessionPort
	path     string
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	transcript []entry
	status     string
	ingesting  bool
	thinking   bool
	ready      bool
	showRows   bool
}

// New creates a model that starts indexing path as soon as the program runs.
func New(ctx context.Context, session SessionPort, path string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the log file and press Enter"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:       ctx,
		session:   session,
		path:      path,
		input:     ti,
		viewport:  viewport.New(0, 0),
		spinner:   sp,
		status:    "Indexing " + path + "...",
		ingesting: true,
	}
}

// Init starts ingestion, progress polling and the cursor blink.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.ingestCmd(), tick())
}

func (m Model) ingestCmd() tea.Cmd {
	return func() tea.Msg {
		return ingestDoneMsg{err: m.session.UploadFile(m.ctx, m.path)}
	}
}

func (m Model) askCmd(question string) tea.Cmd {
	return func() tea.Msg {
		turn, err := m.session.Ask(m.ctx, question)
		return answerMsg{question: question, turn: turn, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles key, window and async result messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + 1 + ih + th // header + status, help, boxes
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.input.Width = max(10, msg.Width-6)
		m.refresh()
		return m, nil

	case tickMsg:
		if !m.ingesting {
			return m, nil
		}
		m.status = progressLine(m.path, m.session.Snapshot().Progress)
		return m, tick()

	case ingestDoneMsg:
		m.ingesting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		snap := m.session.Snapshot()
		m.status = fmt.Sprintf("%s ready: %d rows indexed with %s", m.path, snap.RowsIndexed, snap.EmbeddingModel)
		if snap.Warnings > 0 {
			m.status += fmt.Sprintf(" (%d rows skipped)", snap.Warnings)
		}
		return m, nil

	case answerMsg:
		m.thinking = false
		e := entry{question: msg.question, err: msg.err}
		if msg.turn != nil {
			e.answer = msg.turn.Answer
			e.rows = msg.turn.Retrieved
		}
		m.transcript = append(m.transcript, e)
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Answered from %d rows", len(e.rows))
		}
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlR:
			m.showRows = !m.showRows
			m.refresh()
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.thinking {
				return m, nil
			}
			if m.ingesting {
				m.status = "Still indexing, wait for the file to be ready"
				return m, nil
			}
			m.input.Reset()
			m.thinking = true
			m.status = "Thinking..."
			return m, m.askCmd(q)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("LogRAG") + " " + dimStyle.Render(m.path)
	status := statusStyle.Render(m.status)
	if m.ingesting || m.thinking {
		status = m.spinner.View() + " " + status
	}
	help := dimStyle.Render("enter: ask  ctrl+r: toggle rows  pgup/pgdn: scroll  esc: quit")
	return header + "\n" +
		transcriptBoxStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		status + "\n" + help
}

func (m *Model) refresh() {
	m.viewport.SetContent(renderTranscript(m.transcript, m.showRows, m.viewport.Width))
}

func renderTranscript(entries []entry, showRows bool, width int) string {
	if len(entries) == 0 {
		return dimStyle.Render("No questions yet.")
	}
	wrap := lipgloss.NewStyle().Width(max(10, width-2))
	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(questionStyle.Render("Q: "+e.question) + "\n")
		if e.err != nil {
			sb.WriteString(errorStyle.Render(wrap.Render(e.err.Error())) + "\n")
			continue
		}
		sb.WriteString(wrap.Render(e.answer) + "\n")
		if showRows {
			for _, r := range e.rows {
				// Same id the model cites in its answer.
				line := fmt.Sprintf("[row %d] %.3f (source row %d) %s", r.Row.ID, r.Score, r.Row.SourceRowIndex, r.Row.Text)
				sb.WriteString(dimStyle.Render(wrap.Render(line)) + "\n")
			}
		}
	}
	return sb.String()
}

func progressLine(path string, p entities.Progress) string {
	const width = 20
	filled := int(p.Fraction() * width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("Indexing %s %s %d/%d rows", path, bar, p.RowsDone, p.RowsTotal)
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	dimStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
