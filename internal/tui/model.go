package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"siterag/internal/domain"
)

// QueryPort is the TUI-facing subset of the question-answering service.
type QueryPort interface {
	HandleQuery(ctx context.Context, req domain.QueryRequest) (domain.QueryResponse, error)
}

// Options tunes each query sent from the TUI.
type Options struct {
	TopK     int
	MinScore float64
	Timeout  time.Duration
}

type answerMsg struct {
	query string
	resp  domain.QueryResponse
	err   error
}

// Model is the Bubble Tea model for the chat TUI.
type Model struct {
	service  QueryPort
	opts     Options
	input    textinput.Model
	viewport viewport.Model
	resp     *domain.QueryResponse
	summary  string
	status   string
	cursor   int
	ready    bool
	busy     bool
	lastQ    string
}

// New creates a new TUI model instance. summary is shown under the title.
func New(service QueryPort, summary string, opts Options) Model {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the site and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{service: service, opts: opts, input: ti, viewport: vp, summary: summary, status: "Index ready. Ask a question."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderAnswer())
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.resp = nil
		} else {
			resp := msg.resp
			m.resp = &resp
			m.cursor = 0
			m.lastQ = msg.query
			m.status = fmt.Sprintf("Answered %q with %d chunks", msg.query, len(resp.RelevantChunks))
		}
		m.viewport.SetContent(m.renderAnswer())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.input.SetValue("")
			m.status = "Thinking..."
			return m, m.ask(q)
		case "down":
			if n := m.chunkCount(); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.renderAnswer())
				return m, nil
			}
		case "up":
			if n := m.chunkCount(); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.renderAnswer())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(q string) tea.Cmd {
	svc, opts := m.service, m.opts
	return func() tea.Msg {
		ctx := context.Background()
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}
		resp, err := svc.HandleQuery(ctx, domain.QueryRequest{Query: q, TopK: opts.TopK, MinScore: opts.MinScore})
		return answerMsg{query: q, resp: resp, err: err}
	}
}

func (m Model) chunkCount() int {
	if m.resp == nil {
		return 0
	}
	return len(m.resp.RelevantChunks)
}

// View renders the TUI layout and the current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Site QA")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderAnswer() string {
	if m.resp == nil {
		return "No answer yet."
	}
	var b strings.Builder
	b.WriteString(answerStyle.Render(m.resp.Answer))
	if m.resp.ShortTermMemory != "" {
		b.WriteString("\n\n" + memoryStyle.Render("Follow-up of: "+m.resp.ShortTermMemory))
	}
	if e := m.resp.LongTermMemory.Entry; e != nil {
		b.WriteString("\n" + memoryStyle.Render("Recalled topic: "+e.TopicLabel))
	}
	chunks := m.resp.RelevantChunks
	if len(chunks) == 0 {
		b.WriteString("\n\nNo chunks passed the score threshold.")
		return b.String()
	}
	c := chunks[m.cursor]
	fmt.Fprintf(&b, "\n\nChunk %d/%d  score=%.3f  %s", m.cursor+1, len(chunks), c.Score, c.SourceURL)
	b.WriteString("\n" + highlightBestSentence(c.Text, m.lastQ))
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	answerStyle    = lipgloss.NewStyle().Bold(true)
	memoryStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasizes the sentence sharing the most words
// with the query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
