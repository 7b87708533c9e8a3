package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/latebit/wikihop/internal/config"
	"github.com/latebit/wikihop/internal/logging"
	"github.com/latebit/wikihop/internal/progress"
	"github.com/latebit/wikihop/internal/search"
	"github.com/latebit/wikihop/internal/session"
)

type focus int

const (
	focusSource focus = iota
	focusGoal
	focusViewport
)

const headerHeight = 3 // source, goal, divider

type model struct {
	source   textinput.Model
	goal     textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	focus    focus

	sess *session.Session
	sink *progress.FileSink

	running bool
	cancel  context.CancelFunc
	seq     uint64
	rounds  chan roundMsg
	stats   search.Stats
	result  *search.Result
	err     error

	pendingBody string
	width       int
	height      int
	ready       bool
}

// roundMsg carries the stats of a finished round of search seq.
type roundMsg struct {
	seq   uint64
	stats search.Stats
}

// searchDone is sent when search seq returns.
type searchDone struct {
	seq uint64
	res *search.Result
	err error
}

func newInput(prompt, placeholder, value string) textinput.Model {
	ti := textinput.New()
	ti.Prompt = prompt
	ti.Placeholder = placeholder
	ti.SetValue(value)
	return ti
}

func initialModel(source, goal string, sess *session.Session, sink *progress.FileSink) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	m := model{
		source:      newInput(" Source: ", "https://host/wiki/Page", source),
		goal:        newInput(" Goal:   ", "https://host/wiki/Other_page", goal),
		spinner:     sp,
		focus:       focusSource,
		sess:        sess,
		sink:        sink,
		pendingBody: welcomeMarkdown(),
	}
	m.source.Focus()
	return m
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if m.ready {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		footerHeight := 1 // status bar
		viewportHeight := max(1, m.height-headerHeight-footerHeight)

		if !m.ready {
			m.viewport = viewport.New(m.width, viewportHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = viewportHeight
		}
		if m.pendingBody != "" {
			m.setContent(m.pendingBody)
			m.pendingBody = ""
		}
		m.source.Width = m.width - 12
		m.goal.Width = m.width - 12
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case roundMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.stats = msg.stats
		return m, waitForRound(m.rounds)

	case searchDone:
		if msg.seq != m.seq {
			return m, nil
		}
		m.running = false
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.result, m.err = msg.res, msg.err
		if msg.res != nil {
			m.stats = msg.res.Stats
			m.setContent(resultMarkdown(msg.res))
		} else {
			m.setContent(errorMarkdown(msg.err))
		}
		m.focusViewport()
		return m, nil
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit
	case tea.KeyTab:
		return m.cycleFocus(), textinput.Blink
	case tea.KeyEscape:
		if m.running && m.cancel != nil {
			m.cancel()
			return m, nil
		}
	}

	if m.focus == focusViewport {
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "enter":
			return m.startSearch()
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if msg.Type == tea.KeyEnter {
		return m.startSearch()
	}
	var cmd tea.Cmd
	if m.focus == focusSource {
		m.source, cmd = m.source.Update(msg)
	} else {
		m.goal, cmd = m.goal.Update(msg)
	}
	return m, cmd
}

func (m model) cycleFocus() model {
	m.source.Blur()
	m.goal.Blur()
	m.focus = (m.focus + 1) % 3
	switch m.focus {
	case focusSource:
		m.source.Focus()
	case focusGoal:
		m.goal.Focus()
	}
	return m
}

func (m *model) focusViewport() {
	m.focus = focusViewport
	m.source.Blur()
	m.goal.Blur()
}

func (m *model) setContent(md string) {
	if !m.ready {
		m.pendingBody = md
		return
	}
	rendered, err := renderMarkdown(md, m.width)
	if err != nil {
		rendered = md
	}
	m.viewport.SetContent(rendered)
	m.viewport.GotoTop()
}

// startSearch cancels any running search and starts a new one from the
// current inputs. Round stats flow back through a channel drained by
// waitForRound.
func (m model) startSearch() (tea.Model, tea.Cmd) {
	source := strings.TrimSpace(m.source.Value())
	goal := strings.TrimSpace(m.goal.Value())
	if source == "" || goal == "" {
		m.err = errors.New("source and goal are required")
		m.setContent(errorMarkdown(m.err))
		return m, nil
	}

	if m.cancel != nil {
		m.cancel()
	}
	m.seq++
	seq := m.seq
	ctx, cancel := context.WithCancel(context.Background())
	rounds := make(chan roundMsg, 16)

	m.cancel = cancel
	m.rounds = rounds
	m.running = true
	m.result, m.err = nil, nil
	m.stats = search.Stats{}
	m.setContent(runningMarkdown(source, goal))
	m.focusViewport()

	sess, sink := m.sess, m.sink
	opts := sess.Options(func(st search.Stats) {
		if sink != nil {
			sink.Report(st)
		}
		// Drop updates the UI has not caught up with; the next one supersedes them.
		select {
		case rounds <- roundMsg{seq: seq, stats: st}:
		default:
		}
	})
	run := func() tea.Msg {
		defer close(rounds)
		res, err := sess.Search(ctx, source, goal, opts)
		return searchDone{seq: seq, res: res, err: err}
	}
	return m, tea.Batch(run, waitForRound(rounds), m.spinner.Tick)
}

// waitForRound returns a command that delivers the next round update, or
// nothing once the search has finished.
func waitForRound(ch <-chan roundMsg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder

	inputStyle := lipgloss.NewStyle().Width(m.width)
	for _, in := range []struct {
		view    string
		focused bool
	}{
		{m.source.View(), m.focus == focusSource},
		{m.goal.View(), m.focus == focusGoal},
	} {
		style := inputStyle
		if in.focused {
			style = style.Bold(true)
		}
		b.WriteString(style.Render(in.view))
		b.WriteByte('\n')
	}

	b.WriteString(strings.Repeat("─", m.width))
	b.WriteByte('\n')

	b.WriteString(m.viewport.View())
	b.WriteByte('\n')

	b.WriteString(m.statusBarView())
	return b.String()
}

func (m model) statusBarView() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Padding(0, 1)

	switch {
	case m.running:
		return style.Render(m.spinner.View() + " " + statsLine(m.stats) + "  [esc] cancel")
	case m.err != nil:
		return style.Foreground(lipgloss.Color("9")).Render(errorSummary(m.err))
	case m.result != nil:
		return style.Foreground(lipgloss.Color("10")).Render(
			fmt.Sprintf("Found in %d hops  %s  %d%%", m.result.Hops(), statsLine(m.stats), int(m.viewport.ScrollPercent()*100)))
	default:
		return style.Faint(true).Render("Enter source and goal URLs, then press Enter  [tab] switch field  [ctrl+c] quit")
	}
}

func main() {
	configPath := flag.String("config", os.Getenv("WIKIHOP_CONFIG"), "TOML config file (env: WIKIHOP_CONFIG)")
	width := flag.Int("n", 0, "pages fetched concurrently per round (default from config)")
	insecure := flag.Bool("insecure", false, "skip TLS certificate verification")
	http3 := flag.Bool("http3", false, "fetch pages over HTTP/3")
	origin := flag.String("origin", "", "only follow links to this scheme://host (default from config)")
	logFile := flag.String("log-file", "", "write logs to this file while the TUI owns the terminal")
	progressFile := flag.String("progress", "", "progress file rewritten after every round (default from config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	if *width > 0 {
		cfg.Width = *width
	}
	cfg.Insecure = cfg.Insecure || *insecure
	cfg.HTTP3 = cfg.HTTP3 || *http3
	if *origin != "" {
		cfg.Origin = *origin
	}
	if *progressFile != "" {
		cfg.ProgressFile = *progressFile
	}

	logger := logging.Discard()
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("[ERROR] open log file: %v", err)
		}
		defer f.Close()
		logger = logging.New(cfg.LogFormat, cfg.LogLevel, f)
	}

	sess, err := session.New(cfg, logger)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	defer sess.Close()

	source, goal := cfg.Source, cfg.Goal
	if flag.NArg() > 0 {
		source = flag.Arg(0)
	}
	if flag.NArg() > 1 {
		goal = flag.Arg(1)
	}

	p := tea.NewProgram(
		initialModel(source, goal, sess, progress.NewFileSink(cfg.ProgressFile, nil, logger)),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
