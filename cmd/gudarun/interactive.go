package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	guda "github.com/LynnColeArt/guda-runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	statStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const refreshInterval = 100 * time.Millisecond

type workloadState struct {
	name   string
	done   bool
	result result
	err    error
}

type monitorModel struct {
	ctx       *guda.Context
	opts      options
	defs      []workload
	workloads []workloadState
	current   int
	stats     guda.Stats
	streams   int
	spinner   spinner.Model
	finished  bool
}

type workloadDoneMsg struct {
	index  int
	result result
	err    error
}

type refreshMsg time.Time

func newMonitorModel(ctx *guda.Context, workloads []workload, opts options) *monitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	states := make([]workloadState, len(workloads))
	for i, w := range workloads {
		states[i] = workloadState{name: w.name}
	}
	return &monitorModel{
		ctx:       ctx,
		opts:      opts,
		defs:      workloads,
		workloads: states,
		spinner:   s,
	}
}

func (m *monitorModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runNext(), refresh())
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// runNext runs the current workload off the UI goroutine.
func (m *monitorModel) runNext() tea.Cmd {
	i := m.current
	w, ctx, opts := m.defs[i], m.ctx, m.opts
	return func() tea.Msg {
		res, err := w.run(ctx, opts)
		return workloadDoneMsg{index: i, result: res, err: err}
	}
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case workloadDoneMsg:
		w := &m.workloads[msg.index]
		w.done, w.result, w.err = true, msg.result, msg.err
		m.stats = m.ctx.Stats()
		m.current++
		if m.current < len(m.workloads) {
			return m, m.runNext()
		}
		m.finished = true

	case refreshMsg:
		m.stats = m.ctx.Stats()
		m.streams = len(m.ctx.Streams())
		return m, refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *monitorModel) View() string {
	var b strings.Builder

	dev := m.ctx.Device()
	b.WriteString(titleStyle.Render("GUDA Runtime"))
	b.WriteString(fmt.Sprintf(" %s, %d cores, %s\n\n", dev.Name, dev.NumCores, dev.Features))

	for i, w := range m.workloads {
		switch {
		case w.err != nil:
			b.WriteString(errorStyle.Render("✗ "))
			b.WriteString(nameStyle.Render(w.name))
			b.WriteString(" ")
			b.WriteString(errorStyle.Render(w.err.Error()))
		case w.done:
			b.WriteString(resultStyle.Render("✓ "))
			b.WriteString(nameStyle.Render(w.name))
			b.WriteString(" ")
			b.WriteString(resultStyle.Render(fmt.Sprintf("%s (%v)", w.result.summary, w.result.elapsed)))
		case i == m.current:
			b.WriteString(m.spinner.View())
			b.WriteString(nameStyle.Render(w.name))
		default:
			b.WriteString("  ")
			b.WriteString(helpStyle.Render(w.name))
		}
		b.WriteString("\n")
	}

	st := m.stats
	b.WriteString("\n")
	b.WriteString(statStyle.Render(fmt.Sprintf(
		"kernels %d (%d failed) • blocks %d • threads %d • tasks %d (%d failed) • streams %d • kernel time %v",
		st.KernelsLaunched, st.KernelsFailed, st.BlocksExecuted, st.ThreadsExecuted,
		st.TasksExecuted, st.TasksFailed, m.streams, st.KernelTime.Round(time.Millisecond))))
	b.WriteString("\n\n")

	if m.finished {
		b.WriteString(helpStyle.Render("done • q quit"))
	} else {
		b.WriteString(helpStyle.Render("running • q quit"))
	}
	return b.String()
}

func runInteractive(ctx *guda.Context, workloads []workload, opts options) error {
	p := tea.NewProgram(newMonitorModel(ctx, workloads, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
