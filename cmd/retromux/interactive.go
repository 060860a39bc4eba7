package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/yosanyu/retromux/config"
	"github.com/yosanyu/retromux/host"
	"github.com/yosanyu/retromux/instance"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#5F5FD7")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#5F5FD7"))

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	stoppedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type dashModel struct {
	h        *host.Host
	spec     host.LaunchSpec
	count    int
	ins      []*instance.Instance
	selected int
	status   string
	err      error
	loading  bool
}

type tickMsg time.Time

type fleetMsg struct {
	ins []*instance.Instance
	err error
}

type stateSavedMsg struct {
	idx int
	err error
}

func (m *dashModel) Init() tea.Cmd {
	return tea.Batch(m.launchFleet, m.tick())
}

func (m *dashModel) tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *dashModel) launchFleet() tea.Msg {
	ins := make([]*instance.Instance, 0, m.count)
	for i := 0; i < m.count; i++ {
		in, err := m.h.Launch(m.spec)
		if err != nil {
			return fleetMsg{err: fmt.Errorf("launch %d: %w", i, err)}
		}
		ins = append(ins, in)
	}
	for i, in := range ins {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := in.WaitReady(ctx)
		cancel()
		if err != nil {
			return fleetMsg{err: fmt.Errorf("instance %d: %w", i, err)}
		}
	}
	return fleetMsg{ins: ins}
}

func (m *dashModel) saveState(idx int) tea.Cmd {
	in := m.ins[idx]
	return func() tea.Msg {
		return stateSavedMsg{idx: idx, err: <-in.SaveState(1)}
	}
}

func (m *dashModel) current() *instance.Instance {
	if m.selected < 0 || m.selected >= len(m.ins) {
		return nil
	}
	return m.ins[m.selected]
}

func (m *dashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.h.ShutdownAll()
			return m, tea.Quit

		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.selected < len(m.ins)-1 {
				m.selected++
			}

		case "p":
			if in := m.current(); in != nil {
				if in.Paused() {
					in.Pause(false)
					m.status = fmt.Sprintf("instance %d resumed", m.selected)
				} else {
					in.Pause(true)
					m.status = fmt.Sprintf("instance %d paused", m.selected)
				}
			}

		case "r":
			if in := m.current(); in != nil {
				if err := in.Reset(); err != nil {
					m.status = fmt.Sprintf("reset failed: %v", err)
				} else {
					m.status = fmt.Sprintf("instance %d reset", m.selected)
				}
			}

		case "s":
			if in := m.current(); in != nil {
				m.status = fmt.Sprintf("saving instance %d...", m.selected)
				return m, m.saveState(m.selected)
			}
		}

	case fleetMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.ins = msg.ins

	case stateSavedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("save failed: %v", msg.err)
		} else {
			m.status = fmt.Sprintf("instance %d state saved", msg.idx)
		}

	case tickMsg:
		return m, m.tick()
	}

	return m, nil
}

func (m *dashModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("retromux"))
	b.WriteString(" ")
	b.WriteString(m.spec.ModulePath)
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("q quit"))
		return b.String()
	}

	if m.loading {
		b.WriteString(fmt.Sprintf("Launching %d instance(s)...", m.count))
		return b.String()
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-3s %-4s %-8s %10s %6s %8s %8s",
		"#", "SLOT", "STATE", "FRAMES", "DUP", "DROPPED", "QUEUED")))
	b.WriteString("\n")

	for i, in := range m.ins {
		state := in.State()
		row := fmt.Sprintf("%-3d %-4d %-8s %10d %6d %8d %8d",
			i,
			int(in.SlotID()),
			state.String(),
			in.FramesRun(),
			in.DuplicateFrames(),
			in.AudioDropped(),
			in.AudioBuffered())

		switch {
		case i == m.selected:
			b.WriteString(selectedStyle.Render(row))
		case state == instance.StatePaused:
			b.WriteString(pausedStyle.Render(row))
		case state == instance.StateStopped:
			b.WriteString(stoppedStyle.Render(row))
		default:
			b.WriteString(row)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("↑/↓ select • p pause/resume • r reset • s save state • q quit"))

	return b.String()
}

func runInteractive(cfg *config.Config, opts options) error {
	// The dashboard owns the terminal; keep the logger quiet.
	h, err := buildHost(zap.NewNop(), cfg, opts)
	if err != nil {
		return err
	}

	m := &dashModel{
		h:       h,
		spec:    host.LaunchSpec{ModulePath: opts.module, ContentPath: opts.content},
		count:   opts.count,
		loading: true,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	h.ShutdownAll()
	return err
}
