package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/ayusman/instructor/internal/app"
	"github.com/ayusman/instructor/internal/config"
	"github.com/ayusman/instructor/internal/geom"
	"github.com/ayusman/instructor/internal/kv"
)

type MonitorCommand struct {
	Interval time.Duration `long:"interval" default:"50ms" description:"Store polling interval"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // executed moves box
	maxExecuted  = 5 // number of executed moves to show
	borderSize   = 2 // chart border
)

// Axis colors
var axisColors = []struct {
	name  string
	color string
}{
	{"x", "196"}, // red
	{"y", "46"},  // green
	{"z", "51"},  // cyan
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// sampleMsg is one read of the shared store.
type sampleMsg struct {
	target   geom.Vec3
	hasValue bool
	flag     string
	executed []string
	err      error
}

type monitorModel struct {
	store    kv.Store
	keys     config.Keys
	interval time.Duration
	chart    *streamlinechart.Model
	width    int
	height   int
	last     sampleMsg
	prev     geom.Vec3
	quitting bool
}

func initialMonitorModel(store kv.Store, keys config.Keys, interval time.Duration) monitorModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-1, 1),
	)

	for _, axis := range axisColors {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(axis.color))
		chart.SetDataSetStyles(axis.name, runes.ThinLineStyle, style)
	}

	return monitorModel{
		store:    store,
		keys:     keys,
		interval: interval,
		chart:    &chart,
	}
}

// poll reads the target, flag and execution log after one interval.
func (m monitorModel) poll() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		var msg sampleMsg
		raw, err := m.store.Get(ctx, m.keys.DesiredPos)
		switch {
		case err == nil:
			msg.target, msg.err = geom.ParseVec(raw)
			msg.hasValue = msg.err == nil
		case !errors.Is(err, kv.ErrNotFound):
			msg.err = err
			return msg
		}

		flag, err := m.store.Get(ctx, m.keys.ExecuteFlag)
		if err != nil && !errors.Is(err, kv.ErrNotFound) {
			msg.err = err
			return msg
		}
		msg.flag = flag

		msg.executed, err = m.store.LRange(ctx, m.keys.MoveExecuted, -maxExecuted, -1)
		if err != nil {
			msg.err = err
		}
		return msg
	})
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *monitorModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m monitorModel) Init() tea.Cmd {
	return m.poll()
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case sampleMsg:
		m.last = msg
		// Freeze the chart while the target is unchanged
		if msg.hasValue && msg.target != m.prev {
			m.chart.PushDataSet("x", msg.target.X)
			m.chart.PushDataSet("y", msg.target.Y)
			m.chart.PushDataSet("z", msg.target.Z)
			m.chart.DrawAll()
			m.prev = msg.target
		}
		return m, m.poll()
	}

	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Monitor stopped.\n"
	}

	var sb strings.Builder

	state := "idle"
	if m.last.flag == app.FlagTriggered {
		state = "playing"
	}
	sb.WriteString(titleStyle.Render("instructor monitor"))
	sb.WriteString(fmt.Sprintf(" - %s", state))
	if m.last.hasValue {
		sb.WriteString(statusStyle.Render("  " + geom.FormatVec(m.last.target)))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4)

	var lines string
	switch {
	case m.last.err != nil:
		lines = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render(m.last.err.Error())
	case len(m.last.executed) == 0:
		lines = statusStyle.Render("No moves executed yet. Press 'q' to quit")
	default:
		lines = "Executed: " + strings.Join(m.last.executed, " → ")
	}
	sb.WriteString(boxStyle.Render(lines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, axis := range axisColors {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(axis.color)).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+axis.name)
	}
	return strings.Join(items, "  ")
}

func (c *MonitorCommand) Execute(args []string) error {
	ctx, stop := signalContext()
	defer stop()

	s, err := setup(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	p := tea.NewProgram(initialMonitorModel(s.store, s.cfg.Keys, c.Interval), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}
