// Package viewer mirrors the stored scan results in a terminal table. It
// only ever reads: rows are fetched through the same query path the HTTP
// listing uses, on a timer and on demand.
package viewer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"nester/models"
)

const (
	refreshTimeout = 5 * time.Second
	scanDataWidth  = 48
	// title, search line, status line and the table header
	chromeHeight = 6
)

type Source interface {
	Search(ctx context.Context, term string) ([]models.ScanResult, error)
	Count(ctx context.Context) (int64, error)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	statusStyle = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type refreshMsg struct {
	rows  []models.ScanResult
	total int64
	err   error
	at    time.Time
}

type tickMsg time.Time

type Model struct {
	source   Source
	interval time.Duration
	keys     keyMap

	table     table.Model
	search    textinput.Model
	searching bool

	rows    []models.ScanResult
	total   int64
	err     error
	updated time.Time
}

func Columns() []table.Column {
	return []table.Column{
		{Title: "ID", Width: 6},
		{Title: "Franchise ID", Width: 16},
		{Title: "IP Address", Width: 16},
		{Title: "Devices", Width: 8},
		{Title: "Latency", Width: 8},
		{Title: "Scan Data", Width: scanDataWidth},
		{Title: "Timestamp", Width: len(models.TimestampLayout)},
	}
}

func NewModel(source Source, interval time.Duration) Model {
	search := textinput.New()
	search.Prompt = "search: "
	search.Placeholder = "franchise, IP or scan data"

	t := table.New(
		table.WithColumns(Columns()),
		table.WithFocused(true),
		table.WithHeight(20),
	)

	return Model{
		source:   source,
		interval: interval,
		keys:     defaultKeys,
		table:    t,
		search:   search,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.tick())
}

func (m Model) refresh() tea.Cmd {
	source, term := m.source, m.search.Value()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		msg := refreshMsg{at: time.Now()}
		msg.rows, msg.err = source.Search(ctx, term)
		if msg.err == nil {
			msg.total, msg.err = source.Count(ctx)
		}
		return msg
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		if h := message.Height - chromeHeight; h > 0 {
			m.table.SetHeight(h)
		}
		m.table.SetWidth(message.Width)
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), m.tick())

	case refreshMsg:
		m.err = message.err
		if message.err == nil {
			m.rows = message.rows
			m.total = message.total
			m.updated = message.at
			m.table.SetRows(Rows(message.rows))
		}
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.handleSearchKeys(message)
		}
		switch {
		case key.Matches(message, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(message, m.keys.Refresh):
			return m, m.refresh()
		case key.Matches(message, m.keys.Search):
			m.searching = true
			m.table.Blur()
			return m, m.search.Focus()
		case key.Matches(message, m.keys.Clear) && m.search.Value() != "":
			m.search.SetValue("")
			return m, m.refresh()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(message)
	return m, cmd
}

func (m Model) handleSearchKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, m.keys.Confirm):
	case key.Matches(message, m.keys.Clear):
		m.search.SetValue("")
	default:
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(message)
		return m, cmd
	}
	m.searching = false
	m.search.Blur()
	m.table.Focus()
	return m, m.refresh()
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Scan results"))
	b.WriteString("\n")
	b.WriteString(m.search.View())
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("refresh failed: " + m.err.Error()))
	} else {
		status := fmt.Sprintf("%d shown / %d stored", len(m.rows), m.total)
		if !m.updated.IsZero() {
			status += " · updated " + m.updated.Format(time.TimeOnly)
		}
		b.WriteString(statusStyle.Render(status))
	}
	b.WriteString("\n")
	b.WriteString(statusStyle.Render("r refresh · / search · esc clear · q quit"))
	return b.String()
}

// Rows renders scan results as table rows in the order given.
func Rows(results []models.ScanResult) []table.Row {
	rows := make([]table.Row, 0, len(results))
	for _, r := range results {
		rows = append(rows, table.Row{
			strconv.FormatUint(uint64(r.ID), 10),
			r.FranchiseID,
			r.IPAddress,
			strconv.FormatInt(r.ConnectedDevices, 10),
			strconv.FormatInt(r.Latency, 10),
			truncate(string(r.ScanData), scanDataWidth),
			models.FormatTimestamp(r.Timestamp),
		})
	}
	return rows
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
