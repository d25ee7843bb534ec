// Package ui is an interactive inspector for the buffer pool: a live table
// of resident pages with their dirty and lock state, the pool counters, and
// the current waits-for edges.
package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"corestore/pkg/buffer"
)

const refreshInterval = 500 * time.Millisecond

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model is the inspector's bubbletea model.
type Model struct {
	pool      *buffer.Manager
	pageTable table.Model

	stats    buffer.Stats
	waitsFor map[int64][]int64
	paused   bool
	width    int
	height   int
	keys     keyMap
}

// NewModel creates an inspector over pool.
func NewModel(pool *buffer.Manager) Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Table", Width: 20},
			{Title: "Page", Width: 8},
			{Title: "State", Width: 10},
			{Title: "Txn", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(16),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(primaryColor).
		BorderBottom(true).
		Bold(true).
		Foreground(primaryColor)
	t.SetStyles(s)

	m := Model{pool: pool, pageTable: t, keys: keys}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd { return tick() }

func (m *Model) refresh() {
	m.stats = m.pool.Stats()
	m.waitsFor = m.pool.WaitsFor()

	pages := m.pool.ResidentPages()
	rows := make([]table.Row, 0, len(pages))
	for _, p := range pages {
		state := "clean"
		txnCol := "-"
		if p.Dirty {
			state = "dirty"
			txnCol = fmt.Sprintf("#%d", p.Dirtier)
		}
		if p.Locked {
			state += "+lock"
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", p.ID.Table),
			fmt.Sprintf("%d", p.ID.Number),
			state,
			txnCol,
		})
	}
	m.pageTable.SetRows(rows)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.pageTable.SetHeight(maxInt(4, m.height-10))
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
			return m, nil
		}
	case tickMsg:
		if !m.paused {
			m.refresh()
		}
		return m, tick()
	}

	var cmd tea.Cmd
	m.pageTable, cmd = m.pageTable.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("corestore buffer pool"))
	if m.paused {
		b.WriteString(" " + mutedStyle.Render("(paused)"))
	}
	b.WriteString("\n\n")
	b.WriteString(m.pageTable.View())

	s := m.stats
	b.WriteString(statsStyle.Render(fmt.Sprintf(
		"resident %d/%d  %s  hits %d  misses %d  evictions %d  %s",
		s.Resident, s.Capacity,
		dirtyStyle.Render(fmt.Sprintf("dirty %d", s.Dirty)),
		s.Hits, s.Misses, s.Evictions,
		lockedStyle.Render(fmt.Sprintf("deadlock aborts %d", s.Deadlocks)),
	)))
	b.WriteString("\n")
	b.WriteString(m.renderWaitsFor())
	b.WriteString(mutedStyle.Render("\nspace pause · q quit\n"))
	return b.String()
}

func (m Model) renderWaitsFor() string {
	if len(m.waitsFor) == 0 {
		return mutedStyle.Render("no transactions waiting")
	}
	waiters := make([]int64, 0, len(m.waitsFor))
	for w := range m.waitsFor {
		waiters = append(waiters, w)
	}
	sort.Slice(waiters, func(i, j int) bool { return waiters[i] < waiters[j] })

	var b strings.Builder
	for _, w := range waiters {
		holders := m.waitsFor[w]
		parts := make([]string, len(holders))
		for i, h := range holders {
			parts[i] = fmt.Sprintf("txn#%d", h)
		}
		b.WriteString(fmt.Sprintf("txn#%d waits on %s\n", w, strings.Join(parts, ", ")))
	}
	return lockedStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Run starts the inspector and blocks until the user quits.
func Run(pool *buffer.Manager) error {
	_, err := tea.NewProgram(NewModel(pool), tea.WithAltScreen()).Run()
	return err
}
