package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/akhtararif14-hash/campusly/clients/go/campusly"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	selfStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	otherStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	pendingStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#888888"))
	typingStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#AFAFAF"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

type sessionUpdateMsg struct{}

type sessionStartedMsg struct{ err error }

type chatModel struct {
	ctx     context.Context
	session *campusly.Session
	selfID  string

	input    textinput.Model
	viewport viewport.Model
	snap     campusly.Snapshot
	err      error
	sized    bool
}

func newChatModel(ctx context.Context, session *campusly.Session, selfID string) chatModel {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 4000
	input.Focus()

	return chatModel{
		ctx:      ctx,
		session:  session,
		selfID:   selfID,
		input:    input,
		viewport: viewport.New(80, 20),
		snap:     session.Snapshot(),
	}
}

func runChat(ctx context.Context, session *campusly.Session, selfID string) error {
	_, err := tea.NewProgram(newChatModel(ctx, session, selfID), tea.WithAltScreen()).Run()
	return err
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.start(), m.waitForUpdate())
}

func (m chatModel) start() tea.Cmd {
	return func() tea.Msg {
		return sessionStartedMsg{err: m.session.Start(m.ctx)}
	}
}

func (m chatModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.session.Updates():
			return sessionUpdateMsg{}
		case <-m.session.Done():
			return nil
		}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 5
		m.input.Width = msg.Width - 4
		m.sized = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.session.Close()
			return m, tea.Quit
		case tea.KeyEnter:
			_, err := m.session.Submit(m.input.Value())
			if err != nil && !errors.Is(err, campusly.ErrEmptyMessage) {
				m.err = err
			} else {
				m.err = nil
			}
			m.input.Reset()
			return m, nil
		}

		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
		if m.input.Value() != before && m.input.Value() != "" {
			if err := m.session.Keystroke(); !errors.Is(err, campusly.ErrSessionNotReady) {
				m.err = err
			}
		}
		return m, tea.Batch(cmds...)

	case sessionStartedMsg:
		m.err = msg.err
		m.snap = m.session.Snapshot()
		m.refresh()

	case sessionUpdateMsg:
		m.snap = m.session.Snapshot()
		m.refresh()
		cmds = append(cmds, m.waitForUpdate())
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *chatModel) refresh() {
	if !m.sized {
		return
	}
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m chatModel) counterpartName() string {
	if m.snap.Counterpart != nil && m.snap.Counterpart.Name != "" {
		return m.snap.Counterpart.Name
	}
	return m.snap.CounterpartID
}

func (m chatModel) renderMessages() string {
	if len(m.snap.Messages) == 0 {
		if m.snap.State == campusly.StateLoading {
			return timeStyle.Render("Loading...")
		}
		return timeStyle.Render("No messages yet. Say hi!")
	}

	var sb strings.Builder
	for _, msg := range m.snap.Messages {
		if msg.SenderID == m.selfID {
			sb.WriteString(selfStyle.Render("you"))
		} else {
			sb.WriteString(otherStyle.Render(m.counterpartName()))
		}
		sb.WriteString(" ")
		if msg.Pending() {
			sb.WriteString(pendingStyle.Render("sending"))
		} else {
			sb.WriteString(timeStyle.Render(msg.CreatedAt.Local().Format("15:04")))
		}
		sb.WriteString("\n  ")
		sb.WriteString(msg.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m chatModel) View() string {
	status := offlineStyle.Render("○ offline")
	if m.snap.Online {
		status = onlineStyle.Render("● online")
	}
	if m.snap.State == campusly.StateReady && !m.snap.Connected {
		status = offlineStyle.Render("not connected")
	}
	header := fmt.Sprintf("%s %s", headerStyle.Render(m.counterpartName()), status)

	typing := ""
	if m.snap.Typing {
		typing = typingStyle.Render(m.counterpartName() + " is typing...")
	}

	footer := helpStyle.Render("enter: send • esc: quit")
	if m.err != nil {
		footer = errorStyle.Render(m.err.Error())
	}

	return strings.Join([]string{
		header,
		m.viewport.View(),
		typing,
		m.input.View(),
		footer,
	}, "\n")
}
