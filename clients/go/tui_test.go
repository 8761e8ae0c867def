package main

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/akhtararif14-hash/campusly/clients/go/campusly"
)

type stubAPI struct{}

func (stubAPI) GetMessages(context.Context, string) ([]campusly.Message, error) { return nil, nil }

func (stubAPI) GetUser(_ context.Context, id string) (*campusly.User, error) {
	return &campusly.User{ID: id, Name: "Bob"}, nil
}

func offlineSession(t *testing.T) *campusly.Session {
	t.Helper()
	dial := func(context.Context) (campusly.Conn, error) { return nil, errors.New("connection refused") }
	session, err := campusly.NewSession(campusly.SessionConfig{
		SelfID:        "u-self",
		CounterpartID: "u-bob",
		API:           stubAPI{},
		Channels:      campusly.NewConnectionManager(campusly.NewChannel(dial, zerolog.Nop())),
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(session.Close)
	return session
}

func typeRune(m chatModel, r rune) chatModel {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	return next.(chatModel)
}

func TestTypingWhileLoadingShowsNoError(t *testing.T) {
	m := newChatModel(context.Background(), offlineSession(t), "u-self")

	m = typeRune(m, 'h')
	require.Equal(t, "h", m.input.Value())
	require.NoError(t, m.err)
}

func TestTypingWithoutConnectionShowsError(t *testing.T) {
	session := offlineSession(t)
	require.Error(t, session.Start(context.Background()))
	require.Equal(t, campusly.StateReady, session.State())

	m := newChatModel(context.Background(), session, "u-self")
	m = typeRune(m, 'h')
	require.ErrorIs(t, m.err, campusly.ErrNotConnected)
}
