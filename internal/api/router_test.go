package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/akhtararif14-hash/campusly/internal/auth"
	"github.com/akhtararif14-hash/campusly/internal/config"
	"github.com/akhtararif14-hash/campusly/internal/hub"
	"github.com/akhtararif14-hash/campusly/internal/models"
	"github.com/akhtararif14-hash/campusly/internal/store"
)

type testServer struct {
	*httptest.Server
	db       *store.SQLiteStore
	unread   *store.MemoryUnread
	verifier *auth.Verifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)

	unread := store.NewMemoryUnread()
	h := hub.New(hub.Config{Messages: db, Unread: unread, Logger: zerolog.Nop()})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	verifier := auth.NewVerifier("test-secret")
	router := NewRouter(Deps{
		Config:   &config.Config{AllowedOrigins: []string{"*"}},
		Logger:   zerolog.Nop(),
		DB:       db,
		Unread:   unread,
		Hub:      h,
		Verifier: verifier,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	return &testServer{Server: srv, db: db, unread: unread, verifier: verifier}
}

func (s *testServer) register(t *testing.T, name string) models.User {
	t.Helper()
	resp, err := http.Post(s.URL+"/api/chat/users", "application/json",
		strings.NewReader(`{"name":"`+name+`","username":"`+strings.ToLower(name)+`"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var user models.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))
	return user
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.verifier.Issue(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) get(t *testing.T, path, userID string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.URL+path, nil)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestChatRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/chat/users", "/api/chat/conversations", "/api/chat/messages/x", "/api/chat/stats"} {
		require.Equal(t, http.StatusUnauthorized, s.get(t, path, "", nil), path)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	var health struct {
		Status string `json:"status"`
	}
	require.Equal(t, http.StatusOK, s.get(t, "/health", "", &health))
	require.Equal(t, "healthy", health.Status)
}

func TestRosterExcludesSelfAndFilters(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "Alice")
	s.register(t, "Bob")
	s.register(t, "Bobby")

	var users []models.User
	require.Equal(t, http.StatusOK, s.get(t, "/api/chat/users", alice.ID, &users))
	require.Len(t, users, 2)
	for _, u := range users {
		require.NotEqual(t, alice.ID, u.ID)
	}

	require.Equal(t, http.StatusOK, s.get(t, "/api/chat/users?q=bobby", alice.ID, &users))
	require.Len(t, users, 1)
	require.Equal(t, "Bobby", users[0].Name)

	var profile models.User
	require.Equal(t, http.StatusOK, s.get(t, "/api/chat/users/"+users[0].ID, alice.ID, &profile))
	require.Equal(t, "Bobby", profile.Name)
	require.Equal(t, http.StatusNotFound, s.get(t, "/api/chat/users/missing", alice.ID, nil))
}

func TestRegisterRejectsBlankName(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Post(s.URL+"/api/chat/users", "application/json", strings.NewReader(`{"name":"   "}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistoryAndConversations(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	alice := s.register(t, "Alice")
	bob := s.register(t, "Bob")

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, text := range []string{"hi", "hey", "how are you"} {
		msg := &models.Message{SenderID: alice.ID, ReceiverID: bob.ID, Text: text, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if i == 1 {
			msg.SenderID, msg.ReceiverID = bob.ID, alice.ID
		}
		require.NoError(t, s.db.CreateMessage(ctx, msg))
	}
	require.NoError(t, s.unread.MarkUnread(ctx, bob.ID, alice.ID))

	var convs []models.ConversationSummary
	require.Equal(t, http.StatusOK, s.get(t, "/api/chat/conversations", bob.ID, &convs))
	require.Len(t, convs, 1)
	require.Equal(t, alice.ID, convs[0].Other.ID)
	require.Equal(t, "how are you", convs[0].LastMessage)
	require.True(t, convs[0].Unread)

	var history []models.Message
	require.Equal(t, http.StatusOK, s.get(t, "/api/chat/messages/"+alice.ID, bob.ID, &history))
	require.Len(t, history, 3)
	require.Equal(t, "hi", history[0].Text)
	require.Equal(t, "how are you", history[2].Text)

	require.Equal(t, http.StatusOK, s.get(t, "/api/chat/conversations", bob.ID, &convs))
	require.False(t, convs[0].Unread)

	before := history[2].CreatedAt.UnixMilli()
	require.Equal(t, http.StatusOK, s.get(t, "/api/chat/messages/"+alice.ID+"?limit=1&before="+strconv.FormatInt(before, 10), bob.ID, &history))
	require.Len(t, history, 1)
	require.Equal(t, "hey", history[0].Text)
}

func TestMessageToOfflineUserArrivesViaHistory(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "Alice")
	bob := s.register(t, "Bob")

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=" + s.token(t, alice.ID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	send := func(event string, data interface{}) {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		frame, err := json.Marshal(hub.Frame{Event: event, Data: raw})
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
	}
	send(hub.EventUserOnline, alice.ID)
	send(hub.EventSendMessage, hub.SendMessagePayload{SenderID: alice.ID, ReceiverID: bob.ID, Text: "hello"})

	// Wait for the echo so the message is persisted.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame hub.Frame
		require.NoError(t, json.Unmarshal(data, &frame))
		if frame.Event == hub.EventMessageSent {
			break
		}
	}

	var history []models.Message
	require.Equal(t, http.StatusOK, s.get(t, "/api/chat/messages/"+alice.ID, bob.ID, &history))
	require.Len(t, history, 1)
	require.Equal(t, "hello", history[0].Text)
	require.NotEmpty(t, history[0].ID)
}

func TestEventsRejectsMissingToken(t *testing.T) {
	s := newTestServer(t)

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
