package campusly

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DirectoryAPI is the REST surface behind the conversation list. *Client
// implements it.
type DirectoryAPI interface {
	ListConversations(ctx context.Context) ([]Conversation, error)
	ListUsers(ctx context.Context, query string) ([]User, error)
}

// ConversationStore holds the signed-in user's conversation summaries and
// the roster used to start new chats.
type ConversationStore struct {
	api DirectoryAPI

	mu    sync.RWMutex
	convs []Conversation
	users []User
}

// NewConversationStore creates an empty store.
func NewConversationStore(api DirectoryAPI) *ConversationStore {
	return &ConversationStore{api: api}
}

// Load fetches conversations and the roster concurrently. Nothing is
// replaced unless both succeed.
func (s *ConversationStore) Load(ctx context.Context) error {
	var (
		convs []Conversation
		users []User
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		convs, err = s.api.ListConversations(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = s.api.ListUsers(gctx, "")
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	s.convs = convs
	s.users = users
	s.mu.Unlock()
	return nil
}

// Conversations returns the summaries, most recent first.
func (s *ConversationStore) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.convs)
}

// Users returns the roster.
func (s *ConversationStore) Users() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.users)
}

// Search returns roster entries whose name contains query, ignoring case.
// A blank query matches everyone.
func (s *ConversationStore) Search(query string) []User {
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []User
	for _, u := range s.users {
		if query == "" || strings.Contains(strings.ToLower(u.Name), query) {
			out = append(out, u)
		}
	}
	return out
}

// Lookup finds a user in the roster or among conversation counterparts.
func (s *ConversationStore) Lookup(userID string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.ID == userID {
			return u, true
		}
	}
	for _, c := range s.convs {
		if c.Other.ID == userID {
			return c.Other, true
		}
	}
	return User{}, false
}

// Apply folds a live message into the summaries and moves its conversation
// to the front. counterpart may be nil. It reports false when selfID is
// neither sender nor receiver.
func (s *ConversationStore) Apply(selfID string, msg Message, counterpart *User) bool {
	var otherID string
	switch selfID {
	case msg.SenderID:
		otherID = msg.ReceiverID
	case msg.ReceiverID:
		otherID = msg.SenderID
	default:
		return false
	}
	if otherID == "" || otherID == selfID {
		return false
	}

	at := msg.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.convs, func(c Conversation) bool { return c.Other.ID == otherID })
	var conv Conversation
	if idx >= 0 {
		conv = s.convs[idx]
		s.convs = slices.Delete(s.convs, idx, idx+1)
	} else {
		conv = Conversation{ConversationID: ConversationID(selfID, otherID), Other: User{ID: otherID}}
		if counterpart != nil {
			conv.Other = *counterpart
		} else if u, ok := s.userLocked(otherID); ok {
			conv.Other = u
		}
	}

	conv.LastMessage = msg.Text
	conv.LastSenderID = msg.SenderID
	conv.LastActiveAt = at
	conv.Unread = msg.SenderID != selfID

	s.convs = slices.Insert(s.convs, 0, conv)
	return true
}

// MarkRead clears the unread flag of the conversation with counterpartID.
func (s *ConversationStore) MarkRead(counterpartID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.convs {
		if s.convs[i].Other.ID == counterpartID {
			s.convs[i].Unread = false
			return true
		}
	}
	return false
}

func (s *ConversationStore) userLocked(userID string) (User, bool) {
	for _, u := range s.users {
		if u.ID == userID {
			return u, true
		}
	}
	return User{}, false
}

// ConversationRow is a conversation with the counterpart's presence.
type ConversationRow struct {
	Conversation
	Online bool
}

// ConversationList keeps a ConversationStore live from the event channel.
type ConversationList struct {
	store  *ConversationStore
	selfID string
	logger zerolog.Logger

	mu       sync.Mutex
	ch       *Channel
	subs     []*Subscription
	presence chan struct{}

	updates chan struct{}
}

// NewConversationList creates an unbound list over store.
func NewConversationList(store *ConversationStore, selfID string, logger zerolog.Logger) *ConversationList {
	return &ConversationList{
		store:   store,
		selfID:  selfID,
		logger:  logger,
		updates: make(chan struct{}, 1),
	}
}

// Bind subscribes to message and presence events on ch, replacing any
// earlier binding.
func (l *ConversationList) Bind(ch *Channel) {
	l.Unbind()

	onMessage := func(data json.RawMessage) {
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			l.logger.Warn().Err(err).Msg("malformed message event")
			return
		}
		if l.store.Apply(l.selfID, msg, nil) {
			l.notify()
		}
	}

	seen := make(chan struct{})
	var once sync.Once
	onPresence := func(json.RawMessage) {
		once.Do(func() { close(seen) })
		l.notify()
	}

	l.mu.Lock()
	l.ch = ch
	l.presence = seen
	l.subs = []*Subscription{
		ch.Subscribe(EventReceiveMessage, onMessage),
		ch.Subscribe(EventMessageSent, onMessage),
		ch.Subscribe(EventOnlineUsers, onPresence),
		ch.Subscribe(EventDisconnected, func(json.RawMessage) { l.notify() }),
	}
	l.mu.Unlock()
	l.notify()
}

// PresenceSeen is closed once the bound channel delivers its first presence
// broadcast. It is nil while unbound.
func (l *ConversationList) PresenceSeen() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.presence
}

// Unbind removes the list's subscriptions.
func (l *ConversationList) Unbind() {
	l.mu.Lock()
	subs := l.subs
	l.ch, l.subs, l.presence = nil, nil, nil
	l.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Rows returns the conversations ordered by most recent activity, each with
// the counterpart's presence. Presence is false while unbound.
func (l *ConversationList) Rows() []ConversationRow {
	l.mu.Lock()
	ch := l.ch
	l.mu.Unlock()

	convs := l.store.Conversations()
	rows := make([]ConversationRow, 0, len(convs))
	for _, c := range convs {
		rows = append(rows, ConversationRow{
			Conversation: c,
			Online:       ch != nil && ch.Presence().Contains(c.Other.ID),
		})
	}
	slices.SortStableFunc(rows, func(a, b ConversationRow) int {
		return b.LastActiveAt.Compare(a.LastActiveAt)
	})
	return rows
}

// Updates signals after every change to the rows. Signals coalesce.
func (l *ConversationList) Updates() <-chan struct{} {
	return l.updates
}

func (l *ConversationList) notify() {
	select {
	case l.updates <- struct{}{}:
	default:
	}
}
