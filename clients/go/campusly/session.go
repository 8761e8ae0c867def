package campusly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

var (
	ErrEmptyMessage    = errors.New("message text is empty")
	ErrSessionNotReady = errors.New("chat session is not ready")
	ErrSessionClosed   = errors.New("chat session is closed")
	ErrSessionStarted  = errors.New("chat session already started")
)

// DefaultTypingIdle is how long after the last keystroke stop_typing is sent.
const DefaultTypingIdle = time.Second

// State is the lifecycle state of a Session.
type State int

const (
	StateLoading State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ChatAPI is the REST surface a session loads from. *Client implements it.
type ChatAPI interface {
	GetMessages(ctx context.Context, counterpartID string) ([]Message, error)
	GetUser(ctx context.Context, id string) (*User, error)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	SelfID        string
	CounterpartID string
	API           ChatAPI
	Channels      *ConnectionManager
	Logger        zerolog.Logger

	// TypingIdle defaults to DefaultTypingIdle.
	TypingIdle time.Duration

	// MergeEcho replaces the optimistic copy of a sent message with the
	// server echo carrying the same clientId. When false both are kept.
	MergeEcho bool
}

// Snapshot is a copy of a session's view state.
type Snapshot struct {
	State         State
	CounterpartID string
	Counterpart   *User // nil when the profile could not be loaded
	Messages      []Message
	Typing        bool
	Online        bool
	Connected     bool
}

// Session drives one open conversation between the signed-in user and a
// counterpart.
type Session struct {
	selfID        string
	counterpartID string
	api           ChatAPI
	channels      *ConnectionManager
	logger        zerolog.Logger
	mergeEcho     bool
	idle          *Debouncer

	mu          sync.Mutex
	state       State
	started     bool
	counterpart *User
	messages    []Message
	typing      bool
	online      bool
	ch          *Channel
	subs        []*Subscription

	updates chan struct{}
	done    chan struct{}
}

// NewSession creates a session in the Loading state. Nothing is fetched
// until Start.
func NewSession(cfg SessionConfig) (*Session, error) {
	switch {
	case cfg.SelfID == "":
		return nil, errors.New("self id is required")
	case cfg.CounterpartID == "":
		return nil, errors.New("counterpart id is required")
	case cfg.SelfID == cfg.CounterpartID:
		return nil, errors.New("cannot open a chat with yourself")
	case cfg.API == nil:
		return nil, errors.New("api is required")
	case cfg.Channels == nil:
		return nil, errors.New("connection manager is required")
	}
	if cfg.TypingIdle <= 0 {
		cfg.TypingIdle = DefaultTypingIdle
	}

	s := &Session{
		selfID:        cfg.SelfID,
		counterpartID: cfg.CounterpartID,
		api:           cfg.API,
		channels:      cfg.Channels,
		logger:        cfg.Logger.With().Str("counterpart", cfg.CounterpartID).Logger(),
		mergeEcho:     cfg.MergeEcho,
		state:         StateLoading,
		updates:       make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	s.idle = NewDebouncer(cfg.TypingIdle, s.typingIdle)
	return s, nil
}

// Start loads history and the counterpart profile, then joins the shared
// event channel. Fetch failures are logged and leave the log empty or the
// counterpart unknown. A channel failure still leaves the session Ready,
// without live updates, and is returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSessionStarted
	}
	s.started = true
	closed := s.state == StateClosed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	var (
		wg      sync.WaitGroup
		history []Message
		profile *User
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		msgs, err := s.api.GetMessages(ctx, s.counterpartID)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to load history")
			return
		}
		history = msgs
	}()
	go func() {
		defer wg.Done()
		user, err := s.api.GetUser(ctx, s.counterpartID)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to load counterpart")
			return
		}
		profile = user
	}()
	wg.Wait()

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.messages = history
	s.counterpart = profile
	s.mu.Unlock()

	ch, err := s.channels.Acquire(ctx, s.selfID)

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		if err == nil {
			s.channels.Release()
		}
		return ErrSessionClosed
	}
	if err != nil {
		s.state = StateReady
		s.mu.Unlock()
		s.notify()
		s.logger.Warn().Err(err).Msg("event channel unavailable")
		return fmt.Errorf("connect event channel: %w", err)
	}

	s.ch = ch
	s.subs = []*Subscription{
		ch.Subscribe(EventMessageSent, s.onMessage(true)),
		ch.Subscribe(EventReceiveMessage, s.onMessage(false)),
		ch.Subscribe(EventUserTyping, s.onTyping(true)),
		ch.Subscribe(EventUserStopTyping, s.onTyping(false)),
		ch.Subscribe(EventOnlineUsers, s.onPresence),
		ch.Subscribe(EventDisconnected, s.onDisconnected),
	}
	s.online = ch.Presence().Contains(s.counterpartID)
	s.state = StateReady
	s.mu.Unlock()

	s.notify()
	return nil
}

// Keystroke signals that the user is typing. stop_typing follows once the
// idle period passes without another keystroke.
func (s *Session) Keystroke() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// s.mu is held across the send so Close cannot interleave and leave a
	// typing signal without its stop_typing.
	if s.state != StateReady {
		return ErrSessionNotReady
	}
	if s.ch == nil || !s.ch.Connected() {
		return ErrNotConnected
	}
	if err := s.ch.Send(EventTyping, s.typingPayload()); err != nil {
		return err
	}
	s.idle.Reset()
	return nil
}

// Submit sends text to the counterpart. The optimistic copy is appended to
// the log before the send and returned. Nothing is appended while the
// channel is down, and the copy is withdrawn if the send fails.
func (s *Session) Submit(text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return Message{}, ErrSessionNotReady
	}
	ch := s.ch
	if ch == nil || !ch.Connected() {
		s.mu.Unlock()
		return Message{}, ErrNotConnected
	}

	s.idle.Cancel()
	msg := Message{
		SenderID:   s.selfID,
		ReceiverID: s.counterpartID,
		Text:       text,
		ClientID:   ulid.Make().String(),
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.notify()

	err := ch.Send(EventSendMessage, SendMessagePayload{
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Text:       msg.Text,
		ClientID:   msg.ClientID,
	})
	if err != nil {
		if s.withdraw(msg.ClientID) {
			s.notify()
		}
		return Message{}, fmt.Errorf("send message: %w", err)
	}
	if err := ch.Send(EventStopTyping, s.typingPayload()); err != nil {
		s.logger.Debug().Err(err).Msg("failed to send stop_typing")
	}
	return msg, nil
}

// Close tears the session down. It is safe to call more than once and
// while Start is still loading.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	ch, subs := s.ch, s.subs
	s.ch, s.subs = nil, nil
	s.typing = false
	s.mu.Unlock()

	pending := s.idle.Cancel()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if ch != nil {
		if pending {
			if err := ch.Send(EventStopTyping, s.typingPayload()); err != nil {
				s.logger.Debug().Err(err).Msg("failed to send stop_typing")
			}
		}
		s.channels.Release()
	}

	close(s.done)
	s.notify()
}

// Updates signals after every state change. Signals coalesce; read
// Snapshot for the current state. The channel is never closed.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// Done is closed by Close.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the view state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:         s.state,
		CounterpartID: s.counterpartID,
		Messages:      append([]Message(nil), s.messages...),
		Typing:        s.typing,
		Online:        s.online,
		Connected:     s.ch != nil && s.ch.Connected(),
	}
	if s.counterpart != nil {
		user := *s.counterpart
		snap.Counterpart = &user
	}
	return snap
}

func (s *Session) typingPayload() TypingPayload {
	return TypingPayload{SenderID: s.selfID, ReceiverID: s.counterpartID}
}

func (s *Session) typingIdle() {
	s.mu.Lock()
	state, ch := s.state, s.ch
	s.mu.Unlock()

	if state != StateReady || ch == nil {
		return
	}
	if err := ch.Send(EventStopTyping, s.typingPayload()); err != nil {
		s.logger.Debug().Err(err).Msg("failed to send stop_typing")
	}
}

func (s *Session) onMessage(echo bool) Handler {
	return func(data json.RawMessage) {
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn().Err(err).Msg("malformed message event")
			return
		}
		if msg.SenderID != s.counterpartID && msg.ReceiverID != s.counterpartID {
			return
		}

		s.mu.Lock()
		if s.state != StateReady {
			s.mu.Unlock()
			return
		}
		if echo && s.mergeEcho && s.replacePending(msg) {
			s.mu.Unlock()
			s.notify()
			return
		}
		s.messages = append(s.messages, msg)
		s.mu.Unlock()
		s.notify()
	}
}

// replacePending swaps the optimistic copy matching msg's clientId for msg.
// Callers hold s.mu.
func (s *Session) replacePending(msg Message) bool {
	if msg.ClientID == "" {
		return false
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.Pending() && m.ClientID == msg.ClientID {
			s.messages[i] = msg
			return true
		}
	}
	return false
}

// withdraw removes the optimistic copy carrying clientID.
func (s *Session) withdraw(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.Pending() && m.ClientID == clientID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Session) onTyping(active bool) Handler {
	return func(data json.RawMessage) {
		var p TypingPayload
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Warn().Err(err).Msg("malformed typing event")
			return
		}
		if p.SenderID != s.counterpartID {
			return
		}

		s.mu.Lock()
		if s.state != StateReady {
			s.mu.Unlock()
			return
		}
		s.typing = active
		s.mu.Unlock()
		s.notify()
	}
}

func (s *Session) onPresence(json.RawMessage) {
	s.mu.Lock()
	if s.state != StateReady || s.ch == nil {
		s.mu.Unlock()
		return
	}
	s.online = s.ch.Presence().Contains(s.counterpartID)
	s.mu.Unlock()
	s.notify()
}

// onDisconnected drops state that only the live connection can vouch for.
func (s *Session) onDisconnected(json.RawMessage) {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return
	}
	s.online = false
	s.typing = false
	s.mu.Unlock()

	s.idle.Cancel()
	s.notify()
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
