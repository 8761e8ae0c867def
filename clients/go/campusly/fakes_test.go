package campusly

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var errConnClosed = errors.New("connection closed")

// fakeConn is an in-memory event connection. Frames pushed by the test are
// read by the channel; frames the channel writes are recorded.
type fakeConn struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	frames []Frame
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 32),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.closed:
		return 0, nil, errConnClosed
	default:
	}
	select {
	case data := <-c.inbound:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errConnClosed
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	c.mu.Lock()
	c.frames = append(c.frames, frame)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) push(t *testing.T, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(Frame{Event: event, Data: raw})
	require.NoError(t, err)
	c.inbound <- frame
}

// sent returns the recorded frames, optionally only those named event.
func (c *fakeConn) sent(event string) []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Frame
	for _, f := range c.frames {
		if event == "" || f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) events() []string {
	var names []string
	for _, f := range c.sent("") {
		names = append(names, f.Event)
	}
	return names
}

type fakeDialer struct {
	mu    sync.Mutex
	err   error
	conns []*fakeConn
}

func (d *fakeDialer) dial(context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func newTestChannel() (*Channel, *fakeDialer) {
	d := &fakeDialer{}
	return NewChannel(d.dial, zerolog.Nop()), d
}

// fakeAPI serves canned REST responses. When gate is set every call blocks
// until it is closed.
type fakeAPI struct {
	gate chan struct{}

	history    []Message
	historyErr error
	user       *User
	userErr    error
	convs      []Conversation
	convsErr   error
	users      []User
	usersErr   error
}

func (a *fakeAPI) wait(ctx context.Context) error {
	if a.gate == nil {
		return nil
	}
	select {
	case <-a.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *fakeAPI) GetMessages(ctx context.Context, _ string) ([]Message, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return a.history, a.historyErr
}

func (a *fakeAPI) GetUser(ctx context.Context, _ string) (*User, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return a.user, a.userErr
}

func (a *fakeAPI) ListConversations(ctx context.Context) ([]Conversation, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return a.convs, a.convsErr
}

func (a *fakeAPI) ListUsers(ctx context.Context, _ string) ([]User, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return a.users, a.usersErr
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
