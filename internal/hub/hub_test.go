package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	typ  int
	data string
}

type fakeConn struct {
	mu     sync.Mutex
	frames []frame
	closed chan struct{}
	once   sync.Once
	stall  chan struct{} // non-nil blocks data writes until closed
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("connection closed")
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	if c.stall != nil && messageType == websocket.TextMessage {
		select {
		case <-c.stall:
		case <-c.closed:
			return errors.New("connection closed")
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame{typ: messageType, data: string(data)})
	return nil
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, f := range c.frames {
		if f.typ == websocket.TextMessage {
			out = append(out, f.data)
		}
	}
	return out
}

func (c *fakeConn) sawClose() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.frames {
		if f.typ == websocket.CloseMessage {
			return true
		}
	}
	return false
}

func runHub(t *testing.T, opts ...Option) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h, cancel
}

func serve(h *Hub, conn Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		h.Serve(conn)
		close(done)
	}()
	return done
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ClientCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestBroadcast_reachesEveryClient(t *testing.T) {
	h, _ := runHub(t)
	a, b := newFakeConn(), newFakeConn()
	serve(h, a)
	serve(h, b)
	waitClients(t, h, 2)

	require.NoError(t, h.BroadcastJSON(map[string]int{"ticks": 3}))

	for _, c := range []*fakeConn{a, b} {
		assert.Eventually(t, func() bool {
			texts := c.texts()
			return len(texts) == 1 && texts[0] == `{"ticks":3}`
		}, 2*time.Second, 5*time.Millisecond)
	}
}

func TestBroadcastJSON_encodeError(t *testing.T) {
	h := New("test")
	assert.Error(t, h.BroadcastJSON(make(chan int)))
}

func TestReplay_sendsLastMessageToNewClients(t *testing.T) {
	h, _ := runHub(t, WithReplay())
	first := newFakeConn()
	serve(h, first)
	waitClients(t, h, 1)

	h.Broadcast(NewJSONMessage([]byte(`"one"`)))
	h.Broadcast(NewJSONMessage([]byte(`"two"`)))
	require.Eventually(t, func() bool { return len(first.texts()) == 2 }, 2*time.Second, 5*time.Millisecond)

	late := newFakeConn()
	serve(h, late)
	assert.Eventually(t, func() bool {
		texts := late.texts()
		return len(texts) == 1 && texts[0] == `"two"`
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNoReplayByDefault(t *testing.T) {
	h, _ := runHub(t)
	first := newFakeConn()
	serve(h, first)
	waitClients(t, h, 1)
	h.Broadcast(NewJSONMessage([]byte(`"one"`)))
	require.Eventually(t, func() bool { return len(first.texts()) == 1 }, 2*time.Second, 5*time.Millisecond)

	late := newFakeConn()
	serve(h, late)
	waitClients(t, h, 2)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, late.texts())
}

func TestSlowClientIsDropped(t *testing.T) {
	h, _ := runHub(t)
	slow := newFakeConn()
	slow.stall = make(chan struct{})
	fast := newFakeConn()
	slowDone := serve(h, slow)
	serve(h, fast)
	waitClients(t, h, 2)

	for i := 0; i < clientBuffer+10; i++ {
		h.Broadcast(NewJSONMessage([]byte(`{}`)))
		time.Sleep(time.Millisecond)
	}

	waitClients(t, h, 1)
	// Unblock the writer, as a write deadline would.
	close(slow.stall)
	select {
	case <-slowDone:
	case <-time.After(2 * time.Second):
		t.Fatal("slow client was not disconnected")
	}
	assert.Eventually(t, func() bool { return len(fast.texts()) == clientBuffer+10 }, 2*time.Second, 5*time.Millisecond)
}

func TestClientDisconnectUnregisters(t *testing.T) {
	h, _ := runHub(t)
	conn := newFakeConn()
	done := serve(h, conn)
	waitClients(t, h, 1)

	require.NoError(t, conn.Close())
	<-done
	waitClients(t, h, 0)
}

func TestRunCancelDisconnectsClients(t *testing.T) {
	h, cancel := runHub(t)
	conn := newFakeConn()
	done := serve(h, conn)
	waitClients(t, h, 1)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client still served after hub stopped")
	}
	assert.True(t, conn.sawClose())
	assert.Zero(t, h.ClientCount())
}

func TestServeAfterStop(t *testing.T) {
	h, cancel := runHub(t)
	cancel()
	<-h.Done()

	conn := newFakeConn()
	h.Serve(conn)
	select {
	case <-conn.closed:
	default:
		t.Fatal("connection left open")
	}
}
