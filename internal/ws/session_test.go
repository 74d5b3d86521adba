package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-chat/internal/events"
	"github.com/fathima-sithara/realtime-chat/internal/hub"
	"github.com/fathima-sithara/realtime-chat/internal/store"
)

// fakeSocket stands in for an upgraded websocket connection. Tests feed
// inbound frames through push and observe outbound text frames on out.
type fakeSocket struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeSocket) push(frame string) { f.in <- []byte(frame) }

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case b := <-f.in:
		return websocket.TextMessage, b, nil
	case <-f.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (f *fakeSocket) WriteMessage(mt int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("connection closed")
	default:
	}
	if mt == websocket.TextMessage {
		f.out <- data
	}
	return nil
}

func (f *fakeSocket) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSocket) SetReadLimit(int64)                  {}
func (f *fakeSocket) SetReadDeadline(time.Time) error     { return nil }
func (f *fakeSocket) SetWriteDeadline(time.Time) error    { return nil }
func (f *fakeSocket) SetPongHandler(func(string) error)   {}

// countingStore wraps a MemoryStore and counts adapter calls.
type countingStore struct {
	*store.MemoryStore
	appends int32
	fetches int32
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: store.NewMemoryStore()}
}

func (c *countingStore) AppendGroupMessage(ctx context.Context, room, author, body string) (*store.Message, error) {
	atomic.AddInt32(&c.appends, 1)
	return c.MemoryStore.AppendGroupMessage(ctx, room, author, body)
}

func (c *countingStore) AppendDirectMessage(ctx context.Context, sender, recipient, body string) (*store.Message, error) {
	atomic.AddInt32(&c.appends, 1)
	return c.MemoryStore.AppendDirectMessage(ctx, sender, recipient, body)
}

func (c *countingStore) FetchGroupHistory(ctx context.Context, room string, limit int) ([]store.Message, error) {
	atomic.AddInt32(&c.fetches, 1)
	return c.MemoryStore.FetchGroupHistory(ctx, room, limit)
}

type fakePublisher struct {
	calls int32
	err   error
}

func (f *fakePublisher) MessageSent(context.Context, string, *store.Message) error {
	atomic.AddInt32(&f.calls, 1)
	return f.err
}

func testDeps(st store.Store) Deps {
	return Deps{
		Hub:   hub.New(zap.NewNop().Sugar()),
		Store: st,
		Log:   zap.NewNop().Sugar(),
		Opts: Options{
			HistoryLimit:   50,
			SendBuffer:     16,
			MaxMessageSize: 64 * 1024,
			ReadDeadline:   time.Minute,
			WriteDeadline:  time.Second,
			PingInterval:   time.Minute,
		},
	}
}

func recvFrame(t *testing.T, s *fakeSocket) []byte {
	t.Helper()
	select {
	case b := <-s.out:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func recvHistory(t *testing.T, s *fakeSocket) events.History {
	t.Helper()
	var h events.History
	require.NoError(t, json.Unmarshal(recvFrame(t, s), &h))
	require.Equal(t, events.TypeHistory, h.Type)
	return h
}

func recvChat(t *testing.T, s *fakeSocket) events.ChatMessage {
	t.Helper()
	var m events.ChatMessage
	require.NoError(t, json.Unmarshal(recvFrame(t, s), &m))
	require.Equal(t, events.TypeChatMessage, m.Type)
	return m
}

func runSession(t *testing.T, s *Session) *sync.WaitGroup {
	t.Helper()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(context.Background())
	}()
	return &wg
}

func TestGroupScenario_TwoSubscribersReceiveAndOnePersist(t *testing.T) {
	req := require.New(t)
	st := newCountingStore()
	deps := testDeps(st)

	s1, s2 := newFakeSocket(), newFakeSocket()
	sess1, err := NewGroupSession(s1, "lobby", "", deps)
	req.NoError(err)
	sess2, err := NewGroupSession(s2, "lobby", "", deps)
	req.NoError(err)
	req.Equal(sess1.ChannelID(), sess2.ChannelID())

	wg1 := runSession(t, sess1)
	wg2 := runSession(t, sess2)
	recvHistory(t, s1)
	recvHistory(t, s2)

	s1.push(`{"username":"alice","message":"hi"}`)

	for _, s := range []*fakeSocket{s1, s2} {
		m := recvChat(t, s)
		req.Equal("alice", m.Username)
		req.Equal("hi", m.Message)
		req.NotEmpty(m.Timestamp)
		req.False(m.IsDM)
	}

	msgs, err := st.RoomMessages(context.Background(), "lobby")
	req.NoError(err)
	req.Len(msgs, 1)
	req.Equal(int32(1), atomic.LoadInt32(&st.appends))

	s1.Close()
	s2.Close()
	wg1.Wait()
	wg2.Wait()
}

func TestDirectScenario_BothSidesConvergeAndIsDM(t *testing.T) {
	req := require.New(t)
	st := newCountingStore()
	deps := testDeps(st)

	d1, d2 := newFakeSocket(), newFakeSocket()
	sessA, err := NewDirectSession(d1, "alice", "bob", deps)
	req.NoError(err)
	sessB, err := NewDirectSession(d2, "bob", "alice", deps)
	req.NoError(err)
	req.Equal(sessA.ChannelID(), sessB.ChannelID())

	wgA := runSession(t, sessA)
	wgB := runSession(t, sessB)
	recvHistory(t, d1)
	recvHistory(t, d2)

	d1.push(`{"message":"hello bob"}`)

	m := recvChat(t, d2)
	req.Equal("alice", m.Username, "author defaults to the connection identity")
	req.Equal("hello bob", m.Message)
	req.True(m.IsDM)

	d1.Close()
	d2.Close()
	wgA.Wait()
	wgB.Wait()
}

func TestHistoryReplay_Last50OldestFirst(t *testing.T) {
	req := require.New(t)
	st := newCountingStore()
	ctx := context.Background()
	for i := 0; i < 51; i++ {
		_, err := st.MemoryStore.AppendGroupMessage(ctx, "lobby", "alice", fmt.Sprintf("msg-%d", i))
		req.NoError(err)
	}

	sock := newFakeSocket()
	sess, err := NewGroupSession(sock, "lobby", "", testDeps(st))
	req.NoError(err)
	wg := runSession(t, sess)

	h := recvHistory(t, sock)
	req.Len(h.Messages, 50)
	req.Equal("msg-1", h.Messages[0].Message)
	req.Equal("msg-50", h.Messages[49].Message)

	sock.Close()
	wg.Wait()
}

func TestHistoryReplay_EmptyChannelStillReplays(t *testing.T) {
	req := require.New(t)
	sock := newFakeSocket()
	sess, err := NewGroupSession(sock, "fresh", "", testDeps(newCountingStore()))
	req.NoError(err)
	wg := runSession(t, sess)

	h := recvHistory(t, sock)
	req.NotNil(h.Messages)
	req.Empty(h.Messages)

	sock.Close()
	wg.Wait()
}

func TestBlankAndMalformedPayloadsDiscarded(t *testing.T) {
	req := require.New(t)
	st := newCountingStore()
	deps := testDeps(st)

	sock := newFakeSocket()
	sess, err := NewGroupSession(sock, "lobby", "", deps)
	req.NoError(err)
	wg := runSession(t, sess)
	recvHistory(t, sock)

	sock.push(`{"username":"alice","message":""}`)
	sock.push(`{"username":"alice","message":"   \t\n"}`)
	sock.push(`not json at all`)
	sock.push(`{"username":"alice","message":"real"}`)

	// only the real message comes back; nothing else was persisted
	m := recvChat(t, sock)
	req.Equal("real", m.Message)
	req.Equal(int32(1), atomic.LoadInt32(&st.appends))

	sock.Close()
	wg.Wait()
}

func TestGroupAuthorDefaultsToAnonymous(t *testing.T) {
	req := require.New(t)
	st := newCountingStore()
	sock := newFakeSocket()
	sess, err := NewGroupSession(sock, "lobby", "carol", testDeps(st))
	req.NoError(err)
	wg := runSession(t, sess)
	recvHistory(t, sock)

	sock.push(`{"message":"who am i"}`)
	m := recvChat(t, sock)
	req.Equal("Anonymous", m.Username)

	sock.Close()
	wg.Wait()
}

func TestInvalidHandshakeRejectedBeforeJoin(t *testing.T) {
	req := require.New(t)
	deps := testDeps(newCountingStore())

	_, err := NewGroupSession(newFakeSocket(), "bad room!", "", deps)
	req.Error(err)
	_, err = NewDirectSession(newFakeSocket(), "alice", "bad:user", deps)
	req.Error(err)
	req.Zero(deps.Hub.Subscribers("group:bad room!"))
}

func TestDoubleDisconnectIsHarmless(t *testing.T) {
	req := require.New(t)
	st := newCountingStore()
	deps := testDeps(st)

	going, staying := newFakeSocket(), newFakeSocket()
	sessGoing, err := NewGroupSession(going, "lobby", "", deps)
	req.NoError(err)
	sessStaying, err := NewGroupSession(staying, "lobby", "", deps)
	req.NoError(err)

	wgGoing := runSession(t, sessGoing)
	wgStaying := runSession(t, sessStaying)
	recvHistory(t, going)
	recvHistory(t, staying)

	// transport failure triggers the deferred disconnect...
	going.Close()
	wgGoing.Wait()
	// ...and an explicit close races in right after
	sessGoing.Disconnect(context.Background())
	sessGoing.Disconnect(context.Background())

	req.Equal(1, deps.Hub.Subscribers(sessStaying.ChannelID()))

	staying.push(`{"username":"bob","message":"still here"}`)
	m := recvChat(t, staying)
	req.Equal("still here", m.Message)

	staying.Close()
	wgStaying.Wait()
}

func TestEventPublisherBestEffort(t *testing.T) {
	req := require.New(t)
	st := newCountingStore()
	pub := &fakePublisher{err: errors.New("broker down")}
	deps := testDeps(st)
	deps.Events = pub

	sock := newFakeSocket()
	sess, err := NewGroupSession(sock, "lobby", "", deps)
	req.NoError(err)
	wg := runSession(t, sess)
	recvHistory(t, sock)

	sock.push(`{"username":"alice","message":"hi"}`)

	// broadcast still goes out even though the event backbone failed
	m := recvChat(t, sock)
	req.Equal("hi", m.Message)
	req.Equal(int32(1), atomic.LoadInt32(&pub.calls))

	sock.Close()
	wg.Wait()
}
