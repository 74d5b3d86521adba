package ws

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fathima-sithara/realtime-chat/internal/channel"
	"github.com/fathima-sithara/realtime-chat/internal/events"
	"github.com/fathima-sithara/realtime-chat/internal/hub"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/store"
)

// anonymousUser is the fallback identity of an unauthenticated direct
// connection. Group messages instead fall back to anonymousAuthor per
// payload, matching the historical asymmetry of the two paths.
const (
	anonymousUser   = "anonymous"
	anonymousAuthor = "Anonymous"
)

type kind int

const (
	groupKind kind = iota
	directKind
)

// inbound is the only payload clients may send.
type inbound struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// EventPublisher pushes persisted messages onto the event backbone.
type EventPublisher interface {
	MessageSent(ctx context.Context, channelID string, msg *store.Message) error
}

// Options carries the tunables a session needs from config.
type Options struct {
	HistoryLimit    int
	SendBuffer      int
	MaxMessageSize  int64
	ReadDeadline    time.Duration
	WriteDeadline   time.Duration
	PingInterval    time.Duration
	RateLimitPerSec int
}

// Deps are the shared collaborators injected into every session.
type Deps struct {
	Hub      *hub.Hub
	Store    store.Store
	Events   EventPublisher  // optional
	Presence *presence.Store // optional
	Log      *zap.SugaredLogger
	Opts     Options
}

// Session runs the lifecycle of one connection: resolve channel, join,
// replay history, pump inbound messages, leave. One goroutine per session.
type Session struct {
	kind      kind
	channelID string
	identity  string
	room      string
	recipient string

	client  *Client
	deps    Deps
	limiter *rate.Limiter
}

// NewGroupSession resolves a group handshake. A resolver error rejects the
// connection before anything is registered.
func NewGroupSession(sock Socket, room, identity string, deps Deps) (*Session, error) {
	id, err := channel.Group(room)
	if err != nil {
		return nil, err
	}
	if identity == "" {
		identity = anonymousUser
	}
	return newSession(sock, groupKind, id, identity, deps, func(s *Session) {
		s.room = room
	}), nil
}

// NewDirectSession resolves a direct-message handshake. Both participants
// converge on the same channel regardless of connection order.
func NewDirectSession(sock Socket, identity, recipient string, deps Deps) (*Session, error) {
	if identity == "" {
		identity = anonymousUser
	}
	id, err := channel.Direct(identity, recipient)
	if err != nil {
		return nil, err
	}
	return newSession(sock, directKind, id, identity, deps, func(s *Session) {
		s.recipient = recipient
	}), nil
}

func newSession(sock Socket, k kind, channelID, identity string, deps Deps, fill func(*Session)) *Session {
	s := &Session{
		kind:      k,
		channelID: channelID,
		identity:  identity,
		client:    newClient(sock, deps.Opts.SendBuffer, deps.Opts.PingInterval, deps.Opts.WriteDeadline, deps.Log),
		deps:      deps,
	}
	if deps.Opts.RateLimitPerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(deps.Opts.RateLimitPerSec), deps.Opts.RateLimitPerSec)
	}
	fill(s)
	return s
}

// ChannelID reports the resolved broadcast channel.
func (s *Session) ChannelID() string { return s.channelID }

// Run drives the session to completion. Disconnect fires on every exit
// path, including transport errors.
func (s *Session) Run(ctx context.Context) {
	s.deps.Hub.Join(s.channelID, s.client)
	defer s.Disconnect(ctx)

	go s.client.writePump()

	if s.deps.Presence != nil {
		s.deps.Presence.Online(ctx, s.identity)
	}
	s.replayHistory(ctx)
	s.readLoop(ctx)
}

// Disconnect leaves the registry and releases the connection. Idempotent: a
// transport-error cleanup racing an explicit close is harmless.
func (s *Session) Disconnect(ctx context.Context) {
	s.deps.Hub.Leave(s.channelID, s.client)
	s.client.close()
	if s.deps.Presence != nil {
		s.deps.Presence.Offline(ctx, s.identity)
	}
}

// replayHistory sends the channel's recent messages to this connection only,
// as a single frame, oldest first. A store failure degrades to an empty
// replay; the connection stays up.
func (s *Session) replayHistory(ctx context.Context) {
	var msgs []store.Message
	var err error
	switch s.kind {
	case groupKind:
		msgs, err = s.deps.Store.FetchGroupHistory(ctx, s.room, s.deps.Opts.HistoryLimit)
	case directKind:
		msgs, err = s.deps.Store.FetchDirectHistory(ctx, s.identity, s.recipient, s.deps.Opts.HistoryLimit)
	}
	if err != nil {
		s.deps.Log.Errorw("history fetch failed", "channel", s.channelID, "err", err)
		msgs = nil
	}
	entries := make([]events.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, events.HistoryEntry{
			Username:  m.Username,
			Message:   m.Body,
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	frame, err := json.Marshal(events.NewHistory(entries))
	if err != nil {
		s.deps.Log.Errorw("history encode failed", "channel", s.channelID, "err", err)
		return
	}
	s.client.Enqueue(frame)
}

func (s *Session) readLoop(ctx context.Context) {
	sock := s.client.sock
	sock.SetReadLimit(s.deps.Opts.MaxMessageSize)
	_ = sock.SetReadDeadline(time.Now().Add(s.deps.Opts.ReadDeadline))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(s.deps.Opts.ReadDeadline))
	})
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			return
		}
		_ = sock.SetReadDeadline(time.Now().Add(s.deps.Opts.ReadDeadline))
		if s.limiter != nil && !s.limiter.Allow() {
			continue
		}
		s.handleInbound(ctx, data)
	}
}

// handleInbound is one receive: parse, persist, publish, in that order.
// Failures are contained to this one message.
func (s *Session) handleInbound(ctx context.Context, data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		// malformed payload: silent discard
		return
	}
	if strings.TrimSpace(in.Message) == "" {
		return
	}

	author := in.Username
	var msg *store.Message
	var err error
	switch s.kind {
	case groupKind:
		if author == "" {
			author = anonymousAuthor
		}
		msg, err = s.deps.Store.AppendGroupMessage(ctx, s.room, author, in.Message)
	case directKind:
		if author == "" {
			author = s.identity
		}
		msg, err = s.deps.Store.AppendDirectMessage(ctx, author, s.recipient, in.Message)
	}
	if err != nil {
		s.deps.Log.Errorw("persist failed", "channel", s.channelID, "author", author, "err", err)
		return
	}

	if s.deps.Presence != nil {
		s.deps.Presence.Online(ctx, s.identity)
	}
	if s.deps.Events != nil {
		if err := s.deps.Events.MessageSent(ctx, s.channelID, msg); err != nil {
			s.deps.Log.Warnw("event publish failed", "channel", s.channelID, "err", err)
		}
	}

	frame, err := json.Marshal(events.NewChatMessage(msg.Username, msg.Body, msg.Timestamp, s.kind == directKind))
	if err != nil {
		s.deps.Log.Errorw("frame encode failed", "channel", s.channelID, "err", err)
		return
	}
	s.deps.Hub.Publish(ctx, s.channelID, frame)
}
