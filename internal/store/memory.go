package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process memory. It backs tests and serves
// as the fallback store when no mongo URI is configured.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]User
	rooms map[string]*memRoom
	dms   []dmRecord
}

type memRoom struct {
	room     Room
	messages []Message
}

type dmRecord struct {
	msg       Message
	sender    string
	recipient string
	isRead    bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]User),
		rooms: make(map[string]*memRoom),
	}
}

func (s *MemoryStore) ensureUserLocked(username string) User {
	if u, ok := s.users[username]; ok {
		return u
	}
	u := User{ID: uuid.NewString(), Username: username, CreatedAt: time.Now().UTC()}
	s.users[username] = u
	return u
}

func (s *MemoryStore) ensureRoomLocked(name, description string) *memRoom {
	if r, ok := s.rooms[name]; ok {
		return r
	}
	r := &memRoom{room: Room{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}}
	r.room.Description = description
	s.rooms[name] = r
	return r
}

func (s *MemoryStore) AppendGroupMessage(ctx context.Context, room, author, body string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureUserLocked(author)
	r := s.ensureRoomLocked(room, "")
	if !contains(r.room.Members, author) {
		r.room.Members = append(r.room.Members, author)
	}
	m := Message{
		ID:        uuid.NewString(),
		Username:  author,
		Body:      body,
		Timestamp: time.Now().UTC(),
	}
	r.messages = append(r.messages, m)
	return &m, nil
}

func (s *MemoryStore) AppendDirectMessage(ctx context.Context, sender, recipient, body string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureUserLocked(sender)
	s.ensureUserLocked(recipient)
	m := Message{
		ID:        uuid.NewString(),
		Username:  sender,
		Body:      body,
		Timestamp: time.Now().UTC(),
	}
	s.dms = append(s.dms, dmRecord{msg: m, sender: sender, recipient: recipient})
	return &m, nil
}

func (s *MemoryStore) FetchGroupHistory(ctx context.Context, room string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[room]
	if !ok {
		return []Message{}, nil
	}
	return lastN(r.messages, limit), nil
}

func (s *MemoryStore) FetchDirectHistory(ctx context.Context, userA, userB string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []Message
	for _, rec := range s.dms {
		if (rec.sender == userA && rec.recipient == userB) ||
			(rec.sender == userB && rec.recipient == userA) {
			all = append(all, rec.msg)
		}
	}
	return lastN(all, limit), nil
}

func (s *MemoryStore) EnsureRoom(ctx context.Context, name, description string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.ensureRoomLocked(name, description)
	out := r.room
	return &out, nil
}

func (s *MemoryStore) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RoomSummary, 0, len(s.rooms))
	for _, r := range s.rooms {
		sum := RoomSummary{
			Room:         r.room,
			MessageCount: int64(len(r.messages)),
			MemberCount:  len(r.room.Members),
		}
		if n := len(r.messages); n > 0 {
			last := r.messages[n-1]
			sum.LastMessage = &last
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) RoomMessages(ctx context.Context, room string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[room]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out, nil
}

func (s *MemoryStore) SearchUsers(ctx context.Context, q string, limit int) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q = strings.ToLower(q)
	out := []User{}
	for _, u := range s.users {
		if strings.Contains(strings.ToLower(u.Username), q) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func lastN(msgs []Message, n int) []Message {
	if n <= 0 || n > len(msgs) {
		n = len(msgs)
	}
	out := make([]Message, n)
	copy(out, msgs[len(msgs)-n:])
	return out
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
