// Package store is the persistence boundary: append messages, replay
// history, and the narrow read surface the REST glue needs. Implementations
// must be safe for concurrent use and assign timestamps at write time.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Message is a persisted chat message. Username is the author identity.
type Message struct {
	ID        string    `bson:"_id" json:"id"`
	Username  string    `bson:"username" json:"username"`
	Body      string    `bson:"content" json:"message"`
	Timestamp time.Time `bson:"created_at" json:"timestamp"`
}

// Room is a persisted group room. Direct conversations have no room record.
type Room struct {
	ID          string    `bson:"_id" json:"id"`
	Name        string    `bson:"name" json:"name"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	Members     []string  `bson:"members" json:"-"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// RoomSummary is the listing shape: a room plus derived counters.
type RoomSummary struct {
	Room
	MessageCount int64    `json:"message_count"`
	MemberCount  int      `json:"member_count"`
	LastMessage  *Message `json:"last_message,omitempty"`
}

type User struct {
	ID        string    `bson:"_id" json:"id"`
	Username  string    `bson:"username" json:"username"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

type Store interface {
	// AppendGroupMessage persists a message to a room, lazily creating the
	// author and the room, and adding the author to the room's member set.
	AppendGroupMessage(ctx context.Context, room, author, body string) (*Message, error)

	// AppendDirectMessage persists a message between two users, lazily
	// creating both.
	AppendDirectMessage(ctx context.Context, sender, recipient, body string) (*Message, error)

	// FetchGroupHistory returns the last limit messages of a room,
	// oldest-first. An unknown room yields an empty slice.
	FetchGroupHistory(ctx context.Context, room string, limit int) ([]Message, error)

	// FetchDirectHistory returns the last limit messages exchanged between
	// two users, both directions merged, oldest-first.
	FetchDirectHistory(ctx context.Context, userA, userB string, limit int) ([]Message, error)

	// EnsureRoom creates the room if absent and returns it either way.
	EnsureRoom(ctx context.Context, name, description string) (*Room, error)

	// ListRooms returns all rooms, newest-first, with counters.
	ListRooms(ctx context.Context) ([]RoomSummary, error)

	// RoomMessages returns every message of a room, oldest-first.
	RoomMessages(ctx context.Context, room string) ([]Message, error)

	// SearchUsers finds users whose name contains q, case-insensitive.
	SearchUsers(ctx context.Context, q string, limit int) ([]User, error)
}
