package store

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore persists rooms, users and messages in four collections:
// users, rooms, messages (group), direct_messages.
type MongoStore struct {
	users *mongo.Collection
	rooms *mongo.Collection
	msgs  *mongo.Collection
	dms   *mongo.Collection
}

type groupMsgDoc struct {
	ID        string    `bson:"_id"`
	Room      string    `bson:"room"`
	Username  string    `bson:"username"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
}

type directMsgDoc struct {
	ID        string    `bson:"_id"`
	Sender    string    `bson:"sender"`
	Recipient string    `bson:"recipient"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
	IsRead    bool      `bson:"is_read"`
}

// Connect dials mongo with a bounded timeout.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return mongo.Connect(ctx, options.Client().ApplyURI(uri))
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	s := &MongoStore{
		users: db.Collection("users"),
		rooms: db.Collection("rooms"),
		msgs:  db.Collection("messages"),
		dms:   db.Collection("direct_messages"),
	}
	ctx := context.Background()
	_, _ = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("username_idx"),
	})
	_, _ = s.rooms.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("room_name_idx"),
	})
	_, _ = s.msgs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "room", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("room_created_idx"),
	})
	_, _ = s.dms.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sender", Value: 1}, {Key: "recipient", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("pair_created_idx"),
	})
	return s
}

// ensureUser is get-or-create on the unique username index. A duplicate-key
// race resolves to the existing document because the upsert only sets fields
// on insert.
func (s *MongoStore) ensureUser(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"username": username},
		bson.M{"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"username":   username,
			"created_at": time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) EnsureRoom(ctx context.Context, name, description string) (*Room, error) {
	var r Room
	err := s.rooms.FindOneAndUpdate(ctx,
		bson.M{"name": name},
		bson.M{"$setOnInsert": bson.M{
			"_id":         uuid.NewString(),
			"name":        name,
			"description": description,
			"members":     []string{},
			"created_at":  time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&r)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *MongoStore) AppendGroupMessage(ctx context.Context, room, author, body string) (*Message, error) {
	if _, err := s.ensureUser(ctx, author); err != nil {
		return nil, err
	}
	r, err := s.EnsureRoom(ctx, room, "")
	if err != nil {
		return nil, err
	}
	_, _ = s.rooms.UpdateByID(ctx, r.ID, bson.M{"$addToSet": bson.M{"members": author}})

	doc := groupMsgDoc{
		ID:        uuid.NewString(),
		Room:      room,
		Username:  author,
		Content:   body,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.msgs.InsertOne(ctx, doc); err != nil {
		return nil, err
	}
	return &Message{ID: doc.ID, Username: doc.Username, Body: doc.Content, Timestamp: doc.CreatedAt}, nil
}

func (s *MongoStore) AppendDirectMessage(ctx context.Context, sender, recipient, body string) (*Message, error) {
	if _, err := s.ensureUser(ctx, sender); err != nil {
		return nil, err
	}
	if _, err := s.ensureUser(ctx, recipient); err != nil {
		return nil, err
	}
	doc := directMsgDoc{
		ID:        uuid.NewString(),
		Sender:    sender,
		Recipient: recipient,
		Content:   body,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.dms.InsertOne(ctx, doc); err != nil {
		return nil, err
	}
	return &Message{ID: doc.ID, Username: doc.Sender, Body: doc.Content, Timestamp: doc.CreatedAt}, nil
}

func (s *MongoStore) FetchGroupHistory(ctx context.Context, room string, limit int) ([]Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.msgs.Find(ctx, bson.M{"room": room}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []Message{}
	for cur.Next(ctx) {
		var d groupMsgDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, Message{ID: d.ID, Username: d.Username, Body: d.Content, Timestamp: d.CreatedAt})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

func (s *MongoStore) FetchDirectHistory(ctx context.Context, userA, userB string, limit int) ([]Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender": userA, "recipient": userB},
		bson.M{"sender": userB, "recipient": userA},
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.dms.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []Message{}
	for cur.Next(ctx) {
		var d directMsgDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, Message{ID: d.ID, Username: d.Sender, Body: d.Content, Timestamp: d.CreatedAt})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

func (s *MongoStore) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.rooms.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []RoomSummary{}
	for cur.Next(ctx) {
		var r Room
		if err := cur.Decode(&r); err != nil {
			return nil, err
		}
		sum := RoomSummary{Room: r, MemberCount: len(r.Members)}
		sum.MessageCount, _ = s.msgs.CountDocuments(ctx, bson.M{"room": r.Name})
		var last groupMsgDoc
		err := s.msgs.FindOne(ctx, bson.M{"room": r.Name},
			options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})).Decode(&last)
		if err == nil {
			sum.LastMessage = &Message{ID: last.ID, Username: last.Username, Body: last.Content, Timestamp: last.CreatedAt}
		}
		out = append(out, sum)
	}
	return out, cur.Err()
}

func (s *MongoStore) RoomMessages(ctx context.Context, room string) ([]Message, error) {
	if err := s.rooms.FindOne(ctx, bson.M{"name": room}).Err(); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := s.msgs.Find(ctx, bson.M{"room": room}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []Message{}
	for cur.Next(ctx) {
		var d groupMsgDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, Message{ID: d.ID, Username: d.Username, Body: d.Content, Timestamp: d.CreatedAt})
	}
	return out, cur.Err()
}

func (s *MongoStore) SearchUsers(ctx context.Context, q string, limit int) ([]User, error) {
	filter := bson.M{"username": primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}}
	opts := options.Find().
		SetSort(bson.D{{Key: "username", Value: 1}}).
		SetLimit(int64(limit))
	cur, err := s.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []User{}
	for cur.Next(ctx) {
		var u User
		if err := cur.Decode(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, cur.Err()
}

func reverse(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
