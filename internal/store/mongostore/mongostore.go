// Package mongostore keeps sessions and reads profiles in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/zhouzirui/commerce-router/internal/model/profile"
	"github.com/zhouzirui/commerce-router/internal/model/session"
	"github.com/zhouzirui/commerce-router/internal/store"
)

// Collection names
const (
	CollectionSessions = "router_sessions"
	CollectionProfiles = "profiles"
)

// Store implements store.SessionStore, store.SessionPurger,
// store.ProfileStore and store.Pinger.
type Store struct {
	client   *mongo.Client
	sessions *mongo.Collection
	profiles *mongo.Collection
}

// sessionDoc is the stored shape: the session plus the logical-expiry flag.
type sessionDoc struct {
	session.Session `bson:",inline"`
	Expired         bool `bson:"expired"`
}

// Connect opens a pooled client, pings the primary and ensures indexes.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	db := client.Database(dbName)
	s := &Store{
		client:   client,
		sessions: db.Collection(CollectionSessions),
		profiles: db.Collection(CollectionProfiles),
	}
	if err := s.Ping(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "lastActiveAt", Value: -1}}},
		{Keys: bson.D{{Key: "lastActiveAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}
	return nil
}

// Ping verifies the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// ListActive returns the user's live sessions, most recent first.
func (s *Store) ListActive(ctx context.Context, userID, service string, since time.Time) ([]*session.Session, error) {
	filter := bson.M{
		"userId":       userID,
		"expired":      bson.M{"$ne": true},
		"lastActiveAt": bson.M{"$gte": since},
	}
	if service != "" {
		filter["service"] = service
	}

	cursor, err := s.sessions.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "lastActiveAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*session.Session
	for cursor.Next(ctx) {
		var doc sessionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		sess := doc.Session
		sess.CreatedAt = sess.CreatedAt.UTC()
		sess.LastActiveAt = sess.LastActiveAt.UTC()
		out = append(out, &sess)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// Create inserts the session document.
func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	_, err := s.sessions.InsertOne(ctx, sessionDoc{Session: *sess})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("create session %s: %w", sess.ID, store.ErrDuplicateSession)
	}
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

// Update rewrites history, context and last-active time of a live session.
func (s *Store) Update(ctx context.Context, sess *session.Session) (bool, error) {
	res, err := s.sessions.UpdateOne(ctx,
		bson.M{"_id": sess.ID, "expired": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{
			"messageHistory": sess.History,
			"context":        sess.Context,
			"lastActiveAt":   sess.LastActiveAt,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("update session %s: %w", sess.ID, err)
	}
	return res.MatchedCount > 0, nil
}

// Expire flags all of the user's sessions as expired.
func (s *Store) Expire(ctx context.Context, userID string) error {
	_, err := s.sessions.UpdateMany(ctx,
		bson.M{"userId": userID, "expired": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"expired": true}},
	)
	if err != nil {
		return fmt.Errorf("expire sessions of %s: %w", userID, err)
	}
	return nil
}

// Purge deletes sessions idle since before the cutoff.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sessions.DeleteMany(ctx, bson.M{"lastActiveAt": bson.M{"$lt": before}})
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.DeletedCount, nil
}

type profileDoc struct {
	ID       string        `bson:"_id"`
	FullName string        `bson:"full_name"`
	Phone    string        `bson:"phone"`
	Email    string        `bson:"email"`
	Address  bson.RawValue `bson:"address"`
}

// Get reads one profile document. A missing document is (nil, nil).
func (s *Store) Get(ctx context.Context, userID string) (*profile.Profile, error) {
	var doc profileDoc
	err := s.profiles.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}

	p := &profile.Profile{ID: doc.ID, FullName: doc.FullName, Phone: doc.Phone, Email: doc.Email}
	p.Address = decodeAddress(doc.Address)
	return p, nil
}

// decodeAddress accepts either a string or a {street, city} sub-document.
func decodeAddress(raw bson.RawValue) *profile.Address {
	if text, ok := raw.StringValueOK(); ok {
		return profile.ParseAddress(text)
	}
	if doc, ok := raw.DocumentOK(); ok {
		addr := &profile.Address{}
		if v, err := doc.LookupErr("street"); err == nil {
			addr.Street, _ = v.StringValueOK()
		}
		if v, err := doc.LookupErr("city"); err == nil {
			addr.City, _ = v.StringValueOK()
		}
		if addr.IsZero() {
			return nil
		}
		return addr
	}
	return nil
}
