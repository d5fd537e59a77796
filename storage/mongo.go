package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"microblog/domain/notification"
	"microblog/domain/post"
	"microblog/domain/user"
)

// MongoBackend persists the store in MongoDB, one collection per entity.
// Every commit runs in a multi-document transaction, which needs a replica set.
type MongoBackend struct {
	client        *mongo.Client
	Users         *mongo.Collection
	Posts         *mongo.Collection
	Follows       *mongo.Collection
	Bookmarks     *mongo.Collection
	Notifications *mongo.Collection
}

// edgeDoc stores a follow or bookmark pair under a composite key.
type edgeDoc struct {
	Id        string    `bson:"_id"`
	From      int64     `bson:"from"`
	To        int64     `bson:"to"`
	CreatedAt time.Time `bson:"createdAt"`
}

func edgeId(from, to int64) string {
	return fmt.Sprintf("%d:%d", from, to)
}

func ConnectMongo(ctx context.Context, url, dbName string) (*MongoBackend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(dbName)
	return &MongoBackend{
		client:        client,
		Users:         db.Collection("users"),
		Posts:         db.Collection("posts"),
		Follows:       db.Collection("follows"),
		Bookmarks:     db.Collection("bookmarks"),
		Notifications: db.Collection("notifications"),
	}, nil
}

func (m *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoBackend) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	byId := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	byTime := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	if err := findAll(ctx, m.Users, byId, func(u *user.User) {
		snap.Users = append(snap.Users, u)
	}); err != nil {
		return nil, err
	}
	if err := findAll(ctx, m.Posts, byId, func(r *post.Record) {
		p := r.ToPost()
		snap.Posts = append(snap.Posts, &p)
	}); err != nil {
		return nil, err
	}
	if err := findAll(ctx, m.Follows, byTime, func(e *edgeDoc) {
		snap.Follows = append(snap.Follows, user.Follow{FollowerId: e.From, FolloweeId: e.To, CreatedAt: e.CreatedAt})
	}); err != nil {
		return nil, err
	}
	if err := findAll(ctx, m.Bookmarks, byTime, func(e *edgeDoc) {
		snap.Bookmarks = append(snap.Bookmarks, user.Bookmark{UserId: e.From, PostId: e.To, CreatedAt: e.CreatedAt})
	}); err != nil {
		return nil, err
	}

	var decodeErr error
	bySeq := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	if err := findAll(ctx, m.Notifications, bySeq, func(r *notification.Record) {
		n, err := r.ToNotification()
		if err != nil {
			decodeErr = err
			return
		}
		snap.Notifications = append(snap.Notifications, &n)
	}); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return snap, nil
}

func findAll[T any](ctx context.Context, c *mongo.Collection, opts *options.FindOptions, fn func(*T)) error {
	cur, err := c.Find(ctx, bson.D{}, opts)
	if err != nil {
		return fmt.Errorf("find %s: %w", c.Name(), err)
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var v T
		if err := cur.Decode(&v); err != nil {
			return fmt.Errorf("decode %s: %w", c.Name(), err)
		}
		fn(&v)
	}
	return cur.Err()
}

// Commit applies cs inside a transaction.
func (m *MongoBackend) Commit(ctx context.Context, cs *Changeset) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, m.write(sc, cs)
	})
	if err != nil {
		return fmt.Errorf("mongo commit: %w", err)
	}
	return nil
}

func (m *MongoBackend) write(ctx mongo.SessionContext, cs *Changeset) error {
	upsert := options.Replace().SetUpsert(true)
	for _, u := range cs.Users {
		if _, err := m.Users.ReplaceOne(ctx, bson.M{"_id": u.Id}, u, upsert); err != nil {
			return err
		}
	}
	for _, p := range cs.Posts {
		if _, err := m.Posts.ReplaceOne(ctx, bson.M{"_id": p.Id}, p.ToRecord(), upsert); err != nil {
			return err
		}
	}
	for _, f := range cs.FollowsRemoved {
		if _, err := m.Follows.DeleteOne(ctx, bson.M{"_id": edgeId(f.FollowerId, f.FolloweeId)}); err != nil {
			return err
		}
	}
	for _, f := range cs.FollowsAdded {
		doc := edgeDoc{Id: edgeId(f.FollowerId, f.FolloweeId), From: f.FollowerId, To: f.FolloweeId, CreatedAt: f.CreatedAt}
		if _, err := m.Follows.ReplaceOne(ctx, bson.M{"_id": doc.Id}, doc, upsert); err != nil {
			return err
		}
	}
	for _, b := range cs.BookmarksRemoved {
		if _, err := m.Bookmarks.DeleteOne(ctx, bson.M{"_id": edgeId(b.UserId, b.PostId)}); err != nil {
			return err
		}
	}
	for _, b := range cs.BookmarksAdded {
		doc := edgeDoc{Id: edgeId(b.UserId, b.PostId), From: b.UserId, To: b.PostId, CreatedAt: b.CreatedAt}
		if _, err := m.Bookmarks.ReplaceOne(ctx, bson.M{"_id": doc.Id}, doc, upsert); err != nil {
			return err
		}
	}
	for _, n := range cs.Notifications {
		if _, err := m.Notifications.ReplaceOne(ctx, bson.M{"_id": n.Id}, n.ToRecord(), upsert); err != nil {
			return err
		}
	}
	return nil
}
