package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"microblog/domain/notification"
	"microblog/domain/post"
	"microblog/domain/user"
)

const (
	userPrefix     = "user:"
	postPrefix     = "post:"
	followPrefix   = "follow:"
	bookmarkPrefix = "bookmark:"
	ntfPrefix      = "ntf:"
)

// BadgerBackend persists the store in an embedded Badger database. Values are
// JSON; numeric ids are zero padded so keys iterate in id order.
type BadgerBackend struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenBadger opens (or creates) the database at path. An empty path opens an
// in-memory database.
func OpenBadger(path string, logger *slog.Logger) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	} else {
		opts.SyncWrites = true
		opts.CompactL0OnClose = true
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	if logger != nil {
		logger.Info("Badger database opened successfully", "path", path)
	}
	return &BadgerBackend{db: db, logger: logger}, nil
}

func (b *BadgerBackend) Close() error {
	if b.logger != nil {
		b.logger.Info("Closing database connection")
	}
	return b.db.Close()
}

func idKey(prefix string, id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix, id))
}

func pairKey(prefix string, a, c int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", prefix, a, c))
}

func (b *BadgerBackend) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	err := b.db.View(func(txn *badger.Txn) error {
		if err := scan(ctx, txn, userPrefix, func(u *user.User) { snap.Users = append(snap.Users, u) }); err != nil {
			return err
		}
		if err := scan(ctx, txn, postPrefix, func(p *post.Post) { snap.Posts = append(snap.Posts, p) }); err != nil {
			return err
		}
		if err := scan(ctx, txn, followPrefix, func(f *user.Follow) { snap.Follows = append(snap.Follows, *f) }); err != nil {
			return err
		}
		if err := scan(ctx, txn, bookmarkPrefix, func(bm *user.Bookmark) { snap.Bookmarks = append(snap.Bookmarks, *bm) }); err != nil {
			return err
		}
		return scan(ctx, txn, ntfPrefix, func(n *notification.Notification) {
			snap.Notifications = append(snap.Notifications, n)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load badger snapshot: %w", err)
	}
	sort.SliceStable(snap.Follows, func(i, j int) bool {
		return snap.Follows[i].CreatedAt.Before(snap.Follows[j].CreatedAt)
	})
	sort.SliceStable(snap.Bookmarks, func(i, j int) bool {
		return snap.Bookmarks[i].CreatedAt.Before(snap.Bookmarks[j].CreatedAt)
	})
	return snap, nil
}

// scan decodes every value under prefix in key order.
func scan[T any](ctx context.Context, txn *badger.Txn, prefix string, fn func(*T)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = true

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var v T
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
		if err != nil {
			return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
		}
		fn(&v)
	}
	return nil
}

// Commit writes the whole changeset in one transaction.
func (b *BadgerBackend) Commit(ctx context.Context, cs *Changeset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, u := range cs.Users {
			if err := setJSON(txn, idKey(userPrefix, u.Id), u); err != nil {
				return err
			}
		}
		for _, p := range cs.Posts {
			if err := setJSON(txn, idKey(postPrefix, p.Id), p); err != nil {
				return err
			}
		}
		for _, f := range cs.FollowsRemoved {
			if err := deleteKey(txn, pairKey(followPrefix, f.FollowerId, f.FolloweeId)); err != nil {
				return err
			}
		}
		for _, f := range cs.FollowsAdded {
			if err := setJSON(txn, pairKey(followPrefix, f.FollowerId, f.FolloweeId), f); err != nil {
				return err
			}
		}
		for _, bm := range cs.BookmarksRemoved {
			if err := deleteKey(txn, pairKey(bookmarkPrefix, bm.UserId, bm.PostId)); err != nil {
				return err
			}
		}
		for _, bm := range cs.BookmarksAdded {
			if err := setJSON(txn, pairKey(bookmarkPrefix, bm.UserId, bm.PostId), bm); err != nil {
				return err
			}
		}
		for _, n := range cs.Notifications {
			if err := setJSON(txn, idKey(ntfPrefix, n.Seq), n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger commit: %w", err)
	}
	return nil
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func deleteKey(txn *badger.Txn, key []byte) error {
	if err := txn.Delete(key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return nil
}
