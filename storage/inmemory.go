package storage

import "context"

// MemoryBackend keeps nothing: state lives only in the store's process memory
// and is lost on restart.
type MemoryBackend struct{}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (*MemoryBackend) Load(context.Context) (*Snapshot, error) {
	return &Snapshot{}, nil
}

func (*MemoryBackend) Commit(context.Context, *Changeset) error {
	return nil
}

func (*MemoryBackend) Close() error {
	return nil
}

// idList is an insertion-ordered set of ids.
type idList struct {
	ids []int64
	set map[int64]struct{}
}

func newIdList() *idList {
	return &idList{set: make(map[int64]struct{})}
}

func (l *idList) has(id int64) bool {
	_, ok := l.set[id]
	return ok
}

func (l *idList) add(id int64) {
	if l.has(id) {
		return
	}
	l.set[id] = struct{}{}
	l.ids = append(l.ids, id)
}

func (l *idList) remove(id int64) {
	if !l.has(id) {
		return
	}
	delete(l.set, id)
	for i, v := range l.ids {
		if v == id {
			l.ids = append(l.ids[:i], l.ids[i+1:]...)
			break
		}
	}
}

func (l *idList) slice() []int64 {
	out := make([]int64, len(l.ids))
	copy(out, l.ids)
	return out
}
