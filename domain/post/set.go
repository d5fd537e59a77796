package post

import (
	"encoding/json"
	"sort"
)

// UserSet is a set of user ids. It encodes to JSON as a sorted array.
type UserSet map[int64]struct{}

func NewUserSet(ids ...int64) UserSet {
	s := make(UserSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s UserSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s UserSet) Len() int {
	return len(s)
}

func (s UserSet) Clone() UserSet {
	c := make(UserSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Slice returns the members in ascending order.
func (s UserSet) Slice() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s UserSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *UserSet) UnmarshalJSON(data []byte) error {
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewUserSet(ids...)
	return nil
}
