package feed

import (
	"microblog/domain/post"
	"microblog/domain/user"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage is the largest page number a caller may ask for.
	MaxPage = 1<<31 - 1
)

// Page is one slice of a reverse-chronological post list.
type Page struct {
	Posts    []*post.Post `json:"posts"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
	HasNext  bool         `json:"hasNext"`
}

type Trend struct {
	Hashtag string `json:"hashtag"`
	Count   int    `json:"count"`
}

type SearchResult struct {
	Posts []*post.Post `json:"posts"`
	Users []*user.User `json:"users"`
}

// Bounds returns the [start, end) window of page within total items and
// whether items remain past it. Callers validate page and size first.
func Bounds(total, page, size int) (start, end int, hasNext bool) {
	if page-1 > total/size {
		return total, total, false
	}
	start = (page - 1) * size
	if start > total {
		start = total
	}
	end = start + size
	if end > total {
		end = total
	}
	return start, end, end < total
}
