package cache

import (
	"github.com/alphabot-ai/threadline/internal/model"
)

type Capacities struct {
	Comments   int `yaml:"comments"`
	Links      int `yaml:"links"`
	Subreddits int `yaml:"subreddits"`
	Accounts   int `yaml:"accounts"`
}

func DefaultCapacities() Capacities {
	return Capacities{
		Comments:   DefaultCommentCapacity,
		Links:      DefaultLinkCapacity,
		Subreddits: DefaultSubredditCapacity,
		Accounts:   DefaultAccountCapacity,
	}
}

// Set bundles one cache per object kind.
type Set struct {
	Comments   *Cache[*model.Comment]
	Links      *Cache[*model.Link]
	Subreddits *Cache[*model.Subreddit]
	Accounts   *Cache[*model.Account]
}

func NewSet(caps Capacities) (*Set, error) {
	comments, err := New[*model.Comment](model.KindComment, caps.Comments)
	if err != nil {
		return nil, err
	}
	links, err := New[*model.Link](model.KindLink, caps.Links)
	if err != nil {
		return nil, err
	}
	subreddits, err := New[*model.Subreddit](model.KindSubreddit, caps.Subreddits)
	if err != nil {
		return nil, err
	}
	accounts, err := New[*model.Account](model.KindAccount, caps.Accounts)
	if err != nil {
		return nil, err
	}
	return &Set{
		Comments:   comments,
		Links:      links,
		Subreddits: subreddits,
		Accounts:   accounts,
	}, nil
}

// Put stores t in the cache for its kind. Placeholders are never cached.
func (s *Set) Put(t model.Thing) bool {
	switch v := t.(type) {
	case *model.Comment:
		s.Comments.Put(v)
	case *model.Link:
		s.Links.Put(v)
	case *model.Subreddit:
		s.Subreddits.Put(v)
	case *model.Account:
		s.Accounts.Put(v)
	default:
		return false
	}
	return true
}

// Resolve looks a proxy up in the cache for its kind.
func (s *Set) Resolve(p model.Proxy) (model.Thing, bool) {
	switch p.Kind {
	case model.KindComment:
		return thing[*model.Comment](s.Comments.Get(p.Fullname))
	case model.KindLink:
		return thing[*model.Link](s.Links.Get(p.Fullname))
	case model.KindSubreddit:
		return thing[*model.Subreddit](s.Subreddits.Get(p.Fullname))
	case model.KindAccount:
		return thing[*model.Account](s.Accounts.Get(p.Fullname))
	}
	return nil, false
}

func thing[V model.Thing](v V, ok bool) (model.Thing, bool) {
	if !ok {
		return nil, false
	}
	return v, true
}
