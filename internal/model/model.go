package model

import (
	"strings"
	"time"
)

type Kind string

const (
	KindComment   Kind = "t1"
	KindAccount   Kind = "t2"
	KindLink      Kind = "t3"
	KindSubreddit Kind = "t5"
	KindMore      Kind = "more"
	KindListing   Kind = "Listing"
)

// Tagged reports whether the kind carries a fullname type tag.
func (k Kind) Tagged() bool {
	switch k {
	case KindComment, KindAccount, KindLink, KindSubreddit:
		return true
	}
	return false
}

// Fullname joins a type tag and a local id, e.g. t3 + abc -> t3_abc.
func Fullname(kind Kind, id string) string {
	return string(kind) + "_" + id
}

// SplitFullname returns the type tag and local id of a fullname.
func SplitFullname(name string) (Kind, string, bool) {
	tag, id, ok := strings.Cut(name, "_")
	if !ok || id == "" {
		return "", "", false
	}
	kind := Kind(tag)
	if !kind.Tagged() {
		return "", "", false
	}
	return kind, id, true
}

// KindOf returns the type tag of a fullname, or "" when it has none.
func KindOf(name string) Kind {
	kind, _, _ := SplitFullname(name)
	return kind
}

// Thing is the identity contract shared by every decoded content item.
type Thing interface {
	Kind() Kind
	LocalID() string
	Fullname() string
	Created() (time.Time, bool)
}

type Identity struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

func (i Identity) LocalID() string  { return i.ID }
func (i Identity) Fullname() string { return i.Name }

func (i Identity) Created() (time.Time, bool) {
	return i.CreatedAt, !i.CreatedAt.IsZero()
}

// Vote is the caller's own vote on a link or comment.
type Vote int8

const (
	Downvote Vote = -1
	NoVote   Vote = 0
	Upvote   Vote = 1
)

type Link struct {
	Identity
	Title           string
	Author          string
	Subreddit       string
	SubredditID     string
	URL             string
	Permalink       string
	Domain          string
	Selftext        string
	SelftextHTML    string
	Score           int
	UpvoteRatio     float64
	NumComments     int
	Over18          bool
	Spoiler         bool
	Stickied        bool
	Locked          bool
	Archived        bool
	IsSelf          bool
	IsVideo         bool
	Saved           bool
	Hidden          bool
	Thumbnail       string
	ThumbnailWidth  int
	ThumbnailHeight int
	Edited          time.Time
	Likes           Vote
	LinkFlairText   string
	AuthorFlairText string
	Distinguished   string
	Gilded          int
	SuggestedSort   string
	Preview         *Preview
	Media           *Media
}

func (*Link) Kind() Kind { return KindLink }

type Subreddit struct {
	Identity
	DisplayName         string
	DisplayNamePrefixed string
	Title               string
	PublicDescription   string
	Description         string
	Subscribers         int
	ActiveUserCount     int
	Over18              bool
	SubredditType       string
	URL                 string
	IconImg             string
	BannerImg           string
	UserIsSubscriber    bool
	Quarantine          bool
	Lang                string
}

func (*Subreddit) Kind() Kind { return KindSubreddit }

// Account is a user. Its wire "name" is the username, so Identity.Name is
// derived from the id instead.
type Account struct {
	Identity
	Username     string
	LinkKarma    int
	CommentKarma int
	TotalKarma   int
	IsGold       bool
	IsMod        bool
	Verified     bool
	IsEmployee   bool
	IsSuspended  bool
	IconImg      string
}

func (*Account) Kind() Kind { return KindAccount }

type Listing[T any] struct {
	Before   string
	After    string
	Dist     int
	Children []T
}

// Page is the cursor part of a listing.
type Page struct {
	Before string
	After  string
	Dist   int
}

func (l *Listing[T]) Page() Page {
	if l == nil {
		return Page{}
	}
	return Page{Before: l.Before, After: l.After, Dist: l.Dist}
}

// Thread is a comments page: the link and its top-level replies, with nested
// replies owned by their parents.
type Thread struct {
	Link    *Link
	Replies []Reply
}
