package model

import "time"

// Reply is a node of a comment forest: a Comment or a More placeholder.
// The unexported method keeps the set of implementations closed.
type Reply interface {
	Thing
	ParentFullname() string
	Level() int
	SetLevel(depth int)
	IsDisplayed() bool
	SetDisplayed(displayed bool)
	AttachedParent() string
	setAttachedParent(name string)
}

type Comment struct {
	Identity
	Author           string
	Body             string
	BodyHTML         string
	Score            int
	ScoreHidden      bool
	ParentID         string
	LinkID           string
	LinkTitle        string
	Subreddit        string
	Permalink        string
	Depth            int
	Edited           time.Time
	Likes            Vote
	Saved            bool
	Stickied         bool
	Archived         bool
	Locked           bool
	Collapsed        bool
	IsSubmitter      bool
	Distinguished    string
	Controversiality int
	Gilded           int
	AuthorFlairText  string
	Replies          []Reply

	// Stub marks a stand-in created before the real comment was fetched.
	Stub bool

	Expanded  bool
	Displayed bool

	attachedTo string
}

func (*Comment) Kind() Kind { return KindComment }

func (c *Comment) ParentFullname() string { return c.ParentID }
func (c *Comment) Level() int             { return c.Depth }
func (c *Comment) SetLevel(depth int)     { c.Depth = depth }
func (c *Comment) IsDisplayed() bool      { return c.Displayed }
func (c *Comment) SetDisplayed(d bool)    { c.Displayed = d }
func (c *Comment) AttachedParent() string { return c.attachedTo }

func (c *Comment) setAttachedParent(name string) { c.attachedTo = name }

// NewStub returns a data-less comment that children can attach to until the
// real comment arrives.
func NewStub(fullname string, depth int) *Comment {
	_, id, _ := SplitFullname(fullname)
	return &Comment{
		Identity: Identity{ID: id, Name: fullname},
		Depth:    depth,
		Stub:     true,
	}
}

// IndexOf returns the position of r in the reply list, or -1.
func (c *Comment) IndexOf(r Reply) int {
	for i, existing := range c.Replies {
		if sameNode(existing, r) {
			return i
		}
	}
	return -1
}

// Attach appends r to the reply list and points its back-reference at c.
// It reports false when r was already present, in which case nothing is
// appended.
func (c *Comment) Attach(r Reply) bool {
	if prev := r.AttachedParent(); prev != "" && prev != c.Name {
		return false
	}
	if i := c.IndexOf(r); i >= 0 {
		if c.Replies[i] == r {
			r.setAttachedParent(c.Name)
		}
		return false
	}
	c.Replies = append(c.Replies, r)
	r.setAttachedParent(c.Name)
	return true
}

// Detach removes r from the reply list and clears its back-reference.
func (c *Comment) Detach(r Reply) bool {
	i := c.IndexOf(r)
	if i < 0 {
		return false
	}
	c.Replies = append(c.Replies[:i:i], c.Replies[i+1:]...)
	if r.AttachedParent() == c.Name {
		r.setAttachedParent("")
	}
	return true
}

// MergeFrom copies the wire data of src onto c. The identity of c, its
// replies, display flags and back-reference are kept, and replies of src that
// c does not hold yet are attached.
func (c *Comment) MergeFrom(src *Comment) {
	if src == nil || src == c {
		return
	}
	replies, expanded, displayed, attached := c.Replies, c.Expanded, c.Displayed, c.attachedTo
	incoming := src.Replies

	*c = *src
	c.Replies = replies
	c.Expanded = expanded
	c.Displayed = displayed
	c.attachedTo = attached
	c.Stub = false

	for _, r := range incoming {
		if r.AttachedParent() == src.Name {
			r.setAttachedParent("")
		}
		c.Attach(r)
	}
}

type More struct {
	Identity
	ParentID  string
	Depth     int
	Count     int
	Children  []string
	Displayed bool

	attachedTo string
}

func (*More) Kind() Kind { return KindMore }

func (m *More) ParentFullname() string { return m.ParentID }
func (m *More) Level() int             { return m.Depth }
func (m *More) SetLevel(depth int)     { m.Depth = depth }
func (m *More) IsDisplayed() bool      { return m.Displayed }
func (m *More) SetDisplayed(d bool)    { m.Displayed = d }
func (m *More) AttachedParent() string { return m.attachedTo }

func (m *More) setAttachedParent(name string) { m.attachedTo = name }

// IsContinuation reports a "continue this thread" marker, which carries no
// child ids and must be resolved by loading the parent's subtree.
func (m *More) IsContinuation() bool {
	return m.Count == 0 && len(m.Children) == 0
}

func sameNode(a, b Reply) bool {
	if a == b {
		return true
	}
	return a.Kind() == b.Kind() && a.Fullname() == b.Fullname()
}

// Walk visits the forest in display (pre-)order. Returning false from fn
// skips the node's replies.
func Walk(replies []Reply, fn func(Reply) bool) {
	for _, r := range replies {
		if !fn(r) {
			continue
		}
		if c, ok := r.(*Comment); ok {
			Walk(c.Replies, fn)
		}
	}
}
