// Package tree keeps a flat, display-ordered view over a partially loaded
// comment forest. A Tree is not safe for concurrent use.
package tree

import (
	"log/slog"
	"slices"

	"github.com/alphabot-ai/threadline/internal/cache"
	"github.com/alphabot-ai/threadline/internal/model"
)

// Requester is told about parents that must be fetched. Calls must not
// block; the result comes back through Reconcile or Insert.
type Requester interface {
	RequestComment(fullname string)
}

type RequesterFunc func(fullname string)

func (f RequesterFunc) RequestComment(fullname string) { f(fullname) }

type Options struct {
	// AutoExpandDepth is how many levels of already known replies are shown
	// when a comment is inserted or expanded.
	AutoExpandDepth int
}

// Range is a run of rows removed from or added to the flat view.
type Range struct {
	Start int
	Count int
}

type InsertResult struct {
	Position int
	Inserted int
	// Orphans are inserted comments whose parent is not loaded yet.
	Orphans []string
	// Requested are parents a fetch was issued for.
	Requested []string
}

// Row is one line of the rendered view.
type Row struct {
	Reply  model.Reply
	Depth  int
	Orphan bool
}

type Tree struct {
	opts      Options
	comments  *cache.Cache[*model.Comment]
	requester Requester
	logger    *slog.Logger

	flat    []model.Reply
	index   map[string]*model.Comment
	mores   map[string]*model.More
	orphans map[string]bool
}

func New(comments *cache.Cache[*model.Comment], requester Requester, opts Options, logger *slog.Logger) *Tree {
	if requester == nil {
		requester = RequesterFunc(func(string) {})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tree{
		opts:      opts,
		comments:  comments,
		requester: requester,
		logger:    logger.With("component", "tree.Tree"),
		index:     make(map[string]*model.Comment),
		mores:     make(map[string]*model.More),
		orphans:   make(map[string]bool),
	}
}

func (t *Tree) Len() int { return len(t.flat) }

func (t *Tree) At(pos int) (model.Reply, bool) {
	if pos < 0 || pos >= len(t.flat) {
		return nil, false
	}
	return t.flat[pos], true
}

// Comment returns a comment known to the tree, displayed or not.
func (t *Tree) Comment(fullname string) (*model.Comment, bool) {
	c, ok := t.index[fullname]
	return c, ok
}

func (t *Tree) Rows() []Row {
	rows := make([]Row, len(t.flat))
	for i, r := range t.flat {
		rows[i] = Row{Reply: r, Depth: r.Level(), Orphan: t.orphans[r.Fullname()] && r.Kind() == model.KindComment}
	}
	return rows
}

// Position returns the flat index of r, compared by identity, or -1.
func (t *Tree) Position(r model.Reply) int {
	for i, existing := range t.flat {
		if existing == r {
			return i
		}
	}
	return -1
}

// Load replaces the tree with a freshly fetched thread.
func (t *Tree) Load(thread *model.Thread) InsertResult {
	for _, r := range t.flat {
		r.SetDisplayed(false)
	}
	t.flat = t.flat[:0]
	clear(t.index)
	clear(t.mores)
	clear(t.orphans)

	if thread == nil {
		return InsertResult{}
	}
	model.Walk(thread.Replies, func(r model.Reply) bool {
		r.SetDisplayed(false)
		t.adopt(r)
		return true
	})
	return t.Insert(0, thread.Replies)
}

// Insert splices batch into the flat view at position. Each node is attached
// to its parent, looked up through the tree and then the comment cache. A
// parent that is missing is created as a stub and requested once; its
// children are shown as orphans until it arrives. Nodes that are already
// displayed are not inserted again.
func (t *Tree) Insert(position int, batch []model.Reply) InsertResult {
	position = min(max(position, 0), len(t.flat))
	res := InsertResult{Position: position}

	at := position
	for _, r := range batch {
		node := t.adopt(r)
		if node.IsDisplayed() {
			continue
		}

		switch {
		case node.Level() == 0:
		case model.KindOf(node.ParentFullname()) != model.KindComment:
			t.orphans[node.Fullname()] = true
			res.Orphans = append(res.Orphans, node.Fullname())
			t.logger.Warn("comment without a parent", "fullname", node.Fullname(), "parent", node.ParentFullname(), "depth", node.Level())
		default:
			parent, requested := t.parent(node)
			if requested {
				res.Requested = append(res.Requested, parent.Fullname())
			}
			parent.Attach(node)
			if parent.Stub {
				t.orphans[node.Fullname()] = true
				res.Orphans = append(res.Orphans, node.Fullname())
				t.logger.Warn("orphaned comment", "fullname", node.Fullname(), "parent", parent.Fullname(), "depth", node.Level())
			} else if parent.Displayed {
				parent.Expanded = true
			}
		}

		at = t.splice(at, node)
		if c, ok := node.(*model.Comment); ok && t.opts.AutoExpandDepth > 0 {
			at += t.spliceReplies(c, at, t.opts.AutoExpandDepth)
		}
	}
	res.Inserted = at - position
	return res
}

// Expand shows the replies of the comment at pos. It returns the inserted
// range, which is empty when there is nothing to show.
func (t *Tree) Expand(pos int) Range {
	c, ok := t.commentAt(pos)
	if !ok {
		return Range{}
	}
	n := t.spliceReplies(c, pos+1, max(t.opts.AutoExpandDepth, 1))
	c.Expanded = true
	return Range{Start: pos + 1, Count: n}
}

// Collapse hides every displayed descendant of the comment at pos. Removed
// ranges are returned in the order they were applied; each Start is relative
// to the list left by the previous removal.
func (t *Tree) Collapse(pos int) []Range {
	c, ok := t.commentAt(pos)
	if !ok {
		return nil
	}

	marked := make(map[model.Reply]bool)
	var mark func(*model.Comment)
	mark = func(c *model.Comment) {
		for _, r := range c.Replies {
			if !r.IsDisplayed() {
				continue
			}
			marked[r] = true
			if rc, ok := r.(*model.Comment); ok && rc.Expanded {
				mark(rc)
			}
		}
	}
	mark(c)
	c.Expanded = false

	var ranges []Range
	remaining := len(marked)
	for i := pos + 1; i < len(t.flat) && remaining > 0; {
		if !marked[t.flat[i]] {
			i++
			continue
		}
		j := i
		for j < len(t.flat) && marked[t.flat[j]] {
			j++
		}
		for _, r := range t.flat[i:j] {
			r.SetDisplayed(false)
			if rc, ok := r.(*model.Comment); ok {
				rc.Expanded = false
			}
		}
		t.flat = slices.Delete(t.flat, i, j)
		ranges = append(ranges, Range{Start: i, Count: j - i})
		remaining -= j - i
	}
	return ranges
}

// Toggle expands a collapsed comment and collapses an expanded one.
func (t *Tree) Toggle(pos int) (added Range, removed []Range) {
	c, ok := t.commentAt(pos)
	if !ok {
		return Range{}, nil
	}
	if c.Expanded {
		return Range{}, t.Collapse(pos)
	}
	return t.Expand(pos), nil
}

// Remove takes the node at pos and its displayed descendants out of the view
// and detaches it from its parent. Ranges are in the order applied, as for
// Collapse.
func (t *Tree) Remove(pos int) []Range {
	r, ok := t.At(pos)
	if !ok {
		return nil
	}
	var ranges []Range
	if _, isComment := r.(*model.Comment); isComment {
		ranges = t.Collapse(pos)
	}
	if parent, ok := t.index[r.AttachedParent()]; ok {
		parent.Detach(r)
	}
	r.SetDisplayed(false)
	t.flat = slices.Delete(t.flat, pos, pos+1)
	delete(t.orphans, r.Fullname())
	return append(ranges, Range{Start: pos, Count: 1})
}

// More returns the placeholder at pos.
func (t *Tree) More(pos int) (*model.More, bool) {
	r, ok := t.At(pos)
	if !ok {
		return nil, false
	}
	m, ok := r.(*model.More)
	return m, ok
}

// ResolveMore replaces a placeholder with the comments fetched for it. It is
// a no-op returning false when the placeholder is no longer displayed.
func (t *Tree) ResolveMore(m *model.More, fetched []model.Reply) (InsertResult, bool) {
	pos := t.Position(m)
	if pos < 0 {
		return InsertResult{}, false
	}
	if parent, ok := t.index[m.AttachedParent()]; ok {
		parent.Detach(m)
	}
	m.SetDisplayed(false)
	t.flat = slices.Delete(t.flat, pos, pos+1)
	if t.mores[m.Fullname()] == m {
		delete(t.mores, m.Fullname())
	}

	rebase(fetched, m.Depth)
	return t.Insert(pos, fetched), true
}

// Reconcile applies a freshly fetched comment. When the tree already holds a
// comment with that fullname, the data is copied onto the held instance and
// that instance is returned; its children stop being orphans.
func (t *Tree) Reconcile(c *model.Comment) (*model.Comment, bool) {
	existing, ok := t.index[c.Fullname()]
	if !ok {
		if t.comments != nil {
			t.comments.Put(c)
		}
		return c, false
	}
	existing.MergeFrom(c)
	if t.comments != nil {
		t.comments.Put(existing)
	}
	for _, r := range existing.Replies {
		delete(t.orphans, r.Fullname())
	}
	return existing, true
}

// adopt returns the instance the tree holds for r, registering r when it is
// new. A comment already known by fullname absorbs r's data.
func (t *Tree) adopt(r model.Reply) model.Reply {
	switch v := r.(type) {
	case *model.Comment:
		if existing, ok := t.index[v.Fullname()]; ok {
			if existing != v {
				existing.MergeFrom(v)
			}
			return existing
		}
		t.index[v.Fullname()] = v
		if t.comments != nil {
			t.comments.Put(v)
		}
	case *model.More:
		if existing, ok := t.mores[v.Fullname()]; ok {
			return existing
		}
		t.mores[v.Fullname()] = v
	}
	return r
}

// parent resolves the parent of r, creating and requesting a stub when it is
// unknown. requested is true only for the call that created the stub.
func (t *Tree) parent(r model.Reply) (parent *model.Comment, requested bool) {
	name := r.ParentFullname()
	if p, ok := t.index[name]; ok {
		return p, false
	}

	create := func(key string) *model.Comment {
		return model.NewStub(key, max(r.Level()-1, 0))
	}
	var outcome cache.Outcome
	if t.comments != nil {
		parent, outcome = t.comments.Lookup(name, create)
	} else {
		parent, outcome = create(name), cache.Created
	}
	t.index[name] = parent
	if outcome == cache.Created {
		t.requester.RequestComment(name)
		return parent, true
	}
	return parent, false
}

func (t *Tree) commentAt(pos int) (*model.Comment, bool) {
	r, ok := t.At(pos)
	if !ok {
		return nil, false
	}
	c, ok := r.(*model.Comment)
	return c, ok
}

// splice inserts r at pos and returns the position after it.
func (t *Tree) splice(pos int, r model.Reply) int {
	t.flat = slices.Insert(t.flat, pos, r)
	r.SetDisplayed(true)
	return pos + 1
}

// spliceReplies shows up to levels levels of c's known replies starting at
// pos and returns how many rows were added. A comment is marked expanded only
// when at least one of its replies was added.
func (t *Tree) spliceReplies(c *model.Comment, pos, levels int) int {
	if levels <= 0 {
		return 0
	}
	at := pos
	for _, r := range c.Replies {
		if r.IsDisplayed() {
			continue
		}
		t.adopt(r)
		at = t.splice(at, r)
		if rc, ok := r.(*model.Comment); ok {
			at += t.spliceReplies(rc, at, levels-1)
		}
	}
	if at > pos {
		c.Expanded = true
	}
	return at - pos
}

// rebase shifts fetched depths so the shallowest node sits at depth.
func rebase(fetched []model.Reply, depth int) {
	if len(fetched) == 0 {
		return
	}
	shallowest := fetched[0].Level()
	for _, r := range fetched[1:] {
		shallowest = min(shallowest, r.Level())
	}
	delta := depth - shallowest
	if delta == 0 {
		return
	}
	seen := make(map[model.Reply]bool)
	model.Walk(fetched, func(r model.Reply) bool {
		if seen[r] {
			return false
		}
		seen[r] = true
		r.SetLevel(r.Level() + delta)
		return true
	})
}
