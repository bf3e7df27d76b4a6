package tree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alphabot-ai/threadline/internal/cache"
	"github.com/alphabot-ai/threadline/internal/model"
)

func comment(id, parent string, depth int, replies ...model.Reply) *model.Comment {
	c := &model.Comment{
		Identity: model.Identity{ID: id, Name: model.Fullname(model.KindComment, id)},
		ParentID: parent,
		Depth:    depth,
	}
	for _, r := range replies {
		c.Attach(r)
	}
	return c
}

func more(id, parent string, depth int, children ...string) *model.More {
	return &model.More{
		Identity: model.Identity{ID: id, Name: model.Fullname(model.KindComment, id)},
		ParentID: parent,
		Depth:    depth,
		Count:    len(children),
		Children: children,
	}
}

func newTree(t *testing.T, autoDepth int) (*Tree, *[]string) {
	t.Helper()
	comments, err := cache.New[*model.Comment](model.KindComment, cache.DefaultCommentCapacity)
	require.NoError(t, err)

	var requested []string
	tr := New(comments, RequesterFunc(func(name string) {
		requested = append(requested, name)
	}), Options{AutoExpandDepth: autoDepth}, nil)
	return tr, &requested
}

func names(tr *Tree) []string {
	out := make([]string, 0, tr.Len())
	for _, row := range tr.Rows() {
		out = append(out, row.Reply.Fullname())
	}
	return out
}

func TestOrphanRequestsParentOnce(t *testing.T) {
	tr, requested := newTree(t, 0)

	x := comment("x", "t1_p", 1)
	res := tr.Insert(0, []model.Reply{x})
	require.Equal(t, []string{"t1_x"}, res.Orphans)
	require.Equal(t, []string{"t1_p"}, res.Requested)
	require.Equal(t, []string{"t1_p"}, *requested)
	require.True(t, x.Displayed)
	require.Equal(t, 1, tr.Len())
	require.True(t, tr.Rows()[0].Orphan)

	y := comment("y", "t1_p", 1)
	res = tr.Insert(1, []model.Reply{y})
	require.Equal(t, []string{"t1_y"}, res.Orphans)
	require.Empty(t, res.Requested)
	require.Len(t, *requested, 1, "a stub parent is requested exactly once")

	stub, ok := tr.Comment("t1_p")
	require.True(t, ok)
	require.True(t, stub.Stub)
	require.Len(t, stub.Replies, 2)

	merged, known := tr.Reconcile(comment("p", "t3_l", 0))
	require.True(t, known)
	require.Same(t, stub, merged)
	require.False(t, stub.Stub)
	require.Equal(t, "t1_p", x.AttachedParent())
	for _, row := range tr.Rows() {
		require.False(t, row.Orphan)
	}
}

func TestNestedCommentWithoutParentIsOrphan(t *testing.T) {
	tr, requested := newTree(t, 0)

	res := tr.Insert(0, []model.Reply{comment("x", "", 2), comment("y", "t3_l", 1)})
	require.Equal(t, 2, res.Inserted)
	require.Equal(t, []string{"t1_x", "t1_y"}, res.Orphans)
	require.Empty(t, res.Requested)
	require.Empty(t, *requested)
	for _, row := range tr.Rows() {
		require.True(t, row.Orphan, row.Reply.Fullname())
	}
}

func TestBatchAppliedTwiceAttachesOnce(t *testing.T) {
	tr, _ := newTree(t, 0)
	p := comment("p", "t3_l", 0)
	tr.Insert(0, []model.Reply{p})

	tr.Insert(1, []model.Reply{comment("a", "t1_p", 1), comment("b", "t1_p", 1)})
	res := tr.Insert(1, []model.Reply{comment("a", "t1_p", 1), comment("b", "t1_p", 1)})

	require.Zero(t, res.Inserted)
	require.Len(t, p.Replies, 2)
	require.Equal(t, []string{"t1_p", "t1_a", "t1_b"}, names(tr))
	require.True(t, p.Expanded)
}

func TestExpandThenCollapseRestoresLength(t *testing.T) {
	tr, _ := newTree(t, 0)
	a1 := comment("a1", "t1_a", 2)
	p := comment("p", "t3_l", 0,
		comment("a", "t1_p", 1, a1),
		comment("b", "t1_p", 1),
	)
	tr.Load(&model.Thread{Replies: []model.Reply{p}})
	require.Equal(t, 1, tr.Len())

	added := tr.Expand(0)
	require.Equal(t, Range{Start: 1, Count: 2}, added)
	require.Equal(t, []string{"t1_p", "t1_a", "t1_b"}, names(tr))
	require.True(t, p.Expanded)
	require.False(t, a1.Displayed)

	removed := tr.Collapse(0)
	require.Equal(t, []Range{{Start: 1, Count: 2}}, removed)
	require.Equal(t, 1, tr.Len())
	require.False(t, p.Expanded)
}

func TestAutoExpandDepth(t *testing.T) {
	tr, _ := newTree(t, 2)
	a := comment("a", "t1_p", 1, comment("a1", "t1_a", 2, comment("a2", "t1_a1", 3)))
	p := comment("p", "t3_l", 0, a, comment("b", "t1_p", 1))
	leaf := comment("q", "t3_l", 0)

	tr.Load(&model.Thread{Replies: []model.Reply{p, leaf}})
	require.Equal(t, []string{"t1_p", "t1_a", "t1_a1", "t1_b", "t1_q"}, names(tr))
	require.True(t, p.Expanded)
	require.True(t, a.Expanded)
	require.False(t, leaf.Expanded, "a comment without replies is not marked expanded")

	removed := tr.Collapse(0)
	require.Equal(t, []Range{{Start: 1, Count: 3}}, removed)
	require.Equal(t, []string{"t1_p", "t1_q"}, names(tr))
	require.False(t, a.Expanded)
}

func TestCollapseRemovesDisjointRuns(t *testing.T) {
	tr, _ := newTree(t, 0)
	p := comment("p", "t3_l", 0)
	q := comment("q", "t3_l", 0)
	tr.Insert(0, []model.Reply{p, comment("c", "t1_p", 1), q})
	tr.Insert(tr.Len(), []model.Reply{comment("d", "t1_p", 1)})
	require.Equal(t, []string{"t1_p", "t1_c", "t1_q", "t1_d"}, names(tr))

	removed := tr.Collapse(0)
	require.Equal(t, []Range{{Start: 1, Count: 1}, {Start: 2, Count: 1}}, removed)
	require.Equal(t, []string{"t1_p", "t1_q"}, names(tr))
}

func TestResolveMore(t *testing.T) {
	tr, _ := newTree(t, 1)
	m := more("m", "t1_p", 1, "x", "y")
	p := comment("p", "t3_l", 0, comment("a", "t1_p", 1), m)
	tr.Load(&model.Thread{Replies: []model.Reply{p}})
	require.Equal(t, []string{"t1_p", "t1_a", "t1_m"}, names(tr))

	got, ok := tr.More(2)
	require.True(t, ok)
	require.Same(t, m, got)

	x := comment("x", "t1_p", 1)
	y := comment("y", "t1_x", 2)
	res, ok := tr.ResolveMore(m, []model.Reply{x, y})
	require.True(t, ok)
	require.Equal(t, 2, res.Position)
	require.Equal(t, 2, res.Inserted)
	require.Empty(t, res.Orphans)
	require.Equal(t, []string{"t1_p", "t1_a", "t1_x", "t1_y"}, names(tr))
	require.Equal(t, -1, p.IndexOf(m))
	require.Empty(t, m.AttachedParent())
	require.Len(t, x.Replies, 1)

	_, ok = tr.ResolveMore(m, []model.Reply{comment("z", "t1_p", 1)})
	require.False(t, ok, "a placeholder that is gone resolves to a no-op")
	require.Equal(t, 4, tr.Len())
}

func TestResolveContinuationRebasesDepth(t *testing.T) {
	tr, _ := newTree(t, 0)
	m := more("_", "t1_p", 3)
	p := comment("p", "t1_o", 2, m)
	tr.Insert(0, []model.Reply{p})
	tr.Expand(0)
	require.True(t, m.IsContinuation())

	x := comment("x", "t1_p", 1, comment("y", "t1_x", 2))
	_, ok := tr.ResolveMore(m, []model.Reply{x})
	require.True(t, ok)
	require.Equal(t, 3, x.Depth)
	require.Equal(t, 4, x.Replies[0].Level())
}

func TestReconcileKeepsIdentity(t *testing.T) {
	tr, _ := newTree(t, 0)
	p := comment("p", "t3_l", 0)
	tr.Insert(0, []model.Reply{p, comment("a", "t1_p", 1)})

	fresh := comment("p", "t3_l", 0)
	fresh.Body = "edited"
	fresh.Score = 42

	got, known := tr.Reconcile(fresh)
	require.True(t, known)
	require.Same(t, p, got)
	require.Equal(t, "edited", p.Body)
	require.Len(t, p.Replies, 1)
	require.True(t, p.Displayed)

	_, known = tr.Reconcile(comment("unknown", "t3_l", 0))
	require.False(t, known)
}

func TestRemove(t *testing.T) {
	tr, _ := newTree(t, 0)
	p := comment("p", "t3_l", 0)
	a := comment("a", "t1_p", 1)
	tr.Insert(0, []model.Reply{p, a, comment("b", "t1_a", 2)})

	ranges := tr.Remove(1)
	require.Equal(t, []Range{{Start: 2, Count: 1}, {Start: 1, Count: 1}}, ranges)
	require.Equal(t, []string{"t1_p"}, names(tr))
	require.Empty(t, p.Replies)
	require.False(t, a.Displayed)
}

func TestOutOfRangeIsNoop(t *testing.T) {
	tr, _ := newTree(t, 0)
	require.Equal(t, Range{}, tr.Expand(3))
	require.Nil(t, tr.Collapse(-1))
	require.Nil(t, tr.Remove(0))
	_, ok := tr.More(0)
	require.False(t, ok)
}
