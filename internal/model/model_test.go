package model

import (
	"encoding/json"
	"testing"
)

func TestSplitFullname(t *testing.T) {
	kind, id, ok := SplitFullname("t1_abc123")
	if !ok || kind != KindComment || id != "abc123" {
		t.Fatalf("unexpected split: %q %q %v", kind, id, ok)
	}

	for _, bad := range []string{"abc", "t9_abc", "t3_", "more_x"} {
		if _, _, ok := SplitFullname(bad); ok {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestAttachIsIdempotent(t *testing.T) {
	parent := &Comment{Identity: Identity{ID: "p", Name: "t1_p"}}
	child := &Comment{Identity: Identity{ID: "c", Name: "t1_c"}, ParentID: "t1_p", Depth: 1}

	if !parent.Attach(child) {
		t.Fatalf("first attach should append")
	}
	if parent.Attach(child) {
		t.Fatalf("second attach should be a no-op")
	}

	dup := &Comment{Identity: Identity{ID: "c", Name: "t1_c"}}
	if parent.Attach(dup) {
		t.Fatalf("attach of same fullname should be a no-op")
	}
	if dup.AttachedParent() != "" {
		t.Fatalf("duplicate instance must not point at a parent that does not hold it")
	}
	if len(parent.Replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(parent.Replies))
	}
	if child.AttachedParent() != "t1_p" {
		t.Fatalf("expected back-reference to t1_p, got %q", child.AttachedParent())
	}
}

func TestAttachRefusesSecondParent(t *testing.T) {
	a := &Comment{Identity: Identity{ID: "a", Name: "t1_a"}}
	b := &Comment{Identity: Identity{ID: "b", Name: "t1_b"}}
	child := &More{Identity: Identity{ID: "m", Name: "t1_m"}}

	a.Attach(child)
	if b.Attach(child) {
		t.Fatalf("a node may only be owned by one parent")
	}
}

func TestDetachClearsBothSides(t *testing.T) {
	parent := &Comment{Identity: Identity{ID: "p", Name: "t1_p"}}
	more := &More{Identity: Identity{ID: "m", Name: "t1_m"}, Children: []string{"x"}}
	parent.Attach(more)

	if !parent.Detach(more) {
		t.Fatalf("expected detach to find placeholder")
	}
	if len(parent.Replies) != 0 {
		t.Fatalf("expected empty replies, got %d", len(parent.Replies))
	}
	if more.AttachedParent() != "" {
		t.Fatalf("expected cleared back-reference")
	}
	if parent.Detach(more) {
		t.Fatalf("second detach should be a no-op")
	}
}

func TestMergeFromKeepsIdentity(t *testing.T) {
	stub := NewStub("t1_p", 0)
	child := &Comment{Identity: Identity{ID: "c", Name: "t1_c"}, Depth: 1}
	stub.Attach(child)
	stub.Displayed = true

	fetched := &Comment{Identity: Identity{ID: "p", Name: "t1_p"}, Body: "hello", Score: 3}
	stub.MergeFrom(fetched)

	if stub.Stub {
		t.Fatalf("merged comment should no longer be a stub")
	}
	if stub.Body != "hello" || stub.Score != 3 {
		t.Fatalf("data not copied: %+v", stub)
	}
	if len(stub.Replies) != 1 || !stub.Displayed {
		t.Fatalf("tree state lost: replies=%d displayed=%v", len(stub.Replies), stub.Displayed)
	}
}

func TestWalkPreOrder(t *testing.T) {
	root := &Comment{Identity: Identity{Name: "t1_a"}}
	b := &Comment{Identity: Identity{Name: "t1_b"}}
	c := &More{Identity: Identity{Name: "t1_c"}}
	root.Attach(b)
	b.Attach(c)
	d := &Comment{Identity: Identity{Name: "t1_d"}}

	var got []string
	Walk([]Reply{root, d}, func(r Reply) bool {
		got = append(got, r.Fullname())
		return true
	})
	want := []string{"t1_a", "t1_b", "t1_c", "t1_d"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestProxyTextRoundTrip(t *testing.T) {
	p := ProxyOf(&Link{Identity: Identity{ID: "abc", Name: "t3_abc"}})

	raw, err := json.Marshal(map[string]Proxy{"p": p})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]Proxy
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back["p"] != p {
		t.Fatalf("got %+v, want %+v", back["p"], p)
	}

	if _, err := ParseProxy("t1:t3_abc"); err == nil {
		t.Fatalf("expected kind mismatch error")
	}
}

func TestCreatedZeroMeansNoTimestamp(t *testing.T) {
	l := &Link{}
	if _, ok := l.Created(); ok {
		t.Fatalf("zero created should report no timestamp")
	}
}
