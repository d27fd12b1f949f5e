package ot

import (
	"math/rand"
	"testing"
	"time"

	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/models"
)

func ins(pos int, text string) models.Op {
	return models.Op{Kind: models.OpInsert, Pos: pos, Text: text}
}

func del(pos, n int) models.Op {
	return models.Op{Kind: models.OpDelete, Pos: pos, Len: n}
}

func TestApplyInsert(t *testing.T) {
	doc, err := Apply("abc", ins(1, "X"))
	if err != nil || doc != "aXbc" {
		t.Fatalf("got %q err=%v", doc, err)
	}
	if _, err := Apply("abc", ins(4, "X")); err == nil {
		t.Fatalf("expected out of bounds")
	}
}

func TestApplyDelete(t *testing.T) {
	doc, err := Apply("abc", del(0, 2))
	if err != nil || doc != "c" {
		t.Fatalf("got %q err=%v", doc, err)
	}
	if _, err := Apply("abc", del(2, 2)); err == nil {
		t.Fatalf("expected out of bounds")
	}
	// zero-length deletes are no-ops, not errors
	doc, err = Apply("abc", del(1, 0))
	if err != nil || doc != "abc" {
		t.Fatalf("got %q err=%v", doc, err)
	}
}

func TestApplyCountsRunesNotBytes(t *testing.T) {
	// "héllo" is five characters but six bytes
	doc, err := Apply("héllo", ins(2, "X"))
	if err != nil || doc != "héXllo" {
		t.Fatalf("got %q err=%v", doc, err)
	}
	doc, err = Apply("héllo", del(1, 2))
	if err != nil || doc != "hlo" {
		t.Fatalf("got %q err=%v", doc, err)
	}
	// bounds are in characters too
	if _, err := Apply("héllo", ins(5, "X")); err != nil {
		t.Fatalf("insert at rune length must fit: %v", err)
	}
	if _, err := Apply("héllo", ins(6, "X")); err == nil {
		t.Fatalf("expected out of bounds past rune length")
	}
}

func TestTransformShiftsByRuneCount(t *testing.T) {
	// the committed insert is two characters, four bytes
	got := Transform(ins(3, "Z"), ins(0, "δδ"))
	if got.Pos != 5 {
		t.Fatalf("expected pos 5, got %d", got.Pos)
	}
	got = Transform(del(3, 1), ins(0, "δδ"))
	if got.Pos != 5 || got.Len != 1 {
		t.Fatalf("got %+v", got)
	}
	// committed insert inside a deleted range grows it by two, not four
	got = Transform(del(0, 2), ins(1, "δδ"))
	if got.Pos != 0 || got.Len != 4 {
		t.Fatalf("got %+v", got)
	}
}

func TestTransformInsertInsert(t *testing.T) {
	// committed insert before: shift
	got := Transform(ins(2, "Y"), ins(1, "X"))
	if got.Pos != 3 {
		t.Fatalf("expected pos 3, got %d", got.Pos)
	}
	// committed insert after: unchanged
	got = Transform(ins(1, "Y"), ins(2, "X"))
	if got.Pos != 1 {
		t.Fatalf("expected pos 1, got %d", got.Pos)
	}
	// same position: the committed op keeps precedence
	got = Transform(ins(1, "Y"), ins(1, "XX"))
	if got.Pos != 3 {
		t.Fatalf("expected pos 3, got %d", got.Pos)
	}
}

func TestTransformInsertAgainstDelete(t *testing.T) {
	// before the span: unchanged
	got := Transform(ins(1, "Z"), del(2, 2))
	if got.Pos != 1 {
		t.Fatalf("expected pos 1, got %d", got.Pos)
	}
	// after the span: shift back
	got = Transform(ins(5, "Z"), del(1, 3))
	if got.Pos != 2 {
		t.Fatalf("expected pos 2, got %d", got.Pos)
	}
	// inside the span: collapse to its start, insert survives
	got = Transform(ins(2, "Z"), del(1, 3))
	if got.Pos != 1 || got.Text != "Z" {
		t.Fatalf("expected clamp to 1, got %+v", got)
	}
}

func TestTransformDeleteAgainstInsert(t *testing.T) {
	// committed insert at or before the delete: shift
	got := Transform(del(2, 2), ins(1, "XY"))
	if got.Pos != 4 || got.Len != 2 {
		t.Fatalf("got %+v", got)
	}
	// committed insert past the range: unchanged
	got = Transform(del(1, 2), ins(3, "X"))
	if got.Pos != 1 || got.Len != 2 {
		t.Fatalf("got %+v", got)
	}
	// committed insert inside the range: the deletion grows to cover it
	got = Transform(del(1, 3), ins(2, "XY"))
	if got.Pos != 1 || got.Len != 5 {
		t.Fatalf("got %+v", got)
	}
}

func TestTransformDeleteAgainstDelete(t *testing.T) {
	// disjoint, committed first: shift back
	got := Transform(del(4, 2), del(1, 2))
	if got.Pos != 2 || got.Len != 2 {
		t.Fatalf("got %+v", got)
	}
	// disjoint, committed after: unchanged
	got = Transform(del(0, 2), del(4, 2))
	if got.Pos != 0 || got.Len != 2 {
		t.Fatalf("got %+v", got)
	}
	// partial overlap: the committed part is subtracted
	got = Transform(del(2, 4), del(4, 4))
	if got.Pos != 2 || got.Len != 2 {
		t.Fatalf("got %+v", got)
	}
	// incoming contained in committed: shrinks to a no-op
	got = Transform(del(2, 2), del(1, 4))
	if got.Pos != 1 || got.Len != 0 {
		t.Fatalf("got %+v", got)
	}
	// identical ranges: no-op
	got = Transform(del(1, 3), del(1, 3))
	if got.Len != 0 {
		t.Fatalf("got %+v", got)
	}
	// incoming straddles the committed start
	got = Transform(del(1, 4), del(3, 4))
	if got.Pos != 1 || got.Len != 2 {
		t.Fatalf("got %+v", got)
	}
}

/*** sequencing properties ***/

// sequencer is a minimal authoritative history for exercising the transform
// rules the way the room worker uses them.
type sequencer struct {
	doc string
	log []models.CommittedOp
}

func (s *sequencer) submit(t *testing.T, op models.Op, base int) models.CommittedOp {
	t.Helper()
	for _, c := range s.log[base:] {
		op = Transform(op, c.Op)
	}
	doc, err := Apply(s.doc, op)
	if err != nil {
		t.Fatalf("transformed op out of bounds: %+v against %q: %v", op, s.doc, err)
	}
	s.doc = doc
	co := models.CommittedOp{Op: op, Revision: int64(len(s.log) + 1)}
	s.log = append(s.log, co)
	return co
}

func (s *sequencer) replay(t *testing.T, initial string) string {
	t.Helper()
	doc := initial
	for _, c := range s.log {
		var err error
		if doc, err = Apply(doc, c.Op); err != nil {
			t.Fatalf("replay failed at revision %d: %v", c.Revision, err)
		}
	}
	return doc
}

func TestConcurrentInsertsConvergeEitherOrder(t *testing.T) {
	// room at revision 0 with "abc"; A inserts "X" at 1, B inserts "Y" at 2,
	// both against base 0
	a, b := ins(1, "X"), ins(2, "Y")

	s1 := &sequencer{doc: "abc"}
	s1.submit(t, a, 0)
	s1.submit(t, b, 0)

	s2 := &sequencer{doc: "abc"}
	s2.submit(t, b, 0)
	s2.submit(t, a, 0)

	if s1.doc != "aXbYc" || s2.doc != "aXbYc" {
		t.Fatalf("expected aXbYc both ways, got %q / %q", s1.doc, s2.doc)
	}
}

func TestInsertIntoDeletedSpanClamps(t *testing.T) {
	// delete of all of "abc" commits first; a concurrent insert at 1 clamps
	// to the span start and survives
	s := &sequencer{doc: "abc"}
	s.submit(t, del(0, 3), 0)
	if s.doc != "" {
		t.Fatalf("expected empty doc, got %q", s.doc)
	}
	co := s.submit(t, ins(1, "Z"), 0)
	if co.Op.Pos != 0 {
		t.Fatalf("expected clamp to 0, got %d", co.Op.Pos)
	}
	if s.doc != "Z" {
		t.Fatalf("expected Z, got %q", s.doc)
	}
}

func TestReplayReproducesSnapshot(t *testing.T) {
	s := &sequencer{doc: "hello world"}
	s.submit(t, ins(5, ","), 0)
	s.submit(t, del(0, 5), 1)
	s.submit(t, ins(0, "goodbye"), 2)
	s.submit(t, del(7, 1), 1) // stale base, transformed forward

	if got := s.replay(t, "hello world"); got != s.doc {
		t.Fatalf("replay %q != snapshot %q", got, s.doc)
	}
}

func TestRandomConcurrentOpsStayInBoundsAndReplay(t *testing.T) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	const initial = "the quick brown fox jumps over the lazy dog"

	for iter := 0; iter < 200; iter++ {
		// a handful of ops all computed against revision 0, arriving in a
		// random order; the sequencer must keep every transformed op in
		// bounds and replay must reproduce the snapshot
		n := 2 + rng.Intn(5)
		ops := make([]models.Op, n)
		for i := range ops {
			if rng.Intn(2) == 0 {
				ops[i] = ins(rng.Intn(len(initial)+1), string(rune('A'+rng.Intn(26))))
			} else {
				pos := rng.Intn(len(initial))
				ops[i] = del(pos, 1+rng.Intn(len(initial)-pos))
			}
		}
		rng.Shuffle(n, func(i, j int) { ops[i], ops[j] = ops[j], ops[i] })

		s := &sequencer{doc: initial}
		for _, op := range ops {
			s.submit(t, op, 0)
		}
		if got := s.replay(t, initial); got != s.doc {
			t.Fatalf("iter %d: replay %q != snapshot %q", iter, got, s.doc)
		}
	}
}
