// Package ot implements the operational-transform rules that let the room
// sequencer rewrite an edit computed against an older revision so that it
// preserves its intent against every op committed ahead of it.
package ot

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/models"
)

var ErrOutOfBounds = errors.New("op out of bounds")

// Apply applies op to doc. Positions and lengths count characters (runes),
// never bytes, so ops land on rune boundaries in multibyte text. A
// zero-length delete is a no-op; everything else out of range is an error
// and leaves the caller's state untouched.
func Apply(doc string, op models.Op) (string, error) {
	runes := []rune(doc)
	switch op.Kind {
	case models.OpInsert:
		if op.Pos < 0 || op.Pos > len(runes) {
			return "", fmt.Errorf("%w: insert at %d, doc len %d", ErrOutOfBounds, op.Pos, len(runes))
		}
		return string(runes[:op.Pos]) + op.Text + string(runes[op.Pos:]), nil
	case models.OpDelete:
		if op.Len == 0 {
			return doc, nil
		}
		if op.Pos < 0 || op.Pos+op.Len > len(runes) {
			return "", fmt.Errorf("%w: delete [%d,%d), doc len %d", ErrOutOfBounds, op.Pos, op.Pos+op.Len, len(runes))
		}
		return string(runes[:op.Pos]) + string(runes[op.Pos+op.Len:]), nil
	default:
		return "", fmt.Errorf("unknown op kind %q", op.Kind)
	}
}

// Transform rewrites op, computed before committed was applied, into the op
// to apply after it. The committed side always wins precedence, so for an
// insert/insert tie the incoming position shifts past the committed text.
func Transform(op, committed models.Op) models.Op {
	switch committed.Kind {
	case models.OpInsert:
		return againstInsert(op, committed.Pos, utf8.RuneCountInString(committed.Text))
	case models.OpDelete:
		return againstDelete(op, committed.Pos, committed.Len)
	}
	return op
}

// TransformAgainst folds op through every committed op in log order.
func TransformAgainst(op models.Op, log []models.CommittedOp) models.Op {
	for _, c := range log {
		op = Transform(op, c.Op)
	}
	return op
}

func againstInsert(op models.Op, pos, n int) models.Op {
	switch op.Kind {
	case models.OpInsert:
		// Equal positions: the committed insert keeps precedence.
		if pos <= op.Pos {
			op.Pos += n
		}
	case models.OpDelete:
		switch {
		case pos <= op.Pos:
			op.Pos += n
		case pos < op.Pos+op.Len:
			// Committed text landed inside the range being deleted; the
			// deletion grows to cover it so both orderings converge.
			op.Len += n
		}
	}
	return op
}

func againstDelete(op models.Op, pos, n int) models.Op {
	end := pos + n
	switch op.Kind {
	case models.OpInsert:
		switch {
		case op.Pos <= pos:
			// before the deleted span, unchanged
		case op.Pos >= end:
			op.Pos -= n
		default:
			// inside the deleted span: collapse to the span start
			op.Pos = pos
		}
	case models.OpDelete:
		opEnd := op.Pos + op.Len
		if opEnd <= pos {
			return op
		}
		if op.Pos >= end {
			op.Pos -= n
			return op
		}
		// Overlapping deletions: subtract the part already deleted. The
		// range may shrink to zero length, which Apply treats as a no-op.
		overlap := minInt(opEnd, end) - maxInt(op.Pos, pos)
		op.Len -= overlap
		if op.Pos >= pos {
			op.Pos = pos
		}
	}
	return op
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
