// Package version implements the dotted-tuple version ordering used
// throughout ssm: a version string splits on '.', digit-only segments
// compare as integers, everything else compares as a string, and
// tuples compare lexicographically position by position.
package version

import (
	"strconv"
	"strings"

	"github.com/ec-ssm/ssm/internal/ssmerr"
)

// Op is a version comparison operator from the testable-expression
// grammar.
type Op string

const (
	OpLT Op = "<"
	OpLE Op = "<="
	OpEQ Op = "=="
	OpGE Op = ">="
	OpGT Op = ">"
	OpNE Op = "!="
	OpRE Op = "~"
)

// segment is one dot-separated component of a parsed version: either
// a parsed integer (isNum true) or an opaque string.
type segment struct {
	isNum bool
	num   int
	str   string
}

// Tuple is a parsed version, ready for ordered comparison.
type Tuple []segment

// Parse splits a version string on '.' into a Tuple, turning every
// all-digit segment into an integer.
func Parse(v string) Tuple {
	parts := strings.Split(v, ".")
	t := make(Tuple, len(parts))
	for i, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			t[i] = segment{isNum: true, num: n}
		} else {
			t[i] = segment{str: p}
		}
	}
	return t
}

// compareSegment returns -1, 0, 1. A numeric segment and a
// non-numeric segment at the same position are ordered by comparing
// their string forms, since they are not the same type.
func compareSegment(a, b segment) int {
	if a.isNum && b.isNum {
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		default:
			return 0
		}
	}
	as, bs := a.str, b.str
	if a.isNum {
		as = strconv.Itoa(a.num)
	}
	if b.isNum {
		bs = strconv.Itoa(b.num)
	}
	return strings.Compare(as, bs)
}

// Compare orders two tuples lexicographically; a shorter tuple that
// is a prefix of a longer one sorts before it.
func Compare(a, b Tuple) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := compareSegment(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Equal reports exact tuple equality; unlike Compare's ordering, two
// tuples of differing length are never equal, even if the shorter is
// a prefix of the longer (spec.md §4.5: "== tolerates differing
// lengths only by exact equality, no zero-padding").
func Equal(a, b Tuple) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if compareSegment(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}

// Test evaluates providerVersion op requirementVersion, e.g.
// Test("1.8.3", OpGE, "1.8") reports whether 1.8.3 >= 1.8.
func Test(provider string, op Op, requirement string) (bool, error) {
	p, r := Parse(provider), Parse(requirement)
	switch op {
	case OpLT:
		return Compare(p, r) < 0, nil
	case OpLE:
		return Compare(p, r) <= 0, nil
	case OpEQ:
		return Equal(p, r), nil
	case OpGE:
		return Compare(p, r) >= 0, nil
	case OpGT:
		return Compare(p, r) > 0, nil
	case OpNE:
		return !Equal(p, r), nil
	case OpRE:
		return false, ssmerr.New(ssmerr.KindValidation, "version operator ~ is reserved and unimplemented")
	default:
		return false, ssmerr.New(ssmerr.KindValidation, "unknown version operator %q", op)
	}
}
