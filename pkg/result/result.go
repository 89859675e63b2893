// Package result models the four-level outcome of a certification test.
//
// Levels are ordered PASS > WARN > REVIEW > FAIL. A label outside those four
// is kept verbatim as an Other level that ranks below FAIL, so a typo can
// never read as a pass.
package result

import (
	"fmt"

	cerr "github.com/cockroachdb/errors"
)

// ErrInvalidResult is returned by FromValue for values that cannot describe a result.
var ErrInvalidResult = cerr.New("invalid test result")

type Kind int

const (
	KindPass Kind = iota
	KindWarn
	KindReview
	KindFail
	KindOther
)

// Level is a comparable test outcome. The zero value is PASS, which makes it
// the identity for Combine.
type Level struct {
	kind  Kind
	label string // only for KindOther
}

var (
	Pass   = Level{kind: KindPass}
	Warn   = Level{kind: KindWarn}
	Review = Level{kind: KindReview}
	Fail   = Level{kind: KindFail}
)

// FromBool maps true to PASS and false to FAIL.
func FromBool(ok bool) Level {
	if ok {
		return Pass
	}
	return Fail
}

// Parse returns the level named by s. Matching is case-sensitive; anything
// else becomes an Other level carrying s.
func Parse(s string) Level {
	switch s {
	case "PASS":
		return Pass
	case "WARN":
		return Warn
	case "REVIEW":
		return Review
	case "FAIL":
		return Fail
	default:
		return Level{kind: KindOther, label: s}
	}
}

// FromValue converts a sub-test return value. Booleans, strings, Levels and
// fmt.Stringers are accepted; everything else, nil included, is invalid.
func FromValue(v any) (Level, error) {
	switch x := v.(type) {
	case Level:
		return x, nil
	case *Level:
		if x == nil {
			return Fail, cerr.Wrap(ErrInvalidResult, "nil *Level")
		}
		return *x, nil
	case bool:
		return FromBool(x), nil
	case string:
		return Parse(x), nil
	case fmt.Stringer:
		return Parse(x.String()), nil
	case nil:
		return Fail, cerr.Wrap(ErrInvalidResult, "nil value")
	default:
		return Fail, cerr.Wrapf(ErrInvalidResult, "unsupported type %T", v)
	}
}

func (l Level) Kind() Kind { return l.kind }

// Rank orders levels: PASS 3, WARN 2, REVIEW 1, FAIL 0, Other -1.
func (l Level) Rank() int {
	switch l.kind {
	case KindPass:
		return 3
	case KindWarn:
		return 2
	case KindReview:
		return 1
	case KindFail:
		return 0
	default:
		return -1
	}
}

func (l Level) String() string {
	switch l.kind {
	case KindPass:
		return "PASS"
	case KindWarn:
		return "WARN"
	case KindReview:
		return "REVIEW"
	case KindFail:
		return "FAIL"
	default:
		return l.label
	}
}

// Equal compares canonical labels.
func (l Level) Equal(other Level) bool { return l.String() == other.String() }

// Passed reports whether l is PASS or WARN.
func (l Level) Passed() bool { return l.kind == KindPass || l.kind == KindWarn }

// Combine lowers l to next when next ranks below it and returns the result.
func (l *Level) Combine(next Level) Level {
	if next.Rank() < l.Rank() {
		*l = next
	}
	return *l
}

// Better raises l to next when next ranks above it and reports whether l changed.
func (l *Level) Better(next Level) bool {
	if next.Rank() > l.Rank() {
		*l = next
		return true
	}
	return false
}

// Worst folds levels with Combine. An empty list is PASS.
func Worst(levels ...Level) Level {
	var out Level
	for _, l := range levels {
		out.Combine(l)
	}
	return out
}

// MessagePrefix is the severity prefix used in operator-facing messages.
func (l Level) MessagePrefix() string {
	switch l.kind {
	case KindPass:
		return "Success: "
	case KindWarn:
		return "Warning: "
	case KindReview:
		return "Needs Review: "
	default:
		return "Error: "
	}
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Level) UnmarshalText(text []byte) error {
	*l = Parse(string(text))
	return nil
}
