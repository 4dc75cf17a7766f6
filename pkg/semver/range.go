// SPDX-License-Identifier: MPL-2.0

package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Operator is a primitive comparator operator.
type Operator string

// Primitive operators produced by desugaring.
const (
	OpEQ Operator = "="
	OpLT Operator = "<"
	OpLE Operator = "<="
	OpGT Operator = ">"
	OpGE Operator = ">="
)

const xrangeIdent = `(?:0|[1-9][0-9]*|x|X|\*)`

var (
	// partialRegex matches a possibly incomplete version such as "1", "1.2.x" or "1.2.3-rc.1".
	partialRegex = regexp.MustCompile(
		`^[v=\s]*(` + xrangeIdent + `)(?:\.(` + xrangeIdent + `)(?:\.(` + xrangeIdent + `)` +
			`(?:-(` + identifier + `(?:\.` + identifier + `)*))?` +
			`(?:\+[0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*)?)?)?$`)

	// comparatorRegex splits an operator prefix from its partial version.
	comparatorRegex = regexp.MustCompile(`^(~>|~|\^|<=|>=|<|>|=)?(.*)$`)

	// opSpaceRegex joins operators to the version that follows them ("> = 1" is not valid, "> 1" is).
	opSpaceRegex = regexp.MustCompile(`(~>|~|\^|<=|>=|<|>|=)\s+`)

	hyphenRegex = regexp.MustCompile(`^\s*(\S+)\s+-\s+(\S+)\s*$`)
	orRegex     = regexp.MustCompile(`\s*\|\|\s*`)
)

type (
	// Comparator is a single primitive constraint. A comparator with Any set
	// matches every version and is ignored by the pre-release rule.
	Comparator struct {
		Op      Operator
		Version Version
		Any     bool
	}

	// Range is a disjunction of comparator sets. A version satisfies the
	// range when it satisfies every comparator of at least one set.
	Range struct {
		raw  string
		sets [][]Comparator
	}

	// partial is a version whose trailing components may be wildcards.
	partial struct {
		major, minor, patch string
		pre                 string
	}
)

// ParseRange parses an npm-style range expression. The empty string and "*"
// match any release version.
func ParseRange(s string) (*Range, error) {
	r := &Range{raw: s}
	for _, set := range orRegex.Split(strings.TrimSpace(s), -1) {
		comps, err := parseSet(set)
		if err != nil {
			if tok, ok := err.(*badToken); ok {
				return nil, &InvalidRangeError{Value: s, Token: string(*tok)}
			}
			return nil, &InvalidRangeError{Value: s}
		}
		r.sets = append(r.sets, comps)
	}
	return r, nil
}

// MustParseRange is like ParseRange but panics on error.
func MustParseRange(s string) *Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// ValidRange reports whether s parses as a range.
func ValidRange(s string) bool {
	_, err := ParseRange(s)
	return err == nil
}

// String returns the expression the range was parsed from.
func (r *Range) String() string { return r.raw }

// Sets returns the desugared comparator sets.
func (r *Range) Sets() [][]Comparator { return r.sets }

// Satisfies reports whether v is accepted by the range.
func (r *Range) Satisfies(v Version) bool {
	for _, set := range r.sets {
		if testSet(set, v) {
			return true
		}
	}
	return false
}

// MaxSatisfying returns the highest version string in versions accepted by r.
// Unparseable entries are skipped.
func (r *Range) MaxSatisfying(versions []string) (string, bool) {
	best := ""
	var bestV Version
	for _, s := range versions {
		v, err := Parse(s)
		if err != nil || !r.Satisfies(v) {
			continue
		}
		if best == "" || v.Compare(bestV) > 0 {
			best, bestV = s, v
		}
	}
	return best, best != ""
}

// Test reports whether v satisfies the single comparator.
func (c Comparator) Test(v Version) bool {
	if c.Any {
		return true
	}
	cmp := v.Compare(c.Version)
	switch c.Op {
	case OpLT:
		return cmp < 0
	case OpLE:
		return cmp <= 0
	case OpGT:
		return cmp > 0
	case OpGE:
		return cmp >= 0
	default:
		return cmp == 0
	}
}

// String renders the comparator in primitive form.
func (c Comparator) String() string {
	if c.Any {
		return "*"
	}
	if c.Op == OpEQ {
		return c.Version.String()
	}
	return string(c.Op) + c.Version.String()
}

func testSet(set []Comparator, v Version) bool {
	for _, c := range set {
		if !c.Test(v) {
			return false
		}
	}
	if !v.IsPrerelease() {
		return true
	}
	for _, c := range set {
		if c.Any {
			continue
		}
		if c.Version.IsPrerelease() && c.Version.SameCore(v) {
			return true
		}
	}
	return false
}

type badToken string

func (b *badToken) Error() string { return fmt.Sprintf("bad comparator %q", string(*b)) }

func parseSet(set string) ([]Comparator, error) {
	set = strings.TrimSpace(set)
	if m := hyphenRegex.FindStringSubmatch(set); m != nil {
		return hyphenRange(m[1], m[2])
	}
	set = opSpaceRegex.ReplaceAllString(set, "$1")
	tokens := strings.Fields(set)
	if len(tokens) == 0 {
		return []Comparator{{Any: true}}, nil
	}
	var out []Comparator
	for _, tok := range tokens {
		comps, err := desugar(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, comps...)
	}
	return out, nil
}

func parsePartial(s string) (partial, bool) {
	m := partialRegex.FindStringSubmatch(s)
	if m == nil {
		return partial{}, false
	}
	return partial{major: m[1], minor: m[2], patch: m[3], pre: m[4]}, true
}

func isX(s string) bool { return s == "" || s == "x" || s == "X" || s == "*" }

func num(s string) uint64 {
	n, _ := strconv.ParseUint(s, 10, 64)
	return n
}

func ver(major, minor, patch uint64, pre string) Version {
	v := Version{Major: major, Minor: minor, Patch: patch}
	if pre != "" {
		v.Prerelease = strings.Split(pre, ".")
	}
	return v
}

func cmp(op Operator, v Version) Comparator { return Comparator{Op: op, Version: v} }

// none is a comparator no version satisfies.
func none() []Comparator { return []Comparator{cmp(OpLT, ver(0, 0, 0, "0"))} }

func desugar(tok string) ([]Comparator, error) {
	m := comparatorRegex.FindStringSubmatch(tok)
	op, rest := m[1], m[2]
	p, ok := parsePartial(rest)
	if !ok {
		bt := badToken(tok)
		return nil, &bt
	}
	switch op {
	case "~", "~>":
		return tilde(p), nil
	case "^":
		return caret(p), nil
	default:
		return xrange(Operator(op), p), nil
	}
}

// tilde allows patch-level changes when a minor version is given and
// minor-level changes otherwise.
func tilde(p partial) []Comparator {
	switch {
	case isX(p.major):
		return []Comparator{{Any: true}}
	case isX(p.minor):
		M := num(p.major)
		return []Comparator{cmp(OpGE, ver(M, 0, 0, "")), cmp(OpLT, ver(M+1, 0, 0, "0"))}
	case isX(p.patch):
		M, m := num(p.major), num(p.minor)
		return []Comparator{cmp(OpGE, ver(M, m, 0, "")), cmp(OpLT, ver(M, m+1, 0, "0"))}
	default:
		M, m, pt := num(p.major), num(p.minor), num(p.patch)
		return []Comparator{cmp(OpGE, ver(M, m, pt, p.pre)), cmp(OpLT, ver(M, m+1, 0, "0"))}
	}
}

// caret allows changes that do not modify the left-most non-zero component.
func caret(p partial) []Comparator {
	switch {
	case isX(p.major):
		return []Comparator{{Any: true}}
	case isX(p.minor):
		M := num(p.major)
		return []Comparator{cmp(OpGE, ver(M, 0, 0, "")), cmp(OpLT, ver(M+1, 0, 0, "0"))}
	case isX(p.patch):
		M, m := num(p.major), num(p.minor)
		if M == 0 {
			return []Comparator{cmp(OpGE, ver(0, m, 0, "")), cmp(OpLT, ver(0, m+1, 0, "0"))}
		}
		return []Comparator{cmp(OpGE, ver(M, m, 0, "")), cmp(OpLT, ver(M+1, 0, 0, "0"))}
	}
	M, m, pt := num(p.major), num(p.minor), num(p.patch)
	lower := cmp(OpGE, ver(M, m, pt, p.pre))
	switch {
	case M != 0:
		return []Comparator{lower, cmp(OpLT, ver(M+1, 0, 0, "0"))}
	case m != 0:
		return []Comparator{lower, cmp(OpLT, ver(0, m+1, 0, "0"))}
	default:
		return []Comparator{lower, cmp(OpLT, ver(0, 0, pt+1, "0"))}
	}
}

// xrange expands a primitive comparator whose version may contain wildcards.
func xrange(op Operator, p partial) []Comparator {
	xM := isX(p.major)
	xm := xM || isX(p.minor)
	xp := xm || isX(p.patch)
	if op == OpEQ && xp {
		op = ""
	}

	if xM {
		if op == OpGT || op == OpLT {
			return none()
		}
		return []Comparator{{Any: true}}
	}

	M, m, pt := num(p.major), num(p.minor), num(p.patch)
	if op != "" && xp {
		if xm {
			m = 0
		}
		pt = 0
		pre := ""
		switch op {
		case OpGT:
			op = OpGE
			if xm {
				M, m = M+1, 0
			} else {
				m++
			}
		case OpLE:
			op = OpLT
			if xm {
				M++
			} else {
				m++
			}
		}
		if op == OpLT {
			pre = "0"
		}
		return []Comparator{cmp(op, ver(M, m, pt, pre))}
	}
	if xm {
		return []Comparator{cmp(OpGE, ver(M, 0, 0, "")), cmp(OpLT, ver(M+1, 0, 0, "0"))}
	}
	if xp {
		return []Comparator{cmp(OpGE, ver(M, m, 0, "")), cmp(OpLT, ver(M, m+1, 0, "0"))}
	}
	if op == "" {
		op = OpEQ
	}
	return []Comparator{cmp(op, ver(M, m, pt, p.pre))}
}

// hyphenRange expands "A - B" into an inclusive pair of comparators.
// A partial lower bound is filled with zeros; a partial upper bound
// becomes an exclusive bound on the next component.
func hyphenRange(from, to string) ([]Comparator, error) {
	f, ok := parsePartial(from)
	if !ok {
		bt := badToken(from)
		return nil, &bt
	}
	t, ok := parsePartial(to)
	if !ok {
		bt := badToken(to)
		return nil, &bt
	}
	var out []Comparator
	switch {
	case isX(f.major):
	case isX(f.minor):
		out = append(out, cmp(OpGE, ver(num(f.major), 0, 0, "")))
	case isX(f.patch):
		out = append(out, cmp(OpGE, ver(num(f.major), num(f.minor), 0, "")))
	default:
		out = append(out, cmp(OpGE, ver(num(f.major), num(f.minor), num(f.patch), f.pre)))
	}
	switch {
	case isX(t.major):
	case isX(t.minor):
		out = append(out, cmp(OpLT, ver(num(t.major)+1, 0, 0, "0")))
	case isX(t.patch):
		out = append(out, cmp(OpLT, ver(num(t.major), num(t.minor)+1, 0, "0")))
	default:
		out = append(out, cmp(OpLE, ver(num(t.major), num(t.minor), num(t.patch), t.pre)))
	}
	if len(out) == 0 {
		return []Comparator{{Any: true}}, nil
	}
	return out, nil
}
