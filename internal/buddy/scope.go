package buddy

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Scope is how broad a requester is willing to match.
type Scope string

const (
	ScopeAll            Scope = "ALL"
	ScopeSameCollege    Scope = "SAME_COLLEGE"
	ScopeSameDepartment Scope = "SAME_DEPARTMENT"
	ScopeCollege        Scope = "COLLEGE"
	ScopeDepartment     Scope = "DEPARTMENT"
)

// Scopes lists every accepted scope value.
var Scopes = []Scope{
	ScopeAll,
	ScopeSameCollege,
	ScopeSameDepartment,
	ScopeCollege,
	ScopeDepartment,
}

// ParseScope converts a user-supplied scope name. Matching is case-insensitive.
func ParseScope(s string) (Scope, error) {
	candidate := Scope(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Scopes {
		if candidate == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown scope %q: must be one of %v", s, Scopes)
}

// breadth collapses the alias pairs COLLEGE/SAME_COLLEGE and
// DEPARTMENT/SAME_DEPARTMENT.
type breadth int

const (
	breadthUnknown breadth = iota
	breadthAny
	breadthCollege
	breadthDepartment
)

func (s Scope) breadth() breadth {
	switch s {
	case ScopeAll:
		return breadthAny
	case ScopeSameCollege, ScopeCollege:
		return breadthCollege
	case ScopeSameDepartment, ScopeDepartment:
		return breadthDepartment
	}
	return breadthUnknown
}

// NormalizeAffiliation canonicalizes a college or department name for
// comparison: NFC normalization, surrounding whitespace trimmed, case folded.
// Clients send Hangul in both composed and decomposed forms.
//
// A Caser carries state, so a fresh one is built per call.
func NormalizeAffiliation(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

func sameCollege(a, b Request) bool {
	return NormalizeAffiliation(a.College) == NormalizeAffiliation(b.College)
}

func sameDepartment(a, b Request) bool {
	return sameCollege(a, b) &&
		NormalizeAffiliation(a.Department) == NormalizeAffiliation(b.Department)
}

// accepts reports whether candidate satisfies r's scope.
func (r Request) accepts(candidate Request) bool {
	switch r.Scope.breadth() {
	case breadthAny:
		return true
	case breadthCollege:
		return sameCollege(r, candidate)
	case breadthDepartment:
		return sameDepartment(r, candidate)
	}
	return false
}

// Compatible reports whether a and b may be paired: distinct requests of
// distinct owners whose scopes are satisfied in both directions.
func Compatible(a, b Request) bool {
	if a.ID == b.ID || a.Owner == b.Owner {
		return false
	}
	return a.accepts(b) && b.accepts(a)
}
