package judge

import "strings"

// SkillSet is the distinct set of skill identifiers a session invoked.
type SkillSet map[string]struct{}

// NewSkillSet builds a SkillSet from an ordered list of identifiers.
func NewSkillSet(ids []string) SkillSet {
	s := make(SkillSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// SkillName returns id without its "plugin:" qualifier. Only the text after
// the last colon is kept; ids without a colon are returned unchanged.
func SkillName(id string) string {
	if i := strings.LastIndex(id, ":"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// Matches reports whether expected was invoked. A verbatim hit wins;
// otherwise the unqualified names are compared so "plugin:search" and
// "search" match in either direction.
func Matches(expected string, invoked SkillSet) bool {
	if _, ok := invoked[expected]; ok {
		return true
	}
	want := SkillName(expected)
	for id := range invoked {
		if SkillName(id) == want {
			return true
		}
	}
	return false
}
