package alert

import (
	"slices"
	"strings"
)

// Canonicalize returns a copy of v in which the members of every object are
// sorted by key. Objects nested in object members are sorted too; arrays are
// passed through untouched, so objects inside arrays keep their order.
//
// Outputs that serialize the alert directly (Slack attachments, archived
// records, queue messages) rely on this ordering being stable. The sort is
// stable, so duplicate keys keep their relative order and the function is
// idempotent.
func Canonicalize(v Value) Value {
	if v.kind != KindObject {
		return v
	}

	members := make([]Member, len(v.members))
	for i, m := range v.members {
		members[i] = Member{Key: m.Key, Value: Canonicalize(m.Value)}
	}
	slices.SortStableFunc(members, func(a, b Member) int {
		return strings.Compare(a.Key, b.Key)
	})

	return Value{kind: KindObject, members: members}
}

// IsCanonical reports whether every object reachable through object members
// of v already has its members in key order.
func IsCanonical(v Value) bool {
	if v.kind != KindObject {
		return true
	}
	for i, m := range v.members {
		if i > 0 && v.members[i-1].Key > m.Key {
			return false
		}
		if !IsCanonical(m.Value) {
			return false
		}
	}
	return true
}
