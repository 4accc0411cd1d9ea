// Package level defines the ordered permission levels granted on resource
// nodes and the lattice operations over them.
//
// Levels form a total order READ < WRITE < ADMIN. "No permission" is the
// absence of a grant, not a level; the zero value of Level is invalid.
package level

import "fmt"

// Level is a permission level granted on a node.
type Level string

// Permission levels, lowest to highest.
const (
	// Read grants visibility of a node and its components.
	Read Level = "read"

	// Write grants Read plus mutation of node content.
	Write Level = "write"

	// Admin grants Write plus contributor, grant, and settings management.
	Admin Level = "admin"
)

// rank maps each level to its position in the total order.
var rank = map[Level]int{
	Read:  1,
	Write: 2,
	Admin: 3,
}

// Valid reports whether l is one of the defined permission levels.
func (l Level) Valid() bool {
	_, ok := rank[l]
	return ok
}

// Parse converts a string into a Level, rejecting unknown values.
func Parse(s string) (Level, error) {
	l := Level(s)
	if !l.Valid() {
		return "", fmt.Errorf("level: unknown permission level %q", s)
	}
	return l, nil
}

// Compare returns -1 if a < b, 0 if a == b, and +1 if a > b.
// Invalid levels compare below Read.
func Compare(a, b Level) int {
	ra, rb := rank[a], rank[b]
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	default:
		return 0
	}
}

// Union returns the greater of a and b. Union is the permission merge
// operation: a user holding both levels effectively holds the union.
func Union(a, b Level) Level {
	if Compare(a, b) >= 0 {
		return a
	}
	return b
}

// Satisfies reports whether holding `have` is sufficient for an operation
// requiring `required`. Higher levels imply all lower ones.
func Satisfies(have, required Level) bool {
	if !have.Valid() || !required.Valid() {
		return false
	}
	return Compare(have, required) >= 0
}

// Expand returns every level implied by l, lowest first: Admin implies
// Write implies Read. Returns nil for an invalid level.
func Expand(l Level) []Level {
	switch l {
	case Read:
		return []Level{Read}
	case Write:
		return []Level{Read, Write}
	case Admin:
		return []Level{Read, Write, Admin}
	default:
		return nil
	}
}
