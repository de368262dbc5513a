// Package intern provides the stable-handle interned string table used by
// the reflection registry for every enum, struct, field, function and
// argument name. This is the Go-native stand-in for the "intern-string
// storage" collaborator spec.md §1 and §6 name as external: a single
// process-wide table with a lazily initialized guard, mirroring the
// "global mutable state... with lazy init guarded by an atomic lock" note
// in spec.md §9.
package intern

import "sync"

// Name is an opaque interned-string handle. Equality between two Names is
// equivalent to equality of the strings they represent, and is a plain
// integer comparison.
type Name struct {
	id int32
}

// IsZero reports whether n is the zero value (never interned).
func (n Name) IsZero() bool { return n.id == 0 }

// ID returns the raw handle backing n. Exposed so callers that must
// cross a byte-oriented boundary (e.g. resource.refReader, which writes
// a Name into a pointer-sized struct field on the wire) can round-trip
// it without a package-level accessor for every such boundary.
func (n Name) ID() int32 { return n.id }

// NameFromID reconstructs a Name from a raw handle previously obtained
// via Name.ID against the same Table. Passing an id not produced by
// that table yields a Name that looks up as empty.
func NameFromID(id int32) Name { return Name{id: id} }

// Table is a single interned-string table. The zero value is usable.
type Table struct {
	mu     sync.RWMutex
	byStr  map[string]Name
	byName []string // index 0 is reserved for the zero Name
}

// Default is the process-wide table used when callers don't construct
// their own. The package-level Intern and String functions, and this
// module's tests, go through it.
var Default = &Table{}

// Intern returns the stable handle for s, allocating one if s has not been
// seen by this table before.
func (t *Table) Intern(s string) Name {
	t.mu.RLock()
	if n, ok := t.lockedLookup(s); ok {
		t.mu.RUnlock()
		return n
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.lockedLookup(s); ok {
		return n
	}
	if t.byName == nil {
		t.byName = append(t.byName, "") // reserve index 0
	}
	n := Name{id: int32(len(t.byName))}
	t.byName = append(t.byName, s)
	if t.byStr == nil {
		t.byStr = make(map[string]Name)
	}
	t.byStr[s] = n
	return n
}

// InternBytes interns the string represented by b without requiring the
// caller to convert it to a string first when it is already known to be
// present (it will allocate on first sight, same as Intern).
func (t *Table) InternBytes(b []byte) Name {
	return t.Intern(string(b))
}

func (t *Table) lockedLookup(s string) (Name, bool) {
	n, ok := t.byStr[s]
	return n, ok
}

// String returns the string represented by n. Returns "" for the zero Name
// or for a Name foreign to this table.
func (t *Table) String(n Name) string {
	if n.id == 0 {
		return ""
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(n.id) >= len(t.byName) {
		return ""
	}
	return t.byName[n.id]
}

// Intern interns s against the default table.
func Intern(s string) Name { return Default.Intern(s) }

// String returns the string backing n in the default table.
func String(n Name) string { return Default.String(n) }
